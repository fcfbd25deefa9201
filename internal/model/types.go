package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// FitnessRecord mirrors the evaluator score in persisted form.
type FitnessRecord struct {
	Generations    int `json:"generations"`
	PeakGrowth     int `json:"peak_growth"`
	InitialAlive   int `json:"initial_alive"`
	FinalAlive     int `json:"final_alive"`
	PeakGeneration int `json:"peak_generation"`
}

type RunConfig struct {
	PopulationSize       int     `json:"population_size"`
	GridSize             int     `json:"grid_size"`
	MaxGenerations       int     `json:"max_generations"`
	Generations          int     `json:"generations"`
	MutationRate         float64 `json:"mutation_rate"`
	Seed                 int64   `json:"seed"`
	Workers              int     `json:"workers"`
	Seeder               string  `json:"seeder"`
	Selection            string  `json:"selection"`
	Crossover            string  `json:"crossover"`
	Mutation             string  `json:"mutation"`
	CloneProbability     float64 `json:"clone_probability"`
	MutateAfterCrossover bool    `json:"mutate_after_crossover"`
	TournamentSize       int     `json:"tournament_size"`
	RouletteBias         float64 `json:"roulette_bias"`
	RouletteProbability  float64 `json:"roulette_probability"`
	Density              float64 `json:"density,omitempty"`
	RegionSize           int     `json:"region_size,omitempty"`
	BlockSize            int     `json:"block_size,omitempty"`
	SpliceRows           int     `json:"splice_rows,omitempty"`
}

// RunRecord is the persisted outcome of one evolutionary run. BestGrid is
// kept in the nested 0/1 exchange form.
type RunRecord struct {
	VersionedRecord
	ID                  string        `json:"id"`
	CreatedAtUTC        string        `json:"created_at_utc"`
	Config              RunConfig     `json:"config"`
	BestGrid            [][]int       `json:"best_grid"`
	BestFitness         FitnessRecord `json:"best_fitness"`
	AverageByGeneration []float64     `json:"average_by_generation"`
	BestByGeneration    []float64     `json:"best_by_generation"`
	Termination         string        `json:"termination"`
	Evaluations         int           `json:"evaluations"`
}

type GenerationDiagnostics struct {
	Generation           int     `json:"generation"`
	PopulationSize       int     `json:"population_size"`
	Survivors            int     `json:"survivors"`
	ValidCount           int     `json:"valid_count"`
	BestGrowth           int     `json:"best_growth"`
	GenerationBestGrowth int     `json:"generation_best_growth"`
	MeanGrowth           float64 `json:"mean_growth"`
	StdDevGrowth         float64 `json:"stddev_growth"`
	BestSurvival         int     `json:"best_survival"`
	Evaluations          int     `json:"evaluations"`
}
