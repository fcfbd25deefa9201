package methuselah

import (
	"fmt"

	"methuselah/internal/evo"
	"methuselah/internal/model"
)

// materializeRunConfig fills defaults and validates every field before any
// work starts.
func materializeRunConfig(req RunRequest) (model.RunConfig, error) {
	cfg := model.RunConfig{
		PopulationSize:       req.PopulationSize,
		GridSize:             req.GridSize,
		MaxGenerations:       req.MaxGenerations,
		Generations:          DefaultGenerations,
		MutationRate:         DefaultMutationRate,
		Seed:                 req.Seed,
		Workers:              req.Workers,
		Seeder:               req.Seeder,
		Selection:            req.Selection,
		Crossover:            req.Crossover,
		Mutation:             req.Mutation,
		CloneProbability:     evo.DefaultCloneProbability,
		MutateAfterCrossover: req.MutateAfterCrossover,
		TournamentSize:       req.TournamentSize,
		RouletteBias:         req.RouletteBias,
		RouletteProbability:  evo.DefaultRouletteProbability,
		Density:              req.Density,
		RegionSize:           req.RegionSize,
		BlockSize:            req.BlockSize,
		SpliceRows:           req.SpliceRows,
	}
	if req.Generations != nil {
		cfg.Generations = *req.Generations
	}
	if req.MutationRate != nil {
		cfg.MutationRate = *req.MutationRate
	}
	if req.CloneProbability != nil {
		cfg.CloneProbability = *req.CloneProbability
	}
	if req.RouletteProbability != nil {
		cfg.RouletteProbability = *req.RouletteProbability
	}

	if cfg.PopulationSize < 0 || cfg.GridSize < 0 || cfg.MaxGenerations < 0 || cfg.Generations < 0 {
		return model.RunConfig{}, fmt.Errorf("%w: population, grid, max generations and generations must be >= 0", ErrInvalidConfig)
	}
	if cfg.PopulationSize == 0 {
		cfg.PopulationSize = DefaultPopulationSize
	}
	if cfg.GridSize == 0 {
		cfg.GridSize = DefaultGridSize
	}
	if cfg.MaxGenerations == 0 {
		cfg.MaxGenerations = DefaultMaxGenerations
	}
	if cfg.Seeder == "" {
		cfg.Seeder = "localized"
	}
	if cfg.Selection == "" {
		cfg.Selection = "mixed"
	}
	if cfg.Crossover == "" {
		cfg.Crossover = "localized"
	}
	if cfg.Mutation == "" {
		cfg.Mutation = "live_flip"
	}
	if cfg.TournamentSize == 0 {
		cfg.TournamentSize = evo.DefaultTournamentSize
	}
	if cfg.RouletteBias == 0 {
		cfg.RouletteBias = evo.DefaultRouletteBias
	}
	if cfg.Density == 0 {
		cfg.Density = evo.DefaultDensity
	}
	if cfg.RegionSize == 0 {
		cfg.RegionSize = evo.DefaultRegionSize
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = evo.DefaultBlockSize
	}
	if cfg.SpliceRows == 0 {
		cfg.SpliceRows = evo.DefaultSpliceRows
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}

	for _, p := range []struct {
		name  string
		value float64
	}{
		{"mutation rate", cfg.MutationRate},
		{"clone probability", cfg.CloneProbability},
		{"roulette probability", cfg.RouletteProbability},
	} {
		if p.value < 0 || p.value > 1 {
			return model.RunConfig{}, fmt.Errorf("%w: %s must be in [0, 1]: %f", ErrInvalidConfig, p.name, p.value)
		}
	}
	if cfg.Density < 0 || cfg.Density > 1 {
		return model.RunConfig{}, fmt.Errorf("%w: density must be in (0, 1]: %f", ErrInvalidConfig, cfg.Density)
	}
	if cfg.TournamentSize < 1 {
		return model.RunConfig{}, fmt.Errorf("%w: tournament size must be >= 1", ErrInvalidConfig)
	}
	if cfg.RouletteBias < 0 {
		return model.RunConfig{}, fmt.Errorf("%w: roulette bias must be > 0", ErrInvalidConfig)
	}
	if cfg.RegionSize < 1 || cfg.BlockSize < 1 || cfg.SpliceRows < 1 {
		return model.RunConfig{}, fmt.Errorf("%w: region size, block size and splice rows must be >= 1", ErrInvalidConfig)
	}
	if cfg.Workers < 0 {
		return model.RunConfig{}, fmt.Errorf("%w: workers must be >= 0", ErrInvalidConfig)
	}
	for i, g := range req.Initial {
		if g.Size() != cfg.GridSize {
			return model.RunConfig{}, fmt.Errorf("%w: initial grid %d has size %d, want %d", ErrInvalidConfig, i, g.Size(), cfg.GridSize)
		}
	}
	if len(req.Initial) > 0 {
		cfg.PopulationSize = len(req.Initial)
	}
	return cfg, nil
}

func monitorConfigFromRunConfig(cfg model.RunConfig) (evo.MonitorConfig, error) {
	params := evo.OperatorParams{
		MutationRate:        cfg.MutationRate,
		TournamentSize:      cfg.TournamentSize,
		RouletteBias:        cfg.RouletteBias,
		RouletteProbability: cfg.RouletteProbability,
		SpliceRows:          cfg.SpliceRows,
		BlockSize:           cfg.BlockSize,
		Density:             cfg.Density,
		RegionSize:          cfg.RegionSize,
	}
	seeder, err := evo.ResolveSeeder(cfg.Seeder, params)
	if err != nil {
		return evo.MonitorConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	selector, err := evo.ResolveSelector(cfg.Selection, params)
	if err != nil {
		return evo.MonitorConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	crossover, err := evo.ResolveCrossover(cfg.Crossover, params)
	if err != nil {
		return evo.MonitorConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	mutator, err := evo.ResolveMutator(cfg.Mutation, params)
	if err != nil {
		return evo.MonitorConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return evo.MonitorConfig{
		Evaluator:            evo.MethuselahEvaluator{MaxGenerations: cfg.MaxGenerations},
		Seeder:               seeder,
		Selector:             selector,
		Crossover:            crossover,
		Mutator:              mutator,
		PopulationSize:       cfg.PopulationSize,
		GridSize:             cfg.GridSize,
		MaxGenerations:       cfg.MaxGenerations,
		Generations:          cfg.Generations,
		CloneProbability:     cfg.CloneProbability,
		MutateAfterCrossover: cfg.MutateAfterCrossover,
		Workers:              cfg.Workers,
		Seed:                 cfg.Seed,
	}, nil
}
