package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"methuselah/internal/evo"
	"methuselah/internal/life"
	"methuselah/pkg/methuselah"
)

// runFileConfig is the on-disk form of a run request. The same keys are
// accepted from JSON and TOML files.
type runFileConfig struct {
	PopulationSize       int      `json:"population_size" toml:"population_size"`
	GridSize             int      `json:"grid_size" toml:"grid_size"`
	MaxGenerations       int      `json:"max_generations" toml:"max_generations"`
	Generations          *int     `json:"generations" toml:"generations"`
	MutationRate         *float64 `json:"mutation_rate" toml:"mutation_rate"`
	Seed                 int64    `json:"seed" toml:"seed"`
	Workers              int      `json:"workers" toml:"workers"`
	Seeder               string   `json:"seeder" toml:"seeder"`
	Selection            string   `json:"selection" toml:"selection"`
	Crossover            string   `json:"crossover" toml:"crossover"`
	Mutation             string   `json:"mutation" toml:"mutation"`
	CloneProbability     *float64 `json:"clone_probability" toml:"clone_probability"`
	MutateAfterCrossover bool     `json:"mutate_after_crossover" toml:"mutate_after_crossover"`
	TournamentSize       int      `json:"tournament_size" toml:"tournament_size"`
	RouletteBias         float64  `json:"roulette_bias" toml:"roulette_bias"`
	RouletteProbability  *float64 `json:"roulette_probability" toml:"roulette_probability"`
	Density              float64  `json:"density" toml:"density"`
	RegionSize           int      `json:"region_size" toml:"region_size"`
	BlockSize            int      `json:"block_size" toml:"block_size"`
	SpliceRows           int      `json:"splice_rows" toml:"splice_rows"`
	Initial              string   `json:"initial" toml:"initial"`
	Plot                 bool     `json:"plot" toml:"plot"`
}

func loadRunFileConfig(path string) (runFileConfig, error) {
	var cfg runFileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return runFileConfig{}, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return runFileConfig{}, fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return runFileConfig{}, err
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return runFileConfig{}, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return runFileConfig{}, fmt.Errorf("unsupported config format %q: use .json or .toml", filepath.Ext(path))
	}
	return cfg, nil
}

func (c runFileConfig) request() methuselah.RunRequest {
	return methuselah.RunRequest{
		PopulationSize:       c.PopulationSize,
		GridSize:             c.GridSize,
		MaxGenerations:       c.MaxGenerations,
		Generations:          c.Generations,
		MutationRate:         c.MutationRate,
		Seed:                 c.Seed,
		Workers:              c.Workers,
		Seeder:               c.Seeder,
		Selection:            c.Selection,
		Crossover:            c.Crossover,
		Mutation:             c.Mutation,
		CloneProbability:     c.CloneProbability,
		MutateAfterCrossover: c.MutateAfterCrossover,
		TournamentSize:       c.TournamentSize,
		RouletteBias:         c.RouletteBias,
		RouletteProbability:  c.RouletteProbability,
		Density:              c.Density,
		RegionSize:           c.RegionSize,
		BlockSize:            c.BlockSize,
		SpliceRows:           c.SpliceRows,
		Plot:                 c.Plot,
	}
}

// runFlags holds the run command's request flags.
type runFlags struct {
	config               *string
	initial              *string
	pop                  *int
	grid                 *int
	maxGens              *int
	gens                 *int
	mutationRate         *float64
	seed                 *int64
	workers              *int
	seeder               *string
	selection            *string
	crossover            *string
	mutation             *string
	cloneProbability     *float64
	mutateAfterCrossover *bool
	tournamentSize       *int
	rouletteBias         *float64
	rouletteProbability  *float64
	density              *float64
	regionSize           *int
	blockSize            *int
	spliceRows           *int
	plot                 *bool
}

func bindRunFlags(fs *flag.FlagSet) runFlags {
	return runFlags{
		config:               fs.String("config", "", "run config file (.json or .toml); explicit flags override it"),
		initial:              fs.String("initial", "", "JSON file with the initial population as a list of grids"),
		pop:                  fs.Int("pop", methuselah.DefaultPopulationSize, "population size"),
		grid:                 fs.Int("grid", methuselah.DefaultGridSize, "grid side length"),
		maxGens:              fs.Int("max-gens", methuselah.DefaultMaxGenerations, "life steps per fitness evaluation"),
		gens:                 fs.Int("gens", methuselah.DefaultGenerations, "evolutionary generations"),
		mutationRate:         fs.Float64("mutation-rate", methuselah.DefaultMutationRate, "mutation rate"),
		seed:                 fs.Int64("seed", 1, "random seed"),
		workers:              fs.Int("workers", 1, "parallel fitness evaluators"),
		seeder:               fs.String("seeder", "localized", "initial population seeder: "+operatorChoices(evo.ListSeeders())),
		selection:            fs.String("selection", "mixed", "selection: "+operatorChoices(evo.ListSelectors())),
		crossover:            fs.String("crossover", "localized", "crossover: "+operatorChoices(evo.ListCrossovers())),
		mutation:             fs.String("mutation", "live_flip", "mutation: "+operatorChoices(evo.ListMutators())),
		cloneProbability:     fs.Float64("clone-prob", evo.DefaultCloneProbability, "probability an offspring is a mutated clone"),
		mutateAfterCrossover: fs.Bool("mutate-after-crossover", false, "also mutate crossover children"),
		tournamentSize:       fs.Int("tournament-size", 0, "tournament sample size (0 uses the default)"),
		rouletteBias:         fs.Float64("roulette-bias", 0, "rank bias exponent (0 uses the default)"),
		rouletteProbability:  fs.Float64("roulette-prob", evo.DefaultRouletteProbability, "probability mixed selection uses roulette"),
		density:              fs.Float64("density", 0, "dense seeder live probability (0 uses the default)"),
		regionSize:           fs.Int("region", 0, "localized seeder region side (0 uses the default)"),
		blockSize:            fs.Int("block", 0, "block crossover tile side (0 uses the default)"),
		spliceRows:           fs.Int("splice-rows", 0, "localized crossover max rows (0 uses the default)"),
		plot:                 fs.Bool("plot", false, "write fitness.png next to the run artifacts"),
	}
}

func operatorChoices(names []string) string {
	return strings.Join(names, "|")
}

// request builds the run request from the optional config file and the
// parsed flags. Flags only win over the file when set explicitly.
func (f runFlags) request(fs *flag.FlagSet) (methuselah.RunRequest, error) {
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) {
		set[fl.Name] = true
	})

	var req methuselah.RunRequest
	initialPath := ""
	useFlag := func(string) bool { return true }
	if *f.config != "" {
		fileCfg, err := loadRunFileConfig(*f.config)
		if err != nil {
			return methuselah.RunRequest{}, err
		}
		req = fileCfg.request()
		initialPath = fileCfg.Initial
		useFlag = func(name string) bool { return set[name] }
	}

	if useFlag("pop") {
		req.PopulationSize = *f.pop
	}
	if useFlag("grid") {
		req.GridSize = *f.grid
	}
	if useFlag("max-gens") {
		req.MaxGenerations = *f.maxGens
	}
	if useFlag("gens") {
		req.Generations = methuselah.Int(*f.gens)
	}
	if useFlag("mutation-rate") {
		req.MutationRate = methuselah.Float64(*f.mutationRate)
	}
	if useFlag("seed") {
		req.Seed = *f.seed
	}
	if useFlag("workers") {
		req.Workers = *f.workers
	}
	if useFlag("seeder") {
		req.Seeder = *f.seeder
	}
	if useFlag("selection") {
		req.Selection = *f.selection
	}
	if useFlag("crossover") {
		req.Crossover = *f.crossover
	}
	if useFlag("mutation") {
		req.Mutation = *f.mutation
	}
	if useFlag("clone-prob") {
		req.CloneProbability = methuselah.Float64(*f.cloneProbability)
	}
	if useFlag("mutate-after-crossover") {
		req.MutateAfterCrossover = *f.mutateAfterCrossover
	}
	if useFlag("tournament-size") {
		req.TournamentSize = *f.tournamentSize
	}
	if useFlag("roulette-bias") {
		req.RouletteBias = *f.rouletteBias
	}
	if useFlag("roulette-prob") {
		req.RouletteProbability = methuselah.Float64(*f.rouletteProbability)
	}
	if useFlag("density") {
		req.Density = *f.density
	}
	if useFlag("region") {
		req.RegionSize = *f.regionSize
	}
	if useFlag("block") {
		req.BlockSize = *f.blockSize
	}
	if useFlag("splice-rows") {
		req.SpliceRows = *f.spliceRows
	}
	if useFlag("plot") {
		req.Plot = *f.plot
	}
	if set["initial"] {
		initialPath = *f.initial
	}

	if initialPath != "" {
		initial, err := loadInitialPopulation(initialPath)
		if err != nil {
			return methuselah.RunRequest{}, err
		}
		req.Initial = initial
		if !set["grid"] {
			req.GridSize = initial[0].Size()
		}
	}
	return req, nil
}

func loadInitialPopulation(path string) ([]life.Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var grids []life.Grid
	if err := json.Unmarshal(data, &grids); err != nil {
		return nil, fmt.Errorf("decode initial population %s: %w", path, err)
	}
	if len(grids) == 0 {
		return nil, errors.New("initial population file has no grids")
	}
	return grids, nil
}
