package evo

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"methuselah/internal/life"
	"methuselah/internal/model"
)

const (
	DefaultCloneProbability = 0.7
	MinPopulation           = 3
)

// Termination names why a run stopped.
type Termination string

const (
	TerminationBudget    Termination = "budget"
	TerminationCollapsed Termination = "collapsed"
	TerminationUnderflow Termination = "underflow"
)

// GenerationObserver receives diagnostics as each generation is scored.
type GenerationObserver interface {
	ObserveGeneration(diag model.GenerationDiagnostics)
}

type RunResult struct {
	BestGrid            life.Grid
	BestFitness         Fitness
	AverageByGeneration []float64
	BestByGeneration    []float64
	Diagnostics         []model.GenerationDiagnostics
	FinalPopulation     []ScoredGrid
	Termination         Termination
	Evaluations         int
}

type MonitorConfig struct {
	Evaluator            Evaluator
	Seeder               Seeder
	Selector             Selector
	Crossover            Crossover
	Mutator              Mutator
	PopulationSize       int
	GridSize             int
	MaxGenerations       int
	Generations          int
	CloneProbability     float64
	MutateAfterCrossover bool
	MinPopulation        int
	Workers              int
	Seed                 int64
	Logger               *slog.Logger
	Observer             GenerationObserver
}

// PopulationMonitor owns the population and the best-known candidate for
// one run. It is not safe for concurrent use.
type PopulationMonitor struct {
	cfg MonitorConfig
	rng *rand.Rand
	log *slog.Logger
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("%w: population size must be > 0", ErrInvalidConfig)
	}
	if cfg.GridSize <= 0 {
		return nil, fmt.Errorf("%w: grid size must be > 0", ErrInvalidConfig)
	}
	if cfg.MaxGenerations <= 0 {
		return nil, fmt.Errorf("%w: max generations must be > 0", ErrInvalidConfig)
	}
	if cfg.Generations < 0 {
		return nil, fmt.Errorf("%w: generations must be >= 0", ErrInvalidConfig)
	}
	if cfg.CloneProbability < 0 || cfg.CloneProbability > 1 {
		return nil, fmt.Errorf("%w: clone probability must be in [0, 1]", ErrInvalidConfig)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must be >= 0", ErrInvalidConfig)
	}
	if cfg.Selector == nil {
		return nil, fmt.Errorf("%w: selector is required", ErrInvalidConfig)
	}
	if cfg.Crossover == nil {
		return nil, fmt.Errorf("%w: crossover is required", ErrInvalidConfig)
	}
	if cfg.Mutator == nil {
		return nil, fmt.Errorf("%w: mutator is required", ErrInvalidConfig)
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = MethuselahEvaluator{MaxGenerations: cfg.MaxGenerations}
	}
	if cfg.Seeder == nil {
		cfg.Seeder = LocalizedSeeder{}
	}
	if cfg.MinPopulation <= 0 {
		cfg.MinPopulation = MinPopulation
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &PopulationMonitor{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		log: logger,
	}, nil
}

// SeedPopulation draws the initial population from the configured seeder
// using the run's random stream.
func (m *PopulationMonitor) SeedPopulation() ([]life.Grid, error) {
	return m.cfg.Seeder.Seed(m.rng, m.cfg.PopulationSize, m.cfg.GridSize)
}

func (m *PopulationMonitor) Run(ctx context.Context, initial []life.Grid) (RunResult, error) {
	if len(initial) == 0 {
		return RunResult{}, fmt.Errorf("initial population is required")
	}
	population := make([]life.Grid, 0, len(initial))
	for i, g := range initial {
		if g.Size() != m.cfg.GridSize {
			return RunResult{}, fmt.Errorf("%w: initial grid %d has size %d, want %d", ErrInvalidConfig, i, g.Size(), m.cfg.GridSize)
		}
		population = append(population, g.Clone())
	}

	scored, err := m.evaluatePopulation(ctx, population)
	if err != nil {
		return RunResult{}, err
	}
	evaluations := len(scored)
	best := bestScored(scored)

	result := RunResult{
		AverageByGeneration: make([]float64, 0, m.cfg.Generations+1),
		BestByGeneration:    make([]float64, 0, m.cfg.Generations+1),
		Diagnostics:         make([]model.GenerationDiagnostics, 0, m.cfg.Generations+1),
		Termination:         TerminationBudget,
	}
	m.record(&result, summarizeGeneration(0, scored, len(scored), best, evaluations))

	for gen := 1; gen <= m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		survivors := FilterViable(scored, m.cfg.MaxGenerations)
		if len(survivors) == 0 {
			result.Termination = TerminationCollapsed
			break
		}

		pool, err := m.cfg.Selector.Select(m.rng, survivors)
		if err != nil {
			return RunResult{}, fmt.Errorf("select generation %d: %w", gen, err)
		}
		if len(pool) == 0 {
			result.Termination = TerminationCollapsed
			break
		}
		offspring, err := m.breed(pool, len(survivors))
		if err != nil {
			return RunResult{}, fmt.Errorf("breed generation %d: %w", gen, err)
		}
		offspring = append(offspring, best.Grid.Clone())

		scored, err = m.evaluatePopulation(ctx, offspring)
		if err != nil {
			return RunResult{}, err
		}
		evaluations += len(scored)

		if candidate := bestScored(scored); candidate.Fitness.Better(best.Fitness) {
			best = candidate
		}
		m.record(&result, summarizeGeneration(gen, scored, len(survivors), best, evaluations))

		if len(scored) < m.cfg.MinPopulation {
			result.Termination = TerminationUnderflow
			break
		}
	}

	result.BestGrid = best.Grid.Clone()
	result.BestFitness = best.Fitness
	result.FinalPopulation = scored
	result.Evaluations = evaluations
	m.log.Info("run finished",
		"termination", string(result.Termination),
		"generations", len(result.BestByGeneration)-1,
		"best_growth", best.Fitness.PeakGrowth,
		"best_survival", best.Fitness.Generations,
		"evaluations", evaluations,
	)
	return result, nil
}

func (m *PopulationMonitor) record(result *RunResult, diag model.GenerationDiagnostics) {
	result.AverageByGeneration = append(result.AverageByGeneration, diag.MeanGrowth)
	result.BestByGeneration = append(result.BestByGeneration, float64(diag.BestGrowth))
	result.Diagnostics = append(result.Diagnostics, diag)
	m.log.Debug("generation scored",
		"generation", diag.Generation,
		"population", diag.PopulationSize,
		"survivors", diag.Survivors,
		"best_growth", diag.BestGrowth,
		"mean_growth", diag.MeanGrowth,
	)
	if m.cfg.Observer != nil {
		m.cfg.Observer.ObserveGeneration(diag)
	}
}

func (m *PopulationMonitor) evaluatePopulation(ctx context.Context, population []life.Grid) ([]ScoredGrid, error) {
	scored := make([]ScoredGrid, len(population))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i := range population {
		g.Go(func() error {
			fitness, err := m.cfg.Evaluator.Evaluate(gctx, population[i])
			if err != nil {
				return fmt.Errorf("evaluate candidate %d: %w", i, err)
			}
			scored[i] = ScoredGrid{Grid: population[i], Fitness: fitness}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}

func (m *PopulationMonitor) breed(pool []life.Grid, count int) ([]life.Grid, error) {
	next := make([]life.Grid, 0, count+1)
	for i := 0; i < count; i++ {
		first := pool[m.rng.Intn(len(pool))]
		if m.rng.Float64() < m.cfg.CloneProbability {
			next = append(next, m.cfg.Mutator.Mutate(m.rng, first))
			continue
		}
		second := pool[m.rng.Intn(len(pool))]
		child, err := m.cfg.Crossover.Cross(m.rng, first, second)
		if err != nil {
			return nil, err
		}
		if m.cfg.MutateAfterCrossover {
			child = m.cfg.Mutator.Mutate(m.rng, child)
		}
		next = append(next, child)
	}
	return next, nil
}

// bestScored returns a detached copy of the first candidate with the
// highest peak growth.
func bestScored(scored []ScoredGrid) ScoredGrid {
	if len(scored) == 0 {
		return ScoredGrid{}
	}
	best := scored[0]
	for _, item := range scored[1:] {
		if item.Fitness.Better(best.Fitness) {
			best = item
		}
	}
	return ScoredGrid{Grid: best.Grid.Clone(), Fitness: best.Fitness}
}
