package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"methuselah/internal/evo"
	"methuselah/internal/life"
	"methuselah/internal/model"
	"methuselah/internal/storage"
)

var (
	ErrRunStopped = errors.New("run stopped")
	ErrRunActive  = errors.New("run is active")
)

type Config struct {
	Store  storage.Store
	Logger *slog.Logger
}

type EvolutionConfig struct {
	RunID        string
	CreatedAtUTC string
	// RunConfig is the user-facing description persisted with the record.
	RunConfig model.RunConfig
	Monitor   evo.MonitorConfig
	// Initial overrides the seeded population when non-empty.
	Initial []life.Grid
	TopK    int
}

type EvolutionResult struct {
	RunID    string
	Result   evo.RunResult
	Record   model.RunRecord
	TopFinal []evo.ScoredGrid
}

// Polis owns the store and the set of runs in flight.
type Polis struct {
	store storage.Store
	log   *slog.Logger

	mu      sync.RWMutex
	started bool
	runs    map[string]context.CancelCauseFunc
}

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Polis{
		store: cfg.Store,
		log:   logger,
		runs:  make(map[string]context.CancelCauseFunc),
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Reset stops every active run and clears the store.
func (p *Polis) Reset(ctx context.Context) error {
	p.mu.Lock()
	for runID, cancel := range p.runs {
		cancel(ErrRunStopped)
		delete(p.runs, runID)
	}
	p.mu.Unlock()

	if err := p.Init(ctx); err != nil {
		return err
	}
	return p.store.Reset(ctx)
}

// ListRuns returns the persisted run records, oldest first.
func (p *Polis) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	return p.store.ListRuns(ctx)
}

// DeleteRun removes a finished run and its diagnostics from the store.
// Active runs must be stopped first.
func (p *Polis) DeleteRun(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	_, active := p.runs[runID]
	p.mu.RUnlock()
	if active {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	if err := p.Init(ctx); err != nil {
		return err
	}
	return p.store.DeleteRun(ctx, runID)
}

func (p *Polis) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if cfg.RunID == "" {
		return EvolutionResult{}, fmt.Errorf("run id is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Monitor.Logger == nil {
		cfg.Monitor.Logger = p.log.With("run_id", cfg.RunID)
	}

	monitor, err := evo.NewPopulationMonitor(cfg.Monitor)
	if err != nil {
		return EvolutionResult{}, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if err := p.registerRun(cfg.RunID, cancel); err != nil {
		return EvolutionResult{}, err
	}
	defer p.unregisterRun(cfg.RunID)

	initial := cfg.Initial
	if len(initial) == 0 {
		initial, err = monitor.SeedPopulation()
		if err != nil {
			return EvolutionResult{}, err
		}
	}

	result, err := monitor.Run(runCtx, initial)
	if err != nil {
		if cause := context.Cause(runCtx); errors.Is(cause, ErrRunStopped) {
			return EvolutionResult{}, fmt.Errorf("%w: %s", ErrRunStopped, cfg.RunID)
		}
		return EvolutionResult{}, err
	}

	record := toRunRecord(cfg, result)
	if err := p.store.SaveRun(ctx, record); err != nil {
		return EvolutionResult{}, err
	}
	if err := p.store.SaveGenerationDiagnostics(ctx, cfg.RunID, result.Diagnostics); err != nil {
		return EvolutionResult{}, err
	}

	return EvolutionResult{
		RunID:    cfg.RunID,
		Result:   result,
		Record:   record,
		TopFinal: topCandidates(result.FinalPopulation, cfg.TopK),
	}, nil
}

// StopRun cancels an active run. The run returns ErrRunStopped and is not
// persisted.
func (p *Polis) StopRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	cancel, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	cancel(ErrRunStopped)
	return nil
}

func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Polis) registerRun(runID string, cancel context.CancelCauseFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	p.runs[runID] = cancel
	return nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func toRunRecord(cfg EvolutionConfig, result evo.RunResult) model.RunRecord {
	return storage.Stamp(model.RunRecord{
		ID:                  cfg.RunID,
		CreatedAtUTC:        cfg.CreatedAtUTC,
		Config:              cfg.RunConfig,
		BestGrid:            result.BestGrid.Rows(),
		BestFitness:         ToFitnessRecord(result.BestFitness),
		AverageByGeneration: append([]float64(nil), result.AverageByGeneration...),
		BestByGeneration:    append([]float64(nil), result.BestByGeneration...),
		Termination:         string(result.Termination),
		Evaluations:         result.Evaluations,
	})
}

func ToFitnessRecord(f evo.Fitness) model.FitnessRecord {
	return model.FitnessRecord{
		Generations:    f.Generations,
		PeakGrowth:     f.PeakGrowth,
		InitialAlive:   f.InitialAlive,
		FinalAlive:     f.FinalAlive,
		PeakGeneration: f.PeakGeneration,
	}
}

// topCandidates ranks by peak growth, keeping population order on ties.
func topCandidates(population []evo.ScoredGrid, k int) []evo.ScoredGrid {
	ranked := append([]evo.ScoredGrid(nil), population...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness.Better(ranked[j].Fitness)
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
