package methuselah

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"methuselah/internal/evo"
	"methuselah/internal/life"
	"methuselah/internal/metrics"
	"methuselah/internal/model"
	"methuselah/internal/platform"
	"methuselah/internal/stats"
	"methuselah/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "methuselah.db"

	DefaultPopulationSize  = 50
	DefaultGridSize        = 20
	DefaultMaxGenerations  = 500
	DefaultGenerations     = 10
	DefaultMutationRate    = 0.1
	DefaultEvaluationSteps = DefaultMaxGenerations
)

var (
	ErrInvalidConfig = evo.ErrInvalidConfig
	ErrRunNotFound   = errors.New("run not found")
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     *slog.Logger
	// Metrics, when set, receives one observation per generation of every run.
	Metrics *metrics.Collector
}

type Client struct {
	store   storage.Store
	polis   *platform.Polis
	log     *slog.Logger
	metrics *metrics.Collector

	runsDir    string
	exportsDir string
}

// RunRequest describes one evolutionary search. Zero values take defaults;
// pointer fields distinguish an explicit 0 from unset.
type RunRequest struct {
	// RunID names the run; empty generates a random one. An id that is
	// already recorded is rejected.
	RunID                string
	PopulationSize       int
	GridSize             int
	MaxGenerations       int
	Generations          *int
	MutationRate         *float64
	Seed                 int64
	Workers              int
	Seeder               string
	Selection            string
	Crossover            string
	Mutation             string
	CloneProbability     *float64
	MutateAfterCrossover bool
	TournamentSize       int
	RouletteBias         float64
	RouletteProbability  *float64
	Density              float64
	RegionSize           int
	BlockSize            int
	SpliceRows           int
	// Initial replaces the seeded population; every grid must be GridSize wide.
	Initial []life.Grid
	Plot    bool
}

type Candidate struct {
	Grid    life.Grid
	Fitness evo.Fitness
}

type RunSummary struct {
	RunID               string
	ArtifactsDir        string
	PlotPath            string
	BestGrid            life.Grid
	BestFitness         evo.Fitness
	AverageByGeneration []float64
	BestByGeneration    []float64
	Termination         string
	Evaluations         int
	Top                 []Candidate
}

// EvaluateRequest scores one grid. A nil MaxGenerations uses
// DefaultEvaluationSteps; an explicit 0 scores the grid without stepping.
type EvaluateRequest struct {
	Grid           life.Grid
	MaxGenerations *int
}

type SimulateRequest struct {
	Grid  life.Grid
	Steps int
}

type SimulateSummary struct {
	Final  life.Grid
	Frames []life.Frame
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	Seed           int64
	PopulationSize int
	GridSize       int
	Generations    int
	GenerationsRun int
	BestGrowth     int
	BestSurvival   int
	Termination    string
}

type RunDetailRequest struct {
	RunID  string
	Latest bool
}

type RunDetail struct {
	RunID               string
	Config              model.RunConfig
	BestGrid            life.Grid
	BestFitness         model.FitnessRecord
	AverageByGeneration []float64
	BestByGeneration    []float64
	Termination         string
	Diagnostics         []model.GenerationDiagnostics
	Best                stats.SeriesSummary
	Average             stats.SeriesSummary
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type PlotRequest struct {
	RunID   string
	Latest  bool
	OutPath string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		polis:      platform.NewPolis(platform.Config{Store: store, Logger: logger}),
		log:        logger,
		metrics:    opts.Metrics,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.polis.Init(ctx)
}

// Reset clears persisted runs from the store. Artifact directories are
// left in place.
func (c *Client) Reset(ctx context.Context) error {
	return c.polis.Reset(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg, err := materializeRunConfig(req)
	if err != nil {
		return RunSummary{}, err
	}
	monitorCfg, err := monitorConfigFromRunConfig(cfg)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.polis.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	now := time.Now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	} else if err := c.checkRunIDUnused(ctx, runID); err != nil {
		return RunSummary{}, err
	}
	if c.metrics != nil {
		monitorCfg.Observer = c.metrics.ForRun(runID)
	}

	c.log.Info("run started", "run_id", runID, "population", cfg.PopulationSize, "grid", cfg.GridSize, "generations", cfg.Generations, "seed", cfg.Seed)
	evolution, err := c.polis.RunEvolution(ctx, platform.EvolutionConfig{
		RunID:        runID,
		CreatedAtUTC: now.Format(time.RFC3339Nano),
		RunConfig:    cfg,
		Monitor:      monitorCfg,
		Initial:      req.Initial,
	})
	if err != nil {
		return RunSummary{}, err
	}
	result := evolution.Result
	if c.metrics != nil {
		c.metrics.RunFinished(string(result.Termination))
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{RunID: runID, RunConfig: cfg},
		History: stats.FitnessHistory{
			AverageByGeneration: result.AverageByGeneration,
			BestByGeneration:    result.BestByGeneration,
			BestFitness:         evolution.Record.BestFitness,
			Termination:         string(result.Termination),
		},
		BestGrid:              evolution.Record.BestGrid,
		GenerationDiagnostics: result.Diagnostics,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:          runID,
		PopulationSize: cfg.PopulationSize,
		GridSize:       cfg.GridSize,
		Generations:    cfg.Generations,
		GenerationsRun: len(result.BestByGeneration) - 1,
		Seed:           cfg.Seed,
		Workers:        cfg.Workers,
		Selection:      cfg.Selection,
		Crossover:      cfg.Crossover,
		Mutation:       cfg.Mutation,
		BestGrowth:     result.BestFitness.PeakGrowth,
		BestSurvival:   result.BestFitness.Generations,
		Termination:    string(result.Termination),
		CreatedAtUTC:   now.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:               runID,
		ArtifactsDir:        filepath.Clean(runDir),
		BestGrid:            result.BestGrid.Clone(),
		BestFitness:         result.BestFitness,
		AverageByGeneration: append([]float64(nil), result.AverageByGeneration...),
		BestByGeneration:    append([]float64(nil), result.BestByGeneration...),
		Termination:         string(result.Termination),
		Evaluations:         result.Evaluations,
	}
	for _, scored := range evolution.TopFinal {
		summary.Top = append(summary.Top, Candidate{Grid: scored.Grid.Clone(), Fitness: scored.Fitness})
	}
	if req.Plot {
		plotPath := filepath.Join(runDir, stats.FitnessPlotFile)
		if err := stats.PlotFitness(plotPath, runID, result.AverageByGeneration, result.BestByGeneration); err != nil {
			return RunSummary{}, err
		}
		summary.PlotPath = filepath.Clean(plotPath)
	}
	return summary, nil
}

func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (evo.Fitness, error) {
	if req.Grid.Size() == 0 {
		return evo.Fitness{}, fmt.Errorf("%w: grid is required", ErrInvalidConfig)
	}
	steps := DefaultEvaluationSteps
	if req.MaxGenerations != nil {
		steps = *req.MaxGenerations
	}
	if steps < 0 {
		return evo.Fitness{}, fmt.Errorf("%w: max generations must be >= 0", ErrInvalidConfig)
	}
	return evo.MethuselahEvaluator{MaxGenerations: steps}.Evaluate(ctx, req.Grid)
}

func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateSummary, error) {
	if err := ctx.Err(); err != nil {
		return SimulateSummary{}, err
	}
	if req.Grid.Size() == 0 {
		return SimulateSummary{}, fmt.Errorf("%w: grid is required", ErrInvalidConfig)
	}
	if req.Steps < 0 {
		return SimulateSummary{}, fmt.Errorf("%w: steps must be >= 0", ErrInvalidConfig)
	}
	final, frames := life.Run(req.Grid, req.Steps)
	return SimulateSummary{Final: final, Frames: frames}, nil
}

// Runs lists finished runs newest first. Runs recorded in the store but
// missing from the artifacts index are included.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	records, err := c.polis.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(entries)+len(records))
	indexed := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		indexed[e.RunID] = struct{}{}
		out = append(out, RunItem{
			RunID:          e.RunID,
			CreatedAtUTC:   e.CreatedAtUTC,
			Seed:           e.Seed,
			PopulationSize: e.PopulationSize,
			GridSize:       e.GridSize,
			Generations:    e.Generations,
			GenerationsRun: e.GenerationsRun,
			BestGrowth:     e.BestGrowth,
			BestSurvival:   e.BestSurvival,
			Termination:    e.Termination,
		})
	}
	for _, record := range records {
		if _, ok := indexed[record.ID]; ok {
			continue
		}
		out = append(out, runItemFromRecord(record))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAtUTC > out[j].CreatedAtUTC
	})
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// DeleteRun removes a finished run from the store and the artifacts
// directory. Active runs must be stopped first.
func (c *Client) DeleteRun(ctx context.Context, runID string) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if err := c.polis.Init(ctx); err != nil {
		return err
	}
	_, stored, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := c.polis.DeleteRun(ctx, runID); err != nil {
		return err
	}
	removed, err := stats.DeleteRunArtifacts(c.runsDir, runID)
	if err != nil {
		return err
	}
	if !stored && !removed {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	c.log.Info("run deleted", "run_id", runID)
	return nil
}

// RunDetail loads a finished run from the store, falling back to the
// artifacts directory for runs recorded by another process.
func (c *Client) RunDetail(ctx context.Context, req RunDetailRequest) (RunDetail, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return RunDetail{}, err
	}
	if err := c.polis.Init(ctx); err != nil {
		return RunDetail{}, err
	}

	detail, ok, err := c.runDetailFromStore(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok {
		detail, ok, err = c.runDetailFromArtifacts(runID)
		if err != nil {
			return RunDetail{}, err
		}
	}
	if !ok {
		return RunDetail{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	detail.Best = stats.SummarizeSeries(detail.BestByGeneration)
	detail.Average = stats.SummarizeSeries(detail.AverageByGeneration)
	return detail, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Plot renders the fitness curves of a finished run and returns the image
// path.
func (c *Client) Plot(ctx context.Context, req PlotRequest) (string, error) {
	detail, err := c.RunDetail(ctx, RunDetailRequest{RunID: req.RunID, Latest: req.Latest})
	if err != nil {
		return "", err
	}
	path := req.OutPath
	if path == "" {
		path = filepath.Join(c.runsDir, detail.RunID, stats.FitnessPlotFile)
	}
	if err := stats.PlotFitness(path, detail.RunID, detail.AverageByGeneration, detail.BestByGeneration); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

// StopRun cancels a run that is still in progress in this client. The
// stopped Run call returns an error wrapping platform.ErrRunStopped and
// leaves no record behind.
func (c *Client) StopRun(runID string) error {
	return c.polis.StopRun(runID)
}

// ActiveRuns returns the ids of runs in progress in this client, sorted.
func (c *Client) ActiveRuns() []string {
	return c.polis.ActiveRuns()
}

func LoadGrid(path string) (life.Grid, error) {
	return life.LoadFile(path)
}

func SaveGrid(path string, g life.Grid) error {
	return life.SaveFile(path, g)
}

// Float64 returns a pointer to v for the optional RunRequest fields.
func Float64(v float64) *float64 {
	return &v
}

// Int returns a pointer to v for the optional request fields.
func Int(v int) *int {
	return &v
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) checkRunIDUnused(ctx context.Context, runID string) error {
	_, stored, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	_, written, err := stats.ReadRunConfig(c.runsDir, runID)
	if err != nil {
		return err
	}
	if stored || written {
		return fmt.Errorf("%w: run %s already exists", ErrInvalidConfig, runID)
	}
	return nil
}

func runItemFromRecord(record model.RunRecord) RunItem {
	generationsRun := 0
	if n := len(record.BestByGeneration); n > 0 {
		generationsRun = n - 1
	}
	return RunItem{
		RunID:          record.ID,
		CreatedAtUTC:   record.CreatedAtUTC,
		Seed:           record.Config.Seed,
		PopulationSize: record.Config.PopulationSize,
		GridSize:       record.Config.GridSize,
		Generations:    record.Config.Generations,
		GenerationsRun: generationsRun,
		BestGrowth:     record.BestFitness.PeakGrowth,
		BestSurvival:   record.BestFitness.Generations,
		Termination:    record.Termination,
	}
}

func (c *Client) runDetailFromStore(ctx context.Context, runID string) (RunDetail, bool, error) {
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil || !ok {
		return RunDetail{}, false, err
	}
	grid, err := life.FromRows(record.BestGrid)
	if err != nil {
		return RunDetail{}, false, fmt.Errorf("decode best grid of run %s: %w", runID, err)
	}
	diagnostics, _, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return RunDetail{}, false, err
	}
	return RunDetail{
		RunID:               record.ID,
		Config:              record.Config,
		BestGrid:            grid,
		BestFitness:         record.BestFitness,
		AverageByGeneration: record.AverageByGeneration,
		BestByGeneration:    record.BestByGeneration,
		Termination:         record.Termination,
		Diagnostics:         diagnostics,
	}, true, nil
}

func (c *Client) runDetailFromArtifacts(runID string) (RunDetail, bool, error) {
	cfg, ok, err := stats.ReadRunConfig(c.runsDir, runID)
	if err != nil || !ok {
		return RunDetail{}, false, err
	}
	history, ok, err := stats.ReadFitnessHistory(c.runsDir, runID)
	if err != nil || !ok {
		return RunDetail{}, false, err
	}
	grid, err := life.LoadFile(stats.BestGridPath(c.runsDir, runID))
	if err != nil {
		return RunDetail{}, false, err
	}
	diagnostics, _, err := stats.ReadGenerationDiagnostics(c.runsDir, runID)
	if err != nil {
		return RunDetail{}, false, err
	}
	return RunDetail{
		RunID:               runID,
		Config:              cfg.RunConfig,
		BestGrid:            grid,
		BestFitness:         history.BestFitness,
		AverageByGeneration: history.AverageByGeneration,
		BestByGeneration:    history.BestByGeneration,
		Termination:         history.Termination,
		Diagnostics:         diagnostics,
	}, true, nil
}
