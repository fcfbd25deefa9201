package methuselah

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"methuselah/internal/evo"
	"methuselah/internal/life"
	"methuselah/internal/metrics"
	"methuselah/internal/platform"
)

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	base := t.TempDir()
	if opts.RunsDir == "" {
		opts.RunsDir = filepath.Join(base, "runs")
	}
	if opts.ExportsDir == "" {
		opts.ExportsDir = filepath.Join(base, "exports")
	}
	if opts.StoreKind == "" {
		opts.StoreKind = "memory"
	}
	client, err := New(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func tromino(t *testing.T, size int) life.Grid {
	t.Helper()
	g, err := life.NewGrid(size)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	g.Set(1, 1, true)
	g.Set(2, 1, true)
	g.Set(1, 2, true)
	return g
}

func TestClientRunRunsAndExport(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, Options{})

	summary, err := client.Run(ctx, RunRequest{
		PopulationSize: 10,
		GridSize:       10,
		MaxGenerations: 50,
		Generations:    Int(5),
		MutationRate:   Float64(0.1),
		Seed:           42,
		Plot:           true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := uuid.Parse(summary.RunID); err != nil {
		t.Fatalf("expected uuid run id, got %q: %v", summary.RunID, err)
	}
	if summary.BestGrid.Size() != 10 {
		t.Fatalf("unexpected best grid size %d", summary.BestGrid.Size())
	}
	n := len(summary.BestByGeneration)
	if n == 0 || n > 6 || len(summary.AverageByGeneration) != n {
		t.Fatalf("unexpected series lengths: avg=%d best=%d", len(summary.AverageByGeneration), n)
	}
	if summary.Termination == string(evo.TerminationBudget) && n != 6 {
		t.Fatalf("budget termination must produce 6 entries, got %d", n)
	}
	if _, err := os.Stat(summary.PlotPath); err != nil {
		t.Fatalf("expected plot file: %v", err)
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID || runs[0].GenerationsRun != n-1 {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	detail, err := client.RunDetail(ctx, RunDetailRequest{Latest: true})
	if err != nil {
		t.Fatalf("run detail: %v", err)
	}
	if !detail.BestGrid.Equal(summary.BestGrid) || !reflect.DeepEqual(detail.BestByGeneration, summary.BestByGeneration) {
		t.Fatalf("detail does not match run summary: %+v", detail)
	}
	if detail.Best.Final != float64(summary.BestFitness.PeakGrowth) {
		t.Fatalf("unexpected best summary: %+v", detail.Best)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, file := range []string{"config.json", "fitness_history.json", "fitness_series.csv", "best_grid.json", "fitness.png"} {
		if _, err := os.Stat(filepath.Join(exported.Directory, file)); err != nil {
			t.Fatalf("expected exported %s: %v", file, err)
		}
	}
}

func TestClientRunDetailFromArtifacts(t *testing.T) {
	ctx := context.Background()
	runsDir := filepath.Join(t.TempDir(), "runs")
	first := newTestClient(t, Options{RunsDir: runsDir})
	summary, err := first.Run(ctx, RunRequest{PopulationSize: 8, GridSize: 8, MaxGenerations: 40, Generations: Int(3), Seed: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	second := newTestClient(t, Options{RunsDir: runsDir})
	detail, err := second.RunDetail(ctx, RunDetailRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("run detail: %v", err)
	}
	if !detail.BestGrid.Equal(summary.BestGrid) || detail.Config.GridSize != 8 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if len(detail.Diagnostics) != len(summary.BestByGeneration) {
		t.Fatalf("expected one diagnostics entry per generation, got %d", len(detail.Diagnostics))
	}

	plotPath, err := second.Plot(ctx, PlotRequest{RunID: summary.RunID, OutPath: filepath.Join(t.TempDir(), "curve.png")})
	if err != nil {
		t.Fatalf("plot: %v", err)
	}
	if _, err := os.Stat(plotPath); err != nil {
		t.Fatalf("expected plot: %v", err)
	}

	if _, err := second.RunDetail(ctx, RunDetailRequest{RunID: "missing"}); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
}

func TestClientRunWithStableInitialPopulation(t *testing.T) {
	client := newTestClient(t, Options{})
	initial := make([]life.Grid, 10)
	for i := range initial {
		initial[i] = tromino(t, 10)
	}

	summary, err := client.Run(context.Background(), RunRequest{
		GridSize:       10,
		MaxGenerations: 50,
		Generations:    Int(5),
		MutationRate:   Float64(0.1),
		Crossover:      "row",
		Initial:        initial,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []float64{1, 1, 1, 1, 1, 1}
	if !reflect.DeepEqual(summary.BestByGeneration, want) || !reflect.DeepEqual(summary.AverageByGeneration, want) {
		t.Fatalf("unexpected series: best=%v avg=%v", summary.BestByGeneration, summary.AverageByGeneration)
	}
	if summary.Termination != string(evo.TerminationBudget) {
		t.Fatalf("expected budget termination, got %s", summary.Termination)
	}
	if len(summary.Top) == 0 || summary.Top[0].Fitness.PeakGrowth != 1 {
		t.Fatalf("unexpected top candidates: %+v", summary.Top)
	}
}

func TestClientRunRejectsInvalidConfig(t *testing.T) {
	client := newTestClient(t, Options{})
	cases := map[string]RunRequest{
		"mutation above one":  {MutationRate: Float64(1.5)},
		"mutation below zero": {MutationRate: Float64(-0.1)},
		"negative population": {PopulationSize: -1},
		"negative grid":       {GridSize: -3},
		"clone probability":   {CloneProbability: Float64(2)},
		"roulette":            {RouletteProbability: Float64(-1)},
		"tournament":          {TournamentSize: -2},
		"workers":             {Workers: -1},
		"unknown selection":   {Selection: "lottery"},
		"unknown mutation":    {Mutation: "swap"},
		"initial size":        {GridSize: 6, Initial: []life.Grid{life.MustGrid(5)}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := client.Run(context.Background(), req); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected invalid config, got %v", err)
			}
		})
	}
	_, err := client.Run(context.Background(), RunRequest{Crossover: "zip"})
	if !errors.Is(err, evo.ErrOperatorNotFound) {
		t.Fatalf("expected operator not found, got %v", err)
	}
	runs, err := client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("rejected runs must not be recorded: %+v", runs)
	}
}

func TestMaterializeRunConfigDefaults(t *testing.T) {
	cfg, err := materializeRunConfig(RunRequest{})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if cfg.PopulationSize != DefaultPopulationSize || cfg.GridSize != DefaultGridSize || cfg.MaxGenerations != DefaultMaxGenerations || cfg.Generations != DefaultGenerations {
		t.Fatalf("unexpected size defaults: %+v", cfg)
	}
	if cfg.MutationRate != DefaultMutationRate || cfg.CloneProbability != evo.DefaultCloneProbability || cfg.RouletteProbability != evo.DefaultRouletteProbability {
		t.Fatalf("unexpected probability defaults: %+v", cfg)
	}
	if cfg.Selection != "mixed" || cfg.Crossover != "localized" || cfg.Mutation != "live_flip" || cfg.Seeder != "localized" {
		t.Fatalf("unexpected operator defaults: %+v", cfg)
	}

	explicit, err := materializeRunConfig(RunRequest{MutationRate: Float64(0), CloneProbability: Float64(0)})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if explicit.MutationRate != 0 || explicit.CloneProbability != 0 {
		t.Fatalf("explicit zero probabilities were overridden: %+v", explicit)
	}

	withInitial, err := materializeRunConfig(RunRequest{GridSize: 4, Initial: []life.Grid{life.MustGrid(4), life.MustGrid(4)}})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if withInitial.PopulationSize != 2 {
		t.Fatalf("expected population size from initial grids, got %d", withInitial.PopulationSize)
	}
}

func TestClientEvaluateAndSimulate(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, Options{})

	fitness, err := client.Evaluate(ctx, EvaluateRequest{Grid: tromino(t, 6), MaxGenerations: Int(50)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if fitness.Generations != 2 || fitness.PeakGrowth != 1 {
		t.Fatalf("unexpected fitness: %+v", fitness)
	}
	if _, err := client.Evaluate(ctx, EvaluateRequest{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config for missing grid, got %v", err)
	}
	if _, err := client.Evaluate(ctx, EvaluateRequest{Grid: tromino(t, 6), MaxGenerations: Int(-1)}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config for negative budget, got %v", err)
	}

	blinker := life.MustGrid(5)
	blinker.Set(1, 2, true)
	blinker.Set(2, 2, true)
	blinker.Set(3, 2, true)
	sim, err := client.Simulate(ctx, SimulateRequest{Grid: blinker, Steps: 2})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(sim.Frames) != 3 || !sim.Final.Equal(blinker) {
		t.Fatalf("unexpected simulation: frames=%+v\n%s", sim.Frames, sim.Final)
	}
	if _, err := client.Simulate(ctx, SimulateRequest{Grid: blinker, Steps: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config for negative steps, got %v", err)
	}
}

func TestGridFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.json")
	g := tromino(t, 4)
	if err := SaveGrid(path, g); err != nil {
		t.Fatalf("save grid: %v", err)
	}
	loaded, err := LoadGrid(path)
	if err != nil {
		t.Fatalf("load grid: %v", err)
	}
	if !loaded.Equal(g) {
		t.Fatalf("round trip changed grid:\n%s", loaded)
	}
}

func TestClientRunReportsMetrics(t *testing.T) {
	collector := metrics.NewCollector()
	client := newTestClient(t, Options{Metrics: collector})
	if _, err := client.Run(context.Background(), RunRequest{PopulationSize: 6, GridSize: 8, Generations: Int(2), Seed: 9}); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, name := range []string{"methuselah_runs_total", "methuselah_best_growth"} {
		got, err := testutil.GatherAndCount(collector.Registry(), name)
		if err != nil {
			t.Fatalf("gather %s: %v", name, err)
		}
		if got != 1 {
			t.Fatalf("expected one %s series, got %d", name, got)
		}
	}
}

func TestClientExportRequiresRun(t *testing.T) {
	client := newTestClient(t, Options{})
	if _, err := client.Export(context.Background(), ExportRequest{}); err == nil {
		t.Fatal("expected error without run id or latest")
	}
	if _, err := client.Export(context.Background(), ExportRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected error for both run id and latest")
	}
	if _, err := client.Export(context.Background(), ExportRequest{Latest: true}); err == nil {
		t.Fatal("expected error when no runs exist")
	}
}

func TestClientEvaluateStepBudget(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, Options{})

	unset, err := client.Evaluate(ctx, EvaluateRequest{Grid: tromino(t, 6)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if unset.Generations != 2 || unset.PeakGrowth != 1 {
		t.Fatalf("unset budget should use the default step cap, got %+v", unset)
	}

	zero, err := client.Evaluate(ctx, EvaluateRequest{Grid: tromino(t, 6), MaxGenerations: Int(0)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := evo.Fitness{Generations: 0, PeakGrowth: 0, InitialAlive: 3, FinalAlive: 3, PeakGeneration: 0}
	if zero != want {
		t.Fatalf("zero budget must not step the grid: got %+v want %+v", zero, want)
	}
}

func TestClientRunZeroGenerationsScoresInitialPopulationOnly(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, Options{})

	summary, err := client.Run(ctx, RunRequest{
		PopulationSize: 6,
		GridSize:       8,
		MaxGenerations: 40,
		Generations:    Int(0),
		Seed:           5,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.BestByGeneration) != 1 || len(summary.AverageByGeneration) != 1 {
		t.Fatalf("expected only the initial generation, got best=%v avg=%v", summary.BestByGeneration, summary.AverageByGeneration)
	}
	if summary.Termination != string(evo.TerminationBudget) || summary.Evaluations != 6 {
		t.Fatalf("unexpected termination=%s evaluations=%d", summary.Termination, summary.Evaluations)
	}

	detail, err := client.RunDetail(ctx, RunDetailRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("run detail: %v", err)
	}
	if detail.Config.Generations != 0 {
		t.Fatalf("explicit zero generations was overridden: %d", detail.Config.Generations)
	}

	cfg, err := materializeRunConfig(RunRequest{Generations: Int(-1)})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config for negative generations, got %+v %v", cfg, err)
	}
}

func TestClientStopRun(t *testing.T) {
	client := newTestClient(t, Options{})
	initial := make([]life.Grid, 10)
	for i := range initial {
		initial[i] = tromino(t, 10)
	}

	done := make(chan error, 1)
	go func() {
		_, err := client.Run(context.Background(), RunRequest{
			RunID:          "long-search",
			GridSize:       10,
			MaxGenerations: 10,
			Generations:    Int(200_000),
			MutationRate:   Float64(0),
			Crossover:      "row",
			Initial:        initial,
		})
		done <- err
	}()

	deadline := time.After(5 * time.Second)
	for len(client.ActiveRuns()) == 0 {
		select {
		case err := <-done:
			t.Fatalf("run ended before it could be stopped: %v", err)
		case <-deadline:
			t.Fatal("run never became active")
		case <-time.After(time.Millisecond):
		}
	}
	if got := client.ActiveRuns(); !reflect.DeepEqual(got, []string{"long-search"}) {
		t.Fatalf("unexpected active runs: %v", got)
	}
	if err := client.StopRun("long-search"); err != nil {
		t.Fatalf("stop run: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, platform.ErrRunStopped) {
			t.Fatalf("expected stopped run error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
	if len(client.ActiveRuns()) != 0 {
		t.Fatalf("stopped run still active: %v", client.ActiveRuns())
	}
	runs, err := client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("stopped run must not be recorded: %+v", runs)
	}
	if err := client.StopRun("long-search"); err == nil {
		t.Fatal("expected error stopping an inactive run")
	}
}

func TestClientRunRejectsReusedRunID(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, Options{})
	req := RunRequest{RunID: "fixed", PopulationSize: 6, GridSize: 8, Generations: Int(1), Seed: 2}

	summary, err := client.Run(ctx, req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID != "fixed" {
		t.Fatalf("expected requested run id, got %q", summary.RunID)
	}
	if _, err := client.Run(ctx, req); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected reused run id to be rejected, got %v", err)
	}
}

func TestClientRunsIncludesStoreOnlyRecords(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, Options{})
	first, err := client.Run(ctx, RunRequest{PopulationSize: 6, GridSize: 8, Generations: Int(1), Seed: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := client.Run(ctx, RunRequest{PopulationSize: 6, GridSize: 8, Generations: Int(2), Seed: 2})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := os.Remove(filepath.Join(client.runsDir, "run_index.json")); err != nil {
		t.Fatalf("remove index: %v", err)
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != second.RunID || runs[1].RunID != first.RunID {
		t.Fatalf("expected store records newest first, got %+v", runs)
	}
	if runs[0].Generations != 2 || runs[0].GenerationsRun != len(second.BestByGeneration)-1 || runs[0].Seed != 2 {
		t.Fatalf("unexpected store-backed item: %+v", runs[0])
	}

	limited, err := client.Runs(ctx, RunsRequest{Limit: 1})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(limited) != 1 || limited[0].RunID != second.RunID {
		t.Fatalf("unexpected limited runs: %+v", limited)
	}
}

func TestClientDeleteRun(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, Options{})
	kept, err := client.Run(ctx, RunRequest{PopulationSize: 6, GridSize: 8, Generations: Int(1), Seed: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	dropped, err := client.Run(ctx, RunRequest{PopulationSize: 6, GridSize: 8, Generations: Int(1), Seed: 2})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := client.DeleteRun(ctx, dropped.RunID); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, err := os.Stat(dropped.ArtifactsDir); !os.IsNotExist(err) {
		t.Fatalf("expected artifacts removed, got %v", err)
	}
	if _, err := client.RunDetail(ctx, RunDetailRequest{RunID: dropped.RunID}); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected deleted run to be gone, got %v", err)
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != kept.RunID {
		t.Fatalf("expected only the kept run, got %+v", runs)
	}

	if err := client.DeleteRun(ctx, dropped.RunID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected run not found on second delete, got %v", err)
	}
	if err := client.DeleteRun(ctx, ""); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestClientRunEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, Options{})

	summary, err := client.Run(ctx, RunRequest{
		PopulationSize: 10,
		GridSize:       10,
		MaxGenerations: 50,
		Generations:    Int(5),
		MutationRate:   Float64(0.1),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	rows := summary.BestGrid.Rows()
	if len(rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(rows))
	}
	for y, row := range rows {
		if len(row) != 10 {
			t.Fatalf("row %d has %d cells, want 10", y, len(row))
		}
		for x, cell := range row {
			if cell != 0 && cell != 1 {
				t.Fatalf("cell (%d,%d) = %d, want 0 or 1", x, y, cell)
			}
		}
	}

	n := len(summary.BestByGeneration)
	if len(summary.AverageByGeneration) != n {
		t.Fatalf("series lengths differ: avg=%d best=%d", len(summary.AverageByGeneration), n)
	}
	switch evo.Termination(summary.Termination) {
	case evo.TerminationBudget:
		if n != 6 {
			t.Fatalf("budget termination must record 6 generations, got %d", n)
		}
	case evo.TerminationCollapsed, evo.TerminationUnderflow:
		if n < 1 || n >= 6 {
			t.Fatalf("early termination %s recorded %d generations", summary.Termination, n)
		}
	default:
		t.Fatalf("unexpected termination %q", summary.Termination)
	}
}
