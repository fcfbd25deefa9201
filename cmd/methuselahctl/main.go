package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"methuselah/internal/life"
	"methuselah/internal/metrics"
	"methuselah/internal/storage"
	"methuselah/pkg/methuselah"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "evaluate":
		return runEvaluate(ctx, args[1:])
	case "simulate":
		return runSimulate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "plot":
		return runPlot(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// clientFlags are shared by every command that opens a client.
type clientFlags struct {
	store    *string
	dbPath   *string
	runsDir  *string
	logLevel *string
}

func bindClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		store:    fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite"),
		dbPath:   fs.String("db-path", "methuselah.db", "sqlite database path"),
		runsDir:  fs.String("runs-dir", runsDir, "run artifacts directory"),
		logLevel: fs.String("log-level", "warn", "log level: debug|info|warn|error"),
	}
}

func (f clientFlags) open(collector *metrics.Collector) (*methuselah.Client, error) {
	logger, err := newLogger(*f.logLevel)
	if err != nil {
		return nil, err
	}
	return methuselah.New(methuselah.Options{
		StoreKind:  *f.store,
		DBPath:     *f.dbPath,
		RunsDir:    *f.runsDir,
		ExportsDir: exportsDir,
		Logger:     logger,
		Metrics:    collector,
	})
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cf := bindClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *cf.store)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	cf := bindClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Reset(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *cf.store)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cf := bindClientFlags(fs)
	rf := bindRunFlags(fs)
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address while running")
	metricsLinger := fs.Duration("metrics-linger", 0, "keep serving metrics this long after the run")
	showBest := fs.Bool("show-best", false, "print the best grid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := rf.request(fs)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if *metricsAddr != "" {
		collector = metrics.NewCollector()
		shutdown, err := serveMetrics(*metricsAddr, collector)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	client, err := cf.open(collector)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s termination=%s generations_run=%d\n",
		summary.RunID, summary.Termination, len(summary.BestByGeneration)-1)
	for i := range summary.BestByGeneration {
		fmt.Printf("generation=%d average_growth=%.4f best_growth=%.0f\n",
			i, summary.AverageByGeneration[i], summary.BestByGeneration[i])
	}
	printFitness(summary.BestFitness.Generations, summary.BestFitness.PeakGrowth,
		summary.BestFitness.InitialAlive, summary.BestFitness.FinalAlive, summary.BestFitness.PeakGeneration)
	fmt.Printf("evaluations=%s\n", humanize.Comma(int64(summary.Evaluations)))
	fmt.Printf("artifacts_dir=%s\n", summary.ArtifactsDir)
	if summary.PlotPath != "" {
		fmt.Printf("plot=%s\n", summary.PlotPath)
	}
	if *showBest {
		fmt.Print(renderGrid(summary.BestGrid, useColor("auto")))
	}

	if collector != nil && *metricsLinger > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(*metricsLinger):
		}
	}
	return nil
}

func runEvaluate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	gridPath := fs.String("grid", "", "grid JSON file")
	maxGens := fs.Int("max-gens", methuselah.DefaultEvaluationSteps, "life steps to simulate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *gridPath == "" {
		return errors.New("evaluate requires --grid")
	}

	grid, err := methuselah.LoadGrid(*gridPath)
	if err != nil {
		return err
	}
	client, err := methuselah.New(methuselah.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fitness, err := client.Evaluate(ctx, methuselah.EvaluateRequest{Grid: grid, MaxGenerations: methuselah.Int(*maxGens)})
	if err != nil {
		return err
	}
	fmt.Printf("grid=%s size=%d valid=%t\n", *gridPath, grid.Size(), fitness.Valid())
	printFitness(fitness.Generations, fitness.PeakGrowth, fitness.InitialAlive, fitness.FinalAlive, fitness.PeakGeneration)
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	gridPath := fs.String("grid", "", "grid JSON file")
	steps := fs.Int("steps", 10, "life steps to advance")
	outPath := fs.String("out", "", "write the final grid to this JSON file")
	render := fs.Bool("render", false, "print the final grid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *gridPath == "" {
		return errors.New("simulate requires --grid")
	}

	grid, err := methuselah.LoadGrid(*gridPath)
	if err != nil {
		return err
	}
	client, err := methuselah.New(methuselah.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Simulate(ctx, methuselah.SimulateRequest{Grid: grid, Steps: *steps})
	if err != nil {
		return err
	}
	for _, frame := range summary.Frames {
		fmt.Printf("generation=%d alive=%d\n", frame.Generation, frame.Alive)
	}
	fmt.Printf("final_alive=%d\n", summary.Final.LiveCount())
	if *outPath != "" {
		if err := methuselah.SaveGrid(*outPath, summary.Final); err != nil {
			return err
		}
		fmt.Printf("saved=%s\n", *outPath)
	}
	if *render {
		fmt.Print(renderGrid(summary.Final, useColor("auto")))
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	cf := bindClientFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, methuselah.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		type runsItem struct {
			RunID          string `json:"run_id"`
			CreatedAtUTC   string `json:"created_at_utc"`
			Seed           int64  `json:"seed"`
			PopulationSize int    `json:"population_size"`
			GridSize       int    `json:"grid_size"`
			Generations    int    `json:"generations"`
			GenerationsRun int    `json:"generations_run"`
			BestGrowth     int    `json:"best_growth"`
			BestSurvival   int    `json:"best_survival"`
			Termination    string `json:"termination"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem(item))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	for _, item := range items {
		fmt.Printf("run_id=%s created=%q seed=%d pop=%d grid=%d gens=%d/%d best_growth=%d best_survival=%d termination=%s\n",
			item.RunID,
			runAge(item.CreatedAtUTC),
			item.Seed,
			item.PopulationSize,
			item.GridSize,
			item.GenerationsRun,
			item.Generations,
			item.BestGrowth,
			item.BestSurvival,
			item.Termination,
		)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	cf := bindClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from run index")
	color := fs.String("color", "auto", "grid colouring: auto|always|never")
	diagnostics := fs.Bool("diagnostics", false, "print per-generation diagnostics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("show requires --run-id or --latest")
	}

	client, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	detail, err := client.RunDetail(ctx, methuselah.RunDetailRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	cfg := detail.Config
	fmt.Printf("run_id=%s termination=%s seed=%d pop=%d grid=%d gens=%d max_gens=%d selection=%s crossover=%s mutation=%s\n",
		detail.RunID, detail.Termination, cfg.Seed, cfg.PopulationSize, cfg.GridSize,
		cfg.Generations, cfg.MaxGenerations, cfg.Selection, cfg.Crossover, cfg.Mutation)
	printFitness(detail.BestFitness.Generations, detail.BestFitness.PeakGrowth,
		detail.BestFitness.InitialAlive, detail.BestFitness.FinalAlive, detail.BestFitness.PeakGeneration)
	fmt.Printf("best_series initial=%.0f final=%.0f improvement=%.0f\n",
		detail.Best.Initial, detail.Best.Final, detail.Best.Improvement)
	fmt.Printf("average_series initial=%.4f final=%.4f mean=%.4f stddev=%.4f min=%.4f max=%.4f\n",
		detail.Average.Initial, detail.Average.Final, detail.Average.Mean,
		detail.Average.StdDev, detail.Average.Min, detail.Average.Max)
	if *diagnostics {
		for _, diag := range detail.Diagnostics {
			fmt.Printf("generation=%d population=%d survivors=%d valid=%d best=%d generation_best=%d mean=%.4f stddev=%.4f evaluations=%s\n",
				diag.Generation, diag.PopulationSize, diag.Survivors, diag.ValidCount, diag.BestGrowth,
				diag.GenerationBestGrowth, diag.MeanGrowth, diag.StdDevGrowth, humanize.Comma(int64(diag.Evaluations)))
		}
	}
	fmt.Print(renderGrid(detail.BestGrid, useColor(*color)))
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runsDirFlag := fs.String("runs-dir", runsDir, "run artifacts directory")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := methuselah.New(methuselah.Options{RunsDir: *runsDirFlag})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, methuselah.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	cf := bindClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("delete requires --run-id")
	}

	client, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.DeleteRun(ctx, *runID); err != nil {
		return err
	}
	fmt.Printf("deleted run_id=%s\n", *runID)
	return nil
}

func runPlot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	cf := bindClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "plot the most recent run from run index")
	outPath := fs.String("out", "", "image path (default: fitness.png in the run directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("plot requires --run-id or --latest")
	}

	client, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	path, err := client.Plot(ctx, methuselah.PlotRequest{RunID: *runID, Latest: *latest, OutPath: *outPath})
	if err != nil {
		return err
	}
	fmt.Printf("plot=%s\n", path)
	return nil
}

func printFitness(generations, peakGrowth, initialAlive, finalAlive, peakGeneration int) {
	fmt.Printf("best_growth=%d best_survival=%d initial_alive=%d final_alive=%d peak_generation=%d\n",
		peakGrowth, generations, initialAlive, finalAlive, peakGeneration)
}

// runAge renders an index timestamp relative to now, falling back to the
// raw value when it does not parse.
func runAge(createdAtUTC string) string {
	created, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return humanize.Time(created)
}

func useColor(mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		fd := os.Stdout.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
}

const (
	liveGlyph  = '█'
	deadGlyph  = '·'
	colorLive  = "\x1b[32m"
	colorReset = "\x1b[0m"
)

func renderGrid(g life.Grid, color bool) string {
	if !color {
		return g.Render(liveGlyph, deadGlyph)
	}
	var b strings.Builder
	for _, row := range g.Rows() {
		for _, cell := range row {
			if cell == 1 {
				b.WriteString(colorLive)
				b.WriteRune(liveGlyph)
				b.WriteString(colorReset)
			} else {
				b.WriteRune(deadGlyph)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: methuselahctl <init|reset|run|evaluate|simulate|runs|show|export|plot|delete> [flags]", msg)
}
