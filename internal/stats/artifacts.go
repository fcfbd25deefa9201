package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"methuselah/internal/model"
)

const (
	runIndexFile              = "run_index.json"
	configFile                = "config.json"
	fitnessHistoryFile        = "fitness_history.json"
	fitnessSeriesFile         = "fitness_series.csv"
	bestGridFile              = "best_grid.json"
	generationDiagnosticsFile = "generation_diagnostics.json"
	FitnessPlotFile           = "fitness.png"
)

type RunConfig struct {
	RunID string `json:"run_id"`
	model.RunConfig
}

// FitnessHistory is the per-generation graph data of a run. Entry 0 is
// the initial population.
type FitnessHistory struct {
	AverageByGeneration []float64           `json:"average_by_generation"`
	BestByGeneration    []float64           `json:"best_by_generation"`
	BestFitness         model.FitnessRecord `json:"best_fitness"`
	Termination         string              `json:"termination"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	History               FitnessHistory                `json:"history"`
	BestGrid              [][]int                       `json:"best_grid"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
}

type RunIndexEntry struct {
	RunID          string `json:"run_id"`
	PopulationSize int    `json:"population_size"`
	GridSize       int    `json:"grid_size"`
	Generations    int    `json:"generations"`
	GenerationsRun int    `json:"generations_run"`
	Seed           int64  `json:"seed"`
	Workers        int    `json:"workers"`
	Selection      string `json:"selection"`
	Crossover      string `json:"crossover"`
	Mutation       string `json:"mutation"`
	BestGrowth     int    `json:"best_growth"`
	BestSurvival   int    `json:"best_survival"`
	Termination    string `json:"termination"`
	CreatedAtUTC   string `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if len(artifacts.History.AverageByGeneration) != len(artifacts.History.BestByGeneration) {
		return "", fmt.Errorf("fitness series length mismatch: average=%d best=%d",
			len(artifacts.History.AverageByGeneration), len(artifacts.History.BestByGeneration))
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, fitnessHistoryFile), artifacts.History); err != nil {
		return "", err
	}
	if err := WriteFitnessSeries(runDir, artifacts.History.AverageByGeneration, artifacts.History.BestByGeneration); err != nil {
		return "", err
	}
	if artifacts.BestGrid != nil {
		if err := writeJSON(filepath.Join(runDir, bestGridFile), artifacts.BestGrid); err != nil {
			return "", err
		}
	}
	if err := writeJSON(filepath.Join(runDir, generationDiagnosticsFile), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// readRunIndex returns index entries in append order.
func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// DeleteRunArtifacts removes a run directory and its index entry. It
// reports whether anything was removed.
func DeleteRunArtifacts(baseDir, runID string) (bool, error) {
	if runID == "" {
		return false, fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, runID)
	removed := false
	if _, err := os.Stat(runDir); err == nil {
		if err := os.RemoveAll(runDir); err != nil {
			return false, err
		}
		removed = true
	} else if !os.IsNotExist(err) {
		return false, err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return removed, err
	}
	kept := make([]RunIndexEntry, 0, len(index))
	for _, entry := range index {
		if entry.RunID == runID {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) == len(index) {
		return removed, nil
	}
	return removed, writeJSON(filepath.Join(baseDir, runIndexFile), kept)
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, fitnessHistoryFile, fitnessSeriesFile, generationDiagnosticsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{bestGridFile, FitnessPlotFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	if err != nil || !ok {
		return RunConfig{}, ok, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

func ReadFitnessHistory(baseDir, runID string) (FitnessHistory, bool, error) {
	var history FitnessHistory
	ok, err := readJSON(filepath.Join(baseDir, runID, fitnessHistoryFile), &history)
	if err != nil || !ok {
		return FitnessHistory{}, ok, err
	}
	return history, true, nil
}

func ReadGenerationDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, generationDiagnosticsFile), &diagnostics)
	if err != nil || !ok {
		return nil, ok, err
	}
	return diagnostics, true, nil
}

// BestGridPath is where the best grid of a run is written, in the same
// nested 0/1 form the grid loader reads.
func BestGridPath(baseDir, runID string) string {
	return filepath.Join(baseDir, runID, bestGridFile)
}

func WriteFitnessSeries(runDir string, average, best []float64) error {
	if len(average) != len(best) {
		return fmt.Errorf("fitness series length mismatch: average=%d best=%d", len(average), len(best))
	}
	file, err := os.Create(filepath.Join(runDir, fitnessSeriesFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "average_growth", "best_growth"}); err != nil {
		return err
	}
	for i := range best {
		if err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(average[i], 'f', -1, 64),
			strconv.FormatFloat(best[i], 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessSeries(baseDir, runID string) (average, best []float64, ok bool, err error) {
	file, err := os.Open(filepath.Join(baseDir, runID, fitnessSeriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, []float64{}, true, nil
		}
		return nil, nil, false, err
	}
	if len(header) < 3 {
		return nil, nil, false, fmt.Errorf("fitness series header must have 3 columns")
	}

	average = make([]float64, 0, 64)
	best = make([]float64, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, false, err
		}
		if len(record) < 3 {
			return nil, nil, false, fmt.Errorf("fitness series row must have 3 columns")
		}
		avg, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, nil, false, err
		}
		top, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, nil, false, err
		}
		average = append(average, avg)
		best = append(best, top)
	}
	return average, best, true, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
