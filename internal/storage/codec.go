package storage

import (
	"encoding/json"
	"errors"
	"sort"

	"methuselah/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp sets the current schema and codec versions on a record.
func Stamp(run model.RunRecord) model.RunRecord {
	run.SchemaVersion = CurrentSchemaVersion
	run.CodecVersion = CurrentCodecVersion
	return run
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeGenerationDiagnostics(diagnostics []model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeGenerationDiagnostics(data []byte) ([]model.GenerationDiagnostics, error) {
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

// cloneRun deep-copies the slices of a record so callers cannot alias
// stored state.
func cloneRun(run model.RunRecord) model.RunRecord {
	out := run
	if run.BestGrid != nil {
		out.BestGrid = make([][]int, len(run.BestGrid))
		for i, row := range run.BestGrid {
			out.BestGrid[i] = append([]int(nil), row...)
		}
	}
	out.AverageByGeneration = append([]float64(nil), run.AverageByGeneration...)
	out.BestByGeneration = append([]float64(nil), run.BestByGeneration...)
	return out
}

// sortRuns orders runs oldest first, breaking ties by id.
func sortRuns(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
}
