package evo

import (
	"gonum.org/v1/gonum/stat"

	"methuselah/internal/model"
)

// FilterViable drops candidates that never grew and candidates that ran
// into the step cap, since neither tells the search anything useful.
func FilterViable(scored []ScoredGrid, maxGenerations int) []ScoredGrid {
	out := make([]ScoredGrid, 0, len(scored))
	for _, item := range scored {
		if item.Fitness.Generations == 0 || item.Fitness.Generations >= maxGenerations {
			continue
		}
		out = append(out, item)
	}
	return out
}

func summarizeGeneration(generation int, scored []ScoredGrid, survivors int, best ScoredGrid, evaluations int) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{
		Generation:     generation,
		PopulationSize: len(scored),
		Survivors:      survivors,
		BestGrowth:     best.Fitness.PeakGrowth,
		BestSurvival:   best.Fitness.Generations,
		Evaluations:    evaluations,
	}
	if len(scored) == 0 {
		return diag
	}

	growth := make([]float64, len(scored))
	for i, item := range scored {
		growth[i] = float64(item.Fitness.PeakGrowth)
		if item.Fitness.Valid() {
			diag.ValidCount++
		}
		if item.Fitness.PeakGrowth > diag.GenerationBestGrowth {
			diag.GenerationBestGrowth = item.Fitness.PeakGrowth
		}
	}
	diag.MeanGrowth = stat.Mean(growth, nil)
	if len(growth) > 1 {
		diag.StdDevGrowth = stat.StdDev(growth, nil)
	}
	return diag
}
