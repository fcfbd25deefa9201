package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SeriesSummary condenses a per-generation series for reports.
type SeriesSummary struct {
	Points      int     `json:"points"`
	Initial     float64 `json:"initial"`
	Final       float64 `json:"final"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Max         float64 `json:"max"`
	Min         float64 `json:"min"`
	Improvement float64 `json:"improvement"`
}

func SummarizeSeries(series []float64) SeriesSummary {
	if len(series) == 0 {
		return SeriesSummary{}
	}
	summary := SeriesSummary{
		Points:  len(series),
		Initial: series[0],
		Final:   series[len(series)-1],
		Mean:    stat.Mean(series, nil),
		Max:     floats.Max(series),
		Min:     floats.Min(series),
	}
	if len(series) > 1 {
		summary.StdDev = stat.StdDev(series, nil)
	}
	summary.Improvement = summary.Final - summary.Initial
	return summary
}
