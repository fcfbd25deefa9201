package evo

import (
	"context"

	"methuselah/internal/life"
)

// Fitness scores one candidate. PeakGrowth is the largest live-count gain
// over the initial board seen along the trajectory; a candidate that never
// grew has Generations forced to 0.
type Fitness struct {
	Generations    int `json:"generations"`
	PeakGrowth     int `json:"peak_growth"`
	InitialAlive   int `json:"initial_alive"`
	FinalAlive     int `json:"final_alive"`
	PeakGeneration int `json:"peak_generation"`
}

func (f Fitness) Valid() bool {
	return f.PeakGrowth > 0
}

// Better reports whether f strictly beats other on peak growth.
func (f Fitness) Better(other Fitness) bool {
	return f.PeakGrowth > other.PeakGrowth
}

type ScoredGrid struct {
	Grid    life.Grid
	Fitness Fitness
}

// Evaluate simulates g until a previously visited state recurs or
// maxGenerations steps have been taken.
func Evaluate(g life.Grid, maxGenerations int) Fitness {
	initial := g.LiveCount()
	seen := make(map[string]struct{}, min(maxGenerations, 1024))

	current := g
	generations := 0
	peak := 0
	peakGeneration := 0
	for generations < maxGenerations {
		key := current.Key()
		if _, ok := seen[key]; ok {
			break
		}
		seen[key] = struct{}{}
		current = life.Step(current)
		generations++

		if diff := current.LiveCount() - initial; diff > peak {
			peak = diff
			peakGeneration = generations
		}
	}

	if peak == 0 {
		generations = 0
	}
	return Fitness{
		Generations:    generations,
		PeakGrowth:     peak,
		InitialAlive:   initial,
		FinalAlive:     current.LiveCount(),
		PeakGeneration: peakGeneration,
	}
}

// Evaluator scores candidate grids for the population monitor.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, g life.Grid) (Fitness, error)
}

// MethuselahEvaluator scores by survival and peak growth under a step cap.
type MethuselahEvaluator struct {
	MaxGenerations int
}

func (MethuselahEvaluator) Name() string {
	return "methuselah"
}

func (e MethuselahEvaluator) Evaluate(ctx context.Context, g life.Grid) (Fitness, error) {
	if err := ctx.Err(); err != nil {
		return Fitness{}, err
	}
	return Evaluate(g, e.MaxGenerations), nil
}
