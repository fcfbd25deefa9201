package evo

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"methuselah/internal/life"
)

const (
	DefaultTournamentSize      = 3
	DefaultRouletteBias        = 2.0
	DefaultRouletteProbability = 0.7
)

// Selector fills a breeding pool the size of the population, drawing with
// replacement. Every selector compares candidates on PeakGrowth.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, population []ScoredGrid) ([]life.Grid, error)
}

// TournamentSelector samples Size distinct candidates per slot and keeps
// the one with the highest peak growth.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) Select(rng *rand.Rand, population []ScoredGrid) ([]life.Grid, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	size := s.Size
	if size <= 0 {
		size = DefaultTournamentSize
	}
	if len(population) < size {
		out := make([]life.Grid, 0, len(population))
		for _, item := range population {
			out = append(out, item.Grid)
		}
		return out, nil
	}

	indices := make([]int, len(population))
	for i := range indices {
		indices[i] = i
	}
	selected := make([]life.Grid, 0, len(population))
	for range population {
		// Partial Fisher-Yates: the first size entries become the sample.
		for i := 0; i < size; i++ {
			j := i + rng.Intn(len(indices)-i)
			indices[i], indices[j] = indices[j], indices[i]
		}
		winner := population[indices[0]]
		for _, idx := range indices[1:size] {
			if population[idx].Fitness.Better(winner.Fitness) {
				winner = population[idx]
			}
		}
		selected = append(selected, winner.Grid)
	}
	return selected, nil
}

// RouletteSelector ranks the population by peak growth and samples
// proportionally to rank^Bias.
type RouletteSelector struct {
	Bias float64
}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (s RouletteSelector) Select(rng *rand.Rand, population []ScoredGrid) ([]life.Grid, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return nil, nil
	}
	bias := s.Bias
	if bias <= 0 {
		bias = DefaultRouletteBias
	}

	ranked := make([]ScoredGrid, len(population))
	copy(ranked, population)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness.PeakGrowth < ranked[j].Fitness.PeakGrowth
	})

	cumulative := RankCumulative(len(ranked), bias)
	selected := make([]life.Grid, 0, len(ranked))
	for range ranked {
		draw := rng.Float64()
		idx := sort.SearchFloat64s(cumulative, draw)
		if idx >= len(ranked) {
			idx = len(ranked) - 1
		}
		selected = append(selected, ranked[idx].Grid)
	}
	return selected, nil
}

// RankCumulative returns the cumulative distribution over ranks 1..n where
// rank r has weight (r/Σr)^bias, normalized to sum to 1.
func RankCumulative(n int, bias float64) []float64 {
	if n <= 0 {
		return nil
	}
	totalRank := float64(n*(n+1)) / 2
	weights := make([]float64, n)
	total := 0.0
	for i := range weights {
		weights[i] = math.Pow(float64(i+1)/totalRank, bias)
		total += weights[i]
	}
	cumulative := make([]float64, n)
	acc := 0.0
	for i, w := range weights {
		acc += w / total
		cumulative[i] = acc
	}
	return cumulative
}

// MixedSelector picks roulette with RouletteProbability and tournament
// otherwise, once per call. The zero value always uses tournament; set
// RouletteProbability to DefaultRouletteProbability for the usual mix.
// Nil sub-selectors fall back to their zero values.
type MixedSelector struct {
	RouletteProbability float64
	Roulette            Selector
	Tournament          Selector
}

func (MixedSelector) Name() string {
	return "mixed"
}

func (s MixedSelector) Select(rng *rand.Rand, population []ScoredGrid) ([]life.Grid, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	roulette := s.Roulette
	if roulette == nil {
		roulette = RouletteSelector{}
	}
	tournament := s.Tournament
	if tournament == nil {
		tournament = TournamentSelector{}
	}
	if rng.Float64() < s.RouletteProbability {
		return roulette.Select(rng, population)
	}
	return tournament.Select(rng, population)
}
