package evo

import (
	"testing"

	"methuselah/internal/life"
)

// tromino returns an L-tromino that settles into a block after one step:
// survival 2, peak growth 1.
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

func filled(t *testing.T, size int) life.Grid {
	t.Helper()
	g, err := life.NewGrid(size)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g.Set(x, y, true)
		}
	}
	return g
}

// withLive returns a size×size grid whose first n cells (row-major) are alive.
func withLive(t *testing.T, size, n int) life.Grid {
	t.Helper()
	g, err := life.NewGrid(size)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	for i := 0; i < n; i++ {
		g.Set(i%size, i/size, true)
	}
	return g
}

func scoredByGrowth(t *testing.T, growth ...int) []ScoredGrid {
	t.Helper()
	out := make([]ScoredGrid, 0, len(growth))
	for i, pg := range growth {
		out = append(out, ScoredGrid{
			Grid:    withLive(t, 4, i),
			Fitness: Fitness{Generations: 1, PeakGrowth: pg},
		})
	}
	return out
}
