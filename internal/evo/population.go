package evo

import (
	"fmt"
	"math/rand"

	"methuselah/internal/life"
)

const (
	DefaultDensity    = 0.01
	DefaultRegionSize = 5
)

// Seeder builds the initial population.
type Seeder interface {
	Name() string
	Seed(rng *rand.Rand, count, size int) ([]life.Grid, error)
}

// DenseSeeder scatters live cells over the whole board with a fixed
// per-cell probability.
type DenseSeeder struct {
	Density float64
}

func (DenseSeeder) Name() string {
	return "dense"
}

func (s DenseSeeder) Seed(rng *rand.Rand, count, size int) ([]life.Grid, error) {
	if err := checkSeedArgs(rng, count, size); err != nil {
		return nil, err
	}
	density := s.Density
	if density <= 0 {
		density = DefaultDensity
	}
	if density > 1 {
		return nil, fmt.Errorf("%w: density must be in (0, 1]: %f", ErrInvalidConfig, density)
	}

	out := make([]life.Grid, 0, count)
	for i := 0; i < count; i++ {
		g := life.MustGrid(size)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				if rng.Float64() < density {
					g.Set(x, y, true)
				}
			}
		}
		out = append(out, g)
	}
	return out, nil
}

// LocalizedSeeder randomizes a single RegionSize×RegionSize square at a
// random anchor and leaves the rest of the board dead.
type LocalizedSeeder struct {
	RegionSize int
}

func (LocalizedSeeder) Name() string {
	return "localized"
}

func (s LocalizedSeeder) Seed(rng *rand.Rand, count, size int) ([]life.Grid, error) {
	if err := checkSeedArgs(rng, count, size); err != nil {
		return nil, err
	}
	region := s.RegionSize
	if region <= 0 {
		region = DefaultRegionSize
	}
	if region > size {
		region = size
	}

	out := make([]life.Grid, 0, count)
	for i := 0; i < count; i++ {
		g := life.MustGrid(size)
		startX := rng.Intn(size - region + 1)
		startY := rng.Intn(size - region + 1)
		for y := startY; y < startY+region; y++ {
			for x := startX; x < startX+region; x++ {
				g.Set(x, y, rng.Intn(2) == 1)
			}
		}
		out = append(out, g)
	}
	return out, nil
}

func checkSeedArgs(rng *rand.Rand, count, size int) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if count <= 0 {
		return fmt.Errorf("%w: population size must be > 0", ErrInvalidConfig)
	}
	if size <= 0 {
		return fmt.Errorf("%w: grid size must be > 0", ErrInvalidConfig)
	}
	return nil
}
