package evo

import (
	"fmt"
	"math/rand"

	"methuselah/internal/life"
)

const (
	DefaultSpliceRows = 5
	DefaultBlockSize  = 5
)

// Crossover combines two parents into a new child. Parents are never
// modified.
type Crossover interface {
	Name() string
	Cross(rng *rand.Rand, first, second life.Grid) (life.Grid, error)
}

// Mutator returns a mutated copy of its input.
type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, g life.Grid) life.Grid
}

// RowSpliceCrossover takes rows above a random cut from the first parent
// and the rest from the second.
type RowSpliceCrossover struct{}

func (RowSpliceCrossover) Name() string {
	return "row"
}

func (RowSpliceCrossover) Cross(rng *rand.Rand, first, second life.Grid) (life.Grid, error) {
	if err := checkParents(rng, first, second); err != nil {
		return life.Grid{}, err
	}
	n := first.Size()
	point := rng.Intn(n)
	child := first.Clone()
	for y := point; y < n; y++ {
		child.CopyRow(second, y)
	}
	return child, nil
}

// LocalizedSpliceCrossover finds the lowest row of the first parent that
// holds life and replaces between 1 and MaxRows rows from there down with
// the second parent's rows.
type LocalizedSpliceCrossover struct {
	MaxRows int
}

func (LocalizedSpliceCrossover) Name() string {
	return "localized"
}

func (c LocalizedSpliceCrossover) Cross(rng *rand.Rand, first, second life.Grid) (life.Grid, error) {
	if err := checkParents(rng, first, second); err != nil {
		return life.Grid{}, err
	}
	maxRows := c.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultSpliceRows
	}
	n := first.Size()
	start := -1
	for y := n - 1; y >= 0; y-- {
		if first.RowHasLife(y) {
			start = y
			break
		}
	}
	if start < 0 {
		return first.Clone(), nil
	}

	rows := 1 + rng.Intn(min(maxRows, n-start))
	child := first.Clone()
	for y := start; y < start+rows; y++ {
		child.CopyRow(second, y)
	}
	return child, nil
}

// BlockCrossover tiles the board in BlockSize squares. Inside tiles where
// the first parent has life, each cell takes the second parent's value
// with probability one half.
type BlockCrossover struct {
	BlockSize int
}

func (BlockCrossover) Name() string {
	return "block"
}

func (c BlockCrossover) Cross(rng *rand.Rand, first, second life.Grid) (life.Grid, error) {
	if err := checkParents(rng, first, second); err != nil {
		return life.Grid{}, err
	}
	block := c.BlockSize
	if block <= 0 {
		block = DefaultBlockSize
	}
	n := first.Size()
	child := first.Clone()
	for by := 0; by < n; by += block {
		for bx := 0; bx < n; bx += block {
			maxY := min(by+block, n)
			maxX := min(bx+block, n)
			if !blockHasLife(first, bx, by, maxX, maxY) {
				continue
			}
			for y := by; y < maxY; y++ {
				for x := bx; x < maxX; x++ {
					if rng.Intn(2) == 1 {
						child.Set(x, y, second.Alive(x, y))
					}
				}
			}
		}
	}
	return child, nil
}

func blockHasLife(g life.Grid, x0, y0, x1, y1 int) bool {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			if g.Alive(x, y) {
				return true
			}
		}
	}
	return false
}

func checkParents(rng *rand.Rand, first, second life.Grid) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if first.Size() == 0 {
		return life.ErrEmptyGrid
	}
	if first.Size() != second.Size() {
		return fmt.Errorf("parent size mismatch: %d vs %d", first.Size(), second.Size())
	}
	return nil
}

// LiveFlipMutator draws up to ⌊Rate·live⌋ flips; each flip either kills a
// random live cell or revives a random cell anywhere on the board.
type LiveFlipMutator struct {
	Rate float64
}

func (LiveFlipMutator) Name() string {
	return "live_flip"
}

func (m LiveFlipMutator) Mutate(rng *rand.Rand, g life.Grid) life.Grid {
	child := g.Clone()
	live := child.LiveCells()
	flips := rng.Intn(int(m.Rate*float64(len(live))) + 1)
	n := child.Size()
	for i := 0; i < flips; i++ {
		if rng.Float64() > 0.5 && len(live) > 0 {
			pick := rng.Intn(len(live))
			cell := live[pick]
			child.Set(cell.X, cell.Y, false)
			live[pick] = live[len(live)-1]
			live = live[:len(live)-1]
			continue
		}
		x, y := rng.Intn(n), rng.Intn(n)
		if !child.Alive(x, y) {
			child.Set(x, y, true)
			live = append(live, life.Cell{X: x, Y: y})
		}
	}
	return child
}

// PerCellMutator flips each cell independently with probability Rate.
type PerCellMutator struct {
	Rate float64
}

func (PerCellMutator) Name() string {
	return "per_cell"
}

func (m PerCellMutator) Mutate(rng *rand.Rand, g life.Grid) life.Grid {
	child := g.Clone()
	n := child.Size()
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if rng.Float64() < m.Rate {
				child.Set(x, y, !child.Alive(x, y))
			}
		}
	}
	return child
}
