package life

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyGrid   = errors.New("grid is empty")
	ErrNotSquare   = errors.New("grid is not square")
	ErrInvalidCell = errors.New("grid cell must be 0 or 1")
)

// Grid is a square board of dead/alive cells stored row-major. Grids are
// values: operators that need a modified board work on a Clone.
type Grid struct {
	size  int
	cells []byte
}

type Cell struct {
	X int
	Y int
}

// NewGrid returns an all-dead size×size grid.
func NewGrid(size int) (Grid, error) {
	if size <= 0 {
		return Grid{}, fmt.Errorf("grid size must be > 0: %d", size)
	}
	return Grid{size: size, cells: make([]byte, size*size)}, nil
}

// MustGrid is NewGrid for sizes already validated by the caller.
func MustGrid(size int) Grid {
	g, err := NewGrid(size)
	if err != nil {
		panic(err)
	}
	return g
}

// FromRows builds a grid from nested 0/1 rows.
func FromRows(rows [][]int) (Grid, error) {
	if len(rows) == 0 {
		return Grid{}, ErrEmptyGrid
	}
	g := MustGrid(len(rows))
	for y, row := range rows {
		if len(row) != len(rows) {
			return Grid{}, fmt.Errorf("%w: row %d has %d cells, want %d", ErrNotSquare, y, len(row), len(rows))
		}
		for x, v := range row {
			switch v {
			case 0:
			case 1:
				g.cells[y*g.size+x] = 1
			default:
				return Grid{}, fmt.Errorf("%w: row %d col %d = %d", ErrInvalidCell, y, x, v)
			}
		}
	}
	return g, nil
}

func (g Grid) Size() int {
	return g.size
}

func (g Grid) inBounds(x, y int) bool {
	return x >= 0 && x < g.size && y >= 0 && y < g.size
}

// Alive reports whether (x, y) is alive. Out-of-bounds cells are dead.
func (g Grid) Alive(x, y int) bool {
	if !g.inBounds(x, y) {
		return false
	}
	return g.cells[y*g.size+x] == 1
}

// Set writes a cell in place. Callers own the grid they mutate.
func (g Grid) Set(x, y int, alive bool) {
	if !g.inBounds(x, y) {
		return
	}
	if alive {
		g.cells[y*g.size+x] = 1
		return
	}
	g.cells[y*g.size+x] = 0
}

func (g Grid) Clone() Grid {
	return Grid{size: g.size, cells: append([]byte(nil), g.cells...)}
}

func (g Grid) Equal(other Grid) bool {
	if g.size != other.size {
		return false
	}
	return string(g.cells) == string(other.cells)
}

// Key returns the full board content as a string usable as a map key.
func (g Grid) Key() string {
	return string(g.cells)
}

func (g Grid) LiveCount() int {
	n := 0
	for _, c := range g.cells {
		n += int(c)
	}
	return n
}

// LiveCells lists live cells in row-major order.
func (g Grid) LiveCells() []Cell {
	out := make([]Cell, 0, g.LiveCount())
	for i, c := range g.cells {
		if c == 1 {
			out = append(out, Cell{X: i % g.size, Y: i / g.size})
		}
	}
	return out
}

// RowHasLife reports whether row y holds at least one live cell.
func (g Grid) RowHasLife(y int) bool {
	if y < 0 || y >= g.size {
		return false
	}
	for _, c := range g.cells[y*g.size : (y+1)*g.size] {
		if c == 1 {
			return true
		}
	}
	return false
}

// CopyRow overwrites row y of g with row y of src.
func (g Grid) CopyRow(src Grid, y int) {
	if g.size != src.size || y < 0 || y >= g.size {
		return
	}
	copy(g.cells[y*g.size:(y+1)*g.size], src.cells[y*src.size:(y+1)*src.size])
}

// Rows returns the nested 0/1 form used for exchange.
func (g Grid) Rows() [][]int {
	rows := make([][]int, g.size)
	for y := range rows {
		row := make([]int, g.size)
		for x := range row {
			row[x] = int(g.cells[y*g.size+x])
		}
		rows[y] = row
	}
	return rows
}

// String renders the grid with '#' for live and '.' for dead cells.
func (g Grid) String() string {
	return g.Render('#', '.')
}

func (g Grid) Render(alive, dead rune) string {
	var b strings.Builder
	b.Grow(g.size * (g.size + 1))
	for y := 0; y < g.size; y++ {
		for x := 0; x < g.size; x++ {
			if g.cells[y*g.size+x] == 1 {
				b.WriteRune(alive)
			} else {
				b.WriteRune(dead)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
