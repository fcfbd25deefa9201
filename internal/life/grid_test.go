package life

import "testing"

func TestNewGridRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -3} {
		if _, err := NewGrid(size); err == nil {
			t.Fatalf("expected error for size %d", size)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := MustGrid(3)
	g.Set(0, 0, true)
	c := g.Clone()
	c.Set(2, 2, true)
	if g.Alive(2, 2) {
		t.Fatal("clone aliases original cells")
	}
	if !c.Alive(0, 0) {
		t.Fatal("clone lost original cell")
	}
}

func TestLiveCellsAndRows(t *testing.T) {
	g := MustGrid(3)
	g.Set(2, 0, true)
	g.Set(0, 2, true)

	cells := g.LiveCells()
	if len(cells) != 2 || cells[0] != (Cell{X: 2, Y: 0}) || cells[1] != (Cell{X: 0, Y: 2}) {
		t.Fatalf("unexpected live cells: %+v", cells)
	}
	if !g.RowHasLife(0) || g.RowHasLife(1) || !g.RowHasLife(2) {
		t.Fatal("unexpected row occupancy")
	}
	if got := g.String(); got != "..#\n...\n#..\n" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestCopyRow(t *testing.T) {
	dst := MustGrid(3)
	src := MustGrid(3)
	src.Set(1, 1, true)
	dst.CopyRow(src, 1)
	if !dst.Alive(1, 1) || dst.LiveCount() != 1 {
		t.Fatalf("unexpected copy result:\n%s", dst)
	}
}

func TestEqualAndKey(t *testing.T) {
	a := MustGrid(2)
	b := MustGrid(2)
	if !a.Equal(b) || a.Key() != b.Key() {
		t.Fatal("empty grids should be equal")
	}
	b.Set(1, 0, true)
	if a.Equal(b) || a.Key() == b.Key() {
		t.Fatal("grids with different content should differ")
	}
	if a.Equal(MustGrid(3)) {
		t.Fatal("grids with different sizes should differ")
	}
}
