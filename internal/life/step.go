package life

// Step advances g by one generation under B3/S23 rules. Cells beyond the
// border count as dead; the board does not wrap.
func Step(g Grid) Grid {
	next := Grid{size: g.size, cells: make([]byte, len(g.cells))}
	n := g.size
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			neighbors := liveNeighbors(g, x, y)
			idx := y*n + x
			if g.cells[idx] == 1 {
				if neighbors == 2 || neighbors == 3 {
					next.cells[idx] = 1
				}
			} else if neighbors == 3 {
				next.cells[idx] = 1
			}
		}
	}
	return next
}

func liveNeighbors(g Grid, x, y int) int {
	count := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if g.Alive(x+dx, y+dy) {
				count++
			}
		}
	}
	return count
}

// Frame is one state in a simulated trajectory.
type Frame struct {
	Generation int `json:"generation"`
	Alive      int `json:"alive"`
}

// Run steps g up to steps times and returns the final grid along with the
// live count of every visited frame, starting with generation 0.
func Run(g Grid, steps int) (Grid, []Frame) {
	if steps < 0 {
		steps = 0
	}
	frames := make([]Frame, 0, steps+1)
	frames = append(frames, Frame{Generation: 0, Alive: g.LiveCount()})
	current := g.Clone()
	for gen := 1; gen <= steps; gen++ {
		current = Step(current)
		frames = append(frames, Frame{Generation: gen, Alive: current.LiveCount()})
	}
	return current, frames
}
