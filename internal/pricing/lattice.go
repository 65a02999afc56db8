package pricing

import "fmt"

// Lattice is a recombining binomial grid stored densely as (steps+1)²
// cells. Node (step, down) is reached after step periods with down down-moves,
// so only down <= step is meaningful; the upper triangle is never read and
// At rejects it.
type Lattice struct {
	steps int
	cells []float64
}

func newLattice(steps int) *Lattice {
	n := steps + 1
	return &Lattice{steps: steps, cells: make([]float64, n*n)}
}

// Steps returns the lattice depth.
func (l *Lattice) Steps() int { return l.steps }

func (l *Lattice) index(step, down int) int {
	if step < 0 || step > l.steps || down < 0 || down > step {
		panic(fmt.Sprintf("lattice: node (%d,%d) outside triangle of depth %d", step, down, l.steps))
	}
	return step*(l.steps+1) + down
}

// At returns the value at node (step, down). It panics for nodes outside
// the triangle, like an out-of-range slice index.
func (l *Lattice) At(step, down int) float64 {
	return l.cells[l.index(step, down)]
}

func (l *Lattice) set(step, down int, v float64) {
	l.cells[l.index(step, down)] = v
}

// Level returns a copy of the step+1 node values at the given step.
func (l *Lattice) Level(step int) []float64 {
	start := l.index(step, 0)
	out := make([]float64, step+1)
	copy(out, l.cells[start:start+step+1])
	return out
}
