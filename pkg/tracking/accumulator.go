package tracking

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"dtitrack/pkg/fibers"
)

// Accumulator collects fibers from concurrent workers.
type Accumulator struct {
	mu sync.Mutex

	points       []float64
	startIndices []int
	lengths      []int
	pointFiber   []int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add appends one fiber. Empty fibers are ignored.
func (a *Accumulator) Add(points []r3.Vec) {
	if len(points) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	fiber := len(a.startIndices)
	a.startIndices = append(a.startIndices, len(a.points)/3)
	a.lengths = append(a.lengths, len(points))
	for _, p := range points {
		a.points = append(a.points, p.X, p.Y, p.Z)
		a.pointFiber = append(a.pointFiber, fiber)
	}
}

// Len returns the number of fibers collected since the last BuildDataset.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.startIndices)
}

// BuildDataset hands the collected buffers over to a new dataset and starts
// again from empty buffers, so the next fiber added gets index 0.
func (a *Accumulator) BuildDataset() *fibers.Dataset {
	a.mu.Lock()
	defer a.mu.Unlock()

	ds := &fibers.Dataset{
		Points:       a.points,
		StartIndices: a.startIndices,
		Lengths:      a.lengths,
		PointFiber:   a.pointFiber,
	}
	a.points = []float64{}
	a.startIndices = []int{}
	a.lengths = []int{}
	a.pointFiber = []int{}
	return ds
}
