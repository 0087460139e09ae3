// Package fibers stores traced fibers as four parallel buffers and answers
// geometric and statistical queries about them.
package fibers

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// ErrInconsistent is returned by Validate when the buffers disagree.
var ErrInconsistent = errors.New("inconsistent fiber dataset")

// Dataset is a set of polylines. Fiber i occupies the points
// StartIndices[i] .. StartIndices[i]+Lengths[i]-1, and PointFiber maps every
// point back to its fiber.
type Dataset struct {
	// Points holds x, y, z per point, fiber after fiber
	Points []float64

	// StartIndices is the first point of each fiber
	StartIndices []int

	// Lengths is the number of points of each fiber
	Lengths []int

	// PointFiber is the fiber index of each point
	PointFiber []int
}

// NewDataset builds a dataset from a list of polylines.
func NewDataset(lines [][]r3.Vec) *Dataset {
	d := &Dataset{}
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		fiber := len(d.StartIndices)
		d.StartIndices = append(d.StartIndices, len(d.Points)/3)
		d.Lengths = append(d.Lengths, len(line))
		for _, p := range line {
			d.Points = append(d.Points, p.X, p.Y, p.Z)
			d.PointFiber = append(d.PointFiber, fiber)
		}
	}
	return d
}

// Len returns the number of fibers.
func (d *Dataset) Len() int { return len(d.StartIndices) }

// NumPoints returns the number of points over all fibers.
func (d *Dataset) NumPoints() int { return len(d.Points) / 3 }

// Point returns point i of the flat point buffer.
func (d *Dataset) Point(i int) r3.Vec {
	return r3.Vec{X: d.Points[3*i], Y: d.Points[3*i+1], Z: d.Points[3*i+2]}
}

// Fiber returns the points of fiber i.
func (d *Dataset) Fiber(i int) []r3.Vec {
	start, n := d.StartIndices[i], d.Lengths[i]
	line := make([]r3.Vec, n)
	for k := range line {
		line[k] = d.Point(start + k)
	}
	return line
}

// Validate checks that the four buffers describe the same fibers.
func (d *Dataset) Validate() error {
	if len(d.Points)%3 != 0 {
		return fmt.Errorf("%w: %d coordinates is not a multiple of 3", ErrInconsistent, len(d.Points))
	}
	if len(d.StartIndices) != len(d.Lengths) {
		return fmt.Errorf("%w: %d start indices but %d lengths", ErrInconsistent, len(d.StartIndices), len(d.Lengths))
	}
	if len(d.PointFiber) != d.NumPoints() {
		return fmt.Errorf("%w: %d point fiber entries for %d points", ErrInconsistent, len(d.PointFiber), d.NumPoints())
	}
	next := 0
	for i, start := range d.StartIndices {
		if start != next {
			return fmt.Errorf("%w: fiber %d starts at %d, expected %d", ErrInconsistent, i, start, next)
		}
		if d.Lengths[i] < 1 {
			return fmt.Errorf("%w: fiber %d is empty", ErrInconsistent, i)
		}
		for k := start; k < start+d.Lengths[i]; k++ {
			if k >= len(d.PointFiber) || d.PointFiber[k] != i {
				return fmt.Errorf("%w: point %d is not mapped to fiber %d", ErrInconsistent, k, i)
			}
		}
		next = start + d.Lengths[i]
	}
	if next != d.NumPoints() {
		return fmt.Errorf("%w: fibers cover %d of %d points", ErrInconsistent, next, d.NumPoints())
	}
	return nil
}

// BoundingBox returns the axis aligned box around all points. The box of an
// empty dataset is zero.
func (d *Dataset) BoundingBox() r3.Box {
	if d.NumPoints() == 0 {
		return r3.Box{}
	}
	box := r3.Box{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for i := 0; i < d.NumPoints(); i++ {
		p := d.Point(i)
		box.Min = r3.Vec{X: math.Min(box.Min.X, p.X), Y: math.Min(box.Min.Y, p.Y), Z: math.Min(box.Min.Z, p.Z)}
		box.Max = r3.Vec{X: math.Max(box.Max.X, p.X), Y: math.Max(box.Max.Y, p.Y), Z: math.Max(box.Max.Z, p.Z)}
	}
	return box
}

// ArcLengths returns the polyline length of every fiber.
func (d *Dataset) ArcLengths() []float64 {
	lengths := make([]float64, d.Len())
	for i := range lengths {
		start := d.StartIndices[i]
		segments := make([]float64, 0, d.Lengths[i])
		for k := start + 1; k < start+d.Lengths[i]; k++ {
			segments = append(segments, r3.Norm(r3.Sub(d.Point(k), d.Point(k-1))))
		}
		lengths[i] = floats.Sum(segments)
	}
	return lengths
}

// Stats summarises fiber sizes.
type Stats struct {
	Fibers int
	Points int

	MeanPoints   float64
	StdDevPoints float64

	MeanLength   float64
	StdDevLength float64
	MinLength    float64
	MaxLength    float64
}

// Stats computes point count and arc length statistics. Standard deviations
// are zero when there are fewer than two fibers.
func (d *Dataset) Stats() Stats {
	s := Stats{Fibers: d.Len(), Points: d.NumPoints()}
	if s.Fibers == 0 {
		return s
	}

	counts := make([]float64, d.Len())
	for i, n := range d.Lengths {
		counts[i] = float64(n)
	}
	arc := d.ArcLengths()

	if s.Fibers == 1 {
		s.MeanPoints = counts[0]
		s.MeanLength = arc[0]
	} else {
		s.MeanPoints, s.StdDevPoints = stat.MeanStdDev(counts, nil)
		s.MeanLength, s.StdDevLength = stat.MeanStdDev(arc, nil)
	}
	s.MinLength = floats.Min(arc)
	s.MaxLength = floats.Max(arc)
	return s
}
