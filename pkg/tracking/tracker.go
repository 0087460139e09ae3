// Package tracking implements deterministic streamline fiber tracking over a
// principal eigenvector field, in the style of Mori et al.: fibers grow
// voxel by voxel along the current voxel's eigenvector in both directions
// from a seed until anisotropy, direction consistency or the grid border
// stops them.
package tracking

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"dtitrack/pkg/grid"
	"dtitrack/pkg/interpolation"
	"dtitrack/pkg/valueset"
)

const (
	// eps is the tolerance for zero vectors and cell face hits.
	eps = 1e-8

	noBorder    = 1e8
	maxDistance = 1e5
)

// Params holds the per-fiber stopping thresholds.
type Params struct {
	// MinFA is the anisotropy a voxel must exceed for tracking to continue
	MinFA float64

	// MinPoints is the shortest fiber, in points, that is kept
	MinPoints int

	// MinCos is the smallest cosine allowed between consecutive directions
	MinCos float64

	// MaxSteps caps the number of voxels visited per direction
	MaxSteps int
}

// DefaultParams returns the thresholds used when nothing else is configured.
func DefaultParams() Params {
	return Params{
		MinFA:     0.2,
		MinPoints: 30,
		MinCos:    0.80,
		MaxSteps:  200,
	}
}

// Tracker traces single fibers. It only reads its fields and is safe for
// concurrent use.
type Tracker struct {
	grid   *grid.Grid
	eigen  *valueset.Field
	fa     *valueset.Field
	params Params

	counts [3]int

	// 3x3 linear part of the grid transform, its inverse and the translation.
	linear      *mat.Dense
	inverse     *mat.Dense
	translation r3.Vec
}

// NewTracker creates a tracker over a principal eigenvector field with three
// components per voxel and an anisotropy field with one. Both fields must
// live on the same lattice.
func NewTracker(eigen, fa *valueset.Field, params Params) (*Tracker, error) {
	if eigen.Components() != 3 {
		return nil, fmt.Errorf("%w: eigenvector field has %d", interpolation.ErrComponentCount, eigen.Components())
	}
	if fa.Components() != 1 {
		return nil, fmt.Errorf("%w: anisotropy field has %d", interpolation.ErrComponentCount, fa.Components())
	}
	g := eigen.Grid()
	if !g.SameLattice(fa.Grid()) {
		return nil, fmt.Errorf("eigenvector grid %v and anisotropy grid %v differ", g, fa.Grid())
	}
	if params.MaxSteps <= 0 {
		params.MaxSteps = DefaultParams().MaxSteps
	}

	m := g.Transform()
	linear := mat.DenseCopyOf(m.Slice(0, 3, 0, 3))
	var inverse mat.Dense
	if err := inverse.Inverse(linear); err != nil {
		return nil, fmt.Errorf("grid transform is not invertible: %w", err)
	}

	nx, ny, nz := g.Counts()
	return &Tracker{
		grid:        g,
		eigen:       eigen,
		fa:          fa,
		params:      params,
		counts:      [3]int{nx, ny, nz},
		linear:      linear,
		inverse:     &inverse,
		translation: r3.Vec{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)},
	}, nil
}

// Grid returns the lattice the tracker works on.
func (t *Tracker) Grid() *grid.Grid { return t.grid }

// Params returns the thresholds in use.
func (t *Tracker) Params() Params { return t.params }

// TrackFiber traces the fiber through the lattice point seed and returns its
// world space points in order, or nil when the seed has no usable direction
// or the fiber is shorter than MinPoints.
func (t *Tracker) TrackFiber(seed [3]int) []r3.Vec {
	e := t.eigenAt(seed)
	if r3.Norm(e) < eps {
		return nil
	}
	e = r3.Unit(mulVec(t.inverse, e))

	start := r3.Vec{X: float64(seed[0]), Y: float64(seed[1]), Z: float64(seed[2])}
	forward := t.grow(start, e, seed)
	backward := t.grow(start, r3.Scale(-1, e), seed)

	total := len(backward) + 1 + len(forward)
	if total < t.params.MinPoints {
		return nil
	}

	points := make([]r3.Vec, 0, total)
	for i := len(backward) - 1; i >= 0; i-- {
		points = append(points, t.toWorld(backward[i]))
	}
	points = append(points, t.toWorld(start))
	for _, p := range forward {
		points = append(points, t.toWorld(p))
	}
	return points
}

// grow follows dir from pos in voxel coords and returns the visited points in
// the order they were reached, excluding pos itself.
func (t *Tracker) grow(pos, dir r3.Vec, coords [3]int) []r3.Vec {
	var points []r3.Vec
	last := pos

	for step := 0; step < t.params.MaxSteps; step++ {
		if !(t.params.MinFA < t.faAt(coords)) {
			break
		}

		p := t.nextPosition(pos, coords, dir)
		if r3.Norm(r3.Sub(p, last)) > eps {
			points = append(points, p)
			last = p
		}

		next, ok := t.nextVoxel(p, coords)
		if !ok {
			break
		}
		p = clamp(p, next)

		e := t.eigenAt(next)
		if r3.Norm(e) < eps {
			break
		}
		e = r3.Unit(mulVec(t.inverse, e))

		if r3.Dot(e, dir) < t.params.MinCos {
			e = r3.Scale(-1, e)
			if r3.Dot(e, dir) < t.params.MinCos {
				break
			}
		}
		if !monotonic(coords, next, e) {
			break
		}

		pos, dir, coords = p, e, next
	}
	return points
}

// nextPosition returns where the ray from pos along dir leaves the voxel at
// coords.
func (t *Tracker) nextPosition(pos r3.Vec, coords [3]int, dir r3.Vec) r3.Vec {
	d := maxDistance
	d = math.Min(d, distanceToBorder(pos.X, coords[0], dir.X))
	d = math.Min(d, distanceToBorder(pos.Y, coords[1], dir.Y))
	d = math.Min(d, distanceToBorder(pos.Z, coords[2], dir.Z))
	return r3.Add(pos, r3.Scale(d, dir))
}

// distanceToBorder is the ray parameter at which one axis leaves the unit
// voxel [coord-0.5, coord+0.5]. It is never negative.
func distanceToBorder(pos float64, coord int, e float64) float64 {
	p := pos - float64(coord) + 0.5
	switch {
	case math.Abs(p) < eps:
		p = 0
	case math.Abs(p-1) < eps:
		p = 1
	}
	if math.Abs(e) < eps {
		return noBorder
	}
	return math.Max((1-p)/e, -p/e)
}

// nextVoxel steps every axis whose local coordinate sits on a voxel face.
// It reports false when no face was hit or the new voxel lies in the one
// voxel border margin of the lattice.
func (t *Tracker) nextVoxel(p r3.Vec, old [3]int) ([3]int, bool) {
	next := old
	local := [3]float64{
		p.X - float64(old[0]) + 0.5,
		p.Y - float64(old[1]) + 0.5,
		p.Z - float64(old[2]) + 0.5,
	}
	for k := 0; k < 3; k++ {
		if math.Abs(local[k]-1) < eps {
			next[k]++
		}
		if math.Abs(local[k]) < eps {
			next[k]--
		}
	}
	if next == old {
		return next, false
	}
	for k := 0; k < 3; k++ {
		if next[k] < 1 || next[k] >= t.counts[k]-1 {
			return next, false
		}
	}
	return next, true
}

func clamp(p r3.Vec, coords [3]int) r3.Vec {
	c := func(v float64, coord int) float64 {
		return math.Min(math.Max(v, float64(coord)-0.5), float64(coord)+0.5)
	}
	return r3.Vec{X: c(p.X, coords[0]), Y: c(p.Y, coords[1]), Z: c(p.Z, coords[2])}
}

// monotonic rejects a step whose voxel change disagrees in sign with the
// new direction on any axis.
func monotonic(old, next [3]int, e r3.Vec) bool {
	dir := [3]float64{e.X, e.Y, e.Z}
	for k := 0; k < 3; k++ {
		if next[k] > old[k] && dir[k] < 0 {
			return false
		}
		if next[k] < old[k] && dir[k] >= 0 {
			return false
		}
	}
	return true
}

// eigenAt looks up the eigenvector of a lattice point without interpolation.
// Points in the border margin yield the zero vector.
func (t *Tracker) eigenAt(coords [3]int) r3.Vec {
	for k := 0; k < 3; k++ {
		if coords[k] < 1 || coords[k] >= t.counts[k]-1 {
			return r3.Vec{}
		}
	}
	return t.eigen.VectorAt(t.grid.Index(coords[0], coords[1], coords[2]))
}

func (t *Tracker) faAt(coords [3]int) float64 {
	return t.fa.ScalarAt(t.grid.Index(coords[0], coords[1], coords[2]))
}

func (t *Tracker) toWorld(p r3.Vec) r3.Vec {
	return r3.Add(mulVec(t.linear, p), t.translation)
}

func mulVec(m *mat.Dense, v r3.Vec) r3.Vec {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
