// Package grid provides the regular 3D sample lattice used by every field in
// dtitrack. A Grid couples the lattice extents with an affine transform that
// maps integer lattice indices to world-space positions.
package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// orthogonalityTolerance is the largest |cos| allowed between two unit axes.
const orthogonalityTolerance = 0.0001

// Grid is a regular 3D lattice of nx*ny*nz sample points together with the
// 4x4 affine transform M (lattice index -> world) and its inverse.
//
// A Grid never changes after construction, so a single *Grid may be shared
// by any number of fields and read concurrently.
type Grid struct {
	nx, ny, nz int

	// transform is M, inverse is M^-1. Both are 4x4 with bottom row (0,0,0,1).
	transform *mat.Dense
	inverse   *mat.Dense

	// Cached parts of M.
	origin      r3.Vec
	directions  [3]r3.Vec // columns of the 3x3 block, non-unit
	offsets     [3]float64
	axisAligned bool
}

// NewGrid creates a grid with the identity transform: lattice point (i,j,k)
// sits at world position (i,j,k). It panics if any count is smaller than 1.
func NewGrid(nx, ny, nz int) *Grid {
	g, err := NewGridFromMatrix([3]int{nx, ny, nz}, mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}))
	if err != nil {
		panic(err)
	}
	return g
}

// NewGridFromAxes builds a grid from an origin, three axis directions and the
// sample spacing along each axis. Directions need not be unit length; they are
// normalized before being scaled by the matching offset.
func NewGridFromAxes(counts [3]int, origin r3.Vec, directions [3]r3.Vec, offsets [3]float64) (*Grid, error) {
	m := mat.NewDense(4, 4, nil)
	for c := 0; c < 3; c++ {
		n := r3.Norm(directions[c])
		if n == 0 {
			return nil, fmt.Errorf("grid axis %d has zero length direction", c)
		}
		d := r3.Scale(offsets[c]/n, directions[c])
		m.Set(0, c, d.X)
		m.Set(1, c, d.Y)
		m.Set(2, c, d.Z)
	}
	m.Set(0, 3, origin.X)
	m.Set(1, 3, origin.Y)
	m.Set(2, 3, origin.Z)
	m.Set(3, 3, 1)
	return NewGridFromMatrix(counts, m)
}

// NewGridFromMatrix builds a grid from a 4x4 homogeneous transform and the
// lattice counts. The matrix must be strictly affine (bottom row 0,0,0,1),
// its three axis columns must be non-degenerate and mutually orthogonal.
// The matrix is copied.
func NewGridFromMatrix(counts [3]int, m mat.Matrix) (*Grid, error) {
	for i, n := range counts {
		if n < 1 {
			return nil, fmt.Errorf("grid count along axis %d must be positive, got %d", i, n)
		}
	}
	if r, c := m.Dims(); r != 4 || c != 4 {
		return nil, fmt.Errorf("grid transform must be 4x4, got %dx%d", r, c)
	}
	if m.At(3, 0) != 0 || m.At(3, 1) != 0 || m.At(3, 2) != 0 || m.At(3, 3) != 1 {
		return nil, fmt.Errorf("grid transform has a projective component: bottom row (%g, %g, %g, %g)",
			m.At(3, 0), m.At(3, 1), m.At(3, 2), m.At(3, 3))
	}

	g := &Grid{
		nx:        counts[0],
		ny:        counts[1],
		nz:        counts[2],
		transform: mat.DenseCopyOf(m),
		origin:    r3.Vec{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)},
	}

	var units [3]r3.Vec
	for c := 0; c < 3; c++ {
		g.directions[c] = r3.Vec{X: m.At(0, c), Y: m.At(1, c), Z: m.At(2, c)}
		g.offsets[c] = r3.Norm(g.directions[c])
		if g.offsets[c] == 0 {
			return nil, fmt.Errorf("grid axis %d has zero scaling", c)
		}
		units[c] = r3.Scale(1/g.offsets[c], g.directions[c])
	}
	for _, p := range [][2]int{{0, 1}, {0, 2}, {1, 2}} {
		if d := math.Abs(r3.Dot(units[p[0]], units[p[1]])); d >= orthogonalityTolerance {
			return nil, fmt.Errorf("grid axes %d and %d are not orthogonal (|cos| = %g)", p[0], p[1], d)
		}
	}

	g.inverse = mat.NewDense(4, 4, nil)
	if err := g.inverse.Inverse(g.transform); err != nil {
		return nil, fmt.Errorf("grid transform is not invertible: %w", err)
	}

	// Axis aligned: zero off-diagonal 3x3 block and axes pointing along +x,+y,+z.
	g.axisAligned = true
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if r != c && m.At(r, c) != 0 {
				g.axisAligned = false
			}
		}
		if m.At(r, r) <= 0 {
			g.axisAligned = false
		}
	}

	return g, nil
}

// Counts returns the number of lattice points along x, y and z.
func (g *Grid) Counts() (nx, ny, nz int) { return g.nx, g.ny, g.nz }

// Size returns the total number of lattice points.
func (g *Grid) Size() int { return g.nx * g.ny * g.nz }

// Origin is the world position of lattice point (0,0,0).
func (g *Grid) Origin() r3.Vec { return g.origin }

// Directions returns the three (non-unit) axis vectors of the transform.
func (g *Grid) Directions() [3]r3.Vec { return g.directions }

// Offsets returns the sample spacing along each axis.
func (g *Grid) Offsets() [3]float64 { return g.offsets }

// IsAxisAligned reports whether the grid is only scaled and translated.
func (g *Grid) IsAxisAligned() bool { return g.axisAligned }

// Transform returns a copy of the lattice-to-world matrix.
func (g *Grid) Transform() *mat.Dense { return mat.DenseCopyOf(g.transform) }

// InverseTransform returns a copy of the world-to-lattice matrix.
func (g *Grid) InverseTransform() *mat.Dense { return mat.DenseCopyOf(g.inverse) }

// SameLattice reports whether o has the same counts and transform as g.
func (g *Grid) SameLattice(o *Grid) bool {
	if g == o {
		return true
	}
	if o == nil || g.nx != o.nx || g.ny != o.ny || g.nz != o.nz {
		return false
	}
	return mat.Equal(g.transform, o.transform)
}

// String implements fmt.Stringer.
func (g *Grid) String() string {
	return fmt.Sprintf("%dx%dx%d grid, origin %v, offsets %v", g.nx, g.ny, g.nz, g.origin, g.offsets)
}

func applyAffine(m *mat.Dense, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z + m.At(0, 3),
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z + m.At(1, 3),
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z + m.At(2, 3),
	}
}

func applyLinear(m *mat.Dense, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// PositionOf applies M to the lattice coordinate (i,j,k). No bounds checking
// is done.
func (g *Grid) PositionOf(i, j, k int) r3.Vec {
	return g.GridToWorld(r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)})
}

// PositionOfIndex decomposes a linear lattice index (x fastest, then y, then
// z) and returns the world position of that lattice point.
func (g *Grid) PositionOfIndex(idx int) r3.Vec {
	i, j, k := g.Decompose(idx)
	return g.PositionOf(i, j, k)
}

// Decompose splits a linear lattice index into its (i,j,k) coordinate.
func (g *Grid) Decompose(idx int) (i, j, k int) {
	return idx % g.nx, (idx / g.nx) % g.ny, idx / (g.nx * g.ny)
}

// Index returns the linear index of lattice coordinate (i,j,k).
func (g *Grid) Index(i, j, k int) int {
	return i + j*g.nx + k*g.nx*g.ny
}

// GridToWorld maps a continuous lattice-space position to world space.
func (g *Grid) GridToWorld(p r3.Vec) r3.Vec { return applyAffine(g.transform, p) }

// WorldToGrid maps a world position into continuous lattice space.
func (g *Grid) WorldToGrid(p r3.Vec) r3.Vec { return applyAffine(g.inverse, p) }

// DirectionToWorld applies the linear part of M to a direction.
func (g *Grid) DirectionToWorld(d r3.Vec) r3.Vec { return applyLinear(g.transform, d) }

// DirectionToGrid applies the linear part of M^-1 to a direction.
func (g *Grid) DirectionToGrid(d r3.Vec) r3.Vec { return applyLinear(g.inverse, d) }

// WorldToTexCoord maps a world position to normalized [0,1]^3 texture
// coordinates such that lattice point (i,j,k) lands on the center of its
// texel rather than its corner.
func (g *Grid) WorldToTexCoord(p r3.Vec) r3.Vec {
	r := g.WorldToGrid(p)
	return r3.Vec{
		X: r.X/float64(g.nx) + 0.5/float64(g.nx),
		Y: r.Y/float64(g.ny) + 0.5/float64(g.ny),
		Z: r.Z/float64(g.nz) + 0.5/float64(g.nz),
	}
}

// CellIndexContaining returns the linear index of the cell that contains the
// world position p and whether p lies inside the grid at all. Cells are
// numbered over the (nx-1)*(ny-1)*(nz-1) cell lattice. The lower faces of the
// grid belong to a cell, the upper faces do not.
//
// It panics if the grid is not axis aligned.
func (g *Grid) CellIndexContaining(p r3.Vec) (int, bool) {
	if !g.axisAligned {
		panic("grid: CellIndexContaining requires an axis aligned grid")
	}
	rel := r3.Sub(p, g.origin)
	cx := math.Floor(rel.X / g.offsets[0])
	cy := math.Floor(rel.Y / g.offsets[1])
	cz := math.Floor(rel.Z / g.offsets[2])

	inside := cx >= 0 && cy >= 0 && cz >= 0 &&
		cx < float64(g.nx-1) && cy < float64(g.ny-1) && cz < float64(g.nz-1)

	return int(cx) + int(cy)*(g.nx-1) + int(cz)*(g.nx-1)*(g.ny-1), inside
}

// CellCornerIndices returns the 8 lattice indices of a cell in the fixed
// order min, +x, +y, +x+y, +z, +x+z, +y+z, +x+y+z.
func (g *Grid) CellCornerIndices(cell int) [8]int {
	cellsXY := (g.nx - 1) * (g.ny - 1)
	cz := cell / cellsXY
	rem := cell - cz*cellsXY
	cy := rem / (g.nx - 1)
	cx := rem % (g.nx - 1)

	base := cx + cy*g.nx + cz*g.nx*g.ny
	slab := g.nx * g.ny
	return [8]int{
		base,
		base + 1,
		base + g.nx,
		base + g.nx + 1,
		base + slab,
		base + slab + 1,
		base + slab + g.nx,
		base + slab + g.nx + 1,
	}
}

// Contains reports whether p lies inside the grid, i.e. its lattice
// coordinate along every axis is in [0, count-1). Rotated grids are
// supported.
func (g *Grid) Contains(p r3.Vec) bool {
	rel := r3.Sub(p, g.origin)
	counts := [3]int{g.nx, g.ny, g.nz}
	for a := 0; a < 3; a++ {
		c := r3.Dot(rel, g.directions[a]) / (g.offsets[a] * g.offsets[a])
		if c < 0 || c >= float64(counts[a]-1) {
			return false
		}
	}
	return true
}

// BoundingBox returns the axis aligned world-space box around all lattice
// points.
func (g *Grid) BoundingBox() r3.Box {
	mx, my, mz := float64(g.nx-1), float64(g.ny-1), float64(g.nz-1)
	var box r3.Box
	for n, c := range [8]r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: mx, Y: 0, Z: 0},
		{X: 0, Y: my, Z: 0},
		{X: mx, Y: my, Z: 0},
		{X: 0, Y: 0, Z: mz},
		{X: mx, Y: 0, Z: mz},
		{X: 0, Y: my, Z: mz},
		{X: mx, Y: my, Z: mz},
	} {
		w := g.GridToWorld(c)
		if n == 0 {
			box.Min, box.Max = w, w
			continue
		}
		box.Min = r3.Vec{X: math.Min(box.Min.X, w.X), Y: math.Min(box.Min.Y, w.Y), Z: math.Min(box.Min.Z, w.Z)}
		box.Max = r3.Vec{X: math.Max(box.Max.X, w.X), Y: math.Max(box.Max.Y, w.Y), Z: math.Max(box.Max.Z, w.Z)}
	}
	return box
}
