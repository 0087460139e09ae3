package interpolation

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"dtitrack/pkg/valueset"
)

// ErrComponentCount is returned when a field has the wrong number of
// components for the requested interpolator.
var ErrComponentCount = errors.New("wrong number of components per voxel")

// cellWeights locates p in g and returns the 8 corner indices of the
// enclosing cell and their trilinear weights, in the corner order used by
// grid.CellCornerIndices. ok is false when p is outside the grid.
func cellWeights(f *valueset.Field, p r3.Vec) (corners [8]int, h [8]float64, ok bool) {
	g := f.Grid()
	cell, inside := g.CellIndexContaining(p)
	if !inside {
		return corners, h, false
	}
	corners = g.CellCornerIndices(cell)

	off := g.Offsets()
	local := r3.Sub(p, g.PositionOfIndex(corners[0]))
	x := local.X / off[0]
	y := local.Y / off[1]
	z := local.Z / off[2]

	h[0] = (1 - x) * (1 - y) * (1 - z)
	h[1] = x * (1 - y) * (1 - z)
	h[2] = (1 - x) * y * (1 - z)
	h[3] = x * y * (1 - z)
	h[4] = (1 - x) * (1 - y) * z
	h[5] = x * (1 - y) * z
	h[6] = (1 - x) * y * z
	h[7] = x * y * z
	return corners, h, true
}

// VectorField interpolates a three component field trilinearly. It holds no
// mutable state and may be used from many goroutines at once.
type VectorField struct {
	field *valueset.Field
}

// NewVectorField wraps a field with exactly three components per voxel.
func NewVectorField(f *valueset.Field) (*VectorField, error) {
	if f.Components() != 3 {
		return nil, fmt.Errorf("%w: vector interpolation needs 3, field has %d", ErrComponentCount, f.Components())
	}
	return &VectorField{field: f}, nil
}

// Field returns the wrapped field.
func (v *VectorField) Field() *valueset.Field { return v.field }

// Interpolate returns the trilinear interpolation of the field at world
// position p. The second result is false, with a zero vector, when p is
// outside the grid; positions on the upper boundary faces count as outside.
//
// The grid must be axis aligned.
func (v *VectorField) Interpolate(p r3.Vec) (r3.Vec, bool) {
	corners, h, ok := cellWeights(v.field, p)
	if !ok {
		return r3.Vec{}, false
	}
	var res r3.Vec
	for c := 0; c < 8; c++ {
		res = r3.Add(res, r3.Scale(h[c], v.field.VectorAt(corners[c])))
	}
	return res, true
}

// EigenVectorInterpolate is Interpolate for fields of sign-less directions
// such as eigenvectors: every corner vector is first flipped into the half
// space of the first corner's vector. The result is not normalized.
func (v *VectorField) EigenVectorInterpolate(p r3.Vec) (r3.Vec, bool) {
	corners, h, ok := cellWeights(v.field, p)
	if !ok {
		return r3.Vec{}, false
	}
	ref := v.field.VectorAt(corners[0])
	var res r3.Vec
	for c := 0; c < 8; c++ {
		e := v.field.VectorAt(corners[c])
		if r3.Dot(e, ref) < 0 {
			e = r3.Scale(-1, e)
		}
		res = r3.Add(res, r3.Scale(h[c], e))
	}
	return res, true
}

// ScalarField interpolates a single component field, e.g. FA, trilinearly.
type ScalarField struct {
	field *valueset.Field
}

// NewScalarField wraps a field with exactly one component per voxel.
func NewScalarField(f *valueset.Field) (*ScalarField, error) {
	if f.Components() != 1 {
		return nil, fmt.Errorf("%w: scalar interpolation needs 1, field has %d", ErrComponentCount, f.Components())
	}
	return &ScalarField{field: f}, nil
}

// Interpolate returns the interpolated value at p, or false outside the grid.
func (s *ScalarField) Interpolate(p r3.Vec) (float64, bool) {
	corners, h, ok := cellWeights(s.field, p)
	if !ok {
		return 0, false
	}
	var res float64
	for c := 0; c < 8; c++ {
		res += h[c] * s.field.ScalarAt(corners[c])
	}
	return res, true
}
