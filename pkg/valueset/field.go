package valueset

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"dtitrack/pkg/grid"
)

// Field pairs a value set with the grid it is sampled on. Fields are
// immutable and safe for concurrent reads. Several fields may share a grid.
type Field struct {
	grid   *grid.Grid
	values ValueSet
}

// NewField checks that values holds exactly Components() scalars per grid
// point.
func NewField(g *grid.Grid, values ValueSet) (*Field, error) {
	if g == nil || values == nil {
		return nil, fmt.Errorf("field needs both a grid and a value set")
	}
	if want := g.Size() * values.Components(); values.Size() != want {
		return nil, fmt.Errorf("%w: %d scalars for %d points with %d components (want %d)",
			ErrSizeMismatch, values.Size(), g.Size(), values.Components(), want)
	}
	return &Field{grid: g, values: values}, nil
}

// NewFloat64Field is a shortcut for a float64 field built from a slice.
func NewFloat64Field(g *grid.Grid, data []float64, components int) (*Field, error) {
	return NewField(g, NewValues(data, components))
}

// Grid returns the field's grid.
func (f *Field) Grid() *grid.Grid { return f.grid }

// ValueSet returns the field's samples.
func (f *Field) ValueSet() ValueSet { return f.values }

// Components returns the number of scalars per voxel.
func (f *Field) Components() int { return f.values.Components() }

// ScalarAt returns the i-th stored scalar as float64.
func (f *Field) ScalarAt(i int) float64 { return f.values.ScalarAt(i) }

// ValueAt returns the first component stored at lattice point (x,y,z). No
// interpolation is done; the coordinates must address an existing point.
func (f *Field) ValueAt(x, y, z int) float64 {
	return f.values.ScalarAt(f.grid.Index(x, y, z) * f.values.Components())
}

// ComponentAt returns component c of voxel idx.
func (f *Field) ComponentAt(idx, c int) float64 {
	return f.values.ScalarAt(idx*f.values.Components() + c)
}

// VectorAt returns the first three components of voxel idx. The field must
// have at least three components.
func (f *Field) VectorAt(idx int) r3.Vec {
	k := f.values.Components()
	return r3.Vec{
		X: f.values.ScalarAt(idx * k),
		Y: f.values.ScalarAt(idx*k + 1),
		Z: f.values.ScalarAt(idx*k + 2),
	}
}
