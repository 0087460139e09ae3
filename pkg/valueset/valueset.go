// Package valueset holds per-voxel sample storage and the Field type that
// pairs a value set with the grid it is sampled on.
package valueset

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrUnsupportedType is returned for element types other than uint8,
	// int16, int32, float32 and float64.
	ErrUnsupportedType = errors.New("unsupported value set element type")

	// ErrSizeMismatch is returned when a value set does not hold exactly one
	// tuple per grid point.
	ErrSizeMismatch = errors.New("value set size does not match grid")
)

// DataType tags the element type stored in a value set.
type DataType int

const (
	Uint8 DataType = iota
	Int16
	Int32
	Float32
	Float64
)

func (d DataType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

// Numeric is the closed set of element types a value set may hold.
type Numeric interface {
	uint8 | int16 | int32 | float32 | float64
}

// ValueSet is flat per-voxel storage with a fixed number of components per
// voxel, read back as float64 regardless of the stored width.
type ValueSet interface {
	// Size returns the number of scalars stored (voxels * components).
	Size() int
	// Components returns the number of scalars per voxel.
	Components() int
	// DataType returns the stored element type.
	DataType() DataType
	// ScalarAt returns the i-th stored scalar widened to float64.
	ScalarAt(i int) float64
}

// Values is a ValueSet backed by a slice of T.
type Values[T Numeric] struct {
	data       []T
	components int
	dtype      DataType
}

// NewValues wraps data without copying. components must be positive.
func NewValues[T Numeric](data []T, components int) *Values[T] {
	if components < 1 {
		panic(fmt.Sprintf("valueset: components must be positive, got %d", components))
	}
	return &Values[T]{data: data, components: components, dtype: dataTypeOf[T]()}
}

func dataTypeOf[T Numeric]() DataType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Uint8
	case int16:
		return Int16
	case int32:
		return Int32
	case float32:
		return Float32
	default:
		return Float64
	}
}

// New wraps an untyped slice, selecting the element type once. Any slice type
// other than the five supported ones yields ErrUnsupportedType.
func New(data any, components int) (ValueSet, error) {
	if components < 1 {
		return nil, fmt.Errorf("components must be positive, got %d", components)
	}
	switch d := data.(type) {
	case []uint8:
		return NewValues(d, components), nil
	case []int16:
		return NewValues(d, components), nil
	case []int32:
		return NewValues(d, components), nil
	case []float32:
		return NewValues(d, components), nil
	case []float64:
		return NewValues(d, components), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, data)
	}
}

func (v *Values[T]) Size() int              { return len(v.data) }
func (v *Values[T]) Components() int        { return v.components }
func (v *Values[T]) DataType() DataType     { return v.dtype }
func (v *Values[T]) ScalarAt(i int) float64 { return float64(v.data[i]) }

// Raw exposes the backing slice. Callers must not modify it.
func (v *Values[T]) Raw() []T { return v.data }

// Float64s copies any value set into a fresh []float64.
func Float64s(vs ValueSet) []float64 {
	if f, ok := vs.(*Values[float64]); ok {
		out := make([]float64, len(f.data))
		copy(out, f.data)
		return out
	}
	out := make([]float64, vs.Size())
	for i := range out {
		out[i] = vs.ScalarAt(i)
	}
	return out
}

// Range returns the smallest and largest stored scalar. An empty value set
// yields (0, 0).
func Range(vs ValueSet) (min, max float64) {
	if vs.Size() == 0 {
		return 0, 0
	}
	all := Float64s(vs)
	return floats.Min(all), floats.Max(all)
}
