package tensor

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"dtitrack/pkg/grid"
	"dtitrack/pkg/valueset"
)

type counter struct{ n atomic.Int64 }

func (c *counter) Increment() int { return int(c.n.Add(1)) }

func TestFractionalAnisotropy(t *testing.T) {
	tests := []struct {
		name       string
		l1, l2, l3 float64
		want       float64
	}{
		{"isotropic", 1, 1, 1, 0},
		{"zero", 0, 0, 0, 0},
		{"line", 1, 0, 0, 1},
		{"plane", 1, 1, 0, math.Sqrt(0.5)},
	}
	for _, tc := range tests {
		if got := FractionalAnisotropy(tc.l1, tc.l2, tc.l3); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%s: expected FA %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPrincipalDirection(t *testing.T) {
	// Strongly prolate along y.
	e, fa := Principal([Components]float64{0.2, 0, 0, 1.7, 0, 0.2})
	if math.Abs(math.Abs(e.Y)-1) > 1e-9 || math.Abs(e.X) > 1e-9 || math.Abs(e.Z) > 1e-9 {
		t.Errorf("Expected principal direction +-y, got %v", e)
	}
	if fa <= 0.7 || fa > 1 {
		t.Errorf("Expected high anisotropy, got %v", fa)
	}

	// Rotated 45 degrees in the xy plane: eigenvalues 3 and 1 along (1,1,0) and (1,-1,0).
	e, _ = Principal([Components]float64{2, 1, 0, 2, 0, 1})
	want := r3.Unit(r3.Vec{X: 1, Y: 1})
	if math.Abs(math.Abs(r3.Dot(e, want))-1) > 1e-9 {
		t.Errorf("Expected principal direction along (1,1,0), got %v", e)
	}

	e, fa = Principal([Components]float64{})
	if e != (r3.Vec{}) || fa != 0 {
		t.Errorf("Expected zero result for zero tensor, got %v %v", e, fa)
	}
}

func TestDecompose(t *testing.T) {
	g := grid.NewGrid(4, 3, 2)
	data := make([]float32, g.Size()*Components)
	for idx := 0; idx < g.Size(); idx++ {
		// Alternate between x- and z-dominant tensors.
		if idx%2 == 0 {
			copy(data[idx*Components:], []float32{1, 0, 0, 0.1, 0, 0.1})
		} else {
			copy(data[idx*Components:], []float32{0.1, 0, 0, 0.1, 0, 1})
		}
	}
	f, err := valueset.NewField(g, valueset.NewValues(data, Components))
	if err != nil {
		t.Fatalf("Failed to create tensor field: %v", err)
	}

	progress := &counter{}
	ef, err := Decompose(context.Background(), f, 3, progress)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if int(progress.n.Load()) != g.Size() {
		t.Errorf("Expected %d progress increments, got %d", g.Size(), progress.n.Load())
	}
	if ef.Vectors.Components() != 3 || ef.FA.Components() != 1 {
		t.Fatalf("Unexpected component counts %d/%d", ef.Vectors.Components(), ef.FA.Components())
	}
	for idx := 0; idx < g.Size(); idx++ {
		e := ef.Vectors.VectorAt(idx)
		axis := e.X
		if idx%2 == 1 {
			axis = e.Z
		}
		if math.Abs(math.Abs(axis)-1) > 1e-6 {
			t.Errorf("Voxel %d: unexpected principal direction %v", idx, e)
		}
		if fa := ef.FA.ScalarAt(idx); math.Abs(fa-FractionalAnisotropy(1, 0.1, 0.1)) > 1e-6 {
			t.Errorf("Voxel %d: unexpected FA %v", idx, fa)
		}
	}
}

func TestDecomposeRejectsWrongComponents(t *testing.T) {
	f, _ := valueset.NewFloat64Field(grid.NewGrid(2, 2, 2), make([]float64, 24), 3)
	if _, err := Decompose(context.Background(), f, 1, nil); err == nil {
		t.Error("Expected error for a 3 component field")
	}
}

func TestDecomposeCancelled(t *testing.T) {
	f, _ := valueset.NewFloat64Field(grid.NewGrid(2, 2, 2), make([]float64, 8*Components), Components)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Decompose(ctx, f, 2, nil); err == nil {
		t.Error("Expected error for a cancelled context")
	}
}
