package tracking

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"dtitrack/pkg/grid"
	"dtitrack/pkg/interpolation"
	"dtitrack/pkg/valueset"
)

const tolerance = 1e-9

func near(a, b r3.Vec) bool {
	return math.Abs(a.X-b.X) <= tolerance && math.Abs(a.Y-b.Y) <= tolerance && math.Abs(a.Z-b.Z) <= tolerance
}

// fields builds an eigenvector field from dir and a constant anisotropy of 1.
func fields(t *testing.T, g *grid.Grid, dir func(i, j, k int) r3.Vec) (*valueset.Field, *valueset.Field) {
	t.Helper()
	vectors := make([]float64, 0, 3*g.Size())
	fa := make([]float64, g.Size())
	for idx := 0; idx < g.Size(); idx++ {
		e := dir(g.Decompose(idx))
		vectors = append(vectors, e.X, e.Y, e.Z)
		fa[idx] = 1
	}
	ef, err := valueset.NewFloat64Field(g, vectors, 3)
	if err != nil {
		t.Fatalf("Failed to create eigenvector field: %v", err)
	}
	ff, err := valueset.NewFloat64Field(g, fa, 1)
	if err != nil {
		t.Fatalf("Failed to create anisotropy field: %v", err)
	}
	return ef, ff
}

func alongX(i, j, k int) r3.Vec { return r3.Vec{X: 1} }

func newTracker(t *testing.T, g *grid.Grid, dir func(i, j, k int) r3.Vec, params Params) *Tracker {
	t.Helper()
	ef, ff := fields(t, g, dir)
	tr, err := NewTracker(ef, ff, params)
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	return tr
}

func params(minPoints int) Params {
	p := DefaultParams()
	p.MinPoints = minPoints
	return p
}

func TestTrackUniformField(t *testing.T) {
	tr := newTracker(t, grid.NewGrid(10, 10, 10), alongX, params(1))

	points := tr.TrackFiber([3]int{5, 5, 5})
	want := []float64{0.5, 1.5, 2.5, 3.5, 4.5, 5, 5.5, 6.5, 7.5, 8.5}
	if len(points) != len(want) {
		t.Fatalf("Expected %d points, got %d: %v", len(want), len(points), points)
	}
	for i, x := range want {
		if !near(points[i], r3.Vec{X: x, Y: 5, Z: 5}) {
			t.Errorf("Point %d: expected (%v, 5, 5), got %v", i, x, points[i])
		}
	}
}

func TestTrackFlippedEigenvectors(t *testing.T) {
	// Eigenvectors have no sign; alternating signs must not stop tracking.
	flip := func(i, j, k int) r3.Vec {
		if i%2 == 0 {
			return r3.Vec{X: -1}
		}
		return r3.Vec{X: 1}
	}
	tr := newTracker(t, grid.NewGrid(10, 10, 10), flip, params(1))

	if points := tr.TrackFiber([3]int{4, 4, 4}); len(points) != 10 {
		t.Errorf("Expected 10 points, got %d", len(points))
	}
}

func TestTrackMinPointsDiscard(t *testing.T) {
	tr := newTracker(t, grid.NewGrid(10, 10, 10), alongX, params(10))
	if points := tr.TrackFiber([3]int{5, 5, 5}); len(points) != 10 {
		t.Errorf("Expected fiber of exactly MinPoints to be kept, got %d points", len(points))
	}

	tr = newTracker(t, grid.NewGrid(10, 10, 10), alongX, params(11))
	if points := tr.TrackFiber([3]int{5, 5, 5}); points != nil {
		t.Errorf("Expected fiber shorter than MinPoints to be discarded, got %v", points)
	}
}

func TestTrackStepCap(t *testing.T) {
	p := params(1)
	p.MaxSteps = 3
	tr := newTracker(t, grid.NewGrid(10, 10, 10), alongX, p)

	points := tr.TrackFiber([3]int{5, 5, 5})
	if len(points) != 7 {
		t.Fatalf("Expected 3 points per direction plus the seed, got %d", len(points))
	}
	if !near(points[0], r3.Vec{X: 2.5, Y: 5, Z: 5}) || !near(points[6], r3.Vec{X: 7.5, Y: 5, Z: 5}) {
		t.Errorf("Unexpected end points %v and %v", points[0], points[6])
	}
}

func TestTrackScaledTranslatedGrid(t *testing.T) {
	g, err := grid.NewGridFromAxes([3]int{10, 10, 10}, r3.Vec{X: 10},
		[3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}, [3]float64{2, 2, 2})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	tr := newTracker(t, g, alongX, params(1))

	points := tr.TrackFiber([3]int{5, 5, 5})
	if len(points) != 10 {
		t.Fatalf("Expected 10 points, got %d", len(points))
	}
	if !near(points[0], r3.Vec{X: 11, Y: 10, Z: 10}) {
		t.Errorf("Expected first point (11, 10, 10), got %v", points[0])
	}
	if !near(points[5], r3.Vec{X: 20, Y: 10, Z: 10}) {
		t.Errorf("Expected seed at (20, 10, 10), got %v", points[5])
	}
	if !near(points[9], r3.Vec{X: 27, Y: 10, Z: 10}) {
		t.Errorf("Expected last point (27, 10, 10), got %v", points[9])
	}
}

func TestTrackRotatedGrid(t *testing.T) {
	g, err := grid.NewGridFromAxes([3]int{10, 10, 10}, r3.Vec{},
		[3]r3.Vec{{Y: 1}, {X: -1}, {Z: 1}}, [3]float64{1, 1, 1})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	// World y is the lattice x axis.
	tr := newTracker(t, g, func(i, j, k int) r3.Vec { return r3.Vec{Y: 1} }, params(1))

	points := tr.TrackFiber([3]int{5, 5, 5})
	if len(points) != 10 {
		t.Fatalf("Expected 10 points, got %d", len(points))
	}
	if !near(points[0], r3.Vec{X: -5, Y: 0.5, Z: 5}) || !near(points[9], r3.Vec{X: -5, Y: 8.5, Z: 5}) {
		t.Errorf("Unexpected end points %v and %v", points[0], points[9])
	}
}

func TestTrackStopsAtDirectionDiscontinuity(t *testing.T) {
	turn := func(i, j, k int) r3.Vec {
		if i >= 7 {
			return r3.Vec{Y: 1}
		}
		return r3.Vec{X: 1}
	}
	tr := newTracker(t, grid.NewGrid(10, 10, 10), turn, params(1))

	points := tr.TrackFiber([3]int{5, 5, 5})
	if len(points) != 8 {
		t.Fatalf("Expected 8 points, got %d: %v", len(points), points)
	}
	if last := points[len(points)-1]; !near(last, r3.Vec{X: 6.5, Y: 5, Z: 5}) {
		t.Errorf("Expected forward growth to stop at (6.5, 5, 5), got %v", last)
	}
}

func TestTrackStopsAtLowAnisotropy(t *testing.T) {
	g := grid.NewGrid(10, 10, 10)
	ef, _ := fields(t, g, alongX)
	fa := make([]float64, g.Size())
	for idx := range fa {
		if i, _, _ := g.Decompose(idx); i != 3 {
			fa[idx] = 0.9
		}
	}
	ff, _ := valueset.NewFloat64Field(g, fa, 1)
	tr, err := NewTracker(ef, ff, params(1))
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}

	// Voxel 3 is entered through its face at 3.5 but not left.
	points := tr.TrackFiber([3]int{5, 5, 5})
	if len(points) != 7 || !near(points[0], r3.Vec{X: 3.5, Y: 5, Z: 5}) {
		t.Errorf("Expected 7 points starting at 3.5, got %v", points)
	}
}

func TestTrackNoFiber(t *testing.T) {
	zero := func(i, j, k int) r3.Vec { return r3.Vec{} }
	tr := newTracker(t, grid.NewGrid(10, 10, 10), zero, params(1))
	if points := tr.TrackFiber([3]int{5, 5, 5}); points != nil {
		t.Errorf("Expected no fiber from a zero eigenvector, got %v", points)
	}

	tr = newTracker(t, grid.NewGrid(10, 10, 10), alongX, params(1))
	for _, seed := range [][3]int{{0, 5, 5}, {5, 9, 5}, {5, 5, 0}} {
		if points := tr.TrackFiber(seed); points != nil {
			t.Errorf("Expected no fiber from border seed %v, got %v", seed, points)
		}
	}
}

func TestNewTrackerValidation(t *testing.T) {
	g := grid.NewGrid(4, 4, 4)
	ef, ff := fields(t, g, alongX)

	if _, err := NewTracker(ff, ff, DefaultParams()); !errors.Is(err, interpolation.ErrComponentCount) {
		t.Errorf("Expected ErrComponentCount for a scalar eigenvector field, got %v", err)
	}
	if _, err := NewTracker(ef, ef, DefaultParams()); !errors.Is(err, interpolation.ErrComponentCount) {
		t.Errorf("Expected ErrComponentCount for a vector anisotropy field, got %v", err)
	}

	other, _ := valueset.NewFloat64Field(grid.NewGrid(4, 4, 5), make([]float64, 80), 1)
	if _, err := NewTracker(ef, other, DefaultParams()); err == nil {
		t.Error("Expected error for fields on different lattices")
	}

	tr, err := NewTracker(ef, ff, Params{MinPoints: 1})
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	if tr.Params().MaxSteps != 200 {
		t.Errorf("Expected default step cap 200, got %d", tr.Params().MaxSteps)
	}
}

func TestDistanceToBorder(t *testing.T) {
	tests := []struct {
		pos   float64
		coord int
		e     float64
		want  float64
	}{
		{5, 5, 1, 0.5},
		{5, 5, -1, 0.5},
		{5, 5, 0.5, 1},
		{4.5, 5, 1, 1},
		{4.5, 5, -1, 0},
		{5.5, 5, -1, 1},
		{5, 5, 0, noBorder},
	}
	for _, tc := range tests {
		if got := distanceToBorder(tc.pos, tc.coord, tc.e); math.Abs(got-tc.want) > tolerance {
			t.Errorf("distanceToBorder(%v, %d, %v): expected %v, got %v", tc.pos, tc.coord, tc.e, tc.want, got)
		}
	}
}

func TestMonotonic(t *testing.T) {
	tests := []struct {
		old, next [3]int
		e         r3.Vec
		want      bool
	}{
		{[3]int{5, 5, 5}, [3]int{6, 5, 5}, r3.Vec{X: -0.1, Y: 1}, false},
		{[3]int{5, 5, 5}, [3]int{4, 5, 5}, r3.Vec{Y: 1}, false},
		{[3]int{5, 5, 5}, [3]int{4, 5, 5}, r3.Vec{X: -1}, true},
		{[3]int{5, 5, 5}, [3]int{6, 5, 5}, r3.Vec{X: 1}, true},
		{[3]int{5, 5, 5}, [3]int{6, 5, 5}, r3.Vec{Y: 1}, true},
		{[3]int{5, 5, 5}, [3]int{6, 4, 5}, r3.Vec{X: 1, Y: -1}, true},
		{[3]int{5, 5, 5}, [3]int{6, 4, 5}, r3.Vec{X: 1, Y: 1}, false},
		{[3]int{5, 5, 5}, [3]int{5, 5, 4}, r3.Vec{X: 1, Z: -0.5}, true},
	}
	for _, tc := range tests {
		if got := monotonic(tc.old, tc.next, tc.e); got != tc.want {
			t.Errorf("monotonic(%v -> %v, %v): expected %v, got %v", tc.old, tc.next, tc.e, tc.want, got)
		}
	}
}

func TestTrackStopsAtNonMonotonicStep(t *testing.T) {
	// With MinCos -1 the eigenvector is never flipped, so growing backwards
	// into voxel 4 meets a +x direction and the step is rejected.
	p := params(1)
	p.MinCos = -1
	tr := newTracker(t, grid.NewGrid(10, 10, 10), alongX, p)

	points := tr.TrackFiber([3]int{5, 5, 5})
	want := []float64{4.5, 5, 5.5, 6.5, 7.5, 8.5}
	if len(points) != len(want) {
		t.Fatalf("Expected %d points, got %d: %v", len(want), len(points), points)
	}
	for i, x := range want {
		if !near(points[i], r3.Vec{X: x, Y: 5, Z: 5}) {
			t.Errorf("Point %d: expected (%v, 5, 5), got %v", i, x, points[i])
		}
	}
}
