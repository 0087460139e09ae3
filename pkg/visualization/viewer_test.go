package visualization

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"dtitrack/pkg/fibers"
	"dtitrack/pkg/grid"
	"dtitrack/pkg/valueset"
)

// newTestViewer builds a viewer over a field filled by value.
func newTestViewer(t *testing.T, width, height, depth int, value func(x, y, z int) float64) *Viewer {
	t.Helper()
	g := grid.NewGrid(width, height, depth)
	data := make([]float64, g.Size())
	for idx := range data {
		data[idx] = value(g.Decompose(idx))
	}
	f, err := valueset.NewFloat64Field(g, data, 1)
	if err != nil {
		t.Fatalf("Failed to create field: %v", err)
	}
	v, err := NewViewer(f)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}
	return v
}

func TestNewViewer(t *testing.T) {
	v := newTestViewer(t, 10, 10, 5, func(x, y, z int) float64 { return float64(x+y+z) / 25 })

	if v.width != 10 || v.height != 10 || v.depth != 5 {
		t.Errorf("Expected dimensions 10x10x5, got %dx%dx%d", v.width, v.height, v.depth)
	}
	if v.min != 0 || math.Abs(v.max-22.0/25) > 1e-12 {
		t.Errorf("Expected value range [0, 0.88], got [%v, %v]", v.min, v.max)
	}

	g := grid.NewGrid(2, 2, 2)
	vectors, _ := valueset.NewFloat64Field(g, make([]float64, 24), 3)
	if _, err := NewViewer(vectors); err == nil {
		t.Error("Expected error for a vector field, got nil")
	}
}

// TestExtractSlice verifies that slices are correctly extracted from the field
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 10, 5
	// Each slice along Z has a unique value
	v := newTestViewer(t, width, height, depth, func(x, y, z int) float64 { return float64(z) })

	for z := 0; z < depth; z++ {
		img, err := v.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d",
				width, height, bounds.Dx(), bounds.Dy())
		}

		expected := uint16(float64(z) / float64(depth-1) * 65535)
		if got := img.Gray16At(width/2, height/2).Y; math.Abs(float64(got)-float64(expected)) > 1.0 {
			t.Errorf("Expected Z slice value ~%d at center, got %d", expected, got)
		}
	}

	imgX, err := v.ExtractSlice("x", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", depth, height, b.Dx(), b.Dy())
	}
	if got := imgX.Gray16At(depth-1, 0).Y; got != 65535 {
		t.Errorf("Expected the last column of an X slice to be the top Z value, got %d", got)
	}

	imgY, err := v.ExtractSlice("y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", width, depth, b.Dx(), b.Dy())
	}

	if _, err := v.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := v.ExtractSlice("z", depth); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
}

func TestExtractSliceConstantField(t *testing.T) {
	v := newTestViewer(t, 3, 3, 3, func(x, y, z int) float64 { return 0.5 })
	img, err := v.ExtractSlice("z", 1)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	if got := img.Gray16At(1, 1).Y; got != 0 {
		t.Errorf("Expected black slice for a constant field, got %d", got)
	}
}

func TestOverlayFibers(t *testing.T) {
	v := newTestViewer(t, 10, 10, 5, func(x, y, z int) float64 { return float64(x) })
	ds := fibers.NewDataset([][]r3.Vec{
		{{X: 1, Y: 2, Z: 2}, {X: 2, Y: 2, Z: 2}, {X: 3, Y: 2, Z: 2}},
		{{X: 7, Y: 7, Z: 0}, {X: 7, Y: 7, Z: 1}},
	})

	gray, err := v.ExtractSlice("z", 2)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	img, err := v.OverlayFibers(gray, "z", 2, ds)
	if err != nil {
		t.Fatalf("Failed to overlay fibers: %v", err)
	}

	red := color.RGBA{R: 255, A: 255}
	for x := 1; x <= 3; x++ {
		if got := img.RGBAAt(x, 2); got != red {
			t.Errorf("Expected x-running fiber drawn red at (%d, 2), got %v", x, got)
		}
	}
	if got := img.RGBAAt(7, 7); got.R != got.G || got.G != got.B {
		t.Errorf("Fiber outside the slice plane should not be drawn, got %v", got)
	}

	img, err = v.OverlayFibers(gray, "z", 1, ds)
	if err != nil {
		t.Fatalf("Failed to overlay fibers: %v", err)
	}
	if got := img.RGBAAt(7, 7); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("Expected z-running fiber drawn blue at (7, 7), got %v", got)
	}

	if _, err := v.OverlayFibers(gray, "w", 0, ds); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	v := newTestViewer(t, 5, 5, 3, func(x, y, z int) float64 { return float64(x * y) })
	ds := fibers.NewDataset([][]r3.Vec{{{X: 1, Y: 1, Z: 1}, {X: 2, Y: 1, Z: 1}}})

	outputDir := filepath.Join(t.TempDir(), "slices")
	n, err := v.SaveSliceSequence("z", outputDir, ds)
	if err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 slices written, got %d", n)
	}
	for z := 0; z < 3; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.jpg", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if _, err := v.SaveSliceSequence("x", filepath.Join(t.TempDir(), "plain"), nil); err != nil {
		t.Errorf("Failed to save slices without fibers: %v", err)
	}
	if _, err := v.SaveSliceSequence("invalid", outputDir, nil); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}
