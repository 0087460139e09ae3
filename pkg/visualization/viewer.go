package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"

	"dtitrack/pkg/fibers"
	"dtitrack/pkg/valueset"
)

// Viewer renders axis aligned slices of a scalar field, typically the FA
// map, optionally with tracked fibers drawn on top.
type Viewer struct {
	field *valueset.Field

	// dimensions of the lattice
	width  int
	height int
	depth  int

	// value range used to normalise intensities
	min, max float64
}

// NewViewer creates a viewer for a single component field.
func NewViewer(f *valueset.Field) (*Viewer, error) {
	if f.Components() != 1 {
		return nil, fmt.Errorf("viewer needs a scalar field, got %d components", f.Components())
	}
	nx, ny, nz := f.Grid().Counts()
	lo, hi := valueset.Range(f.ValueSet())
	return &Viewer{field: f, width: nx, height: ny, depth: nz, min: lo, max: hi}, nil
}

func (v *Viewer) intensity(x, y, z int) uint16 {
	if v.max <= v.min {
		return 0
	}
	s := (v.field.ValueAt(x, y, z) - v.min) / (v.max - v.min)
	return uint16(math.Max(0, math.Min(65535, s*65535)))
}

// sliceSize returns the number of slices along axis and the image size of
// one slice.
func (v *Viewer) sliceSize(axis string) (count, w, h int, err error) {
	switch axis {
	case "x", "X":
		return v.width, v.depth, v.height, nil
	case "y", "Y":
		return v.height, v.width, v.depth, nil
	case "z", "Z":
		return v.depth, v.width, v.height, nil
	}
	return 0, 0, 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// pixel maps lattice coordinates to the image position within a slice.
func pixel(axis string, x, y, z int) (px, py int) {
	switch axis {
	case "x", "X":
		return z, y
	case "y", "Y":
		return x, z
	}
	return x, y
}

// ExtractSlice extracts the lattice plane at position along the given axis
// as a 16 bit grey image scaled to the field's value range.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	count, w, h, err := v.sliceSize(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= count {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, count, axis)
	}

	img := image.NewGray16(image.Rect(0, 0, w, h))
	for a := 0; a < w; a++ {
		for b := 0; b < h; b++ {
			var x, y, z int
			switch axis {
			case "x", "X":
				x, y, z = position, b, a
			case "y", "Y":
				x, y, z = a, position, b
			default:
				x, y, z = a, b, position
			}
			img.SetGray16(a, b, color.Gray16{Y: v.intensity(x, y, z)})
		}
	}
	return img, nil
}

// OverlayFibers draws every fiber point that lies in the slice plane onto a
// colour copy of img. Points are coloured by local fiber direction: red for
// x, green for y, blue for z.
func (v *Viewer) OverlayFibers(img *image.Gray16, axis string, position int, ds *fibers.Dataset) (*image.RGBA, error) {
	if _, _, _, err := v.sliceSize(axis); err != nil {
		return nil, err
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	if ds == nil {
		return out, nil
	}

	g := v.field.Grid()
	for f := 0; f < ds.Len(); f++ {
		line := ds.Fiber(f)
		for i, p := range line {
			q := g.WorldToGrid(p)
			x, y, z := int(math.Round(q.X)), int(math.Round(q.Y)), int(math.Round(q.Z))
			if !inPlane(axis, position, x, y, z) {
				continue
			}
			px, py := pixel(axis, x, y, z)
			if !(image.Point{X: px, Y: py}.In(out.Bounds())) {
				continue
			}
			out.SetRGBA(px, py, directionColor(g.DirectionToGrid(tangent(line, i))))
		}
	}
	return out, nil
}

func inPlane(axis string, position, x, y, z int) bool {
	switch axis {
	case "x", "X":
		return x == position
	case "y", "Y":
		return y == position
	}
	return z == position
}

// tangent is the central difference direction of a polyline at point i.
func tangent(line []r3.Vec, i int) r3.Vec {
	a, b := i-1, i+1
	if a < 0 {
		a = 0
	}
	if b >= len(line) {
		b = len(line) - 1
	}
	return r3.Sub(line[b], line[a])
}

func directionColor(d r3.Vec) color.RGBA {
	n := r3.Norm(d)
	if n == 0 {
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	d = r3.Scale(1/n, d)
	return color.RGBA{
		R: uint8(math.Abs(d.X) * 255),
		G: uint8(math.Abs(d.Y) * 255),
		B: uint8(math.Abs(d.Z) * 255),
		A: 255,
	}
}

// SaveSlice saves an image as JPEG
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence writes every slice along axis to outputDir, with the
// fibers of ds drawn on top when ds is not nil. It returns the number of
// images written.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string, ds *fibers.Dataset) (int, error) {
	count, _, _, err := v.sliceSize(axis)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	for pos := 0; pos < count; pos++ {
		gray, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}
		var img image.Image = gray
		if ds != nil {
			if img, err = v.OverlayFibers(gray, axis, pos, ds); err != nil {
				return pos, err
			}
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}
	return count, nil
}
