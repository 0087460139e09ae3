package grid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrOutOfBounds is matched by every *OutOfBoundsError.
var ErrOutOfBounds = errors.New("lattice index out of bounds")

// OutOfBoundsError reports a lattice index that is not part of a grid.
type OutOfBoundsError struct {
	Index      int
	NX, NY, NZ int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("lattice index %d is not part of a %dx%dx%d grid",
		e.Index, e.NX, e.NY, e.NZ)
}

// Is lets errors.Is(err, ErrOutOfBounds) match.
func (e *OutOfBoundsError) Is(target error) bool { return target == ErrOutOfBounds }

func (g *Grid) checkIndex(id int) (x, y, z int, err error) {
	if id < 0 {
		return 0, 0, 0, &OutOfBoundsError{Index: id, NX: g.nx, NY: g.ny, NZ: g.nz}
	}
	x, y, z = g.Decompose(id)
	if x >= g.nx || y >= g.ny || z >= g.nz {
		return 0, 0, 0, &OutOfBoundsError{Index: id, NX: g.nx, NY: g.ny, NZ: g.nz}
	}
	return x, y, z, nil
}

// Neighbors6 returns the axis-aligned neighbours of lattice point id in the
// order -x, +x, -y, +y, -z, +z, skipping those outside the grid.
func (g *Grid) Neighbors6(id int) ([]int, error) {
	x, y, z, err := g.checkIndex(id)
	if err != nil {
		return nil, err
	}
	slab := g.nx * g.ny
	neighbors := make([]int, 0, 6)
	if x > 0 {
		neighbors = append(neighbors, id-1)
	}
	if x < g.nx-1 {
		neighbors = append(neighbors, id+1)
	}
	if y > 0 {
		neighbors = append(neighbors, id-g.nx)
	}
	if y < g.ny-1 {
		neighbors = append(neighbors, id+g.nx)
	}
	if z > 0 {
		neighbors = append(neighbors, id-slab)
	}
	if z < g.nz-1 {
		neighbors = append(neighbors, id+slab)
	}
	return neighbors, nil
}

// Neighbors27 returns id itself and every lattice point within one step along
// each axis, skipping points outside the grid.
func (g *Grid) Neighbors27(id int) ([]int, error) {
	x, y, z, err := g.checkIndex(id)
	if err != nil {
		return nil, err
	}
	neighbors := make([]int, 0, 27)
	for _, dz := range []int{0, -1, 1} {
		for _, dx := range []int{0, -1, 1} {
			for _, dy := range []int{0, -1, 1} {
				if n := g.latticeIndex(x+dx, y+dy, z+dz); n != -1 {
					neighbors = append(neighbors, n)
				}
			}
		}
	}
	return neighbors, nil
}

// Neighbors9XY returns the up to 8 in-plane neighbours of id in the XY plane,
// walking counter-clockwise starting at -x.
func (g *Grid) Neighbors9XY(id int) ([]int, error) {
	x, y, z, err := g.checkIndex(id)
	if err != nil {
		return nil, err
	}
	return g.ring(x, y, z, [8][3]int{
		{-1, 0, 0}, {-1, -1, 0}, {0, -1, 0}, {1, -1, 0},
		{1, 0, 0}, {1, 1, 0}, {0, 1, 0}, {-1, 1, 0},
	}), nil
}

// Neighbors9YZ is Neighbors9XY for the YZ plane, starting at -z.
func (g *Grid) Neighbors9YZ(id int) ([]int, error) {
	x, y, z, err := g.checkIndex(id)
	if err != nil {
		return nil, err
	}
	return g.ring(x, y, z, [8][3]int{
		{0, 0, -1}, {0, -1, -1}, {0, -1, 0}, {0, -1, 1},
		{0, 0, 1}, {0, 1, 1}, {0, 1, 0}, {0, 1, -1},
	}), nil
}

// Neighbors9XZ is Neighbors9XY for the XZ plane, starting at -z.
func (g *Grid) Neighbors9XZ(id int) ([]int, error) {
	x, y, z, err := g.checkIndex(id)
	if err != nil {
		return nil, err
	}
	return g.ring(x, y, z, [8][3]int{
		{0, 0, -1}, {-1, 0, -1}, {-1, 0, 0}, {-1, 0, 1},
		{0, 0, 1}, {1, 0, 1}, {1, 0, 0}, {1, 0, -1},
	}), nil
}

func (g *Grid) ring(x, y, z int, offsets [8][3]int) []int {
	neighbors := make([]int, 0, 8)
	for _, o := range offsets {
		if n := g.latticeIndex(x+o[0], y+o[1], z+o[2]); n != -1 {
			neighbors = append(neighbors, n)
		}
	}
	return neighbors
}

// latticeIndex is Index with bounds checking; -1 marks a point off the grid.
func (g *Grid) latticeIndex(x, y, z int) int {
	if x < 0 || y < 0 || z < 0 || x >= g.nx || y >= g.ny || z >= g.nz {
		return -1
	}
	return g.Index(x, y, z)
}

// VoxelNumAt returns the linear index of lattice point (x,y,z) or -1 if it is
// not part of the grid.
func (g *Grid) VoxelNumAt(x, y, z int) int {
	return g.latticeIndex(x, y, z)
}

// VoxelCoord returns, per axis, the lattice coordinate of the voxel whose
// center is nearest to p. An axis is -1 when p's lattice coordinate on that
// axis lies outside [0, count-1).
func (g *Grid) VoxelCoord(p r3.Vec) [3]int {
	v := g.WorldToGrid(p)
	c := [3]float64{v.X, v.Y, v.Z}
	n := [3]int{g.nx, g.ny, g.nz}
	var res [3]int
	for a := 0; a < 3; a++ {
		if c[a] >= 0 && c[a] < float64(n[a]-1) {
			res[a] = int(math.Floor(c[a] + 0.5))
		} else {
			res[a] = -1
		}
	}
	return res
}

// VoxelNum returns the linear index of the voxel containing p, or -1 if p is
// outside the grid. Voxels are centered on lattice points.
func (g *Grid) VoxelNum(p r3.Vec) int {
	c := g.VoxelCoord(p)
	if c[0] == -1 || c[1] == -1 || c[2] == -1 {
		return -1
	}
	return g.Index(c[0], c[1], c[2])
}

// VoxelVertices returns the 8 corners of the voxel box centered at point,
// shrunk on every side by |margin|.
func (g *Grid) VoxelVertices(point r3.Vec, margin float64) [8]r3.Vec {
	hx := g.offsets[0]/2 - math.Abs(margin)
	hy := g.offsets[1]/2 - math.Abs(margin)
	hz := g.offsets[2]/2 - math.Abs(margin)
	return [8]r3.Vec{
		{X: point.X - hx, Y: point.Y - hy, Z: point.Z - hz},
		{X: point.X + hx, Y: point.Y - hy, Z: point.Z - hz},
		{X: point.X + hx, Y: point.Y - hy, Z: point.Z + hz},
		{X: point.X - hx, Y: point.Y - hy, Z: point.Z + hz},
		{X: point.X - hx, Y: point.Y + hy, Z: point.Z - hz},
		{X: point.X + hx, Y: point.Y + hy, Z: point.Z - hz},
		{X: point.X + hx, Y: point.Y + hy, Z: point.Z + hz},
		{X: point.X - hx, Y: point.Y + hy, Z: point.Z + hz},
	}
}
