package fibers

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// fiberPoint is a dataset point that remembers where it came from.
type fiberPoint struct {
	r3.Vec
	fiber int
	index int
}

// Compare implements the kdtree.Comparable interface
func (p fiberPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(fiberPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p fiberPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p fiberPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(fiberPoint)
	return r3.Norm2(r3.Sub(p.Vec, q.Vec))
}

// fiberPoints satisfies kdtree.Interface
type fiberPoints []fiberPoint

func (p fiberPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p fiberPoints) Len() int                              { return len(p) }
func (p fiberPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p fiberPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{fiberPoints: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{fiberPoints: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for fiberPoints
type pointPlane struct {
	fiberPoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.fiberPoints[i].X < p.fiberPoints[j].X
	case 1:
		return p.fiberPoints[i].Y < p.fiberPoints[j].Y
	case 2:
		return p.fiberPoints[i].Z < p.fiberPoints[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{fiberPoints: p.fiberPoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.fiberPoints[i], p.fiberPoints[j] = p.fiberPoints[j], p.fiberPoints[i]
}

// Index answers proximity queries over the points of a dataset. It is
// read-only after construction.
type Index struct {
	tree *kdtree.Tree
	size int
}

// NewIndex builds a kd-tree over all points of d.
func NewIndex(d *Dataset) *Index {
	points := make(fiberPoints, d.NumPoints())
	for i := range points {
		points[i] = fiberPoint{Vec: d.Point(i), fiber: d.PointFiber[i], index: i}
	}
	if len(points) == 0 {
		return &Index{}
	}
	return &Index{tree: kdtree.New(points, true), size: len(points)}
}

// Len returns the number of indexed points.
func (x *Index) Len() int { return x.size }

// Nearest returns the fiber and point index closest to p and the distance
// to it. ok is false for an empty index.
func (x *Index) Nearest(p r3.Vec) (fiber, point int, dist float64, ok bool) {
	if x.tree == nil {
		return -1, -1, 0, false
	}
	c, d := x.tree.Nearest(fiberPoint{Vec: p})
	if c == nil {
		return -1, -1, 0, false
	}
	fp := c.(fiberPoint)
	return fp.fiber, fp.index, math.Sqrt(d), true
}

// FibersWithin returns, in ascending order, every fiber with at least one
// point no further than radius from p.
func (x *Index) FibersWithin(p r3.Vec, radius float64) []int {
	if x.tree == nil {
		return nil
	}
	keeper := kdtree.NewDistKeeper(radius * radius)
	x.tree.NearestSet(keeper, fiberPoint{Vec: p})

	seen := make(map[int]bool)
	var result []int
	for _, item := range keeper.Heap {
		// Skip the sentinel value
		if item.Comparable == nil {
			continue
		}
		f := item.Comparable.(fiberPoint).fiber
		if !seen[f] {
			seen[f] = true
			result = append(result, f)
		}
	}
	sort.Ints(result)
	return result
}
