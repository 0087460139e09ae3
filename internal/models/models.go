package models

import (
	"fmt"
	"time"
)

// Octant selects one half of the seed range along each axis. Bit 0 picks the
// upper x half, bit 1 the upper y half and bit 2 the upper z half, so the
// eight octants 0..7 partition the seed lattice without overlap.
type Octant uint8

// NumOctants is the number of disjoint seed partitions.
const NumOctants = 8

// SeedRange is a half-open lattice range [Start, End) along one axis.
type SeedRange struct {
	Start, End int
}

// Bounds returns the seed range of this octant along an axis with count
// lattice points. Lattice boundary points are never seeds, so the union of
// both halves is [1, count-1).
func (o Octant) Bounds(axis, count int) SeedRange {
	if o&(1<<uint(axis)) != 0 {
		return SeedRange{Start: count / 2, End: count - 1}
	}
	return SeedRange{Start: 1, End: count / 2}
}

func (o Octant) String() string {
	return fmt.Sprintf("octant %d", uint8(o))
}

// Progress receives one increment per processed work item. A
// *github.com/cheggaaa/pb.ProgressBar satisfies it.
type Progress interface {
	Increment() int
}

// Summary describes the result of one tracking run.
type Summary struct {
	// Seeds is the number of seed points processed
	Seeds int

	// Fibers is the number of fibers that passed the minimum length
	Fibers int

	// Points is the total number of fiber points
	Points int

	// MeanPoints and StdDevPoints describe the per-fiber point count
	MeanPoints   float64
	StdDevPoints float64

	// MeanLength is the mean world-space arc length of a fiber in mm
	MeanLength float64

	// MinLength and MaxLength bound the fiber arc lengths in mm
	MinLength float64
	MaxLength float64

	// MeanFA is the fractional anisotropy averaged over all fiber points
	MeanFA float64

	// MeanNeighbors is the average number of other fibers passing within one
	// voxel spacing of a fiber's midpoint
	MeanNeighbors float64

	// Duration is the wall time spent tracking
	Duration time.Duration
}
