package h5io

import (
	"fmt"

	"dtitrack/pkg/fibers"
)

// WriteFibers stores ds at path as /points (N x 3), /fiber_starts,
// /fiber_lengths and /point_fiber, plus /fiber_count. The points dataset
// carries the fiber count as attribute "count". An empty dataset is written
// as /fiber_count alone.
func WriteFibers(path string, ds *fibers.Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}

	w, err := create(path)
	if err != nil {
		return err
	}

	w.ints(fiberCountPath, []int{ds.Len()})
	if ds.Len() > 0 {
		points := w.float64s(pointsPath, []uint64{uint64(ds.NumPoints()), 3}, ds.Points)
		w.ints(fiberStartsPath, ds.StartIndices)
		w.ints(fiberLengthsPath, ds.Lengths)
		w.ints(pointFiberPath, ds.PointFiber)
		if points != nil {
			if err := points.WriteAttribute(countAttribute, int64(ds.Len())); err != nil && w.err == nil {
				w.err = fmt.Errorf("failed to write %s attribute: %w", countAttribute, err)
			}
		}
	}
	return w.close()
}

// ReadFibers loads a dataset written by WriteFibers and validates it.
func ReadFibers(path string) (*fibers.Dataset, error) {
	f, found, err := datasets(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	count, err := readInts(found, fiberCountPath, 1)
	if err != nil {
		return nil, err
	}
	ds := &fibers.Dataset{}
	if count[0] == 0 {
		return ds, nil
	}

	if ds.Points, err = readFloat64(found, pointsPath, -1); err != nil {
		return nil, err
	}
	if attr, err := found[pointsPath].ReadAttribute(countAttribute); err == nil {
		if n, ok := attr.(int64); ok && int(n) != count[0] {
			return nil, fmt.Errorf("%s: %s attribute says %d fibers, %s says %d", path, countAttribute, n, fiberCountPath, count[0])
		}
	}
	if ds.StartIndices, err = readInts(found, fiberStartsPath, count[0]); err != nil {
		return nil, err
	}
	if ds.Lengths, err = readInts(found, fiberLengthsPath, count[0]); err != nil {
		return nil, err
	}
	if ds.PointFiber, err = readInts(found, pointFiberPath, len(ds.Points)/3); err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}
