// Package h5io reads tracking input fields from HDF5 files and writes fiber
// datasets back.
//
// Input layout:
//
//	/dims          3 float64, lattice counts nx, ny, nz
//	/transform     16 float64, row-major 4x4 lattice-to-world matrix
//	/tensors       nx*ny*nz x 6 float64 (xx, xy, xz, yy, yz, zz)
//
// or, instead of /tensors, a precomputed decomposition:
//
//	/eigenvectors  nx*ny*nz x 3 float64
//	/fa            nx*ny*nz float64
package h5io

import (
	"errors"
	"fmt"

	"github.com/scigolib/hdf5"
)

// ErrMissingDataset is returned when a required dataset is absent.
var ErrMissingDataset = errors.New("missing dataset")

const (
	dimsPath         = "/dims"
	transformPath    = "/transform"
	tensorsPath      = "/tensors"
	eigenvectorsPath = "/eigenvectors"
	faPath           = "/fa"

	pointsPath       = "/points"
	fiberStartsPath  = "/fiber_starts"
	fiberLengthsPath = "/fiber_lengths"
	pointFiberPath   = "/point_fiber"
	fiberCountPath   = "/fiber_count"

	countAttribute = "count"
)

// datasets opens an HDF5 file and indexes its datasets by path.
func datasets(path string) (*hdf5.File, map[string]*hdf5.Dataset, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	found := make(map[string]*hdf5.Dataset)
	f.Walk(func(p string, obj hdf5.Object) {
		if ds, ok := obj.(*hdf5.Dataset); ok {
			found[p] = ds
		}
	})
	return f, found, nil
}

// readFloat64 reads a dataset, optionally checking its element count.
func readFloat64(found map[string]*hdf5.Dataset, name string, want int) ([]float64, error) {
	ds, ok := found[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingDataset, name)
	}
	data, err := ds.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if want >= 0 && len(data) != want {
		return nil, fmt.Errorf("dataset %s has %d values, expected %d", name, len(data), want)
	}
	return data, nil
}

func readInts(found map[string]*hdf5.Dataset, name string, want int) ([]int, error) {
	data, err := readFloat64(found, name, want)
	if err != nil {
		return nil, err
	}
	ints := make([]int, len(data))
	for i, v := range data {
		ints[i] = int(v)
	}
	return ints, nil
}

// writer wraps an HDF5 file writer and remembers the first error.
type writer struct {
	fw  *hdf5.FileWriter
	err error
}

func create(path string) (*writer, error) {
	fw, err := hdf5.CreateForWrite(path, hdf5.CreateTruncate)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &writer{fw: fw}, nil
}

func (w *writer) dataset(name string, dtype hdf5.Datatype, dims []uint64, data interface{}) *hdf5.DatasetWriter {
	if w.err != nil {
		return nil
	}
	ds, err := w.fw.CreateDataset(name, dtype, dims)
	if err != nil {
		w.err = fmt.Errorf("failed to create dataset %s: %w", name, err)
		return nil
	}
	if err := ds.Write(data); err != nil {
		w.err = fmt.Errorf("failed to write dataset %s: %w", name, err)
		return nil
	}
	return ds
}

func (w *writer) float64s(name string, dims []uint64, data []float64) *hdf5.DatasetWriter {
	return w.dataset(name, hdf5.Float64, dims, data)
}

func (w *writer) ints(name string, data []int) *hdf5.DatasetWriter {
	values := make([]int64, len(data))
	for i, v := range data {
		values[i] = int64(v)
	}
	return w.dataset(name, hdf5.Int64, []uint64{uint64(len(values))}, values)
}

func (w *writer) close() error {
	cerr := w.fw.Close()
	if w.err != nil {
		return w.err
	}
	if cerr != nil {
		return fmt.Errorf("failed to close file: %w", cerr)
	}
	return nil
}
