package h5io

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"dtitrack/pkg/grid"
	"dtitrack/pkg/tensor"
	"dtitrack/pkg/valueset"
)

// Input is the content of a tracking input file. Either Tensors is set, or
// both Eigenvectors and FA are.
type Input struct {
	Grid         *grid.Grid
	Tensors      *valueset.Field
	Eigenvectors *valueset.Field
	FA           *valueset.Field
}

// HasTensors reports whether the input still needs an eigendecomposition.
func (in *Input) HasTensors() bool { return in.Tensors != nil }

// ReadField loads the grid and the tensor or eigenvector fields from path.
func ReadField(path string) (*Input, error) {
	f, found, err := datasets(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dims, err := readFloat64(found, dimsPath, 3)
	if err != nil {
		return nil, err
	}
	transform, err := readFloat64(found, transformPath, 16)
	if err != nil {
		return nil, err
	}
	counts := [3]int{int(dims[0]), int(dims[1]), int(dims[2])}
	g, err := grid.NewGridFromMatrix(counts, mat.NewDense(4, 4, transform))
	if err != nil {
		return nil, fmt.Errorf("invalid grid in %s: %w", path, err)
	}
	in := &Input{Grid: g}
	n := g.Size()

	if _, ok := found[tensorsPath]; ok {
		data, err := readFloat64(found, tensorsPath, n*tensor.Components)
		if err != nil {
			return nil, err
		}
		if in.Tensors, err = valueset.NewFloat64Field(g, data, tensor.Components); err != nil {
			return nil, err
		}
		return in, nil
	}

	vectors, err := readFloat64(found, eigenvectorsPath, 3*n)
	if err != nil {
		if errors.Is(err, ErrMissingDataset) {
			return nil, fmt.Errorf("%w: %s has neither %s nor %s", ErrMissingDataset, path, tensorsPath, eigenvectorsPath)
		}
		return nil, err
	}
	fa, err := readFloat64(found, faPath, n)
	if err != nil {
		return nil, err
	}
	if in.Eigenvectors, err = valueset.NewFloat64Field(g, vectors, 3); err != nil {
		return nil, err
	}
	if in.FA, err = valueset.NewFloat64Field(g, fa, 1); err != nil {
		return nil, err
	}
	return in, nil
}

// WriteField stores in at path in the layout ReadField expects.
func WriteField(path string, in *Input) error {
	if in.Tensors == nil && (in.Eigenvectors == nil || in.FA == nil) {
		return errors.New("input has neither tensors nor eigenvectors with FA")
	}

	w, err := create(path)
	if err != nil {
		return err
	}

	nx, ny, nz := in.Grid.Counts()
	n := uint64(in.Grid.Size())
	w.float64s(dimsPath, []uint64{3}, []float64{float64(nx), float64(ny), float64(nz)})
	w.float64s(transformPath, []uint64{4, 4}, in.Grid.Transform().RawMatrix().Data)

	if in.Tensors != nil {
		w.float64s(tensorsPath, []uint64{n, tensor.Components}, valueset.Float64s(in.Tensors.ValueSet()))
	} else {
		w.float64s(eigenvectorsPath, []uint64{n, 3}, valueset.Float64s(in.Eigenvectors.ValueSet()))
		w.float64s(faPath, []uint64{n}, valueset.Float64s(in.FA.ValueSet()))
	}
	return w.close()
}
