// Package tensor turns a field of symmetric 3x3 diffusion tensors into the
// principal eigenvector field and fractional anisotropy map that the fiber
// tracker consumes.
package tensor

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"dtitrack/internal/models"
	"dtitrack/pkg/valueset"
)

// Components is the number of unique entries of a symmetric 3x3 tensor,
// stored per voxel in the order xx, xy, xz, yy, yz, zz.
const Components = 6

// EigenField is the result of a decomposition. Vectors has three components
// per voxel, FA has one. Both share the tensor field's grid.
type EigenField struct {
	Vectors *valueset.Field
	FA      *valueset.Field
}

// Decompose computes the principal eigenvector and fractional anisotropy of
// every tensor in f. The voxels are split into numWorkers interleaved stripes
// processed concurrently; numWorkers < 1 uses all CPUs. progress may be nil
// and is incremented once per voxel.
func Decompose(ctx context.Context, f *valueset.Field, numWorkers int, progress models.Progress) (*EigenField, error) {
	if f.Components() != Components {
		return nil, fmt.Errorf("tensor field needs %d components per voxel, has %d", Components, f.Components())
	}
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}

	n := f.Grid().Size()
	vectors := make([]float64, 3*n)
	fa := make([]float64, n)

	var progressMu sync.Mutex
	errChan := make(chan error, numWorkers)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for step, idx := 0, worker; idx < n; step, idx = step+1, idx+numWorkers {
				if step%1024 == 0 {
					if err := ctx.Err(); err != nil {
						errChan <- err
						return
					}
				}
				e, a := Principal(tensorAt(f, idx))
				vectors[3*idx] = e.X
				vectors[3*idx+1] = e.Y
				vectors[3*idx+2] = e.Z
				fa[idx] = a
				if progress != nil {
					progressMu.Lock()
					progress.Increment()
					progressMu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()
	close(errChan)
	if err := <-errChan; err != nil {
		return nil, fmt.Errorf("eigendecomposition interrupted: %w", err)
	}

	vf, err := valueset.NewFloat64Field(f.Grid(), vectors, 3)
	if err != nil {
		return nil, err
	}
	ff, err := valueset.NewFloat64Field(f.Grid(), fa, 1)
	if err != nil {
		return nil, err
	}
	return &EigenField{Vectors: vf, FA: ff}, nil
}

func tensorAt(f *valueset.Field, idx int) [Components]float64 {
	var t [Components]float64
	for c := range t {
		t[c] = f.ComponentAt(idx, c)
	}
	return t
}

// Principal returns the unit eigenvector of the largest eigenvalue of the
// symmetric tensor t (xx, xy, xz, yy, yz, zz) and its fractional anisotropy.
// A zero or non-decomposable tensor yields a zero vector and FA 0.
func Principal(t [Components]float64) (r3.Vec, float64) {
	sym := mat.NewSymDense(3, []float64{
		t[0], t[1], t[2],
		t[1], t[3], t[4],
		t[2], t[4], t[5],
	})

	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return r3.Vec{}, 0
	}
	values := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// Eigenvalues are returned in ascending order.
	e := r3.Vec{X: vecs.At(0, 2), Y: vecs.At(1, 2), Z: vecs.At(2, 2)}
	fa := FractionalAnisotropy(values[2], values[1], values[0])
	if fa == 0 && values[2] == 0 {
		return r3.Vec{}, 0
	}
	return e, fa
}

// FractionalAnisotropy computes FA from the three eigenvalues.
func FractionalAnisotropy(l1, l2, l3 float64) float64 {
	norm := l1*l1 + l2*l2 + l3*l3
	if norm == 0 {
		return 0
	}
	d := (l1-l2)*(l1-l2) + (l2-l3)*(l2-l3) + (l3-l1)*(l3-l1)
	return math.Sqrt(0.5) * math.Sqrt(d) / math.Sqrt(norm)
}
