package tracking

import (
	"context"
	"fmt"
	"sync"

	"dtitrack/internal/models"
)

// Farm runs a tracker over the seed lattice on a fixed pool of workers. Each
// worker owns whole octants of the lattice, so no two workers ever visit the
// same seed.
type Farm struct {
	tracker  *Tracker
	workers  int
	seedStep int
}

// NewFarm creates a farm with the given number of workers, clamped to
// 1..models.NumOctants, visiting every seedStep-th lattice point per axis.
func NewFarm(t *Tracker, workers, seedStep int) *Farm {
	if workers < 1 {
		workers = 1
	}
	if workers > models.NumOctants {
		workers = models.NumOctants
	}
	if seedStep < 1 {
		seedStep = 1
	}
	return &Farm{tracker: t, workers: workers, seedStep: seedStep}
}

// Workers returns the size of the worker pool.
func (f *Farm) Workers() int { return f.workers }

// octants returns the octants handled by worker w.
func (f *Farm) octants(w int) []models.Octant {
	var res []models.Octant
	for o := w; o < models.NumOctants; o += f.workers {
		res = append(res, models.Octant(o))
	}
	return res
}

// SeedCount returns the number of seeds a full run visits.
func (f *Farm) SeedCount() int {
	total := 0
	for o := models.Octant(0); o < models.NumOctants; o++ {
		n := 1
		for axis := 0; axis < 3; axis++ {
			n *= f.steps(o.Bounds(axis, f.tracker.counts[axis]))
		}
		total += n
	}
	return total
}

func (f *Farm) steps(r models.SeedRange) int {
	if r.End <= r.Start {
		return 0
	}
	return (r.End - r.Start + f.seedStep - 1) / f.seedStep
}

// Run tracks from every seed and adds the resulting fibers to acc. progress
// may be nil; otherwise it is incremented exactly once per seed, whether or
// not the seed produced a fiber. Cancelling ctx stops every worker before its
// next seed. Run returns the number of seeds processed.
func (f *Farm) Run(ctx context.Context, acc *Accumulator, progress models.Progress) (int, error) {
	var (
		wg         sync.WaitGroup
		progressMu sync.Mutex
		seedsMu    sync.Mutex
		seeds      int
	)
	errChan := make(chan error, f.workers)

	for w := 0; w < f.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			processed := 0
			defer func() {
				seedsMu.Lock()
				seeds += processed
				seedsMu.Unlock()
			}()

			for _, o := range f.octants(worker) {
				err := f.scan(o, func(seed [3]int) error {
					if err := ctx.Err(); err != nil {
						return err
					}
					if progress != nil {
						progressMu.Lock()
						progress.Increment()
						progressMu.Unlock()
					}
					processed++
					acc.Add(f.tracker.TrackFiber(seed))
					return nil
				})
				if err != nil {
					errChan <- fmt.Errorf("worker %d stopped in %v: %w", worker, o, err)
					return
				}
			}
		}(w)
	}

	wg.Wait()
	close(errChan)
	if err := <-errChan; err != nil {
		return seeds, err
	}
	return seeds, nil
}

// scan visits the seeds of one octant, x fastest, then y, then z.
func (f *Farm) scan(o models.Octant, visit func(seed [3]int) error) error {
	c := f.tracker.counts
	rx, ry, rz := o.Bounds(0, c[0]), o.Bounds(1, c[1]), o.Bounds(2, c[2])
	for z := rz.Start; z < rz.End; z += f.seedStep {
		for y := ry.Start; y < ry.End; y += f.seedStep {
			for x := rx.Start; x < rx.End; x += f.seedStep {
				if err := visit([3]int{x, y, z}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
