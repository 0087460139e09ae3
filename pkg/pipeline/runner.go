// Package pipeline runs a complete tracking job: load the input field,
// decompose tensors if needed, track fibers from every seed, write the fiber
// dataset and summarise the result.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cheggaaa/pb"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"dtitrack/internal/models"
	"dtitrack/pkg/config"
	"dtitrack/pkg/fibers"
	"dtitrack/pkg/h5io"
	"dtitrack/pkg/interpolation"
	"dtitrack/pkg/tensor"
	"dtitrack/pkg/tracking"
	"dtitrack/pkg/valueset"
	"dtitrack/pkg/visualization"
)

// Params holds the pipeline configuration.
type Params struct {
	// InputFile is the HDF5 file holding tensors or eigenvectors with FA.
	InputFile string

	// OutputFile is where the fiber dataset is written. Empty skips writing.
	OutputFile string

	// Tracking holds the per-fiber thresholds.
	Tracking tracking.Params

	// SeedStep is the lattice spacing between seeds along each axis.
	SeedStep int

	// NumWorkers is the tracking pool size, 1 to 8.
	NumWorkers int

	// NumCores is the number of goroutines used for the eigendecomposition.
	NumCores int

	// SaveSlices writes FA slices with the fibers drawn on top to SliceDir.
	SaveSlices bool
	SliceDir   string

	// ShowProgress draws progress bars on the terminal.
	ShowProgress bool

	// Verbose prints stage information.
	Verbose bool
}

// ParamsFromConfig fills Params from a loaded configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		OutputFile: cfg.Output.FiberFile,
		Tracking: tracking.Params{
			MinFA:     cfg.Tracking.MinFA,
			MinPoints: cfg.Tracking.MinPoints,
			MinCos:    cfg.Tracking.MinCos,
			MaxSteps:  cfg.Tracking.MaxSteps,
		},
		SeedStep:   cfg.Tracking.SeedStep,
		NumWorkers: cfg.Processing.NumWorkers,
		NumCores:   cfg.Processing.NumCores,
		SaveSlices: cfg.Output.SaveSlices,
		SliceDir:   cfg.Output.SliceDir,
		Verbose:    cfg.Output.Verbose,
	}
}

// Runner executes the pipeline once.
type Runner struct {
	params *Params

	input   *h5io.Input
	eigen   *tensor.EigenField
	dataset *fibers.Dataset
	summary models.Summary
}

// NewRunner creates a runner for the given parameters.
func NewRunner(params *Params) *Runner {
	return &Runner{params: params}
}

func (r *Runner) logf(format string, args ...interface{}) {
	if r.params.Verbose {
		fmt.Printf(format, args...)
	}
}

// progress returns a terminal progress bar or nil.
func (r *Runner) progress(total int) *pb.ProgressBar {
	if !r.params.ShowProgress {
		return nil
	}
	return pb.StartNew(total)
}

// Process runs the pipeline. Cancelling ctx stops tracking before the next
// seed; fibers tracked so far are discarded.
func (r *Runner) Process(ctx context.Context) (models.Summary, error) {
	start := time.Now()

	r.logf("Step 1: Loading %s...\n", r.params.InputFile)
	in, err := h5io.ReadField(r.params.InputFile)
	if err != nil {
		return models.Summary{}, fmt.Errorf("failed to load input: %w", err)
	}
	return r.run(ctx, in, start)
}

// ProcessInput runs the pipeline on an already loaded input.
func (r *Runner) ProcessInput(ctx context.Context, in *h5io.Input) (models.Summary, error) {
	return r.run(ctx, in, time.Now())
}

func (r *Runner) run(ctx context.Context, in *h5io.Input, start time.Time) (models.Summary, error) {
	var err error
	r.input = in
	nx, ny, nz := in.Grid.Counts()
	r.logf("Grid: %dx%dx%d, %v\n", nx, ny, nz, in.Grid)

	if in.HasTensors() {
		r.logf("Step 2: Eigendecomposition of %d tensors...\n", in.Grid.Size())
		bar := r.progress(in.Grid.Size())
		var progress models.Progress
		if bar != nil {
			progress = bar
		}
		r.eigen, err = tensor.Decompose(ctx, in.Tensors, r.params.NumCores, progress)
		if bar != nil {
			bar.Finish()
		}
		if err != nil {
			return models.Summary{}, fmt.Errorf("failed to decompose tensors: %w", err)
		}
	} else {
		r.eigen = &tensor.EigenField{Vectors: in.Eigenvectors, FA: in.FA}
	}

	tracker, err := tracking.NewTracker(r.eigen.Vectors, r.eigen.FA, r.params.Tracking)
	if err != nil {
		return models.Summary{}, fmt.Errorf("failed to create tracker: %w", err)
	}
	farm := tracking.NewFarm(tracker, r.params.NumWorkers, r.params.SeedStep)

	r.logf("Step 3: Tracking from %d seeds with %d workers...\n", farm.SeedCount(), farm.Workers())
	acc := tracking.NewAccumulator()
	bar := r.progress(farm.SeedCount())
	var progress models.Progress
	if bar != nil {
		progress = bar
	}
	seeds, err := farm.Run(ctx, acc, progress)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return models.Summary{}, fmt.Errorf("tracking failed: %w", err)
	}
	r.dataset = acc.BuildDataset()

	if r.params.OutputFile != "" {
		r.logf("Step 4: Writing %d fibers to %s...\n", r.dataset.Len(), r.params.OutputFile)
		if err := h5io.WriteFibers(r.params.OutputFile, r.dataset); err != nil {
			return models.Summary{}, fmt.Errorf("failed to write fibers: %w", err)
		}
	}

	if r.params.SaveSlices {
		if err := r.saveSlices(); err != nil {
			fmt.Printf("Warning: Failed to save slices: %v\n", err)
		}
	}

	r.summary, err = r.summarise(seeds)
	if err != nil {
		return models.Summary{}, err
	}
	r.summary.Duration = time.Since(start)
	return r.summary, nil
}

func (r *Runner) saveSlices() error {
	viewer, err := visualization.NewViewer(r.eigen.FA)
	if err != nil {
		return err
	}
	n, err := viewer.SaveSliceSequence("z", r.params.SliceDir, r.dataset)
	if err != nil {
		return err
	}
	r.logf("Saved %d slices to %s\n", n, r.params.SliceDir)
	return nil
}

// summarise computes fiber statistics and the mean FA along all fibers.
func (r *Runner) summarise(seeds int) (models.Summary, error) {
	st := r.dataset.Stats()
	s := models.Summary{
		Seeds:        seeds,
		Fibers:       st.Fibers,
		Points:       st.Points,
		MeanPoints:   st.MeanPoints,
		StdDevPoints: st.StdDevPoints,
		MeanLength:   st.MeanLength,
		MinLength:    st.MinLength,
		MaxLength:    st.MaxLength,
	}
	if st.Points == 0 {
		return s, nil
	}

	fa, err := meanFA(r.eigen.FA, r.dataset)
	if err != nil {
		return s, err
	}
	s.MeanFA = fa
	s.MeanNeighbors = meanNeighbors(r.dataset, minOffset(r.eigen.FA))
	return s, nil
}

func minOffset(f *valueset.Field) float64 {
	off := f.Grid().Offsets()
	return math.Min(off[0], math.Min(off[1], off[2]))
}

// meanNeighbors counts, for every fiber, the other fibers with a point no
// further than radius from its midpoint and returns the mean count.
func meanNeighbors(ds *fibers.Dataset, radius float64) float64 {
	if ds.Len() == 0 {
		return 0
	}
	index := fibers.NewIndex(ds)
	counts := make([]float64, ds.Len())
	for i := range counts {
		mid := ds.Point(ds.StartIndices[i] + ds.Lengths[i]/2)
		// The fiber itself is always within radius of its own midpoint.
		counts[i] = float64(len(index.FibersWithin(mid, radius)) - 1)
	}
	return stat.Mean(counts, nil)
}

// meanFA averages FA over all fiber points inside the grid. Axis aligned
// grids are interpolated trilinearly, others use the nearest voxel.
func meanFA(f *valueset.Field, ds *fibers.Dataset) (float64, error) {
	g := f.Grid()
	sample := func(p r3.Vec) (float64, bool) {
		idx := g.VoxelNum(p)
		if idx < 0 {
			return 0, false
		}
		return f.ScalarAt(idx), true
	}
	if g.IsAxisAligned() {
		sampler, err := interpolation.NewScalarField(f)
		if err != nil {
			return 0, err
		}
		sample = sampler.Interpolate
	}

	values := make([]float64, 0, ds.NumPoints())
	for i := 0; i < ds.NumPoints(); i++ {
		if v, ok := sample(ds.Point(i)); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, nil
	}
	return stat.Mean(values, nil), nil
}

// Dataset returns the fibers of the last run.
func (r *Runner) Dataset() *fibers.Dataset { return r.dataset }

// Summary returns the summary of the last run.
func (r *Runner) Summary() models.Summary { return r.summary }
