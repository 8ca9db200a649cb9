package delta

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cerradolab/vegetation.report/internal/geom"
	"github.com/cerradolab/vegetation.report/internal/monitoring"
	"github.com/cerradolab/vegetation.report/internal/raster"
)

// State is the lifecycle stage of a pipeline job. Stages advance in a
// fixed order; Aborted is terminal and reachable from any stage.
type State string

const (
	StateLoaded     State = "loaded"
	StateAligned    State = "aligned"
	StateClassified State = "classified"
	StateVectorized State = "vectorized"
	StateMeasured   State = "measured"
	StateSimplified State = "simplified"
	StateCommitted  State = "committed"
	StateAborted    State = "aborted"
)

// Hotspot is one contiguous changed region between the two snapshot
// years. AreaHa comes from the exact pixel count, never from the
// simplified geometry.
type Hotspot struct {
	YearStart      int          `json:"year_start"`
	YearEnd        int          `json:"year_end"`
	ClassOrigin    int          `json:"class_origin"`
	ClassDest      int          `json:"class_dest"`
	TransitionCode int          `json:"transition_code"`
	Category       string       `json:"category"`
	PixelCount     int          `json:"pixel_count"`
	AreaHa         float64      `json:"area_ha"`
	Geometry       geom.Polygon `json:"geometry"`
}

// Sink receives the full hotspot set of a run in one call. Implementations
// must commit atomically: either every hotspot is stored under the run ID
// or none are.
type Sink interface {
	CommitHotspots(ctx context.Context, runID string, hotspots []Hotspot) error
}

// Job is one pipeline invocation over a pair of snapshots. Construct with
// NewJob and drive with Run; a Job is single-use.
type Job struct {
	RunID string
	A, B  *raster.Snapshot
	Table *TransitionTable
	Sink  Sink
	Opts  Options

	state  State
	reason error
}

// NewJob assigns a fresh run ID and stages a job in the Loaded state.
// table may be nil, in which case every hotspot gets the "other" category.
func NewJob(a, b *raster.Snapshot, table *TransitionTable, sink Sink, opts Options) *Job {
	return &Job{
		RunID: uuid.New().String(),
		A:     a,
		B:     b,
		Table: table,
		Sink:  sink,
		Opts:  opts.withDefaults(),
		state: StateLoaded,
	}
}

// State reports the job's current lifecycle stage.
func (j *Job) State() State {
	return j.state
}

// Err returns the abort reason, or nil while the job has not aborted.
func (j *Job) Err() error {
	return j.reason
}

func (j *Job) abort(err error) error {
	j.state = StateAborted
	j.reason = err
	monitoring.Logf("delta: run %s aborted: %v", j.RunID, err)
	return err
}

func (j *Job) advance(s State) {
	j.state = s
}

// Run executes the full pipeline and returns the number of hotspots
// committed. Zero changed pixels is a success: the sink is still invoked
// with an empty set so the run is recorded. Any failure after the sink
// call started leaves no partial rows because the sink commits atomically.
func (j *Job) Run(ctx context.Context) (int, error) {
	if j.state != StateLoaded {
		return 0, fmt.Errorf("delta: run %s already driven (state %s)", j.RunID, j.state)
	}
	started := time.Now()

	ga, gb, err := Align(j.A, j.B)
	if err != nil {
		return 0, j.abort(err)
	}
	j.advance(StateAligned)

	if n := int64(ga.Width) * int64(ga.Height); n > j.Opts.MaxGridPixels {
		return 0, j.abort(fmt.Errorf("%w: aligned grid has %d pixels, budget %d",
			ErrTooLarge, n, j.Opts.MaxGridPixels))
	}

	grid, changed, err := Classify(ctx, ga, gb, j.Opts)
	if err != nil {
		return 0, j.abort(err)
	}
	j.advance(StateClassified)
	monitoring.Logf("delta: run %s classified %d changed pixels on %dx%d grid",
		j.RunID, changed, ga.Width, ga.Height)

	comps, err := Vectorize(ctx, grid, j.Opts)
	if err != nil {
		return 0, j.abort(err)
	}

	hotspots, err := j.buildHotspots(ctx, grid, comps, ga, gb)
	if err != nil {
		return 0, j.abort(err)
	}
	j.advance(StateSimplified)

	if err := j.Sink.CommitHotspots(ctx, j.RunID, hotspots); err != nil {
		return 0, j.abort(fmt.Errorf("commit run %s: %w", j.RunID, err))
	}
	j.advance(StateCommitted)
	monitoring.Logf("delta: run %s committed %d hotspots in %v",
		j.RunID, len(hotspots), time.Since(started).Round(time.Millisecond))
	return len(hotspots), nil
}

// buildHotspots traces, measures and simplifies each component. Tracing is
// independent per component, so it runs on the worker pool; outputs land
// in per-component slots and ordering is preserved.
func (j *Job) buildHotspots(ctx context.Context, grid *CodeGrid, comps []Component, ga, gb *raster.Snapshot) ([]Hotspot, error) {
	hotspots := make([]Hotspot, len(comps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.Opts.Workers)
	for i := range comps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			comp := &comps[i]
			poly, err := TracePolygon(grid, comp, ga.Transform)
			if err != nil {
				return err
			}
			origin, dest := DecodeTransition(int(comp.Code), j.Opts.ClassSpace)
			hotspots[i] = Hotspot{
				YearStart:      ga.Year,
				YearEnd:        gb.Year,
				ClassOrigin:    origin,
				ClassDest:      dest,
				TransitionCode: int(comp.Code),
				Category:       j.category(int(comp.Code)),
				PixelCount:     comp.PixelCount,
				AreaHa:         AreaHa(comp.PixelCount, ga.Transform),
				Geometry:       poly,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	j.advance(StateVectorized)
	j.advance(StateMeasured)

	if j.Opts.SimplifyTolerance > 0 {
		for i := range hotspots {
			hotspots[i].Geometry = hotspots[i].Geometry.Simplify(j.Opts.SimplifyTolerance)
		}
	}
	return hotspots, nil
}

func (j *Job) category(code int) string {
	if j.Table == nil {
		return CategoryOther
	}
	return j.Table.Category(code)
}
