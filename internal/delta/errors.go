package delta

import "errors"

// Engine error kinds. All are local to a single job, carry the offending
// snapshot identities when wrapped, and are never retried by the engine;
// retry policy belongs to the caller.
var (
	// ErrMissingProjection: a snapshot has SRID 0, which blocks comparison
	// until the caller resolves the CRS (for example via a sidecar).
	ErrMissingProjection = errors.New("raster has no projection")

	// ErrProjectionMismatch: the snapshots carry different SRIDs. There is
	// no on-the-fly reprojection; resampling categorical rasters across
	// projections invents classes at boundaries.
	ErrProjectionMismatch = errors.New("raster projections do not match")

	// ErrDisjointExtent: the snapshot extents do not overlap.
	ErrDisjointExtent = errors.New("raster extents do not intersect")

	// ErrRotatedGrid: the geotransform has rotation terms; only north-up
	// grids are supported.
	ErrRotatedGrid = errors.New("rotated geotransforms are not supported")

	// ErrClassRange: a class code falls outside [0, K), breaking the
	// transition-code bijection.
	ErrClassRange = errors.New("class code outside the configured class space")

	// ErrTooLarge: the aligned grid exceeds the configured pixel budget.
	ErrTooLarge = errors.New("aligned grid exceeds the configured pixel budget")
)
