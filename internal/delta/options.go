package delta

import (
	"fmt"
	"runtime"

	"github.com/cerradolab/vegetation.report/internal/config"
)

// Options are the engine parameters for one job. Zero values fall back to
// the same defaults the tuning config carries.
type Options struct {
	ClassSpace         int     // K; class codes must be in [0, K)
	TileSize           int     // tile edge in pixels for the vectorizer
	Workers            int     // 0 means GOMAXPROCS
	MinComponentPixels int     // drop components smaller than this; 1 = keep all
	SimplifyTolerance  float64 // projection units; 0 disables simplification
	MaxGridPixels      int64   // reject aligned grids larger than this
}

// OptionsFromConfig maps the tuning config onto engine options.
func OptionsFromConfig(cfg *config.TuningConfig) Options {
	return Options{
		ClassSpace:         cfg.GetClassSpace(),
		TileSize:           cfg.GetTileSize(),
		Workers:            cfg.GetWorkers(),
		MinComponentPixels: cfg.GetMinComponentPixels(),
		SimplifyTolerance:  cfg.GetSimplifyTolerance(),
		MaxGridPixels:      cfg.GetMaxGridPixels(),
	}
}

// withDefaults fills zero fields with operational defaults.
func (o Options) withDefaults() Options {
	if o.ClassSpace == 0 {
		o.ClassSpace = 100
	}
	if o.TileSize == 0 {
		o.TileSize = 1024
	}
	if o.Workers == 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.MinComponentPixels == 0 {
		o.MinComponentPixels = 1
	}
	if o.MaxGridPixels == 0 {
		o.MaxGridPixels = 400_000_000
	}
	return o
}

// validate rejects parameter combinations the engine cannot honor.
func (o Options) validate() error {
	if o.ClassSpace < 2 || o.ClassSpace > 256 {
		// K*K-1 must fit the uint16 code grid.
		return fmt.Errorf("class space must be in [2, 256], got %d", o.ClassSpace)
	}
	if o.TileSize < 16 {
		return fmt.Errorf("tile size must be at least 16, got %d", o.TileSize)
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", o.Workers)
	}
	if o.MinComponentPixels < 1 {
		return fmt.Errorf("min component pixels must be at least 1, got %d", o.MinComponentPixels)
	}
	if o.SimplifyTolerance < 0 {
		return fmt.Errorf("simplify tolerance must be non-negative, got %f", o.SimplifyTolerance)
	}
	return nil
}
