package delta

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cerradolab/vegetation.report/internal/raster"
)

// CodeGrid is the per-pixel transition labeling: 0 means the pixel is
// excluded (unchanged, or nodata in either input), any other value is the
// transition code origin*K + dest. Codes fit uint16 for every K up to 256.
type CodeGrid struct {
	Width  int
	Height int
	Codes  []uint16
}

// At returns the code at the given column and row without bounds checks.
func (g *CodeGrid) At(col, row int) uint16 {
	return g.Codes[row*g.Width+col]
}

// Classify compares two aligned snapshots pixel by pixel and returns the
// transition-code grid plus the changed-pixel count. The comparison is
// pixel-local, so the grid is partitioned into row bands processed in
// parallel; the result is identical for any partitioning. Cancellation is
// checked per band, not per pixel.
func Classify(ctx context.Context, a, b *raster.Snapshot, opts Options) (*CodeGrid, int64, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, 0, err
	}
	if a.Width != b.Width || a.Height != b.Height {
		return nil, 0, fmt.Errorf("classify requires aligned grids, got %dx%d vs %dx%d",
			a.Width, a.Height, b.Width, b.Height)
	}

	grid := &CodeGrid{
		Width:  a.Width,
		Height: a.Height,
		Codes:  make([]uint16, a.Width*a.Height),
	}

	bands := opts.Workers
	if bands > a.Height {
		bands = a.Height
	}
	if bands < 1 {
		bands = 1
	}
	rowsPerBand := (a.Height + bands - 1) / bands

	counts := make([]int64, bands)
	g, ctx := errgroup.WithContext(ctx)
	for band := 0; band < bands; band++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r0 := band * rowsPerBand
			r1 := r0 + rowsPerBand
			if r1 > a.Height {
				r1 = a.Height
			}
			n, err := classifyRows(a, b, grid, opts.ClassSpace, r0, r1)
			if err != nil {
				return err
			}
			counts[band] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var changed int64
	for _, n := range counts {
		changed += n
	}
	return grid, changed, nil
}

func classifyRows(a, b *raster.Snapshot, grid *CodeGrid, k int, r0, r1 int) (int64, error) {
	var changed int64
	for row := r0; row < r1; row++ {
		base := row * a.Width
		for col := 0; col < a.Width; col++ {
			va := a.Pixels[base+col]
			vb := b.Pixels[base+col]
			if a.IsNoData(va) || b.IsNoData(vb) {
				continue
			}
			if va == vb {
				continue
			}
			if int(va) >= k || int(vb) >= k {
				return 0, fmt.Errorf("pixel (%d,%d) classes %d->%d with K=%d: %w",
					col, row, va, vb, k, ErrClassRange)
			}
			grid.Codes[base+col] = uint16(int(va)*k + int(vb))
			changed++
		}
	}
	return changed, nil
}
