package delta

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Component is one maximal 4-connected region of pixels sharing a
// transition code. Diagonal-only contact never joins components: two
// pixels touching at a corner stay separate unless a shared 4-neighbor
// connects them.
type Component struct {
	// Code is the transition code shared by every pixel in the region.
	Code uint16
	// PixelCount is the exact number of pixels; it is the sole input to
	// the area calculation.
	PixelCount int
	// cells are row-major pixel indices in ascending order.
	cells []int
}

// tileRect is a half-open pixel rectangle [c0,c1) x [r0,r1).
type tileRect struct {
	c0, r0, c1, r1 int
}

// Vectorize groups the changed pixels of a code grid into connected
// components. The grid is cut into tiles labeled independently in
// parallel; components touching a tile seam are then merged by a
// sequential union-find pass over the seam pixels, the only section with
// shared mutable state. Component order is first-seen in row-major order,
// so results are identical for any tiling of the same grid.
func Vectorize(ctx context.Context, grid *CodeGrid, opts Options) ([]Component, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	tiles := makeTiles(grid.Width, grid.Height, opts.TileSize)
	labels := make([]int32, len(grid.Codes))
	counts := make([]int32, len(tiles))

	// Phase 1: label each tile independently.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for ti := range tiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			counts[ti] = labelTile(grid, labels, tiles[ti])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Phase 2: make tile-local labels globally unique.
	offsets := make([]int32, len(tiles)+1)
	for i, n := range counts {
		offsets[i+1] = offsets[i] + n
	}
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for ti := range tiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			offsetTile(grid, labels, tiles[ti], offsets[ti])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Phase 3: merge components across tile seams. Sequential by design:
	// the union-find restructures labels produced by all tiles.
	parent := newUnionFind(offsets[len(tiles)])
	if err := mergeSeams(ctx, grid, labels, parent, opts.TileSize); err != nil {
		return nil, err
	}

	// Phase 4: collect components in row-major first-seen order.
	comps := collectComponents(grid, labels, parent)

	if opts.MinComponentPixels > 1 {
		kept := comps[:0]
		for _, c := range comps {
			if c.PixelCount >= opts.MinComponentPixels {
				kept = append(kept, c)
			}
		}
		comps = kept
	}
	return comps, nil
}

func makeTiles(width, height, tileSize int) []tileRect {
	var tiles []tileRect
	for r0 := 0; r0 < height; r0 += tileSize {
		r1 := r0 + tileSize
		if r1 > height {
			r1 = height
		}
		for c0 := 0; c0 < width; c0 += tileSize {
			c1 := c0 + tileSize
			if c1 > width {
				c1 = width
			}
			tiles = append(tiles, tileRect{c0: c0, r0: r0, c1: c1, r1: r1})
		}
	}
	return tiles
}

// labelTile flood-fills 4-connected equal-code regions within one tile,
// writing labels 1..n into the tile's slots of the shared label array.
// Tiles write disjoint regions, so no synchronization is needed.
func labelTile(grid *CodeGrid, labels []int32, t tileRect) int32 {
	var next int32
	var stack []int

	for row := t.r0; row < t.r1; row++ {
		for col := t.c0; col < t.c1; col++ {
			idx := row*grid.Width + col
			code := grid.Codes[idx]
			if code == 0 || labels[idx] != 0 {
				continue
			}
			next++
			labels[idx] = next
			stack = append(stack[:0], idx)
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				cr := cur / grid.Width
				cc := cur % grid.Width

				// 4-neighbors clipped to the tile; seams merge later.
				if cc > t.c0 {
					stack = visit(grid, labels, cur-1, code, next, stack)
				}
				if cc < t.c1-1 {
					stack = visit(grid, labels, cur+1, code, next, stack)
				}
				if cr > t.r0 {
					stack = visit(grid, labels, cur-grid.Width, code, next, stack)
				}
				if cr < t.r1-1 {
					stack = visit(grid, labels, cur+grid.Width, code, next, stack)
				}
			}
		}
	}
	return next
}

func visit(grid *CodeGrid, labels []int32, idx int, code uint16, label int32, stack []int) []int {
	if grid.Codes[idx] == code && labels[idx] == 0 {
		labels[idx] = label
		stack = append(stack, idx)
	}
	return stack
}

func offsetTile(grid *CodeGrid, labels []int32, t tileRect, offset int32) {
	if offset == 0 {
		return
	}
	for row := t.r0; row < t.r1; row++ {
		base := row * grid.Width
		for col := t.c0; col < t.c1; col++ {
			if labels[base+col] != 0 {
				labels[base+col] += offset
			}
		}
	}
}

// unionFind over global label ids; index 0 is unused.
type unionFind []int32

func newUnionFind(n int32) unionFind {
	uf := make(unionFind, n+1)
	for i := range uf {
		uf[i] = int32(i)
	}
	return uf
}

func (uf unionFind) find(x int32) int32 {
	for uf[x] != x {
		uf[x] = uf[uf[x]] // path halving
		x = uf[x]
	}
	return x
}

// union attaches the larger root under the smaller, keeping root identity
// independent of merge order for deterministic output.
func (uf unionFind) union(a, b int32) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		uf[rb] = ra
	} else {
		uf[ra] = rb
	}
}

// mergeSeams unions labels of 4-adjacent equal-code pixels that sit on
// opposite sides of a tile boundary. Cancellation is checked per seam.
func mergeSeams(ctx context.Context, grid *CodeGrid, labels []int32, uf unionFind, tileSize int) error {
	// Vertical seams: column c-1 | c for every interior tile edge.
	for c := tileSize; c < grid.Width; c += tileSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		for row := 0; row < grid.Height; row++ {
			left := row*grid.Width + c - 1
			right := left + 1
			if grid.Codes[left] != 0 && grid.Codes[left] == grid.Codes[right] {
				uf.union(labels[left], labels[right])
			}
		}
	}
	// Horizontal seams: row r-1 above r.
	for r := tileSize; r < grid.Height; r += tileSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		up := (r - 1) * grid.Width
		down := r * grid.Width
		for col := 0; col < grid.Width; col++ {
			if grid.Codes[up+col] != 0 && grid.Codes[up+col] == grid.Codes[down+col] {
				uf.union(labels[up+col], labels[down+col])
			}
		}
	}
	return nil
}

func collectComponents(grid *CodeGrid, labels []int32, uf unionFind) []Component {
	compOf := make(map[int32]int)
	var comps []Component

	for idx, lab := range labels {
		if lab == 0 {
			continue
		}
		root := uf.find(lab)
		ci, ok := compOf[root]
		if !ok {
			ci = len(comps)
			compOf[root] = ci
			comps = append(comps, Component{Code: grid.Codes[idx]})
		}
		comps[ci].PixelCount++
		comps[ci].cells = append(comps[ci].cells, idx)
	}
	return comps
}
