package delta

import (
	"fmt"

	"github.com/cerradolab/vegetation.report/internal/geom"
	"github.com/cerradolab/vegetation.report/internal/raster"
)

// directed boundary edge between two pixel corners. Corners are keyed
// row-major on a (Width+1) x (Height+1) lattice.
type traceEdge struct {
	from, to int64
}

// tracer walks the directed boundary edges of one component. Edges are
// oriented so the component interior is always on the left: north side
// runs east, east side south, south side west, west side north. Stitching
// them start-to-end yields the outer ring counterclockwise in pixel space
// (positive shoelace with y down inverted, see below) and hole rings in
// the opposite sense.
type tracer struct {
	grid  *CodeGrid
	edges []traceEdge
	// byFrom maps a corner key to indices into edges. A corner carries at
	// most two outgoing edges; two happens only at a checkerboard vertex
	// where the component touches itself diagonally.
	byFrom  map[int64][]int32
	visited []bool
}

// TracePolygon builds the polygon outline of a component in world
// coordinates. The outline follows exact pixel boundaries: every vertex is
// a pixel corner mapped through the grid's geotransform. The polygon has
// exactly one outer ring; enclosed regions of other codes become holes.
func TracePolygon(grid *CodeGrid, comp *Component, gt raster.GeoTransform) (geom.Polygon, error) {
	t := &tracer{
		grid:   grid,
		byFrom: make(map[int64][]int32),
	}
	t.buildEdges(comp)
	t.visited = make([]bool, len(t.edges))

	var outer geom.Ring
	var holes []geom.Ring
	// Start loops in edge insertion order, which is row-major over the
	// component's pixels, so ring order is deterministic.
	for i := range t.edges {
		if t.visited[i] {
			continue
		}
		ring := t.walk(int32(i))
		// Interior-on-left with y growing downward means the outer loop
		// runs clockwise on screen, which is a positive raw shoelace sum.
		if ring.SignedArea() > 0 {
			if outer != nil {
				return geom.Polygon{}, fmt.Errorf("component with code %d traced two outer rings", comp.Code)
			}
			outer = ring
		} else {
			holes = append(holes, ring)
		}
	}
	if outer == nil {
		return geom.Polygon{}, fmt.Errorf("component with code %d traced no outer ring", comp.Code)
	}

	// A north-up transform mirrors y, flipping ring orientation. Normalize
	// to the GeoJSON convention: outer counterclockwise, holes clockwise.
	poly := geom.Polygon{Outer: orient(toWorld(outer, gt), true), Holes: make([]geom.Ring, len(holes))}
	for i, h := range holes {
		poly.Holes[i] = orient(toWorld(h, gt), false)
	}
	return poly, nil
}

func orient(r geom.Ring, ccw bool) geom.Ring {
	if (r.SignedArea() > 0) != ccw {
		return r.Reverse()
	}
	return r
}

func (t *tracer) corner(col, row int) int64 {
	return int64(row)*int64(t.grid.Width+1) + int64(col)
}

// buildEdges emits one directed edge per exposed pixel side. A side is
// exposed when the 4-neighbor across it is outside the grid or carries a
// different code. Two components of the same code are never 4-adjacent,
// so a same-code neighbor is always part of this component.
func (t *tracer) buildEdges(comp *Component) {
	w := t.grid.Width
	h := t.grid.Height
	codes := t.grid.Codes
	code := comp.Code

	for _, idx := range comp.cells {
		row := idx / w
		col := idx % w

		if row == 0 || codes[idx-w] != code { // north side, runs east
			t.addEdge(t.corner(col, row), t.corner(col+1, row))
		}
		if col == w-1 || codes[idx+1] != code { // east side, runs south
			t.addEdge(t.corner(col+1, row), t.corner(col+1, row+1))
		}
		if row == h-1 || codes[idx+w] != code { // south side, runs west
			t.addEdge(t.corner(col+1, row+1), t.corner(col, row+1))
		}
		if col == 0 || codes[idx-1] != code { // west side, runs north
			t.addEdge(t.corner(col, row+1), t.corner(col, row))
		}
	}
}

func (t *tracer) addEdge(from, to int64) {
	t.byFrom[from] = append(t.byFrom[from], int32(len(t.edges)))
	t.edges = append(t.edges, traceEdge{from: from, to: to})
}

// walk follows the successor pairing from a start edge until it returns to
// that edge, returning a closed ring of pixel-corner coordinates. A ring
// may pass through the same corner twice (a pinch), so closing is detected
// by edge identity, not by vertex.
func (t *tracer) walk(start int32) geom.Ring {
	ring := geom.Ring{t.cornerPoint(t.edges[start].from)}
	cur := start
	for {
		t.visited[cur] = true
		ring = append(ring, t.cornerPoint(t.edges[cur].to))
		next := t.pickNext(t.edges[cur])
		if next == start {
			return ring
		}
		cur = next
	}
}

// pickNext returns the successor of cur. At a checkerboard vertex two
// candidates exist; taking the right turn keeps the loop tight around its
// own diagonal block, which makes the background behave 8-connected: a
// cavity touching the outside only diagonally merges with it instead of
// becoming a hole. The pairing is a fixed permutation of the edges, so
// loops are well defined orbits independent of where a walk starts.
func (t *tracer) pickNext(cur traceEdge) int32 {
	cands := t.byFrom[cur.to]
	if len(cands) == 1 {
		return cands[0]
	}
	dx, dy := t.edgeDir(cur)
	// Right turn in y-down pixel space: (dx,dy) -> (-dy,dx).
	rx, ry := -dy, dx
	for _, ci := range cands {
		cx, cy := t.edgeDir(t.edges[ci])
		if cx == rx && cy == ry {
			return ci
		}
	}
	// Unreachable for well-formed edge sets: a checkerboard vertex always
	// offers the right turn to both of its incoming edges.
	panic("delta: boundary trace found no successor edge")
}

func (t *tracer) edgeDir(e traceEdge) (int64, int64) {
	stride := int64(t.grid.Width + 1)
	fx, fy := e.from%stride, e.from/stride
	tx, ty := e.to%stride, e.to/stride
	return tx - fx, ty - fy
}

func (t *tracer) cornerPoint(key int64) geom.Point {
	stride := int64(t.grid.Width + 1)
	return geom.Point{X: float64(key % stride), Y: float64(key / stride)}
}

func toWorld(r geom.Ring, gt raster.GeoTransform) geom.Ring {
	out := make(geom.Ring, len(r))
	for i, p := range r {
		x, y := gt.Apply(p.X, p.Y)
		out[i] = geom.Point{X: x, Y: y}
	}
	return out
}
