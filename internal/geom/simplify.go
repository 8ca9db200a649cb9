package geom

// Douglas-Peucker simplification for polygon rings.
//
// Simplification is lossy and for transmission only: hotspot areas are
// computed from pixel counts before any ring passes through here. A
// tolerance of 0 is an exact no-op. Simplified rings may self-touch in
// degenerate cases; that is a documented limitation, not an invariant.

// minRingPoints is the smallest valid closed ring: triangle plus closure.
const minRingPoints = 4

// Simplify reduces the vertex count of the ring using Douglas-Peucker with
// the given tolerance in coordinate units. The ring's endpoints (which
// coincide for a closed ring) are always kept. If simplification would
// collapse the ring below a valid closed triangle, the original is
// returned unchanged.
func (r Ring) Simplify(tolerance float64) Ring {
	if tolerance <= 0 || len(r) <= minRingPoints {
		return r
	}

	keep := make([]bool, len(r))
	keep[0] = true
	keep[len(r)-1] = true

	// For a closed ring the shared endpoint is a degenerate anchor pair, so
	// pin the most distant vertex as a third anchor before recursing.
	if r.Closed() {
		far, maxDist := 0, -1.0
		for i := 1; i < len(r)-1; i++ {
			d := perpDistSq(r[i], r[0], r[len(r)-1])
			// Degenerate segment: perpDistSq falls back to point distance.
			if d > maxDist {
				maxDist = d
				far = i
			}
		}
		if far == 0 {
			return r
		}
		keep[far] = true
		douglasPeucker(r, 0, far, tolerance, keep)
		douglasPeucker(r, far, len(r)-1, tolerance, keep)
	} else {
		douglasPeucker(r, 0, len(r)-1, tolerance, keep)
	}

	out := make(Ring, 0, len(r))
	for i, k := range keep {
		if k {
			out = append(out, r[i])
		}
	}
	if len(out) < minRingPoints {
		return r
	}
	return out
}

// douglasPeucker marks vertices to keep between indices lo and hi.
func douglasPeucker(r Ring, lo, hi int, tolerance float64, keep []bool) {
	if hi-lo < 2 {
		return
	}
	far, maxDist := lo, -1.0
	for i := lo + 1; i < hi; i++ {
		d := perpDistSq(r[i], r[lo], r[hi])
		if d > maxDist {
			maxDist = d
			far = i
		}
	}
	if maxDist <= tolerance*tolerance {
		return
	}
	keep[far] = true
	douglasPeucker(r, lo, far, tolerance, keep)
	douglasPeucker(r, far, hi, tolerance, keep)
}

// perpDistSq returns the squared perpendicular distance from p to the
// segment a-b. If a == b it degrades to squared point distance.
func perpDistSq(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		ex, ey := p.X-a.X, p.Y-a.Y
		return ex*ex + ey*ey
	}
	// Cross product magnitude over segment length gives the distance.
	cross := dx*(p.Y-a.Y) - dy*(p.X-a.X)
	return cross * cross / lenSq
}

// Simplify applies ring simplification to the outer ring and every hole.
// Holes that collapse below a valid ring are kept as-is rather than
// dropped, so the feature count and topology are preserved.
func (p Polygon) Simplify(tolerance float64) Polygon {
	if tolerance <= 0 {
		return p
	}
	out := Polygon{Outer: p.Outer.Simplify(tolerance)}
	if len(p.Holes) > 0 {
		out.Holes = make([]Ring, len(p.Holes))
		for i, h := range p.Holes {
			out.Holes[i] = h.Simplify(tolerance)
		}
	}
	return out
}
