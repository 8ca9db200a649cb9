// Package geom provides the planar polygon model shared by the vectorizer
// and the hotspot store: rings, polygons with holes, GeoJSON encoding, and
// tolerance-based simplification.
//
// Coordinates are in the projected units of the raster pair that produced
// them; geom itself is projection-agnostic.
package geom

import "math"

// Point is a vertex in projected coordinates.
type Point struct {
	X float64
	Y float64
}

// Ring is a closed linear ring: the first and last points are equal.
// A valid ring has at least 4 points (triangle plus closure).
type Ring []Point

// Polygon is one outer ring plus zero or more hole rings. The vectorizer
// emits exactly one polygon per connected component, so there is no
// multi-part variant here; a feature collection carries many polygons.
type Polygon struct {
	Outer Ring
	Holes []Ring
}

// Closed reports whether the ring's first and last points coincide.
func (r Ring) Closed() bool {
	if len(r) < 2 {
		return false
	}
	return r[0] == r[len(r)-1]
}

// SignedArea returns the shoelace area of the ring. The sign encodes
// winding: positive for one orientation, negative for the other. Callers
// use the sign to tell outer rings from holes and the magnitude for
// sanity checks only; hotspot areas always come from pixel counts.
func (r Ring) SignedArea() float64 {
	if len(r) < 4 {
		return 0
	}
	var sum float64
	for i := 0; i < len(r)-1; i++ {
		sum += r[i].X*r[i+1].Y - r[i+1].X*r[i].Y
	}
	return sum / 2
}

// Area returns the absolute shoelace area of the ring.
func (r Ring) Area() float64 {
	return math.Abs(r.SignedArea())
}

// Reverse returns a copy of the ring with the vertex order flipped.
func (r Ring) Reverse() Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// Bounds returns the axis-aligned bounding box of the ring.
func (r Ring) Bounds() (minX, minY, maxX, maxY float64) {
	if len(r) == 0 {
		return 0, 0, 0, 0
	}
	minX, maxX = r[0].X, r[0].X
	minY, maxY = r[0].Y, r[0].Y
	for _, p := range r[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return minX, minY, maxX, maxY
}

// VertexCount returns the total number of vertices across all rings.
func (p Polygon) VertexCount() int {
	n := len(p.Outer)
	for _, h := range p.Holes {
		n += len(h)
	}
	return n
}
