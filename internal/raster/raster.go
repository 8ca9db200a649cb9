// Package raster owns raster ingestion for the hotspot engine: decoding
// classified land-cover grids from GeoTIFF or plain image containers,
// georeferencing metadata, and per-band summary statistics.
//
// A Snapshot is immutable once built. The engine reads grids but never
// writes them; all mutation happens at ingestion time in this package.
package raster

import (
	"errors"
	"fmt"
)

// ErrDecode indicates an unreadable or unsupported raster container.
var ErrDecode = errors.New("undecodable raster")

// GeoTransform is the GDAL-style affine transform from pixel space to
// projected coordinates:
//
//	X = GT[0] + col*GT[1] + row*GT[2]
//	Y = GT[3] + col*GT[4] + row*GT[5]
//
// GT[1] is the pixel width and GT[5] the (usually negative) pixel height.
type GeoTransform [6]float64

// DefaultTransform is the identity-like transform used when a container
// carries no georeferencing: origin (0,0), 1-unit pixels, north-up.
var DefaultTransform = GeoTransform{0, 1, 0, 0, 0, -1}

// Apply maps fractional pixel coordinates to projected coordinates.
func (gt GeoTransform) Apply(col, row float64) (x, y float64) {
	x = gt[0] + col*gt[1] + row*gt[2]
	y = gt[3] + col*gt[4] + row*gt[5]
	return x, y
}

// PixelWidth returns the absolute pixel width in projected units.
func (gt GeoTransform) PixelWidth() float64 {
	if gt[1] < 0 {
		return -gt[1]
	}
	return gt[1]
}

// PixelHeight returns the absolute pixel height in projected units.
func (gt GeoTransform) PixelHeight() float64 {
	if gt[5] < 0 {
		return -gt[5]
	}
	return gt[5]
}

// PixelAreaM2 returns the area of one pixel in square projected units.
// Only meaningful for north-up grids in linear (projected) units.
func (gt GeoTransform) PixelAreaM2() float64 {
	return gt.PixelWidth() * gt.PixelHeight()
}

// IsNorthUp reports whether the transform has no rotation terms.
func (gt GeoTransform) IsNorthUp() bool {
	return gt[2] == 0 && gt[4] == 0
}

// Extent is a projected bounding box.
type Extent struct {
	MinX, MinY, MaxX, MaxY float64
}

// Intersect returns the intersection of two extents and whether it is
// non-empty. Touching edges count as empty: a zero-width strip holds no
// pixel centers.
func (e Extent) Intersect(o Extent) (Extent, bool) {
	out := Extent{
		MinX: maxf(e.MinX, o.MinX),
		MinY: maxf(e.MinY, o.MinY),
		MaxX: minf(e.MaxX, o.MaxX),
		MaxY: minf(e.MaxY, o.MaxY),
	}
	if out.MinX >= out.MaxX || out.MinY >= out.MaxY {
		return Extent{}, false
	}
	return out, true
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Snapshot is one classified raster at one point in time. Class codes are
// small non-negative integers (one byte per pixel keeps a 200M-pixel scene
// under 200MB).
type Snapshot struct {
	ID     int64  // assigned by the store on ingest; 0 before that
	Name   string // source file name
	Year   int    // acquisition year (business key together with source)
	Format string // container driver name, e.g. "GTiff", "PNG"

	Width  int
	Height int
	Bands  int // bands in the container; only the class band is loaded

	SRID      int // EPSG code; 0 = unknown, blocks comparison
	Transform GeoTransform
	NoData    *uint8

	// Pixels is the class band in row-major order, len == Width*Height.
	Pixels []uint8
}

// Validate checks the snapshot's structural invariants.
func (s *Snapshot) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", s.Width, s.Height)
	}
	if len(s.Pixels) != s.Width*s.Height {
		return fmt.Errorf("pixel grid length %d does not match %dx%d", len(s.Pixels), s.Width, s.Height)
	}
	return nil
}

// At returns the class code at the given column and row. Callers are
// responsible for bounds; this is a hot path and does not check.
func (s *Snapshot) At(col, row int) uint8 {
	return s.Pixels[row*s.Width+col]
}

// IsNoData reports whether the value is the snapshot's nodata code.
func (s *Snapshot) IsNoData(v uint8) bool {
	return s.NoData != nil && v == *s.NoData
}

// Extent returns the projected bounding box of the grid.
func (s *Snapshot) Extent() Extent {
	x0, y0 := s.Transform.Apply(0, 0)
	x1, y1 := s.Transform.Apply(float64(s.Width), float64(s.Height))
	return Extent{
		MinX: minf(x0, x1),
		MinY: minf(y0, y1),
		MaxX: maxf(x0, x1),
		MaxY: maxf(y0, y1),
	}
}

// PixelAreaHa returns the area of one pixel in hectares.
func (s *Snapshot) PixelAreaHa() float64 {
	return s.Transform.PixelAreaM2() / 10000
}
