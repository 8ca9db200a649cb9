package delta

import (
	"fmt"
	"math"

	"github.com/cerradolab/vegetation.report/internal/raster"
)

// syntheticNoData marks outside-intersection pixels when a source raster
// declares no nodata value. Class codes live in [0, K) with K <= 256, so
// 255 can only collide with a class when K is 256; validate catches that.
const syntheticNoData = uint8(255)

// Align verifies two snapshots are comparable and returns grids with
// identical width, height, and geotransform covering the intersection of
// the two extents. When resolutions differ, the coarser grid is resampled
// onto the finer grid's pixel centers with nearest-neighbor only; any
// interpolating resampler would invent classes at boundaries. Pixels
// outside the intersection come back as nodata.
func Align(a, b *raster.Snapshot) (*raster.Snapshot, *raster.Snapshot, error) {
	for _, s := range []*raster.Snapshot{a, b} {
		if err := s.Validate(); err != nil {
			return nil, nil, fmt.Errorf("raster %s: %w", describe(s), err)
		}
		if s.SRID == 0 {
			return nil, nil, fmt.Errorf("raster %s: %w", describe(s), ErrMissingProjection)
		}
		if !s.Transform.IsNorthUp() {
			return nil, nil, fmt.Errorf("raster %s: %w", describe(s), ErrRotatedGrid)
		}
	}
	if a.SRID != b.SRID {
		return nil, nil, fmt.Errorf("raster %s (EPSG:%d) vs %s (EPSG:%d): %w",
			describe(a), a.SRID, describe(b), b.SRID, ErrProjectionMismatch)
	}

	// Identical lattices need no work at all.
	if a.Transform == b.Transform && a.Width == b.Width && a.Height == b.Height {
		return a, b, nil
	}

	sect, ok := a.Extent().Intersect(b.Extent())
	if !ok {
		return nil, nil, fmt.Errorf("raster %s vs %s: %w", describe(a), describe(b), ErrDisjointExtent)
	}

	// The finer grid defines the target lattice.
	ref := a
	if b.Transform.PixelAreaM2() < a.Transform.PixelAreaM2() {
		ref = b
	}

	target, err := targetGrid(ref, sect)
	if err != nil {
		return nil, nil, fmt.Errorf("raster %s vs %s: %w", describe(a), describe(b), err)
	}

	outA := resample(a, target)
	outB := resample(b, target)
	return outA, outB, nil
}

// gridSpec is the shared lattice both aligned outputs use.
type gridSpec struct {
	width, height int
	transform     raster.GeoTransform
}

// targetGrid snaps the intersection extent onto the reference grid's
// pixel lattice: the output contains exactly the reference pixels whose
// centers fall inside the intersection.
func targetGrid(ref *raster.Snapshot, sect raster.Extent) (gridSpec, error) {
	px := ref.Transform.PixelWidth()
	py := ref.Transform.PixelHeight()
	originX := ref.Transform[0]
	originY := ref.Transform[3]

	c0 := int(math.Ceil((sect.MinX-originX)/px - 0.5))
	c1 := int(math.Floor((sect.MaxX-originX)/px - 0.5))
	r0 := int(math.Ceil((originY-sect.MaxY)/py - 0.5))
	r1 := int(math.Floor((originY-sect.MinY)/py - 0.5))
	if c1 < c0 || r1 < r0 {
		return gridSpec{}, ErrDisjointExtent
	}

	return gridSpec{
		width:  c1 - c0 + 1,
		height: r1 - r0 + 1,
		transform: raster.GeoTransform{
			originX + float64(c0)*px, px, 0,
			originY - float64(r0)*py, 0, -py,
		},
	}, nil
}

// resample samples a source snapshot at each target pixel center using
// nearest neighbor. Centers outside the source come back as nodata.
func resample(src *raster.Snapshot, target gridSpec) *raster.Snapshot {
	nodata := syntheticNoData
	if src.NoData != nil {
		nodata = *src.NoData
	}

	out := &raster.Snapshot{
		ID:        src.ID,
		Name:      src.Name,
		Year:      src.Year,
		Format:    src.Format,
		Width:     target.width,
		Height:    target.height,
		Bands:     src.Bands,
		SRID:      src.SRID,
		Transform: target.transform,
		NoData:    &nodata,
		Pixels:    make([]uint8, target.width*target.height),
	}

	srcPx := src.Transform.PixelWidth()
	srcPy := src.Transform.PixelHeight()
	srcOriginX := src.Transform[0]
	srcOriginY := src.Transform[3]

	for row := 0; row < target.height; row++ {
		// Target pixel centers in projected coordinates.
		y := target.transform[3] - (float64(row)+0.5)*target.transform.PixelHeight()
		srcRow := int(math.Floor((srcOriginY - y) / srcPy))
		for col := 0; col < target.width; col++ {
			x := target.transform[0] + (float64(col)+0.5)*target.transform.PixelWidth()
			srcCol := int(math.Floor((x - srcOriginX) / srcPx))
			idx := row*target.width + col
			if srcRow < 0 || srcRow >= src.Height || srcCol < 0 || srcCol >= src.Width {
				out.Pixels[idx] = nodata
				continue
			}
			out.Pixels[idx] = src.At(srcCol, srcRow)
		}
	}
	return out
}

// describe identifies a snapshot in error messages: stored id when it has
// one, file name otherwise.
func describe(s *raster.Snapshot) string {
	if s.ID != 0 {
		return fmt.Sprintf("#%d", s.ID)
	}
	if s.Name != "" {
		return s.Name
	}
	return "(unnamed)"
}
