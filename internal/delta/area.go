package delta

import (
	"github.com/cerradolab/vegetation.report/internal/raster"
	"github.com/cerradolab/vegetation.report/internal/units"
)

// AreaHa computes the area of a region in hectares from its exact pixel
// count and the grid's pixel size. This is the authoritative area: it is
// computed before simplification and is never derived from ring geometry,
// so simplification can shave vertices without moving reported numbers.
func AreaHa(pixelCount int, gt raster.GeoTransform) float64 {
	return units.SquareMetersToHectares(float64(pixelCount) * gt.PixelAreaM2())
}
