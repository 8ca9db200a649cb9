package raster

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Minimal GeoTIFF tag reader.
//
// golang.org/x/image/tiff decodes pixel data but discards private tags, so
// the georeferencing tags are scanned directly from the first IFD here.
// Only the tags the engine consumes are read:
//
//	33550 ModelPixelScaleTag    3 doubles (sx, sy, sz)
//	33922 ModelTiepointTag      6 doubles (i, j, k, x, y, z)
//	34264 ModelTransformationTag 16 doubles (row-major 4x4)
//	34735 GeoKeyDirectoryTag    shorts; EPSG via keys 3072/2048
//	42113 GDAL_NODATA           ASCII float
const (
	tagSamplesPerPixel     = 277
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGDALNoData          = 42113
)

// GeoTIFF key IDs carrying the EPSG code.
const (
	geoKeyGeographicType = 2048
	geoKeyProjectedCS    = 3072
)

// TIFF field types used by the tags above.
const (
	typeASCII  = 2
	typeShort  = 3
	typeDouble = 12
)

// geoMeta holds the georeferencing extracted from a GeoTIFF.
type geoMeta struct {
	transform    *GeoTransform
	srid         int
	nodata       *float64
	samplesPerPx int
}

// parseGeoTags scans the first IFD of a classic TIFF for georeferencing
// tags. Absent tags leave the corresponding fields zero; a malformed
// structure returns an error so the caller can wrap it as a decode failure.
func parseGeoTags(data []byte) (geoMeta, error) {
	var meta geoMeta
	if len(data) < 8 {
		return meta, fmt.Errorf("truncated TIFF header")
	}

	var order binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return meta, fmt.Errorf("bad TIFF byte order mark %q", data[0:2])
	}
	if order.Uint16(data[2:4]) != 42 {
		// BigTIFF (43) and anything else: x/image/tiff will reject the
		// pixel data too, so fail here with the same story.
		return meta, fmt.Errorf("not a classic TIFF")
	}

	ifdOffset := int64(order.Uint32(data[4:8]))
	if ifdOffset+2 > int64(len(data)) {
		return meta, fmt.Errorf("IFD offset out of range")
	}
	entryCount := int(order.Uint16(data[ifdOffset : ifdOffset+2]))
	entriesEnd := ifdOffset + 2 + int64(entryCount)*12
	if entriesEnd > int64(len(data)) {
		return meta, fmt.Errorf("IFD entries out of range")
	}

	var pixelScale, tiepoint, transform []float64
	var geoKeys []uint16

	for i := 0; i < entryCount; i++ {
		entry := data[ifdOffset+2+int64(i)*12 : ifdOffset+2+int64(i)*12+12]
		tag := order.Uint16(entry[0:2])
		fieldType := order.Uint16(entry[2:4])
		count := order.Uint32(entry[4:8])

		switch tag {
		case tagSamplesPerPixel:
			if fieldType == typeShort && count >= 1 {
				meta.samplesPerPx = int(order.Uint16(entry[8:10]))
			}
		case tagModelPixelScale:
			pixelScale = readDoubles(data, order, entry, count, fieldType)
		case tagModelTiepoint:
			tiepoint = readDoubles(data, order, entry, count, fieldType)
		case tagModelTransformation:
			transform = readDoubles(data, order, entry, count, fieldType)
		case tagGeoKeyDirectory:
			geoKeys = readShorts(data, order, entry, count, fieldType)
		case tagGDALNoData:
			if s := readASCII(data, order, entry, count, fieldType); s != "" {
				if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					meta.nodata = &v
				}
			}
		}
	}

	switch {
	case len(transform) >= 8:
		// Row-major 4x4: X = t0*col + t1*row + t3; Y = t4*col + t5*row + t7.
		meta.transform = &GeoTransform{transform[3], transform[0], transform[1], transform[7], transform[4], transform[5]}
	case len(pixelScale) >= 2 && len(tiepoint) >= 6:
		// Tiepoint (i,j) anchors raster to (x,y); scale y is stored
		// positive but rows advance southward.
		originX := tiepoint[3] - tiepoint[0]*pixelScale[0]
		originY := tiepoint[4] + tiepoint[1]*pixelScale[1]
		meta.transform = &GeoTransform{originX, pixelScale[0], 0, originY, 0, -pixelScale[1]}
	}

	meta.srid = epsgFromGeoKeys(geoKeys)
	return meta, nil
}

// epsgFromGeoKeys walks a GeoKeyDirectory short array and returns the EPSG
// code from the projected CS key, falling back to the geographic type key.
// Returns 0 when neither is present or the value is a placeholder.
func epsgFromGeoKeys(keys []uint16) int {
	if len(keys) < 4 {
		return 0
	}
	numKeys := int(keys[3])
	geographic := 0
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+4 > len(keys) {
			break
		}
		keyID := keys[base]
		location := keys[base+1]
		value := int(keys[base+3])
		if location != 0 {
			continue // value lives in another tag; not an inline code
		}
		// 32767 is "user-defined", not a usable EPSG code.
		if value == 0 || value == 32767 {
			continue
		}
		switch keyID {
		case geoKeyProjectedCS:
			return value
		case geoKeyGeographicType:
			geographic = value
		}
	}
	return geographic
}

func entryValueOffset(data []byte, order binary.ByteOrder, entry []byte, byteLen int64) ([]byte, bool) {
	if byteLen <= 4 {
		return entry[8 : 8+byteLen], true
	}
	off := int64(order.Uint32(entry[8:12]))
	if off+byteLen > int64(len(data)) {
		return nil, false
	}
	return data[off : off+byteLen], true
}

func readDoubles(data []byte, order binary.ByteOrder, entry []byte, count uint32, fieldType uint16) []float64 {
	if fieldType != typeDouble || count == 0 || count > 64 {
		return nil
	}
	raw, ok := entryValueOffset(data, order, entry, int64(count)*8)
	if !ok {
		return nil
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = math.Float64frombits(order.Uint64(raw[i*8 : i*8+8]))
	}
	return out
}

func readShorts(data []byte, order binary.ByteOrder, entry []byte, count uint32, fieldType uint16) []uint16 {
	if fieldType != typeShort || count == 0 || count > 4096 {
		return nil
	}
	raw, ok := entryValueOffset(data, order, entry, int64(count)*2)
	if !ok {
		return nil
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = order.Uint16(raw[i*2 : i*2+2])
	}
	return out
}

func readASCII(data []byte, order binary.ByteOrder, entry []byte, count uint32, fieldType uint16) string {
	if fieldType != typeASCII || count == 0 || count > 256 {
		return ""
	}
	raw, ok := entryValueOffset(data, order, entry, int64(count))
	if !ok {
		return ""
	}
	return strings.TrimRight(string(raw), "\x00")
}
