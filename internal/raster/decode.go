package raster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/tiff"
)

// Sidecar is optional georeferencing supplied next to containers that
// cannot carry it (PNG, JPEG) or to patch an incomplete GeoTIFF. For a
// raster at path/scene.png the loader looks for path/scene.png.meta.json.
type Sidecar struct {
	SRID         *int          `json:"srid,omitempty"`
	GeoTransform *GeoTransform `json:"geotransform,omitempty"`
	NoData       *float64      `json:"nodata,omitempty"`
	Year         *int          `json:"year,omitempty"`
}

// SidecarPath returns the sidecar file path for a raster path.
func SidecarPath(rasterPath string) string {
	return rasterPath + ".meta.json"
}

// DecodeFile decodes a raster file into a Snapshot, applying any sidecar
// metadata found next to it. Missing CRS is not an error here: the
// snapshot keeps SRID 0 and alignment refuses it later.
func DecodeFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	snap, err := Decode(data)
	if err != nil {
		return nil, err
	}
	snap.Name = filepath.Base(path)

	if sc, err := loadSidecar(SidecarPath(path)); err != nil {
		return nil, err
	} else if sc != nil {
		applySidecar(snap, sc)
	}
	return snap, nil
}

// Decode decodes raster bytes into a Snapshot. GeoTIFF pixel data is
// decoded by x/image/tiff with georeferencing read from the raw tags;
// PNG and JPEG decode without georeferencing (SRID 0).
func Decode(data []byte) (*Snapshot, error) {
	if len(data) >= 4 && (string(data[0:2]) == "II" || string(data[0:2]) == "MM") {
		return decodeGeoTIFF(data)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	snap, err := snapshotFromImage(img)
	if err != nil {
		return nil, err
	}
	snap.Format = formatName(format)
	snap.Bands = 1
	return snap, nil
}

// DecodeReader is a convenience wrapper for callers holding a stream.
func DecodeReader(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Decode(data)
}

func decodeGeoTIFF(data []byte) (*Snapshot, error) {
	meta, err := parseGeoTags(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	snap, err := snapshotFromImage(img)
	if err != nil {
		return nil, err
	}
	snap.Format = "GTiff"
	snap.Bands = 1
	if meta.samplesPerPx > 0 {
		snap.Bands = meta.samplesPerPx
	}
	if meta.transform != nil {
		snap.Transform = *meta.transform
	}
	snap.SRID = meta.srid
	if meta.nodata != nil {
		snap.NoData = classCode(*meta.nodata)
	}
	return snap, nil
}

// snapshotFromImage extracts the class band from a decoded image. Only
// single-channel layouts are classified rasters; anything else is refused
// rather than guessed at.
func snapshotFromImage(img image.Image) (*Snapshot, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	snap := &Snapshot{
		Width:     w,
		Height:    h,
		Transform: DefaultTransform,
		Pixels:    make([]uint8, w*h),
	}

	switch src := img.(type) {
	case *image.Gray:
		for row := 0; row < h; row++ {
			copy(snap.Pixels[row*w:(row+1)*w], src.Pix[row*src.Stride:row*src.Stride+w])
		}
	case *image.Paletted:
		for row := 0; row < h; row++ {
			copy(snap.Pixels[row*w:(row+1)*w], src.Pix[row*src.Stride:row*src.Stride+w])
		}
	case *image.Gray16:
		for row := 0; row < h; row++ {
			for col := 0; col < w; col++ {
				v := uint16(src.Pix[row*src.Stride+col*2])<<8 | uint16(src.Pix[row*src.Stride+col*2+1])
				if v > 255 {
					return nil, fmt.Errorf("%w: class code %d exceeds one byte", ErrDecode, v)
				}
				snap.Pixels[row*w+col] = uint8(v)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported pixel layout %T (classified rasters are single-band)", ErrDecode, img)
	}

	return snap, nil
}

func loadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sidecar %s: %w", path, err)
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse sidecar %s: %w", path, err)
	}
	return &sc, nil
}

// applySidecar overlays sidecar fields onto a snapshot. Sidecar values win
// over container values so operators can correct bad embedded metadata.
func applySidecar(snap *Snapshot, sc *Sidecar) {
	if sc.SRID != nil {
		snap.SRID = *sc.SRID
	}
	if sc.GeoTransform != nil {
		snap.Transform = *sc.GeoTransform
	}
	if sc.NoData != nil {
		snap.NoData = classCode(*sc.NoData)
	}
	if sc.Year != nil {
		snap.Year = *sc.Year
	}
}

// classCode narrows a float nodata declaration to the byte class space.
// Values outside [0,255] cannot collide with any class and are dropped.
func classCode(v float64) *uint8 {
	if v < 0 || v > 255 || v != float64(int(v)) {
		return nil
	}
	c := uint8(v)
	return &c
}

func formatName(goFormat string) string {
	switch goFormat {
	case "png":
		return "PNG"
	case "jpeg":
		return "JPEG"
	default:
		return goFormat
	}
}
