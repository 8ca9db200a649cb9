package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"
)

// grayImage builds an image.Gray from row-major class codes.
func grayImage(w, h int, classes []uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for row := 0; row < h; row++ {
		copy(img.Pix[row*img.Stride:row*img.Stride+w], classes[row*w:(row+1)*w])
	}
	return img
}

func TestDecodePNG(t *testing.T) {
	classes := []uint8{3, 4, 15, 12}
	var buf bytes.Buffer
	if err := png.Encode(&buf, grayImage(2, 2, classes)); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	snap, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if snap.Width != 2 || snap.Height != 2 {
		t.Errorf("dimensions = %dx%d, want 2x2", snap.Width, snap.Height)
	}
	if snap.Format != "PNG" {
		t.Errorf("Format = %q, want PNG", snap.Format)
	}
	if snap.SRID != 0 {
		t.Errorf("PNG has no CRS, SRID = %d, want 0", snap.SRID)
	}
	if !bytes.Equal(snap.Pixels, classes) {
		t.Errorf("Pixels = %v, want %v", snap.Pixels, classes)
	}
	if err := snap.Validate(); err != nil {
		t.Errorf("decoded snapshot invalid: %v", err)
	}
}

func TestDecodeTIFFPixels(t *testing.T) {
	classes := []uint8{3, 3, 15, 3, 15, 15}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, grayImage(3, 2, classes), nil); err != nil {
		t.Fatalf("encode tiff: %v", err)
	}

	snap, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if snap.Format != "GTiff" {
		t.Errorf("Format = %q, want GTiff", snap.Format)
	}
	if !bytes.Equal(snap.Pixels, classes) {
		t.Errorf("Pixels = %v, want %v", snap.Pixels, classes)
	}
	// x/image writes no geo tags; the transform falls back to the default.
	if snap.Transform != DefaultTransform {
		t.Errorf("Transform = %v, want default", snap.Transform)
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("not a raster at all"))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestDecodeTruncatedTIFF(t *testing.T) {
	_, err := Decode([]byte("II\x2a\x00"))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestDecodeFileWithSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cerrado_2020.png")

	var buf bytes.Buffer
	if err := png.Encode(&buf, grayImage(2, 2, []uint8{3, 3, 3, 15})); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write raster: %v", err)
	}

	sidecar := `{
  "srid": 31982,
  "geotransform": [500000, 30, 0, 8200000, 0, -30],
  "nodata": 255,
  "year": 2020
}`
	if err := os.WriteFile(SidecarPath(path), []byte(sidecar), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	snap, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile() error: %v", err)
	}
	if snap.Name != "cerrado_2020.png" {
		t.Errorf("Name = %q", snap.Name)
	}
	if snap.SRID != 31982 {
		t.Errorf("SRID = %d, want 31982", snap.SRID)
	}
	if snap.Year != 2020 {
		t.Errorf("Year = %d, want 2020", snap.Year)
	}
	if snap.NoData == nil || *snap.NoData != 255 {
		t.Errorf("NoData = %v, want 255", snap.NoData)
	}
	if snap.Transform.PixelWidth() != 30 {
		t.Errorf("pixel width = %v, want 30", snap.Transform.PixelWidth())
	}
}

func TestDecodeFileBadSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.png")

	var buf bytes.Buffer
	if err := png.Encode(&buf, grayImage(1, 1, []uint8{3})); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write raster: %v", err)
	}
	if err := os.WriteFile(SidecarPath(path), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	if _, err := DecodeFile(path); err == nil {
		t.Error("broken sidecar should fail the load")
	}
}

// buildGeoTIFFHeader assembles a classic little-endian TIFF IFD carrying
// only georeferencing tags. Pixel tags are absent on purpose: the result
// exercises parseGeoTags, not the image decoder.
func buildGeoTIFFHeader(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	le := binary.LittleEndian
	w := func(v interface{}) {
		if err := binary.Write(&buf, le, v); err != nil {
			t.Fatalf("binary write: %v", err)
		}
	}

	// Header: II, magic 42, first IFD at byte 8.
	buf.WriteString("II")
	w(uint16(42))
	w(uint32(8))

	const entries = 4
	ifdStart := 8
	dataStart := uint32(ifdStart + 2 + entries*12 + 4)

	pixelScaleOff := dataStart
	tiepointOff := pixelScaleOff + 3*8
	geoKeysOff := tiepointOff + 6*8

	w(uint16(entries))
	// 33550 ModelPixelScale: 3 doubles.
	w(uint16(tagModelPixelScale))
	w(uint16(typeDouble))
	w(uint32(3))
	w(pixelScaleOff)
	// 33922 ModelTiepoint: 6 doubles.
	w(uint16(tagModelTiepoint))
	w(uint16(typeDouble))
	w(uint32(6))
	w(tiepointOff)
	// 34735 GeoKeyDirectory: 8 shorts.
	w(uint16(tagGeoKeyDirectory))
	w(uint16(typeShort))
	w(uint32(8))
	w(geoKeysOff)
	// 42113 GDAL_NODATA: "255" fits inline.
	w(uint16(tagGDALNoData))
	w(uint16(typeASCII))
	w(uint32(4))
	buf.WriteString("255\x00")
	// Next IFD offset: none.
	w(uint32(0))

	// Data blocks.
	for _, d := range []float64{30, 30, 0} { // pixel scale
		w(math.Float64bits(d))
	}
	for _, d := range []float64{0, 0, 0, 500000, 8200000, 0} { // tiepoint
		w(math.Float64bits(d))
	}
	// GeoKeyDirectory: version header + ProjectedCSTypeGeoKey = 31982.
	for _, s := range []uint16{1, 1, 0, 1, geoKeyProjectedCS, 0, 1, 31982} {
		w(s)
	}

	return buf.Bytes()
}

func TestParseGeoTags(t *testing.T) {
	meta, err := parseGeoTags(buildGeoTIFFHeader(t))
	if err != nil {
		t.Fatalf("parseGeoTags() error: %v", err)
	}

	if meta.srid != 31982 {
		t.Errorf("srid = %d, want 31982", meta.srid)
	}
	if meta.nodata == nil || *meta.nodata != 255 {
		t.Errorf("nodata = %v, want 255", meta.nodata)
	}
	if meta.transform == nil {
		t.Fatal("transform not extracted")
	}
	want := GeoTransform{500000, 30, 0, 8200000, 0, -30}
	if *meta.transform != want {
		t.Errorf("transform = %v, want %v", *meta.transform, want)
	}
}

func TestParseGeoTagsBigEndianMark(t *testing.T) {
	if _, err := parseGeoTags([]byte("XX\x00\x2a\x00\x00\x00\x08")); err == nil {
		t.Error("bad byte order mark accepted")
	}
}

func TestEpsgFromGeoKeys(t *testing.T) {
	tests := []struct {
		name string
		keys []uint16
		want int
	}{
		{"nil", nil, 0},
		{"projected wins", []uint16{1, 1, 0, 2, geoKeyGeographicType, 0, 1, 4326, geoKeyProjectedCS, 0, 1, 31982}, 31982},
		{"geographic fallback", []uint16{1, 1, 0, 1, geoKeyGeographicType, 0, 1, 4674}, 4674},
		{"user-defined ignored", []uint16{1, 1, 0, 1, geoKeyProjectedCS, 0, 1, 32767}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := epsgFromGeoKeys(tt.keys); got != tt.want {
				t.Errorf("epsgFromGeoKeys() = %d, want %d", got, tt.want)
			}
		})
	}
}
