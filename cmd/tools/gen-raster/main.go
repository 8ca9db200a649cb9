// Command gen-raster generates synthetic classified raster fixtures for
// testing ingest and processing: a single-band grayscale PNG plus the
// georeferencing sidecar the loader expects next to it.
package main

import (
	"encoding/json"
	"flag"
	"image"
	"image/png"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/cerradolab/vegetation.report/internal/raster"
)

func main() {
	output := flag.String("o", "sample.png", "output path")
	width := flag.Int("width", 256, "raster width in pixels")
	height := flag.Int("height", 256, "raster height in pixels")
	year := flag.Int("year", 2020, "raster year (written to the sidecar)")
	srid := flag.Int("srid", 31982, "EPSG code (written to the sidecar)")
	pixelSize := flag.Float64("pixel", 30, "pixel size in projection units")
	originX := flag.Float64("x", 500000, "origin easting")
	originY := flag.Float64("y", 8200000, "origin northing")
	classList := flag.String("classes", "3,15,21", "comma-separated class codes")
	blockSize := flag.Int("block", 16, "patch edge in pixels")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	classes, err := parseClasses(*classList)
	if err != nil {
		log.Fatalf("invalid -classes: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	img := image.NewGray(image.Rect(0, 0, *width, *height))

	// Fill by blocks so the output has contiguous patches instead of
	// salt-and-pepper noise; vectorization fixtures need real components.
	for by := 0; by < *height; by += *blockSize {
		for bx := 0; bx < *width; bx += *blockSize {
			code := classes[rng.Intn(len(classes))]
			for y := by; y < by+*blockSize && y < *height; y++ {
				for x := bx; x < bx+*blockSize && x < *width; x++ {
					img.Pix[y*img.Stride+x] = code
				}
			}
		}
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	if err := png.Encode(f, img); err != nil {
		log.Fatalf("failed to encode png: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("failed to write %s: %v", *output, err)
	}

	nodata := 255.0
	sidecar := raster.Sidecar{
		SRID:         srid,
		GeoTransform: &raster.GeoTransform{*originX, *pixelSize, 0, *originY, 0, -*pixelSize},
		NoData:       &nodata,
		Year:         year,
	}
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal sidecar: %v", err)
	}
	sidecarPath := raster.SidecarPath(*output)
	if err := os.WriteFile(sidecarPath, data, 0o644); err != nil {
		log.Fatalf("failed to write sidecar: %v", err)
	}

	log.Printf("✓ Created: %s (%dx%d) + %s", *output, *width, *height, sidecarPath)
}

func parseClasses(s string) ([]uint8, error) {
	var out []uint8
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, err
		}
		out = append(out, uint8(v))
	}
	return out, nil
}
