package raster

import (
	"gonum.org/v1/gonum/stat"
)

// BandStats summarises the class band of a snapshot, excluding nodata
// pixels. This backs the per-raster statistics endpoint.
type BandStats struct {
	Count  int64   `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`

	// Histogram maps class code to pixel count for non-nodata pixels.
	Histogram map[uint8]int64 `json:"histogram"`
}

// Stats computes band statistics in one pass over the grid. Class codes
// are bytes, so the grid collapses to a 256-bin histogram and the moments
// come from the weighted forms, with no second pass or value buffer.
func (s *Snapshot) Stats() BandStats {
	var counts [256]int64
	for _, v := range s.Pixels {
		counts[v]++
	}
	if s.NoData != nil {
		counts[*s.NoData] = 0
	}

	values := make([]float64, 0, 256)
	weights := make([]float64, 0, 256)
	out := BandStats{Min: -1, Max: -1, Histogram: make(map[uint8]int64)}
	for code := 0; code < 256; code++ {
		n := counts[code]
		if n == 0 {
			continue
		}
		out.Count += n
		out.Histogram[uint8(code)] = n
		if out.Min < 0 {
			out.Min = float64(code)
		}
		out.Max = float64(code)
		values = append(values, float64(code))
		weights = append(weights, float64(n))
	}
	if out.Count == 0 {
		return BandStats{Histogram: out.Histogram}
	}

	out.Mean = stat.Mean(values, weights)
	if out.Count > 1 {
		out.StdDev = stat.StdDev(values, weights)
	}
	return out
}
