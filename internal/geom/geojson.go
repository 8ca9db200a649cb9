package geom

import (
	"encoding/json"
	"fmt"
)

// GeoJSON encoding for polygons and feature collections.
//
// The store persists hotspot geometry as GeoJSON text and the API serves
// FeatureCollections, so encode and decode both live here rather than at
// the HTTP layer.

// Feature is a GeoJSON Feature wrapping a polygon and scalar properties.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection returns an empty collection that still encodes
// "features": [] rather than null.
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

// Append adds one polygon feature with the given properties.
func (fc *FeatureCollection) Append(p Polygon, props map[string]interface{}) error {
	g, err := p.MarshalJSON()
	if err != nil {
		return err
	}
	fc.Features = append(fc.Features, Feature{
		Type:       "Feature",
		Geometry:   g,
		Properties: props,
	})
	return nil
}

// geoJSONPolygon is the wire shape of a GeoJSON Polygon.
type geoJSONPolygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// MarshalJSON encodes the polygon as a GeoJSON Polygon geometry. The outer
// ring comes first, holes follow, matching RFC 7946 ring ordering.
func (p Polygon) MarshalJSON() ([]byte, error) {
	coords := make([][][2]float64, 0, 1+len(p.Holes))
	coords = append(coords, ringCoords(p.Outer))
	for _, h := range p.Holes {
		coords = append(coords, ringCoords(h))
	}
	return json.Marshal(geoJSONPolygon{Type: "Polygon", Coordinates: coords})
}

// UnmarshalJSON decodes a GeoJSON Polygon geometry.
func (p *Polygon) UnmarshalJSON(data []byte) error {
	var gj geoJSONPolygon
	if err := json.Unmarshal(data, &gj); err != nil {
		return err
	}
	if gj.Type != "Polygon" {
		return fmt.Errorf("unexpected geometry type %q, want Polygon", gj.Type)
	}
	if len(gj.Coordinates) == 0 {
		return fmt.Errorf("polygon has no rings")
	}
	p.Outer = coordsRing(gj.Coordinates[0])
	p.Holes = nil
	for _, rc := range gj.Coordinates[1:] {
		p.Holes = append(p.Holes, coordsRing(rc))
	}
	return nil
}

func ringCoords(r Ring) [][2]float64 {
	out := make([][2]float64, len(r))
	for i, pt := range r {
		out[i] = [2]float64{pt.X, pt.Y}
	}
	return out
}

func coordsRing(coords [][2]float64) Ring {
	r := make(Ring, len(coords))
	for i, c := range coords {
		r[i] = Point{X: c[0], Y: c[1]}
	}
	return r
}
