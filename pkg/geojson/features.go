package geojson

import (
	"encoding/json"
	"fmt"
	"math"
)

// Feature represents a GeoJSON Feature object.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   *Geometry       `json:"geometry"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// FeatureCollection represents a GeoJSON FeatureCollection object.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// ParseGeometry extracts a geometry from raw GeoJSON that may be a bare
// geometry, a Feature, or a FeatureCollection. For a FeatureCollection the
// first feature's geometry is used, matching how region files exported by
// common GIS tools wrap a single polygon.
func ParseGeometry(data []byte) (*Geometry, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		var fc FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse FeatureCollection: %w", err)
		}
		if len(fc.Features) == 0 {
			return nil, fmt.Errorf("FeatureCollection has no features")
		}
		if fc.Features[0].Geometry == nil {
			return nil, fmt.Errorf("first feature has no geometry")
		}
		return fc.Features[0].Geometry, nil

	case "Feature":
		var f Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse Feature: %w", err)
		}
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature has no geometry")
		}
		return f.Geometry, nil

	case "Point", "Polygon", "MultiPolygon":
		var g Geometry
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("failed to parse geometry: %w", err)
		}
		return &g, nil

	case "":
		return nil, fmt.Errorf("GeoJSON object has no type")

	default:
		return nil, fmt.Errorf("unsupported GeoJSON type: %s", probe.Type)
	}
}

// NewFeatureCollection wraps a single geometry in a FeatureCollection,
// the shape downstream GIS consumers expect for exported region files.
func NewFeatureCollection(g *Geometry) *FeatureCollection {
	return &FeatureCollection{
		Type: "FeatureCollection",
		Features: []*Feature{
			{Type: "Feature", Geometry: g, Properties: json.RawMessage(`{}`)},
		},
	}
}

// RingArea computes the planar (shoelace) area of a linear ring in
// coordinate units. The sign of the winding order is discarded.
func RingArea(ring [][]float64) float64 {
	if len(ring) < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		a, b := ring[i], ring[i+1]
		if len(a) < 2 || len(b) < 2 {
			continue
		}
		sum += a[0]*b[1] - b[0]*a[1]
	}
	return math.Abs(sum) / 2
}

// Area computes the planar area of a Polygon or MultiPolygon geometry:
// exterior ring areas minus interior ring (hole) areas, summed over all
// polygons. Coordinate units, not square metres; intended for comparing
// relative extents of sub-areas, not for measurement.
func Area(g *Geometry) (float64, error) {
	if g == nil {
		return 0, fmt.Errorf("geometry is nil")
	}

	polygonArea := func(rings [][][]float64) float64 {
		if len(rings) == 0 {
			return 0
		}
		area := RingArea(rings[0])
		for _, hole := range rings[1:] {
			area -= RingArea(hole)
		}
		return area
	}

	switch g.Type {
	case "Polygon":
		coords, err := g.Polygon()
		if err != nil {
			return 0, err
		}
		return polygonArea(coords), nil

	case "MultiPolygon":
		coords, err := g.MultiPolygon()
		if err != nil {
			return 0, err
		}
		var total float64
		for _, poly := range coords {
			total += polygonArea(poly)
		}
		return total, nil

	default:
		return 0, fmt.Errorf("cannot compute area of geometry type %s", g.Type)
	}
}

// NewPolygon builds a Polygon geometry from rings.
func NewPolygon(rings [][][]float64) (*Geometry, error) {
	return newGeometry("Polygon", rings)
}
