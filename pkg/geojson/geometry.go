// Package geojson provides the GeoJSON geometry model used for product
// footprints and region definitions, plus WKT conversion for catalog
// queries and processing-graph parameters.
package geojson

import (
	"encoding/json"
	"fmt"
	"math"
)

// Geometry represents a GeoJSON geometry object. Coordinates stay raw
// until a typed accessor decodes them, so geometries of any type can be
// carried around and re-serialized without loss.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func decodeCoords[T any](g *Geometry, want string) (T, error) {
	var coords T
	if g.Type != want {
		return coords, fmt.Errorf("geometry is not a %s, got %s", want, g.Type)
	}
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return coords, fmt.Errorf("failed to decode %s coordinates: %w", want, err)
	}
	return coords, nil
}

// Point returns the coordinates as [lon, lat].
func (g *Geometry) Point() ([]float64, error) {
	coords, err := decodeCoords[[]float64](g, "Point")
	if err != nil {
		return nil, err
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("point needs at least 2 coordinate values, got %d", len(coords))
	}
	return coords, nil
}

// Polygon returns the coordinates as rings of [lon, lat] positions.
func (g *Geometry) Polygon() ([][][]float64, error) {
	return decodeCoords[[][][]float64](g, "Polygon")
}

// MultiPolygon returns the coordinates as a list of polygons.
func (g *Geometry) MultiPolygon() ([][][][]float64, error) {
	return decodeCoords[[][][][]float64](g, "MultiPolygon")
}

// eachPosition walks every [lon, lat] position of the geometry.
func eachPosition(g *Geometry, visit func(lon, lat float64)) error {
	visitRing := func(ring [][]float64) {
		for _, pos := range ring {
			if len(pos) >= 2 {
				visit(pos[0], pos[1])
			}
		}
	}

	switch g.Type {
	case "Point":
		pos, err := g.Point()
		if err != nil {
			return err
		}
		visit(pos[0], pos[1])
	case "Polygon":
		rings, err := g.Polygon()
		if err != nil {
			return err
		}
		for _, ring := range rings {
			visitRing(ring)
		}
	case "MultiPolygon":
		polys, err := g.MultiPolygon()
		if err != nil {
			return err
		}
		for _, poly := range polys {
			for _, ring := range poly {
				visitRing(ring)
			}
		}
	default:
		return fmt.Errorf("unsupported geometry type: %s", g.Type)
	}
	return nil
}

func newGeometry(typ string, coords any) (*Geometry, error) {
	raw, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s coordinates: %w", typ, err)
	}
	return &Geometry{Type: typ, Coordinates: raw}, nil
}

// BBox computes the geometry's bounding box as [west, south, east, north].
func (g *Geometry) BBox() ([]float64, error) {
	return ComputeBBox(g)
}

// ComputeBBox computes a bounding box as [west, south, east, north].
func ComputeBBox(g *Geometry) ([]float64, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}

	west, south := math.Inf(1), math.Inf(1)
	east, north := math.Inf(-1), math.Inf(-1)

	err := eachPosition(g, func(lon, lat float64) {
		west = math.Min(west, lon)
		east = math.Max(east, lon)
		south = math.Min(south, lat)
		north = math.Max(north, lat)
	})
	if err != nil {
		return nil, err
	}
	if math.IsInf(west, 0) || math.IsInf(south, 0) {
		return nil, fmt.Errorf("geometry has no valid positions")
	}

	return []float64{west, south, east, north}, nil
}

// NewPolygonFromBBox builds the rectangular polygon covering a
// [west, south, east, north] bounding box.
func NewPolygonFromBBox(bbox []float64) (*Geometry, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox needs 4 values [west, south, east, north], got %d", len(bbox))
	}

	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	return NewPolygon([][][]float64{{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}})
}
