// Package roi models a named region of interest and its decomposition into
// indexed sub-areas. Sub-area indices are embedded in output directory names,
// so the decomposition must be stable: the same geometry always yields the
// same indices across runs.
package roi

import (
	"fmt"
	"sort"

	"github.com/rkm/senprep/pkg/geojson"
)

// ROI is a named region of interest.
type ROI struct {
	Name     string
	Geometry *geojson.Geometry
}

// SubArea is one indexed, disjoint piece of a region's geometry.
// Indices start at 1 (directory names are ROI1, ROI2, ...).
type SubArea struct {
	Index    int
	Geometry *geojson.Geometry
}

// New builds an ROI from raw GeoJSON, which may be a bare geometry, a
// Feature, or a FeatureCollection.
func New(name string, rawGeoJSON []byte) (*ROI, error) {
	if name == "" {
		return nil, fmt.Errorf("region name is required")
	}
	geom, err := geojson.ParseGeometry(rawGeoJSON)
	if err != nil {
		return nil, fmt.Errorf("region %q: %w", name, err)
	}
	switch geom.Type {
	case "Polygon", "MultiPolygon":
	default:
		return nil, fmt.Errorf("region %q: geometry must be Polygon or MultiPolygon, got %s", name, geom.Type)
	}
	return &ROI{Name: name, Geometry: geom}, nil
}

// Footprint returns the region's full geometry as WKT, the form catalog
// intersects queries and the processing graph consume.
func (r *ROI) Footprint() (string, error) {
	return geojson.ToWKT(r.Geometry)
}

// Split decomposes the region into indexed sub-areas. A Polygon yields one
// sub-area with index 1. A MultiPolygon yields one sub-area per member
// polygon, ordered by descending planar area with WKT as the tiebreak, so
// that indices depend only on the geometry.
func (r *ROI) Split() ([]SubArea, error) {
	if r.Geometry.Type == "Polygon" {
		return []SubArea{{Index: 1, Geometry: r.Geometry}}, nil
	}

	polys, err := r.Geometry.MultiPolygon()
	if err != nil {
		return nil, fmt.Errorf("region %q: %w", r.Name, err)
	}
	if len(polys) == 0 {
		return nil, fmt.Errorf("region %q: MultiPolygon has no polygons", r.Name)
	}

	type ranked struct {
		geom *geojson.Geometry
		area float64
		wkt  string
	}

	members := make([]ranked, 0, len(polys))
	for _, rings := range polys {
		g, err := geojson.NewPolygon(rings)
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", r.Name, err)
		}
		area, err := geojson.Area(g)
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", r.Name, err)
		}
		wkt, err := geojson.ToWKT(g)
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", r.Name, err)
		}
		members = append(members, ranked{geom: g, area: area, wkt: wkt})
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].area != members[j].area {
			return members[i].area > members[j].area
		}
		return members[i].wkt < members[j].wkt
	})

	subs := make([]SubArea, len(members))
	for i, m := range members {
		subs[i] = SubArea{Index: i + 1, Geometry: m.geom}
	}
	return subs, nil
}

// WKT returns the sub-area geometry as WKT.
func (s SubArea) WKT() (string, error) {
	return geojson.ToWKT(s.Geometry)
}
