package geojson

import (
	"fmt"
	"strconv"
	"strings"
)

// ToWKT renders a Point, Polygon or MultiPolygon geometry as WKT, the
// format catalog query parameters and the processing engine's ROI
// parameter expect.
func ToWKT(g *Geometry) (string, error) {
	if g == nil {
		return "", fmt.Errorf("geometry is nil")
	}

	switch g.Type {
	case "Point":
		pos, err := g.Point()
		if err != nil {
			return "", err
		}
		return "POINT(" + wktPosition(pos) + ")", nil

	case "Polygon":
		rings, err := g.Polygon()
		if err != nil {
			return "", err
		}
		body, err := wktRings(rings)
		if err != nil {
			return "", err
		}
		return "POLYGON" + body, nil

	case "MultiPolygon":
		polys, err := g.MultiPolygon()
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(polys))
		for _, rings := range polys {
			body, err := wktRings(rings)
			if err != nil {
				return "", err
			}
			parts = append(parts, body)
		}
		return "MULTIPOLYGON(" + strings.Join(parts, ",") + ")", nil

	default:
		return "", fmt.Errorf("cannot render geometry type %s as WKT", g.Type)
	}
}

func wktPosition(pos []float64) string {
	return strconv.FormatFloat(pos[0], 'f', -1, 64) + " " + strconv.FormatFloat(pos[1], 'f', -1, 64)
}

func wktRings(rings [][][]float64) (string, error) {
	parts := make([]string, 0, len(rings))
	for _, ring := range rings {
		positions := make([]string, 0, len(ring))
		for _, pos := range ring {
			if len(pos) < 2 {
				return "", fmt.Errorf("ring position needs 2 coordinate values, got %d", len(pos))
			}
			positions = append(positions, wktPosition(pos))
		}
		parts = append(parts, "("+strings.Join(positions, ",")+")")
	}
	return "(" + strings.Join(parts, ",") + ")", nil
}

// FromWKT parses a POINT, POLYGON or MULTIPOLYGON WKT string.
func FromWKT(wkt string) (*Geometry, error) {
	wkt = strings.TrimSpace(wkt)
	upper := strings.ToUpper(wkt)

	switch {
	case strings.HasPrefix(upper, "POINT"):
		body, err := wktBody(wkt)
		if err != nil {
			return nil, err
		}
		pos, err := parseWKTPosition(wktInner(body))
		if err != nil {
			return nil, err
		}
		return newGeometry("Point", pos)

	case strings.HasPrefix(upper, "MULTIPOLYGON"):
		body, err := wktBody(wkt)
		if err != nil {
			return nil, err
		}
		groups, err := splitWKTGroups(wktInner(body))
		if err != nil {
			return nil, err
		}
		polys := make([][][][]float64, 0, len(groups))
		for _, group := range groups {
			rings, err := parseWKTRings(group)
			if err != nil {
				return nil, err
			}
			polys = append(polys, rings)
		}
		return newGeometry("MultiPolygon", polys)

	case strings.HasPrefix(upper, "POLYGON"):
		body, err := wktBody(wkt)
		if err != nil {
			return nil, err
		}
		rings, err := parseWKTRings(wktInner(body))
		if err != nil {
			return nil, err
		}
		return newGeometry("Polygon", rings)

	default:
		return nil, fmt.Errorf("unsupported WKT geometry: %q", firstWord(wkt))
	}
}

// wktBody returns everything between the outermost parentheses,
// parentheses included.
func wktBody(wkt string) (string, error) {
	start := strings.Index(wkt, "(")
	end := strings.LastIndex(wkt, ")")
	if start == -1 || end == -1 || start >= end {
		return "", fmt.Errorf("malformed WKT: %q", wkt)
	}
	return wkt[start : end+1], nil
}

// wktInner strips exactly one layer of parentheses.
func wktInner(body string) string {
	return strings.TrimSpace(body[1 : len(body)-1])
}

// splitWKTGroups splits a comma-separated list of parenthesized groups at
// depth zero: "(a),(b)" yields the contents "a" and "b".
func splitWKTGroups(s string) ([]string, error) {
	var groups []string
	depth, start := 0, -1

	for i, ch := range s {
		switch ch {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unmatched closing parenthesis in WKT")
			}
			if depth == 0 {
				groups = append(groups, s[start:i])
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unmatched parentheses in WKT")
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("empty WKT group list")
	}
	return groups, nil
}

func parseWKTRings(s string) ([][][]float64, error) {
	groups, err := splitWKTGroups(s)
	if err != nil {
		// A single un-nested ring: "x y,x y,..."
		if !strings.ContainsAny(s, "()") {
			ring, rerr := parseWKTRing(s)
			if rerr != nil {
				return nil, rerr
			}
			return [][][]float64{ring}, nil
		}
		return nil, err
	}

	rings := make([][][]float64, 0, len(groups))
	for _, group := range groups {
		ring, err := parseWKTRing(group)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

func parseWKTRing(s string) ([][]float64, error) {
	pairs := strings.Split(s, ",")
	ring := make([][]float64, 0, len(pairs))
	for _, pair := range pairs {
		pos, err := parseWKTPosition(pair)
		if err != nil {
			return nil, err
		}
		ring = append(ring, pos)
	}
	return ring, nil
}

func parseWKTPosition(s string) ([]float64, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) < 2 {
		return nil, fmt.Errorf("invalid WKT position: %q", s)
	}
	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", fields[0], err)
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", fields[1], err)
	}
	return []float64{lon, lat}, nil
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, "( \t"); i > 0 {
		return s[:i]
	}
	return s
}
