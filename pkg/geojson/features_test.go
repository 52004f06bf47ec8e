package geojson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGeometry_BareGeometry(t *testing.T) {
	g, err := ParseGeometry([]byte(graniteFootprint))
	require.NoError(t, err)
	assert.Equal(t, "Polygon", g.Type)
}

func TestParseGeometry_Feature(t *testing.T) {
	data := `{"type": "Feature", "properties": {"name": "Cumbria"}, "geometry": ` + graniteFootprint + `}`
	g, err := ParseGeometry([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "Polygon", g.Type)
}

func TestParseGeometry_FeatureCollection(t *testing.T) {
	data := `{"type": "FeatureCollection", "features": [
		{"type": "Feature", "properties": {}, "geometry": ` + graniteFootprint + `}
	]}`
	g, err := ParseGeometry([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "Polygon", g.Type)
}

func TestParseGeometry_Invalid(t *testing.T) {
	for name, data := range map[string]string{
		"not json":         `{"type": `,
		"no type":          `{"coordinates": []}`,
		"unsupported type": `{"type": "GeometryCollection"}`,
		"empty collection": `{"type": "FeatureCollection", "features": []}`,
		"feature without geometry": `{"type": "FeatureCollection", "features": [
			{"type": "Feature", "properties": {}}]}`,
	} {
		_, err := ParseGeometry([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestNewFeatureCollection(t *testing.T) {
	g, err := NewPolygonFromBBox([]float64{-3, 54, -2, 55})
	require.NoError(t, err)

	fc := NewFeatureCollection(g)
	raw, err := json.Marshal(fc)
	require.NoError(t, err)

	// The export must parse back to the same geometry.
	back, err := ParseGeometry(raw)
	require.NoError(t, err)
	assert.Equal(t, g.Type, back.Type)
	assert.JSONEq(t, string(g.Coordinates), string(back.Coordinates))
}

func TestRingArea(t *testing.T) {
	unit := [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	assert.Equal(t, 1.0, RingArea(unit))

	// Winding order does not affect the magnitude.
	reversed := [][]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}
	assert.Equal(t, 1.0, RingArea(reversed))

	assert.Equal(t, 0.0, RingArea([][]float64{{0, 0}, {1, 1}}))
}

func TestArea(t *testing.T) {
	withHole, err := NewPolygon([][][]float64{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}},
	})
	require.NoError(t, err)

	area, err := Area(withHole)
	require.NoError(t, err)
	assert.Equal(t, 96.0, area) // 100 minus the 4-unit hole

	multi, err := newGeometry("MultiPolygon", [][][][]float64{
		{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
		{{{5, 5}, {7, 5}, {7, 7}, {5, 7}, {5, 5}}},
	})
	require.NoError(t, err)

	area, err = Area(multi)
	require.NoError(t, err)
	assert.Equal(t, 5.0, area)

	_, err = Area(nil)
	assert.Error(t, err)

	point, err := newGeometry("Point", []float64{0, 0})
	require.NoError(t, err)
	_, err = Area(point)
	assert.Error(t, err)
}
