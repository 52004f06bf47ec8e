package geojson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToWKT_Polygon(t *testing.T) {
	g, err := NewPolygon([][][]float64{
		{{-3.2, 54.0}, {-1.5, 54.0}, {-1.5, 55.0}, {-3.2, 55.0}, {-3.2, 54.0}},
	})
	require.NoError(t, err)

	wkt, err := ToWKT(g)
	require.NoError(t, err)
	assert.Equal(t, "POLYGON((-3.2 54,-1.5 54,-1.5 55,-3.2 55,-3.2 54))", wkt)
}

func TestToWKT_PolygonWithHole(t *testing.T) {
	g, err := NewPolygon([][][]float64{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}},
	})
	require.NoError(t, err)

	wkt, err := ToWKT(g)
	require.NoError(t, err)
	assert.Equal(t, "POLYGON((0 0,10 0,10 10,0 10,0 0),(2 2,4 2,4 4,2 4,2 2))", wkt)
}

func TestToWKT_MultiPolygon(t *testing.T) {
	g, err := newGeometry("MultiPolygon", [][][][]float64{
		{{{-3, 54}, {-2, 54}, {-2, 55}, {-3, 55}, {-3, 54}}},
		{{{-1, 54}, {0, 54}, {0, 55}, {-1, 55}, {-1, 54}}},
	})
	require.NoError(t, err)

	wkt, err := ToWKT(g)
	require.NoError(t, err)
	assert.Equal(t, "MULTIPOLYGON(((-3 54,-2 54,-2 55,-3 55,-3 54)),((-1 54,0 54,0 55,-1 55,-1 54)))", wkt)
}

func TestToWKT_Point(t *testing.T) {
	g, err := newGeometry("Point", []float64{-2.75, 54.4})
	require.NoError(t, err)

	wkt, err := ToWKT(g)
	require.NoError(t, err)
	assert.Equal(t, "POINT(-2.75 54.4)", wkt)
}

func TestToWKT_Unsupported(t *testing.T) {
	_, err := ToWKT(nil)
	assert.Error(t, err)

	_, err = ToWKT(&Geometry{Type: "LineString"})
	assert.Error(t, err)
}

func TestFromWKT_RoundTrip(t *testing.T) {
	cases := []string{
		"POINT(-2.75 54.4)",
		"POLYGON((-3.2 54,-1.5 54,-1.5 55,-3.2 55,-3.2 54))",
		"POLYGON((0 0,10 0,10 10,0 10,0 0),(2 2,4 2,4 4,2 4,2 2))",
		"MULTIPOLYGON(((-3 54,-2 54,-2 55,-3 55,-3 54)),((-1 54,0 54,0 55,-1 55,-1 54)))",
	}

	for _, wkt := range cases {
		g, err := FromWKT(wkt)
		require.NoError(t, err, wkt)

		out, err := ToWKT(g)
		require.NoError(t, err, wkt)
		assert.Equal(t, wkt, out)
	}
}

func TestFromWKT_CaseAndWhitespace(t *testing.T) {
	g, err := FromWKT("  polygon(( -3.2 54 , -1.5 54 , -1.5 55 , -3.2 54 ))  ")
	require.NoError(t, err)
	assert.Equal(t, "Polygon", g.Type)

	rings, err := g.Polygon()
	require.NoError(t, err)
	require.Len(t, rings, 1)
	assert.Len(t, rings[0], 4)
}

func TestFromWKT_Invalid(t *testing.T) {
	for _, wkt := range []string{
		"",
		"LINESTRING(0 0,1 1)",
		"POLYGON",
		"POLYGON((0 0,1 1)",
		"POINT(fish 54)",
		"POLYGON((0,1))",
	} {
		_, err := FromWKT(wkt)
		assert.Error(t, err, "expected error for %q", wkt)
	}
}
