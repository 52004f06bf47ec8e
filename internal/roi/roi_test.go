package roi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const polygonJSON = `{
	"type": "Polygon",
	"coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]
}`

// Two disjoint squares: a 2x2 at the origin and a 1x1 offset east.
const multiPolygonJSON = `{
	"type": "MultiPolygon",
	"coordinates": [
		[[[5,0],[6,0],[6,1],[5,1],[5,0]]],
		[[[0,0],[2,0],[2,2],[0,2],[0,0]]]
	]
}`

const featureCollectionJSON = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "properties": {}, "geometry": {
			"type": "Polygon",
			"coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]
		}}
	]
}`

func TestNew_AcceptsFeatureCollection(t *testing.T) {
	r, err := New("cumbria", []byte(featureCollectionJSON))
	require.NoError(t, err)
	assert.Equal(t, "Polygon", r.Geometry.Type)
}

func TestNew_RejectsNonAreaGeometry(t *testing.T) {
	_, err := New("p", []byte(`{"type":"Point","coordinates":[1,2]}`))
	assert.Error(t, err)

	_, err = New("", []byte(polygonJSON))
	assert.Error(t, err)
}

func TestSplit_PolygonYieldsSingleSubArea(t *testing.T) {
	r, err := New("region", []byte(polygonJSON))
	require.NoError(t, err)

	subs, err := r.Split()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 1, subs[0].Index)
}

func TestSplit_MultiPolygonOrderedByArea(t *testing.T) {
	r, err := New("region", []byte(multiPolygonJSON))
	require.NoError(t, err)

	subs, err := r.Split()
	require.NoError(t, err)
	require.Len(t, subs, 2)

	// The 2x2 square is listed second in the JSON but must get index 1.
	wkt1, err := subs[0].WKT()
	require.NoError(t, err)
	assert.Contains(t, wkt1, "2 2")
	assert.Equal(t, 1, subs[0].Index)
	assert.Equal(t, 2, subs[1].Index)
}

func TestSplit_IndicesStableAcrossRuns(t *testing.T) {
	r, err := New("region", []byte(multiPolygonJSON))
	require.NoError(t, err)

	first, err := r.Split()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := r.Split()
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for j := range first {
			w1, _ := first[j].WKT()
			w2, _ := again[j].WKT()
			assert.Equal(t, w1, w2)
			assert.Equal(t, first[j].Index, again[j].Index)
		}
	}
}

func TestFootprint(t *testing.T) {
	r, err := New("region", []byte(polygonJSON))
	require.NoError(t, err)

	wkt, err := r.Footprint()
	require.NoError(t, err)
	assert.Contains(t, wkt, "POLYGON")
}
