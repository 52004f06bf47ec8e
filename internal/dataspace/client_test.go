package dataspace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/senprep/internal/catalog"
)

const testFootprint = "POLYGON((-3 54,-2 54,-2 55,-3 55,-3 54))"

func stacItem(id, datetime string, cloud float64) map[string]any {
	return map[string]any{
		"type":       "Feature",
		"id":         id,
		"collection": "SENTINEL-2",
		"geometry": map[string]any{
			"type":        "Polygon",
			"coordinates": [][][]float64{{{-3, 54}, {-2, 54}, {-2, 55}, {-3, 55}, {-3, 54}}},
		},
		"properties": map[string]any{
			"datetime":       datetime,
			"eo:cloud_cover": cloud,
			"title":          id + ".SAFE",
		},
		"assets": map[string]any{
			"PRODUCT": map[string]any{
				"href":  "https://download.example/odata/v1/Products(" + id + ")/$value",
				"roles": []string{"data"},
			},
		},
	}
}

func TestClient_Search(t *testing.T) {
	var gotQuery map[string][]string
	router := chi.NewRouter()
	router.Get("/search", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/geo+json")
		json.NewEncoder(w).Encode(map[string]any{
			"type": "FeatureCollection",
			"features": []any{
				stacItem("S2B_MSIL2A_20200603", "2020-06-03T11:02:00Z", 12.5),
			},
		})
	})
	server := httptest.NewServer(router)
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	refs, err := client.Search(context.Background(), catalog.Query{
		Mission:     catalog.MissionS2,
		Intersects:  testFootprint,
		Start:       time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2020, 6, 8, 0, 0, 0, 0, time.UTC),
		ProductType: "S2MSI2A",
		CloudCover:  [2]int{0, 20},
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)

	ref := refs[0]
	assert.Equal(t, catalog.MissionS2, ref.Mission)
	assert.Equal(t, "S2B_MSIL2A_20200603", ref.ID)
	assert.Equal(t, "S2B_MSIL2A_20200603", ref.Title) // .SAFE suffix stripped
	assert.Equal(t, 12.5, ref.CloudCover)
	assert.Equal(t, time.Date(2020, 6, 3, 11, 2, 0, 0, time.UTC), ref.SensingTime)
	require.NotNil(t, ref.Footprint)
	assert.Equal(t, "Polygon", ref.Footprint.Type)
	assert.Contains(t, ref.DownloadURL, "$value")

	assert.Equal(t, "SENTINEL-2", gotQuery["collections"][0])
	assert.Equal(t, "2020-06-01T00:00:00Z/2020-06-08T00:00:00Z", gotQuery["datetime"][0])
	assert.Contains(t, gotQuery["intersects"][0], `"Polygon"`)
	assert.Contains(t, gotQuery["query"][0], `"eo:cloud_cover"`)
	assert.Contains(t, gotQuery["query"][0], `"productType"`)
}

func TestClient_SearchCloudCoverBounds(t *testing.T) {
	client := NewClient("https://catalog.example", time.Second)

	cases := []struct {
		name    string
		mission catalog.Mission
		bounds  [2]int
		want    string
	}{
		{"cloud-free only", catalog.MissionS2, [2]int{0, 0}, `"eo:cloud_cover":{"gte":0,"lte":0}`},
		{"upper bound", catalog.MissionS2, [2]int{0, 20}, `"eo:cloud_cover":{"gte":0,"lte":20}`},
		{"lower bound", catalog.MissionS2, [2]int{30, 100}, `"eo:cloud_cover":{"gte":30,"lte":100}`},
		{"unbounded", catalog.MissionS2, [2]int{0, 100}, ""},
		{"not optical", catalog.MissionS1, [2]int{0, 0}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			searchURL, err := client.buildSearchURL(catalog.Query{
				Mission:    tc.mission,
				CloudCover: tc.bounds,
			})
			require.NoError(t, err)
			parsed, err := url.Parse(searchURL)
			require.NoError(t, err)
			query := parsed.Query().Get("query")
			if tc.want == "" {
				assert.NotContains(t, query, "eo:cloud_cover")
			} else {
				assert.Contains(t, query, tc.want)
			}
		})
	}
}

func TestClient_SearchFollowsPagination(t *testing.T) {
	var server *httptest.Server
	router := chi.NewRouter()
	router.Get("/search", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		body := map[string]any{
			"type": "FeatureCollection",
		}
		if page == "" {
			body["features"] = []any{stacItem("S2A_ONE", "2020-06-01T11:00:00Z", 5)}
			body["links"] = []any{map[string]any{
				"rel":  "next",
				"href": server.URL + "/search?page=2",
			}}
		} else {
			body["features"] = []any{stacItem("S2A_TWO", "2020-06-02T11:00:00Z", 7)}
		}
		json.NewEncoder(w).Encode(body)
	})
	server = httptest.NewServer(router)
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	refs, err := client.Search(context.Background(), catalog.Query{Mission: catalog.MissionS2})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "S2A_ONE", refs[0].ID)
	assert.Equal(t, "S2A_TWO", refs[1].ID)
}

func TestClient_SearchSkipsMalformedItems(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/search", func(w http.ResponseWriter, r *http.Request) {
		good := stacItem("S1A_GOOD", "2020-06-03T06:00:00Z", 0)
		delete(good["properties"].(map[string]any), "eo:cloud_cover")
		broken := stacItem("S1A_NO_TIME", "", 0)
		delete(broken["properties"].(map[string]any), "datetime")
		json.NewEncoder(w).Encode(map[string]any{
			"type":     "FeatureCollection",
			"features": []any{broken, good},
		})
	})
	server := httptest.NewServer(router)
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	refs, err := client.Search(context.Background(), catalog.Query{Mission: catalog.MissionS1})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "S1A_GOOD", refs[0].ID)
	// No optical cloud estimate for SAR products.
	assert.Equal(t, float64(-1), refs[0].CloudCover)
}

func TestClient_SearchServerError(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/search", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	server := httptest.NewServer(router)
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.Search(context.Background(), catalog.Query{Mission: catalog.MissionS1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestClient_SearchRejectsUnknownMission(t *testing.T) {
	client := NewClient("http://unused.example", time.Second)
	_, err := client.Search(context.Background(), catalog.Query{Mission: catalog.Mission("S9")})
	require.Error(t, err)
}

func TestClient_SearchPageCap(t *testing.T) {
	var server *httptest.Server
	router := chi.NewRouter()
	router.Get("/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"type":     "FeatureCollection",
			"features": []any{},
			"links": []any{map[string]any{
				"rel":  "next",
				"href": fmt.Sprintf("%s/search?page=again", server.URL),
			}},
		})
	})
	server = httptest.NewServer(router)
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.Search(context.Background(), catalog.Query{Mission: catalog.MissionS2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pages")
}
