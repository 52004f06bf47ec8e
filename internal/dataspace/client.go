package dataspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rkm/senprep/internal/catalog"
	"github.com/rkm/senprep/pkg/geojson"
)

// maxPages bounds pagination so a misbehaving catalog cannot spin a
// search forever.
const maxPages = 50

// Client handles communication with the Copernicus Data Space STAC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Data Space STAC client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// Search queries the STAC catalog and returns every matching product,
// following pagination links until the result set is exhausted.
func (c *Client) Search(ctx context.Context, q catalog.Query) ([]catalog.ProductRef, error) {
	searchURL, err := c.buildSearchURL(q)
	if err != nil {
		return nil, fmt.Errorf("failed to build search URL: %w", err)
	}

	var products []catalog.ProductRef
	for page := 0; searchURL != ""; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("search exceeded %d pages", maxPages)
		}

		ic, err := c.fetchPage(ctx, searchURL)
		if err != nil {
			return nil, err
		}

		for _, item := range ic.Features {
			ref, err := itemToProduct(item, q.Mission)
			if err != nil {
				c.logger.WarnContext(ctx, "skipping malformed catalog item",
					slog.String("item_id", item.Id),
					slog.String("error", err.Error()),
				)
				continue
			}
			products = append(products, ref)
		}

		searchURL = ic.NextLink()
	}

	c.logger.DebugContext(ctx, "catalog search completed",
		slog.String("mission", string(q.Mission)),
		slog.Int("product_count", len(products)),
	)
	return products, nil
}

// fetchPage executes one search request and decodes the item collection.
func (c *Client) fetchPage(ctx context.Context, searchURL string) (*ItemCollection, error) {
	c.logger.DebugContext(ctx, "executing STAC search",
		slog.String("url", searchURL),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("User-Agent", "senprep/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "STAC API request failed",
			slog.String("error", err.Error()),
			slog.String("url", searchURL),
		)
		return nil, fmt.Errorf("STAC API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "STAC API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("STAC API returned status %d: %s", resp.StatusCode, string(body))
	}

	var ic ItemCollection
	if err := json.NewDecoder(resp.Body).Decode(&ic); err != nil {
		return nil, fmt.Errorf("failed to decode STAC response: %w", err)
	}
	return &ic, nil
}

// buildSearchURL renders a catalog query as a STAC GET search URL.
func (c *Client) buildSearchURL(q catalog.Query) (string, error) {
	values := url.Values{}

	switch q.Mission {
	case catalog.MissionS1:
		values.Set("collections", CollectionSentinel1)
	case catalog.MissionS2:
		values.Set("collections", CollectionSentinel2)
	default:
		return "", fmt.Errorf("unknown mission %q", q.Mission)
	}

	if q.Intersects != "" {
		geom, err := geojson.FromWKT(q.Intersects)
		if err != nil {
			return "", fmt.Errorf("invalid search geometry: %w", err)
		}
		raw, err := json.Marshal(geom)
		if err != nil {
			return "", fmt.Errorf("failed to encode search geometry: %w", err)
		}
		values.Set("intersects", string(raw))
	}

	if !q.Start.IsZero() || !q.End.IsZero() {
		values.Set("datetime", fmt.Sprintf("%s/%s",
			q.Start.UTC().Format(time.RFC3339),
			q.End.UTC().Format(time.RFC3339),
		))
	}

	query := map[string]map[string]any{}
	if q.ProductType != "" {
		query["productType"] = map[string]any{"eq": q.ProductType}
	}
	// [0, 100] places no constraint; anything narrower does, including
	// [0, 0] which selects cloud-free scenes only.
	if q.Mission == catalog.MissionS2 && (q.CloudCover[0] > 0 || q.CloudCover[1] < 100) {
		query["eo:cloud_cover"] = map[string]any{
			"gte": q.CloudCover[0],
			"lte": q.CloudCover[1],
		}
	}
	if len(query) > 0 {
		raw, err := json.Marshal(query)
		if err != nil {
			return "", fmt.Errorf("failed to encode query filter: %w", err)
		}
		values.Set("query", string(raw))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	values.Set("limit", fmt.Sprintf("%d", limit))

	return c.baseURL + "/search?" + values.Encode(), nil
}
