package dataspace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gostac "github.com/planetlabs/go-stac"

	"github.com/rkm/senprep/internal/catalog"
	"github.com/rkm/senprep/pkg/geojson"
)

// itemToProduct converts one STAC item into the internal product model.
func itemToProduct(item *gostac.Item, mission catalog.Mission) (catalog.ProductRef, error) {
	if item == nil || item.Id == "" {
		return catalog.ProductRef{}, fmt.Errorf("item has no id")
	}

	sensing, err := itemDatetime(item)
	if err != nil {
		return catalog.ProductRef{}, err
	}

	footprint, err := itemFootprint(item)
	if err != nil {
		return catalog.ProductRef{}, err
	}

	ref := catalog.ProductRef{
		Mission:     mission,
		ID:          item.Id,
		Title:       itemTitle(item),
		SensingTime: sensing,
		Footprint:   footprint,
		CloudCover:  -1,
		DownloadURL: productAssetHref(item),
	}

	if cc, ok := item.Properties["eo:cloud_cover"].(float64); ok {
		ref.CloudCover = cc
	}

	return ref, nil
}

// itemDatetime reads the item's acquisition time, preferring datetime and
// falling back to start_datetime for range-valued items.
func itemDatetime(item *gostac.Item) (time.Time, error) {
	for _, key := range []string{"datetime", "start_datetime"} {
		raw, ok := item.Properties[key].(string)
		if !ok || raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("item %s has no datetime", item.Id)
}

// itemFootprint re-encodes the item's geometry into the internal GeoJSON
// model. go-stac leaves geometry untyped, so round-trip through JSON.
func itemFootprint(item *gostac.Item) (*geojson.Geometry, error) {
	if item.Geometry == nil {
		return nil, fmt.Errorf("item %s has no geometry", item.Id)
	}
	raw, err := json.Marshal(item.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry for %s: %w", item.Id, err)
	}
	var geom geojson.Geometry
	if err := json.Unmarshal(raw, &geom); err != nil {
		return nil, fmt.Errorf("invalid geometry for %s: %w", item.Id, err)
	}
	return &geom, nil
}

// itemTitle returns the product title used for archive filenames. The
// catalog's item ids carry a .SAFE suffix that never appears in archive
// names.
func itemTitle(item *gostac.Item) string {
	if title, ok := item.Properties["title"].(string); ok && title != "" {
		return strings.TrimSuffix(title, ".SAFE")
	}
	return strings.TrimSuffix(item.Id, ".SAFE")
}

// productAssetHref returns the direct download link when the catalog
// advertises one.
func productAssetHref(item *gostac.Item) string {
	if asset, ok := item.Assets["PRODUCT"]; ok && asset != nil {
		return asset.Href
	}
	for _, asset := range item.Assets {
		if asset == nil {
			continue
		}
		for _, role := range asset.Roles {
			if role == "data" {
				return asset.Href
			}
		}
	}
	return ""
}
