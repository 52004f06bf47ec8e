// Package dataspace implements the Copernicus Data Space STAC catalog
// client, wrapping planetlabs/go-stac for core item types.
package dataspace

import (
	gostac "github.com/planetlabs/go-stac"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item  = gostac.Item
	Asset = gostac.Asset
	Link  = gostac.Link
)

// ItemCollection represents a STAC ItemCollection (GeoJSON FeatureCollection)
// as returned by the search endpoint, including pagination links.
type ItemCollection struct {
	Type           string         `json:"type"` // "FeatureCollection"
	Features       []*gostac.Item `json:"features"`
	Links          []*gostac.Link `json:"links"`
	NumberMatched  *int           `json:"numberMatched,omitempty"`
	NumberReturned int            `json:"numberReturned"`
}

// NextLink returns the href of the rel=next pagination link, or "" when
// the collection is the last page.
func (ic *ItemCollection) NextLink() string {
	for _, l := range ic.Links {
		if l != nil && l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

// Collection names in the Copernicus Data Space STAC catalog.
const (
	CollectionSentinel1 = "SENTINEL-1"
	CollectionSentinel2 = "SENTINEL-2"
)
