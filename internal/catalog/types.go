// Package catalog defines the product model and resolves a run
// configuration into the ordered set of S1/S2 product pairs to process.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rkm/senprep/internal/roi"
	"github.com/rkm/senprep/pkg/geojson"
)

// Mission identifies a Sentinel mission.
type Mission string

const (
	MissionS1 Mission = "S1"
	MissionS2 Mission = "S2"
)

// ProductRef identifies a single satellite product. Immutable once
// resolved; shared between runs through the product store, never owned by
// a region.
type ProductRef struct {
	Mission     Mission
	ID          string
	Title       string
	SensingTime time.Time
	Footprint   *geojson.Geometry
	// CloudCover is the scene cloud percentage for S2 products and -1
	// for missions without an optical cloud estimate.
	CloudCover float64
	// DownloadURL is the provider's direct download link when the
	// catalog advertises one.
	DownloadURL string
}

// ProductPair is an S1/S2 pair selected by the temporal/spatial matching
// rule. The ordered ID pair is the cache key for collocated output.
type ProductPair struct {
	S1 ProductRef
	S2 ProductRef
}

// Key returns the pair's cache identity.
func (p ProductPair) Key() string {
	return fmt.Sprintf("S1_%s_S2_%s", p.S1.ID, p.S2.ID)
}

// Candidate is one schedulable unit of work: a product pair over one ROI
// sub-area, bucketed by the Monday on or before the S2 sensing date.
type Candidate struct {
	Pair      ProductPair
	SubArea   roi.SubArea
	WeekStart time.Time
}

// Query describes one catalog search.
type Query struct {
	Mission     Mission
	Intersects  string // WKT region footprint
	Start       time.Time
	End         time.Time
	ProductType string
	// CloudCover bounds in percent, S2 only. [0, 100] means unbounded;
	// any narrower range constrains the query, [0, 0] included.
	CloudCover [2]int
	Limit      int
}

// Searcher is the external catalog collaborator.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]ProductRef, error)
}
