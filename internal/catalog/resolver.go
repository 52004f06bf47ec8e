package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/rkm/senprep/internal/config"
	"github.com/rkm/senprep/internal/dates"
	"github.com/rkm/senprep/internal/roi"
)

// Resolver turns a run configuration into candidate product pairs.
// Re-running a resolve yields the same candidates in the same order unless
// the remote catalog changed.
type Resolver struct {
	searcher   Searcher
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewResolver creates a Resolver. maxRetries is the total attempt budget
// per catalog query (minimum 1); retryDelay separates attempts.
func NewResolver(searcher Searcher, maxRetries int, retryDelay time.Duration) *Resolver {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Resolver{
		searcher:   searcher,
		logger:     slog.Default(),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// WithLogger sets a custom logger for the resolver.
func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	r.logger = logger
	return r
}

// Resolve queries both missions over the configured region and date range
// and pairs products week by week. Returns ErrNoMatchingProducts when the
// queries succeed but nothing pairs up, and *UnavailableError when the
// catalog cannot be reached after retries.
func (r *Resolver) Resolve(ctx context.Context, cfg *config.RunConfig, region *roi.ROI) ([]Candidate, error) {
	footprint, err := region.Footprint()
	if err != nil {
		return nil, fmt.Errorf("failed to build region footprint: %w", err)
	}

	subAreas, err := region.Split()
	if err != nil {
		return nil, fmt.Errorf("failed to split region: %w", err)
	}

	// Expand the query range to whole Monday..Sunday weeks so that week
	// buckets at the edges of the range see all of their products.
	rangeStart, rangeEnd := cfg.DateRange()
	start := dates.NearestMonday(rangeStart)
	end := dates.NearestSunday(rangeEnd).AddDate(0, 0, 1) // exclusive

	delta := cfg.TimeDelta()

	s2refs, err := r.search(ctx, Query{
		Mission:     MissionS2,
		Intersects:  footprint,
		Start:       start,
		End:         end,
		ProductType: cfg.S2ProductType,
		CloudCover:  cfg.CloudCover,
	})
	if err != nil {
		return nil, err
	}

	s1refs, err := r.search(ctx, Query{
		Mission:     MissionS1,
		Intersects:  footprint,
		Start:       start.Add(-delta),
		End:         end.Add(delta),
		ProductType: cfg.S1ProductType,
	})
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "catalog queries completed",
		slog.Int("s1_products", len(s1refs)),
		slog.Int("s2_products", len(s2refs)),
	)

	candidates := r.pair(s1refs, s2refs, subAreas, start, end, delta)
	if len(candidates) == 0 {
		return nil, ErrNoMatchingProducts
	}

	r.logger.InfoContext(ctx, "resolved product pairs",
		slog.String("region", region.Name),
		slog.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// pair selects, per week and per ROI sub-area, the S2 product with the
// lowest cloud cover and the S1 product nearest in time within the
// tolerance window. Output order is (week, sub-area index), so reruns are
// deterministic for an unchanged catalog.
func (r *Resolver) pair(s1refs, s2refs []ProductRef, subAreas []roi.SubArea, start, end time.Time, delta time.Duration) []Candidate {
	var candidates []Candidate

	for week := start; week.Before(end); week = week.AddDate(0, 0, 7) {
		weekEnd := week.AddDate(0, 0, 7)

		s2week := filterByTime(s2refs, week, weekEnd)
		sortS2(s2week)

		for _, sub := range subAreas {
			bbox, err := sub.Geometry.BBox()
			if err != nil {
				continue
			}

			s2best, ok := firstIntersecting(s2week, bbox)
			if !ok {
				continue
			}

			s1best, ok := nearestS1(s1refs, s2best.SensingTime, delta, bbox)
			if !ok {
				r.logger.Debug("no S1 match within tolerance",
					slog.String("s2_id", s2best.ID),
					slog.String("week", dates.Format(week)),
					slog.Int("roi", sub.Index),
				)
				continue
			}

			candidates = append(candidates, Candidate{
				Pair:      ProductPair{S1: s1best, S2: s2best},
				SubArea:   sub,
				WeekStart: dates.NearestMonday(s2best.SensingTime),
			})
		}
	}

	return candidates
}

func (r *Resolver) search(ctx context.Context, q Query) ([]ProductRef, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		refs, err := r.searcher.Search(ctx, q)
		if err == nil {
			return refs, nil
		}
		lastErr = err
		r.logger.WarnContext(ctx, "catalog query failed",
			slog.String("mission", string(q.Mission)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < r.maxRetries {
			select {
			case <-ctx.Done():
				return nil, &UnavailableError{Err: ctx.Err()}
			case <-time.After(r.retryDelay):
			}
		}
	}
	return nil, &UnavailableError{Err: lastErr}
}

func filterByTime(refs []ProductRef, start, end time.Time) []ProductRef {
	var out []ProductRef
	for _, ref := range refs {
		if !ref.SensingTime.Before(start) && ref.SensingTime.Before(end) {
			out = append(out, ref)
		}
	}
	return out
}

// sortS2 orders S2 products by ascending cloud cover, then sensing time,
// then ID so that equal products sort identically across runs.
func sortS2(refs []ProductRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].CloudCover != refs[j].CloudCover {
			return refs[i].CloudCover < refs[j].CloudCover
		}
		if !refs[i].SensingTime.Equal(refs[j].SensingTime) {
			return refs[i].SensingTime.Before(refs[j].SensingTime)
		}
		return refs[i].ID < refs[j].ID
	})
}

func firstIntersecting(refs []ProductRef, bbox []float64) (ProductRef, bool) {
	for _, ref := range refs {
		if footprintIntersects(ref, bbox) {
			return ref, true
		}
	}
	return ProductRef{}, false
}

// nearestS1 returns the S1 product covering the sub-area whose sensing
// time is nearest to s2time within the tolerance window; ties broken by ID.
func nearestS1(refs []ProductRef, s2time time.Time, delta time.Duration, bbox []float64) (ProductRef, bool) {
	best := ProductRef{}
	bestGap := delta + 1
	found := false
	for _, ref := range refs {
		gap := s2time.Sub(ref.SensingTime)
		if gap < 0 {
			gap = -gap
		}
		if gap > delta {
			continue
		}
		if !footprintIntersects(ref, bbox) {
			continue
		}
		if !found || gap < bestGap || (gap == bestGap && ref.ID < best.ID) {
			best, bestGap, found = ref, gap, true
		}
	}
	return best, found
}

// footprintIntersects is a bounding-box overlap test. The catalog query
// already filtered by true geometric intersection with the full region
// footprint; this narrows products to the individual sub-area.
func footprintIntersects(ref ProductRef, bbox []float64) bool {
	if ref.Footprint == nil {
		return false
	}
	fb, err := ref.Footprint.BBox()
	if err != nil {
		return false
	}
	return !(fb[2] < bbox[0] || bbox[2] < fb[0] || fb[3] < bbox[1] || bbox[3] < fb[1])
}

// Coverage reports what fraction of the sub-area bbox the product
// footprint bbox covers, between 0 and 1. Used by list output.
func Coverage(ref ProductRef, sub roi.SubArea) float64 {
	if ref.Footprint == nil {
		return 0
	}
	fb, err := ref.Footprint.BBox()
	if err != nil {
		return 0
	}
	sb, err := sub.Geometry.BBox()
	if err != nil {
		return 0
	}
	w := math.Max(0, math.Min(fb[2], sb[2])-math.Max(fb[0], sb[0]))
	h := math.Max(0, math.Min(fb[3], sb[3])-math.Max(fb[1], sb[1]))
	area := (sb[2] - sb[0]) * (sb[3] - sb[1])
	if area <= 0 {
		return 0
	}
	return math.Min(1, w*h/area)
}
