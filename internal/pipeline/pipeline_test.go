package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/senprep/internal/catalog"
	"github.com/rkm/senprep/internal/config"
	"github.com/rkm/senprep/internal/roi"
	"github.com/rkm/senprep/internal/snap"
	"github.com/rkm/senprep/internal/tiling"
	"github.com/rkm/senprep/pkg/geojson"
)

type fakeResolver struct {
	candidates []catalog.Candidate
	err        error
}

func (f *fakeResolver) Resolve(context.Context, *config.RunConfig, *roi.ROI) ([]catalog.Candidate, error) {
	return f.candidates, f.err
}

type fakeDownloader struct {
	calls      atomic.Int32
	downloaded bool
	failFor    string
}

func (f *fakeDownloader) Ensure(_ context.Context, ref catalog.ProductRef, _ bool) (string, bool, error) {
	f.calls.Add(1)
	if f.failFor != "" && ref.ID == f.failFor {
		return "", false, &downloadFailed{id: ref.ID}
	}
	return "/store/" + ref.Title + ".zip", f.downloaded, nil
}

type downloadFailed struct{ id string }

func (e *downloadFailed) Error() string { return "download failed: " + e.id }

type fakeCollocator struct {
	calls   atomic.Int32
	skipped bool
	failFor string
}

func (f *fakeCollocator) Collocate(_ context.Context, cand catalog.Candidate, _ *config.RunConfig, _ bool) (snap.Result, error) {
	f.calls.Add(1)
	if f.failFor != "" && cand.Pair.S1.ID == f.failFor {
		return snap.Result{}, errors.New("engine exploded")
	}
	return snap.Result{S1Path: "s1.tif", S2Path: "s2.tif", Skipped: f.skipped}, nil
}

type fakeTiler struct {
	calls   atomic.Int32
	written int
}

func (f *fakeTiler) Tile(context.Context, catalog.Candidate, *config.RunConfig, bool) (tiling.Result, error) {
	f.calls.Add(1)
	return tiling.Result{Patches: 4, Written: f.written}, nil
}

func schedCandidates(t *testing.T, n int) []catalog.Candidate {
	t.Helper()
	geom, err := geojson.NewPolygonFromBBox([]float64{-3, 54, -2, 55})
	require.NoError(t, err)

	cands := make([]catalog.Candidate, n)
	for i := range cands {
		cands[i] = catalog.Candidate{
			Pair: catalog.ProductPair{
				S1: catalog.ProductRef{Mission: catalog.MissionS1, ID: fmt.Sprintf("s1-%d", i), Title: fmt.Sprintf("S1A_%d", i)},
				S2: catalog.ProductRef{Mission: catalog.MissionS2, ID: fmt.Sprintf("s2-%d", i), Title: fmt.Sprintf("S2B_%d", i)},
			},
			SubArea:   roi.SubArea{Index: 1, Geometry: geom},
			WeekStart: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return cands
}

func schedRunConfig() *config.RunConfig {
	return &config.RunConfig{Name: "Cumbria", Size: [2]int{256, 256}, BandsS1: []string{"VV"}, BandsS2: []string{"B2"}}
}

func TestScheduler_RunProcessesAllUnits(t *testing.T) {
	cands := schedCandidates(t, 3)
	dl := &fakeDownloader{downloaded: true}
	col := &fakeCollocator{}
	tiler := &fakeTiler{written: 6}
	sched := NewScheduler(&fakeResolver{candidates: cands}, dl, col, tiler)

	summary, err := sched.Run(context.Background(), schedRunConfig(), nil, Options{NJobs: 2, Mode: ModeProcess})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.Candidates)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, int32(6), dl.calls.Load()) // two products per pair
	assert.Equal(t, int32(3), col.calls.Load())
	assert.Equal(t, int32(3), tiler.calls.Load())
}

func TestScheduler_RerunCountsSkips(t *testing.T) {
	cands := schedCandidates(t, 2)
	sched := NewScheduler(
		&fakeResolver{candidates: cands},
		&fakeDownloader{downloaded: false},
		&fakeCollocator{skipped: true},
		&fakeTiler{written: 0},
	)

	summary, err := sched.Run(context.Background(), schedRunConfig(), nil, Options{NJobs: 2, Mode: ModeProcess})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
}

func TestScheduler_UnitFailureDoesNotStopSiblings(t *testing.T) {
	cands := schedCandidates(t, 4)
	col := &fakeCollocator{failFor: "s1-2"}
	sched := NewScheduler(&fakeResolver{candidates: cands}, &fakeDownloader{downloaded: true}, col, &fakeTiler{written: 1})

	summary, err := sched.Run(context.Background(), schedRunConfig(), nil, Options{NJobs: 1, Mode: ModeProcess})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "S1_s1-2_S2_s2-2", summary.Failures[0].Pair)
	assert.Contains(t, summary.Failures[0].Error(), "engine exploded")
	// Every sibling still ran through collocation.
	assert.Equal(t, int32(4), col.calls.Load())
}

func TestScheduler_DownloadFailureIsUnitLocal(t *testing.T) {
	cands := schedCandidates(t, 2)
	dl := &fakeDownloader{failFor: "s1-0"}
	col := &fakeCollocator{}
	sched := NewScheduler(&fakeResolver{candidates: cands}, dl, col, &fakeTiler{written: 1})

	summary, err := sched.Run(context.Background(), schedRunConfig(), nil, Options{NJobs: 2, Mode: ModeProcess})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded)
	// The failed unit never reached collocation.
	assert.Equal(t, int32(1), col.calls.Load())
}

func TestScheduler_ModeListResolvesOnly(t *testing.T) {
	cands := schedCandidates(t, 3)
	dl := &fakeDownloader{}
	sched := NewScheduler(&fakeResolver{candidates: cands}, dl, &fakeCollocator{}, &fakeTiler{})

	summary, err := sched.Run(context.Background(), schedRunConfig(), nil, Options{Mode: ModeList})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Candidates)
	assert.Equal(t, int32(0), dl.calls.Load())

	require.Len(t, summary.Units, 3)
	assert.Equal(t, "S1_s1-0_S2_s2-0", summary.Units[0].Pair)
	assert.Equal(t, "20200601", summary.Units[0].Week)
	assert.Equal(t, 1, summary.Units[0].ROIIndex)
}

func TestScheduler_ModeDownloadStopsAfterFetch(t *testing.T) {
	cands := schedCandidates(t, 2)
	col := &fakeCollocator{}
	tiler := &fakeTiler{}
	sched := NewScheduler(&fakeResolver{candidates: cands}, &fakeDownloader{downloaded: true}, col, tiler)

	summary, err := sched.Run(context.Background(), schedRunConfig(), nil, Options{NJobs: 2, Mode: ModeDownload})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, int32(0), col.calls.Load())
	assert.Equal(t, int32(0), tiler.calls.Load())
}

func TestScheduler_CatalogUnavailableAbortsRun(t *testing.T) {
	resolver := &fakeResolver{err: &catalog.UnavailableError{Err: errors.New("connection refused")}}
	dl := &fakeDownloader{}
	sched := NewScheduler(resolver, dl, &fakeCollocator{}, &fakeTiler{})

	_, err := sched.Run(context.Background(), schedRunConfig(), nil, Options{Mode: ModeProcess})
	require.Error(t, err)
	var uerr *catalog.UnavailableError
	assert.ErrorAs(t, err, &uerr)
	assert.Equal(t, int32(0), dl.calls.Load())
}

func TestScheduler_NoMatchingProductsIsEmptyRun(t *testing.T) {
	resolver := &fakeResolver{err: catalog.ErrNoMatchingProducts}
	sched := NewScheduler(resolver, &fakeDownloader{}, &fakeCollocator{}, &fakeTiler{})

	summary, err := sched.Run(context.Background(), schedRunConfig(), nil, Options{Mode: ModeProcess})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Candidates)
	assert.Equal(t, 0, summary.Failed)
}
