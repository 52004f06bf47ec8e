package tiling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/rkm/senprep/internal/catalog"
	"github.com/rkm/senprep/internal/config"
	"github.com/rkm/senprep/internal/store"
	"github.com/rkm/senprep/pkg/geojson"
)

// Result reports one tiling pass over both missions of a candidate.
type Result struct {
	// Patches counts patch entries now present, written or reused.
	Patches int
	// Written counts entries actually produced by this pass.
	Written int
}

// Engine clips collocated rasters to their ROI sub-area and slices the
// clipped rasters into patches, publishing every artifact through the
// store so reruns skip finished work.
type Engine struct {
	store  *store.Store
	opener Opener
	logger *slog.Logger
}

// NewEngine creates a tiling engine.
func NewEngine(st *store.Store, opener Opener) *Engine {
	return &Engine{
		store:  st,
		opener: opener,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the engine.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// Tile produces the clipped raster and all patches for both missions of
// one candidate. The collocated rasters must already be in the store.
func (e *Engine) Tile(ctx context.Context, cand catalog.Candidate, cfg *config.RunConfig, rebuild bool) (Result, error) {
	cutline, err := e.exportSubArea(ctx, cand, cfg, rebuild)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, mission := range []catalog.Mission{catalog.MissionS1, catalog.MissionS2} {
		missionRes, err := e.tileMission(ctx, cand, cfg, mission, cutline, rebuild)
		if err != nil {
			return Result{}, err
		}
		res.Patches += missionRes.Patches
		res.Written += missionRes.Written
	}
	return res, nil
}

// exportSubArea writes the sub-area geometry next to the clipped outputs.
// The raster tools consume it as the clip cutline, and downstream tooling
// reads it to georeference the patches.
func (e *Engine) exportSubArea(ctx context.Context, cand catalog.Candidate, cfg *config.RunConfig, rebuild bool) (string, error) {
	key := store.SubAreaGeoJSON(cfg.Name, cand.WeekStart, cand.SubArea.Index)
	path, _, err := e.store.Publish(ctx, key, rebuild, func(tmp string) error {
		fc := geojson.NewFeatureCollection(cand.SubArea.Geometry)
		raw, err := json.Marshal(fc)
		if err != nil {
			return fmt.Errorf("failed to encode sub-area geometry: %w", err)
		}
		return os.WriteFile(tmp, raw, 0o644)
	})
	if err != nil {
		return "", &Error{Spec: PatchSpec{ROIIndex: cand.SubArea.Index}, Err: err}
	}
	return path, nil
}

func (e *Engine) tileMission(ctx context.Context, cand catalog.Candidate, cfg *config.RunConfig, mission catalog.Mission, cutline string, rebuild bool) (Result, error) {
	pair := cand.Pair
	ownID, otherID := pair.S1.ID, pair.S2.ID
	if mission == catalog.MissionS2 {
		ownID, otherID = pair.S2.ID, pair.S1.ID
	}
	roiIndex := cand.SubArea.Index

	collocated := e.store.PathOf(store.Collocated(cfg.Name, cand.WeekStart, roiIndex, string(mission), pair.S1.ID, pair.S2.ID))
	if _, err := os.Stat(collocated); err != nil {
		return Result{}, &Error{Spec: PatchSpec{ROIIndex: roiIndex}, Err: fmt.Errorf("collocated raster missing: %w", err)}
	}

	clippedKey := store.Clipped(cfg.Name, cand.WeekStart, roiIndex, string(mission), ownID)
	clipped, clippedWritten, err := e.store.Publish(ctx, clippedKey, rebuild, func(tmp string) error {
		src, err := e.opener.Open(ctx, collocated)
		if err != nil {
			return err
		}
		return src.ClipCutline(ctx, cutline, tmp)
	})
	if err != nil {
		return Result{}, &Error{Spec: PatchSpec{ROIIndex: roiIndex}, Err: err}
	}

	raster, err := e.opener.Open(ctx, clipped)
	if err != nil {
		return Result{}, &Error{Spec: PatchSpec{ROIIndex: roiIndex}, Err: err}
	}
	w, h := raster.Size()

	specs, err := Enumerate(w, h, cfg.Size, cfg.Overlap)
	if err != nil {
		return Result{}, &Error{Spec: PatchSpec{ROIIndex: roiIndex}, Err: err}
	}

	res := Result{}
	if clippedWritten {
		res.Written++
	}
	for _, spec := range specs {
		spec.ROIIndex = roiIndex
		key := store.Patch(cfg.Name, cand.WeekStart, roiIndex, string(mission), ownID, otherID,
			spec.Row, spec.Col, spec.Width, spec.Height)

		// A fresh clipped raster invalidates every patch under it.
		_, written, err := e.store.Publish(ctx, key, rebuild || clippedWritten, func(tmp string) error {
			return raster.Window(ctx, spec, tmp)
		})
		if err != nil {
			return Result{}, &Error{Spec: spec, Err: err}
		}
		res.Patches++
		if written {
			res.Written++
		}
	}

	e.logger.DebugContext(ctx, "tiled mission raster",
		slog.String("mission", string(mission)),
		slog.Int("roi", roiIndex),
		slog.Int("patches", res.Patches),
	)
	return res, nil
}
