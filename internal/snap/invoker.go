package snap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rkm/senprep/internal/catalog"
	"github.com/rkm/senprep/internal/config"
	"github.com/rkm/senprep/internal/store"
)

// Result reports one collocation: the finalized per-mission raster paths
// and whether existing entries were reused.
type Result struct {
	S1Path  string
	S2Path  string
	Skipped bool
}

// Invoker drives the engine for one candidate: it resolves source and
// output paths through the store, invokes the processor, and publishes
// both per-mission collocated rasters atomically.
type Invoker struct {
	store     *store.Store
	processor Processor
	graphFile string
	logger    *slog.Logger
}

// NewInvoker creates an Invoker.
func NewInvoker(st *store.Store, processor Processor, graphFile string) *Invoker {
	return &Invoker{
		store:     st,
		processor: processor,
		graphFile: graphFile,
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger for the invoker.
func (inv *Invoker) WithLogger(logger *slog.Logger) *Invoker {
	inv.logger = logger
	return inv
}

// Collocate produces the pair's collocated rasters for one ROI sub-area.
// Both mission outputs come from a single engine invocation, so they are
// treated as a unit: if either entry is missing the pair is recomputed and
// both entries are republished.
func (inv *Invoker) Collocate(ctx context.Context, cand catalog.Candidate, cfg *config.RunConfig, rebuild bool) (Result, error) {
	pair := cand.Pair
	s1Key := store.Collocated(cfg.Name, cand.WeekStart, cand.SubArea.Index, "S1", pair.S1.ID, pair.S2.ID)
	s2Key := store.Collocated(cfg.Name, cand.WeekStart, cand.SubArea.Index, "S2", pair.S1.ID, pair.S2.ID)

	if !rebuild {
		s1ok, s2ok := inv.store.Exists(s1Key), inv.store.Exists(s2Key)
		if s1ok && s2ok {
			inv.logger.DebugContext(ctx, "collocation already done",
				slog.String("pair", pair.Key()),
				slog.Int("roi", cand.SubArea.Index),
			)
			return Result{S1Path: inv.store.PathOf(s1Key), S2Path: inv.store.PathOf(s2Key), Skipped: true}, nil
		}
		// A lone half of the pair means an earlier run died between
		// publishes; recompute both.
		rebuild = s1ok || s2ok
	}

	s1Source := inv.store.PathOf(store.RawProduct("S1", pair.S1.ID))
	s2Source := inv.store.PathOf(store.RawProduct("S2", pair.S2.ID))
	for _, src := range []string{s1Source, s2Source} {
		if _, err := os.Stat(src); err != nil {
			return Result{}, &ProcessingError{Pair: pair, Err: fmt.Errorf("source product missing: %w", err)}
		}
	}

	roiWKT, err := cand.SubArea.WKT()
	if err != nil {
		return Result{}, &ProcessingError{Pair: pair, Err: err}
	}

	staging, err := inv.store.TempDir()
	if err != nil {
		return Result{}, &ProcessingError{Pair: pair, Err: err}
	}
	defer os.RemoveAll(staging)

	stagedS2 := filepath.Join(staging, "s2_collocated.tif")

	s1Path, _, err := inv.store.Publish(ctx, s1Key, rebuild, func(tmp string) error {
		params := Params{
			GraphFile:       inv.graphFile,
			S1Source:        s1Source,
			S2Source:        s2Source,
			CollocateMaster: pair.S2.Title,
			S1Output:        tmp,
			S2Output:        stagedS2,
			BandsS1:         cfg.BandsS1,
			BandsS2:         cfg.BandsS2,
			ROIWKT:          roiWKT,
		}
		if err := inv.processor.Invoke(ctx, params); err != nil {
			return err
		}
		if err := validateOutput(stagedS2); err != nil {
			return err
		}
		return validateOutput(tmp)
	})
	if err != nil {
		return Result{}, &ProcessingError{Pair: pair, Err: err}
	}

	// The S2 half was computed by the same invocation; install it from
	// staging. Rebuild is forced because these bytes are fresh. If a
	// concurrent caller shared the S1 publish, its staging file was never
	// written and the already-finalized entry is used instead.
	s2Path, _, err := inv.store.Publish(ctx, s2Key, true, func(tmp string) error {
		return os.Rename(stagedS2, tmp)
	})
	if err != nil {
		if os.IsNotExist(err) && inv.store.Exists(s2Key) {
			return Result{S1Path: s1Path, S2Path: inv.store.PathOf(s2Key)}, nil
		}
		return Result{}, &ProcessingError{Pair: pair, Err: err}
	}

	return Result{S1Path: s1Path, S2Path: s2Path}, nil
}

// validateOutput rejects the engine's habit of creating output files at
// start time and leaving them empty on failure.
func validateOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("engine produced no output at %s: %w", filepath.Base(path), err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("engine produced empty output at %s", filepath.Base(path))
	}
	return nil
}
