// Package pipeline schedules resolved candidates through download,
// collocation and tiling with bounded parallelism. Units fail
// independently; one bad pair never takes down its siblings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rkm/senprep/internal/catalog"
	"github.com/rkm/senprep/internal/config"
	"github.com/rkm/senprep/internal/dates"
	"github.com/rkm/senprep/internal/roi"
	"github.com/rkm/senprep/internal/snap"
	"github.com/rkm/senprep/internal/tiling"
)

// Mode selects how far each unit is taken through the chain.
type Mode int

const (
	// ModeList resolves candidates without touching the store.
	ModeList Mode = iota
	// ModeDownload resolves and fetches raw products only.
	ModeDownload
	// ModeProcess runs the full chain through collocation and tiling.
	ModeProcess
)

func (m Mode) String() string {
	switch m {
	case ModeList:
		return "list"
	case ModeDownload:
		return "download"
	case ModeProcess:
		return "process"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Options control one run.
type Options struct {
	NJobs   int
	Rebuild bool
	Mode    Mode
}

// UnitFailure records one failed unit with the pair and sub-area that
// identify it.
type UnitFailure struct {
	Pair     string
	ROIIndex int
	Err      error
}

func (f UnitFailure) Error() string {
	return fmt.Sprintf("unit %s roi%d: %v", f.Pair, f.ROIIndex, f.Err)
}

// UnitInfo describes one resolved unit for listing.
type UnitInfo struct {
	Pair       string
	ROIIndex   int
	Week       string
	CloudCover float64
	S1Coverage float64
	S2Coverage float64
}

// Summary reports the outcome of one run.
type Summary struct {
	RunID      string
	Candidates int
	Units      []UnitInfo
	Succeeded  int
	Skipped    int
	Failed     int
	Failures   []UnitFailure

	mu sync.Mutex
}

func (s *Summary) addSuccess(skipped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if skipped {
		s.Skipped++
		return
	}
	s.Succeeded++
}

func (s *Summary) addFailure(f UnitFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed++
	s.Failures = append(s.Failures, f)
}

// Tiler is the tiling collaborator.
type Tiler interface {
	Tile(ctx context.Context, cand catalog.Candidate, cfg *config.RunConfig, rebuild bool) (tiling.Result, error)
}

// Collocator is the processing collaborator.
type Collocator interface {
	Collocate(ctx context.Context, cand catalog.Candidate, cfg *config.RunConfig, rebuild bool) (snap.Result, error)
}

// Downloader is the product fetch collaborator.
type Downloader interface {
	Ensure(ctx context.Context, ref catalog.ProductRef, rebuild bool) (string, bool, error)
}

// Resolver turns a run configuration into schedulable candidates.
type Resolver interface {
	Resolve(ctx context.Context, cfg *config.RunConfig, region *roi.ROI) ([]catalog.Candidate, error)
}

// Scheduler runs resolved candidates with bounded parallelism.
type Scheduler struct {
	resolver   Resolver
	downloader Downloader
	collocator Collocator
	tiler      Tiler
	logger     *slog.Logger
}

// NewScheduler creates a scheduler over the pipeline collaborators.
func NewScheduler(resolver Resolver, downloader Downloader, collocator Collocator, tiler Tiler) *Scheduler {
	return &Scheduler{
		resolver:   resolver,
		downloader: downloader,
		collocator: collocator,
		tiler:      tiler,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Run resolves the configuration and executes every candidate. A catalog
// outage aborts before anything is dispatched; zero candidates is a valid
// empty run. Unit failures are collected in the summary, not returned.
func (s *Scheduler) Run(ctx context.Context, cfg *config.RunConfig, region *roi.ROI, opts Options) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString()}

	candidates, err := s.resolver.Resolve(ctx, cfg, region)
	if err != nil {
		if errors.Is(err, catalog.ErrNoMatchingProducts) {
			s.logger.InfoContext(ctx, "no products match the configuration",
				slog.String("run_id", summary.RunID),
				slog.String("region", cfg.Name),
			)
			return summary, nil
		}
		return nil, err
	}
	summary.Candidates = len(candidates)
	for _, cand := range candidates {
		summary.Units = append(summary.Units, UnitInfo{
			Pair:       cand.Pair.Key(),
			ROIIndex:   cand.SubArea.Index,
			Week:       dates.Format(cand.WeekStart),
			CloudCover: cand.Pair.S2.CloudCover,
			S1Coverage: catalog.Coverage(cand.Pair.S1, cand.SubArea),
			S2Coverage: catalog.Coverage(cand.Pair.S2, cand.SubArea),
		})
	}

	s.logger.InfoContext(ctx, "run starting",
		slog.String("run_id", summary.RunID),
		slog.String("region", cfg.Name),
		slog.String("mode", opts.Mode.String()),
		slog.Int("candidates", len(candidates)),
		slog.Int("njobs", opts.NJobs),
	)

	if opts.Mode == ModeList {
		return summary, nil
	}

	njobs := opts.NJobs
	if njobs < 1 {
		njobs = 1
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(njobs)

	for _, cand := range candidates {
		cand := cand
		group.Go(func() error {
			skipped, err := s.runUnit(gctx, cand, cfg, opts)
			if err != nil {
				s.logger.ErrorContext(gctx, "unit failed",
					slog.String("run_id", summary.RunID),
					slog.String("pair", cand.Pair.Key()),
					slog.Int("roi", cand.SubArea.Index),
					slog.String("error", err.Error()),
				)
				summary.addFailure(UnitFailure{
					Pair:     cand.Pair.Key(),
					ROIIndex: cand.SubArea.Index,
					Err:      err,
				})
				// Unit failures stay local; only context cancellation
				// stops the group.
				return gctx.Err()
			}
			summary.addSuccess(skipped)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return summary, err
	}

	s.logger.InfoContext(ctx, "run finished",
		slog.String("run_id", summary.RunID),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
	)
	return summary, nil
}

// runUnit takes one candidate through the chain for the selected mode.
// It reports skipped=true when every stage reused existing store entries.
func (s *Scheduler) runUnit(ctx context.Context, cand catalog.Candidate, cfg *config.RunConfig, opts Options) (bool, error) {
	skipped := true

	for _, ref := range []catalog.ProductRef{cand.Pair.S1, cand.Pair.S2} {
		_, downloaded, err := s.downloader.Ensure(ctx, ref, opts.Rebuild)
		if err != nil {
			return false, fmt.Errorf("download: %w", err)
		}
		if downloaded {
			skipped = false
		}
	}

	if opts.Mode == ModeDownload {
		return skipped, nil
	}

	colRes, err := s.collocator.Collocate(ctx, cand, cfg, opts.Rebuild)
	if err != nil {
		return false, fmt.Errorf("collocate: %w", err)
	}
	if !colRes.Skipped {
		skipped = false
	}

	tileRes, err := s.tiler.Tile(ctx, cand, cfg, opts.Rebuild)
	if err != nil {
		return false, fmt.Errorf("tile: %w", err)
	}
	if tileRes.Written > 0 {
		skipped = false
	}

	return skipped, nil
}
