// senprep command line entry point
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rkm/senprep/internal/catalog"
	"github.com/rkm/senprep/internal/config"
	"github.com/rkm/senprep/internal/dataspace"
	"github.com/rkm/senprep/internal/download"
	"github.com/rkm/senprep/internal/pipeline"
	"github.com/rkm/senprep/internal/roi"
	"github.com/rkm/senprep/internal/snap"
	"github.com/rkm/senprep/internal/store"
	"github.com/rkm/senprep/internal/tiling"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cliOptions holds the persistent flag values shared by every subcommand.
type cliOptions struct {
	configPath      string
	credentialsPath string
	njobs           int
	rebuild         bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "senprep",
		Short:         "Prepare collocated Sentinel-1/Sentinel-2 training patches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the run configuration file (required)")
	root.PersistentFlags().StringVar(&opts.credentialsPath, "credentials", "", "path to the provider credentials file")
	root.PersistentFlags().IntVarP(&opts.njobs, "njobs", "j", 0, "parallel units (defaults to SENPREP_JOBS_PARALLELISM)")
	root.PersistentFlags().BoolVar(&opts.rebuild, "rebuild", false, "recompute entries even when they already exist")

	root.AddCommand(
		newRunCmd(opts, "list", "Resolve and print the product pairs a run would process", pipeline.ModeList),
		newRunCmd(opts, "download", "Resolve product pairs and fetch their archives", pipeline.ModeDownload),
		newRunCmd(opts, "run", "Run the full pipeline: download, collocate and tile", pipeline.ModeProcess),
	)
	return root
}

func newRunCmd(opts *cliOptions, use, short string, mode pipeline.Mode) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, opts, mode)
		},
	}
	if mode == pipeline.ModeProcess {
		cmd.Aliases = []string{"process"}
	}
	return cmd
}

func execute(cmd *cobra.Command, opts *cliOptions, mode pipeline.Mode) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	logger := setupLogger(settings.Logging.Level, settings.Logging.Format)
	slog.SetDefault(logger)

	if opts.configPath == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := config.LoadRunConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load run configuration: %w", err)
	}

	region, err := roi.New(cfg.Name, cfg.GeoJSON)
	if err != nil {
		return fmt.Errorf("invalid region geometry: %w", err)
	}

	var creds *config.Credentials
	if opts.credentialsPath != "" {
		creds, err = config.LoadCredentials(opts.credentialsPath)
		if err != nil {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
	}

	scheduler, err := buildScheduler(settings, creds, logger)
	if err != nil {
		return err
	}

	njobs := opts.njobs
	if njobs <= 0 {
		njobs = settings.Jobs.Parallelism
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := scheduler.Run(ctx, cfg, region, pipeline.Options{
		NJobs:   njobs,
		Rebuild: opts.rebuild,
		Mode:    mode,
	})
	if err != nil {
		return err
	}

	printSummary(cmd, summary, mode)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d units failed", summary.Failed, summary.Candidates)
	}
	return nil
}

// buildScheduler wires the pipeline collaborators from settings.
func buildScheduler(settings *config.Settings, creds *config.Credentials, logger *slog.Logger) (*pipeline.Scheduler, error) {
	st, err := store.New(settings.Store.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	catalogClient := dataspace.NewClient(settings.Catalog.BaseURL, settings.Catalog.Timeout).WithLogger(logger)
	resolver := catalog.NewResolver(catalogClient, settings.Catalog.MaxRetries, settings.Catalog.RetryDelay).WithLogger(logger)

	primary := download.NewHTTPProvider(settings.Download.BaseURL, creds)
	var fallback download.Provider
	if settings.Bucket.Enabled {
		fallback, err = download.NewBucketProvider(settings.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to configure fallback bucket: %w", err)
		}
	}
	coordinator := download.NewCoordinator(st, primary, fallback, download.Policy{
		MaxAttempts: settings.Download.MaxAttempts,
		BaseDelay:   settings.Download.RetryDelay,
		Multiplier:  settings.Download.RetryFactor,
	}, settings.Download.AttemptTimeout).WithLogger(logger)

	gpt := snap.NewGPT(settings.Processing.Binary, settings.Processing.Timeout).WithLogger(logger)
	invoker := snap.NewInvoker(st, gpt, settings.Processing.GraphFile).WithLogger(logger)

	gdal := tiling.NewGDAL(
		settings.Raster.InfoBinary,
		settings.Raster.TranslateBinary,
		settings.Raster.WarpBinary,
		settings.Raster.Timeout,
	).WithLogger(logger)
	tiler := tiling.NewEngine(st, gdal).WithLogger(logger)

	return pipeline.NewScheduler(resolver, coordinator, invoker, tiler).WithLogger(logger), nil
}

func printSummary(cmd *cobra.Command, summary *pipeline.Summary, mode pipeline.Mode) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s): %d candidates\n", summary.RunID, mode, summary.Candidates)
	if mode == pipeline.ModeList {
		for _, u := range summary.Units {
			fmt.Fprintf(out, "  %s week=%s roi=%d cloud=%.1f%% cover=%.0f%%/%.0f%%\n",
				u.Pair, u.Week, u.ROIIndex, u.CloudCover, u.S1Coverage*100, u.S2Coverage*100)
		}
		return
	}
	fmt.Fprintf(out, "  succeeded: %d\n", summary.Succeeded)
	fmt.Fprintf(out, "  skipped:   %d\n", summary.Skipped)
	fmt.Fprintf(out, "  failed:    %d\n", summary.Failed)
	for _, f := range summary.Failures {
		fmt.Fprintf(out, "    %s\n", f.Error())
	}
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
