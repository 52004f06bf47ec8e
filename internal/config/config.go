// Package config provides the two configuration layers of the pipeline:
// environment settings (store root, provider endpoints, retry policy,
// processing engine paths) and the per-run region configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Settings holds deployment-level configuration loaded from environment
// variables. Run-level parameters (region, dates, patch geometry) live in
// RunConfig instead.
type Settings struct {
	Store      StoreConfig      `envPrefix:"STORE_"`
	Catalog    CatalogConfig    `envPrefix:"CATALOG_"`
	Download   DownloadConfig   `envPrefix:"DOWNLOAD_"`
	Bucket     BucketConfig     `envPrefix:"BUCKET_"`
	Processing ProcessingConfig `envPrefix:"GPT_"`
	Raster     RasterConfig     `envPrefix:"GDAL_"`
	Jobs       JobsConfig       `envPrefix:"JOBS_"`
	Logging    LoggingConfig    `envPrefix:"LOG_"`
}

// StoreConfig locates the shared product store.
type StoreConfig struct {
	Root string `env:"ROOT" envDefault:"/var/satellite-data"`
}

// CatalogConfig configures the product catalog client.
type CatalogConfig struct {
	BaseURL    string        `env:"BASE_URL" envDefault:"https://catalogue.dataspace.copernicus.eu/stac"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"30s"`
	PageLimit  int           `env:"PAGE_LIMIT" envDefault:"200"`
	MaxRetries int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay time.Duration `env:"RETRY_DELAY" envDefault:"2s"`
}

// DownloadConfig configures product downloads from the primary archive.
type DownloadConfig struct {
	BaseURL        string        `env:"BASE_URL" envDefault:"https://download.dataspace.copernicus.eu/odata/v1"`
	AttemptTimeout time.Duration `env:"ATTEMPT_TIMEOUT" envDefault:"30m"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" envDefault:"5s"`
	RetryFactor    float64       `env:"RETRY_FACTOR" envDefault:"2.0"`
}

// BucketConfig configures the S3-compatible fallback archive used when the
// primary archive has purged a product to long-term storage.
type BucketConfig struct {
	Enabled   bool   `env:"ENABLED" envDefault:"false"`
	Endpoint  string `env:"ENDPOINT"`
	Name      string `env:"NAME"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Secure    bool   `env:"SECURE" envDefault:"true"`
}

// ProcessingConfig locates the external graph-processing engine.
type ProcessingConfig struct {
	Binary    string        `env:"BINARY" envDefault:"gpt"`
	GraphFile string        `env:"GRAPH" envDefault:"gpt_files/collocate_cloudmask_subset.xml"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"4h"`
}

// RasterConfig locates the GDAL command-line tools used for clipping and
// patch extraction.
type RasterConfig struct {
	InfoBinary      string        `env:"INFO" envDefault:"gdalinfo"`
	TranslateBinary string        `env:"TRANSLATE" envDefault:"gdal_translate"`
	WarpBinary      string        `env:"WARP" envDefault:"gdalwarp"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"30m"`
}

// JobsConfig sets scheduler defaults.
type JobsConfig struct {
	Parallelism int `env:"PARALLELISM" envDefault:"2"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// LoadSettings parses environment settings. All variables carry the
// SENPREP_ prefix, e.g. SENPREP_STORE_ROOT.
func LoadSettings() (*Settings, error) {
	cfg := &Settings{}

	opts := env.Options{
		Prefix: "SENPREP_",
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return cfg, nil
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	if s.Store.Root == "" {
		return fmt.Errorf("store root is required")
	}

	if s.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog base URL is required")
	}
	if s.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive, got %s", s.Catalog.Timeout)
	}
	if s.Catalog.MaxRetries < 1 {
		return fmt.Errorf("catalog max retries must be at least 1, got %d", s.Catalog.MaxRetries)
	}

	if s.Download.BaseURL == "" {
		return fmt.Errorf("download base URL is required")
	}
	if s.Download.AttemptTimeout <= 0 {
		return fmt.Errorf("download attempt timeout must be positive, got %s", s.Download.AttemptTimeout)
	}
	if s.Download.MaxAttempts < 1 {
		return fmt.Errorf("download max attempts must be at least 1, got %d", s.Download.MaxAttempts)
	}
	if s.Download.RetryFactor < 1 {
		return fmt.Errorf("download retry factor must be >= 1, got %g", s.Download.RetryFactor)
	}

	if s.Bucket.Enabled {
		if s.Bucket.Endpoint == "" {
			return fmt.Errorf("bucket endpoint is required when the fallback bucket is enabled")
		}
		if s.Bucket.Name == "" {
			return fmt.Errorf("bucket name is required when the fallback bucket is enabled")
		}
	}

	if s.Processing.Binary == "" {
		return fmt.Errorf("processing binary is required")
	}
	if s.Processing.GraphFile == "" {
		return fmt.Errorf("processing graph file is required")
	}
	if s.Processing.Timeout <= 0 {
		return fmt.Errorf("processing timeout must be positive, got %s", s.Processing.Timeout)
	}

	if s.Jobs.Parallelism < 1 {
		return fmt.Errorf("job parallelism must be at least 1, got %d", s.Jobs.Parallelism)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[s.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", s.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[s.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", s.Logging.Format)
	}

	return nil
}
