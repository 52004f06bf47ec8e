package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rkm/senprep/internal/dates"
)

// RunConfig is the per-region run configuration consumed from a JSON file.
// It is immutable for the lifetime of a run.
type RunConfig struct {
	Name       string          `json:"name"`
	GeoJSON    json.RawMessage `json:"geojson"`
	Dates      [2]string       `json:"dates"`
	Size       [2]int          `json:"size"`
	Overlap    [2]int          `json:"overlap"`
	CloudCover [2]int          `json:"cloudcover"`
	BandsS1    []string        `json:"bands_S1"`
	BandsS2    []string        `json:"bands_S2"`

	// Optional fields carried over from older configurations.
	S1ProductType      string `json:"s1_producttype,omitempty"`
	S2ProductType      string `json:"s2_producttype,omitempty"`
	SecondaryTimeDelta int    `json:"secondary_time_delta,omitempty"`
}

// Defaults applied to optional RunConfig fields.
const (
	DefaultS1ProductType      = "GRD"
	DefaultS2ProductType      = "S2MSI2A"
	DefaultSecondaryTimeDelta = 3 // days between paired S1 and S2 sensing times
)

// LoadRunConfig reads and validates a run configuration file.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run config: %w", err)
	}

	cfg := &RunConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse run config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *RunConfig) applyDefaults() {
	if c.S1ProductType == "" {
		c.S1ProductType = DefaultS1ProductType
	}
	if c.S2ProductType == "" {
		c.S2ProductType = DefaultS2ProductType
	}
	if c.SecondaryTimeDelta == 0 {
		c.SecondaryTimeDelta = DefaultSecondaryTimeDelta
	}
}

// Validate checks the run configuration invariants.
func (c *RunConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.GeoJSON) == 0 {
		return fmt.Errorf("geojson is required")
	}

	start, err := dates.Parse(c.Dates[0])
	if err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	end, err := dates.Parse(c.Dates[1])
	if err != nil {
		return fmt.Errorf("end date: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s", c.Dates[1], c.Dates[0])
	}

	for axis, name := range map[int]string{0: "width", 1: "height"} {
		if c.Size[axis] < 1 {
			return fmt.Errorf("patch %s must be at least 1 pixel, got %d", name, c.Size[axis])
		}
		if c.Overlap[axis] < 0 {
			return fmt.Errorf("overlap %s must not be negative, got %d", name, c.Overlap[axis])
		}
		// Equal overlap and size would make the patch stride zero.
		if c.Overlap[axis] >= c.Size[axis] {
			return fmt.Errorf("overlap %s (%d) must be strictly less than patch %s (%d)",
				name, c.Overlap[axis], name, c.Size[axis])
		}
	}

	if c.CloudCover[0] < 0 || c.CloudCover[1] > 100 || c.CloudCover[0] > c.CloudCover[1] {
		return fmt.Errorf("cloud cover bounds must satisfy 0 <= min <= max <= 100, got [%d, %d]",
			c.CloudCover[0], c.CloudCover[1])
	}

	if len(c.BandsS1) == 0 {
		return fmt.Errorf("bands_S1 must name at least one band")
	}
	if len(c.BandsS2) == 0 {
		return fmt.Errorf("bands_S2 must name at least one band")
	}

	if c.SecondaryTimeDelta < 1 {
		return fmt.Errorf("secondary_time_delta must be at least 1 day, got %d", c.SecondaryTimeDelta)
	}

	return nil
}

// DateRange returns the configured dates as midnight-UTC times.
// Validate must have passed.
func (c *RunConfig) DateRange() (time.Time, time.Time) {
	start, _ := dates.Parse(c.Dates[0])
	end, _ := dates.Parse(c.Dates[1])
	return start, end
}

// TimeDelta returns the S1/S2 pairing tolerance as a duration.
func (c *RunConfig) TimeDelta() time.Duration {
	return time.Duration(c.SecondaryTimeDelta) * 24 * time.Hour
}

// Filename renders the canonical configuration filename,
// REGION_s{W}x{H}_o{A}x{B}_{DATE1}to{DATE2}.json. Region, patch geometry
// and date range identify a configuration for cache purposes.
func (c *RunConfig) Filename() string {
	return fmt.Sprintf("%s_s%dx%d_o%dx%d_%sto%s.json",
		c.Name,
		c.Size[0], c.Size[1],
		c.Overlap[0], c.Overlap[1],
		c.Dates[0], c.Dates[1],
	)
}

// Credentials holds provider credentials. The pipeline core treats them as
// opaque; only the download transport reads them.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoadCredentials reads a credentials JSON file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	creds := &Credentials{}
	if err := json.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", path, err)
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("credentials %s must contain username and password", path)
	}
	return creds, nil
}
