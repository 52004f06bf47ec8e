package tiling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Raster is an opened raster dataset.
type Raster interface {
	// Size returns the pixel extent.
	Size() (w, h int)
	// Window extracts one patch window into dst.
	Window(ctx context.Context, spec PatchSpec, dst string) error
	// ClipCutline clips the raster to the geometry in the given GeoJSON
	// file and writes the result to dst.
	ClipCutline(ctx context.Context, cutline, dst string) error
}

// Opener opens a finalized store entry as a raster dataset.
type Opener interface {
	Open(ctx context.Context, path string) (Raster, error)
}

// GDAL implements Opener on top of the GDAL command-line tools, the same
// way the processing engine is driven through its gpt binary.
type GDAL struct {
	infoBin      string
	translateBin string
	warpBin      string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewGDAL creates a GDAL-backed opener. Empty binary names fall back to
// the tools' conventional names on PATH.
func NewGDAL(infoBin, translateBin, warpBin string, timeout time.Duration) *GDAL {
	if infoBin == "" {
		infoBin = "gdalinfo"
	}
	if translateBin == "" {
		translateBin = "gdal_translate"
	}
	if warpBin == "" {
		warpBin = "gdalwarp"
	}
	return &GDAL{
		infoBin:      infoBin,
		translateBin: translateBin,
		warpBin:      warpBin,
		timeout:      timeout,
		logger:       slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (g *GDAL) WithLogger(logger *slog.Logger) *GDAL {
	g.logger = logger
	return g
}

// gdalInfo is the subset of `gdalinfo -json` output the tiler needs.
type gdalInfo struct {
	Size [2]int `json:"size"`
}

// Open reads the dataset's pixel extent via gdalinfo.
func (g *GDAL) Open(ctx context.Context, path string) (Raster, error) {
	out, err := g.run(ctx, g.infoBin, "-json", path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect raster %s: %w", path, err)
	}

	var info gdalInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("failed to decode raster info for %s: %w", path, err)
	}
	if info.Size[0] <= 0 || info.Size[1] <= 0 {
		return nil, fmt.Errorf("raster %s has degenerate extent %dx%d", path, info.Size[0], info.Size[1])
	}

	return &gdalRaster{gdal: g, path: path, width: info.Size[0], height: info.Size[1]}, nil
}

func (g *GDAL) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	g.logger.DebugContext(ctx, "running raster tool",
		slog.String("bin", bin),
	)

	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s timed out: %w", bin, ctxErr)
		}
		return nil, fmt.Errorf("%s exited with error: %w: %s", bin, err, out)
	}
	return out, nil
}

type gdalRaster struct {
	gdal   *GDAL
	path   string
	width  int
	height int
}

func (r *gdalRaster) Size() (int, int) { return r.width, r.height }

func (r *gdalRaster) Window(ctx context.Context, spec PatchSpec, dst string) error {
	// gdal_translate -srcwin takes xoff yoff xsize ysize.
	_, err := r.gdal.run(ctx, r.gdal.translateBin,
		"-srcwin",
		fmt.Sprintf("%d", spec.Col), fmt.Sprintf("%d", spec.Row),
		fmt.Sprintf("%d", spec.Width), fmt.Sprintf("%d", spec.Height),
		r.path, dst,
	)
	return err
}

func (r *gdalRaster) ClipCutline(ctx context.Context, cutline, dst string) error {
	_, err := r.gdal.run(ctx, r.gdal.warpBin,
		"-cutline", cutline,
		"-crop_to_cutline",
		r.path, dst,
	)
	return err
}
