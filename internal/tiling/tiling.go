// Package tiling cuts collocated rasters down to ROI sub-areas and slices
// them into fixed-size training patches. Patch enumeration is pure and
// deterministic; the same raster extent and patch geometry always yield
// the same windows in the same order.
package tiling

import (
	"fmt"
)

// PatchSpec describes one patch window in raster pixel coordinates. Row
// and Col are the window's top-left offsets, not indices.
type PatchSpec struct {
	ROIIndex int
	Row      int
	Col      int
	Width    int
	Height   int
}

// Error reports a failed clip or patch extraction.
type Error struct {
	Spec PatchSpec
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tiling failed at window %dx%d (%dx%d): %v",
		e.Spec.Row, e.Spec.Col, e.Spec.Width, e.Spec.Height, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Enumerate lists the patch windows covering a raster of the given pixel
// extent, row-major. size and overlap are [x, y] pixel pairs; the stride
// on each axis is size minus overlap. Windows that would run past the raster
// edge are dropped, never clipped, so every patch has the full requested
// size.
func Enumerate(rasterW, rasterH int, size, overlap [2]int) ([]PatchSpec, error) {
	if size[0] <= 0 || size[1] <= 0 {
		return nil, fmt.Errorf("patch size must be positive, got %dx%d", size[0], size[1])
	}
	if overlap[0] < 0 || overlap[1] < 0 {
		return nil, fmt.Errorf("overlap must be non-negative, got %dx%d", overlap[0], overlap[1])
	}
	if overlap[0] >= size[0] || overlap[1] >= size[1] {
		return nil, fmt.Errorf("overlap %dx%d must be smaller than patch size %dx%d",
			overlap[0], overlap[1], size[0], size[1])
	}

	strideX := size[0] - overlap[0]
	strideY := size[1] - overlap[1]

	var specs []PatchSpec
	for row := 0; row+size[1] <= rasterH; row += strideY {
		for col := 0; col+size[0] <= rasterW; col += strideX {
			specs = append(specs, PatchSpec{
				Row:    row,
				Col:    col,
				Width:  size[0],
				Height: size[1],
			})
		}
	}
	return specs, nil
}
