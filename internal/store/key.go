// Package store implements the shared content-addressed product store.
// Keys are pure functions of domain identity (product IDs, ROI index,
// processing stage), never of wall-clock time, so entries act as a durable
// memoization layer across runs and across users sharing the same root.
package store

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rkm/senprep/internal/dates"
)

// Stage is a processing stage with a numbered directory in the output
// layout consumed by downstream tooling.
type Stage string

const (
	StageCollocated Stage = "01_Collocated"
	StageClipped    Stage = "02_Clipped"
	StagePatches    Stage = "03_Patches"
)

// patchesDirName is where derived artifacts live under the store root.
const patchesDirName = "Sentinel_Patches"

// Key addresses one entry in the store.
type Key struct {
	relPath string
}

// RelPath returns the entry location relative to the store root. It also
// serves as the key identity for write serialization.
func (k Key) RelPath() string { return k.relPath }

func (k Key) String() string { return k.relPath }

// RawProduct keys a downloaded product archive by mission and product ID.
// Raw products are shared between all regions and live under a per-mission
// directory at the store root.
func RawProduct(mission, productID string) Key {
	return Key{relPath: filepath.Join(mission, productID+".zip")}
}

// derivedDir is <root>/Sentinel_Patches/<region>/<monday>/ROI<n>/<mission>/<stage>.
func derivedDir(region string, week time.Time, roiIndex int, mission string, stage Stage) string {
	return filepath.Join(
		patchesDirName,
		region,
		dates.Format(dates.NearestMonday(week)),
		fmt.Sprintf("ROI%d", roiIndex),
		mission,
		string(stage),
	)
}

// Collocated keys a per-mission collocated raster. Both mission subtrees
// carry the same pair-derived filename.
func Collocated(region string, week time.Time, roiIndex int, mission, s1ID, s2ID string) Key {
	name := fmt.Sprintf("S1_%s_S2_%s.tif", s1ID, s2ID)
	return Key{relPath: filepath.Join(derivedDir(region, week, roiIndex, mission, StageCollocated), name)}
}

// Clipped keys a collocated raster cut down to one ROI sub-area.
// productID is the ID of the mission's own product.
func Clipped(region string, week time.Time, roiIndex int, mission, productID string) Key {
	name := fmt.Sprintf("%s_roi%d_%s.tif", mission, roiIndex, productID)
	return Key{relPath: filepath.Join(derivedDir(region, week, roiIndex, mission, StageClipped), name)}
}

// Patch keys one fixed-size patch. ownID is the mission's own product ID
// and otherID the paired product's, so the mission's product leads the
// name in its own subtree.
func Patch(region string, week time.Time, roiIndex int, mission, ownID, otherID string, row, col, width, height int) Key {
	name := fmt.Sprintf("%s_%s_%s_%dx%d_%dx%d.tif", mission, ownID, otherID, row, col, width, height)
	return Key{relPath: filepath.Join(derivedDir(region, week, roiIndex, mission, StagePatches), name)}
}

// SubAreaGeoJSON keys the exported sub-area geometry written alongside the
// clipped outputs; the raster library uses it as the clip cutline.
func SubAreaGeoJSON(region string, week time.Time, roiIndex int) Key {
	name := fmt.Sprintf("ROI%d.geojson", roiIndex)
	return Key{relPath: filepath.Join(
		patchesDirName,
		region,
		dates.Format(dates.NearestMonday(week)),
		fmt.Sprintf("ROI%d", roiIndex),
		name,
	)}
}
