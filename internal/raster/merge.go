package raster

import (
	"fmt"
	"os"

	"github.com/tockloth/region-elevation-engine/internal/engineerr"
)

// Merge mosaics the given source tiles into a single GeoTIFF at dst
// using gdal_merge.py, falling back to gdalwarp (the same CLI utility
// the teacher reaches for when reprojecting, aspect.go, color-relief.go)
// if gdal_merge.py fails; a single source is copied to dst unchanged.
// Mosaicking order does not
// affect the result in the no-overlap case (adjacent 1° tiles never
// overlap, §4.2), so the input order does not need to match the
// row-major enumeration order that TilesCovering returns — that order
// matters for deterministic logging and manifest output, not for the
// pixel content of the merge.
func Merge(srcPaths []string, dst string) error {
	if len(srcPaths) == 0 {
		return engineerr.New(engineerr.KindIncompleteCoverage, "raster.Merge", "", fmt.Errorf("no source tiles to merge"))
	}
	if len(srcPaths) == 1 {
		data, err := os.ReadFile(srcPaths[0])
		if err != nil {
			return engineerr.New(engineerr.KindStorageError, "raster.Merge", "", err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return engineerr.New(engineerr.KindStorageError, "raster.Merge", "", err)
		}
		return nil
	}

	args := append([]string{}, srcPaths...)
	args = append(args, dst)
	if _, _, err := RunCommand("gdal_merge.py", append([]string{"-o", dst, "-of", "GTiff"}, srcPaths...)); err != nil {
		// Fall back to gdalwarp, which mosaics multiple inputs by
		// default when given more than one source file.
		if _, _, warpErr := RunCommand("gdalwarp", args); warpErr != nil {
			return engineerr.New(engineerr.KindReprojectionFailed, "raster.Merge", "", fmt.Errorf("gdal_merge.py: %v; gdalwarp fallback: %w", err, warpErr))
		}
	}
	return nil
}

// ReprojectArgs are the parameters of the reprojection/mask black box
// of §4.5.1-4.5.2, delegated to gdalwarp.
type ReprojectArgs struct {
	Src            string
	Dst            string
	TargetSRS      string // "EPSG:3857" or a polar stereographic PROJ string
	CutlineGeoJSON string // boundary polygon for mask(crop=true); empty skips clipping
	Resampling     string // "bilinear" or "average"
}

// Reproject runs gdalwarp with the teacher's runCommand idiom,
// implementing the spec's reproject()/mask() contract as one pass:
// gdalwarp natively supports simultaneous reprojection and
// cutline-based cropping (§4.5.1 boundary clip, §4.5.2 reprojection).
func Reproject(a ReprojectArgs) error {
	args := []string{"-t_srs", a.TargetSRS, "-r", a.Resampling, "-overwrite"}
	if a.CutlineGeoJSON != "" {
		args = append(args, "-cutline", a.CutlineGeoJSON, "-crop_to_cutline")
	}
	args = append(args, a.Src, a.Dst)

	if _, _, err := RunCommand("gdalwarp", args); err != nil {
		return err
	}
	return nil
}

// Downsample rescales src to targetWidth x targetHeight via
// gdal_translate (§4.5.3 aspect-preserving downsample to a pixel
// budget); callers are responsible for computing a width/height pair
// that preserves the source aspect ratio.
func Downsample(src, dst string, targetWidth, targetHeight int) error {
	args := []string{
		"-outsize", fmt.Sprintf("%d", targetWidth), fmt.Sprintf("%d", targetHeight),
		"-r", "average",
		src, dst,
	}
	if _, _, err := RunCommand("gdal_translate", args); err != nil {
		return err
	}
	return nil
}
