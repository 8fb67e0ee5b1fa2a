/*
Package pipeline implements the processing pipeline of §4.5: boundary
clip, reprojection, aspect-preserving downsample, and the final
JSON+gzip export with a fixed schema. Each raster transform delegates
to the raster package's gdalwarp/gdal_translate wrappers (§4.5 design
notes treat reprojection and polygon rasterization as an external
library's black box); this package owns the orchestration, the
pixel-budget math, the coverage check, and the export encoding.
*/
package pipeline

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/godal"

	"github.com/tockloth/region-elevation-engine/internal/boundary"
	"github.com/tockloth/region-elevation-engine/internal/engineerr"
	"github.com/tockloth/region-elevation-engine/internal/planner"
	"github.com/tockloth/region-elevation-engine/internal/raster"
	"github.com/tockloth/region-elevation-engine/internal/region"
)

// NoDataSentinel is the project-wide numeric no-data value (§9
// Open Question, decided: a single sentinel, never JSON null, matching
// the teacher's own -9999.0 convention throughout common.go/gdal.go).
const NoDataSentinel = -9999.0

// ArtifactVersion is the export artifact's on-wire schema version
// (§3: "version (integer ≥ 2)", §4.5.5). It is also manifest.Entry's
// expected FormatVersion — the two must always agree (§8 property 9).
const ArtifactVersion = 2

// ProjectionChoice selects the target CRS for reprojection (§4.5.2).
type ProjectionChoice string

const (
	ProjectionWebMercator      ProjectionChoice = "EPSG:3857"
	ProjectionPolarStereoNorth ProjectionChoice = "+proj=stere +lat_0=90 +lat_ts=70 +lon_0=-45 +datum=WGS84"
	ProjectionPolarStereoSouth ProjectionChoice = "+proj=stere +lat_0=-90 +lat_ts=-70 +lon_0=0 +datum=WGS84"
)

// ChooseProjection implements §4.5.2's rule: polar stereographic above
// 80° latitude magnitude (where Web Mercator's distortion becomes
// unusable), Web Mercator otherwise.
func ChooseProjection(b region.Bounds) ProjectionChoice {
	switch {
	case b.South >= 80:
		return ProjectionPolarStereoNorth
	case b.North <= -80:
		return ProjectionPolarStereoSouth
	default:
		return ProjectionWebMercator
	}
}

// ResamplingFor returns the resampling kernel (§4.5.2): bilinear for
// upsampling/same-resolution reprojection, area-average when the
// reprojected pixel footprint is coarser than the source (anti-
// aliasing, matches gdal_translate's own "-r average" downsample path).
func ResamplingFor(sourceResM, targetResM float64) string {
	if targetResM > sourceResM*1.05 {
		return "average"
	}
	return "bilinear"
}

// TargetDimensions computes an aspect-preserving width/height pair
// that fits within targetTotalPixels (§4.5.3).
func TargetDimensions(sourceWidth, sourceHeight, targetTotalPixels int) (width, height int) {
	if sourceWidth <= 0 || sourceHeight <= 0 || targetTotalPixels <= 0 {
		return sourceWidth, sourceHeight
	}
	sourcePixels := sourceWidth * sourceHeight
	if sourcePixels <= targetTotalPixels {
		return sourceWidth, sourceHeight
	}
	scale := math.Sqrt(float64(targetTotalPixels) / float64(sourcePixels))
	width = int(math.Round(float64(sourceWidth) * scale))
	height = int(math.Round(float64(sourceHeight) * scale))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}

// Options configures one pipeline run.
type Options struct {
	TargetTotalPixels int
	WorkDir           string // scratch directory for intermediate rasters

	// MinCoverageRatio rejects the artifact if fewer than this
	// fraction of cells are finite after clipping (§6.5
	// min_coverage_ratio). Zero disables the check.
	MinCoverageRatio float64
}

// Artifact is the in-memory representation of the export schema
// (§3, §4.5.5) before it is marshaled to JSON+gzip. Field tags are the
// spec's literal fixed top-level keys.
type Artifact struct {
	Version     int               `json:"version"`
	Exported    time.Time         `json:"exported"`
	Region      string            `json:"region"`
	RegionID    string            `json:"region_id"`
	Bounds      region.Bounds     `json:"bounds"`
	Elevation   [][]float64       `json:"elevation"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	NoData      float64           `json:"nodata"`
	Source      planner.DatasetID `json:"source"`
	ResolutionM float64           `json:"resolution_m"`
	Min         float64           `json:"min"`
	Max         float64           `json:"max"`
	Mean        float64           `json:"mean"`

	// Quality is a supplemented metadata field (SPEC_FULL.md
	// SUPPLEMENTED FEATURES item 3), not part of spec.md's literal
	// export schema but additive and harmless to viewers that ignore
	// unknown keys.
	Quality planner.Quality `json:"quality"`
}

// elevationStats summarizes the finite cells of a processed raster.
type elevationStats struct {
	Min, Max, Mean float64
	CoverageRatio  float64
}

// Run executes the full pipeline: clip -> reproject -> downsample ->
// read back pixel values into an Artifact. srcRaster is the merged,
// validated mosaic produced by the downloader.
func Run(srcRaster string, plan planner.Plan, b region.Bounds, boundaryPoly *boundary.Polygon, opts Options) (*Artifact, error) {
	if opts.WorkDir == "" {
		return nil, engineerr.New(engineerr.KindConfigurationError, "pipeline.Run", "", fmt.Errorf("WorkDir is required"))
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, engineerr.New(engineerr.KindStorageError, "pipeline.Run", "", err)
	}

	projection := ChooseProjection(b)
	resampling := ResamplingFor(plan.Dataset.NativeResolutionM, plan.VisiblePixelSizeM)

	var cutlinePath string
	if boundaryPoly != nil {
		cutlinePath = filepath.Join(opts.WorkDir, "cutline.geojson")
		if err := boundaryPoly.WriteCutlineGeoJSON(cutlinePath); err != nil {
			return nil, err
		}
	}

	reprojected := filepath.Join(opts.WorkDir, "reprojected.tif")
	if err := raster.Reproject(raster.ReprojectArgs{
		Src:            srcRaster,
		Dst:            reprojected,
		TargetSRS:      string(projection),
		CutlineGeoJSON: cutlinePath,
		Resampling:     resampling,
	}); err != nil {
		return nil, err
	}

	sourceWidth, sourceHeight, err := rasterDimensions(reprojected)
	if err != nil {
		return nil, err
	}

	width, height := TargetDimensions(sourceWidth, sourceHeight, opts.TargetTotalPixels)

	downsampled := filepath.Join(opts.WorkDir, "downsampled.tif")
	if width == sourceWidth && height == sourceHeight {
		downsampled = reprojected
	} else if err := raster.Downsample(reprojected, downsampled, width, height); err != nil {
		return nil, err
	}

	elevations, stats, err := readElevations(downsampled)
	if err != nil {
		return nil, err
	}

	if opts.MinCoverageRatio > 0 && stats.CoverageRatio < opts.MinCoverageRatio {
		return nil, engineerr.New(engineerr.KindInsufficientCover, "pipeline.Run", "",
			fmt.Errorf("coverage ratio %.4f after clipping is below minimum %.4f", stats.CoverageRatio, opts.MinCoverageRatio))
	}

	return &Artifact{
		Version:     ArtifactVersion,
		Exported:    time.Now().UTC(),
		Bounds:      b,
		Elevation:   elevations,
		Width:       width,
		Height:      height,
		NoData:      NoDataSentinel,
		Source:      plan.Dataset.ID,
		ResolutionM: plan.Dataset.NativeResolutionM,
		Min:         stats.Min,
		Max:         stats.Max,
		Mean:        stats.Mean,
		Quality:     plan.Quality,
	}, nil
}

func rasterDimensions(path string) (width, height int, err error) {
	dataset, openErr := godal.Open(path)
	if openErr != nil {
		return 0, 0, engineerr.New(engineerr.KindReprojectionFailed, "pipeline.rasterDimensions", "", openErr)
	}
	defer dataset.Close()
	structure := dataset.Structure()
	return structure.SizeX, structure.SizeY, nil
}

// readElevations reads every pixel of band 1 into a row-major grid,
// substituting NoDataSentinel for any of the source's own no-data
// values (§4.5.5: "no-data fidelity" / §8 property 8) so downstream
// consumers never need to know the source dataset's native sentinel,
// and accumulates min/max/mean/coverage-ratio statistics over the
// finite cells (§3, §6.5 min_coverage_ratio).
func readElevations(path string) ([][]float64, elevationStats, error) {
	dataset, err := godal.Open(path)
	if err != nil {
		return nil, elevationStats{}, engineerr.New(engineerr.KindReprojectionFailed, "pipeline.readElevations", "", err)
	}
	defer dataset.Close()

	structure := dataset.Structure()
	bands := dataset.Bands()
	if len(bands) == 0 {
		return nil, elevationStats{}, engineerr.New(engineerr.KindReprojectionFailed, "pipeline.readElevations", "", fmt.Errorf("no raster bands in %s", path))
	}
	band := bands[0]
	sourceNoData, hasNoData := band.NoData()

	buf := make([]float32, structure.SizeX*structure.SizeY)
	if err := band.Read(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return nil, elevationStats{}, engineerr.New(engineerr.KindReprojectionFailed, "pipeline.readElevations", "", err)
	}

	grid := make([][]float64, structure.SizeY)
	finiteCount := 0
	sum := 0.0
	min := math.Inf(1)
	max := math.Inf(-1)

	for row := 0; row < structure.SizeY; row++ {
		grid[row] = make([]float64, structure.SizeX)
		for col := 0; col < structure.SizeX; col++ {
			v := float64(buf[row*structure.SizeX+col])
			isNoData := hasNoData && v == sourceNoData
			if isNoData || math.IsNaN(v) || math.IsInf(v, 0) {
				grid[row][col] = NoDataSentinel
				continue
			}
			finiteCount++
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			grid[row][col] = v
		}
	}

	stats := elevationStats{}
	total := structure.SizeX * structure.SizeY
	if total > 0 {
		stats.CoverageRatio = float64(finiteCount) / float64(total)
	}
	if finiteCount > 0 {
		stats.Min, stats.Max, stats.Mean = min, max, sum/float64(finiteCount)
	}

	return grid, stats, nil
}

// ExportGzipJSON writes the artifact to destPath as gzip-compressed
// JSON (§4.5.5).
func ExportGzipJSON(a *Artifact, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return engineerr.New(engineerr.KindStorageError, "pipeline.ExportGzipJSON", "", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	defer gw.Close()

	enc := json.NewEncoder(gw)
	if err := enc.Encode(a); err != nil {
		return engineerr.New(engineerr.KindStorageError, "pipeline.ExportGzipJSON", "", err)
	}
	return nil
}
