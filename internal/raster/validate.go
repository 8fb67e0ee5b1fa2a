package raster

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"

	"github.com/tockloth/region-elevation-engine/internal/engineerr"
)

// Elevation plausibility bounds for any finite cell (§4.4.4) and the
// tolerance used when comparing a tile's geotransform-derived bounds
// against its expected 1° cell.
const (
	MinPlausibleElevationM = -500.0
	MaxPlausibleElevationM = 9000.0
	boundsEpsilonDeg       = 0.01
)

// ValidateTile opens a downloaded tile with godal and checks every
// admission invariant the downloader relies on before writing it into
// the tile pool (§4.4.4): it must open cleanly, be non-rotated, carry
// a positive extent, have bounds within epsilon of the expected 1°
// cell at (expectedLat, expectedLon), have at least one finite cell
// unless allowAllNoData is set (some providers legitimately return
// all-ocean tiles), and every finite cell within
// [MinPlausibleElevationM, MaxPlausibleElevationM].
func ValidateTile(path string, expectedLat, expectedLon int, allowAllNoData bool) error {
	dataset, err := godal.Open(path)
	if err != nil {
		return engineerr.New(engineerr.KindValidationFailed, "raster.ValidateTile", "", fmt.Errorf("open %s: %w", path, err))
	}
	defer dataset.Close()

	gt, err := dataset.GeoTransform()
	if err != nil {
		return engineerr.New(engineerr.KindValidationFailed, "raster.ValidateTile", "", fmt.Errorf("geotransform %s: %w", path, err))
	}
	if gt[2] != 0.0 || gt[4] != 0.0 {
		return engineerr.New(engineerr.KindValidationFailed, "raster.ValidateTile", "", fmt.Errorf("tile %s is rotated or skewed", path))
	}

	structure := dataset.Structure()
	if structure.SizeX <= 0 || structure.SizeY <= 0 {
		return engineerr.New(engineerr.KindValidationFailed, "raster.ValidateTile", "", fmt.Errorf("tile %s has empty raster extent", path))
	}

	west := gt[0]
	north := gt[3]
	east := west + float64(structure.SizeX)*gt[1]
	south := north + float64(structure.SizeY)*gt[5] // gt[5] is negative

	wantWest, wantSouth := float64(expectedLon), float64(expectedLat)
	wantEast, wantNorth := wantWest+1, wantSouth+1
	if math.Abs(west-wantWest) > boundsEpsilonDeg || math.Abs(south-wantSouth) > boundsEpsilonDeg ||
		math.Abs(east-wantEast) > boundsEpsilonDeg || math.Abs(north-wantNorth) > boundsEpsilonDeg {
		return engineerr.New(engineerr.KindValidationFailed, "raster.ValidateTile", "",
			fmt.Errorf("tile %s bounds [%v,%v,%v,%v] outside epsilon of expected cell [%v,%v,%v,%v]",
				path, west, south, east, north, wantWest, wantSouth, wantEast, wantNorth))
	}

	bands := dataset.Bands()
	if len(bands) == 0 {
		return engineerr.New(engineerr.KindValidationFailed, "raster.ValidateTile", "", fmt.Errorf("tile %s has no raster bands", path))
	}
	band := bands[0]
	noData, hasNoData := band.NoData()

	buf := make([]float32, structure.SizeX*structure.SizeY)
	if err := band.Read(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return engineerr.New(engineerr.KindValidationFailed, "raster.ValidateTile", "", fmt.Errorf("read %s: %w", path, err))
	}

	anyFinite := false
	for _, v := range buf {
		val := float64(v)
		if hasNoData && val == noData {
			continue
		}
		if math.IsNaN(val) || math.IsInf(val, 0) {
			continue
		}
		anyFinite = true
		if val < MinPlausibleElevationM || val > MaxPlausibleElevationM {
			return engineerr.New(engineerr.KindElevationOutOfRange, "raster.ValidateTile", "",
				fmt.Errorf("tile %s has elevation %v outside [%v, %v]", path, val, MinPlausibleElevationM, MaxPlausibleElevationM))
		}
	}
	if !anyFinite && !allowAllNoData {
		return engineerr.New(engineerr.KindValidationFailed, "raster.ValidateTile", "", fmt.Errorf("tile %s is entirely no-data", path))
	}

	return nil
}

// Bounds reports a tile's WGS84-ish bounding box, assuming the source
// spatial reference is already geographic (the tile providers of §4.4
// serve 1° lat/lon tiles, never a projected CRS).
func Bounds(path string) (west, south, east, north float64, err error) {
	dataset, openErr := godal.Open(path)
	if openErr != nil {
		return 0, 0, 0, 0, engineerr.New(engineerr.KindValidationFailed, "raster.Bounds", "", openErr)
	}
	defer dataset.Close()

	gt, gtErr := dataset.GeoTransform()
	if gtErr != nil {
		return 0, 0, 0, 0, engineerr.New(engineerr.KindValidationFailed, "raster.Bounds", "", gtErr)
	}
	structure := dataset.Structure()

	west = gt[0]
	north = gt[3]
	east = west + float64(structure.SizeX)*gt[1]
	south = north + float64(structure.SizeY)*gt[5] // gt[5] is negative

	return west, south, east, north, nil
}
