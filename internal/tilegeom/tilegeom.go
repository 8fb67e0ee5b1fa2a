/*
Package tilegeom implements the pure, I/O-free tile geometry of §4.2:
snapping bounds to the 1°×1° grid, enumerating the tiles that cover an
aligned box, deriving canonical tile filenames, and estimating visible
pixel size and tile byte sizes.

No function here touches disk or network, mirroring the teacher's own
pure coordinate-math helpers in gdal.go (transformLonLatToUTM,
calculateWGS84BoundingBox) — geometry stays separate from I/O.
*/
package tilegeom

import (
	"fmt"
	"math"

	"github.com/tockloth/region-elevation-engine/internal/region"
)

// earthRadiusMeters is the mean spheroidal radius used for the
// equirectangular distance approximation in VisiblePixelSize — the
// same order of precision the teacher's own UTM/WGS84 transforms rely
// on godal for, but here kept as a closed-form approximation since the
// contract (§4.2) only requires "spheroidal or equirectangular
// approximation consistent with the rest of the pipeline", not
// geodesic exactness.
const earthRadiusMeters = 6371000.0

// SnapToDegreeGrid aligns bounds to the 1° grid: west/south floor
// outward, east/north ceil outward. The result always contains the
// input, and equals it when the input is already integer-aligned (§4.2).
func SnapToDegreeGrid(b region.Bounds) region.Bounds {
	return region.Bounds{
		West:  math.Floor(b.West),
		South: math.Floor(b.South),
		East:  math.Ceil(b.East),
		North: math.Ceil(b.North),
	}
}

// Tile identifies a 1°×1° cell by its integer southwest corner.
type Tile struct {
	Lat int // southwest corner latitude, [-90, 89]
	Lon int // southwest corner longitude, [-180, 179]
}

// TilesCovering enumerates the integer-degree cells covering aligned
// bounds, in deterministic row-major north-to-south, west-to-east
// order (§4.2, §8 property 1). bounds must already be grid-aligned
// (integers); callers pass the output of SnapToDegreeGrid.
func TilesCovering(aligned region.Bounds) []Tile {
	south := int(math.Round(aligned.South))
	north := int(math.Round(aligned.North))
	west := int(math.Round(aligned.West))
	east := int(math.Round(aligned.East))

	var tiles []Tile
	for lat := north - 1; lat >= south; lat-- {
		for lon := west; lon < east; lon++ {
			tiles = append(tiles, Tile{Lat: lat, Lon: lon})
		}
	}
	return tiles
}

// TileFilename builds the canonical tile name
// "{N|S}{lat:02d}_{E|W}{lon:03d}_{res}m.tif" (§3). lat must be in
// [-90, 89] and lon in [-180, 179].
func TileFilename(lat, lon, resolutionM int) (string, error) {
	if lat < -90 || lat > 89 {
		return "", fmt.Errorf("tilegeom: lat %d out of range [-90, 89]", lat)
	}
	if lon < -180 || lon > 179 {
		return "", fmt.Errorf("tilegeom: lon %d out of range [-180, 179]", lon)
	}

	latHemi := "N"
	latAbs := lat
	if lat < 0 {
		latHemi = "S"
		latAbs = -lat
	}
	lonHemi := "E"
	lonAbs := lon
	if lon < 0 {
		lonHemi = "W"
		lonAbs = -lon
	}

	return fmt.Sprintf("%s%02d_%s%03d_%dm.tif", latHemi, latAbs, lonHemi, lonAbs, resolutionM), nil
}

// ParseTileFilename is the inverse of TileFilename (§8 property 2).
func ParseTileFilename(name string) (lat, lon, resolutionM int, err error) {
	var latHemi, lonHemi byte
	var latAbs, lonAbs, res int

	n, scanErr := fmt.Sscanf(name, "%c%02d_%c%03d_%dm.tif", &latHemi, &latAbs, &lonHemi, &lonAbs, &res)
	if scanErr != nil || n != 5 {
		return 0, 0, 0, fmt.Errorf("tilegeom: malformed tile filename %q", name)
	}

	switch latHemi {
	case 'N':
		lat = latAbs
	case 'S':
		lat = -latAbs
	default:
		return 0, 0, 0, fmt.Errorf("tilegeom: malformed tile filename %q: bad hemisphere %c", name, latHemi)
	}

	switch lonHemi {
	case 'E':
		lon = lonAbs
	case 'W':
		lon = -lonAbs
	default:
		return 0, 0, 0, fmt.Errorf("tilegeom: malformed tile filename %q: bad hemisphere %c", name, lonHemi)
	}

	return lat, lon, res, nil
}

// VisiblePixelSize computes the width/height/average ground sample
// distance implied by squeezing bounds into targetTotalPixels pixels
// (§4.2). Horizontal distance is measured along the bottom edge
// (south latitude — the longer of the two horizontal edges in the
// northern hemisphere, matching the spec's documented equatorial
// bias), vertical distance along the west edge.
func VisiblePixelSize(b region.Bounds, targetTotalPixels int) (widthMPP, heightMPP, avgMPP float64, err error) {
	if targetTotalPixels <= 0 {
		return 0, 0, 0, fmt.Errorf("tilegeom: targetTotalPixels must be positive, got %d", targetTotalPixels)
	}
	if !b.Valid() {
		return 0, 0, 0, fmt.Errorf("tilegeom: degenerate bounds %+v", b)
	}

	horizontalMeters := equirectangularDistance(b.South, b.West, b.South, b.East)
	verticalMeters := equirectangularDistance(b.South, b.West, b.North, b.West)

	baseDim := math.Sqrt(float64(targetTotalPixels))
	widthMPP = horizontalMeters / baseDim
	heightMPP = verticalMeters / baseDim
	avgMPP = math.Sqrt(widthMPP * heightMPP)

	if !(widthMPP > 0) || !(heightMPP > 0) || math.IsInf(avgMPP, 0) || math.IsNaN(avgMPP) {
		return 0, 0, 0, fmt.Errorf("tilegeom: computed non-positive or non-finite pixel size for bounds %+v", b)
	}

	return widthMPP, heightMPP, avgMPP, nil
}

// equirectangularDistance approximates ground distance in meters
// between two lon/lat points using the equirectangular projection
// formula, which is adequate at the degree-cell scale this package
// operates at and keeps the geometry package free of any external
// dependency.
func equirectangularDistance(lat1, lon1, lat2, lon2 float64) float64 {
	avgLatRad := (lat1 + lat2) / 2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	x := dLon * math.Cos(avgLatRad)
	y := dLat
	return math.Sqrt(x*x+y*y) * earthRadiusMeters
}

// EstimateTileBytes gives a user-facing estimate of a tile's file
// size, scaling with cos(lat) (narrower longitude extent near the
// poles) and the inverse square of resolution (finer resolution, more
// pixels). It is never used for correctness decisions (§4.2).
func EstimateTileBytes(lat, resolutionM int) int64 {
	const baseBytesAt30mEquator = 25 * 1024 * 1024 // ~25MB for a 30m SRTM 1x1deg cell at the equator

	latRad := float64(lat) * math.Pi / 180
	cosLat := math.Cos(latRad)
	if cosLat < 0.01 {
		cosLat = 0.01 // clamp near poles to avoid a near-zero estimate
	}

	resRatio := 30.0 / float64(resolutionM)
	estimate := float64(baseBytesAt30mEquator) * cosLat * resRatio * resRatio
	return int64(estimate)
}
