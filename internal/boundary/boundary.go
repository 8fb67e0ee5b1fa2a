/*
Package boundary represents the region boundary polygons used for
the clip step of §4.5.1 ("mask(raster, boundary_polygon, crop=True)").
Boundaries are stored as GeoJSON and parsed with
github.com/paulmach/orb/geojson, the geometry library the example
pack's tile-service code (mumuon-tile-service) already depends on —
the only part of the black-box mask/reproject contract this engine
implements directly rather than delegating to gdalwarp is "does this
bounding box plausibly intersect the boundary", a cheap pre-filter
before the expensive cutline pass.
*/
package boundary

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/tockloth/region-elevation-engine/internal/engineerr"
	"github.com/tockloth/region-elevation-engine/internal/region"
)

// Polygon wraps a region's boundary geometry.
type Polygon struct {
	Geometry orb.Geometry
	raw      *geojson.FeatureCollection
}

// Load reads a region's boundary from a GeoJSON file; only the first
// feature's geometry becomes Polygon.Geometry.
func Load(path string) (*Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engineerr.New(engineerr.KindBoundaryNotFound, "boundary.Load", "", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		// Some boundary exports are a single Feature, not a collection.
		feature, featErr := geojson.UnmarshalFeature(data)
		if featErr != nil {
			return nil, engineerr.New(engineerr.KindBoundaryNotFound, "boundary.Load", "", fmt.Errorf("not a valid GeoJSON feature or collection: %w", err))
		}
		fc = geojson.NewFeatureCollection()
		fc.Append(feature)
	}

	if len(fc.Features) == 0 {
		return nil, engineerr.New(engineerr.KindBoundaryNotFound, "boundary.Load", "", fmt.Errorf("boundary file %s contains no features", path))
	}

	return &Polygon{Geometry: fc.Features[0].Geometry, raw: fc}, nil
}

// IntersectsBounds is a cheap bounding-box pre-filter: reports whether
// b could plausibly intersect the boundary before the costlier
// gdalwarp cutline pass runs.
func (p *Polygon) IntersectsBounds(b region.Bounds) bool {
	geomBound := p.Geometry.Bound()
	return !(b.East < geomBound.Min[0] || b.West > geomBound.Max[0] ||
		b.North < geomBound.Min[1] || b.South > geomBound.Max[1])
}

// Area returns the boundary polygon's planar area in square degrees,
// used only as a sanity check that the boundary file was parsed
// correctly (a degenerate polygon has ~zero area).
func (p *Polygon) Area() float64 {
	switch g := p.Geometry.(type) {
	case orb.Polygon:
		return planar.Area(g)
	case orb.MultiPolygon:
		var total float64
		for _, poly := range g {
			total += planar.Area(poly)
		}
		return total
	default:
		return 0
	}
}

// WriteCutlineGeoJSON writes the boundary back out as a standalone
// GeoJSON file suitable for gdalwarp's -cutline option.
func (p *Polygon) WriteCutlineGeoJSON(path string) error {
	data, err := json.Marshal(p.raw)
	if err != nil {
		return engineerr.New(engineerr.KindBoundaryNotFound, "boundary.WriteCutlineGeoJSON", "", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return engineerr.New(engineerr.KindStorageError, "boundary.WriteCutlineGeoJSON", "", err)
	}
	return nil
}
