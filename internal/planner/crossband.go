package planner

import "github.com/tockloth/region-elevation-engine/internal/region"

// crossBandSplitLat is the latitude at which SRTM's northern coverage
// ends (§4.3 step 3; SRTM's LatBand.MaxLat in Catalogue). A region
// straddling it cannot be served by a single dataset under the
// "dataset's full latitude band contains the region" rule, so it must
// be split, planned per-band, and mosaicked after reprojection (§9
// Open Question, decided — see SPEC_FULL.md SUPPLEMENTED FEATURES
// item 1 and DESIGN.md).
const crossBandSplitLat = 60.0

// SubPlan is one latitude-banded sub-region's planning result.
type SubPlan struct {
	Bounds region.Bounds
	Plan   Plan
}

// NeedsCrossBandSplit reports whether bounds straddle the SRTM
// coverage edge, requiring PlanCrossBand instead of Plan.
func NeedsCrossBandSplit(b region.Bounds) bool {
	return b.South < crossBandSplitLat && b.North > crossBandSplitLat
}

// PlanCrossBand splits a region straddling 60°N into a southern
// sub-request (planned against the full catalogue, typically
// resolving to an SRTM dataset) and a northern sub-request (planned
// against the catalogue filtered to datasets whose LatBand covers
// above 60°N, typically Copernicus) — each independently planned under
// the same Nyquist rule and pixel budget as Plan. If bounds do not
// straddle the edge, it returns the single ordinary Plan result.
//
// Both sub-bands reproject to a shared metric CRS before mosaicking:
// the decision is EPSG:3857 for both, since 60°N sits well inside
// pipeline.ChooseProjection's 80° polar-stereographic threshold, so
// neither sub-band needs the polar projection on its own and picking
// one shared CRS up front avoids a second reprojection pass after the
// mosaic.
func PlanCrossBand(b region.Bounds, regionType region.Type, opts Options) ([]SubPlan, error) {
	if !NeedsCrossBandSplit(b) {
		p, err := Plan(b, regionType, opts)
		if err != nil {
			return nil, err
		}
		return []SubPlan{{Bounds: b, Plan: p}}, nil
	}

	south := region.Bounds{West: b.West, South: b.South, East: b.East, North: crossBandSplitLat}
	north := region.Bounds{West: b.West, South: crossBandSplitLat, East: b.East, North: b.North}

	southPlan, err := Plan(south, regionType, opts)
	if err != nil {
		return nil, err
	}
	northPlan, err := Plan(north, regionType, opts)
	if err != nil {
		return nil, err
	}

	return []SubPlan{
		{Bounds: south, Plan: southPlan},
		{Bounds: north, Plan: northPlan},
	}, nil
}
