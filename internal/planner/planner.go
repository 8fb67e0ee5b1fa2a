/*
Package planner implements the resolution planner (§4.3): given a
region and a pixel budget, apply the Nyquist rule to pick the coarsest
dataset whose native resolution is adequate, generalized from the
teacher's getTileUTM zone-selection logic (a similar "pick the right
concrete resource for this coordinate" decision, there over UTM zones,
here over datasets).
*/
package planner

import (
	"fmt"
	"sort"

	"github.com/tockloth/region-elevation-engine/internal/engineerr"
	"github.com/tockloth/region-elevation-engine/internal/region"
	"github.com/tockloth/region-elevation-engine/internal/tilegeom"
)

// nyquistOversamplingRatio is the minimum oversampling ratio for clean
// aggregation with no aliasing (§4.3 step 2).
const nyquistOversamplingRatio = 2.0

// Quality labels (§9 Open Question, decided: part of the export
// artifact AND the log stream).
type Quality string

const (
	QualityNative       Quality = "native"
	QualityMarginal     Quality = "marginal"
	QualityBelowNyquist Quality = "below_nyquist"
)

// Plan is the planner's decision for one region.
type Plan struct {
	Dataset           Dataset
	VisiblePixelSizeM float64
	RequiredSourceRes float64
	OversamplingRatio float64
	Quality           Quality
}

// Options configures a planning request.
type Options struct {
	TargetTotalPixels int
	EnableGMTED       bool
	// Override, if non-empty, bypasses dataset search but is still
	// checked against latitude coverage (§4.3 step 6).
	Override DatasetID
}

// Plan chooses a dataset and native resolution for bounds under the
// Nyquist rule (§4.3).
func Plan(b region.Bounds, regionType region.Type, opts Options) (Plan, error) {
	if opts.TargetTotalPixels <= 0 {
		return Plan{}, engineerr.New(engineerr.KindConfigurationError, "planner.Plan", "", fmt.Errorf("TargetTotalPixels must be positive"))
	}

	_, _, avgMPP, err := tilegeom.VisiblePixelSize(b, opts.TargetTotalPixels)
	if err != nil {
		return Plan{}, engineerr.New(engineerr.KindConfigurationError, "planner.Plan", "", err)
	}

	requiredSourceRes := avgMPP / nyquistOversamplingRatio
	catalogue := Catalogue()

	if opts.Override != "" {
		ds, ok := catalogue[opts.Override]
		if !ok {
			return Plan{}, engineerr.New(engineerr.KindIncompatibleDataset, "planner.Plan", "", fmt.Errorf("unknown dataset override %q", opts.Override))
		}
		if ds.USAOnly && regionType != region.TypeUSAState {
			return Plan{}, engineerr.New(engineerr.KindIncompatibleDataset, "planner.Plan", "", fmt.Errorf("dataset %q is USA-only, region type is %v", ds.ID, regionType))
		}
		if !ds.LatBand.Covers(b) {
			return Plan{}, engineerr.New(engineerr.KindIncompatibleDataset, "planner.Plan", "", fmt.Errorf("dataset %q does not cover latitude band [%v, %v]", ds.ID, b.South, b.North))
		}
		return buildPlan(ds, avgMPP, requiredSourceRes), nil
	}

	candidateIDs := candidatesFor(regionType, opts.EnableGMTED)
	if candidateIDs == nil {
		return Plan{}, engineerr.New(engineerr.KindNoDatasetCovers, "planner.Plan", "", fmt.Errorf("unrecognized region type %v", regionType))
	}

	var covering []Dataset
	for _, id := range candidateIDs {
		ds, ok := catalogue[id]
		if !ok {
			continue
		}
		if ds.USAOnly && regionType != region.TypeUSAState {
			continue
		}
		if !ds.LatBand.Covers(b) {
			continue
		}
		covering = append(covering, ds)
	}

	if len(covering) == 0 {
		return Plan{}, engineerr.New(engineerr.KindNoDatasetCovers, "planner.Plan", "", fmt.Errorf("no candidate dataset covers bounds %+v for region type %v", b, regionType))
	}

	// Among filtered datasets, pick the one with the largest native
	// resolution <= requiredSourceRes (§4.3 step 5).
	sort.Slice(covering, func(i, j int) bool {
		return covering[i].NativeResolutionM > covering[j].NativeResolutionM
	})

	for _, ds := range covering {
		if ds.NativeResolutionM <= requiredSourceRes {
			return buildPlan(ds, avgMPP, requiredSourceRes), nil
		}
	}

	// None qualifies: pick the finest available (§4.3 step 5 fallback).
	finest := covering[0]
	for _, ds := range covering {
		if ds.NativeResolutionM < finest.NativeResolutionM {
			finest = ds
		}
	}
	return buildPlan(finest, avgMPP, requiredSourceRes), nil
}

func buildPlan(ds Dataset, visiblePixelSizeM, requiredSourceRes float64) Plan {
	oversampling := visiblePixelSizeM / ds.NativeResolutionM
	return Plan{
		Dataset:           ds,
		VisiblePixelSizeM: visiblePixelSizeM,
		RequiredSourceRes: requiredSourceRes,
		OversamplingRatio: oversampling,
		Quality:           classifyQuality(oversampling),
	}
}

// classifyQuality bands the oversampling ratio per §4.3 step 5 and §9:
// native >= 2.0 (clean Nyquist), marginal in [1.3, 2.0), native again
// in (0.8, 1.3), and below_nyquist <= 0.8. Ratios under 2.0 only arise
// via the "no dataset qualifies, use the finest available" fallback,
// since the search path only ever selects datasets with ratio >= 2.0.
func classifyQuality(oversampling float64) Quality {
	switch {
	case oversampling >= nyquistOversamplingRatio:
		return QualityNative
	case oversampling >= 1.3:
		return QualityMarginal
	case oversampling > 0.8:
		return QualityNative
	default:
		return QualityBelowNyquist
	}
}
