package planner

import (
	"testing"

	"github.com/tockloth/region-elevation-engine/internal/region"
)

func TestNeedsCrossBandSplitDetectsStraddlingRegion(t *testing.T) {
	iceland := region.Bounds{West: -25, South: 55, East: -13, North: 67}
	if !NeedsCrossBandSplit(iceland) {
		t.Error("expected a region straddling 60N to need a cross-band split")
	}

	ohio := region.Bounds{West: -84.82, South: 38.40, East: -80.52, North: 41.98}
	if NeedsCrossBandSplit(ohio) {
		t.Error("did not expect Ohio (entirely south of 60N) to need a cross-band split")
	}
}

func TestPlanCrossBandSplitsIntoTwoBandsAtSixtyNorth(t *testing.T) {
	b := region.Bounds{West: -25, South: 55, East: -13, North: 67}
	opts := Options{TargetTotalPixels: 4_194_304}

	subplans, err := PlanCrossBand(b, region.TypeArea, opts)
	if err != nil {
		t.Fatalf("PlanCrossBand: %v", err)
	}
	if len(subplans) != 2 {
		t.Fatalf("got %d subplans, want 2", len(subplans))
	}
	if subplans[0].Bounds.South != b.South || subplans[0].Bounds.North != crossBandSplitLat {
		t.Errorf("southern band bounds = %+v, want south=%v north=%v", subplans[0].Bounds, b.South, crossBandSplitLat)
	}
	if subplans[1].Bounds.South != crossBandSplitLat || subplans[1].Bounds.North != b.North {
		t.Errorf("northern band bounds = %+v, want south=%v north=%v", subplans[1].Bounds, crossBandSplitLat, b.North)
	}
	if subplans[1].Plan.Dataset.LatBand.MaxLat < b.North {
		t.Errorf("northern band dataset %v does not cover up to %v", subplans[1].Plan.Dataset.ID, b.North)
	}
}

func TestPlanCrossBandIsNoopForNonStraddlingRegion(t *testing.T) {
	ohio := region.Bounds{West: -84.82, South: 38.40, East: -80.52, North: 41.98}
	opts := Options{TargetTotalPixels: 4_194_304}

	subplans, err := PlanCrossBand(ohio, region.TypeUSAState, opts)
	if err != nil {
		t.Fatalf("PlanCrossBand: %v", err)
	}
	if len(subplans) != 1 {
		t.Fatalf("got %d subplans, want 1 for a non-straddling region", len(subplans))
	}
	if subplans[0].Bounds != ohio {
		t.Errorf("subplan bounds = %+v, want unchanged %+v", subplans[0].Bounds, ohio)
	}
}
