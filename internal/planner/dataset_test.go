package planner

import (
	"testing"

	"github.com/tockloth/region-elevation-engine/internal/region"
)

func TestCatalogueHasNativeResolutionForEveryID(t *testing.T) {
	cat := Catalogue()
	ids := []DatasetID{USA3DEP10m, SRTM30m, SRTM90m, Copernicus30m, Copernicus90m, AW3D30m, GMTED250m, GMTED500m, GMTED1000m}
	for _, id := range ids {
		ds, ok := cat[id]
		if !ok {
			t.Errorf("catalogue missing dataset %v", id)
			continue
		}
		if ds.NativeResolutionM <= 0 {
			t.Errorf("dataset %v has non-positive native resolution %v", id, ds.NativeResolutionM)
		}
	}
}

func TestSRTMLatBandExcludesHighLatitudes(t *testing.T) {
	cat := Catalogue()
	srtm := cat[SRTM30m]
	if srtm.LatBand.MaxLat >= 61 {
		t.Errorf("SRTM_30m LatBand.MaxLat = %v, expected < 61 (SRTM does not cover above ~60N)", srtm.LatBand.MaxLat)
	}
	if srtm.LatBand.MinLat <= -57 {
		t.Errorf("SRTM_30m LatBand.MinLat = %v, expected > -57 (SRTM does not cover below ~56S)", srtm.LatBand.MinLat)
	}
}

func TestUSA3DEPIsUSAOnly(t *testing.T) {
	cat := Catalogue()
	if !cat[USA3DEP10m].USAOnly {
		t.Error("USA_3DEP_10m must be marked USAOnly")
	}
}

func TestCandidatesForUSAStateListsUSA3DEPFirst(t *testing.T) {
	ids := candidatesFor(region.TypeUSAState, false)
	if len(ids) == 0 || ids[0] != USA3DEP10m {
		t.Errorf("expected USA_3DEP_10m first for USA_STATE candidates, got %v", ids)
	}
}

func TestCandidatesForUnrecognizedTypeReturnsNil(t *testing.T) {
	if ids := candidatesFor(region.Type(99), false); ids != nil {
		t.Errorf("expected nil candidates for unrecognized region type, got %v", ids)
	}
}
