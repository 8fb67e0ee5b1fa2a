package pipeline

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tockloth/region-elevation-engine/internal/planner"
	"github.com/tockloth/region-elevation-engine/internal/region"
)

func TestTargetDimensionsPreservesAspectAndBudget(t *testing.T) {
	// §8 property 7: aspect preservation within a pixel budget.
	width, height := TargetDimensions(4000, 2000, 2_000_000)
	if width*height > 2_000_000 {
		t.Errorf("width*height = %d exceeds budget 2_000_000", width*height)
	}
	gotRatio := float64(width) / float64(height)
	wantRatio := 4000.0 / 2000.0
	if diff := gotRatio - wantRatio; diff > 0.01 || diff < -0.01 {
		t.Errorf("aspect ratio %v, want %v", gotRatio, wantRatio)
	}
}

func TestTargetDimensionsNoopBelowBudget(t *testing.T) {
	width, height := TargetDimensions(100, 100, 1_000_000)
	if width != 100 || height != 100 {
		t.Errorf("got (%d,%d), want (100,100) — source already under budget", width, height)
	}
}

func TestChooseProjectionPolarAbove80(t *testing.T) {
	north := region.Bounds{West: -10, South: 82, East: 10, North: 89}
	if ChooseProjection(north) != ProjectionPolarStereoNorth {
		t.Errorf("expected north polar stereographic for bounds %+v", north)
	}

	south := region.Bounds{West: -10, South: -89, East: 10, North: -85}
	if ChooseProjection(south) != ProjectionPolarStereoSouth {
		t.Errorf("expected south polar stereographic for bounds %+v", south)
	}

	mid := region.Bounds{West: -84.82, South: 38.40, East: -80.52, North: 41.98}
	if ChooseProjection(mid) != ProjectionWebMercator {
		t.Errorf("expected Web Mercator for mid-latitude bounds %+v", mid)
	}
}

func TestResamplingForChoosesAverageWhenDownsampling(t *testing.T) {
	if got := ResamplingFor(30, 90); got != "average" {
		t.Errorf("ResamplingFor(30,90) = %q, want average", got)
	}
	if got := ResamplingFor(30, 30); got != "bilinear" {
		t.Errorf("ResamplingFor(30,30) = %q, want bilinear", got)
	}
}

func TestExportGzipJSONRoundTrip(t *testing.T) {
	artifact := &Artifact{
		Version:     ArtifactVersion,
		Exported:    time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
		Region:      "Ohio",
		RegionID:    "us-oh",
		Source:      planner.SRTM30m,
		Quality:     planner.QualityNative,
		ResolutionM: 30,
		Width:       2,
		Height:      2,
		Bounds:      region.Bounds{West: -85, South: 38, East: -80, North: 42},
		NoData:      NoDataSentinel,
		Elevation:   [][]float64{{1, 2}, {NoDataSentinel, 4}},
		Min:         1,
		Max:         4,
		Mean:        2.33,
	}

	dest := filepath.Join(t.TempDir(), "artifact.json.gz")
	if err := ExportGzipJSON(artifact, dest); err != nil {
		t.Fatalf("ExportGzipJSON: %v", err)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gr.Close()

	var got Artifact
	if err := json.NewDecoder(gr).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Version != artifact.Version || got.RegionID != artifact.RegionID || got.NoData != NoDataSentinel {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, artifact)
	}
	if got.Elevation[1][0] != NoDataSentinel {
		t.Errorf("no-data sentinel not preserved through JSON round trip: got %v", got.Elevation[1][0])
	}
	if got.Version < 2 {
		t.Errorf("artifact version %d must be >= 2 per the export schema", got.Version)
	}
}
