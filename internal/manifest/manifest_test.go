package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tockloth/region-elevation-engine/internal/engineerr"
	"github.com/tockloth/region-elevation-engine/internal/region"
)

func TestUpdateCreatesManifestOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	entry := Entry{
		RegionID:      "us-oh",
		Filename:      "us-oh.json.gz",
		DisplayName:   "Ohio",
		RegionType:    "USA_STATE",
		Bounds:        region.Bounds{West: -84.82, South: 38.40, East: -80.52, North: 41.98},
		Source:        "SRTM_30m",
		Width:         1024,
		Height:        768,
		GeneratedAt:   time.Now(),
		FormatVersion: CurrentFormatVersion,
	}

	if err := Update(path, entry); err != nil {
		t.Fatalf("Update: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Entries["us-oh"].Source != "SRTM_30m" {
		t.Errorf("entry not persisted: %+v", m.Entries)
	}
	if m.Entries["us-oh"].DisplayName != "Ohio" {
		t.Errorf("display_name not persisted: %+v", m.Entries)
	}
}

func TestUpdateIsAtomicAcrossMultipleRegions(t *testing.T) {
	// §8 property 9: updating region B must not clobber region A's
	// existing entry (read-modify-write, not overwrite-whole-file).
	path := filepath.Join(t.TempDir(), "manifest.json")

	if err := Update(path, Entry{RegionID: "us-oh", Source: "SRTM_30m", FormatVersion: CurrentFormatVersion}); err != nil {
		t.Fatalf("Update(us-oh): %v", err)
	}
	if err := Update(path, Entry{RegionID: "br", Source: "SRTM_90m", FormatVersion: CurrentFormatVersion}); err != nil {
		t.Fatalf("Update(br): %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(m.Entries), m.Entries)
	}
	if m.Entries["us-oh"].Source != "SRTM_30m" || m.Entries["br"].Source != "SRTM_90m" {
		t.Errorf("entries corrupted: %+v", m.Entries)
	}
}

func TestLoadRejectsFormatVersionMismatch(t *testing.T) {
	// §8 scenario S6.
	path := filepath.Join(t.TempDir(), "manifest.json")
	stale := map[string]any{
		"format_version": CurrentFormatVersion + 1,
		"entries":        map[string]any{},
	}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("setup WriteFile: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected FormatVersionMismatch error")
	}
	if !engineerr.New(engineerr.KindFormatVersionMismatch, "", "", nil).Is(err) {
		t.Errorf("error %v is not a FormatVersionMismatch", err)
	}
}

func TestUpdateRejectsEntryFormatVersionMismatch(t *testing.T) {
	// §8 scenario S6: "manifest says format_version=2, artifact written
	// with version=3 — manifest write fails with FormatVersionMismatch,
	// no partial update."
	path := filepath.Join(t.TempDir(), "manifest.json")

	if err := Update(path, Entry{RegionID: "us-oh", Source: "SRTM_30m", FormatVersion: CurrentFormatVersion}); err != nil {
		t.Fatalf("seed Update: %v", err)
	}

	err := Update(path, Entry{RegionID: "br", Source: "SRTM_90m", FormatVersion: CurrentFormatVersion + 1})
	if err == nil {
		t.Fatal("expected FormatVersionMismatch error for a mismatched entry version")
	}
	if !engineerr.New(engineerr.KindFormatVersionMismatch, "", "", nil).Is(err) {
		t.Errorf("error %v is not a FormatVersionMismatch", err)
	}

	m, loadErr := Load(path)
	if loadErr != nil {
		t.Fatalf("Load: %v", loadErr)
	}
	if _, exists := m.Entries["br"]; exists {
		t.Error("rejected entry must not have been partially written to the manifest")
	}
	if len(m.Entries) != 1 {
		t.Errorf("got %d entries, want 1 (only the seeded entry)", len(m.Entries))
	}
}

func TestLoadNoManifestYieldsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Entries) != 0 {
		t.Errorf("expected empty manifest, got %+v", m.Entries)
	}
}
