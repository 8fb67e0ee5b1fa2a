/*
Package manifest implements the region manifest update of §4.5.6: a
small JSON side-record, per region, tracking the most recent export's
dataset, quality, bounds, pixel dimensions, and artifact path. Updates
are read-modify-write under an atomic rename, the same staging-then-
rename discipline tilepool.DiskStore.Put uses for tile writes (itself
grounded in the teacher's atomic-output idiom) — a reader never
observes a partially-written manifest.
*/
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tockloth/region-elevation-engine/internal/engineerr"
	"github.com/tockloth/region-elevation-engine/internal/region"
)

// CurrentFormatVersion is the manifest schema version this build
// writes and expects to read (§4.5.6: "format-version enforcement").
// It must track pipeline.ArtifactVersion — both are the same "integer
// ≥ 2" version space (§3).
const CurrentFormatVersion = 2

// Entry records one region's most recent successful export, matching
// §3's manifest data model: "region_id -> {filename, display_name,
// region_type, bounds, source, pixel dimensions, generated timestamp,
// format version}".
type Entry struct {
	RegionID      string        `json:"region_id"`
	Filename      string        `json:"filename"`
	DisplayName   string        `json:"display_name"`
	RegionType    string        `json:"region_type"`
	Bounds        region.Bounds `json:"bounds"`
	Source        string        `json:"source"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	GeneratedAt   time.Time     `json:"generated_at"`
	FormatVersion int           `json:"format_version"`

	// Quality is a supplemented metadata field (SPEC_FULL.md
	// SUPPLEMENTED FEATURES), additive to §3's literal key list.
	Quality string `json:"quality,omitempty"`
}

// Manifest is the on-disk record for all regions tracked by one
// engine instance.
type Manifest struct {
	FormatVersion int              `json:"format_version"`
	Entries       map[string]Entry `json:"entries"`
}

// Load reads the manifest at path, returning a fresh empty Manifest if
// the file does not yet exist (first run, §8 scenario S6 precondition).
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Manifest{FormatVersion: CurrentFormatVersion, Entries: make(map[string]Entry)}, nil
	}
	if err != nil {
		return nil, engineerr.New(engineerr.KindStorageError, "manifest.Load", "", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, engineerr.New(engineerr.KindStorageError, "manifest.Load", "", fmt.Errorf("unmarshal manifest: %w", err))
	}

	if m.FormatVersion != CurrentFormatVersion {
		return nil, engineerr.New(engineerr.KindFormatVersionMismatch, "manifest.Load", "",
			fmt.Errorf("manifest format_version %d does not match expected %d", m.FormatVersion, CurrentFormatVersion))
	}

	if m.Entries == nil {
		m.Entries = make(map[string]Entry)
	}
	return &m, nil
}

// Update applies entry to the manifest at path via a full
// read-modify-write-atomic-rename cycle, so concurrent updates from
// distinct regions on the same host never interleave a torn write
// (§9 Open Question, decided: single-host only; cross-host manifest
// locking is out of scope, same decision recorded in SPEC_FULL.md).
//
// §8 scenario S6: an entry whose own FormatVersion disagrees with the
// manifest's declared format_version is rejected outright — no
// partial update reaches disk.
func Update(path string, entry Entry) error {
	m, err := Load(path)
	if err != nil {
		return err
	}

	if entry.FormatVersion != m.FormatVersion {
		return engineerr.New(engineerr.KindFormatVersionMismatch, "manifest.Update", entry.RegionID,
			fmt.Errorf("entry format_version %d does not match manifest format_version %d", entry.FormatVersion, m.FormatVersion))
	}

	m.Entries[entry.RegionID] = entry

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return engineerr.New(engineerr.KindStorageError, "manifest.Update", "", err)
	}

	staging := path + ".staging-" + uuid.NewString()
	if err := os.WriteFile(staging, data, 0o644); err != nil {
		return engineerr.New(engineerr.KindStorageError, "manifest.Update", "", err)
	}
	if err := os.Rename(staging, path); err != nil {
		_ = os.Remove(staging)
		return engineerr.New(engineerr.KindStorageError, "manifest.Update", "", fmt.Errorf("atomic rename: %w", err))
	}
	return nil
}
