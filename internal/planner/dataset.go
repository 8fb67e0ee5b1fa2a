package planner

import "github.com/tockloth/region-elevation-engine/internal/region"

// DatasetID enumerates the known elevation dataset identifiers (§3).
type DatasetID string

const (
	USA3DEP10m      DatasetID = "USA_3DEP_10m"
	SRTM30m         DatasetID = "SRTM_30m"
	SRTM90m         DatasetID = "SRTM_90m"
	Copernicus30m   DatasetID = "Copernicus_30m"
	Copernicus90m   DatasetID = "Copernicus_90m"
	AW3D30m         DatasetID = "AW3D30_30m"
	GMTED250m       DatasetID = "GMTED_250m"
	GMTED500m       DatasetID = "GMTED_500m"
	GMTED1000m      DatasetID = "GMTED_1000m"
)

// LatBand is an inclusive latitude coverage band in degrees.
type LatBand struct {
	MinLat float64
	MaxLat float64
}

// Covers reports whether the band fully contains b (§4.3 step 3:
// "retain only datasets whose full latitude band contains the
// region").
func (band LatBand) Covers(b region.Bounds) bool {
	return b.South >= band.MinLat && b.North <= band.MaxLat
}

// Dataset describes a source dataset's static metadata (§3).
type Dataset struct {
	ID                DatasetID
	NativeResolutionM float64 // meters/pixel at the equator
	LatBand           LatBand
	ProviderDatasetDir string // tile storage directory key, e.g. "srtm30"
	RequiresCredential bool
	USAOnly            bool
}

// Catalogue is the static set of datasets the planner chooses from.
// GMTED entries are only considered when EnableGMTED is set (§6.5).
func Catalogue() map[DatasetID]Dataset {
	global := LatBand{MinLat: -90, MaxLat: 90}
	srtmBand := LatBand{MinLat: -56, MaxLat: 60}

	return map[DatasetID]Dataset{
		USA3DEP10m: {
			ID: USA3DEP10m, NativeResolutionM: 10, LatBand: global,
			ProviderDatasetDir: "usa3dep10m", USAOnly: true,
		},
		SRTM30m: {
			ID: SRTM30m, NativeResolutionM: 30, LatBand: srtmBand,
			ProviderDatasetDir: "srtm30m",
		},
		SRTM90m: {
			ID: SRTM90m, NativeResolutionM: 90, LatBand: srtmBand,
			ProviderDatasetDir: "srtm90m",
		},
		Copernicus30m: {
			ID: Copernicus30m, NativeResolutionM: 30, LatBand: global,
			ProviderDatasetDir: "copernicus30m", RequiresCredential: true,
		},
		Copernicus90m: {
			ID: Copernicus90m, NativeResolutionM: 90, LatBand: global,
			ProviderDatasetDir: "copernicus90m", RequiresCredential: true,
		},
		AW3D30m: {
			ID: AW3D30m, NativeResolutionM: 30, LatBand: global,
			ProviderDatasetDir: "aw3d30m",
		},
		GMTED250m: {
			ID: GMTED250m, NativeResolutionM: 250, LatBand: global,
			ProviderDatasetDir: "gmted250m",
		},
		GMTED500m: {
			ID: GMTED500m, NativeResolutionM: 500, LatBand: global,
			ProviderDatasetDir: "gmted500m",
		},
		GMTED1000m: {
			ID: GMTED1000m, NativeResolutionM: 1000, LatBand: global,
			ProviderDatasetDir: "gmted1000m",
		},
	}
}

// candidatesFor returns the ordered candidate dataset IDs for a region
// type, per §4.3 step 4.
func candidatesFor(t region.Type, enableGMTED bool) []DatasetID {
	switch t {
	case region.TypeUSAState:
		return []DatasetID{USA3DEP10m, SRTM30m, SRTM90m}
	case region.TypeCountry, region.TypeArea:
		ids := []DatasetID{SRTM30m, Copernicus30m, SRTM90m, Copernicus90m}
		if enableGMTED {
			ids = append(ids, GMTED250m, GMTED500m, GMTED1000m)
		}
		return ids
	default:
		// Exhaustive switch per the region-type contract (§4.1): an
		// unrecognized type has no candidates rather than silently
		// falling back to an "international" default.
		return nil
	}
}
