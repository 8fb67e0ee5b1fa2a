/*
Package region implements the typed region registry (§4.1). It is a
pure, static catalogue of regions backed by an in-memory table built at
load time by NewRegistry; nothing here performs I/O.

The teacher's Repository (repository.go) is a flat map built once at
startup and never mutated afterwards — the same shape is used here,
generalized from "tile metadata keyed by UTM hash" to "region keyed by
stable slug".
*/
package region

import (
	"fmt"
	"sort"
)

// Type is the exhaustive set of region classifications. Every branch
// on Type must handle all three variants; an unrecognized value is a
// defect, never silently treated as "international" (§4.1).
type Type int

const (
	// TypeUnspecified is the zero value and is never valid on a
	// constructed Region — its presence signals a caller forgot to
	// set Type, and Validate rejects it.
	TypeUnspecified Type = iota
	TypeUSAState
	TypeCountry
	TypeArea
)

// String renders the enum's string value, used verbatim in the
// manifest (§3: "region_type (string value of enum)").
func (t Type) String() string {
	switch t {
	case TypeUSAState:
		return "USA_STATE"
	case TypeCountry:
		return "COUNTRY"
	case TypeArea:
		return "AREA"
	default:
		return "UNSPECIFIED"
	}
}

// Bounds is a WGS84 degree bounding box, west < east, south < north.
// Field tags match the export artifact's bounds object (§3: "north/
// south/east/west in WGS84 degrees").
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Valid reports whether the bounds are non-degenerate.
func (b Bounds) Valid() bool {
	return b.West < b.East && b.South < b.North
}

// Region is an immutable catalogue entry. Once added by NewRegistry it is
// never mutated; the registry hands out copies (Region is a value
// type, not a pointer) so callers cannot corrupt shared state.
type Region struct {
	ID            string
	DisplayName   string
	Bounds        Bounds
	RegionType    Type
	Country       string
	ClipBoundary  bool
	BoundaryAdmin string // admin-1 subdivision name for USA_STATE, admin-0 name for a clip_boundary COUNTRY
}

// Validate enforces the invariants of §3: bounds non-degenerate,
// USA_STATE implies ClipBoundary and a resolvable polygon reference,
// COUNTRY with ClipBoundary implies the same. Type outside the three
// known variants is rejected (§8 property 10).
func (r Region) Validate() error {
	if !r.Bounds.Valid() {
		return fmt.Errorf("region %q: degenerate bounds %+v", r.ID, r.Bounds)
	}
	switch r.RegionType {
	case TypeUSAState:
		if !r.ClipBoundary {
			return fmt.Errorf("region %q: USA_STATE requires ClipBoundary=true", r.ID)
		}
		if r.Country != "United States of America" {
			return fmt.Errorf("region %q: USA_STATE requires Country=\"United States of America\", got %q", r.ID, r.Country)
		}
		if r.BoundaryAdmin == "" {
			return fmt.Errorf("region %q: USA_STATE requires a resolvable admin-1 boundary reference", r.ID)
		}
	case TypeCountry:
		if r.Country == "" {
			return fmt.Errorf("region %q: COUNTRY requires a non-empty Country", r.ID)
		}
		if r.ClipBoundary && r.BoundaryAdmin == "" {
			return fmt.Errorf("region %q: COUNTRY with ClipBoundary=true requires a resolvable admin-0 boundary reference", r.ID)
		}
	case TypeArea:
		// Country is optional for AREA.
	default:
		return fmt.Errorf("region %q: unknown region type %v", r.ID, int(r.RegionType))
	}
	if r.ID == "" {
		return fmt.Errorf("region has empty ID")
	}
	return nil
}

// NotFoundError is returned by Get when no region matches id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("region not found: %q", e.ID)
}

// Registry is the static, readonly-after-build catalogue of regions.
type Registry struct {
	byID map[string]Region
}

// NewRegistry builds a registry from a slice of regions, validating
// each. Duplicate IDs are a build-time error — the registry has no
// notion of "primary/secondary" entries the way the teacher's tile
// repository does for overlapping state tiles, because regions never
// legitimately overlap by ID.
func NewRegistry(regions []Region) (*Registry, error) {
	byID := make(map[string]Region, len(regions))
	for _, r := range regions {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("building region registry: %w", err)
		}
		if _, exists := byID[r.ID]; exists {
			return nil, fmt.Errorf("building region registry: duplicate region id %q", r.ID)
		}
		byID[r.ID] = r
	}
	return &Registry{byID: byID}, nil
}

// Get looks up a region by id.
func (reg *Registry) Get(id string) (Region, error) {
	r, ok := reg.byID[id]
	if !ok {
		return Region{}, &NotFoundError{ID: id}
	}
	return r, nil
}

// List returns regions matching the given filter, or every region if
// filter is nil. Order is by ID for determinism.
func (reg *Registry) List(filter *Type) []Region {
	out := make([]Region, 0, len(reg.byID))
	for _, r := range reg.byID {
		if filter != nil && r.RegionType != *filter {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Iter returns every region, ordered by ID.
func (reg *Registry) Iter() []Region {
	return reg.List(nil)
}
