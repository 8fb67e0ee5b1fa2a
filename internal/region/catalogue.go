package region

// Builtin returns the static set of regions used by the example
// deployments and by the end-to-end scenarios of §8 (S1 Ohio, S2
// Brazil, S3 Iceland). A real deployment loads its own table, most
// likely from the same kind of YAML/JSON file the teacher loads its
// TileRepositories list from; Builtin exists so the engine has a
// working catalogue out of the box and so tests have fixed data.
func Builtin() []Region {
	return []Region{
		{
			ID:            "us-oh",
			DisplayName:   "Ohio",
			Bounds:        Bounds{West: -84.82, South: 38.40, East: -80.52, North: 41.98},
			RegionType:    TypeUSAState,
			Country:       "United States of America",
			ClipBoundary:  true,
			BoundaryAdmin: "Ohio",
		},
		{
			ID:            "br",
			DisplayName:   "Brazil",
			Bounds:        Bounds{West: -74, South: -34, East: -34, North: 5},
			RegionType:    TypeCountry,
			Country:       "Brazil",
			ClipBoundary:  true,
			BoundaryAdmin: "Brazil",
		},
		{
			ID:           "is",
			DisplayName:  "Iceland",
			Bounds:       Bounds{West: -25, South: 63, East: -13, North: 67},
			RegionType:   TypeArea,
			Country:      "Iceland",
			ClipBoundary: false,
		},
	}
}

// MustBuiltinRegistry builds a registry over Builtin, panicking on
// validation error — intended for tests and cmd/elevationctl's default
// wiring, never for request-path code.
func MustBuiltinRegistry() *Registry {
	reg, err := NewRegistry(Builtin())
	if err != nil {
		panic(err)
	}
	return reg
}
