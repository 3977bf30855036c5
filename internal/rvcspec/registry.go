package rvcspec

// Registry is the loaded, read-only index of RV-C DGN definitions and
// named enumerations. Once constructed by Load it never mutates, so
// lookups require no locking.
type Registry struct {
	byDGN map[uint32]DgnDef
	enums map[string]EnumDef
	// byName maps a DGN's declared Name to its definition, built once at
	// load time and served by LookupByName. The entity projector does not
	// use it; it matches on the decoded message's DGNName.
	byName map[string]DgnDef
}

// LookupByDGN returns the definition for dgn, or ok=false if no such DGN
// was loaded.
func (r *Registry) LookupByDGN(dgn uint32) (DgnDef, bool) {
	d, ok := r.byDGN[dgn]
	return d, ok
}

// LookupByName resolves a DGN by its declared name, so mapping files
// can reference messages by name instead of embedding DGN numerics.
func (r *Registry) LookupByName(name string) (DgnDef, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// LookupEnum returns the named enumeration, or ok=false if undefined.
func (r *Registry) LookupEnum(name string) (EnumDef, bool) {
	e, ok := r.enums[name]
	return e, ok
}

// Enums exposes the full enum table, used by Decode callers that need to
// resolve several signals against the same registry.
func (r *Registry) Enums() map[string]EnumDef {
	return r.enums
}

// newRegistry validates and indexes a raw schema document. It is the sole
// place the load-time invariants are enforced: unique DGNs, no signal
// straddling byte 8, and every enum lookup resolving to a defined enum.
func newRegistry(dgns []DgnDef, enums []EnumDef) (*Registry, error) {
	enumIndex := make(map[string]EnumDef, len(enums))
	for _, e := range enums {
		if _, dup := enumIndex[e.Name]; dup {
			return nil, newSpecLoadError("duplicate_enum", "enum %q defined more than once", e.Name)
		}
		enumIndex[e.Name] = e
	}

	byDGN := make(map[uint32]DgnDef, len(dgns))
	byName := make(map[string]DgnDef, len(dgns))
	for _, d := range dgns {
		if _, dup := byDGN[d.DGN]; dup {
			return nil, newSpecLoadError("duplicate_dgn", "DGN 0x%05X defined more than once", d.DGN)
		}
		for _, s := range d.Signals {
			if s.ByteOffset >= 8 {
				return nil, newSpecLoadError("signal_out_of_range",
					"DGN 0x%05X signal %q starts at byte %d, past the 8-byte payload", d.DGN, s.Name, s.ByteOffset)
			}
			endByte := (int(s.ByteOffset)*8 + int(s.BitOffset) + int(s.BitLength) - 1) / 8
			if endByte >= 8 {
				return nil, newSpecLoadError("signal_straddles_payload",
					"DGN 0x%05X signal %q (offset %d.%d, length %d) straddles byte 8",
					d.DGN, s.Name, s.ByteOffset, s.BitOffset, s.BitLength)
			}
			if s.Kind == KindEnum {
				if _, ok := enumIndex[s.Lookup]; !ok {
					return nil, newSpecLoadError("undefined_enum",
						"DGN 0x%05X signal %q references undefined enum %q", d.DGN, s.Name, s.Lookup)
				}
			}
		}
		byDGN[d.DGN] = d
		byName[d.Name] = d
	}

	return &Registry{byDGN: byDGN, enums: enumIndex, byName: byName}, nil
}
