package entity

import "fmt"

// indexKey is the (message-name, instance) composite key. Descriptors
// with source_instance == nil match any instance and are kept in a
// separate wildcard bucket rather than duplicated across every instance.
type indexKey struct {
	message  string
	instance uint8
}

// Index is the constant-time (message-name, instance) → []Descriptor
// lookup structure built once at load time. It never mutates
// after Build returns, so reads require no locking.
type Index struct {
	byKeyAndInstance map[indexKey][]Descriptor
	wildcard         map[string][]Descriptor // source_instance == nil, keyed by message
	byEntityID       map[string]Descriptor
}

// Build validates entity_id uniqueness and indexes descriptors for
// constant-time lookup by (message, instance).
func Build(descs []Descriptor) (*Index, error) {
	idx := &Index{
		byKeyAndInstance: make(map[indexKey][]Descriptor),
		wildcard:         make(map[string][]Descriptor),
		byEntityID:       make(map[string]Descriptor, len(descs)),
	}
	for _, d := range descs {
		if _, dup := idx.byEntityID[d.EntityID]; dup {
			return nil, fmt.Errorf("duplicate entity_id %q", d.EntityID)
		}
		idx.byEntityID[d.EntityID] = d

		if d.SourceInstance == nil {
			idx.wildcard[d.SourceMessage] = append(idx.wildcard[d.SourceMessage], d)
			continue
		}
		key := indexKey{message: d.SourceMessage, instance: *d.SourceInstance}
		idx.byKeyAndInstance[key] = append(idx.byKeyAndInstance[key], d)
	}
	return idx, nil
}

// Lookup returns every descriptor whose (source_message, source_instance)
// matches the given message name and instance — exact-instance matches
// plus any wildcard (any-instance) descriptors for that message.
func (idx *Index) Lookup(message string, instance uint8) []Descriptor {
	key := indexKey{message: message, instance: instance}
	var out []Descriptor
	out = append(out, idx.byKeyAndInstance[key]...)
	out = append(out, idx.wildcard[message]...)
	return out
}

// ByEntityID resolves a single entity by id, used by the command
// validator's Stage 2.
func (idx *Index) ByEntityID(entityID string) (Descriptor, bool) {
	d, ok := idx.byEntityID[entityID]
	return d, ok
}

// All returns every descriptor in the index, used by discovery
// announcement at startup.
func (idx *Index) All() []Descriptor {
	out := make([]Descriptor, 0, len(idx.byEntityID))
	for _, d := range idx.byEntityID {
		out = append(out, d)
	}
	return out
}
