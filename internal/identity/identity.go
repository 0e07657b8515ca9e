// Package identity gives each environment one cached wrapper object per
// (model, id): any two lookups for the same record, through any
// interface view, return the same object.
package identity

import "github.com/objectcore/objectcore/internal/token"

type key struct {
	model token.Token
	id    token.RecordID
}

// Resolver builds the wrapper for a (model, id) pair not yet cached. It
// is supplied by the environment, which knows how to look up the
// model's registered factory; the identity map itself stays free of any
// dependency on schema or environment types.
type Resolver func(model token.Token, id token.RecordID) (any, error)

// Map is the per-environment identity cache.
type Map struct {
	entries  map[key]any
	resolve  Resolver
}

// New creates an identity map backed by resolve for cache misses.
func New(resolve Resolver) *Map {
	return &Map{entries: make(map[key]any), resolve: resolve}
}

// Get returns the cached wrapper for (model, id), resolving and caching
// it on first lookup.
func (m *Map) Get(model token.Token, id token.RecordID) (any, error) {
	k := key{model, id}
	if rec, ok := m.entries[k]; ok {
		return rec, nil
	}
	rec, err := m.resolve(model, id)
	if err != nil {
		return nil, err
	}
	m.entries[k] = rec
	return rec, nil
}

// Register caches a wrapper a create path already produced, without
// going through the resolver.
func (m *Map) Register(model token.Token, id token.RecordID, rec any) {
	m.entries[key{model, id}] = rec
}

// Peek returns the cached wrapper if present, without resolving.
func (m *Map) Peek(model token.Token, id token.RecordID) (any, bool) {
	rec, ok := m.entries[key{model, id}]
	return rec, ok
}

// ClearAll drops every cached entry. Intended for test scaffolding.
func (m *Map) ClearAll() {
	m.entries = make(map[key]any)
}
