// Package compute tracks which computed fields need recomputation after
// a write, using the schema registry's dependency graph.
// Cross-record ("related path") dependencies are out of scope for this
// version; Modified only walks same-model, same-id dependents.
package compute

import "github.com/objectcore/objectcore/internal/token"

// DependencyLookup is the subset of schema.Registry that the tracker
// needs: the forward (field -> dependents) map. Accepting the narrow
// interface instead of *schema.Registry keeps this package free of a
// hard dependency on the schema package's full surface.
type DependencyLookup interface {
	GetDependents(model, field token.Token) []token.Token
}

// Pending is one (model, id, field) entry awaiting recomputation.
type Pending struct {
	Model token.Token
	ID    token.RecordID
	Field token.Token
}

// Tracker is the model -> record-id -> set-of-fields recompute queue.
type Tracker struct {
	deps    DependencyLookup
	pending map[token.Token]map[token.RecordID]map[token.Token]struct{}
}

// New creates an empty tracker backed by deps for dependency lookups.
func New(deps DependencyLookup) *Tracker {
	return &Tracker{
		deps:    deps,
		pending: make(map[token.Token]map[token.RecordID]map[token.Token]struct{}),
	}
}

// RecordModified enqueues every one-step dependent of (model, id, field)
// for recomputation. It does not itself recurse to fixpoint; the flush
// orchestrator drains the queue in repeated passes until it is empty, so
// entries enqueued during a pass are picked up by a later one.
func (t *Tracker) RecordModified(model token.Token, id token.RecordID, field token.Token) {
	for _, dependent := range t.deps.GetDependents(model, field) {
		t.MarkToRecompute(model, id, dependent)
	}
}

// MarkToRecompute enqueues a single field directly, bypassing dependency
// lookup; used by RecordModified and available to callers that already
// know which computed field needs refreshing.
func (t *Tracker) MarkToRecompute(model token.Token, id token.RecordID, field token.Token) {
	byID, ok := t.pending[model]
	if !ok {
		byID = make(map[token.RecordID]map[token.Token]struct{})
		t.pending[model] = byID
	}
	fields, ok := byID[id]
	if !ok {
		fields = make(map[token.Token]struct{})
		byID[id] = fields
	}
	fields[field] = struct{}{}
}

// NeedsRecompute reports whether a field is currently queued for a
// record.
func (t *Tracker) NeedsRecompute(model token.Token, id token.RecordID, field token.Token) bool {
	fields, ok := t.pending[model][id]
	if !ok {
		return false
	}
	_, ok = fields[field]
	return ok
}

// ClearRecompute removes one field from the queue for a record.
func (t *Tracker) ClearRecompute(model token.Token, id token.RecordID, field token.Token) {
	byID, ok := t.pending[model]
	if !ok {
		return
	}
	fields, ok := byID[id]
	if !ok {
		return
	}
	delete(fields, field)
	if len(fields) == 0 {
		delete(byID, id)
	}
	if len(byID) == 0 {
		delete(t.pending, model)
	}
}

// GetRecordsToRecompute returns the ids with at least one pending field
// for a model.
func (t *Tracker) GetRecordsToRecompute(model token.Token) []token.RecordID {
	byID, ok := t.pending[model]
	if !ok {
		return nil
	}
	out := make([]token.RecordID, 0, len(byID))
	for id := range byID {
		out = append(out, id)
	}
	return out
}

// GetFieldsToRecompute returns the pending field tokens for a record.
func (t *Tracker) GetFieldsToRecompute(model token.Token, id token.RecordID) []token.Token {
	fields, ok := t.pending[model][id]
	if !ok {
		return nil
	}
	out := make([]token.Token, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	return out
}

// GetAllPendingRecompute returns a snapshot of every pending entry.
func (t *Tracker) GetAllPendingRecompute() []Pending {
	var out []Pending
	for model, byID := range t.pending {
		for id, fields := range byID {
			for field := range fields {
				out = append(out, Pending{Model: model, ID: id, Field: field})
			}
		}
	}
	return out
}

// HasPendingRecompute reports whether any entry is queued.
func (t *Tracker) HasPendingRecompute() bool {
	for _, byID := range t.pending {
		if len(byID) > 0 {
			return true
		}
	}
	return false
}

// ClearAll drops every pending entry.
func (t *Tracker) ClearAll() {
	t.pending = make(map[token.Token]map[token.RecordID]map[token.Token]struct{})
}
