// Package dirty tracks which (model, id, field) triples have been
// written since the last flush, plus the order they were first touched
// in, so a flush can emit writes deterministically.
package dirty

import "github.com/objectcore/objectcore/internal/token"

// Entry is one (model, id, field) write-order record.
type Entry struct {
	Model token.Token
	ID    token.RecordID
	Field token.Token
}

// Tracker is a three-level structure keyed by model -> record-id -> set
// of dirty field tokens, plus the ordered first-touch list.
type Tracker struct {
	byModel map[token.Token]map[token.RecordID]map[token.Token]struct{}
	order   []Entry
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{byModel: make(map[token.Token]map[token.RecordID]map[token.Token]struct{})}
}

// Mark records (model, id, field) as dirty. Marking an already-dirty
// field is a no-op for the write-order list.
func (t *Tracker) Mark(model token.Token, id token.RecordID, field token.Token) {
	byID, ok := t.byModel[model]
	if !ok {
		byID = make(map[token.RecordID]map[token.Token]struct{})
		t.byModel[model] = byID
	}
	fields, ok := byID[id]
	if !ok {
		fields = make(map[token.Token]struct{})
		byID[id] = fields
	}
	if _, already := fields[field]; already {
		return
	}
	fields[field] = struct{}{}
	t.order = append(t.order, Entry{Model: model, ID: id, Field: field})
}

// IsDirty reports whether the record has any dirty field.
func (t *Tracker) IsDirty(model token.Token, id token.RecordID) bool {
	fields, ok := t.byModel[model][id]
	return ok && len(fields) > 0
}

// IsFieldDirty reports whether a specific field is dirty on a record.
func (t *Tracker) IsFieldDirty(model token.Token, id token.RecordID, field token.Token) bool {
	fields, ok := t.byModel[model][id]
	if !ok {
		return false
	}
	_, ok = fields[field]
	return ok
}

// GetDirtyFields returns the dirty field tokens for a record, order not
// guaranteed (use GetWriteOrder for deterministic emission order).
func (t *Tracker) GetDirtyFields(model token.Token, id token.RecordID) []token.Token {
	fields, ok := t.byModel[model][id]
	if !ok {
		return nil
	}
	out := make([]token.Token, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	return out
}

// GetDirtyRecords returns the ids with at least one dirty field for a
// model.
func (t *Tracker) GetDirtyRecords(model token.Token) []token.RecordID {
	byID, ok := t.byModel[model]
	if !ok {
		return nil
	}
	out := make([]token.RecordID, 0, len(byID))
	for id := range byID {
		out = append(out, id)
	}
	return out
}

// GetDirtyModels returns the models with at least one dirty record.
func (t *Tracker) GetDirtyModels() []token.Token {
	out := make([]token.Token, 0, len(t.byModel))
	for model, byID := range t.byModel {
		if len(byID) > 0 {
			out = append(out, model)
		}
	}
	return out
}

// GetWriteOrder returns the first-touch order of every currently dirty
// (model, id, field) entry.
func (t *Tracker) GetWriteOrder() []Entry {
	out := make([]Entry, len(t.order))
	copy(out, t.order)
	return out
}

// ClearRecord removes a record's dirty state and all matching entries
// from the write-order list.
func (t *Tracker) ClearRecord(model token.Token, id token.RecordID) {
	byID, ok := t.byModel[model]
	if !ok {
		return
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(t.byModel, model)
	}
	t.pruneOrder(func(e Entry) bool { return e.Model == model && e.ID == id })
}

// ClearModel removes all dirty state for a model.
func (t *Tracker) ClearModel(model token.Token) {
	delete(t.byModel, model)
	t.pruneOrder(func(e Entry) bool { return e.Model == model })
}

// ClearAll removes all dirty state.
func (t *Tracker) ClearAll() {
	t.byModel = make(map[token.Token]map[token.RecordID]map[token.Token]struct{})
	t.order = nil
}

// HasDirty reports whether any record anywhere is dirty.
func (t *Tracker) HasDirty() bool { return len(t.order) > 0 }

// DirtyRecordCount returns the number of distinct (model, id) pairs with
// at least one dirty field.
func (t *Tracker) DirtyRecordCount() int {
	n := 0
	for _, byID := range t.byModel {
		n += len(byID)
	}
	return n
}

func (t *Tracker) pruneOrder(remove func(Entry) bool) {
	kept := t.order[:0]
	for _, e := range t.order {
		if !remove(e) {
			kept = append(kept, e)
		}
	}
	t.order = kept
}
