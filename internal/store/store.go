// Package store implements the per-(model, field) typed columnar value
// store: single and batch reads/writes, a prefetch hint, and the dirty
// tracking that higher layers (pipeline, compute, flush) drive.
//
// Storage is a table of typed column stores keyed by (model, field)
// token, resolved with one type assertion on the read path rather than
// a runtime type switch over reflection.
package store

import (
	"github.com/objectcore/objectcore/internal/corerr"
	"github.com/objectcore/objectcore/internal/dirty"
	"github.com/objectcore/objectcore/internal/schema"
	"github.com/objectcore/objectcore/internal/token"
)

type columnKey struct {
	model token.Token
	field token.Token
}

// column is the type-erased handle kept in Store.columns; the concrete
// value behind it is always *typedColumn[T] for some T.
type column interface {
	clear()
}

type typedColumn[T any] struct {
	data map[token.RecordID]T
}

func newTypedColumn[T any]() *typedColumn[T] {
	return &typedColumn[T]{data: make(map[token.RecordID]T)}
}

func (c *typedColumn[T]) clear() { c.data = make(map[token.RecordID]T) }

// Store holds every (model, field) column and the dirty state for the
// environment that owns it. It is NOT thread-safe.
type Store struct {
	columns map[columnKey]column
	dirty   *dirty.Tracker
}

// New creates an empty store with fresh dirty tracking.
func New() *Store {
	return &Store{
		columns: make(map[columnKey]column),
		dirty:   dirty.New(),
	}
}

func getColumn[T any](s *Store, model, field token.Token, create bool) *typedColumn[T] {
	key := columnKey{model, field}
	raw, ok := s.columns[key]
	if !ok {
		if !create {
			return nil
		}
		col := newTypedColumn[T]()
		s.columns[key] = col
		return col
	}
	col, ok := raw.(*typedColumn[T])
	if !ok {
		// A field's element type is fixed at registration; a mismatch here
		// means a caller used the wrong Go type parameter for this field.
		panic("store: column type mismatch for " + model.String() + "." + field.String())
	}
	return col
}

// Get returns the stored value for (model, id, field), or T's zero value
// if absent. Never errors.
func Get[T any](s *Store, model, field token.Token, id token.RecordID) T {
	col := getColumn[T](s, model, field, false)
	if col == nil {
		var zero T
		return zero
	}
	if v, ok := col.data[id]; ok {
		return v
	}
	var zero T
	return zero
}

// Has reports whether (model, id, field) has an explicit value.
func (s *Store) Has(model, field token.Token, id token.RecordID) bool {
	key := columnKey{model, field}
	raw, ok := s.columns[key]
	if !ok {
		return false
	}
	return columnHas(raw, id)
}

// columnHas answers Store.Has without a type parameter: a
// reflection-free type switch over the four supported field element
// types (schema.ValueType), since that set is closed and known. A column
// of any other element type reports false.
func columnHas(raw column, id token.RecordID) bool {
	switch c := raw.(type) {
	case *typedColumn[string]:
		_, ok := c.data[id]
		return ok
	case *typedColumn[bool]:
		_, ok := c.data[id]
		return ok
	case *typedColumn[int64]:
		_, ok := c.data[id]
		return ok
	case *typedColumn[float64]:
		_, ok := c.data[id]
		return ok
	default:
		return false
	}
}

// Set writes (model, id, field) = value. It does not mark the field
// dirty; dirty state is a pipeline-level decision so compute methods can
// write through the store without scheduling a flush.
func Set[T any](s *Store, model, field token.Token, id token.RecordID, value T) {
	col := getColumn[T](s, model, field, true)
	col.data[id] = value
}

// GetColumnSpan returns a snapshot slice the same length as ids, in
// order, with missing entries filled by the zero value. The slice is
// invalidated by any subsequent write to the same column.
func GetColumnSpan[T any](s *Store, model, field token.Token, ids []token.RecordID) []T {
	out := make([]T, len(ids))
	col := getColumn[T](s, model, field, false)
	if col == nil {
		return out
	}
	for i, id := range ids {
		if v, ok := col.data[id]; ok {
			out[i] = v
		}
	}
	return out
}

// SetColumnValues pairwise-assigns values[i] to ids[i]. Lengths must
// match.
func SetColumnValues[T any](s *Store, model, field token.Token, ids []token.RecordID, values []T) error {
	if len(ids) != len(values) {
		return &corerr.InvalidArgumentError{Reason: "SetColumnValues: ids and values length mismatch"}
	}
	col := getColumn[T](s, model, field, true)
	for i, id := range ids {
		col.data[id] = values[i]
	}
	return nil
}

// BulkLoad loads many values for one column in one call, used by
// collaborators such as data import or test seeding.
func BulkLoad[T any](s *Store, model, field token.Token, values map[token.RecordID]T) {
	col := getColumn[T](s, model, field, true)
	for id, v := range values {
		col.data[id] = v
	}
}

// Prefetch is a hint: a real implementation might materialize a
// collaborator round trip here. The in-process store has nothing to
// prefetch, so this is a no-op with no observable semantics beyond
// whatever the caller's own timing shows.
func (s *Store) Prefetch(model token.Token, ids []token.RecordID, fields []token.Token) {}

// GetAny reads a value through the schema's declared value type, for
// callers (such as the environment's Persist) that only know the
// field's type at runtime via schema.ValueType. This is the one place
// outside generated code that switches on value type.
func (s *Store) GetAny(model, field token.Token, id token.RecordID, vt schema.ValueType) any {
	switch vt {
	case schema.TString:
		return Get[string](s, model, field, id)
	case schema.TBool:
		return Get[bool](s, model, field, id)
	case schema.TInt64:
		return Get[int64](s, model, field, id)
	case schema.TFloat64:
		return Get[float64](s, model, field, id)
	default:
		return nil
	}
}

// SetAny writes a value through the schema's declared value type. value
// must already be the correct Go type for vt; a mismatched value is
// silently stored as the zero value (unlike values.FromDict, which drops
// type-mismatched input instead of storing anything).
func (s *Store) SetAny(model, field token.Token, id token.RecordID, vt schema.ValueType, value any) {
	switch vt {
	case schema.TString:
		v, _ := value.(string)
		Set(s, model, field, id, v)
	case schema.TBool:
		v, _ := value.(bool)
		Set(s, model, field, id, v)
	case schema.TInt64:
		v, _ := value.(int64)
		Set(s, model, field, id, v)
	case schema.TFloat64:
		v, _ := value.(float64)
		Set(s, model, field, id, v)
	}
}

// --- dirty tracking, delegated to the embedded tracker ---

func (s *Store) MarkDirty(model token.Token, id token.RecordID, field token.Token) {
	s.dirty.Mark(model, id, field)
}

func (s *Store) GetDirtyFields(model token.Token, id token.RecordID) []token.Token {
	return s.dirty.GetDirtyFields(model, id)
}

func (s *Store) ClearDirty(model token.Token, id token.RecordID) {
	s.dirty.ClearRecord(model, id)
}

func (s *Store) GetDirtyRecords(model token.Token) []token.RecordID {
	return s.dirty.GetDirtyRecords(model)
}

func (s *Store) GetDirtyModels() []token.Token {
	return s.dirty.GetDirtyModels()
}

func (s *Store) HasDirty() bool { return s.dirty.HasDirty() }

func (s *Store) ClearAllDirty() { s.dirty.ClearAll() }

// WriteOrder exposes the tracker's first-touch order for the flush
// orchestrator to consume.
func (s *Store) WriteOrder() []dirty.Entry { return s.dirty.GetWriteOrder() }

// Clear drops all columns and all dirty state.
func (s *Store) Clear() {
	s.columns = make(map[columnKey]column)
	s.dirty.ClearAll()
}

// ClearModel drops all column data and dirty state for one model. A
// record's existence is the presence of any column entry or identity-map
// entry, so this is how a caller destroys a record's values.
func (s *Store) ClearModel(model token.Token) {
	for key, col := range s.columns {
		if key.model == model {
			col.clear()
		}
	}
	s.dirty.ClearModel(model)
}

// ClearRecord drops dirty state (not column values) for one record; used
// after a successful flush persist.
func (s *Store) ClearRecord(model token.Token, id token.RecordID) {
	s.dirty.ClearRecord(model, id)
}
