// Package values implements create/write payload carriers with per-field
// "is-set" tracking, and the handler that applies a carrier to the
// columnar store and fans out dirty/modified notifications. There is no per-model code generation in this runtime, so the
// carrier is a generic (field token -> value) map with declaration
// order preserved; a generated implementation would instead give each
// model its own struct of (T, bool) pairs, but the handler's contract
// here is identical either way.
package values

import (
	"github.com/objectcore/objectcore/internal/schema"
	"github.com/objectcore/objectcore/internal/store"
	"github.com/objectcore/objectcore/internal/token"
)

// Values is a mutable carrier: one settable entry per field the caller
// chooses to set, in the order they were set.
type Values struct {
	order []token.Token
	set   map[token.Token]any
}

// New creates an empty carrier.
func New() *Values {
	return &Values{set: make(map[token.Token]any)}
}

// Set marks field as set to value. Setting the same field twice keeps
// its original position in declaration order but updates the value.
func (v *Values) Set(field token.Token, value any) *Values {
	if _, already := v.set[field]; !already {
		v.order = append(v.order, field)
	}
	v.set[field] = value
	return v
}

// IsSet reports whether field has been explicitly set (distinguishing
// "unset" from "set to the zero value").
func (v *Values) IsSet(field token.Token) bool {
	_, ok := v.set[field]
	return ok
}

// Get returns the value set for field, if any.
func (v *Values) Get(field token.Token) (any, bool) {
	val, ok := v.set[field]
	return val, ok
}

// Fields returns the set fields in declaration order.
func (v *Values) Fields() []token.Token {
	out := make([]token.Token, len(v.order))
	copy(out, v.order)
	return out
}

// Dict returns the untyped dictionary view: only the fields that are
// set, keyed by field name.
func (v *Values) Dict(ms *schema.ModelSchema) map[string]any {
	out := make(map[string]any, len(v.order))
	for _, f := range v.order {
		if fs, ok := ms.FieldByToken(f); ok {
			out[fs.Name] = v.set[f]
		}
	}
	return out
}

// FromDict builds a carrier from an untyped (name -> value) map, for a
// scripting-bridge collaborator. Unknown keys are ignored; values whose
// Go type does not match the field's declared value type are ignored
// rather than rejected.
func FromDict(ms *schema.ModelSchema, dict map[string]any) *Values {
	v := New()
	for name, val := range dict {
		fs, ok := ms.Field(name)
		if !ok {
			continue
		}
		if !valueMatchesType(val, fs.ValueType) {
			continue
		}
		v.Set(fs.Token, val)
	}
	return v
}

func valueMatchesType(val any, vt schema.ValueType) bool {
	switch vt {
	case schema.TString:
		_, ok := val.(string)
		return ok
	case schema.TBool:
		_, ok := val.(bool)
		return ok
	case schema.TInt64:
		_, ok := val.(int64)
		return ok
	case schema.TFloat64:
		_, ok := val.(float64)
		return ok
	default:
		return false
	}
}

// ModifiedNotifier is the subset of the environment the handler needs to
// fan out modification notifications. Defined here (rather than taking
// a concrete *env.Environment) to avoid a values -> env import cycle;
// env.Environment satisfies this interface.
type ModifiedNotifier interface {
	Modified(model token.Token, id token.RecordID, fields...token.Token) error
}

// Handler applies carriers to the store. It is stateless and shared
// across every model; per-model behavior is entirely data-driven by the
// schema rather than generated per-model code.
type Handler struct{}

// Apply writes every set field in declaration order through to the
// store. It does not check writability: the environment's Write rejects
// not-writable fields before dispatching, so a single violation cannot
// leave a partial write behind it; Create performs no such check.
func (Handler) Apply(v *Values, st *store.Store, ms *schema.ModelSchema, id token.RecordID) {
	for _, f := range v.Fields() {
		fs, ok := ms.FieldByToken(f)
		if !ok {
			continue
		}
		val, _ := v.Get(f)
		st.SetAny(ms.Token, f, id, fs.ValueType, val)
	}
}

// ApplyBatch applies one carrier per id, element-wise.
func (h Handler) ApplyBatch(vs []*Values, st *store.Store, ms *schema.ModelSchema, ids []token.RecordID) {
	for i, id := range ids {
		if i < len(vs) {
			h.Apply(vs[i], st, ms, id)
		}
	}
}

// ApplyBulk applies the same carrier to every id.
func (h Handler) ApplyBulk(v *Values, st *store.Store, ms *schema.ModelSchema, ids []token.RecordID) {
	for _, id := range ids {
		h.Apply(v, st, ms, id)
	}
}

// MarkDirty marks every set field that is persisted (i.e. not a
// transient computed field) dirty on the store.
func (Handler) MarkDirty(v *Values, st *store.Store, ms *schema.ModelSchema, id token.RecordID) {
	for _, f := range v.Fields() {
		fs, ok := ms.FieldByToken(f)
		if !ok || !fs.IsPersisted() {
			continue
		}
		st.MarkDirty(ms.Token, id, f)
	}
}

// TriggerModified notifies the environment for every set field.
func (Handler) TriggerModified(v *Values, env ModifiedNotifier, model token.Token, id token.RecordID) error {
	fields := v.Fields()
	if len(fields) == 0 {
		return nil
	}
	return env.Modified(model, id, fields...)
}

// TriggerModifiedBatch fans TriggerModified out over many ids, using the
// same carrier's field set for every one.
func (h Handler) TriggerModifiedBatch(v *Values, env ModifiedNotifier, model token.Token, ids []token.RecordID) error {
	for _, id := range ids {
		if err := h.TriggerModified(v, env, model, id); err != nil {
			return err
		}
	}
	return nil
}
