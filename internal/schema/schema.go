// Package schema is the canonical source of models and fields: names and
// tokens, field metadata, the computed-field dependency graph, and record
// factory lookup. It is built once per process by the code generator and
// registrar collaborators; everything downstream (store, pipeline,
// environment) treats it as read-only after startup.
package schema

import (
	"sort"

	"github.com/objectcore/objectcore/internal/corerr"
	"github.com/objectcore/objectcore/internal/token"
)

// ValueType identifies the Go type stored in a field's column. It is
// fixed at field-registration time; the store resolves the concrete
// typed column by (model, field) token without reflection on the read
// path.
type ValueType int

const (
	TString ValueType = iota
	TBool
	TInt64
	TFloat64
)

// ComputeDescriptor describes a computed field: its dependencies, the
// method that recomputes it, and whether it is persisted.
type ComputeDescriptor struct {
	IsComputed         bool
	IsStored           bool
	ComputeMethodName  string
	Dependencies       []string
	InverseMethodName  string
	RelatedPath        string
	DefaultValueFactory func() any
	Required           bool
	Tracking           bool
}

// FieldSchema describes one field on a model.
type FieldSchema struct {
	Name           string
	Token          token.Token
	ValueType      ValueType
	ReadOnly       bool
	DeclaringMixin string
	Compute        *ComputeDescriptor // nil for a plain stored field
}

// IsWritable reports whether a setter/write may target this field: not
// readonly, and if computed, only when it carries an inverse method.
func (f *FieldSchema) IsWritable() bool {
	if f.Compute != nil && f.Compute.IsComputed && f.Compute.InverseMethodName == "" {
		return false
	}
	return !f.ReadOnly
}

// IsPersisted reports whether writes to this field should be tracked as
// dirty for flush: plain fields and stored-computed fields, but not
// transient (non-stored) computed fields.
func (f *FieldSchema) IsPersisted() bool {
	if f.Compute == nil {
		return true
	}
	return !f.Compute.IsComputed || f.Compute.IsStored
}

// ModelSchema describes one model: its fields, contributing mixins, and
// the two dependency maps used by the compute tracker.
type ModelSchema struct {
	Name   string
	Token  token.Token
	Mixins []string

	fieldsByName  map[string]*FieldSchema
	fieldsByToken map[token.Token]*FieldSchema
	order         []string // declaration order, first registration wins

	computedFields       []string
	dependents           map[token.Token][]token.Token // field -> dependent computed fields
	computedDependencies map[token.Token][]token.Token  // computed field -> its dependency fields
}

func newModelSchema(name string) *ModelSchema {
	return &ModelSchema{
		Name:                 name,
		Token:                token.For(name),
		fieldsByName:         make(map[string]*FieldSchema),
		fieldsByToken:        make(map[token.Token]*FieldSchema),
		dependents:           make(map[token.Token][]token.Token),
		computedDependencies: make(map[token.Token][]token.Token),
	}
}

// Field looks up a field by name.
func (m *ModelSchema) Field(name string) (*FieldSchema, bool) {
	f, ok := m.fieldsByName[name]
	return f, ok
}

// FieldByToken looks up a field by its token.
func (m *ModelSchema) FieldByToken(t token.Token) (*FieldSchema, bool) {
	f, ok := m.fieldsByToken[t]
	return f, ok
}

// Fields returns all fields in declaration order.
func (m *ModelSchema) Fields() []*FieldSchema {
	out := make([]*FieldSchema, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, m.fieldsByName[n])
	}
	return out
}

// ComputedFields returns the names of all computed fields (stored and
// transient) in declaration order.
func (m *ModelSchema) ComputedFields() []string {
	out := make([]string, len(m.computedFields))
	copy(out, m.computedFields)
	return out
}

// Dependents returns the tokens of fields that recompute when field f
// changes (one step; callers fix-point via the compute tracker).
func (m *ModelSchema) Dependents(f token.Token) []token.Token {
	return m.dependents[f]
}

// registerField adds a field, first-writer-wins on name collisions:
// registering the same (model, field) twice is idempotent.
func (m *ModelSchema) registerField(fs *FieldSchema) {
	if _, exists := m.fieldsByName[fs.Name]; exists {
		return
	}
	m.fieldsByName[fs.Name] = fs
	m.fieldsByToken[fs.Token] = fs
	m.order = append(m.order, fs.Name)
}

// Registry is the application-wide source of models, fields, the
// compute dependency graph, and record factories. Built once at startup;
// treated as read-only by every Environment that references it.
type Registry struct {
	models    map[token.Token]*ModelSchema
	factories map[token.Token]RecordFactory
}

// RecordFactory builds the wrapper an application sees for (model, id).
// env is typed as `any` here to avoid a schema -> environment import
// cycle; the environment package supplies itself and casts internally.
// The registry has no compile-time dependency on the environment's
// concrete type, only on the shape the generated factory closes over.
type RecordFactory func(env any, id token.RecordID) any

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models:    make(map[token.Token]*ModelSchema),
		factories: make(map[token.Token]RecordFactory),
	}
}

// RegisterModel creates (or returns the existing) schema for a model
// name so callers can attach fields to it.
func (r *Registry) RegisterModel(name string, mixin string) *ModelSchema {
	tok := token.For(name)
	ms, ok := r.models[tok]
	if !ok {
		ms = newModelSchema(name)
		r.models[tok] = ms
	}
	if mixin != "" {
		ms.Mixins = append(ms.Mixins, mixin)
	}
	return ms
}

// RegisterField attaches a plain (non-computed) field to a model. If the
// name is already registered, the existing (winning) schema is returned
// unchanged.
func (r *Registry) RegisterField(model *ModelSchema, name string, vt ValueType, readOnly bool, mixin string) *FieldSchema {
	if existing, ok := model.fieldsByName[name]; ok {
		return existing
	}
	fs := &FieldSchema{
		Name:           name,
		Token:          token.For(model.Name + "." + name),
		ValueType:      vt,
		ReadOnly:       readOnly,
		DeclaringMixin: mixin,
	}
	model.registerField(fs)
	return fs
}

// RegisterComputedField attaches a computed field and wires its forward
// (field -> dependents) and reverse (computed field -> dependencies)
// dependency maps. deps are sibling field names on the same model.
func (r *Registry) RegisterComputedField(model *ModelSchema, name string, vt ValueType, desc ComputeDescriptor, deps []string, mixin string) *FieldSchema {
	if existing, ok := model.fieldsByName[name]; ok {
		return existing
	}
	desc.IsComputed = true
	desc.Dependencies = append([]string(nil), deps...)
	fs := &FieldSchema{
		Name:           name,
		Token:          token.For(model.Name + "." + name),
		ValueType:      vt,
		ReadOnly:       desc.InverseMethodName == "",
		DeclaringMixin: mixin,
		Compute:        &desc,
	}
	model.registerField(fs)
	model.computedFields = append(model.computedFields, name)

	depTokens := make([]token.Token, 0, len(deps))
	for _, dep := range deps {
		depTok := token.For(model.Name + "." + dep)
		depTokens = append(depTokens, depTok)
		model.dependents[depTok] = append(model.dependents[depTok], fs.Token)
	}
	model.computedDependencies[fs.Token] = depTokens
	return fs
}

// GetModel fails soft: returns (schema, false) rather than an error so
// callers decide whether an unknown model/token is fatal.
func (r *Registry) GetModel(t token.Token) (*ModelSchema, bool) {
	ms, ok := r.models[t]
	return ms, ok
}

// GetModelByName is a convenience wrapper around GetModel for callers
// that only have the canonical name at hand.
func (r *Registry) GetModelByName(name string) (*ModelSchema, bool) {
	return r.GetModel(token.For(name))
}

// RegisterFactory sets the record factory for a model, last-writer-wins.
// Callers are expected to register in dependency-sorted order (base
// module first) so that the most-extended wrapper type registered last
// wins.
func (r *Registry) RegisterFactory(model token.Token, fn RecordFactory) {
	r.factories[model] = fn
}

// GetFactory fails hard: NoFactoryError when absent, since create()
// cannot proceed without one.
func (r *Registry) GetFactory(model token.Token) (RecordFactory, error) {
	fn, ok := r.factories[model]
	if !ok {
		return nil, &corerr.NoFactoryError{Model: token.Name(model)}
	}
	return fn, nil
}

// GetDependents returns the tokens of the computed fields on model that
// depend on field, one step, sorted by token. An unknown model yields nil
// and an unknown field an empty slice; neither is an error.
func (r *Registry) GetDependents(model, field token.Token) []token.Token {
	ms, ok := r.models[model]
	if !ok {
		return nil
	}
	deps := ms.Dependents(field)
	out := make([]token.Token, len(deps))
	copy(out, deps)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
