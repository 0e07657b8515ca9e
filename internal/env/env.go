// Package env implements the Environment facade: the object that binds
// the schema registry, pipeline engine, and a user context together and
// exposes get_record/create/write/modified/set_computed_value/flush. One
// process-wide Application owns the registry, pipeline engine, and
// persister; many short-lived Environments share or fork its per-tenant
// state, the way a long-lived storage handle backs short-lived request
// state.
package env

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/objectcore/objectcore/internal/compute"
	"github.com/objectcore/objectcore/internal/config"
	"github.com/objectcore/objectcore/internal/corerr"
	"github.com/objectcore/objectcore/internal/dirty"
	"github.com/objectcore/objectcore/internal/flush"
	"github.com/objectcore/objectcore/internal/identity"
	"github.com/objectcore/objectcore/internal/pipeline"
	"github.com/objectcore/objectcore/internal/protect"
	"github.com/objectcore/objectcore/internal/schema"
	"github.com/objectcore/objectcore/internal/store"
	"github.com/objectcore/objectcore/internal/token"
	"github.com/objectcore/objectcore/internal/values"
)

// CreateMethod and WriteMethod are the conventional method tokens the
// generic create/write pipelines are registered under on the abstract
// "model" base.
var (
	CreateMethod = token.For("create")
	WriteMethod  = token.For("write")
	abstractModel = token.For("model")
)

// Persister is the write side of a persistence collaborator: it receives
// a single record's dirty field values, keyed by field name rather than
// field token so a collaborator (SQL, JSONL, ...) never has to resolve
// tokens. The record id is still a token.RecordID (objectcore.RecordID
// outside this module).
type Persister interface {
	Persist(ctx context.Context, modelName string, id token.RecordID, fieldValues map[string]any) error
}

// Application owns everything that is built once per process: the
// schema registry, the compiled pipeline engine, the stateless values
// handler, engine options, the record-id allocator, and an optional
// persistence collaborator. Every Environment derived from the same
// Application shares this state; only per-tenant state (store, trackers,
// identity map, acting user) lives on Environment.
type Application struct {
	Registry  *schema.Registry
	Engine    *pipeline.Engine
	Handler   values.Handler
	Options   config.EngineOptions
	Persister Persister

	// Logger receives Debug-level pipeline dispatch records and, via
	// Flush, Warn on recompute non-convergence and Error on persist
	// failure. Defaults to slog.Default(); override with WithLogger.
	Logger *slog.Logger

	ids *token.IDAllocator
}

// NewApplication wires a registry and engine into an Application and
// registers the generic create/write bases on the abstract "model" token
// so every model gets create/write for free unless it registers its own
// model-specific base to override the default.
func NewApplication(registry *schema.Registry, engine *pipeline.Engine, opts config.EngineOptions, persister Persister) *Application {
	app := &Application{
		Registry:  registry,
		Engine:    engine,
		Options:   opts,
		Persister: persister,
		Logger:    slog.Default(),
		ids:       token.NewIDAllocator(1),
	}
	engine.RegisterDefaultBase(abstractModel, CreateMethod, genericCreateBase)
	engine.RegisterDefaultBase(abstractModel, WriteMethod, genericWriteBase)
	engine.TracingEnabled = opts.TelemetryEnabled
	return app
}

// WithLogger overrides the logger an Application uses and returns app for
// chaining at the construction site.
func (app *Application) WithLogger(logger *slog.Logger) *Application {
	app.Logger = logger
	return app
}

type fieldRecordKey struct {
	field token.Token
	id    token.RecordID
}

// Environment is the per-tenant facade: one acting user's view over a
// store, identity map, and trackers. Two Environments produced by
// WithUser from the same parent share Store/Identity/Compute/Protect;
// WithNewCache produces a sibling with all four freshly allocated.
type Environment struct {
	App  *Application
	User string

	Store   *store.Store
	Identity *identity.Map
	Compute  *compute.Tracker
	Protect  *protect.Scope

	// active counts in-flight Write calls per (field, id), not just
	// whether one is in flight: a nested protected Write to the same pair
	// completes (and decrements) while the outer call is still on the
	// stack, so a bare bool would let a later unprotected write within
	// that same outer call wrongly pass the reentrancy guard.
	active map[fieldRecordKey]int
}

// New creates the root Environment for an Application: fresh store,
// identity map, and trackers, acting as user.
func New(app *Application, user string) *Environment {
	e := &Environment{App: app, User: user, active: make(map[fieldRecordKey]int)}
	e.Store = store.New()
	e.Compute = compute.New(app.Registry)
	e.Protect = protect.New()
	e.Identity = identity.New(e.resolve)
	return e
}

// WithUser derives a sibling environment that shares Store, Identity,
// Compute, and Protect with e but acts as a different user.
func (e *Environment) WithUser(user string) *Environment {
	return &Environment{
		App:      e.App,
		User:     user,
		Store:    e.Store,
		Identity: e.Identity,
		Compute:  e.Compute,
		Protect:  e.Protect,
		active:   e.active,
	}
}

// WithNewCache derives a sibling environment with a fresh store and
// fresh trackers; only App and User are shared.
func (e *Environment) WithNewCache() *Environment {
	return New(e.App, e.User)
}

func (e *Environment) resolve(model token.Token, id token.RecordID) (any, error) {
	if _, ok := e.App.Registry.GetModel(model); !ok {
		return nil, &corerr.UnknownModelError{Model: token.Name(model)}
	}
	factory, err := e.App.Registry.GetFactory(model)
	if err != nil {
		return nil, err
	}
	return factory(e, id), nil
}

// GetRecord returns the identity-mapped wrapper for (model, id),
// resolving it via the model's factory on first lookup.
func (e *Environment) GetRecord(model token.Token, id token.RecordID) (any, error) {
	return e.Identity.Get(model, id)
}

// GetRecords resolves a batch of ids against the same model, stopping at
// the first failure.
func (e *Environment) GetRecords(model token.Token, ids []token.RecordID) ([]any, error) {
	out := make([]any, len(ids))
	for i, id := range ids {
		rec, err := e.GetRecord(model, id)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

// Handle is a cheap, copyable identity of a single record: an
// environment reference plus the (model, id) pair.
type Handle struct {
	Env   *Environment
	Model token.Token
	ID    token.RecordID
}

// CreateArgs and WriteArgs carry the pipeline call's payload as a single
// struct rather than positional varargs, so steps decode one type
// assertion instead of indexing into args.
type CreateArgs struct {
	Env    *Environment
	Model  token.Token
	ID     token.RecordID
	Schema *schema.ModelSchema
	Values *values.Values
}

type WriteArgs struct {
	Env    *Environment
	Handle Handle
	Schema *schema.ModelSchema
	Values *values.Values
}

// Create allocates a record id and routes it through the "create"
// pipeline, whose base applies values, marks dirty, resolves the wrapper
// via the model's factory, registers it in the identity map, and then
// triggers modified. Unlike Write, Create does not check writability.
func (e *Environment) Create(ctx context.Context, model token.Token, v *values.Values) (any, error) {
	ms, ok := e.App.Registry.GetModel(model)
	if !ok {
		return nil, &corerr.UnknownModelError{Model: token.Name(model)}
	}
	if _, err := e.App.Registry.GetFactory(model); err != nil {
		return nil, err
	}
	id := e.App.ids.Next()
	e.App.Logger.DebugContext(ctx, "dispatch", "method", "create", "model", token.Name(model), "record_id", id)
	result, err := e.App.Engine.Invoke(ctx, model, CreateMethod, &CreateArgs{
		Env: e, Model: model, ID: id, Schema: ms, Values: v,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func genericCreateBase(ctx context.Context, next pipeline.Func, args...any) (any, error) {
	a := args[0].(*CreateArgs)
	a.Env.App.Handler.Apply(a.Values, a.Env.Store, a.Schema, a.ID)
	a.Env.App.Handler.MarkDirty(a.Values, a.Env.Store, a.Schema, a.ID)
	rec, err := a.Env.resolve(a.Model, a.ID)
	if err != nil {
		return nil, err
	}
	a.Env.Identity.Register(a.Model, a.ID, rec)
	if err := a.Env.App.Handler.TriggerModified(a.Values, a.Env, a.Model, a.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

// Write validates writability, guards against reentrant writes to a
// (field, id) pair not covered by a protection scope, and routes through
// the "write" pipeline.
func (e *Environment) Write(ctx context.Context, h Handle, v *values.Values) (bool, error) {
	ms, ok := e.App.Registry.GetModel(h.Model)
	if !ok {
		return false, &corerr.UnknownModelError{Model: token.Name(h.Model)}
	}
	for _, f := range v.Fields() {
		fs, ok := ms.FieldByToken(f)
		if !ok {
			return false, &corerr.UnknownFieldError{Model: ms.Name, Field: token.Name(f)}
		}
		if !fs.IsWritable() {
			return false, &corerr.NotWritableError{Model: ms.Name, Field: fs.Name}
		}
	}

	fields := v.Fields()
	for _, f := range fields {
		if e.active[fieldRecordKey{f, h.ID}] > 0 && !e.Protect.IsProtected(f, h.ID) {
			fs, _ := ms.FieldByToken(f)
			return false, &corerr.ReentrantWriteError{Model: ms.Name, Field: fs.Name}
		}
	}
	for _, f := range fields {
		e.active[fieldRecordKey{f, h.ID}]++
	}
	defer func() {
		for _, f := range fields {
			k := fieldRecordKey{f, h.ID}
			e.active[k]--
			if e.active[k] <= 0 {
				delete(e.active, k)
			}
		}
	}()

	e.App.Logger.DebugContext(ctx, "dispatch", "method", "write", "model", token.Name(h.Model), "record_id", h.ID)
	result, err := e.App.Engine.Invoke(ctx, h.Model, WriteMethod, &WriteArgs{
		Env: e, Handle: h, Schema: ms, Values: v,
	})
	if err != nil {
		return false, err
	}
	ok2, _ := result.(bool)
	return ok2, nil
}

func genericWriteBase(ctx context.Context, next pipeline.Func, args...any) (any, error) {
	a := args[0].(*WriteArgs)
	a.Env.App.Handler.Apply(a.Values, a.Env.Store, a.Schema, a.Handle.ID)
	a.Env.App.Handler.MarkDirty(a.Values, a.Env.Store, a.Schema, a.Handle.ID)
	if err := a.Env.App.Handler.TriggerModified(a.Values, a.Env, a.Handle.Model, a.Handle.ID); err != nil {
		return false, err
	}
	return true, nil
}

// Modified marks (model, id, field) dirty and enqueues its dependents
// for recompute. It is idempotent: re-marking an
// already-dirty field, or re-enqueueing an already-pending dependent,
// has no additional effect.
func (e *Environment) Modified(model token.Token, id token.RecordID, fields...token.Token) error {
	ms, ok := e.App.Registry.GetModel(model)
	if !ok {
		return &corerr.UnknownModelError{Model: token.Name(model)}
	}
	for _, f := range fields {
		if _, ok := ms.FieldByToken(f); !ok {
			return &corerr.UnknownFieldError{Model: ms.Name, Field: token.Name(f)}
		}
		e.Store.MarkDirty(model, id, f)
		e.Compute.RecordModified(model, id, f)
	}
	return nil
}

// SetComputedValue writes a computed value straight to the store,
// bypassing the write pipeline entirely: it does not mark dirty (unless
// the field is stored, see below) and does not trigger modified, only
// clearing the matching recompute flag. Stored computed
// fields still need to reach flush, so they are marked dirty directly on
// the store without routing through Modified (which would re-enqueue
// dependents and risk a feedback loop within the same recompute pass).
func (e *Environment) SetComputedValue(model token.Token, id token.RecordID, field token.Token, value any) error {
	ms, ok := e.App.Registry.GetModel(model)
	if !ok {
		return &corerr.UnknownModelError{Model: token.Name(model)}
	}
	fs, ok := ms.FieldByToken(field)
	if !ok {
		return &corerr.UnknownFieldError{Model: ms.Name, Field: token.Name(field)}
	}
	e.Store.SetAny(model, field, id, fs.ValueType, value)
	if fs.IsPersisted() {
		e.Store.MarkDirty(model, id, field)
	}
	e.Compute.ClearRecompute(model, id, field)
	return nil
}

// InvokeCompute dispatches one pending (model, id, field) recompute
// entry to its registered compute method, satisfying flush.Invoker. A
// field with no compute descriptor or no registered method simply has
// its recompute flag cleared rather than erroring, since a schema can
// register a dependency edge before the corresponding method exists.
func (e *Environment) InvokeCompute(ctx context.Context, p compute.Pending) error {
	ms, ok := e.App.Registry.GetModel(p.Model)
	if !ok {
		return &corerr.UnknownModelError{Model: token.Name(p.Model)}
	}
	fs, ok := ms.FieldByToken(p.Field)
	if !ok || fs.Compute == nil || fs.Compute.ComputeMethodName == "" {
		e.Compute.ClearRecompute(p.Model, p.ID, p.Field)
		return nil
	}
	methodTok := MethodToken(ms.Name, fs.Compute.ComputeMethodName)
	_, err := e.App.Engine.Invoke(ctx, p.Model, methodTok, e, p.ID, p.Field)
	return err
}

// MethodToken derives the token a model's named method (base or compute
// method) is registered under, namespacing by model the same way
// schema.Registry namespaces field tokens ("model.field").
func MethodToken(modelName, methodName string) token.Token {
	return token.For(modelName + "." + methodName)
}

// HasPendingRecompute, GetAllPendingRecompute, WriteOrder, and
// GetDirtyFields satisfy the remainder of flush.Invoker by delegating to
// Compute and Store.
func (e *Environment) HasPendingRecompute() bool                     { return e.Compute.HasPendingRecompute() }
func (e *Environment) GetAllPendingRecompute() []compute.Pending     { return e.Compute.GetAllPendingRecompute() }
func (e *Environment) WriteOrder() []dirty.Entry                     { return e.Store.WriteOrder() }
func (e *Environment) GetDirtyFields(model token.Token, id token.RecordID) []token.Token {
	return e.Store.GetDirtyFields(model, id)
}

// Persist satisfies flush.Invoker by reading the record's current dirty
// field values out of the store and handing them to the Application's
// persister, named by field so the collaborator stays free of
// internal/token. A nil persister is a no-op success: persistence is an
// optional collaborator, not part of the in-memory core.
func (e *Environment) Persist(ctx context.Context, model token.Token, id token.RecordID, fields []token.Token) error {
	if e.App.Persister == nil {
		return nil
	}
	ms, ok := e.App.Registry.GetModel(model)
	if !ok {
		return &corerr.UnknownModelError{Model: token.Name(model)}
	}
	fieldValues := make(map[string]any, len(fields))
	for _, f := range fields {
		fs, ok := ms.FieldByToken(f)
		if !ok {
			continue
		}
		fieldValues[fs.Name] = e.Store.GetAny(model, f, id, fs.ValueType)
	}
	if err := e.App.Persister.Persist(ctx, ms.Name, id, fieldValues); err != nil {
		return fmt.Errorf("persist %s#%d: %w", ms.Name, id, err)
	}
	return nil
}

// ClearRecordDirty satisfies flush.Invoker, dropping a record's dirty
// state (not its column values) after a successful persist.
func (e *Environment) ClearRecordDirty(model token.Token, id token.RecordID) {
	e.Store.ClearDirty(model, id)
}

// Flush drains the compute queue to a fixpoint and persists every
// record left dirty, in first-touch order.
func (e *Environment) Flush(ctx context.Context) error {
	return flush.New(e.App.Options.ComputeCycleLimit).
		WithLogger(e.App.Logger).
		WithTracingEnabled(e.App.Options.TelemetryEnabled).
		Flush(ctx, e)
}
