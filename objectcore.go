// Package objectcore is the public surface of an in-process business
// object runtime: a columnar record store, a create/write pipeline that
// lets independently loaded modules override each other's behavior, and
// a computed-field dependency tracker that recomputes derived values to
// a fixpoint before flushing dirty records to an optional persistence
// collaborator.
//
// Embedders generally only need this package and, for durable storage,
// a blank import of persistence/sqlite or persistence/sql. Everything
// under internal/ is wiring detail.
package objectcore

import (
	"context"
	"log/slog"

	"github.com/objectcore/objectcore/internal/compute"
	"github.com/objectcore/objectcore/internal/config"
	"github.com/objectcore/objectcore/internal/env"
	"github.com/objectcore/objectcore/internal/pipeline"
	"github.com/objectcore/objectcore/internal/schema"
	"github.com/objectcore/objectcore/internal/token"
	"github.com/objectcore/objectcore/internal/values"
)

// Token is the runtime identity of a model, field, or method name.
type Token = token.Token

// RecordID is a strongly typed 64-bit record identifier.
type RecordID = token.RecordID

// ValueType identifies the Go type stored in a field's column.
type ValueType = schema.ValueType

const (
	TString  = schema.TString
	TBool    = schema.TBool
	TInt64   = schema.TInt64
	TFloat64 = schema.TFloat64
)

// ComputeDescriptor describes a computed field: its dependencies, the
// method that recomputes it, and whether it is persisted.
type ComputeDescriptor = schema.ComputeDescriptor

// FieldSchema describes one field on a model.
type FieldSchema = schema.FieldSchema

// ModelSchema describes one model: its fields and compute dependency
// graph.
type ModelSchema = schema.ModelSchema

// Registry is the process-wide source of models, fields, and record
// factories.
type Registry = schema.Registry

// RecordFactory builds the wrapper an application sees for (model, id).
type RecordFactory = schema.RecordFactory

// Engine composes base implementations with per-model overrides into a
// single callable per (model, method).
type Engine = pipeline.Engine

// PipelineFunc is the fully composed callable an Engine dispatches to.
type PipelineFunc = pipeline.Func

// PipelineStep is one override or base implementation in a pipeline.
type PipelineStep = pipeline.Step

// Values is a mutable create/write payload carrier with per-field
// is-set tracking.
type Values = values.Values

// EngineOptions tunes recompute cycle limits, prefetch batching, and
// telemetry.
type EngineOptions = config.EngineOptions

// Application owns everything built once per process: the registry, the
// compiled pipeline engine, and an optional persistence collaborator.
type Application = env.Application

// Environment is the per-tenant facade over a store, identity map, and
// compute/protection trackers, acting as one user.
type Environment = env.Environment

// Handle is a cheap, copyable identity of a single record.
type Handle = env.Handle

// Persister is the write side of a persistence collaborator.
type Persister = env.Persister

// Pending names one (model, id, field) computed value awaiting
// recompute.
type Pending = compute.Pending

// CreateArgs and WriteArgs are the payloads the generic create/write
// pipelines pass to every base and override step; a module overriding
// create or write for its own model decodes args[0] into one of these.
type CreateArgs = env.CreateArgs
type WriteArgs = env.WriteArgs

// CreateMethod and WriteMethod are the pipeline method tokens every
// model's create/write base and overrides are registered under.
var (
	CreateMethod = env.CreateMethod
	WriteMethod  = env.WriteMethod
)

// NewRegistry creates an empty model/field registry.
func NewRegistry() *Registry { return schema.NewRegistry() }

// NewEngine creates an empty pipeline engine.
func NewEngine() *Engine { return pipeline.New() }

// NewValues creates an empty create/write payload carrier.
func NewValues() *Values { return values.New() }

// FieldToken derives the token a model's field is registered under.
func FieldToken(modelName, fieldName string) Token {
	return token.For(modelName + "." + fieldName)
}

// ModelToken derives the token a model is registered under.
func ModelToken(modelName string) Token { return token.For(modelName) }

// MethodToken derives the token a model's named pipeline method is
// registered under.
func MethodToken(modelName, methodName string) Token {
	return env.MethodToken(modelName, methodName)
}

// DefaultEngineOptions returns the options a new Application uses when
// no config file is supplied.
func DefaultEngineOptions() EngineOptions { return config.Default() }

// LoadEngineOptions reads EngineOptions from a YAML file, layering over
// DefaultEngineOptions(). A missing file is not an error.
func LoadEngineOptions(path string) (EngineOptions, error) { return config.Load(path) }

// NewApplication wires a registry and engine together and registers the
// generic create/write pipeline bases every model gets for free. persister
// may be nil, in which case Flush never persists, only recomputes.
func NewApplication(registry *Registry, engine *Engine, opts EngineOptions, persister Persister) *Application {
	return env.NewApplication(registry, engine, opts, persister)
}

// NewEnvironment creates the root Environment for an Application, acting
// as user.
func NewEnvironment(app *Application, user string) *Environment {
	return env.New(app, user)
}

// WithLogger overrides the slog.Logger an Application uses for pipeline
// dispatch and flush diagnostics; it defaults to slog.Default().
func WithLogger(app *Application, logger *slog.Logger) *Application {
	return app.WithLogger(logger)
}

// Create allocates a record, applies v through the create pipeline, and
// returns the model's wrapper for it.
func Create(ctx context.Context, e *Environment, model Token, v *Values) (any, error) {
	return e.Create(ctx, model, v)
}

// Write applies v to an existing record through the write pipeline.
func Write(ctx context.Context, e *Environment, h Handle, v *Values) (bool, error) {
	return e.Write(ctx, h, v)
}

// Flush drains pending recomputes to a fixpoint and persists whatever is
// left dirty.
func Flush(ctx context.Context, e *Environment) error {
	return e.Flush(ctx)
}
