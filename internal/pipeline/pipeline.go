// Package pipeline composes a base implementation with zero or more
// overrides into a single callable per (model, method), with an
// automatic fallback to an abstract "model" base when a specific model
// has no registration.
//
// Composition is plain closures wrapping the base, in ascending priority
// order so the highest-priority override ends up outermost.
package pipeline

import (
	"context"
	"sort"

	"github.com/objectcore/objectcore/internal/corerr"
	"github.com/objectcore/objectcore/internal/token"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the OTel tracer for pipeline dispatch spans. It uses the
// global provider, a no-op until a host process installs a real one,
// mirroring the dolt storage backend's package-level tracer var.
var tracer = otel.Tracer("github.com/objectcore/objectcore/pipeline")

// meter and invocations are the companion metrics instrument: a counter
// of every dispatched (model, method) pipeline call, against the global
// MeterProvider (a no-op until a host process installs a real one).
var meter = otel.Meter("github.com/objectcore/objectcore/pipeline")
var invocations, _ = meter.Int64Counter("objectcore.pipeline.invocations",
	metric.WithDescription("Number of pipeline dispatches by model and method"))

// Func is a fully composed pipeline: same calling convention the base
// and every override share.
type Func func(ctx context.Context, args...any) (any, error)

// Step is one link in the chain: a base or an override. next is the
// delegate to call for "super"; for the innermost link (the base) next
// is bound to a terminal step that raises ChainExhaustedError if called,
// since there is nothing beneath the base.
type Step func(ctx context.Context, next Func, args...any) (any, error)

type key struct {
	model  token.Token
	method token.Token
}

type override struct {
	fn       Step
	priority int
	seq      int
}

// abstractModel is the conventional fallback model name used when a
// specific model has no base registered for a method.
var abstractModel = token.For("model")

// Engine owns every registered base and override and the compiled
// pipeline cache.
type Engine struct {
	bases     map[key]Step
	overrides map[key][]override
	compiled  map[key]Func
	seq       int

	// TracingEnabled gates whether Invoke starts an OTel span per
	// dispatch. Defaults to true; set from config.EngineOptions.TelemetryEnabled
	// by the application that owns this engine.
	TracingEnabled bool
}

// New creates an empty engine with tracing enabled.
func New() *Engine {
	return &Engine{
		bases:          make(map[key]Step),
		overrides:      make(map[key][]override),
		compiled:       make(map[key]Func),
		TracingEnabled: true,
	}
}

// RegisterBase sets the base implementation for (model, method),
// replacing any existing base. Invalidates any cached compilation for
// this key.
func (e *Engine) RegisterBase(model, method token.Token, fn Step) {
	k := key{model, method}
	e.bases[k] = fn
	delete(e.compiled, k)
}

// RegisterDefaultBase sets the base only if none exists yet.
func (e *Engine) RegisterDefaultBase(model, method token.Token, fn Step) {
	k := key{model, method}
	if _, exists := e.bases[k]; exists {
		return
	}
	e.bases[k] = fn
	delete(e.compiled, k)
}

// RegisterOverride adds an override for (model, method) at the given
// priority. Overrides compose deterministically: ascending priority
// order, then registration order among equal priorities.
func (e *Engine) RegisterOverride(model, method token.Token, priority int, fn Step) {
	k := key{model, method}
	e.seq++
	e.overrides[k] = append(e.overrides[k], override{fn: fn, priority: priority, seq: e.seq})
	delete(e.compiled, k)
}

// HasPipeline reports whether GetPipeline would succeed for (model,
// method), without compiling or caching it.
func (e *Engine) HasPipeline(model, method token.Token) bool {
	k := key{model, method}
	if _, ok := e.bases[k]; ok {
		return true
	}
	_, ok := e.bases[key{model: abstractModel, method: method}]
	return ok
}

// GetPipeline returns the composed callable for (model, method),
// compiling and caching it on first lookup. It first tries a
// model-specific base; on miss it falls back to the abstract "model"
// base, still layering in any overrides registered specifically for
// (model, method). A true miss raises NoPipelineError.
func (e *Engine) GetPipeline(model, method token.Token) (Func, error) {
	k := key{model, method}
	if f, ok := e.compiled[k]; ok {
		return f, nil
	}

	base, ok := e.bases[k]
	if !ok {
		base, ok = e.bases[key{model: abstractModel, method: method}]
	}
	if !ok {
		return nil, &corerr.NoPipelineError{Model: token.Name(model), Method: token.Name(method)}
	}

	f := e.compile(model, method, base, e.overrides[k])
	e.compiled[k] = f
	return f, nil
}

// CompileAll materializes every registered (model, method) pipeline so
// that subsequent GetPipeline calls are pure index reads. A key with
// overrides but no reachable base (neither specific nor abstract) fails
// with MissingBaseError.
func (e *Engine) CompileAll() error {
	keys := make(map[key]struct{}, len(e.bases)+len(e.overrides))
	for k := range e.bases {
		keys[k] = struct{}{}
	}
	for k := range e.overrides {
		keys[k] = struct{}{}
	}
	for k := range keys {
		if k.model == abstractModel {
			if _, ok := e.compiled[k]; !ok {
				if base, ok := e.bases[k]; ok {
					e.compiled[k] = e.compile(k.model, k.method, base, e.overrides[k])
				}
			}
			continue
		}
		if _, err := e.GetPipeline(k.model, k.method); err != nil {
			if _, isNoPipeline := err.(*corerr.NoPipelineError); isNoPipeline {
				return &corerr.MissingBaseError{Model: token.Name(k.model), Method: token.Name(k.method)}
			}
			return err
		}
	}
	return nil
}

func (e *Engine) compile(model, method token.Token, base Step, overs []override) Func {
	sorted := make([]override, len(overs))
	copy(sorted, overs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority < sorted[j].priority
		}
		return sorted[i].seq < sorted[j].seq
	})

	modelName, methodName := token.Name(model), token.Name(method)
	terminal := Func(func(ctx context.Context, args...any) (any, error) {
		return nil, &corerr.ChainExhaustedError{Model: modelName, Method: methodName}
	})

	result := Func(func(ctx context.Context, args...any) (any, error) {
		return base(ctx, terminal, args...)
	})

	// Ascending order: the first override wraps the base (innermost), the
	// last-processed (highest priority) override wraps everything built so
	// far and so ends up outermost.
	for _, ov := range sorted {
		next := result
		step := ov.fn
		result = func(ctx context.Context, args...any) (any, error) {
			return step(ctx, next, args...)
		}
	}
	return result
}

// Invoke looks up and calls the pipeline for (model, method), wrapping
// the call in an OTel span so dispatch is observable without every
// caller having to instrument itself.
func (e *Engine) Invoke(ctx context.Context, model, method token.Token, args...any) (result any, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("objectcore.model", token.Name(model)),
		attribute.String("objectcore.method", token.Name(method)),
	}
	invocations.Add(ctx, 1, metric.WithAttributes(attrs...))

	if e.TracingEnabled {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "pipeline.invoke", trace.WithAttributes(attrs...))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}

	f, err := e.GetPipeline(model, method)
	if err != nil {
		return nil, err
	}
	return f(ctx, args...)
}
