// Package flush drains the compute tracker's recompute queue to a
// fixpoint and then persists dirty records in write order. The
// orchestrator depends on the narrow Invoker interface rather than
// *env.Environment directly so env can implement it without an import
// cycle.
package flush

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/objectcore/objectcore/internal/compute"
	"github.com/objectcore/objectcore/internal/corerr"
	"github.com/objectcore/objectcore/internal/dirty"
	"github.com/objectcore/objectcore/internal/token"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/objectcore/objectcore/flush")

// Invoker is everything the orchestrator needs from an environment: the
// compute queue, the dirty write order, and a persistence hook.
type Invoker interface {
	HasPendingRecompute() bool
	GetAllPendingRecompute() []compute.Pending
	InvokeCompute(ctx context.Context, p compute.Pending) error

	WriteOrder() []dirty.Entry
	GetDirtyFields(model token.Token, id token.RecordID) []token.Token
	Persist(ctx context.Context, model token.Token, id token.RecordID, fields []token.Token) error
	ClearRecordDirty(model token.Token, id token.RecordID)
}

// Orchestrator runs one flush cycle: drain compute to fixpoint, then
// persist every dirty record exactly once, in first-touch order.
type Orchestrator struct {
	// ComputeCycleLimit bounds the number of recompute passes before a
	// non-converging dependency graph is reported as ComputeCycleError
	// rather than looping forever.
	ComputeCycleLimit int

	Logger *slog.Logger

	// TracingEnabled gates whether Flush and persistDirty start OTel
	// spans. Defaults to true; set from config.EngineOptions.TelemetryEnabled
	// by the environment that owns this orchestrator.
	TracingEnabled bool
}

// New creates an orchestrator with the given recompute iteration bound,
// logging to slog.Default() and tracing enabled until WithLogger/
// WithTracingEnabled override either.
func New(computeCycleLimit int) *Orchestrator {
	return &Orchestrator{ComputeCycleLimit: computeCycleLimit, Logger: slog.Default(), TracingEnabled: true}
}

// WithLogger sets the logger a caller wants diagnostics on and returns o
// for chaining at the construction site.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.Logger = logger
	return o
}

// WithTracingEnabled sets whether Flush starts OTel spans and returns o
// for chaining at the construction site.
func (o *Orchestrator) WithTracingEnabled(enabled bool) *Orchestrator {
	o.TracingEnabled = enabled
	return o
}

// Flush drains inv's recompute queue to a fixpoint, then persists every
// record that ended up dirty, one Persist call per record, in the order
// each record was first touched since the last flush.
func (o *Orchestrator) Flush(ctx context.Context, inv Invoker) (err error) {
	if o.TracingEnabled {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "flush.run")
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}

	if err := o.drainCompute(ctx, inv); err != nil {
		return err
	}

	if err := o.persistDirty(ctx, inv); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) drainCompute(ctx context.Context, inv Invoker) error {
	for i := 0; inv.HasPendingRecompute(); i++ {
		if i >= o.ComputeCycleLimit {
			pending := inv.GetAllPendingRecompute()
			p := pending[0]
			o.Logger.Warn("recompute did not converge",
				"model", token.Name(p.Model), "field", token.Name(p.Field), "iterations", o.ComputeCycleLimit)
			return &corerr.ComputeCycleError{
				Model:      token.Name(p.Model),
				Field:      token.Name(p.Field),
				Iterations: o.ComputeCycleLimit,
			}
		}
		for _, p := range inv.GetAllPendingRecompute() {
			if err := inv.InvokeCompute(ctx, p); err != nil {
				return fmt.Errorf("flush: recompute %s.%s: %w", token.Name(p.Model), token.Name(p.Field), err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) persistDirty(ctx context.Context, inv Invoker) error {
	order := inv.WriteOrder()
	seen := make(map[dirty.Entry]struct{}, len(order))
	type recordKey struct {
		model token.Token
		id    token.RecordID
	}
	var persistOrder []recordKey
	visitedRecords := make(map[recordKey]struct{})

	for _, e := range order {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		rk := recordKey{e.Model, e.ID}
		if _, ok := visitedRecords[rk]; !ok {
			visitedRecords[rk] = struct{}{}
			persistOrder = append(persistOrder, rk)
		}
	}

	for _, rk := range persistOrder {
		fields := inv.GetDirtyFields(rk.model, rk.id)
		if len(fields) == 0 {
			continue
		}

		recordCtx := ctx
		var span trace.Span
		if o.TracingEnabled {
			recordCtx, span = tracer.Start(ctx, "flush.persist_record", trace.WithAttributes(
				attribute.String("objectcore.model", token.Name(rk.model)),
				attribute.Int64("objectcore.record_id", int64(rk.id)),
			))
		}
		err := inv.Persist(recordCtx, rk.model, rk.id, fields)
		if err != nil {
			if span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.End()
			}
			o.Logger.Error("persist failed", "model", token.Name(rk.model), "record_id", rk.id, "error", err)
			return fmt.Errorf("flush: persist %s#%d: %w", token.Name(rk.model), rk.id, err)
		}
		if span != nil {
			span.End()
		}
		inv.ClearRecordDirty(rk.model, rk.id)
	}
	return nil
}
