// Package corerr defines the error kinds the runtime raises. Each kind
// is both an errors.Is-compatible sentinel and a concrete type carrying
// the model/field names needed to make a failure message actionable;
// callers that only care about the family can test with errors.Is,
// callers that need the detail can errors.As.
package corerr

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is family checks.
var (
	ErrUnknownModel   = errors.New("unknown model")
	ErrUnknownField   = errors.New("unknown field")
	ErrNoFactory      = errors.New("no factory registered")
	ErrNoPipeline     = errors.New("no pipeline")
	ErrMissingBase    = errors.New("missing base")
	ErrChainExhausted = errors.New("chain exhausted")
	ErrNotSingleton   = errors.New("not a singleton")
	ErrNotWritable    = errors.New("field is not writable")
	ErrReentrantWrite = errors.New("reentrant write")
	ErrComputeCycle   = errors.New("compute cycle detected")
	ErrInvalidArgument = errors.New("invalid argument")
)

// UnknownModelError is raised when a model name or token has no schema.
type UnknownModelError struct{ Model string }

func (e *UnknownModelError) Error() string { return fmt.Sprintf("unknown model %q", e.Model) }
func (e *UnknownModelError) Unwrap() error  { return ErrUnknownModel }

// UnknownFieldError is raised when a field name or token has no schema
// on the given model.
type UnknownFieldError struct{ Model, Field string }

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q on model %q", e.Field, e.Model)
}
func (e *UnknownFieldError) Unwrap() error { return ErrUnknownField }

// NoFactoryError is raised by create() when the model has no registered
// record factory.
type NoFactoryError struct{ Model string }

func (e *NoFactoryError) Error() string { return fmt.Sprintf("no factory registered for model %q", e.Model) }
func (e *NoFactoryError) Unwrap() error  { return ErrNoFactory }

// NoPipelineError is raised when neither a model-specific nor an
// abstract "model" base exists for a method.
type NoPipelineError struct{ Model, Method string }

func (e *NoPipelineError) Error() string {
	return fmt.Sprintf("no pipeline for %q.%q (and no abstract model.%q)", e.Model, e.Method, e.Method)
}
func (e *NoPipelineError) Unwrap() error { return ErrNoPipeline }

// MissingBaseError is raised at compile time when overrides exist for a
// (model, method) pair that has no base anywhere in its fallback chain.
type MissingBaseError struct{ Model, Method string }

func (e *MissingBaseError) Error() string {
	return fmt.Sprintf("missing base for %q.%q", e.Model, e.Method)
}
func (e *MissingBaseError) Unwrap() error { return ErrMissingBase }

// ChainExhaustedError is raised when a pipeline step invokes its "super"
// delegate but the chain has no further step beneath it (i.e. the base
// itself called super).
type ChainExhaustedError struct{ Model, Method string }

func (e *ChainExhaustedError) Error() string {
	return fmt.Sprintf("chain exhausted for %q.%q: base called super with nothing beneath it", e.Model, e.Method)
}
func (e *ChainExhaustedError) Unwrap() error { return ErrChainExhausted }

// NotSingletonError is raised when a singleton-only operation is invoked
// on a multi-record set.
type NotSingletonError struct {
	Model string
	Count int
}

func (e *NotSingletonError) Error() string {
	return fmt.Sprintf("expected a single %q record, got %d", e.Model, e.Count)
}
func (e *NotSingletonError) Unwrap() error { return ErrNotSingleton }

// NotWritableError is raised when a write targets a readonly field, or a
// computed field with no inverse.
type NotWritableError struct{ Model, Field string }

func (e *NotWritableError) Error() string {
	return fmt.Sprintf("field %q on model %q is not writable", e.Field, e.Model)
}
func (e *NotWritableError) Unwrap() error { return ErrNotWritable }

// ReentrantWriteError is raised when the write pipeline is re-entered for
// a (field, id) pair that is not covered by a protection scope.
type ReentrantWriteError struct{ Model, Field string }

func (e *ReentrantWriteError) Error() string {
	return fmt.Sprintf("reentrant write to %q.%q outside a protection scope", e.Model, e.Field)
}
func (e *ReentrantWriteError) Unwrap() error { return ErrReentrantWrite }

// ComputeCycleError is raised when recompute_pending cannot reach a
// fixpoint within the configured iteration bound.
type ComputeCycleError struct {
	Model, Field string
	Iterations   int
}

func (e *ComputeCycleError) Error() string {
	return fmt.Sprintf("compute cycle on %q.%q: exceeded %d recompute iterations", e.Model, e.Field, e.Iterations)
}
func (e *ComputeCycleError) Unwrap() error { return ErrComputeCycle }

// InvalidArgumentError is raised on malformed call arguments, e.g.
// mismatched slice lengths passed to SetColumnValues.
type InvalidArgumentError struct{ Reason string }

func (e *InvalidArgumentError) Error() string { return fmt.Sprintf("invalid argument: %s", e.Reason) }
func (e *InvalidArgumentError) Unwrap() error  { return ErrInvalidArgument }
