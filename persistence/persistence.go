// Package persistence is the DSN-driven entry point for durable-storage
// collaborators: persistence/sqlite and persistence/sql each register
// themselves against a URL scheme in their init(), and Open dispatches
// to whichever is registered, the way a named-backend registry
// dispatches by a backend string rather than importing every backend
// into one switch statement.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/objectcore/objectcore/internal/env"
)

// OpenFunc opens a collaborator for one DSN. Registered by a specific
// backend package's init(), keyed by the DSN's URL scheme.
type OpenFunc func(ctx context.Context, dsn string) (env.Persister, error)

var registry = make(map[string]OpenFunc)

// Register adds a backend factory under a DSN scheme ("sqlite",
// "mysql", ...). Calling Register twice for the same scheme replaces
// the previous factory, last writer wins.
func Register(scheme string, fn OpenFunc) {
	registry[scheme] = fn
}

// Open parses dsn's scheme and dispatches to the matching registered
// backend. The backend package (persistence/sqlite, persistence/sql)
// must be blank-imported by the caller so its init() runs and registers
// it; Open itself imports neither, to keep database drivers opt-in.
func Open(ctx context.Context, dsn string) (env.Persister, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse dsn: %w", err)
	}
	fn, ok := registry[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("persistence: no collaborator registered for scheme %q", u.Scheme)
	}
	return fn(ctx, dsn)
}

// Registered reports whether a scheme currently has a backend, useful
// for callers that want to fail fast before attempting to open.
func Registered(scheme string) bool {
	_, ok := registry[scheme]
	return ok
}

// MergeFields unmarshals a collaborator's previously stored JSON blob (nil
// or empty for a row that doesn't exist yet) and layers incoming on top,
// field by field, then re-marshals the result. Each Persist call only
// carries the fields dirtied since the last flush, so a collaborator that
// marshaled incoming directly, rather than merging it against what is
// already on disk, would silently drop every field persisted by an
// earlier call that touched a disjoint field set on the same record.
func MergeFields(stored []byte, incoming map[string]any) ([]byte, error) {
	merged := make(map[string]any)
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &merged); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal stored fields: %w", err)
		}
	}
	for k, v := range incoming {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("persistence: marshal merged fields: %w", err)
	}
	return data, nil
}
