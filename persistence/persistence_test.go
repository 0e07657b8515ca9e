package persistence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/objectcore/objectcore/internal/env"
	"github.com/objectcore/objectcore/internal/token"
	"github.com/stretchr/testify/require"
)

type fakeCollaborator struct{ calls int }

func (f *fakeCollaborator) Persist(ctx context.Context, modelName string, id token.RecordID, fieldValues map[string]any) error {
	f.calls++
	return nil
}

func TestOpenDispatchesByScheme(t *testing.T) {
	collab := &fakeCollaborator{}
	Register("faketest", func(ctx context.Context, dsn string) (env.Persister, error) {
		return collab, nil
	})

	p, err := Open(context.Background(), "faketest://some/path")
	require.NoError(t, err)
	require.NoError(t, p.Persist(context.Background(), "t.partner", 1, map[string]any{"name": "Ada"}))
	require.Equal(t, 1, collab.calls)
}

func TestOpenUnknownSchemeErrors(t *testing.T) {
	_, err := Open(context.Background(), "unregistered-scheme://x")
	require.Error(t, err)
}

func TestOpenMalformedDSNErrors(t *testing.T) {
	_, err := Open(context.Background(), "://not a url")
	require.Error(t, err)
}

func TestRegisteredReflectsRegistry(t *testing.T) {
	require.False(t, Registered("never-registered"))
	Register("reflect-test", func(ctx context.Context, dsn string) (env.Persister, error) {
		return nil, nil
	})
	require.True(t, Registered("reflect-test"))
}

func TestMergeFieldsKeepsFieldsFromEarlierFlushes(t *testing.T) {
	stored, err := MergeFields(nil, map[string]any{"name": "Ada"})
	require.NoError(t, err)

	merged, err := MergeFields(stored, map[string]any{"is_company": true})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(merged, &out))
	require.Equal(t, "Ada", out["name"])
	require.Equal(t, true, out["is_company"])
}

func TestMergeFieldsOverwritesSameField(t *testing.T) {
	stored, err := MergeFields(nil, map[string]any{"name": "Ada"})
	require.NoError(t, err)

	merged, err := MergeFields(stored, map[string]any{"name": "Ada Lovelace"})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(merged, &out))
	require.Equal(t, "Ada Lovelace", out["name"])
	require.Len(t, out, 1)
}

func TestMergeFieldsTreatsEmptyStoredAsNoRow(t *testing.T) {
	merged, err := MergeFields([]byte{}, map[string]any{"name": "Ada"})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(merged, &out))
	require.Equal(t, "Ada", out["name"])
}
