package env

import (
	"context"
	"testing"

	"github.com/objectcore/objectcore/internal/config"
	"github.com/objectcore/objectcore/internal/pipeline"
	"github.com/objectcore/objectcore/internal/schema"
	"github.com/objectcore/objectcore/internal/token"
	"github.com/objectcore/objectcore/internal/values"
	"github.com/stretchr/testify/require"
)

// partner is a minimal wrapper used across these tests, standing in for
// a generated record type: it carries its own (env, id) and nothing
// else, matching the RecordFactory contract.
type partner struct {
	env *Environment
	id  token.RecordID
}

type fakePersister struct {
	calls []map[string]any
	err   error
}

func (p *fakePersister) Persist(ctx context.Context, modelName string, id token.RecordID, fieldValues map[string]any) error {
	p.calls = append(p.calls, fieldValues)
	return p.err
}

// newTestApp builds a registry with one model, "t.partner", carrying a
// writable "name" field and a stored computed "display_name" field
// depending on "name", plus a compute method that appends a suffix. It
// returns the application and the raw tokens tests need.
func newTestApp(persister Persister) (*Application, token.Token, token.Token, token.Token) {
	reg := schema.NewRegistry()
	ms := reg.RegisterModel("t.partner", "")
	nameField := reg.RegisterField(ms, "name", schema.TString, false, "")
	reg.RegisterComputedField(ms, "display_name", schema.TString, schema.ComputeDescriptor{
		IsStored:          true,
		ComputeMethodName: "compute_display_name",
	}, []string{"name"}, "")

	reg.RegisterFactory(ms.Token, func(e any, id token.RecordID) any {
		return &partner{env: e.(*Environment), id: id}
	})

	engine := pipeline.New()
	methodTok := MethodToken("t.partner", "compute_display_name")
	engine.RegisterBase(ms.Token, methodTok, func(ctx context.Context, next pipeline.Func, args ...any) (any, error) {
		e := args[0].(*Environment)
		id := args[1].(token.RecordID)
		name := readStringField(e, ms.Token, nameField, id)
		return nil, e.SetComputedValue(ms.Token, id, MethodToken("t.partner", "display_name"), name+" (display)")
	})

	app := NewApplication(reg, engine, config.Default(), persister)
	return app, ms.Token, nameField, methodTok
}

// readStringField is a tiny helper reading the store through the public
// store package indirectly via the environment, avoiding a second import
// of internal/store purely for a test helper.
func readStringField(e *Environment, model, field token.Token, id token.RecordID) string {
	v, _ := e.Store.GetAny(model, field, id, schema.TString).(string)
	return v
}

func TestCreateAppliesValuesAndResolvesWrapper(t *testing.T) {
	app, model, nameField, _ := newTestApp(nil)
	e := New(app, "alice")

	v := values.New()
	v.Set(nameField, "Ada")
	rec, err := e.Create(context.Background(), model, v)
	require.NoError(t, err)

	p := rec.(*partner)
	require.Equal(t, "Ada", readStringField(e, model, nameField, p.id))
	require.True(t, e.Store.HasDirty())

	cached, ok := e.Identity.Peek(model, p.id)
	require.True(t, ok)
	require.Same(t, p, cached)
}

func TestCreateUnknownModelErrors(t *testing.T) {
	app, _, _, _ := newTestApp(nil)
	e := New(app, "alice")
	_, err := e.Create(context.Background(), token.For("t.nonexistent"), values.New())
	require.Error(t, err)
}

func TestWriteRejectsNotWritableField(t *testing.T) {
	app, model, _, _ := newTestApp(nil)
	e := New(app, "alice")
	v := values.New()
	v.Set(MethodToken("t.partner", "display_name"), "nope")
	_, err := e.Write(context.Background(), Handle{Env: e, Model: model, ID: 1}, v)
	require.Error(t, err)
}

func TestModifiedEnqueuesComputedDependent(t *testing.T) {
	app, model, nameField, _ := newTestApp(nil)
	e := New(app, "alice")

	v := values.New()
	v.Set(nameField, "Ada")
	rec, err := e.Create(context.Background(), model, v)
	require.NoError(t, err)
	p := rec.(*partner)

	displayField := MethodToken("t.partner", "display_name")
	require.True(t, e.Compute.NeedsRecompute(model, p.id, displayField))
}

func TestFlushDrainsComputeAndPersists(t *testing.T) {
	persister := &fakePersister{}
	app, model, nameField, _ := newTestApp(persister)
	e := New(app, "alice")

	v := values.New()
	v.Set(nameField, "Ada")
	rec, err := e.Create(context.Background(), model, v)
	require.NoError(t, err)
	p := rec.(*partner)

	require.NoError(t, e.Flush(context.Background()))
	require.False(t, e.Compute.HasPendingRecompute())
	require.False(t, e.Store.HasDirty())
	require.Len(t, persister.calls, 1)
	require.Equal(t, "Ada", persister.calls[0]["name"])
	require.Equal(t, "Ada (display)", persister.calls[0]["display_name"])
	require.NotZero(t, p.id)
}

func TestWithUserSharesStoreAndTrackers(t *testing.T) {
	app, _, _, _ := newTestApp(nil)
	e := New(app, "alice")
	bob := e.WithUser("bob")

	require.Same(t, e.Store, bob.Store)
	require.Same(t, e.Identity, bob.Identity)
	require.Same(t, e.Compute, bob.Compute)
	require.Same(t, e.Protect, bob.Protect)
	require.Equal(t, "bob", bob.User)
	require.Equal(t, "alice", e.User)
}

func TestWithNewCacheIsolatesState(t *testing.T) {
	app, model, nameField, _ := newTestApp(nil)
	e := New(app, "alice")
	v := values.New()
	v.Set(nameField, "Ada")
	_, err := e.Create(context.Background(), model, v)
	require.NoError(t, err)

	fresh := e.WithNewCache()
	require.NotSame(t, e.Store, fresh.Store)
	require.NotSame(t, e.Identity, fresh.Identity)
	require.False(t, fresh.Store.HasDirty())
	require.Equal(t, "alice", fresh.User)
}

func TestReentrantWriteRejectedOutsideProtection(t *testing.T) {
	app, model, nameField, _ := newTestApp(nil)
	e := New(app, "alice")
	h := Handle{Env: e, Model: model, ID: 42}

	// Manually mark the field as actively writing to simulate a write
	// pipeline override that calls e.Write again on the same (field, id)
	// without first acquiring a protection lease.
	e.active[fieldRecordKey{nameField, h.ID}] = 1
	v := values.New()
	v.Set(nameField, "Ada")
	_, err := e.Write(context.Background(), h, v)
	require.Error(t, err)
}

func TestReentrantWriteAllowedUnderProtection(t *testing.T) {
	app, model, nameField, _ := newTestApp(nil)
	e := New(app, "alice")
	h := Handle{Env: e, Model: model, ID: 42}

	lease := e.Protect.Protecting([]token.Token{nameField}, []token.RecordID{h.ID})
	defer lease.Release()

	e.active[fieldRecordKey{nameField, h.ID}] = 1
	v := values.New()
	v.Set(nameField, "Ada")
	ok, err := e.Write(context.Background(), h, v)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestReentrantWriteGuardSurvivesNestedProtectedWrite reproduces a
// two-level nesting: an outer unprotected Write holds the guard on
// (nameField, h.ID); a nested protected Write to the same pair completes
// and decrements the guard's refcount but must not clear it entirely,
// since the outer call is still on the stack. A refcount of 0 (rather
// than >0) at that point would wrongly let a second, unprotected nested
// write to the same pair slip past the guard.
func TestReentrantWriteGuardSurvivesNestedProtectedWrite(t *testing.T) {
	app, model, nameField, _ := newTestApp(nil)
	e := New(app, "alice")
	h := Handle{Env: e, Model: model, ID: 42}

	e.active[fieldRecordKey{nameField, h.ID}]++ // simulate the outer Write's own guard entry
	require.Equal(t, 1, e.active[fieldRecordKey{nameField, h.ID}])

	lease := e.Protect.Protecting([]token.Token{nameField}, []token.RecordID{h.ID})
	v := values.New()
	v.Set(nameField, "Ada")
	ok, err := e.Write(context.Background(), h, v)
	lease.Release()
	require.NoError(t, err)
	require.True(t, ok)

	// The nested protected write's own acquire/decrement must not have
	// cleared the outer call's guard entry: it should be back to exactly
	// the outer call's count, not zero.
	require.Equal(t, 1, e.active[fieldRecordKey{nameField, h.ID}])

	// A further nested write to the same pair, now unprotected, must
	// still be rejected as reentrant.
	v2 := values.New()
	v2.Set(nameField, "Ada Lovelace")
	_, err = e.Write(context.Background(), h, v2)
	require.Error(t, err)
}

func TestSetComputedValueClearsRecomputeAndSkipsModifiedFanout(t *testing.T) {
	app, model, nameField, _ := newTestApp(nil)
	e := New(app, "alice")
	v := values.New()
	v.Set(nameField, "Ada")
	rec, err := e.Create(context.Background(), model, v)
	require.NoError(t, err)
	p := rec.(*partner)

	displayField := MethodToken("t.partner", "display_name")
	require.True(t, e.Compute.NeedsRecompute(model, p.id, displayField))
	require.NoError(t, e.SetComputedValue(model, p.id, displayField, "Ada (display)"))
	require.False(t, e.Compute.NeedsRecompute(model, p.id, displayField))
}
