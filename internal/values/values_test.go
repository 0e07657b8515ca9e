package values

import (
	"testing"

	"github.com/objectcore/objectcore/internal/schema"
	"github.com/objectcore/objectcore/internal/store"
	"github.com/objectcore/objectcore/internal/token"
)

func partnerSchema() (*schema.Registry, *schema.ModelSchema) {
	r := schema.NewRegistry()
	m := r.RegisterModel("values.test.partner", "base")
	r.RegisterField(m, "name", schema.TString, false, "base")
	r.RegisterField(m, "is_company", schema.TBool, false, "base")
	r.RegisterComputedField(m, "display_name", schema.TString, schema.ComputeDescriptor{
		ComputeMethodName: "compute_display_name",
	}, []string{"name", "is_company"}, "base")
	return r, m
}

func TestSetIsSetGet(t *testing.T) {
	_, m := partnerSchema()
	nameField, _ := m.Field("name")

	v := New()
	if v.IsSet(nameField.Token) {
		t.Fatal("expected unset field to report not set")
	}
	v.Set(nameField.Token, "Alice")
	if !v.IsSet(nameField.Token) {
		t.Fatal("expected field to be set")
	}
	got, ok := v.Get(nameField.Token)
	if !ok || got != "Alice" {
		t.Fatalf("Get() = %v, %v; want \"Alice\", true", got, ok)
	}
}

func TestFromDictIgnoresUnknownAndMismatchedTypes(t *testing.T) {
	_, m := partnerSchema()
	v := FromDict(m, map[string]any{
		"name":        "Acme",
		"is_company":  "not-a-bool", // mismatched type, ignored
		"nonexistent": 42,           // unknown field, ignored
	})
	nameField, _ := m.Field("name")
	isCompanyField, _ := m.Field("is_company")

	if !v.IsSet(nameField.Token) {
		t.Fatal("expected name to be set")
	}
	if v.IsSet(isCompanyField.Token) {
		t.Fatal("expected mismatched-type is_company to be ignored")
	}
}

func TestHandlerApplyWritesThrough(t *testing.T) {
	_, m := partnerSchema()
	nameField, _ := m.Field("name")
	st := store.New()
	v := New().Set(nameField.Token, "Bob")

	var h Handler
	h.Apply(v, st, m, 1)

	if got := store.Get[string](st, m.Token, nameField.Token, 1); got != "Bob" {
		t.Fatalf("store value = %q, want \"Bob\"", got)
	}
}

func TestHandlerMarkDirtySkipsTransientComputed(t *testing.T) {
	_, m := partnerSchema()
	nameField, _ := m.Field("name")
	displayField, _ := m.Field("display_name")
	st := store.New()
	v := New().Set(nameField.Token, "Carol").Set(displayField.Token, "Carol")

	var h Handler
	h.MarkDirty(v, st, m, 1)

	if !contains(st.GetDirtyFields(m.Token, 1), nameField.Token) {
		t.Fatal("expected name to be dirty")
	}
	if contains(st.GetDirtyFields(m.Token, 1), displayField.Token) {
		t.Fatal("expected transient computed field not to be marked dirty")
	}
}

func contains(list []token.Token, want token.Token) bool {
	for _, t := range list {
		if t == want {
			return true
		}
	}
	return false
}

type fakeNotifier struct {
	calls []token.Token
}

func (f *fakeNotifier) Modified(model token.Token, id token.RecordID, fields ...token.Token) error {
	f.calls = append(f.calls, fields...)
	return nil
}

func TestHandlerTriggerModified(t *testing.T) {
	_, m := partnerSchema()
	nameField, _ := m.Field("name")
	v := New().Set(nameField.Token, "Dana")

	var h Handler
	n := &fakeNotifier{}
	if err := h.TriggerModified(v, n, m.Token, 1); err != nil {
		t.Fatal(err)
	}
	if len(n.calls) != 1 || n.calls[0] != nameField.Token {
		t.Fatalf("expected one Modified call for name, got %v", n.calls)
	}
}
