package schema

import (
	"testing"

	"github.com/objectcore/objectcore/internal/token"
)

func buildPartnerSchema(r *Registry) *ModelSchema {
	m := r.RegisterModel("m.partner", "base")
	r.RegisterField(m, "name", TString, false, "base")
	r.RegisterField(m, "is_company", TBool, false, "base")
	r.RegisterComputedField(m, "display_name", TString, ComputeDescriptor{
		ComputeMethodName: "compute_display_name",
	}, []string{"name", "is_company"}, "base")
	return m
}

func TestRegisterFieldFirstWins(t *testing.T) {
	r := NewRegistry()
	m := r.RegisterModel("m.partner", "base")
	r.RegisterField(m, "name", TString, false, "base")
	second := r.RegisterField(m, "name", TBool, true, "other")
	fs, ok := m.Field("name")
	if !ok {
		t.Fatal("expected field to exist")
	}
	if fs.ValueType != TString || fs.ReadOnly {
		t.Fatalf("expected first registration to win, got %+v", fs)
	}
	if second != fs {
		t.Fatalf("RegisterField should return the winning schema on collision")
	}
}

func TestGetModelFailsSoft(t *testing.T) {
	r := NewRegistry()
	_, ok := r.GetModel(token.For("m.nonexistent"))
	if ok {
		t.Fatal("expected GetModel to fail soft for unknown token")
	}
}

func TestGetFactoryFailsHard(t *testing.T) {
	r := NewRegistry()
	m := r.RegisterModel("m.partner", "base")
	_, err := r.GetFactory(m.Token)
	if err == nil {
		t.Fatal("expected NoFactoryError")
	}
}

func TestGetDependentsTransitiveOneStep(t *testing.T) {
	r := NewRegistry()
	m := buildPartnerSchema(r)
	nameTok, _ := m.Field("name")
	deps := r.GetDependents(m.Token, nameTok.Token)
	if len(deps) != 1 {
		t.Fatalf("expected one dependent of name, got %v", deps)
	}
	display, _ := m.Field("display_name")
	if deps[0] != display.Token {
		t.Fatalf("expected display_name as dependent")
	}
}

func TestGetDependentsUnknownNeverThrows(t *testing.T) {
	r := NewRegistry()
	deps := r.GetDependents(token.For("m.nope"), token.For("m.nope.field"))
	if deps != nil {
		t.Fatalf("expected nil/empty dependents, got %v", deps)
	}
}

func TestComputedFieldWithoutInverseIsReadOnly(t *testing.T) {
	r := NewRegistry()
	m := buildPartnerSchema(r)
	display, _ := m.Field("display_name")
	if display.IsWritable() {
		t.Fatal("computed field without inverse must not be writable")
	}
	if !display.IsPersisted() {
		// non-stored computed fields are not persisted
	}
}

func TestStoredComputedFieldIsAlsoComputed(t *testing.T) {
	r := NewRegistry()
	m := r.RegisterModel("m.partner", "base")
	fs := r.RegisterComputedField(m, "total", TInt64, ComputeDescriptor{
		ComputeMethodName: "compute_total",
		IsStored:          true,
	}, nil, "base")
	if !fs.Compute.IsComputed || !fs.Compute.IsStored {
		t.Fatal("expected stored computed field to report both flags")
	}
	if !fs.IsPersisted() {
		t.Fatal("a stored computed field must be persisted")
	}
}
