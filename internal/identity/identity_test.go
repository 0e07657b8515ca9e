package identity

import (
	"testing"

	"github.com/objectcore/objectcore/internal/token"
)

type wrapper struct {
	model token.Token
	id    token.RecordID
}

func TestGetCachesAcrossViews(t *testing.T) {
	model := token.For("identity.test.model")
	calls := 0
	m := New(func(model token.Token, id token.RecordID) (any, error) {
		calls++
		return &wrapper{model: model, id: id}, nil
	})

	a, err := m.Get(model, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Get(model, 1)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected the same wrapper instance across lookups")
	}
	if calls != 1 {
		t.Fatalf("expected resolver to be called once, got %d", calls)
	}
}

func TestRegisterBypassesResolver(t *testing.T) {
	model := token.For("identity.test.model2")
	m := New(func(model token.Token, id token.RecordID) (any, error) {
		t.Fatal("resolver should not be called when pre-registered")
		return nil, nil
	})
	w := &wrapper{model: model, id: 2}
	m.Register(model, 2, w)

	got, err := m.Get(model, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != w {
		t.Fatal("expected registered wrapper to be returned")
	}
}

func TestClearAll(t *testing.T) {
	model := token.For("identity.test.model3")
	calls := 0
	m := New(func(model token.Token, id token.RecordID) (any, error) {
		calls++
		return &wrapper{model: model, id: id}, nil
	})
	m.Get(model, 1)
	m.ClearAll()
	m.Get(model, 1)
	if calls != 2 {
		t.Fatalf("expected resolver called twice across a ClearAll, got %d", calls)
	}
}
