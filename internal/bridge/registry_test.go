package bridge

import (
	"errors"
	"testing"

	"github.com/dshills/luabridge/internal/host/hosttest"
)

func newTestRegistry(t *testing.T) (*Registry, *hosttest.Host) {
	t.Helper()
	h := hosttest.New()
	return New(h, t.TempDir(), nil), h
}

func TestRegistry_Register(t *testing.T) {
	r, _ := newTestRegistry(t)

	p, err := r.Register("notes")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := r.Get("notes")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != p {
		t.Error("Get returned a different plugin instance")
	}

	// Duplicate registration fails and leaves the mapping unchanged.
	if _, err := r.Register("notes"); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("second Register = %v, want ErrDuplicateName", err)
	}
	got, err = r.Get("notes")
	if err != nil {
		t.Fatalf("Get after duplicate failed: %v", err)
	}
	if got != p {
		t.Error("duplicate registration disturbed the original mapping")
	}
}

func TestRegistry_Register_EmptyName(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Register(""); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("Register(\"\") = %v, want ErrEmptyName", err)
	}
}

func TestRegistry_Get_NotFound(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Get("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	r, h := newTestRegistry(t)

	p, err := r.Register("demo")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	called := false
	if _, err := p.Function("ping", Signature{}, func([]string, *Range) (string, error) {
		called = true
		return "pong", nil
	}); err != nil {
		t.Fatalf("Function failed: %v", err)
	}

	if err := r.Dispatch("demo", "ping"); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("handler was not invoked")
	}
	if ret, ok := h.LastReturn(); !ok || ret != "pong" {
		t.Errorf("return = %q (%v), want %q", ret, ok, "pong")
	}
}

func TestRegistry_Dispatch_Unknown(t *testing.T) {
	r, _ := newTestRegistry(t)

	if err := r.Dispatch("ghost", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Dispatch unknown plugin = %v, want ErrNotFound", err)
	}

	if _, err := r.Register("demo"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Dispatch("demo", "ghost"); !errors.Is(err, ErrHandlerNotFound) {
		t.Fatalf("Dispatch unknown handler = %v, want ErrHandlerNotFound", err)
	}
}

func TestRegistry_LoadedFlag(t *testing.T) {
	r, _ := newTestRegistry(t)

	if r.Loaded("demo") {
		t.Error("unregistered plugin reported loaded")
	}
	r.MarkLoaded("demo")
	if !r.Loaded("demo") {
		t.Error("loaded flag not set")
	}
}

func TestRegistry_Names(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, name := range []string{"b", "a", "c"} {
		if _, err := r.Register(name); err != nil {
			t.Fatalf("Register(%q) failed: %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
