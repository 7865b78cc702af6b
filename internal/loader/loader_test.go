package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/luabridge/internal/bridge"
	"github.com/dshills/luabridge/internal/host/hosttest"
)

// writeBundle creates a plugin bundle directory with the given entry
// script and returns its path.
func writeBundle(t *testing.T, root, name, script string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Join(dir, "plugin"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, "plugin", name+".lua")
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return dir
}

const okScript = `
function main()
  bridge.fn("hello", {}, function() return "hi" end)
end
`

func TestLoader_LoadAll(t *testing.T) {
	root := t.TempDir()
	h := hosttest.New()
	registry := bridge.New(h, t.TempDir(), nil)

	dir := writeBundle(t, root, "alpha", okScript)
	l := New(registry, WithPaths(dir))
	defer l.Close()

	results := l.LoadAll()
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("load failed: %v", results[0].Err)
	}

	if !registry.Loaded("alpha") {
		t.Error("loaded flag not set")
	}
	if !h.HasCommand("let g:loaded_alpha = 1") {
		t.Error("host loaded flag not set")
	}

	// The registered handler is dispatchable.
	if err := registry.Dispatch("alpha", "hello"); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if ret, _ := h.LastReturn(); ret != "hi" {
		t.Errorf("return = %q, want %q", ret, "hi")
	}
}

func TestLoader_FailureIsolation(t *testing.T) {
	root := t.TempDir()
	h := hosttest.New()
	registry := bridge.New(h, t.TempDir(), nil)

	one := writeBundle(t, root, "one", okScript)
	two := writeBundle(t, root, "two", `this is not lua (`)
	three := writeBundle(t, root, "three", okScript)

	l := New(registry, WithPaths(one, two, three))
	defer l.Close()

	results := l.LoadAll()
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("one failed: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("two should have failed")
	}
	if results[2].Err != nil {
		t.Errorf("three failed: %v", results[2].Err)
	}

	if !registry.Loaded("one") || !registry.Loaded("three") {
		t.Error("healthy plugins not marked loaded")
	}
	if registry.Loaded("two") {
		t.Error("broken plugin marked loaded")
	}
}

func TestLoader_MissingMain(t *testing.T) {
	root := t.TempDir()
	h := hosttest.New()
	registry := bridge.New(h, t.TempDir(), nil)

	dir := writeBundle(t, root, "nomain", `x = 1`)
	l := New(registry, WithPaths(dir))
	defer l.Close()

	results := l.LoadAll()
	if results[0].Err == nil {
		t.Fatal("expected error for missing main()")
	}
	if registry.Loaded("nomain") {
		t.Error("plugin without main marked loaded")
	}
}

func TestLoader_MainFailure(t *testing.T) {
	root := t.TempDir()
	h := hosttest.New()
	registry := bridge.New(h, t.TempDir(), nil)

	dir := writeBundle(t, root, "angry", `
function main()
  error("setup exploded")
end
`)
	l := New(registry, WithPaths(dir))
	defer l.Close()

	results := l.LoadAll()
	if results[0].Err == nil {
		t.Fatal("expected error from main()")
	}
	if registry.Loaded("angry") {
		t.Error("failed plugin marked loaded")
	}
}

func TestLoader_MissingEntryScript(t *testing.T) {
	root := t.TempDir()
	h := hosttest.New()
	registry := bridge.New(h, t.TempDir(), nil)

	empty := filepath.Join(root, "empty")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	l := New(registry, WithPaths(empty))
	defer l.Close()

	results := l.LoadAll()
	if results[0].Err == nil {
		t.Fatal("expected error for missing entry script")
	}
}

func TestLoader_DuplicateName(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	h := hosttest.New()
	registry := bridge.New(h, t.TempDir(), nil)

	first := writeBundle(t, rootA, "dup", okScript)
	second := writeBundle(t, rootB, "dup", okScript)

	l := New(registry, WithPaths(first, second))
	defer l.Close()

	results := l.LoadAll()
	if results[0].Err != nil {
		t.Fatalf("first load failed: %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, bridge.ErrDuplicateName) {
		t.Fatalf("second load = %v, want ErrDuplicateName", results[1].Err)
	}
}

func TestLoader_RequireSiblingModule(t *testing.T) {
	root := t.TempDir()
	h := hosttest.New()
	registry := bridge.New(h, t.TempDir(), nil)

	dir := writeBundle(t, root, "withlib", `
local helper = require("helper")

function main()
  bridge.fn("word", {}, function() return helper.word end)
end
`)
	helper := filepath.Join(dir, "plugin", "helper.lua")
	if err := os.WriteFile(helper, []byte(`return { word = "library" }`), 0o644); err != nil {
		t.Fatalf("write helper: %v", err)
	}

	l := New(registry, WithPaths(dir))
	defer l.Close()

	results := l.LoadAll()
	if results[0].Err != nil {
		t.Fatalf("load failed: %v", results[0].Err)
	}

	if err := registry.Dispatch("withlib", "word"); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if ret, _ := h.LastReturn(); ret != "library" {
		t.Errorf("return = %q, want %q", ret, "library")
	}
}
