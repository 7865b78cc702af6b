package bridge

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/luabridge/internal/host"
)

// Registry is the process-wide plugin table and the entry point the
// host uses to route a generated declaration back to its handler.
// Exactly one Registry should exist per process; it is constructed
// explicitly and injected rather than reached through a package
// global.
type Registry struct {
	mu          sync.RWMutex
	host        host.Host
	settingsDir string
	log         *zap.Logger
	plugins     map[string]*Plugin
	loaded      map[string]bool
}

// New creates a Registry bound to a host connection. Settings files
// for all plugins live under settingsDir. A nil logger disables
// logging.
func New(h host.Host, settingsDir string, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		host:        h,
		settingsDir: settingsDir,
		log:         log,
		plugins:     make(map[string]*Plugin),
		loaded:      make(map[string]bool),
	}
}

// Host returns the host connection the registry dispatches against.
func (r *Registry) Host() host.Host { return r.host }

// Register creates the plugin for name. A name can be registered at
// most once per process; a second registration fails with
// ErrDuplicateName and leaves the original mapping unchanged.
func (r *Registry) Register(name string) (*Plugin, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; exists {
		return nil, fmt.Errorf("plugin %q: %w", name, ErrDuplicateName)
	}

	p := &Plugin{
		name:        name,
		host:        r.host,
		settingsDir: r.settingsDir,
		log:         r.log,
		methods:     make(map[string]*Binding),
	}
	r.plugins[name] = p
	return p, nil
}

// Get returns the plugin for name, or ErrNotFound. Callers inside a
// host callback treat the error as fatal for that single invocation
// only.
func (r *Registry) Get(name string) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// Dispatch is the host callback entry point: a generated function body
// re-enters here by (plugin name, handler name). The binding marshals
// the call-frame values, runs the handler, and returns its result to
// the host.
func (r *Registry) Dispatch(plugin, handler string) error {
	p, err := r.Get(plugin)
	if err != nil {
		return err
	}
	b, err := p.Binding(handler)
	if err != nil {
		return err
	}
	return b.Run(r.host)
}

// MarkLoaded sets the process-wide loaded flag for a plugin name.
func (r *Registry) MarkLoaded(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded[name] = true
}

// Loaded reports whether a plugin finished loading.
func (r *Registry) Loaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded[name]
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
