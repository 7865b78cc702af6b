// Package loader discovers plugin modules on the runtime path and
// bootstraps each one in a failure-isolated scope.
//
// A runtime path entry is a plugin bundle directory; the plugin's name
// is the directory basename and its entry script lives at
// <dir>/plugin/<name>.lua. The script runs in a fresh Lua state with
// the bridge module installed and must define a no-argument main()
// that performs its registrations. One broken plugin never stops the
// scan: its failure is logged and the walk continues.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/luabridge/internal/bridge"
	"github.com/dshills/luabridge/internal/luavm"
)

// Result reports the outcome of one plugin's load.
type Result struct {
	Name string
	Path string
	Err  error
}

// Loader bootstraps plugins against a Registry.
type Loader struct {
	registry *bridge.Registry
	paths    []string
	log      *zap.Logger

	// Lua states are kept for the process lifetime: registered
	// handlers are closures inside them.
	states map[string]*luavm.State
}

// Option configures a Loader.
type Option func(*Loader)

// WithPaths sets the ordered runtime path.
func WithPaths(paths ...string) Option {
	return func(l *Loader) {
		l.paths = paths
	}
}

// WithLogger sets the loader's logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// New creates a Loader for the given registry.
func New(registry *bridge.Registry, opts ...Option) *Loader {
	l := &Loader{
		registry: registry,
		log:      zap.NewNop(),
		states:   make(map[string]*luavm.State),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Paths returns the configured runtime path.
func (l *Loader) Paths() []string {
	return append([]string(nil), l.paths...)
}

// LoadAll walks the runtime path loading every candidate plugin. It
// never fails as a whole: each plugin's outcome is logged and reported
// in the results, and a failure in one module does not affect the
// others.
func (l *Loader) LoadAll() []Result {
	session := uuid.NewString()
	log := l.log.With(zap.String("session", session))

	results := make([]Result, 0, len(l.paths))
	for _, dir := range l.paths {
		name, err := l.loadOne(dir)
		results = append(results, Result{Name: name, Path: dir, Err: err})

		if err != nil {
			log.Warn("plugin load failed",
				zap.String("plugin", name),
				zap.String("path", dir),
				zap.Error(err))
			continue
		}
		log.Info("plugin loaded",
			zap.String("plugin", name),
			zap.String("path", dir))
	}
	return results
}

// loadOne bootstraps the plugin bundle at dir. Panics from plugin code
// are contained here.
func (l *Loader) loadOne(dir string) (name string, err error) {
	name = filepath.Base(filepath.Clean(dir))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %q panicked: %v", name, r)
		}
	}()

	script := filepath.Join(dir, "plugin", name+".lua")
	if _, statErr := os.Stat(script); statErr != nil {
		return name, fmt.Errorf("no entry script: %w", statErr)
	}

	p, err := l.registry.Register(name)
	if err != nil {
		return name, err
	}

	state := luavm.NewState()
	if err := state.AddPackagePath(filepath.Join(dir, "plugin")); err != nil {
		state.Close()
		return name, err
	}
	luavm.Install(state, p, l.log)

	if err := state.DoFile(script); err != nil {
		state.Close()
		return name, fmt.Errorf("entry script: %w", err)
	}
	if !state.HasFunction("main") {
		state.Close()
		return name, fmt.Errorf("plugin %q has no main()", name)
	}
	if _, err := state.Call("main"); err != nil {
		state.Close()
		return name, fmt.Errorf("main(): %w", err)
	}

	l.states[name] = state
	l.registry.MarkLoaded(name)

	// Vim convention: host-side introspection flag.
	flag := "let g:loaded_" + identFlag(name) + " = 1"
	if err := l.registry.Host().Command(flag); err != nil {
		l.log.Warn("setting loaded flag failed",
			zap.String("plugin", name),
			zap.Error(err))
	}

	return name, nil
}

// Close releases all plugin Lua states.
func (l *Loader) Close() {
	for name, state := range l.states {
		if err := state.Close(); err != nil {
			l.log.Warn("closing plugin state failed",
				zap.String("plugin", name),
				zap.Error(err))
		}
	}
	l.states = make(map[string]*luavm.State)
}

// identFlag normalizes a plugin name into a host variable suffix.
func identFlag(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
