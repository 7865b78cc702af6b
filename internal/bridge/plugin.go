package bridge

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/luabridge/internal/host"
	"github.com/dshills/luabridge/internal/settings"
)

// Plugin is one bridged module: a unique namespace owning a method
// registry of bindings and a lazily created settings store. Plugins
// are constructed only through Registry.Register and live for the
// whole process.
type Plugin struct {
	name        string
	host        host.Host
	settingsDir string
	log         *zap.Logger

	mu       sync.Mutex
	methods  map[string]*Binding
	settings *settings.Store
}

// Name returns the plugin's unique name.
func (p *Plugin) Name() string { return p.name }

// method is the get-or-create method registry lookup. The first
// request for a handler name creates and caches the Binding; later
// requests return the cached one regardless of the arguments.
// Must be called with p.mu held.
func (p *Plugin) method(name string, sig Signature, h Handler) (*Binding, bool) {
	if b, ok := p.methods[name]; ok {
		return b, false
	}
	b := newBinding(p.name, name, sig, h)
	p.methods[name] = b
	return b, true
}

// Binding returns the cached binding for a handler name.
func (p *Plugin) Binding(name string) (*Binding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.methods[name]
	if !ok {
		return nil, fmt.Errorf("plugin %q: handler %q: %w", p.name, name, ErrHandlerNotFound)
	}
	return b, nil
}

// Function exposes a handler as a host-callable function. The first
// call generates and declares the host function; repeat calls for the
// same handler name are no-ops that return the cached identifier.
func (p *Plugin) Function(name string, sig Signature, h Handler) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	if h == nil {
		return "", fmt.Errorf("handler %q: %w", name, ErrNilHandler)
	}
	if err := sig.Validate(); err != nil {
		return "", fmt.Errorf("handler %q: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	b, created := p.method(name, sig, h)
	if !created {
		return b.FuncName(), nil
	}

	if err := p.host.Declare(b.FuncDecl()); err != nil {
		// Forget the binding so a later registration can retry.
		delete(p.methods, name)
		return "", fmt.Errorf("declare function %s: %w", b.FuncName(), err)
	}

	p.log.Debug("declared host function",
		zap.String("plugin", p.name),
		zap.String("handler", name),
		zap.String("function", b.FuncName()))

	return b.FuncName(), nil
}

// Command binds a user-supplied ex command name to a previously
// created function binding. Binding a handler that already has a
// command is a no-op returning the cached command name.
func (p *Plugin) Command(command, handler string) (string, error) {
	if command == "" {
		return "", ErrEmptyName
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.methods[handler]
	if !ok {
		return "", fmt.Errorf("plugin %q: handler %q: %w", p.name, handler, ErrHandlerNotFound)
	}
	if b.commandName != "" {
		return b.commandName, nil
	}

	if err := p.host.Declare(b.renderCommandDecl(command)); err != nil {
		return "", fmt.Errorf("declare command %s: %w", command, err)
	}
	b.commandName = command

	p.log.Debug("declared host command",
		zap.String("plugin", p.name),
		zap.String("handler", handler),
		zap.String("command", command))

	return command, nil
}

// Settings returns the plugin's settings store, creating and loading
// it on first access. The store shares the plugin's lifetime.
func (p *Plugin) Settings() (*settings.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.settings == nil {
		st, err := settings.Open(p.settingsDir, p.name, p.log)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", p.name, err)
		}
		p.settings = st
	}
	return p.settings, nil
}

// Handlers returns the registered handler names in no particular order.
func (p *Plugin) Handlers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.methods))
	for name := range p.methods {
		names = append(names, name)
	}
	return names
}
