package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/dshills/luabridge/internal/host"
)

// Range is the host's (firstline, lastline) selection pair, passed to
// range-aware handlers as a context value distinct from the positional
// arguments.
type Range struct {
	First int
	Last  int
}

// Handler is an interpreter-side function invocable from the host.
// args holds the marshalled positional values in declaration order,
// followed by any variadic extras. rng is non-nil only when the
// handler's signature requests a range context. The returned string is
// surfaced to the host as the call's return value.
type Handler func(args []string, rng *Range) (string, error)

// Binding ties one handler to its generated host-callable identifier
// and declaration. A Binding is created once per handler name and
// cached by the owning plugin's method registry.
type Binding struct {
	plugin  string
	name    string
	sig     Signature
	handler Handler

	funcName string
	funcDecl string

	commandName string
}

// newBinding derives the host identifier and declaration text for a
// handler. Both are computed exactly once, here.
func newBinding(plugin, name string, sig Signature, h Handler) *Binding {
	b := &Binding{
		plugin:  plugin,
		name:    name,
		sig:     sig,
		handler: h,
	}
	b.funcName = hostFuncName(plugin, name)
	b.funcDecl = b.renderFuncDecl()
	return b
}

// Name returns the handler name within its plugin.
func (b *Binding) Name() string { return b.name }

// FuncName returns the derived host function identifier.
func (b *Binding) FuncName() string { return b.funcName }

// FuncDecl returns the generated host function declaration.
func (b *Binding) FuncDecl() string { return b.funcDecl }

// CommandName returns the bound ex command name, or "" if no command
// binding exists for this handler.
func (b *Binding) CommandName() string { return b.commandName }

// renderFuncDecl synthesizes the host function declaration. The body
// has a fixed shape: it re-enters the bridge by (plugin name, handler
// name) through the dispatch shim.
func (b *Binding) renderFuncDecl() string {
	rangeAttr := ""
	if b.sig.Range {
		rangeAttr = " range"
	}
	return fmt.Sprintf(
		"function! %s(%s)%s\n  call luabridge#dispatch('%s', '%s')\nendfunction",
		b.funcName, b.sig.hostParams(), rangeAttr, b.plugin, b.name,
	)
}

// renderCommandDecl synthesizes an ex command declaration forwarding to
// the function binding.
func (b *Binding) renderCommandDecl(command string) string {
	rangeAttr := ""
	if b.sig.Range {
		rangeAttr = " -range"
	}
	return fmt.Sprintf(
		"command! -nargs=%s%s %s call %s(<f-args>)",
		b.sig.Nargs(), rangeAttr, command, b.funcName,
	)
}

// Run marshals the live call-frame values from h and invokes the
// handler, issuing the host return directive with the stringified
// result. Handler failures propagate to the caller; they do not touch
// registry state.
func (b *Binding) Run(h host.Host) error {
	args := make([]string, 0, len(b.sig.Params))
	for _, p := range b.sig.Params {
		if p.Optional {
			continue
		}
		v, err := h.Eval("a:" + p.Name)
		if err != nil {
			return fmt.Errorf("handler %s.%s: argument %q: %w", b.plugin, b.name, p.Name, err)
		}
		args = append(args, v)
	}

	if b.sig.takesExtras() {
		raw, err := h.Eval("a:0")
		if err != nil {
			return fmt.Errorf("handler %s.%s: extra argument count: %w", b.plugin, b.name, err)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("handler %s.%s: extra argument count %q: %w", b.plugin, b.name, raw, err)
		}
		for i := 1; i <= n; i++ {
			v, err := h.Eval("a:" + strconv.Itoa(i))
			if err != nil {
				return fmt.Errorf("handler %s.%s: extra argument %d: %w", b.plugin, b.name, i, err)
			}
			args = append(args, v)
		}
	}

	var rng *Range
	if b.sig.Range {
		first, err := evalInt(h, "a:firstline")
		if err != nil {
			return fmt.Errorf("handler %s.%s: %w", b.plugin, b.name, err)
		}
		last, err := evalInt(h, "a:lastline")
		if err != nil {
			return fmt.Errorf("handler %s.%s: %w", b.plugin, b.name, err)
		}
		rng = &Range{First: first, Last: last}
	}

	out, err := b.handler(args, rng)
	if err != nil {
		return fmt.Errorf("handler %s.%s: %w", b.plugin, b.name, err)
	}

	return h.Command("return " + strconv.Quote(out))
}

// evalInt evaluates a host expression expected to hold an integer.
func evalInt(h host.Host, expr string) (int, error) {
	raw, err := h.Eval(expr)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", expr, err)
	}
	return n, nil
}

// hostFuncName derives the host function identifier from the plugin
// and handler names. Separator characters are normalized to
// underscores and the result starts with an upper-case letter so it is
// a legal global host function name. The derivation is deterministic.
func hostFuncName(plugin, name string) string {
	s := sanitizeIdent(plugin) + "_" + sanitizeIdent(name)
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// sanitizeIdent replaces characters the host forbids in identifiers.
func sanitizeIdent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case r == '_', unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsDigit(r) && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
