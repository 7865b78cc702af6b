// Package hosttest provides a recording in-memory Host for tests.
package hosttest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Host is a fake editor host. It records declarations and commands and
// serves Eval from a configurable expression table, mimicking the
// call-frame variables a real host exposes during a dispatched call.
type Host struct {
	mu sync.Mutex

	// Declarations holds every source block passed to Declare, in order.
	Declarations []string

	// Commands holds every ex command passed to Command, in order.
	Commands []string

	// DeclareErr, when set, is returned by the next Declare calls.
	DeclareErr error

	vars map[string]string
}

// New creates an empty fake host.
func New() *Host {
	return &Host{vars: make(map[string]string)}
}

// SetArg exposes a named call-frame argument (a:name).
func (h *Host) SetArg(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vars["a:"+name] = value
}

// SetExtras exposes variadic call-frame values (a:0, a:1, ...).
func (h *Host) SetExtras(values ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vars["a:0"] = strconv.Itoa(len(values))
	for i, v := range values {
		h.vars["a:"+strconv.Itoa(i+1)] = v
	}
}

// SetRange exposes the selection range (a:firstline, a:lastline).
func (h *Host) SetRange(first, last int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vars["a:firstline"] = strconv.Itoa(first)
	h.vars["a:lastline"] = strconv.Itoa(last)
}

// Declare records the declaration source.
func (h *Host) Declare(src string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.DeclareErr != nil {
		return h.DeclareErr
	}
	h.Declarations = append(h.Declarations, src)
	return nil
}

// Eval serves expressions from the configured table.
func (h *Host) Eval(expr string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.vars[expr]
	if !ok {
		return "", fmt.Errorf("undefined expression %q", expr)
	}
	return v, nil
}

// Command records the ex command.
func (h *Host) Command(cmd string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Commands = append(h.Commands, cmd)
	return nil
}

// LastReturn returns the payload of the most recent `return "..."`
// command, if any.
func (h *Host) LastReturn() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.Commands) - 1; i >= 0; i-- {
		cmd := h.Commands[i]
		if strings.HasPrefix(cmd, "return ") {
			payload := strings.TrimPrefix(cmd, "return ")
			if unquoted, err := strconv.Unquote(payload); err == nil {
				return unquoted, true
			}
			return payload, true
		}
	}
	return "", false
}

// HasCommand reports whether an exact command was recorded.
func (h *Host) HasCommand(cmd string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.Commands {
		if c == cmd {
			return true
		}
	}
	return false
}
