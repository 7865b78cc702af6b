// Package nvim implements the host surface against a live Neovim
// instance over msgpack-RPC.
package nvim

import (
	"fmt"

	gonvim "github.com/neovim/go-client/nvim"
)

// dispatchShim is the host-side half of the callback path. Generated
// function bodies call luabridge#dispatch, which re-enters the bridge
// process over RPC by (plugin name, handler name).
const dispatchShim = `function! luabridge#dispatch(plugin, handler)
  return rpcrequest(g:luabridge_channel, 'luabridge_dispatch', a:plugin, a:handler)
endfunction`

// Host is a Neovim-backed host connection.
type Host struct {
	n *gonvim.Nvim
}

// Dial connects to a Neovim instance listening on addr (the value
// Neovim exports as $NVIM to child processes).
func Dial(addr string) (*Host, error) {
	n, err := gonvim.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("nvim: dial %s: %w", addr, err)
	}
	return &Host{n: n}, nil
}

// Declare compiles generated script source into Neovim.
func (h *Host) Declare(src string) error {
	if _, err := h.n.Exec(src, false); err != nil {
		return fmt.Errorf("nvim: declare: %w", err)
	}
	return nil
}

// Eval evaluates a host expression. Call-frame expressions ("a:name")
// are only meaningful while a dispatched call is in flight.
func (h *Host) Eval(expr string) (string, error) {
	var out any
	if err := h.n.Eval(expr, &out); err != nil {
		return "", fmt.Errorf("nvim: eval %s: %w", expr, err)
	}
	if out == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", out), nil
}

// Command executes a single ex command.
func (h *Host) Command(cmd string) error {
	if err := h.n.Command(cmd); err != nil {
		return fmt.Errorf("nvim: command: %w", err)
	}
	return nil
}

// BindDispatch wires the callback path: it registers the RPC handler
// the generated declarations re-enter through and declares the
// dispatch shim on the Neovim side.
func (h *Host) BindDispatch(dispatch func(plugin, handler string) error) error {
	if err := h.n.RegisterHandler("luabridge_dispatch", func(plugin, handler string) error {
		return dispatch(plugin, handler)
	}); err != nil {
		return fmt.Errorf("nvim: register dispatch handler: %w", err)
	}
	if err := h.Command(fmt.Sprintf("let g:luabridge_channel = %d", h.n.ChannelID())); err != nil {
		return err
	}
	return h.Declare(dispatchShim)
}

// Close closes the RPC connection.
func (h *Host) Close() error {
	return h.n.Close()
}
