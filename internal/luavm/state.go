// Package luavm wraps gopher-lua for plugin execution.
//
// Each plugin runs in its own State with a reduced standard library:
// file and process access is withheld because plugin scripts only need
// to register handlers and touch their own settings through the bridge
// module. The package loader stays available so a plugin can require
// modules shipped next to its entry script.
package luavm

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// State wraps a gopher-lua LState.
//
// LState is not goroutine-safe. The bridge's call path is synchronous
// end-to-end, so operations never overlap in practice; the mutex
// guards against accidental concurrent use from Go code.
type State struct {
	L *lua.LState

	mu     sync.Mutex
	closed bool
}

// NewState creates a Lua state with the reduced library set.
func NewState() *State {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	openLibraries(L)
	removeUnsafeGlobals(L)

	return &State{L: L}
}

// openLibraries opens the libraries plugin scripts may use.
// io, os, and debug stay closed.
func openLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenPackage(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// removeUnsafeGlobals strips base-library entry points that reach the
// filesystem or load arbitrary chunks.
func removeUnsafeGlobals(L *lua.LState) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
	// require stays, but the C loader does not.
	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		pkg.RawSetString("loadlib", lua.LNil)
	}
}

// DoFile executes a Lua file with panic recovery.
func (s *State) DoFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	return s.withRecovery(func() error {
		return s.L.DoFile(path)
	})
}

// DoString executes Lua source with panic recovery.
func (s *State) DoString(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	return s.withRecovery(func() error {
		return s.L.DoString(code)
	})
}

// Call invokes a global Lua function and returns its results.
func (s *State) Call(fn string, args ...lua.LValue) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}

	fnVal := s.L.GetGlobal(fn)
	if fnVal == lua.LNil {
		return nil, fmt.Errorf("function %q: %w", fn, ErrNotFunction)
	}
	if fnVal.Type() != lua.LTFunction {
		return nil, fmt.Errorf("function %q is %s: %w", fn, fnVal.Type(), ErrNotFunction)
	}

	stackTop := s.L.GetTop()
	s.L.Push(fnVal)
	for _, arg := range args {
		s.L.Push(arg)
	}

	var callErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				callErr = fmt.Errorf("lua panic: %v", r)
			}
		}()
		callErr = s.L.PCall(len(args), lua.MultRet, nil)
	}()
	if callErr != nil {
		return nil, callErr
	}

	nRet := s.L.GetTop() - stackTop
	if nRet <= 0 {
		return []lua.LValue{}, nil
	}
	results := make([]lua.LValue, nRet)
	for i := 0; i < nRet; i++ {
		results[i] = s.L.Get(stackTop + i + 1)
	}
	s.L.Pop(nRet)
	return results, nil
}

// HasFunction reports whether a global Lua function exists.
func (s *State) HasFunction(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	return s.L.GetGlobal(name).Type() == lua.LTFunction
}

// AddPackagePath appends dir's Lua module pattern to package.path
// unless it is already present, so repeated loads do not grow the
// search path.
func (s *State) AddPackagePath(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return fmt.Errorf("package library not loaded")
	}

	pattern := dir + "/?.lua"
	current := lua.LVAsString(pkg.RawGetString("path"))
	for _, entry := range strings.Split(current, ";") {
		if entry == pattern {
			return nil
		}
	}

	if current == "" {
		pkg.RawSetString("path", lua.LString(pattern))
	} else {
		pkg.RawSetString("path", lua.LString(current+";"+pattern))
	}
	return nil
}

// PackagePath returns the current Lua module search path.
func (s *State) PackagePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ""
	}
	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return ""
	}
	return lua.LVAsString(pkg.RawGetString("path"))
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.SetGlobal(name, value)
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// IsClosed reports whether Close has been called.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. Further calls return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}

// withRecovery runs fn converting Lua panics into errors.
func (s *State) withRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
