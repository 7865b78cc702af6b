package luavm

import "errors"

// Lua runtime errors.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrNotFunction is returned when a named global is missing or not callable.
	ErrNotFunction = errors.New("not a lua function")
)
