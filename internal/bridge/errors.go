package bridge

import "errors"

// Bridge errors.
var (
	// ErrDuplicateName is returned when a plugin name is already registered.
	ErrDuplicateName = errors.New("plugin name already registered")

	// ErrNotFound is returned when a plugin cannot be located.
	ErrNotFound = errors.New("plugin not found")

	// ErrHandlerNotFound is returned when a handler has no binding.
	ErrHandlerNotFound = errors.New("handler not found")

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = errors.New("handler is nil")

	// ErrEmptyName is returned when a plugin, handler, or command name is empty.
	ErrEmptyName = errors.New("name is empty")

	// ErrDuplicateParam is returned when a signature repeats a parameter name.
	ErrDuplicateParam = errors.New("duplicate parameter name")

	// ErrInvalidParam is returned when a parameter name is not a legal identifier.
	ErrInvalidParam = errors.New("invalid parameter name")
)
