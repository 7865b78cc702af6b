// Package bridge generates host-callable bindings for interpreter-side
// handlers.
//
// A Plugin owns a namespace of handlers. Registering a handler through
// Plugin.Function synthesizes a host function declaration whose body
// re-enters the bridge by (plugin name, handler name); Plugin.Command
// layers a user-named ex command on top of an existing function
// binding. The process-wide Registry routes host callbacks back to the
// right Binding, which marshals the call-frame values and invokes the
// handler.
//
// Binding generation is idempotent: the host identifier and declaration
// for a handler are produced exactly once and memoized, so repeated
// registration never re-declares anything on the host side.
package bridge
