// Package host defines the surface the bridge uses to talk to the
// editor side.
//
// A Host is one connection to the editor's scripting environment. The
// bridge generates script source (function and command declarations)
// and hands it to Declare, evaluates call-frame expressions such as
// "a:name" through Eval while a dispatched call is in flight, and
// executes ex commands through Command. All three are synchronous; the
// bridge never calls a Host concurrently.
package host

// Host is the editor-side scripting surface.
type Host interface {
	// Declare compiles generated script source (a function or command
	// declaration) into the host environment.
	Declare(src string) error

	// Eval evaluates a host expression and returns its value as a
	// string. During a dispatched call this is how argument values are
	// read from the live call frame ("a:name", "a:0", "a:firstline").
	Eval(expr string) (string, error)

	// Command executes a single ex command ("return \"x\"",
	// "let g:loaded_foo = 1").
	Command(cmd string) error
}
