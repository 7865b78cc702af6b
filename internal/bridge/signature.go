package bridge

import (
	"fmt"
	"strings"
	"unicode"
)

// Param is one declared positional parameter of a handler.
type Param struct {
	// Name is the host-visible parameter name.
	Name string

	// Optional marks a parameter with a handler-side default. Optional
	// values arrive through the host's variadic slots rather than by
	// name.
	Optional bool
}

// Signature statically describes a handler's calling convention.
// Handlers are registered with an explicit signature; nothing is
// inferred from the handler itself.
type Signature struct {
	// Params are the declared positional parameters, in order.
	Params []Param

	// Variadic marks a handler that accepts extra positional values
	// beyond the declared parameters.
	Variadic bool

	// Range marks a handler that receives the host's (firstline,
	// lastline) selection pair as a separate context value.
	Range bool
}

// Validate checks parameter names for legality and uniqueness.
func (s Signature) Validate() error {
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if !isIdent(p.Name) {
			return fmt.Errorf("%w: %q", ErrInvalidParam, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateParam, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// requiredCount returns the number of non-optional parameters.
func (s Signature) requiredCount() int {
	n := 0
	for _, p := range s.Params {
		if !p.Optional {
			n++
		}
	}
	return n
}

// optionalCount returns the number of optional parameters.
func (s Signature) optionalCount() int {
	return len(s.Params) - s.requiredCount()
}

// takesExtras reports whether call-frame variadic slots must be read:
// either the handler is variadic or it has optional parameters, which
// the host passes through the same slots.
func (s Signature) takesExtras() bool {
	return s.Variadic || s.optionalCount() > 0
}

// Nargs derives the host command's arity directive. The rules are
// evaluated in order; the first match wins.
func (s Signature) Nargs() string {
	req := s.requiredCount()
	opt := s.optionalCount()

	switch {
	case req == 0 && opt == 0 && !s.Variadic:
		return "0"
	case req == 1 && opt == 0 && !s.Variadic:
		return "1"
	case req == 0 && opt == 1 && !s.Variadic:
		return "?"
	case req >= 1:
		return "+"
	default:
		return "*"
	}
}

// hostParams renders the declaration parameter list: required names in
// order, terminated with the variadic marker when extras are accepted.
func (s Signature) hostParams() string {
	names := make([]string, 0, len(s.Params)+1)
	for _, p := range s.Params {
		if !p.Optional {
			names = append(names, p.Name)
		}
	}
	if s.takesExtras() {
		names = append(names, "...")
	}
	return strings.Join(names, ", ")
}

// isIdent reports whether name is a legal host identifier segment.
func isIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', unicode.IsLetter(r):
		case unicode.IsDigit(r) && i > 0:
		default:
			return false
		}
	}
	return true
}
