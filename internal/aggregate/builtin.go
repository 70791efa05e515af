package aggregate

import (
	"fmt"
	"slices"

	"github.com/roach88/rootstore/internal/ir"
)

// Replace is the handler whose payload becomes the whole new state.
func Replace(_ ir.IRObject, payload ir.IRObject) (ir.IRObject, error) {
	return payload, nil
}

// builtins are the handlers a configuration file can refer to by name.
var builtins = map[string]Handler{
	"merge":   Merge,
	"replace": Replace,
}

// Builtin returns the named built-in handler.
func Builtin(name string) (Handler, bool) {
	h, ok := builtins[name]
	return h, ok
}

// BuiltinNames lists the built-in handler names, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// FromNames builds a registry mapping each action to a built-in handler.
func FromNames(actions map[string]string) (*Registry, error) {
	handlers := make(map[string]Handler, len(actions))
	for action, name := range actions {
		h, ok := Builtin(name)
		if !ok {
			return nil, fmt.Errorf("aggregate: action %q: unknown handler %q (have %v)", action, name, BuiltinNames())
		}
		handlers[action] = h
	}
	return NewRegistry(handlers)
}
