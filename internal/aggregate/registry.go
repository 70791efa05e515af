// Package aggregate folds a root's events into its current state.
package aggregate

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rootstore/internal/ir"
)

// ErrUnknownAction is returned when an event's action has no handler.
var ErrUnknownAction = errors.New("unknown action")

// Handler computes the next state from the current state and an event
// payload. Handlers must be pure: the same inputs always give the same output.
type Handler func(state, payload ir.IRObject) (ir.IRObject, error)

// Merge is the shallow-merge handler: every payload key overwrites state.
func Merge(state, payload ir.IRObject) (ir.IRObject, error) {
	return state.Merge(payload), nil
}

// Registry maps action names to handlers. It is immutable after NewRegistry.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry validates handlers and returns a registry over a copy of them.
func NewRegistry(handlers map[string]Handler) (*Registry, error) {
	if len(handlers) == 0 {
		return nil, fmt.Errorf("aggregate: at least one handler is required")
	}
	copied := make(map[string]Handler, len(handlers))
	for action, h := range handlers {
		if strings.TrimSpace(action) == "" {
			return nil, fmt.Errorf("aggregate: empty action name")
		}
		if strings.Contains(action, ".") {
			return nil, fmt.Errorf("aggregate: action %q must not contain '.'", action)
		}
		if h == nil {
			return nil, fmt.Errorf("aggregate: nil handler for action %q", action)
		}
		copied[action] = h
	}
	return &Registry{handlers: copied}, nil
}

// MustRegistry is like NewRegistry but panics on error.
// Use only in tests or for static handler tables.
func MustRegistry(handlers map[string]Handler) *Registry {
	r, err := NewRegistry(handlers)
	if err != nil {
		panic(err)
	}
	return r
}

// Has reports whether action has a handler.
func (r *Registry) Has(action string) bool {
	_, ok := r.handlers[action]
	return ok
}

// Actions returns the registered action names, sorted.
func (r *Registry) Actions() []string {
	actions := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		actions = append(actions, a)
	}
	slices.Sort(actions)
	return actions
}
