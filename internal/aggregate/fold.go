package aggregate

import (
	"fmt"

	"github.com/roach88/rootstore/internal/ir"
)

// Fold applies events in order on top of state. lastEventNumber is the
// number of the last event already reflected in state, or -1 for none.
// It returns the new state and the number of the last applied event.
//
// Handlers receive clones, so state and event payloads are never mutated.
func (r *Registry) Fold(state ir.IRObject, lastEventNumber int64, events []ir.Event) (ir.IRObject, int64, error) {
	if state == nil {
		state = ir.IRObject{}
	}
	current := state.Clone()
	last := lastEventNumber

	for _, e := range events {
		h, ok := r.handlers[e.Headers.Action]
		if !ok {
			return nil, 0, fmt.Errorf("event %s: %w: %q", e.ID, ErrUnknownAction, e.Headers.Action)
		}
		next, err := h(current, e.Payload.Clone())
		if err != nil {
			return nil, 0, fmt.Errorf("event %s: handler %q: %w", e.ID, e.Headers.Action, err)
		}
		if next == nil {
			next = ir.IRObject{}
		}
		current = next
		last = e.Number
	}
	return current, last, nil
}
