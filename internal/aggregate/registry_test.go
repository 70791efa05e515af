package aggregate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootstore/internal/ir"
)

func event(root string, number int64, action string, payload ir.IRObject) ir.Event {
	return ir.Event{
		ID:      ir.EventID(root, number),
		Root:    root,
		Number:  number,
		Payload: payload,
		Headers: ir.Headers{Action: action},
	}
}

func counter(state, payload ir.IRObject) (ir.IRObject, error) {
	n, _ := state["total"].(ir.IRInt)
	by, ok := payload["by"].(ir.IRInt)
	if !ok {
		return nil, errors.New("by must be an integer")
	}
	return state.Merge(ir.IRObject{"total": n + by}), nil
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name     string
		handlers map[string]Handler
	}{
		{"empty", map[string]Handler{}},
		{"blank action", map[string]Handler{" ": Merge}},
		{"dotted action", map[string]Handler{"a.b": Merge}},
		{"nil handler", map[string]Handler{"add": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.handlers)
			require.Error(t, err)
		})
	}

	r, err := NewRegistry(map[string]Handler{"b": Merge, "a": Merge})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.Actions())
	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("c"))
	assert.Panics(t, func() { MustRegistry(nil) })
}

func TestFoldMergeHandler(t *testing.T) {
	r := MustRegistry(map[string]Handler{"add": Merge})

	state, last, err := r.Fold(nil, -1, []ir.Event{
		event("r", 0, "add", ir.IRObject{"x": ir.IRInt(1)}),
		event("r", 1, "add", ir.IRObject{"x": ir.IRInt(2)}),
	})
	require.NoError(t, err)
	assert.True(t, state.Equal(ir.IRObject{"x": ir.IRInt(2)}))
	assert.Equal(t, int64(1), last)
}

func TestFoldNoEventsKeepsState(t *testing.T) {
	r := MustRegistry(map[string]Handler{"add": Merge})
	start := ir.IRObject{"x": ir.IRInt(5)}

	state, last, err := r.Fold(start, 9, nil)
	require.NoError(t, err)
	assert.True(t, state.Equal(start))
	assert.Equal(t, int64(9), last)
}

func TestFoldUnknownAction(t *testing.T) {
	r := MustRegistry(map[string]Handler{"add": Merge})

	_, _, err := r.Fold(nil, -1, []ir.Event{event("r", 0, "remove", ir.IRObject{})})
	require.ErrorIs(t, err, ErrUnknownAction)
	assert.Contains(t, err.Error(), "remove")
}

func TestFoldHandlerError(t *testing.T) {
	r := MustRegistry(map[string]Handler{"inc": counter})

	_, _, err := r.Fold(nil, -1, []ir.Event{event("r", 0, "inc", ir.IRObject{"by": ir.IRString("x")})})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownAction)
}

func TestFoldDoesNotMutateInputs(t *testing.T) {
	mutating := func(state, payload ir.IRObject) (ir.IRObject, error) {
		state["touched"] = ir.IRBool(true)
		payload["touched"] = ir.IRBool(true)
		return state, nil
	}
	r := MustRegistry(map[string]Handler{"touch": mutating})

	start := ir.IRObject{"x": ir.IRInt(1)}
	e := event("r", 0, "touch", ir.IRObject{})
	_, _, err := r.Fold(start, -1, []ir.Event{e})
	require.NoError(t, err)

	assert.NotContains(t, start, "touched")
	assert.NotContains(t, e.Payload, "touched")
}

func TestFoldDeterministic(t *testing.T) {
	r := MustRegistry(map[string]Handler{"inc": counter})

	var events []ir.Event
	for i := int64(0); i < 20; i++ {
		events = append(events, event("r", i, "inc", ir.IRObject{"by": ir.IRInt(i)}))
	}

	first, _, err := r.Fold(nil, -1, events)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := r.Fold(nil, -1, events)
		require.NoError(t, err)
		assert.True(t, first.Equal(again))
	}
	assert.Equal(t, ir.IRInt(190), first["total"])
}

// Folding from any prefix snapshot gives the same state as folding all events.
func TestFoldSnapshotEquivalence(t *testing.T) {
	r := MustRegistry(map[string]Handler{"inc": counter, "add": Merge})

	var events []ir.Event
	for i := int64(0); i < 10; i++ {
		action := "inc"
		payload := ir.IRObject{"by": ir.IRInt(i + 1)}
		if i%3 == 0 {
			action = "add"
			payload = ir.IRObject{fmt.Sprintf("k%d", i): ir.IRInt(i)}
		}
		events = append(events, event("r", i, action, payload))
	}

	full, fullLast, err := r.Fold(nil, -1, events)
	require.NoError(t, err)

	for k := 0; k <= len(events); k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			snap, snapLast, err := r.Fold(nil, -1, events[:k])
			require.NoError(t, err)

			state, last, err := r.Fold(snap, snapLast, events[k:])
			require.NoError(t, err)
			assert.True(t, full.Equal(state))
			assert.Equal(t, fullLast, last)
		})
	}
}
