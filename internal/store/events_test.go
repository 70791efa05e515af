package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootstore/internal/ir"
)

func TestInsertEvent_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := createTestEvent("r", 0)
	e.Headers.Context = ir.IRObject{"network": ir.IRString("local")}
	e.Headers.Claims = &ir.Claims{Sub: "user-1"}
	e.Headers.Path = []ir.Hop{{Network: "local", Host: "h", Procedure: "append", Hash: "x"}}
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error { return tx.InsertEvent(ctx, e) }))

	got, err := s.ReadEvent(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Number, got.Number)
	assert.True(t, e.Saved.Equal(got.Saved))
	assert.True(t, e.Payload.Equal(got.Payload))
	assert.Equal(t, e.Headers.Topic, got.Headers.Topic)
	assert.Equal(t, "user-1", got.Headers.Claims.Sub)
	assert.True(t, e.Headers.Context.Equal(got.Headers.Context))
	assert.Equal(t, []string{}, got.Proofs)

	// The stored record hashes identically to the written one.
	assert.Equal(t, ir.MustRecordHash(e.Record()), ir.MustRecordHash(got.Record()))
}

func TestInsertEvent_DuplicateIsConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := createTestEvent("r", 0)
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error { return tx.InsertEvent(ctx, e) }))

	tests := []struct {
		name   string
		mutate func(ir.Event) ir.Event
	}{
		{"same id", func(e ir.Event) ir.Event { e.Headers.Idempotency = "other"; return e }},
		{"same idempotency", func(e ir.Event) ir.Event {
			e.Number, e.ID = 1, ir.EventID(e.Root, 1)
			return e
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.InTx(ctx, func(tx *Tx) error { return tx.InsertEvent(ctx, tt.mutate(e)) })
			require.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestReadEvent_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadEvent(context.Background(), "missing_0")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadEvents_Ranges(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	appendTestEvents(t, s, "a", 4)
	appendTestEvents(t, s, "b", 2)

	numbers := func(events []ir.Event) []string {
		out := make([]string, len(events))
		for i, e := range events {
			out[i] = e.ID
		}
		return out
	}

	tests := []struct {
		name     string
		r        EventRange
		expected []string
	}{
		{"one root", EventRange{Root: "a"}, []string{"a_0", "a_1", "a_2", "a_3"}},
		{"from", EventRange{Root: "a", From: 2}, []string{"a_2", "a_3"}},
		{"limit", EventRange{Root: "a", Limit: 1}, []string{"a_0"}},
		{"saved before", EventRange{Root: "a", SavedBefore: testEpoch.Add(2 * time.Second)}, []string{"a_0", "a_1"}},
		{"all roots", EventRange{}, []string{"a_0", "a_1", "a_2", "a_3", "b_0", "b_1"}},
		{"keyset", EventRange{After: &EventKey{Root: "a", Number: 3}, Limit: 10}, []string{"b_0", "b_1"}},
		{"unknown root", EventRange{Root: "zzz"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := s.ReadEvents(ctx, tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, numbers(events))
		})
	}
}

func TestAppendEventProof(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	appendTestEvents(t, s, "r", 1)

	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.AppendEventProof(ctx, "r_0", "block-1"); err != nil {
			return err
		}
		return tx.AppendEventProof(ctx, "r_0", "block-2")
	})
	require.NoError(t, err)

	e, err := s.ReadEvent(ctx, "r_0")
	require.NoError(t, err)
	assert.Equal(t, []string{"block-1", "block-2"}, e.Proofs)

	err = s.InTx(ctx, func(tx *Tx) error { return tx.AppendEventProof(ctx, "missing_0", "p") })
	require.ErrorIs(t, err, ErrNotFound)
}
