package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/rootstore/internal/ir"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEvent creates an event with minimal required fields.
func createTestEvent(root string, number int64) ir.Event {
	saved := testEpoch.Add(time.Duration(number) * time.Second)
	return ir.Event{
		ID:      ir.EventID(root, number),
		Root:    root,
		Number:  number,
		Saved:   saved,
		Payload: ir.IRObject{"n": ir.IRInt(number)},
		Headers: ir.Headers{
			Topic:       ir.Topic("add", "test", "store"),
			Action:      "add",
			Domain:      "test",
			Service:     "store",
			Idempotency: ir.EventID(root, number) + "-idem",
			Created:     saved,
		},
		Hash: "hash-" + ir.EventID(root, number),
	}
}

// appendTestEvents reserves numbers and inserts events for root the way the
// append path does.
func appendTestEvents(t *testing.T, s *Store, root string, count int) []ir.Event {
	t.Helper()
	ctx := context.Background()

	var events []ir.Event
	err := s.InTx(ctx, func(tx *Tx) error {
		value, err := tx.Increment(ctx, root, int64(count), testEpoch)
		if err != nil {
			return err
		}
		for n := value - int64(count); n < value; n++ {
			e := createTestEvent(root, n)
			if err := tx.InsertEvent(ctx, e); err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append %s: %v", root, err)
	}
	return events
}
