package eventstore

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/rootstore/internal/ir"
	"github.com/roach88/rootstore/internal/store"
)

// Aggregate folds root's events on top of its snapshot. It returns nil and
// no error when root has neither a snapshot nor events.
func (s *Store) Aggregate(ctx context.Context, root string) (*ir.Aggregate, error) {
	return s.AggregateAt(ctx, root, time.Time{})
}

// AggregateAt is Aggregate restricted to events saved strictly before
// before. A zero before folds every event.
func (s *Store) AggregateAt(ctx context.Context, root string, before time.Time) (*ir.Aggregate, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.Aggregate",
		trace.WithAttributes(attribute.String("rootstore.root", root)))
	defer span.End()

	agg, err := s.aggregate(ctx, root, before)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate failed")
		return nil, err
	}
	return agg, nil
}

func (s *Store) aggregate(ctx context.Context, root string, before time.Time) (*ir.Aggregate, error) {
	meta := map[string]any{"root": root}

	state := ir.IRObject{}
	last := int64(-1)
	snapshotHash := ""
	hasSnapshot := false

	snap, err := s.db.ReadSnapshot(ctx, root)
	switch {
	case err == nil:
		state = snap.State
		last = snap.LastEventNumber
		snapshotHash = snap.Hash
		hasSnapshot = true
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, classify(err, "read snapshot failed", meta)
	}

	events, err := s.db.ReadEvents(ctx, store.EventRange{
		Root:        root,
		From:        last + 1,
		SavedBefore: before,
	})
	if err != nil {
		return nil, classify(err, "read events failed", meta)
	}
	if !hasSnapshot && len(events) == 0 {
		return nil, nil
	}

	folded, lastNumber, err := s.registry.Fold(state, last, events)
	if err != nil {
		return nil, classify(err, "fold failed", meta)
	}
	return &ir.Aggregate{
		Root:            root,
		State:           folded,
		LastEventNumber: lastNumber,
		Events:          events,
		SnapshotHash:    snapshotHash,
	}, nil
}

// Get is Aggregate for callers that treat an unknown root as an error.
func (s *Store) Get(ctx context.Context, root string) (*ir.Aggregate, error) {
	agg, err := s.Aggregate(ctx, root)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, notFound("root not found", map[string]any{"root": root})
	}
	return agg, nil
}
