package eventstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/rootstore/internal/ir"
	"github.com/roach88/rootstore/internal/store"
)

// rootBatch is the slice of a submission that targets one root, in
// submission order.
type rootBatch struct {
	root    string
	indexes []int
}

// Append validates proposed, assigns each root's next numbers and writes the
// whole batch in one transaction. Events are returned in submission order.
//
// A proposed event carrying Number asserts the number it expects; any
// mismatch, or a duplicate idempotency key, fails the batch with a
// concurrency conflict and writes nothing. Notifications are published after
// commit; publish failures are logged and do not undo the write.
func (s *Store) Append(ctx context.Context, proposed []ir.ProposedEvent) ([]ir.Event, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.Append",
		trace.WithAttributes(attribute.Int("rootstore.events", len(proposed))))
	defer span.End()

	if len(proposed) == 0 {
		return []ir.Event{}, nil
	}

	headers := make([]ir.Headers, len(proposed))
	for i, p := range proposed {
		h, err := s.validate(p)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			return nil, err
		}
		headers[i] = h
	}

	batches := groupByRoot(proposed)
	events := make([]ir.Event, len(proposed))

	err := s.db.InTx(ctx, func(tx *store.Tx) error {
		// Read under the write lock: a block boundary taken after this commit
		// is never earlier than saved.
		saved := s.now()
		for _, b := range batches {
			count := int64(len(b.indexes))
			reserved, err := tx.Increment(ctx, b.root, count, saved)
			if err != nil {
				return err
			}
			start := reserved - count

			for i, idx := range b.indexes {
				number := start + int64(i)
				p := proposed[idx]
				if p.Number != nil && *p.Number != number {
					return concurrencyConflict(nil, "event number already taken", map[string]any{
						"root":     b.root,
						"expected": number,
						"proposed": *p.Number,
					})
				}

				e, err := s.buildEvent(p, headers[idx], number, saved)
				if err != nil {
					return err
				}
				if err := tx.InsertEvent(ctx, e); err != nil {
					return err
				}
				events[idx] = e
			}
		}
		return nil
	})
	if err != nil {
		err = classify(err, "append failed", map[string]any{"events": len(proposed)})
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return nil, err
	}

	s.logger.WithContext(ctx).Debug("events appended", "events", len(events), "roots", len(batches))
	s.publish(ctx, events)
	s.notify.broadcast()
	return events, nil
}

// validate checks routing and payload of p and returns its headers with the
// store's defaults filled in.
func (s *Store) validate(p ir.ProposedEvent) (ir.Headers, error) {
	h := p.Headers
	meta := map[string]any{"root": p.Root, "topic": h.Topic}

	if strings.TrimSpace(p.Root) == "" {
		return h, invalidPayload(nil, "root is required", meta)
	}

	if h.Topic == "" && h.Action != "" {
		h.Topic = ir.Topic(h.Action, s.opts.Domain, s.opts.Service)
	}
	action, ok := s.topicAction(h.Topic)
	if !ok {
		return h, domainMismatch(
			fmt.Sprintf("topic %q is not routed to %s.%s", h.Topic, s.opts.Domain, s.opts.Service), meta)
	}
	if (h.Domain != "" && h.Domain != s.opts.Domain) || (h.Service != "" && h.Service != s.opts.Service) {
		return h, domainMismatch(
			fmt.Sprintf("headers name %s.%s, store is %s.%s", h.Domain, h.Service, s.opts.Domain, s.opts.Service), meta)
	}
	switch h.Action {
	case "":
		h.Action = action
	case action:
	default:
		return h, invalidPayload(nil, fmt.Sprintf("action %q does not match topic %q", h.Action, h.Topic), meta)
	}
	h.Domain = s.opts.Domain
	h.Service = s.opts.Service

	if !s.registry.Has(h.Action) {
		return h, unknownAction(nil, fmt.Sprintf("no handler for action %q", h.Action),
			map[string]any{"root": p.Root, "action": h.Action})
	}
	if err := s.opts.Schemas.Validate(h.Action, p.Payload); err != nil {
		return h, invalidPayload(err, "payload rejected by schema",
			map[string]any{"root": p.Root, "action": h.Action})
	}
	if _, err := ir.MarshalCanonical(p.Payload); err != nil {
		return h, invalidPayload(err, "payload is not canonical",
			map[string]any{"root": p.Root, "action": h.Action})
	}
	if _, err := ir.MarshalCanonical(h.IR()); err != nil {
		return h, invalidPayload(err, "headers are not canonical",
			map[string]any{"root": p.Root, "action": h.Action})
	}
	return h, nil
}

// topicAction returns the action prefix of topic when its last two segments
// are this store's domain and service.
func (s *Store) topicAction(topic string) (string, bool) {
	suffix := "." + s.opts.Domain + "." + s.opts.Service
	action, ok := strings.CutSuffix(topic, suffix)
	if !ok || action == "" {
		return "", false
	}
	return action, true
}

func (s *Store) buildEvent(p ir.ProposedEvent, h ir.Headers, number int64, saved time.Time) (ir.Event, error) {
	if h.Idempotency == "" {
		h.Idempotency = s.opts.NewID()
	}
	if h.Created.IsZero() {
		h.Created = saved
	}
	payload := p.Payload
	if payload == nil {
		payload = ir.IRObject{}
	}

	e := ir.Event{
		ID:      ir.EventID(p.Root, number),
		Root:    p.Root,
		Number:  number,
		Saved:   saved,
		Payload: payload,
		Headers: h,
		Proofs:  []string{},
	}
	hash, err := s.opts.Hash(e.Record())
	if err != nil {
		return ir.Event{}, fmt.Errorf("hash event %s: %w", e.ID, err)
	}
	e.Hash = hash
	return e, nil
}

func (s *Store) publish(ctx context.Context, events []ir.Event) {
	logger := s.logger.WithContext(ctx)
	for _, e := range events {
		err := s.opts.Publisher.Publish(ctx, e.Headers.Topic, Notification{Root: e.Root})
		if err != nil {
			logger.Warn("publish failed", "topic", e.Headers.Topic, "root", e.Root, "number", e.Number, "error", err)
		}
	}
}

func groupByRoot(proposed []ir.ProposedEvent) []rootBatch {
	var batches []rootBatch
	positions := map[string]int{}
	for i, p := range proposed {
		pos, ok := positions[p.Root]
		if !ok {
			pos = len(batches)
			positions[p.Root] = pos
			batches = append(batches, rootBatch{root: p.Root})
		}
		batches[pos].indexes = append(batches[pos].indexes, i)
	}
	return batches
}
