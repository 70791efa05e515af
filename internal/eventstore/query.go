package eventstore

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rootstore/internal/ir"
	"github.com/roach88/rootstore/internal/query"
	"github.com/roach88/rootstore/internal/store"
)

// Query returns the events matching f ordered by root and number. With an
// Expr, Limit caps the matching events rather than the rows read.
func (s *Store) Query(ctx context.Context, f query.Filter) ([]ir.Event, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.Query",
		trace.WithAttributes(attribute.String("rootstore.root", f.Root)))
	defer span.End()

	events, err := s.query(ctx, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("rootstore.events", len(events)))
	return events, nil
}

func (s *Store) query(ctx context.Context, f query.Filter) ([]ir.Event, error) {
	expr, err := query.NewExpr(f.Expr)
	if err != nil {
		return nil, invalidQuery(err, "invalid query expression", map[string]any{"expr": f.Expr})
	}

	limit := f.Limit
	if expr != nil {
		f.Limit = 0
	}
	clause, args, err := query.CompileFilter(f)
	if err != nil {
		return nil, invalidQuery(err, "invalid query filter", nil)
	}

	events, err := s.db.SelectEvents(ctx, clause, args...)
	if err != nil {
		return nil, classify(err, "query failed", nil)
	}
	if expr == nil {
		return events, nil
	}

	matched, err := expr.Apply(events)
	if err != nil {
		return nil, invalidQuery(err, "query expression failed", map[string]any{"expr": expr.String()})
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// StreamOptions selects the events Stream delivers.
type StreamOptions struct {
	// Root restricts the stream to one root. Empty streams every root.
	Root string
	// From is the lowest event number delivered.
	From int64
	// Parallel bounds concurrent Fn calls within a page. Values below 2
	// deliver strictly in (root, number) order.
	Parallel int
	Fn       func(ctx context.Context, e ir.Event) error
}

// Stream delivers events one page at a time. Each page is read completely
// before Fn runs, so Fn may call back into the store. The first Fn error
// stops the stream and is returned.
func (s *Store) Stream(ctx context.Context, opts StreamOptions) error {
	if opts.Fn == nil {
		return invalidQuery(nil, "stream requires a callback", nil)
	}
	pageSize := s.opts.StreamPageSize
	var after *store.EventKey

	for {
		page, err := s.db.ReadEvents(ctx, store.EventRange{
			Root:  opts.Root,
			From:  opts.From,
			After: after,
			Limit: pageSize,
		})
		if err != nil {
			if isContextErr(err) {
				return err
			}
			return classify(err, "stream read failed", map[string]any{"root": opts.Root})
		}
		if len(page) == 0 {
			return nil
		}

		if err := s.deliver(ctx, page, opts); err != nil {
			return err
		}
		if len(page) < pageSize {
			return nil
		}
		last := page[len(page)-1]
		after = &store.EventKey{Root: last.Root, Number: last.Number}
	}
}

func (s *Store) deliver(ctx context.Context, page []ir.Event, opts StreamOptions) error {
	if opts.Parallel <= 1 {
		for _, e := range page {
			if e.Number < opts.From {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := opts.Fn(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for _, e := range page {
		if e.Number < opts.From {
			continue
		}
		g.Go(func() error {
			return opts.Fn(gctx, e)
		})
	}
	return g.Wait()
}

// FollowOptions configures a live cursor over one root.
type FollowOptions struct {
	Root string
	From int64
	Fn   func(ctx context.Context, e ir.Event) error
	// PollInterval re-reads even without an append notification, which
	// picks up writes from other processes. Defaults to the store's
	// FollowPollInterval.
	PollInterval time.Duration
}

// Follow streams root from From and then keeps delivering new events in
// number order until ctx is done or Fn fails. It returns ctx's error on
// cancellation.
func (s *Store) Follow(ctx context.Context, opts FollowOptions) error {
	if opts.Root == "" {
		return invalidQuery(nil, "follow requires a root", nil)
	}
	if opts.Fn == nil {
		return invalidQuery(nil, "follow requires a callback", nil)
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = s.opts.FollowPollInterval
	}
	pageSize := s.opts.StreamPageSize

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	next := opts.From
	for {
		// Grab the channel before reading so a commit between the read and
		// the wait still wakes us.
		wake := s.notify.wait()

		page, err := s.db.ReadEvents(ctx, store.EventRange{Root: opts.Root, From: next, Limit: pageSize})
		if err != nil {
			if isContextErr(err) {
				return err
			}
			return classify(err, "follow read failed", map[string]any{"root": opts.Root})
		}
		for _, e := range page {
			if err := opts.Fn(ctx, e); err != nil {
				return err
			}
			next = e.Number + 1
		}
		if len(page) == pageSize {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}

// isContextErr reports cancellation or deadline expiry.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
