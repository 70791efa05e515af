package eventstore

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/rootstore/internal/block"
	"github.com/roach88/rootstore/internal/ir"
	"github.com/roach88/rootstore/internal/store"
)

// DefaultRootParallel bounds concurrent Fn calls in RootStream.
const DefaultRootParallel = 100

// RootStreamOptions configures a scan over every known root.
type RootStreamOptions struct {
	Fn       func(ctx context.Context, root string) error
	Parallel int
	// UpdatedOnOrAfter and UpdatedBefore keep only roots whose counter was
	// last reserved inside the window. Zero values leave a side open.
	UpdatedOnOrAfter time.Time
	UpdatedBefore    time.Time
}

// RootStream calls Fn once for every root, with at most Parallel calls in
// flight. The first Fn error cancels the remaining calls and is returned.
// A scan is restartable by calling RootStream again.
func (s *Store) RootStream(ctx context.Context, opts RootStreamOptions) error {
	if opts.Fn == nil {
		return invalidQuery(nil, "root stream requires a callback", nil)
	}
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = DefaultRootParallel
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	after := ""
	for {
		if gctx.Err() != nil {
			break
		}
		roots, err := s.db.ListRoots(gctx, store.RootPage{
			After:            after,
			Limit:            store.DefaultRootPageSize,
			UpdatedOnOrAfter: opts.UpdatedOnOrAfter,
			UpdatedBefore:    opts.UpdatedBefore,
		})
		if err != nil {
			g.Go(func() error {
				if isContextErr(err) {
					return err
				}
				return classify(err, "list roots failed", nil)
			})
			break
		}
		for _, root := range roots {
			g.Go(func() error {
				return opts.Fn(gctx, root)
			})
		}
		if len(roots) < store.DefaultRootPageSize {
			break
		}
		after = roots[len(roots)-1]
	}
	return g.Wait()
}

// blockSource lets the block builder fold and scan through the store.
type blockSource struct {
	s *Store
}

func (b blockSource) AggregateAt(ctx context.Context, root string, before time.Time) (*ir.Aggregate, error) {
	return b.s.AggregateAt(ctx, root, before)
}

func (b blockSource) ScanRoots(ctx context.Context, w block.Window, parallel int, fn func(ctx context.Context, root string) error) error {
	return b.s.RootStream(ctx, RootStreamOptions{
		Fn:               fn,
		Parallel:         parallel,
		UpdatedOnOrAfter: w.OnOrAfter,
		UpdatedBefore:    w.Before,
	})
}
