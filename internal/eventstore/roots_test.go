package eventstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootstore/internal/ir"
	"github.com/roach88/rootstore/internal/store"
)

func collectRoots(t *testing.T, env *testEnv, opts RootStreamOptions) []string {
	t.Helper()
	var mu sync.Mutex
	var roots []string
	opts.Fn = func(_ context.Context, root string) error {
		mu.Lock()
		defer mu.Unlock()
		roots = append(roots, root)
		return nil
	}
	require.NoError(t, env.es.RootStream(context.Background(), opts))
	sort.Strings(roots)
	return roots
}

func TestRootStream_VisitsEveryRootOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, root := range []string{"c", "a", "b"} {
		env.appendN(t, root, 2)
	}

	assert.Equal(t, []string{"a", "b", "c"}, collectRoots(t, env, RootStreamOptions{Parallel: 2}))
}

func TestRootStream_SpansPages(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	total := store.DefaultRootPageSize + 7
	batch := make([]ir.ProposedEvent, 0, total)
	for i := range total {
		batch = append(batch, propose(fmt.Sprintf("root-%04d", i), "add", x(1)))
	}
	_, err := env.es.Append(ctx, batch)
	require.NoError(t, err)

	roots := collectRoots(t, env, RootStreamOptions{})
	require.Len(t, roots, total)
	for i := 1; i < len(roots); i++ {
		require.NotEqual(t, roots[i-1], roots[i])
	}
}

func TestRootStream_UpdatedWindow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.appendN(t, "early", 1)
	mid := env.clock.Advance(time.Second)
	env.appendN(t, "late", 1)

	assert.Equal(t, []string{"late"}, collectRoots(t, env, RootStreamOptions{UpdatedOnOrAfter: mid}))
	assert.Equal(t, []string{"early"}, collectRoots(t, env, RootStreamOptions{UpdatedBefore: mid}))
}

func TestRootStream_RespectsParallelLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	batch := make([]ir.ProposedEvent, 0, 20)
	for i := range 20 {
		batch = append(batch, propose(fmt.Sprintf("r%02d", i), "add", x(1)))
	}
	_, err := env.es.Append(context.Background(), batch)
	require.NoError(t, err)

	var inFlight, peak atomic.Int32
	err = env.es.RootStream(context.Background(), RootStreamOptions{
		Parallel: 3,
		Fn: func(context.Context, string) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		},
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRootStream_FirstErrorIsReturned(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, root := range []string{"a", "b", "c"} {
		env.appendN(t, root, 1)
	}

	err := env.es.RootStream(context.Background(), RootStreamOptions{
		Parallel: 1,
		Fn: func(_ context.Context, root string) error {
			if root == "b" {
				return errBoom
			}
			return nil
		},
	})
	require.ErrorIs(t, err, errBoom)
}
