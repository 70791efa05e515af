package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootstore/internal/aggregate"
	"github.com/roach88/rootstore/internal/ir"
	"github.com/roach88/rootstore/internal/store"
	"github.com/roach88/rootstore/internal/testutil"
)

const (
	testDomain  = "ledger"
	testService = "accounts"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var errBoom = errors.New("boom")

// testHandlers: add merges, deposit sums amount into balance, explode fails
// when folded.
func testHandlers() map[string]aggregate.Handler {
	return map[string]aggregate.Handler{
		"add": aggregate.Merge,
		"deposit": func(state, payload ir.IRObject) (ir.IRObject, error) {
			balance, _ := state["balance"].(ir.IRInt)
			amount, _ := payload["amount"].(ir.IRInt)
			state["balance"] = balance + amount
			return state, nil
		},
		"explode": func(state, payload ir.IRObject) (ir.IRObject, error) {
			return nil, errBoom
		},
	}
}

type testEnv struct {
	es    *Store
	db    *store.Store
	path  string
	clock *testutil.ManualClock
	log   *captureLogger
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	registry, err := aggregate.NewRegistry(testHandlers())
	require.NoError(t, err)

	clock := testutil.NewManualClock(testEpoch)
	logger := &captureLogger{}
	opts := Options{
		Domain:  testDomain,
		Service: testService,
		Network: "local",
		NewID:   testutil.NewSequenceIDs("id").Next,
		Clock:   clock,
		Logger:  logger,
	}
	if mutate != nil {
		mutate(&opts)
	}

	es, err := New(db, registry, opts)
	require.NoError(t, err)
	return &testEnv{es: es, db: db, path: path, clock: clock, log: logger}
}

func propose(root, action string, payload ir.IRObject) ir.ProposedEvent {
	return ir.ProposedEvent{
		Root:    root,
		Headers: ir.Headers{Topic: ir.Topic(action, testDomain, testService)},
		Payload: payload,
	}
}

func proposeAt(root, action string, number int64, payload ir.IRObject) ir.ProposedEvent {
	p := propose(root, action, payload)
	p.Number = &number
	return p
}

func x(n int64) ir.IRObject {
	return ir.IRObject{"x": ir.IRInt(n)}
}

// appendN appends count add events to root, one call per event, advancing
// the clock a millisecond before each.
func (env *testEnv) appendN(t *testing.T, root string, count int) []ir.Event {
	t.Helper()
	var out []ir.Event
	for i := range count {
		env.clock.Advance(time.Millisecond)
		events, err := env.es.Append(context.Background(), []ir.ProposedEvent{propose(root, "add", x(int64(i)))})
		require.NoError(t, err)
		out = append(out, events...)
	}
	return out
}

// attach opens a second store on the same database file, sharing the clock,
// the way a separate process would.
func (env *testEnv) attach(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(env.path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry, err := aggregate.NewRegistry(testHandlers())
	require.NoError(t, err)
	es, err := New(db, registry, Options{
		Domain:  testDomain,
		Service: testService,
		Network: "local",
		NewID:   testutil.NewSequenceIDs("attached").Next,
		Clock:   env.clock,
		Logger:  glog.Nop(),
	})
	require.NoError(t, err)
	return es
}

// exec runs a raw statement against the test database, bypassing the store.
func (env *testEnv) exec(t *testing.T, stmt string) {
	t.Helper()
	raw, err := sql.Open("sqlite3", env.path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(stmt)
	require.NoError(t, err)
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

// captureLogger records every call for assertions.
type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args) }

func (l *captureLogger) WithContext(context.Context) glog.Logger { return l }

func (l *captureLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e.msg)
		}
	}
	return out
}
