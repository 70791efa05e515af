// Package eventstore is the caller-facing contract of the event-sourced
// aggregate store: append, aggregate, query, stream, root enumeration and
// block creation over one SQLite database.
//
// Every domain error is a *goerrors.Error carrying one of the TextCode
// constants; use the Is* helpers to branch on them.
package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/rootstore/internal/aggregate"
	"github.com/roach88/rootstore/internal/block"
	"github.com/roach88/rootstore/internal/ir"
	"github.com/roach88/rootstore/internal/merkle"
	"github.com/roach88/rootstore/internal/schema"
	"github.com/roach88/rootstore/internal/store"
)

const tracerName = "github.com/roach88/rootstore/eventstore"

const (
	DefaultStreamPageSize     = 500
	DefaultFollowPollInterval = time.Second
)

// Clock supplies the save time of events and the boundary of blocks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Notification is the message published for every written event.
type Notification struct {
	Root string `json:"root"`
}

// Publisher delivers notifications after a batch commits.
type Publisher interface {
	Publish(ctx context.Context, topic string, n Notification) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, topic string, n Notification) error

func (f PublisherFunc) Publish(ctx context.Context, topic string, n Notification) error {
	return f(ctx, topic, n)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, Notification) error { return nil }

// Options configures a Store. Domain and Service are required; everything
// else has a default.
type Options struct {
	Domain  string
	Service string
	Network string
	// Public makes blocks commit full canonical events.
	Public bool

	Hash      ir.HashFunc
	Merkle    merkle.HashFunc
	Publisher Publisher
	NewID     func() string
	Clock     Clock
	Logger    glog.Logger
	Schemas   *schema.Set

	BlockParallel      int
	StreamPageSize     int
	FollowPollInterval time.Duration
}

// Store is the event store bound to one domain.service.
type Store struct {
	db       *store.Store
	registry *aggregate.Registry
	opts     Options
	logger   glog.Logger
	tracer   trace.Tracer
	notify   *broadcaster
	builder  *block.Builder
}

// New binds db and the handler registry into a Store. Every action with a
// payload schema must have a handler.
func New(db *store.Store, registry *aggregate.Registry, opts Options) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("eventstore: store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("eventstore: handler registry is required")
	}
	if opts.Domain == "" || opts.Service == "" {
		return nil, fmt.Errorf("eventstore: domain and service are required")
	}
	if opts.Hash == nil {
		opts.Hash = ir.RecordHash
	}
	if opts.Merkle == nil {
		opts.Merkle = merkle.NewDigest
	}
	if opts.Publisher == nil {
		opts.Publisher = nopPublisher{}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Schemas == nil {
		opts.Schemas = schema.Empty()
	}
	if opts.BlockParallel <= 0 {
		opts.BlockParallel = block.DefaultParallel
	}
	if opts.StreamPageSize <= 0 {
		opts.StreamPageSize = DefaultStreamPageSize
	}
	if opts.FollowPollInterval <= 0 {
		opts.FollowPollInterval = DefaultFollowPollInterval
	}
	for _, action := range opts.Schemas.Actions() {
		if !registry.Has(action) {
			return nil, fmt.Errorf("eventstore: schema for %q has no handler", action)
		}
	}

	logger := opts.Logger
	if logger == nil {
		_, logger = glog.Resolve("rootstore", nil, nil)
	}
	s := &Store{
		db:       db,
		registry: registry,
		opts:     opts,
		logger:   glog.Ensure(logger),
		tracer:   otel.Tracer(tracerName),
		notify:   newBroadcaster(),
	}

	builder, err := block.NewBuilder(db, blockSource{s}, block.Config{
		Network:  opts.Network,
		Service:  opts.Service,
		Domain:   opts.Domain,
		Public:   opts.Public,
		Parallel: opts.BlockParallel,
		Hash:     opts.Hash,
		Merkle:   opts.Merkle,
		Now:      opts.Clock.Now,
		NewID:    opts.NewID,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("eventstore: %w", err)
	}
	s.builder = builder
	return s, nil
}

// Domain returns the domain the store accepts events for.
func (s *Store) Domain() string { return s.opts.Domain }

// Service returns the service the store accepts events for.
func (s *Store) Service() string { return s.opts.Service }

// Count returns the next number for root, which is also its event count.
func (s *Store) Count(ctx context.Context, root string) (int64, error) {
	n, err := s.db.Count(ctx, root)
	if err != nil {
		return 0, classify(err, "count failed", map[string]any{"root": root})
	}
	return n, nil
}

func (s *Store) now() time.Time {
	return s.opts.Clock.Now().UTC().Truncate(time.Millisecond)
}
