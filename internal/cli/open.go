package cli

import (
	"github.com/roach88/rootstore/internal/aggregate"
	"github.com/roach88/rootstore/internal/config"
	"github.com/roach88/rootstore/internal/eventstore"
	"github.com/roach88/rootstore/internal/schema"
	"github.com/roach88/rootstore/internal/store"
)

// session is an opened event store plus the database it owns.
type session struct {
	cfg config.Config
	es  *eventstore.Store
	db  *store.Store
}

func (s *session) Close() error {
	return s.db.Close()
}

// openSession loads the configuration named by opts and opens the store it
// describes. Every failure is a command error.
func openSession(opts *RootOptions, out *OutputFormatter) (*session, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, out.Fail(ExitCommandError, "failed to load config", err)
	}
	out.VerboseLog("database: %s (domain %s, service %s)", cfg.Database, cfg.Domain, cfg.Service)

	registry, err := aggregate.FromNames(cfg.Handlers)
	if err != nil {
		return nil, out.Fail(ExitCommandError, "failed to build handlers", err)
	}
	sources, err := cfg.SchemaSources()
	if err != nil {
		return nil, out.Fail(ExitCommandError, "failed to read schemas", err)
	}
	schemas, err := schema.Compile(sources)
	if err != nil {
		return nil, out.Fail(ExitCommandError, "failed to compile schemas", err)
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, out.Fail(ExitCommandError, "failed to open database", err)
	}
	es, err := eventstore.New(db, registry, eventstore.Options{
		Domain:             cfg.Domain,
		Service:            cfg.Service,
		Network:            cfg.Network,
		Public:             cfg.Public,
		Schemas:            schemas,
		BlockParallel:      cfg.BlockParallel,
		StreamPageSize:     cfg.StreamPageSize,
		FollowPollInterval: cfg.FollowPollInterval,
		Logger:             out.Logger(),
	})
	if err != nil {
		db.Close()
		return nil, out.Fail(ExitCommandError, "failed to open event store", err)
	}
	return &session{cfg: cfg, es: es, db: db}, nil
}
