// Package block builds the hash-chained Merkle blocks that commit every
// root's new events.
//
// A run folds each root touched since the previous block up to a fixed
// boundary, writes a snapshot digest per root, and commits the snapshot
// strings in one block whose hash chains to its predecessor. Everything a
// run writes lands in a single transaction.
package block

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-logger/glog"

	"github.com/roach88/rootstore/internal/ir"
	"github.com/roach88/rootstore/internal/merkle"
	"github.com/roach88/rootstore/internal/store"
)

// GenesisMessage is the single data entry of block 0.
const GenesisMessage = "Wherever you go, there you are."

// GenesisBoundary is the boundary of block 0, the lower bound of the first
// real scan.
var GenesisBoundary = time.Date(2000, time.January, 1, 5, 0, 0, 0, time.UTC)

// ProofType is the type of the pending proof recorded for each block.
const ProofType = "block"

// DefaultParallel bounds concurrent root folds.
const DefaultParallel = 100

// Window bounds a root scan by the counter's last reservation time.
type Window struct {
	OnOrAfter time.Time
	Before    time.Time
}

// Source is the read side a builder folds roots through.
type Source interface {
	AggregateAt(ctx context.Context, root string, before time.Time) (*ir.Aggregate, error)
	ScanRoots(ctx context.Context, w Window, parallel int, fn func(ctx context.Context, root string) error) error
}

// Config scopes the blocks a builder produces.
type Config struct {
	Network string
	Service string
	Domain  string
	// Public commits full canonical events instead of event hashes.
	Public   bool
	Parallel int

	Hash   ir.HashFunc
	Merkle merkle.HashFunc
	Now    func() time.Time
	NewID  func() string
	Logger glog.Logger
}

// Builder creates and verifies blocks.
type Builder struct {
	store  *store.Store
	source Source
	cfg    Config
	logger glog.Logger
}

// NewBuilder returns a builder writing to st and folding through src.
func NewBuilder(st *store.Store, src Source, cfg Config) (*Builder, error) {
	if st == nil || src == nil {
		return nil, errors.New("block: store and source are required")
	}
	if cfg.Hash == nil {
		cfg.Hash = ir.RecordHash
	}
	if cfg.Merkle == nil {
		cfg.Merkle = merkle.NewDigest
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		return nil, errors.New("block: NewID is required")
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = DefaultParallel
	}
	return &Builder{
		store:  st,
		source: src,
		cfg:    cfg,
		logger: glog.Ensure(cfg.Logger),
	}, nil
}

// Genesis returns block 0 for the given scope.
func Genesis(network, service, domain string, fn merkle.HashFunc) (ir.Block, error) {
	data := []string{GenesisMessage}
	hash, err := merkle.RootHex(append(cloneStrings(data), ir.GenesisPrevious), fn)
	if err != nil {
		return ir.Block{}, fmt.Errorf("genesis: %w", err)
	}
	return ir.Block{
		Hash:     hash,
		Previous: ir.GenesisPrevious,
		Data:     data,
		Count:    1,
		Number:   0,
		Boundary: GenesisBoundary,
		Network:  network,
		Service:  service,
		Domain:   domain,
	}, nil
}

// rootDigest is one root's contribution to a block.
type rootDigest struct {
	snapshot ir.Snapshot
	events   []string
	encoded  string
}

// Create builds the next block. The first call on an empty chain writes the
// genesis block. Any root failure aborts the run and nothing is written.
func (b *Builder) Create(ctx context.Context) (ir.Block, error) {
	logger := b.logger.WithContext(ctx)

	previous, err := b.store.LatestBlock(ctx)
	if errors.Is(err, store.ErrNotFound) {
		genesis, err := Genesis(b.cfg.Network, b.cfg.Service, b.cfg.Domain, b.cfg.Merkle)
		if err != nil {
			return ir.Block{}, err
		}
		if err := b.persist(ctx, genesis, nil); err != nil {
			return ir.Block{}, err
		}
		logger.Info("genesis block created", "hash", genesis.Hash)
		return genesis, nil
	}
	if err != nil {
		return ir.Block{}, fmt.Errorf("create block: %w", err)
	}

	// The boundary is read under the write lock so every append saved
	// before it has committed by the time roots are scanned.
	var boundary time.Time
	err = b.store.InTx(ctx, func(*store.Tx) error {
		boundary = b.cfg.Now().UTC().Truncate(time.Millisecond)
		return nil
	})
	if err != nil {
		return ir.Block{}, fmt.Errorf("create block: %w", err)
	}
	if !boundary.After(previous.Boundary) {
		return ir.Block{}, fmt.Errorf("create block: boundary %s is not after previous boundary %s",
			ir.FormatTime(boundary), ir.FormatTime(previous.Boundary))
	}

	var mu sync.Mutex
	var digests []rootDigest
	window := Window{OnOrAfter: previous.Boundary, Before: boundary}
	err = b.source.ScanRoots(ctx, window, b.cfg.Parallel, func(ctx context.Context, root string) error {
		d, ok, err := b.digestRoot(ctx, root, boundary)
		if err != nil {
			logger.Error("block root failed", "root", root, "error", err)
			return err
		}
		if !ok {
			return nil
		}
		mu.Lock()
		digests = append(digests, d)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return ir.Block{}, fmt.Errorf("create block %d: %w", previous.Number+1, err)
	}

	sort.Slice(digests, func(i, j int) bool {
		return digests[i].snapshot.Root < digests[j].snapshot.Root
	})
	data := make([]string, len(digests))
	for i, d := range digests {
		data[i] = d.encoded
	}

	hash, err := merkle.RootHex(append(cloneStrings(data), previous.Hash), b.cfg.Merkle)
	if err != nil {
		return ir.Block{}, fmt.Errorf("create block %d: %w", previous.Number+1, err)
	}
	next := ir.Block{
		Hash:     hash,
		Previous: previous.Hash,
		Data:     data,
		Count:    len(data),
		Number:   previous.Number + 1,
		Boundary: boundary,
		Network:  b.cfg.Network,
		Service:  b.cfg.Service,
		Domain:   b.cfg.Domain,
	}
	if err := b.persist(ctx, next, digests); err != nil {
		return ir.Block{}, err
	}

	logger.Info("block created", "number", next.Number, "hash", next.Hash, "roots", next.Count)
	return next, nil
}

// digestRoot folds root up to boundary and returns its snapshot digest.
// ok is false when the root has no events since its last snapshot.
func (b *Builder) digestRoot(ctx context.Context, root string, boundary time.Time) (rootDigest, bool, error) {
	agg, err := b.source.AggregateAt(ctx, root, boundary)
	if err != nil {
		return rootDigest{}, false, err
	}
	if agg == nil || len(agg.Events) == 0 {
		return rootDigest{}, false, nil
	}

	events := make([]string, len(agg.Events))
	ids := make([]string, len(agg.Events))
	for i, e := range agg.Events {
		ids[i] = e.ID
		if !b.cfg.Public {
			events[i] = e.Hash
			continue
		}
		s, err := e.CanonicalString()
		if err != nil {
			return rootDigest{}, false, fmt.Errorf("root %s: %w", root, err)
		}
		events[i] = s
	}

	leaves := cloneStrings(events)
	if agg.SnapshotHash != "" {
		leaves = append(leaves, agg.SnapshotHash)
	}
	merkleRoot, err := merkle.RootHex(leaves, b.cfg.Merkle)
	if err != nil {
		return rootDigest{}, false, fmt.Errorf("root %s: %w", root, err)
	}

	snap := ir.Snapshot{
		Root:            root,
		State:           agg.State,
		LastEventNumber: agg.LastEventNumber,
		Created:         boundary,
		MerkleRoot:      merkleRoot,
		Previous:        agg.SnapshotHash,
		Data:            events,
		Count:           len(events),
		Public:          b.cfg.Public,
	}
	if snap.Hash, err = b.cfg.Hash(snap.Record()); err != nil {
		return rootDigest{}, false, fmt.Errorf("root %s: hash snapshot: %w", root, err)
	}
	encoded, err := snap.CanonicalString()
	if err != nil {
		return rootDigest{}, false, fmt.Errorf("root %s: %w", root, err)
	}
	return rootDigest{snapshot: snap, events: ids, encoded: encoded}, true, nil
}

// persist writes the block, its snapshots, the event back-references and a
// pending proof in one transaction. It fails with store.ErrConflict when
// another run extended the chain after blk was assembled.
func (b *Builder) persist(ctx context.Context, blk ir.Block, digests []rootDigest) error {
	now := b.cfg.Now().UTC()
	err := b.store.InTx(ctx, func(tx *store.Tx) error {
		if err := checkHead(ctx, tx, blk); err != nil {
			return err
		}
		if err := tx.InsertBlock(ctx, blk); err != nil {
			return err
		}
		for _, d := range digests {
			if err := tx.UpsertSnapshot(ctx, d.snapshot); err != nil {
				return err
			}
			for _, id := range d.events {
				if err := tx.AppendEventProof(ctx, id, blk.Hash); err != nil {
					return err
				}
			}
		}
		return tx.InsertProof(ctx, ir.Proof{
			ID:       b.cfg.NewID(),
			Type:     ProofType,
			Hash:     blk.Hash,
			Created:  now,
			Updated:  now,
			Metadata: map[string]any{"status": "pending"},
		})
	})
	if err != nil {
		return fmt.Errorf("persist block %d: %w", blk.Number, err)
	}
	return nil
}

func checkHead(ctx context.Context, tx *store.Tx, blk ir.Block) error {
	head, err := tx.LatestBlock(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if blk.Number == 0 {
			return nil
		}
		return fmt.Errorf("block %d: chain is empty: %w", blk.Number, store.ErrConflict)
	case err != nil:
		return err
	case head.Number+1 != blk.Number || head.Hash != blk.Previous:
		return fmt.Errorf("block %d: chain head moved to block %d: %w", blk.Number, head.Number, store.ErrConflict)
	}
	return nil
}

func cloneStrings(s []string) []string {
	out := make([]string, len(s), len(s)+1)
	copy(out, s)
	return out
}
