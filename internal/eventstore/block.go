package eventstore

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/rootstore/internal/block"
	"github.com/roach88/rootstore/internal/ir"
)

// CreateBlock commits every root modified since the previous block. The
// first call on an empty chain writes the genesis block. Runs must not
// overlap; scheduling a single runner is the caller's job.
func (s *Store) CreateBlock(ctx context.Context) (*ir.Block, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.CreateBlock")
	defer span.End()

	blk, err := s.builder.Create(ctx)
	if err != nil {
		err = classify(err, "create block failed", nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create block failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("rootstore.block.number", blk.Number),
		attribute.Int("rootstore.block.roots", blk.Count),
	)
	return &blk, nil
}

// VerifyChain checks every stored block and returns the number verified.
// A broken chain is reported with a ChainBroken error naming the block.
func (s *Store) VerifyChain(ctx context.Context) (int, error) {
	n, err := s.builder.Verify(ctx)
	if err != nil {
		var broken *block.ChainError
		if errors.As(err, &broken) {
			return n, chainBroken(err, "block chain is broken", map[string]any{
				"number": broken.Number,
				"reason": broken.Reason,
			})
		}
		return n, classify(err, "verify chain failed", nil)
	}
	return n, nil
}

// LatestBlock returns the head of the chain, or a NotFound error when no
// block exists yet.
func (s *Store) LatestBlock(ctx context.Context) (*ir.Block, error) {
	blk, err := s.db.LatestBlock(ctx)
	if err != nil {
		return nil, classify(err, "no blocks", nil)
	}
	return &blk, nil
}

// Block returns the block with the given number.
func (s *Store) Block(ctx context.Context, number int64) (*ir.Block, error) {
	blk, err := s.db.ReadBlock(ctx, number)
	if err != nil {
		return nil, classify(err, "block not found", map[string]any{"number": number})
	}
	return &blk, nil
}

// Snapshot returns the last snapshot the block builder wrote for root.
func (s *Store) Snapshot(ctx context.Context, root string) (*ir.Snapshot, error) {
	snap, err := s.db.ReadSnapshot(ctx, root)
	if err != nil {
		return nil, classify(err, "snapshot not found", map[string]any{"root": root})
	}
	return &snap, nil
}

// Proof returns the proof record with the given id.
func (s *Store) Proof(ctx context.Context, id string) (*ir.Proof, error) {
	p, err := s.db.ReadProof(ctx, id)
	if err != nil {
		return nil, classify(err, "proof not found", map[string]any{"id": id})
	}
	return &p, nil
}

// ProofsFor returns every proof recorded for a block hash.
func (s *Store) ProofsFor(ctx context.Context, hash string) ([]ir.Proof, error) {
	proofs, err := s.db.ProofsByHash(ctx, hash)
	if err != nil {
		return nil, classify(err, "read proofs failed", map[string]any{"hash": hash})
	}
	return proofs, nil
}

// SaveProofs records externally produced proofs.
func (s *Store) SaveProofs(ctx context.Context, proofs []ir.Proof) error {
	now := s.now()
	for i := range proofs {
		if proofs[i].ID == "" {
			proofs[i].ID = s.opts.NewID()
		}
		if proofs[i].Created.IsZero() {
			proofs[i].Created = now
		}
		if proofs[i].Updated.IsZero() {
			proofs[i].Updated = now
		}
	}
	if err := s.db.SaveProofs(ctx, proofs); err != nil {
		return classify(err, "save proofs failed", map[string]any{"proofs": len(proofs)})
	}
	return nil
}

// UpdateProof merges metadata into the proof with the given id, typically
// to record anchoring progress.
func (s *Store) UpdateProof(ctx context.Context, id string, metadata map[string]any) (*ir.Proof, error) {
	p, err := s.db.UpdateProof(ctx, id, metadata, s.now())
	if err != nil {
		return nil, classify(err, "update proof failed", map[string]any{"id": id})
	}
	return &p, nil
}
