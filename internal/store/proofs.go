package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/roach88/rootstore/internal/ir"
)

type proofRecord struct {
	bun.BaseModel `bun:"table:proofs,alias:p"`

	ID       string         `bun:"id,pk"`
	Type     string         `bun:"type,notnull"`
	Hash     string         `bun:"hash,notnull"`
	Created  time.Time      `bun:"created,notnull"`
	Updated  time.Time      `bun:"updated,notnull"`
	Metadata map[string]any `bun:"metadata,type:json,notnull"`
}

func toProofRecord(p ir.Proof) *proofRecord {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &proofRecord{
		ID:       p.ID,
		Type:     p.Type,
		Hash:     p.Hash,
		Created:  p.Created.UTC(),
		Updated:  p.Updated.UTC(),
		Metadata: metadata,
	}
}

func (r *proofRecord) proof() ir.Proof {
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return ir.Proof{
		ID:       r.ID,
		Type:     r.Type,
		Hash:     r.Hash,
		Created:  r.Created.UTC(),
		Updated:  r.Updated.UTC(),
		Metadata: metadata,
	}
}

// InsertProof writes a new proof record inside the transaction.
func (t *Tx) InsertProof(ctx context.Context, p ir.Proof) error {
	_, err := t.bun.NewInsert().Conn(t.tx).Model(toProofRecord(p)).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert proof %s: %w: %v", p.ID, ErrConflict, err)
		}
		return fmt.Errorf("insert proof %s: %w", p.ID, err)
	}
	return nil
}

// SaveProofs writes proofs in one transaction.
func (s *Store) SaveProofs(ctx context.Context, proofs []ir.Proof) error {
	return s.InTx(ctx, func(tx *Tx) error {
		for _, p := range proofs {
			if err := tx.InsertProof(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadProof returns the proof with the given id, or ErrNotFound.
func (s *Store) ReadProof(ctx context.Context, id string) (ir.Proof, error) {
	rec := new(proofRecord)
	err := s.bun.NewSelect().Model(rec).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Proof{}, fmt.Errorf("read proof %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Proof{}, fmt.Errorf("read proof %s: %w", id, err)
	}
	return rec.proof(), nil
}

// ProofsByHash returns every proof recorded for hash, oldest first.
func (s *Store) ProofsByHash(ctx context.Context, hash string) ([]ir.Proof, error) {
	var recs []proofRecord
	err := s.bun.NewSelect().
		Model(&recs).
		Where("p.hash = ?", hash).
		OrderExpr("p.created ASC, p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("proofs by hash: %w", err)
	}

	proofs := make([]ir.Proof, 0, len(recs))
	for i := range recs {
		proofs = append(proofs, recs[i].proof())
	}
	return proofs, nil
}

// UpdateProof merges metadata into the stored proof and bumps Updated.
func (s *Store) UpdateProof(ctx context.Context, id string, metadata map[string]any, updated time.Time) (ir.Proof, error) {
	var out ir.Proof
	err := s.InTx(ctx, func(tx *Tx) error {
		rec := new(proofRecord)
		err := tx.bun.NewSelect().Conn(tx.tx).Model(rec).Where("p.id = ?", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update proof %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("update proof %s: %w", id, err)
		}

		if rec.Metadata == nil {
			rec.Metadata = map[string]any{}
		}
		for k, v := range metadata {
			rec.Metadata[k] = v
		}
		rec.Updated = updated.UTC()

		_, err = tx.bun.NewUpdate().
			Conn(tx.tx).
			Model(rec).
			Column("metadata", "updated").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update proof %s: %w", id, err)
		}
		out = rec.proof()
		return nil
	})
	return out, err
}
