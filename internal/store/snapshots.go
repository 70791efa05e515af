package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rootstore/internal/ir"
)

// UpsertSnapshot writes the snapshot for snap.Root, replacing any previous one.
func (t *Tx) UpsertSnapshot(ctx context.Context, snap ir.Snapshot) error {
	stateJSON, err := marshalObject(snap.State)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snap.Root, err)
	}
	dataJSON, err := marshalStrings(snap.Data)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snap.Root, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO snapshots
		(root, state, last_event_number, created, hash, merkle_root, previous, data, count, public)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(root) DO UPDATE SET
			state = excluded.state,
			last_event_number = excluded.last_event_number,
			created = excluded.created,
			hash = excluded.hash,
			merkle_root = excluded.merkle_root,
			previous = excluded.previous,
			data = excluded.data,
			count = excluded.count,
			public = excluded.public
	`,
		snap.Root,
		stateJSON,
		snap.LastEventNumber,
		snap.Created.UnixMilli(),
		snap.Hash,
		snap.MerkleRoot,
		snap.Previous,
		dataJSON,
		snap.Count,
		snap.Public,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snap.Root, err)
	}
	return nil
}

// SaveSnapshot is UpsertSnapshot in its own transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap ir.Snapshot) error {
	return s.InTx(ctx, func(tx *Tx) error {
		return tx.UpsertSnapshot(ctx, snap)
	})
}

// ReadSnapshot returns the snapshot for root, or ErrNotFound.
func (s *Store) ReadSnapshot(ctx context.Context, root string) (ir.Snapshot, error) {
	var snap ir.Snapshot
	var created int64
	var stateJSON, dataJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT root, state, last_event_number, created, hash, merkle_root, previous, data, count, public
		FROM snapshots
		WHERE root = ?
	`, root).Scan(
		&snap.Root,
		&stateJSON,
		&snap.LastEventNumber,
		&created,
		&snap.Hash,
		&snap.MerkleRoot,
		&snap.Previous,
		&dataJSON,
		&snap.Count,
		&snap.Public,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Snapshot{}, fmt.Errorf("read snapshot %s: %w", root, ErrNotFound)
	}
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("read snapshot %s: %w", root, err)
	}

	snap.Created = millis(created)
	if snap.State, err = unmarshalObject(stateJSON); err != nil {
		return ir.Snapshot{}, fmt.Errorf("snapshot %s: %w", root, err)
	}
	if snap.Data, err = unmarshalStrings(dataJSON); err != nil {
		return ir.Snapshot{}, fmt.Errorf("snapshot %s: %w", root, err)
	}
	return snap, nil
}
