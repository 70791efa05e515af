package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rootstore/internal/ir"
)

const blockColumns = `number, hash, previous, data, count, boundary, network, service, domain`

// InsertBlock writes a block. A duplicate number or hash wraps ErrConflict.
func (t *Tx) InsertBlock(ctx context.Context, b ir.Block) error {
	dataJSON, err := marshalStrings(b.Data)
	if err != nil {
		return fmt.Errorf("insert block %d: %w", b.Number, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO blocks (`+blockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.Number,
		b.Hash,
		b.Previous,
		dataJSON,
		b.Count,
		b.Boundary.UnixMilli(),
		b.Network,
		b.Service,
		b.Domain,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert block %d: %w: %v", b.Number, ErrConflict, err)
		}
		return fmt.Errorf("insert block %d: %w", b.Number, err)
	}
	return nil
}

// LatestBlock returns the highest-numbered block, or ErrNotFound when the
// chain is empty.
func (s *Store) LatestBlock(ctx context.Context) (ir.Block, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks ORDER BY number DESC LIMIT 1`)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Block{}, fmt.Errorf("latest block: %w", ErrNotFound)
	}
	return b, err
}

// LatestBlock is Store.LatestBlock read inside the transaction.
func (t *Tx) LatestBlock(ctx context.Context) (ir.Block, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks ORDER BY number DESC LIMIT 1`)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Block{}, fmt.Errorf("latest block: %w", ErrNotFound)
	}
	return b, err
}

// ReadBlock returns the block with the given number.
func (s *Store) ReadBlock(ctx context.Context, number int64) (ir.Block, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks WHERE number = ?`, number)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Block{}, fmt.Errorf("read block %d: %w", number, ErrNotFound)
	}
	return b, err
}

// ListBlocks returns up to limit blocks with number >= from, ascending.
func (s *Store) ListBlocks(ctx context.Context, from int64, limit int) ([]ir.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+blockColumns+` FROM blocks
		WHERE number >= ?
		ORDER BY number ASC
		LIMIT ?
	`, from, limit)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	blocks := []ir.Block{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return blocks, nil
}

func scanBlock(row rowScanner) (ir.Block, error) {
	var b ir.Block
	var boundary int64
	var dataJSON string
	err := row.Scan(
		&b.Number,
		&b.Hash,
		&b.Previous,
		&dataJSON,
		&b.Count,
		&boundary,
		&b.Network,
		&b.Service,
		&b.Domain,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Block{}, err
		}
		return ir.Block{}, fmt.Errorf("scan block: %w", err)
	}

	b.Boundary = millis(boundary)
	if b.Data, err = unmarshalStrings(dataJSON); err != nil {
		return ir.Block{}, fmt.Errorf("block %d: %w", b.Number, err)
	}
	return b, nil
}
