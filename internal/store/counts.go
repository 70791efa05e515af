package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultRootPageSize is the page size used when scanning counters.
const DefaultRootPageSize = 500

// Increment atomically reserves amount numbers for root and returns the new
// counter value. The first reserved number is value - amount. The counter row
// is created on first use.
func (t *Tx) Increment(ctx context.Context, root string, amount int64, now time.Time) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("increment %q: amount must be positive, got %d", root, amount)
	}

	var value int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO counts (root, value, updated)
		VALUES (?, ?, ?)
		ON CONFLICT(root) DO UPDATE SET
			value = value + excluded.value,
			updated = excluded.updated
		RETURNING value
	`, root, amount, now.UnixMilli()).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("increment %q: %w", root, err)
	}
	return value, nil
}

// Count returns the next available number for root, which equals the number
// of events stored for it. Unknown roots return 0.
func (s *Store) Count(ctx context.Context, root string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM counts WHERE root = ?`, root).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", root, err)
	}
	return value, nil
}

// RootPage selects one keyset page of counter rows.
type RootPage struct {
	// After excludes roots ordered at or before this value.
	After string
	// Limit defaults to DefaultRootPageSize.
	Limit int
	// UpdatedOnOrAfter and UpdatedBefore bound the last reservation time.
	// Zero values leave the side open.
	UpdatedOnOrAfter time.Time
	UpdatedBefore    time.Time
}

// ListRoots returns one page of roots ordered by root. An empty result means
// the scan is complete.
func (s *Store) ListRoots(ctx context.Context, page RootPage) ([]string, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = DefaultRootPageSize
	}

	query := `SELECT root FROM counts WHERE root > ?`
	args := []any{page.After}
	if !page.UpdatedOnOrAfter.IsZero() {
		query += ` AND updated >= ?`
		args = append(args, page.UpdatedOnOrAfter.UnixMilli())
	}
	if !page.UpdatedBefore.IsZero() {
		query += ` AND updated < ?`
		args = append(args, page.UpdatedBefore.UnixMilli())
	}
	query += ` ORDER BY root ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list roots: %w", err)
	}
	defer rows.Close()

	roots := []string{}
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("scan root: %w", err)
		}
		roots = append(roots, root)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roots: %w", err)
	}
	return roots, nil
}
