package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/rootstore/internal/ir"
)

// EventColumns is the column list every event SELECT must use, in scan order.
const EventColumns = `id, root, number, saved, topic, action, idempotency, payload, headers, hash, proofs`

// InsertEvent writes one event. A duplicate id, (root, number) or
// idempotency key returns an error wrapping ErrConflict.
func (t *Tx) InsertEvent(ctx context.Context, e ir.Event) error {
	payloadJSON, err := marshalObject(e.Payload)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	headersJSON, err := marshalJSON(e.Headers)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	proofsJSON, err := marshalStrings(e.Proofs)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO events
		(id, root, number, saved, topic, action, idempotency, payload, headers, hash, proofs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.Root,
		e.Number,
		e.Saved.UnixMilli(),
		e.Headers.Topic,
		e.Headers.Action,
		e.Headers.Idempotency,
		payloadJSON,
		headersJSON,
		e.Hash,
		proofsJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert event %s: %w: %v", e.ID, ErrConflict, err)
		}
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}

// AppendEventProof adds proof to the event's proofs list.
func (t *Tx) AppendEventProof(ctx context.Context, eventID, proof string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE events SET proofs = json_insert(proofs, '$[#]', ?)
		WHERE id = ?
	`, proof, eventID)
	if err != nil {
		return fmt.Errorf("append proof to %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append proof to %s: rows affected: %w", eventID, err)
	}
	if n == 0 {
		return fmt.Errorf("append proof to %s: %w", eventID, ErrNotFound)
	}
	return nil
}

// EventKey identifies an event position for keyset pagination.
type EventKey struct {
	Root   string
	Number int64
}

// EventRange selects events ordered by (root, number).
type EventRange struct {
	// Root restricts to one root. Empty means all roots.
	Root string
	// From is the lowest number returned. Only applies with Root.
	From int64
	// SavedBefore excludes events saved at or after this time.
	SavedBefore time.Time
	// After excludes events at or before this key.
	After *EventKey
	// Limit caps the page size. Zero means unlimited.
	Limit int
}

// ReadEvents returns events matching r ordered by root, number.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, r EventRange) ([]ir.Event, error) {
	var (
		conds []string
		args  []any
	)
	if r.Root != "" {
		conds = append(conds, "root = ?", "number >= ?")
		args = append(args, r.Root, r.From)
	}
	if r.After != nil {
		conds = append(conds, "(root, number) > (?, ?)")
		args = append(args, r.After.Root, r.After.Number)
	}
	if !r.SavedBefore.IsZero() {
		conds = append(conds, "saved < ?")
		args = append(args, r.SavedBefore.UnixMilli())
	}

	var clause strings.Builder
	if len(conds) > 0 {
		clause.WriteString("WHERE ")
		clause.WriteString(strings.Join(conds, " AND "))
	}
	clause.WriteString(" ORDER BY root ASC, number ASC")
	if r.Limit > 0 {
		clause.WriteString(" LIMIT ?")
		args = append(args, r.Limit)
	}

	return s.SelectEvents(ctx, clause.String(), args...)
}

// ReadEvent retrieves a single event by id.
func (s *Store) ReadEvent(ctx context.Context, id string) (ir.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+EventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Event{}, fmt.Errorf("read event %s: %w", id, ErrNotFound)
	}
	return e, err
}

// SelectEvents runs "SELECT EventColumns FROM events <clause>" with args.
// clause carries its own WHERE/ORDER BY/LIMIT and must only reference
// placeholders for caller data.
func (s *Store) SelectEvents(ctx context.Context, clause string, args ...any) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+EventColumns+` FROM events `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (ir.Event, error) {
	var e ir.Event
	var saved int64
	var topic, action, idempotency string
	var payloadJSON, headersJSON, proofsJSON string
	err := row.Scan(
		&e.ID,
		&e.Root,
		&e.Number,
		&saved,
		&topic,
		&action,
		&idempotency,
		&payloadJSON,
		&headersJSON,
		&e.Hash,
		&proofsJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Event{}, err
		}
		return ir.Event{}, fmt.Errorf("scan event: %w", err)
	}

	e.Saved = millis(saved)
	if e.Payload, err = unmarshalObject(payloadJSON); err != nil {
		return ir.Event{}, fmt.Errorf("event %s: %w", e.ID, err)
	}
	if e.Headers, err = unmarshalHeaders(headersJSON); err != nil {
		return ir.Event{}, fmt.Errorf("event %s: %w", e.ID, err)
	}
	if e.Proofs, err = unmarshalStrings(proofsJSON); err != nil {
		return ir.Event{}, fmt.Errorf("event %s: %w", e.ID, err)
	}
	return e, nil
}
