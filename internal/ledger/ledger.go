package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxErrorBytes = 4 * 1024

// timeLayout is RFC 3339 with a fixed-width fraction so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Ledger persists retrieval attempts in the retrievals table.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record inserts e and returns its id. A missing ID gets a fresh UUID.
func (l *Ledger) Record(ctx context.Context, e Entry) (string, error) {
	if e.FileID == "" {
		return "", fmt.Errorf("file_id is empty")
	}
	if e.Status == "" {
		return "", fmt.Errorf("status is empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.CompletedAt
	}

	var lastError any
	if e.LastError != nil {
		msg := *e.LastError
		if len(msg) > maxErrorBytes {
			msg = msg[:maxErrorBytes]
		}
		lastError = msg
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO retrievals(id, file_id, name, path, size, digest, status, last_error, started_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.FileID, e.Name, e.Path, e.Size, e.Digest, string(e.Status), lastError,
		e.StartedAt.UTC().Format(timeLayout), e.CompletedAt.UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("record retrieval: %w", err)
	}
	return e.ID, nil
}

// Get returns the entry with id, or (nil, nil) when absent.
func (l *Ledger) Get(ctx context.Context, id string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT id, file_id, name, path, size, digest, status, last_error, started_at, completed_at
FROM retrievals
WHERE id = ?;
`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get retrieval: %w", err)
	}
	return e, nil
}

// List returns the most recent entries, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := l.db.QueryContext(ctx, `
SELECT id, file_id, name, path, size, digest, status, last_error, started_at, completed_at
FROM retrievals
ORDER BY completed_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list retrievals: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retrieval: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list retrievals: %w", err)
	}
	return out, nil
}

// Count returns the number of recorded attempts with the given status, or all
// attempts when status is empty.
func (l *Ledger) Count(ctx context.Context, status Status) (int, error) {
	var (
		n   int
		err error
	)
	if status == "" {
		err = l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM retrievals;`).Scan(&n)
	} else {
		err = l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM retrievals WHERE status = ?;`, string(status)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count retrievals: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e            Entry
		name         sql.NullString
		path         sql.NullString
		digest       sql.NullString
		statusS      string
		lastError    sql.NullString
		startedAtS   string
		completedAtS string
	)
	if err := s.Scan(&e.ID, &e.FileID, &name, &path, &e.Size, &digest, &statusS, &lastError, &startedAtS, &completedAtS); err != nil {
		return nil, err
	}

	e.Name = name.String
	e.Path = path.String
	e.Digest = digest.String
	e.Status = Status(statusS)
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	if t, err := time.Parse(time.RFC3339Nano, startedAtS); err == nil {
		e.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, completedAtS); err == nil {
		e.CompletedAt = t
	}
	return &e, nil
}

// StoredCount returns the number of successfully stored files.
func (l *Ledger) StoredCount(ctx context.Context) (int, error) {
	return l.Count(ctx, StatusStored)
}
