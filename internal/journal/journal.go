// Package journal records every dispatched action, its source tag, and the
// outcome of its dispatch round in the action_journal table.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/log"
)

// Entry statuses.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

const writeDeadline = 5 * time.Second

// timeLayout is fixed-width so dispatched_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one journaled action.
type Entry struct {
	Seq          int64           `json:"seq"`
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Source       string          `json:"source"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Status       string          `json:"status"`
	Error        string          `json:"error,omitempty"`
	DispatchedAt time.Time       `json:"dispatched_at"`
	DurationMS   *int64          `json:"duration_ms,omitempty"`
}

// Journal is a legacy (source-aware) listener plus a dispatch.Observer.
// Register it before any store so it sees actions a store later rejects.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger

	// pending maps a round number to the row Record wrote for it, so an
	// outcome always lands on its own round even when rounds overlap.
	mu      sync.Mutex
	pending map[uint64]string
}

// New returns a journal writing to db's action_journal table.
func New(db *sql.DB) *Journal {
	return &Journal{
		db:      db,
		logger:  log.WithComponent("journal"),
		pending: make(map[uint64]string),
	}
}

// Register adds the journal to d using the source-aware registration form.
func (j *Journal) Register(d *dispatch.Dispatcher) (dispatch.Handle, error) {
	return d.RegisterLegacy(j.Record)
}

// Record writes a pending entry for m. The round's outcome is filled in by
// ObserveDispatch.
func (j *Journal) Record(m dispatch.Message) error {
	typ, payload := describe(m.Action)
	id := uuid.NewString()
	now := time.Now().UTC().Format(timeLayout)

	ctx, cancel := context.WithTimeout(context.Background(), writeDeadline)
	defer cancel()

	var raw any
	if payload != nil {
		raw = string(payload)
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO action_journal(id, action_type, source, payload, status, dispatched_at)
VALUES(?, ?, ?, ?, ?, ?);
`, id, typ, m.Source.String(), raw, StatusPending, now)
	if err != nil {
		return fmt.Errorf("journal action: %w", err)
	}

	j.mu.Lock()
	j.pending[m.Round] = id
	j.mu.Unlock()

	log.WithAction(typ).Debug("action journaled", "id", id, "source", m.Source.String())
	return nil
}

// ObserveDispatch implements dispatch.Observer.
func (j *Journal) ObserveDispatch(msg dispatch.Message, err error, elapsed time.Duration) {
	j.mu.Lock()
	id, ok := j.pending[msg.Round]
	delete(j.pending, msg.Round)
	j.mu.Unlock()
	if !ok {
		// The round failed before reaching the journal.
		return
	}

	status := StatusDelivered
	var lastError any
	if err != nil {
		status = StatusFailed
		lastError = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeDeadline)
	defer cancel()
	if _, uerr := j.db.ExecContext(ctx, `
UPDATE action_journal SET status = ?, last_error = ?, duration_ms = ? WHERE id = ?;
`, status, lastError, elapsed.Milliseconds(), id); uerr != nil {
		j.logger.Error("failed to record dispatch outcome", "id", id, "error", uerr)
	}
}

// List returns up to limit entries, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT seq, id, action_type, source, payload, status, last_error, dispatched_at, duration_ms
FROM action_journal
ORDER BY seq DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return scanEntries(rows)
}

// ForTodo returns the entries whose payload names todoID, oldest first.
// ClearCompleted rounds carry no id and never appear here.
func (j *Journal) ForTodo(ctx context.Context, todoID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT seq, id, action_type, source, payload, status, last_error, dispatched_at, duration_ms
FROM action_journal
WHERE json_valid(payload) AND json_extract(payload, '$.id') = ?
ORDER BY seq ASC;
`, todoID)
	if err != nil {
		return nil, fmt.Errorf("todo history: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e            Entry
			payload      sql.NullString
			lastError    sql.NullString
			dispatchedAt string
			duration     sql.NullInt64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Type, &e.Source, &payload, &e.Status, &lastError, &dispatchedAt, &duration); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		if lastError.Valid {
			e.Error = lastError.String
		}
		if duration.Valid {
			ms := duration.Int64
			e.DurationMS = &ms
		}
		if t, err := time.Parse(timeLayout, dispatchedAt); err == nil {
			e.DispatchedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}

// Prune deletes entries older than retention and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := time.Now().UTC().Add(-retention).Format(timeLayout)

	res, err := j.db.ExecContext(ctx, "DELETE FROM action_journal WHERE dispatched_at < ?;", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	if n > 0 {
		j.logger.Info("journal pruned", "removed", n, "retention", retention.String())
	}
	return n, nil
}

// InterruptedError is recorded for entries still pending at startup.
const InterruptedError = "interrupted: process stopped before the dispatch round completed"

// RecoverPending marks entries left pending by a crashed process as failed.
// Call it only before the dispatcher is in use.
func (j *Journal) RecoverPending(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		"UPDATE action_journal SET status = ?, last_error = ? WHERE status = ?;",
		StatusFailed, InterruptedError, StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("recover pending journal entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover pending journal entries: %w", err)
	}
	return n, nil
}

// describe returns the wire name and JSON payload of a. Actions outside the
// todo domain are named by their Go type.
func describe(a dispatch.Action) (string, []byte) {
	if typ, body, err := action.Encode(a); err == nil {
		return typ, body
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Sprintf("%T", a), nil
	}
	return fmt.Sprintf("%T", a), body
}
