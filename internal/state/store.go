// Package state persists store snapshots so a restarted process can rebuild
// its stores without replaying the action journal.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

const DefaultMaxStateBytes = 1 << 20 // 1 MiB

// Snapshot is the last persisted state of one store.
type Snapshot struct {
	State     json.RawMessage
	Version   int64
	UpdatedAt time.Time
}

type Store struct {
	db          *sql.DB
	maxStateBty int
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		maxStateBty: DefaultMaxStateBytes,
	}
}

// Get returns the snapshot for a store, or {} at version 0 if missing.
func (s *Store) Get(ctx context.Context, name string) (Snapshot, error) {
	if name == "" {
		return Snapshot{}, fmt.Errorf("store name is empty")
	}

	var (
		raw       string
		version   int64
		updatedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT state, version, updated_at FROM store_state WHERE store_name = ?;", name,
	).Scan(&raw, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{State: json.RawMessage(`{}`)}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read store state: %w", err)
	}
	if !json.Valid([]byte(raw)) {
		return Snapshot{}, fmt.Errorf("stored state is invalid JSON for store=%q", name)
	}

	snap := Snapshot{State: json.RawMessage(raw), Version: version}
	if updatedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, updatedAt.String); err == nil {
			snap.UpdatedAt = t
		}
	}
	return snap, nil
}

// Put replaces the snapshot for a store and returns its new version.
func (s *Store) Put(ctx context.Context, name string, state json.RawMessage) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("store name is empty")
	}
	if !json.Valid(state) {
		return 0, fmt.Errorf("state for store=%q is invalid JSON", name)
	}
	if len(state) > s.maxStateBty {
		return 0, fmt.Errorf("store state exceeds max size (%d bytes)", s.maxStateBty)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var version int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO store_state(store_name, state, version, updated_at)
VALUES(?, ?, 1, ?)
ON CONFLICT(store_name) DO UPDATE SET
  state = excluded.state,
  version = store_state.version + 1,
  updated_at = excluded.updated_at
RETURNING version;
`, name, string(state), now).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("upsert store state: %w", err)
	}
	return version, nil
}

// Delete drops a store's snapshot. Missing snapshots are not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM store_state WHERE store_name = ?;", name); err != nil {
		return fmt.Errorf("delete store state: %w", err)
	}
	return nil
}

// ShallowMerge replaces the top-level keys of a store's snapshot with those in
// updates and persists the result. The merged state is returned.
func (s *Store) ShallowMerge(ctx context.Context, name string, updates json.RawMessage) (json.RawMessage, error) {
	if name == "" {
		return nil, fmt.Errorf("store name is empty")
	}

	upd, err := decodeObjectOrEmpty(updates)
	if err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var curRaw string
	err = tx.QueryRowContext(ctx, "SELECT state FROM store_state WHERE store_name = ?;", name).Scan(&curRaw)
	if errors.Is(err, sql.ErrNoRows) {
		curRaw = "{}"
	} else if err != nil {
		return nil, fmt.Errorf("read store state: %w", err)
	}

	cur, err := decodeObjectOrEmpty(json.RawMessage(curRaw))
	if err != nil {
		return nil, fmt.Errorf("decode stored state: %w", err)
	}
	maps.Copy(cur, upd)

	merged, err := json.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("marshal merged state: %w", err)
	}
	if len(merged) > s.maxStateBty {
		return nil, fmt.Errorf("store state exceeds max size (%d bytes)", s.maxStateBty)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
INSERT INTO store_state(store_name, state, version, updated_at)
VALUES(?, ?, 1, ?)
ON CONFLICT(store_name) DO UPDATE SET
  state = excluded.state,
  version = store_state.version + 1,
  updated_at = excluded.updated_at;
`, name, string(merged), now)
	if err != nil {
		return nil, fmt.Errorf("upsert store state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return json.RawMessage(merged), nil
}

func decodeObjectOrEmpty(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		// JSON "null"
		return map[string]any{}, nil
	}
	return m, nil
}
