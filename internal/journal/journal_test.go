package journal

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

func setupJournal(t *testing.T) (*Journal, *dispatch.Dispatcher, *sql.DB) {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	j := New(db)
	d := dispatch.New(dispatch.WithObserver(j))
	_, err = j.Register(d)
	require.NoError(t, err)
	return j, d, db
}

func TestJournal_RecordsSourceAndOutcome(t *testing.T) {
	j, d, _ := setupJournal(t)
	boom := errors.New("boom")
	fail := false
	_, err := d.Register(func(dispatch.Action) error {
		if fail {
			return boom
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, d.DispatchFromView(action.AddTodo{ID: "a", Title: "milk"}))
	require.NoError(t, d.DispatchFromServer(action.ToggleTodo{ID: "a"}))
	fail = true
	require.ErrorIs(t, d.Dispatch(action.RemoveTodo{ID: "a"}), boom)

	entries, err := j.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first.
	assert.Equal(t, action.TypeRemoveTodo, entries[0].Type)
	assert.Equal(t, "none", entries[0].Source)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Contains(t, entries[0].Error, "boom")

	assert.Equal(t, action.TypeToggleTodo, entries[1].Type)
	assert.Equal(t, "server", entries[1].Source)
	assert.Equal(t, StatusDelivered, entries[1].Status)

	assert.Equal(t, action.TypeAddTodo, entries[2].Type)
	assert.Equal(t, "view", entries[2].Source)
	assert.JSONEq(t, `{"id":"a","title":"milk"}`, string(entries[2].Payload))
	require.NotNil(t, entries[2].DurationMS)
	assert.False(t, entries[2].DispatchedAt.IsZero())
	assert.Less(t, entries[1].Seq, entries[0].Seq)
}

func TestJournal_ForeignActionNamedByGoType(t *testing.T) {
	j, d, _ := setupJournal(t)

	type weatherUpdate struct {
		City string `json:"city"`
	}
	require.NoError(t, d.Dispatch(weatherUpdate{City: "Hobart"}))

	entries, err := j.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Type, "weatherUpdate")
	assert.JSONEq(t, `{"city":"Hobart"}`, string(entries[0].Payload))
}

func TestJournal_ObserveWithoutPendingIsNoop(t *testing.T) {
	j, _, _ := setupJournal(t)

	j.ObserveDispatch(dispatch.Message{Action: action.ClearCompleted{}}, nil, time.Millisecond)

	entries, err := j.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournal_OverlappingRoundsKeepTheirOwnOutcome(t *testing.T) {
	j, _, _ := setupJournal(t)
	first := dispatch.Message{Source: dispatch.SourceView, Action: action.AddTodo{ID: "a", Title: "milk"}, Round: 101}
	second := dispatch.Message{Source: dispatch.SourceServer, Action: action.AddTodo{ID: "b", Title: "eggs"}, Round: 102}

	// The second round is journaled before the first one's outcome arrives.
	require.NoError(t, j.Record(first))
	require.NoError(t, j.Record(second))
	j.ObserveDispatch(first, errors.New("boom"), time.Millisecond)
	j.ObserveDispatch(second, nil, time.Millisecond)

	entries, err := j.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "server", entries[0].Source)
	assert.Equal(t, StatusDelivered, entries[0].Status)
	assert.Empty(t, entries[0].Error)

	assert.Equal(t, "view", entries[1].Source)
	assert.Equal(t, StatusFailed, entries[1].Status)
	assert.Contains(t, entries[1].Error, "boom")
}

func TestJournal_Prune(t *testing.T) {
	j, d, db := setupJournal(t)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(action.ClearCompleted{}))
	old := time.Now().UTC().Add(-48 * time.Hour).Format(timeLayout)
	_, err := db.ExecContext(ctx, `
INSERT INTO action_journal(id, action_type, source, status, dispatched_at)
VALUES('old', 'todo.add', 'none', 'delivered', ?);`, old)
	require.NoError(t, err)

	n, err := j.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := j.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, action.TypeClearCompleted, entries[0].Type)

	_, err = j.Prune(ctx, 0)
	assert.Error(t, err)
}

func TestJournal_ListDefaultLimit(t *testing.T) {
	j, d, _ := setupJournal(t)
	for range 60 {
		require.NoError(t, d.Dispatch(action.ClearCompleted{}))
	}

	entries, err := j.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 50)
}

func TestJournal_RecoverPending(t *testing.T) {
	j, _, db := setupJournal(t)
	ctx := context.Background()

	now := time.Now().UTC().Format(timeLayout)
	_, err := db.ExecContext(ctx, `
INSERT INTO action_journal(id, action_type, source, status, dispatched_at)
VALUES('crashed', 'todo.add', 'view', 'pending', ?), ('ok', 'todo.add', 'view', 'delivered', ?);`, now, now)
	require.NoError(t, err)

	n, err := j.RecoverPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := j.List(ctx, 10)
	require.NoError(t, err)
	byID := map[string]Entry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	assert.Equal(t, StatusFailed, byID["crashed"].Status)
	assert.Equal(t, InterruptedError, byID["crashed"].Error)
	assert.Equal(t, StatusDelivered, byID["ok"].Status)

	n, err = j.RecoverPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJournal_ForTodo(t *testing.T) {
	j, d, _ := setupJournal(t)
	_, err := d.Register(func(dispatch.Action) error { return nil })
	require.NoError(t, err)

	require.NoError(t, d.DispatchFromView(action.AddTodo{ID: "a", Title: "milk"}))
	require.NoError(t, d.Dispatch(action.AddTodo{ID: "b", Title: "eggs"}))
	require.NoError(t, d.DispatchFromServer(action.RenameTodo{ID: "a", Title: "oat milk"}))
	require.NoError(t, d.Dispatch(action.ClearCompleted{}))
	require.NoError(t, d.Dispatch(action.ToggleTodo{ID: "a"}))

	entries, err := j.ForTodo(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, action.TypeAddTodo, entries[0].Type)
	assert.Equal(t, "view", entries[0].Source)
	assert.Equal(t, action.TypeRenameTodo, entries[1].Type)
	assert.Equal(t, action.TypeToggleTodo, entries[2].Type)
	assert.Less(t, entries[0].Seq, entries[2].Seq)

	entries, err = j.ForTodo(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
