package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/journal"
	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/storage"
	"github.com/mattjoyce/fluxd/internal/store"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

func setup(t *testing.T) (*dispatch.Dispatcher, *store.TodoStore, *journal.Journal) {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	j := journal.New(db)
	d := dispatch.New(dispatch.WithObserver(j))
	if _, err := j.Register(d); err != nil {
		t.Fatalf("register journal: %v", err)
	}
	todos := store.NewTodoStore(nil, nil)
	if _, err := todos.Register(d); err != nil {
		t.Fatalf("register store: %v", err)
	}
	return d, todos, j
}

func TestBuildReportRendersHistory(t *testing.T) {
	t.Parallel()
	d, todos, j := setup(t)

	if err := d.DispatchFromView(action.AddTodo{ID: "a1", Title: "milk"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := d.DispatchFromServer(action.RenameTodo{ID: "a1", Title: ""}); err == nil {
		t.Fatal("expected empty rename to be rejected")
	}
	if err := d.Dispatch(action.ToggleTodo{ID: "a1"}); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	out, err := BuildReport(context.Background(), todos, j, "a1")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	for _, want := range []string{
		"Todo ID     : a1",
		"State       : completed",
		"Title       : milk",
		"Rounds      : 3 (1 failed)",
		"[1] todo.add from view :: delivered",
		"[2] todo.rename from server :: failed",
		"[3] todo.toggle from none :: delivered",
		`"title": "milk"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestGatherRemovedTodo(t *testing.T) {
	t.Parallel()
	d, todos, j := setup(t)

	_ = d.Dispatch(action.AddTodo{ID: "gone", Title: "temp"})
	_ = d.Dispatch(action.RemoveTodo{ID: "gone"})

	r, err := Gather(context.Background(), todos, j, "gone")
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if r.State != "removed" || r.Title != "" || r.Rounds != 2 {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestGatherUnknownID(t *testing.T) {
	t.Parallel()
	_, todos, j := setup(t)

	_, err := Gather(context.Background(), todos, j, "nope")
	if !errors.Is(err, ErrUnknownTodo) {
		t.Fatalf("err = %v, want ErrUnknownTodo", err)
	}
}

func TestBuildJSONReport(t *testing.T) {
	t.Parallel()
	d, todos, j := setup(t)
	_ = d.Dispatch(action.AddTodo{ID: "x", Title: "json"})

	out, err := BuildJSONReport(context.Background(), todos, j, "x")
	if err != nil {
		t.Fatalf("BuildJSONReport: %v", err)
	}
	var r Report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.State != "open" || len(r.Steps) != 1 || r.Steps[0].Type != action.TypeAddTodo {
		t.Fatalf("unexpected report: %+v", r)
	}
}
