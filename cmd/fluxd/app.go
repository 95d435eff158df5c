package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mattjoyce/fluxd/internal/config"
	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/events"
	"github.com/mattjoyce/fluxd/internal/journal"
	"github.com/mattjoyce/fluxd/internal/lock"
	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/state"
	"github.com/mattjoyce/fluxd/internal/storage"
	"github.com/mattjoyce/fluxd/internal/store"
)

// metaStore holds process bookkeeping written with state.ShallowMerge.
const metaStore = "fluxd.meta"

// app is the wired dispatcher stack shared by serve, tui and the todo tools.
type app struct {
	cfg        *config.Config
	db         *sql.DB
	writer     *lock.WriterLock
	snapshots  *state.Store
	hub        *events.Hub
	journal    *journal.Journal
	dispatcher *dispatch.Dispatcher
	todos      *store.TodoStore
}

// configFlag registers the shared --config flag.
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "Path to configuration file or directory")
}

// loadConfig loads path, or discovers one, or falls back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, "No config found; using defaults")
			return config.Parse(nil)
		}
		path = discovered
	}
	return config.Load(path)
}

// openApp wires storage, the change feed, the journal and the todo store onto
// one dispatcher. With write set, the writer lock is taken first so only one
// process mutates the state database.
func openApp(ctx context.Context, cfg *config.Config, write bool) (*app, error) {
	a := &app{cfg: cfg}
	logger := log.WithComponent("main")

	if write {
		w, err := lock.Acquire(cfg.Lock.Path)
		if err != nil {
			if errors.Is(err, lock.ErrHeld) {
				return nil, fmt.Errorf("%w; is fluxd serve running? use the HTTP API instead", err)
			}
			return nil, err
		}
		a.writer = w
		logger.Debug("acquired writer lock", "path", cfg.Lock.Path)
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db
	a.snapshots = state.NewStore(db)
	a.hub = events.NewHub(cfg.Events.Buffer)

	var opts []dispatch.Option
	if cfg.Journal.Enabled {
		a.journal = journal.New(db)
		opts = append(opts, dispatch.WithObserver(a.journal))
	}
	a.dispatcher = dispatch.New(opts...)

	// The journal goes first so it records actions a store rejects.
	if a.journal != nil {
		if _, err := a.journal.Register(a.dispatcher); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.todos = store.NewTodoStore(a.snapshots, a.hub)
	if _, err := a.todos.Register(a.dispatcher); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.todos.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// recordStart notes who is writing and since when.
func (a *app) recordStart(ctx context.Context, mode string) error {
	_, err := a.snapshots.ShallowMerge(ctx, metaStore, mustJSON(map[string]any{
		"pid":        os.Getpid(),
		"mode":       mode,
		"version":    version,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}))
	return err
}

func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.writer != nil {
		_ = a.writer.Release()
	}
}
