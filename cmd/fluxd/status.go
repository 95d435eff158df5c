package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/fluxd/internal/lock"
	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/state"
	"github.com/mattjoyce/fluxd/internal/storage"
	"github.com/mattjoyce/fluxd/internal/store"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.SetupWriter(os.Stderr, "warn", cfg.Service.LogFormat)

	fmt.Printf("State:   %s\n", cfg.State.Path)
	fmt.Printf("Writer:  %s\n", writerStatus(cfg.Lock.Path))

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()
	snapshots := state.NewStore(db)

	meta, err := snapshots.Get(ctx, metaStore)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	var m struct {
		Mode      string `json:"mode"`
		Version   string `json:"version"`
		StartedAt string `json:"started_at"`
	}
	if err := json.Unmarshal(meta.State, &m); err == nil && m.StartedAt != "" {
		fmt.Printf("Started: %s by fluxd %s (%s)\n", m.StartedAt, m.Version, m.Mode)
	}

	todos := store.NewTodoStore(snapshots, nil)
	if err := todos.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	total, done := todos.Counts()
	fmt.Printf("Todos:   %d open, %d done (version %d)\n", total-done, done, todos.Version())
	return 0
}

// writerStatus probes the writer lock without keeping it.
func writerStatus(path string) string {
	w, err := lock.Acquire(path)
	if err == nil {
		_ = w.Release()
		return "none"
	}
	if errors.Is(err, lock.ErrHeld) {
		if pid, perr := lock.HolderPID(path); perr == nil {
			return fmt.Sprintf("pid %d", pid)
		}
		return "held"
	}
	return "unknown (" + err.Error() + ")"
}
