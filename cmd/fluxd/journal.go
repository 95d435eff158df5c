package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mattjoyce/fluxd/internal/config"
	"github.com/mattjoyce/fluxd/internal/journal"
	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/storage"
)

func runJournalNoun(args []string) int {
	if len(args) < 1 {
		printJournalNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJournalNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "list", "ls":
		return runJournalList(args[1:])
	case "prune":
		return runJournalPrune(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown journal action: %s\n", args[0])
		return 1
	}
}

func printJournalNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: fluxd journal <list|prune> [--config <path>] [flags]")
}

// openJournal opens the journal directly; it never needs the dispatcher.
func openJournal(cfg *config.Config) (*journal.Journal, func(), error) {
	log.SetupWriter(os.Stderr, "warn", cfg.Service.LogFormat)

	db, err := storage.OpenSQLite(context.Background(), cfg.State.Path)
	if err != nil {
		return nil, nil, err
	}
	return journal.New(db), func() { _ = db.Close() }, nil
}

func runJournalList(args []string) int {
	fs := flag.NewFlagSet("journal list", flag.ContinueOnError)
	configPath := configFlag(fs)
	limit := fs.Int("limit", 20, "Maximum entries to show")
	asJSON := fs.Bool("json", false, "Output JSON")
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
	j, closeFn, err := openJournal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeFn()

	entries, err := j.List(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *asJSON {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	if len(entries) == 0 {
		fmt.Println("Journal is empty.")
		return 0
	}
	for _, e := range entries {
		line := fmt.Sprintf("%6d  %s  %-6s  %-20s  %-9s", e.Seq, e.DispatchedAt.Local().Format(time.DateTime), e.Source, e.Type, e.Status)
		if e.Error != "" {
			line += "  " + e.Error
		}
		fmt.Println(line)
	}
	return 0
}

func runJournalPrune(args []string) int {
	fs := flag.NewFlagSet("journal prune", flag.ContinueOnError)
	configPath := configFlag(fs)
	retention := fs.Duration("retention", 0, "Keep entries newer than this (default: journal.retention)")
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
	if *retention == 0 {
		*retention = cfg.Journal.Retention
	}

	j, closeFn, err := openJournal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeFn()

	n, err := j.Prune(context.Background(), *retention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Pruned %d entries older than %s\n", n, retention.String())
	return 0
}
