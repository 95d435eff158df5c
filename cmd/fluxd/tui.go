package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/tui"
)

func runTUI(args []string) int {
	if hasHelpFlag(args) {
		fmt.Println("Usage: fluxd tui [--config <path>]")
		return 0
	}

	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// The screen owns stdout; logs go beside the state database.
	logPath := filepath.Join(filepath.Dir(cfg.State.Path), "tui.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		return 1
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return 1
	}
	defer logFile.Close()
	log.SetupWriter(logFile, cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx := context.Background()
	a, err := openApp(ctx, cfg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()
	if err := a.recordStart(ctx, "tui"); err != nil {
		log.WithComponent("main").Warn("failed to record start", "error", err)
	}

	model := tui.New(a.dispatcher, a.todos, a.hub)
	defer model.Close()

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		return 1
	}
	return 0
}
