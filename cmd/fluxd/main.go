package main

import (
	"fmt"
	"io"
	"os"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	// --- NOUNS ---
	case "todo":
		return runTodoNoun(rest)
	case "journal":
		return runJournalNoun(rest)
	case "config":
		return runConfigNoun(rest)

	// --- VERBS ---
	case "serve":
		return runServe(rest)
	case "tui":
		return runTUI(rest)
	case "status":
		return runStatus(rest)
	case "version":
		fmt.Printf("fluxd version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `fluxd - Flux-style action dispatcher with a todo store

Usage:
  fluxd <command> [flags]
  fluxd <noun> <action> [flags]

Commands:
  serve             Run the dispatcher and HTTP API in the foreground
  tui               Interactive todo view (dispatches view actions)
  status            Show writer lock holder and store summary

Todo Commands:
  todo add <title>  Dispatch a todo.add action
  todo list         Show todos
  todo done <id>    Mark a todo completed
  todo rm <id>      Remove a todo
  todo clear        Remove completed todos
  todo show <id>    Show a todo and every journaled action that named it

Journal Commands:
  journal list      Show recently dispatched actions
  journal prune     Delete entries older than the retention window

Config Commands:
  config check      Validate syntax and integrity
  config lock       Authorize current config (update integrity hashes)
  config show       Print the resolved configuration
  config doctor     Lint the configuration for runtime pitfalls

General:
  version           Show version information
  help              Show this help message

All commands accept --config <path>. Without it fluxd checks $FLUXD_CONFIG,
~/.config/fluxd/config.yaml and ./config.yaml, then falls back to defaults.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
