package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/inspect"
	"github.com/mattjoyce/fluxd/internal/journal"
	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/store"
)

func runTodoNoun(args []string) int {
	if len(args) < 1 {
		printTodoNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printTodoNounHelp(os.Stdout)
		return 0
	}

	verb := args[0]
	verbArgs := args[1:]

	switch verb {
	case "add":
		return runTodoAdd(verbArgs)
	case "list", "ls":
		return runTodoList(verbArgs)
	case "done":
		return runTodoDone(verbArgs)
	case "rm", "remove":
		return runTodoRemove(verbArgs)
	case "clear":
		return runTodoClear(verbArgs)
	case "show":
		return runTodoShow(verbArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown todo action: %s\n", verb)
		return 1
	}
}

func printTodoNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: fluxd todo <add|list|done|rm|clear|show> [--config <path>] [args]")
}

// todoSession is an opened app for one todo command.
type todoSession struct {
	*app
	fs *flag.FlagSet
}

func openTodoSession(name string, args []string, write bool, extra func(*flag.FlagSet)) (*todoSession, int) {
	fs := flag.NewFlagSet("todo "+name, flag.ContinueOnError)
	configPath := configFlag(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, 0
		}
		return nil, 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, 1
	}
	log.SetupWriter(os.Stderr, "warn", cfg.Service.LogFormat)

	a, err := openApp(context.Background(), cfg, write)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, 1
	}
	return &todoSession{app: a, fs: fs}, 0
}

// dispatch sends a through the full listener chain. CLI actions carry no
// view or server source.
func (s *todoSession) dispatch(a dispatch.Action) int {
	if err := s.dispatcher.Dispatch(a); err != nil {
		var lerr *dispatch.ListenerError
		if errors.As(err, &lerr) {
			err = lerr.Err
		}
		fmt.Fprintf(os.Stderr, "Rejected: %v\n", err)
		return 1
	}
	return 0
}

func runTodoAdd(args []string) int {
	s, code := openTodoSession("add", args, true, nil)
	if s == nil {
		return code
	}
	defer s.Close()

	title := strings.Join(s.fs.Args(), " ")
	add := action.AddTodo{ID: action.NewID(), Title: title}
	if code := s.dispatch(add); code != 0 {
		return code
	}
	fmt.Printf("Added %s  %s\n", shortID(add.ID), strings.TrimSpace(title))
	return 0
}

func runTodoList(args []string) int {
	var asJSON bool
	s, code := openTodoSession("list", args, false, func(fs *flag.FlagSet) {
		fs.BoolVar(&asJSON, "json", false, "Output JSON")
	})
	if s == nil {
		return code
	}
	defer s.Close()

	todos := s.todos.List()
	if asJSON {
		data, _ := json.MarshalIndent(todos, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	if len(todos) == 0 {
		fmt.Println("Nothing to do.")
		return 0
	}
	for _, t := range todos {
		check := "[ ]"
		if t.Completed {
			check = "[x]"
		}
		fmt.Printf("%s %s  %s\n", check, shortID(t.ID), t.Title)
	}
	total, done := s.todos.Counts()
	fmt.Printf("\n%d open, %d done\n", total-done, done)
	return 0
}

func runTodoDone(args []string) int {
	s, code := openTodoSession("done", args, true, nil)
	if s == nil {
		return code
	}
	defer s.Close()

	t, err := resolveTodo(s.todos.List(), s.fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if t.Completed {
		fmt.Printf("Already done: %s\n", t.Title)
		return 0
	}
	if code := s.dispatch(action.ToggleTodo{ID: t.ID}); code != 0 {
		return code
	}
	fmt.Printf("Done: %s\n", t.Title)
	return 0
}

func runTodoRemove(args []string) int {
	s, code := openTodoSession("rm", args, true, nil)
	if s == nil {
		return code
	}
	defer s.Close()

	t, err := resolveTodo(s.todos.List(), s.fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if code := s.dispatch(action.RemoveTodo{ID: t.ID}); code != 0 {
		return code
	}
	fmt.Printf("Removed: %s\n", t.Title)
	return 0
}

func runTodoClear(args []string) int {
	s, code := openTodoSession("clear", args, true, nil)
	if s == nil {
		return code
	}
	defer s.Close()

	before, _ := s.todos.Counts()
	if code := s.dispatch(action.ClearCompleted{}); code != 0 {
		return code
	}
	after, _ := s.todos.Counts()
	fmt.Printf("Cleared %d completed todo(s)\n", before-after)
	return 0
}

// resolveTodo finds a todo by id or unique id prefix.
func runTodoShow(args []string) int {
	var asJSON bool
	s, code := openTodoSession("show", args, false, func(fs *flag.FlagSet) {
		fs.BoolVar(&asJSON, "json", false, "Output JSON")
	})
	if s == nil {
		return code
	}
	defer s.Close()

	// Removed todos are only in the journal, so fall back to the literal id.
	id := s.fs.Arg(0)
	if t, err := resolveTodo(s.todos.List(), id); err == nil {
		id = t.ID
	} else if id == "" {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var history inspect.History = noHistory{}
	if s.journal != nil {
		history = s.journal
	}

	build := inspect.BuildReport
	if asJSON {
		build = inspect.BuildJSONReport
	}
	out, err := build(context.Background(), s.todos, history, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(strings.TrimRight(out, "\n"))
	return 0
}

// noHistory stands in when the journal is disabled.
type noHistory struct{}

func (noHistory) ForTodo(context.Context, string) ([]journal.Entry, error) { return nil, nil }

func resolveTodo(todos []store.Todo, ref string) (store.Todo, error) {
	if ref == "" {
		return store.Todo{}, fmt.Errorf("todo id is required")
	}

	var matches []store.Todo
	for _, t := range todos {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return store.Todo{}, fmt.Errorf("%w: %s", store.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return store.Todo{}, fmt.Errorf("id prefix %q is ambiguous (%d matches)", ref, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
