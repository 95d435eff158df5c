package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/fluxd/internal/auth"
	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/events"
	"github.com/mattjoyce/fluxd/internal/journal"
	"github.com/mattjoyce/fluxd/internal/store"
)

// ErrBusy is returned when an action could not get through the writer gate
// in time.
var ErrBusy = errors.New("dispatcher busy")

//go:generate mockgen -destination=mocks/mock_dispatcher.go -package=mocks github.com/mattjoyce/fluxd/internal/api ActionDispatcher

// ActionDispatcher is the part of *dispatch.Dispatcher the API drives.
type ActionDispatcher interface {
	DispatchFromServer(a dispatch.Action) error
	Len() int
	Dispatching() bool
}

// TodoReader exposes store contents. *store.TodoStore satisfies it.
type TodoReader interface {
	List() []store.Todo
	Counts() (total, completed int)
	Version() int64
}

// JournalReader lists recent journal entries. *journal.Journal satisfies it.
type JournalReader interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

// EventFeed is the store change feed. *events.Hub satisfies it.
type EventFeed interface {
	Publish(eventType string, data any) events.Event
	Subscribe() (<-chan events.Event, func())
	SnapshotSince(lastID int64) []events.Event
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// MaxWriteWait bounds how long a request queues for the writer gate.
	MaxWriteWait time.Duration
}

// Server is the HTTP front end of the dispatcher.
type Server struct {
	config     Config
	dispatcher ActionDispatcher
	todos      TodoReader
	journal    JournalReader
	events     EventFeed
	verifier   *auth.Verifier
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time

	mounts []mount

	// writeGate admits one dispatching request at a time. The dispatcher
	// rejects overlapping rounds, so HTTP writers queue here instead.
	writeGate chan struct{}
}

// New creates a new API server instance. journal may be nil when the action
// journal is disabled.
func New(config Config, dispatcher ActionDispatcher, todos TodoReader, journal JournalReader, feed EventFeed, logger *slog.Logger) *Server {
	if config.MaxWriteWait <= 0 {
		config.MaxWriteWait = 5 * time.Second
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		todos:      todos,
		journal:    journal,
		events:     feed,
		verifier:   auth.NewVerifier(config.APIKey, config.Tokens),
		logger:     logger,
		startedAt:  time.Now(),
		writeGate:  make(chan struct{}, 1),
	}
}

type mount struct {
	pattern string
	handler http.Handler
}

// Mount attaches h under pattern, outside bearer auth. Handlers mounted this
// way authenticate requests themselves. Call Mount before Start or Handler.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mounts = append(s.mounts, mount{pattern: pattern, handler: h})
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: /events is a long-lived stream.
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	for _, m := range s.mounts {
		r.Mount(m.pattern, m.handler)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeActionsRW)).Post("/actions/{type}", s.handleAction)
		r.With(s.requireScopes(auth.ScopeTodosRO)).Get("/todos", s.handleTodos)
		r.With(s.requireScopes(auth.ScopeJournalRO)).Get("/journal", s.handleJournal)
		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, ok := s.verifier.Verify(token)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func (s *Server) requireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := auth.PrincipalFromContext(r.Context())
			if !principal.Scopes.Allows(scopes...) {
				s.logger.Debug("scope check failed", "principal", principal.Name, "path", r.URL.Path)
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
