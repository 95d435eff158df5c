package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/events"
)

const (
	maxActionBody     = 64 << 10
	defaultJournalMax = 50
	maxJournalLimit   = 500
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Listeners:     s.dispatcher.Len(),
		Dispatching:   s.dispatcher.Dispatching(),
	})
}

// handleAction handles POST /actions/{type}.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActionBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	a, err := action.Decode(typ, body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.DispatchFromServer(r.Context(), a); err != nil {
		status, msg := DispatchStatus(err)
		s.writeError(w, status, msg)
		return
	}

	_, encoded, err := action.Encode(a)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var version int64
	if s.todos != nil {
		version = s.todos.Version()
	}
	respondJSON(w, http.StatusAccepted, ActionResponse{
		Type:    typ,
		Source:  dispatch.SourceServer.String(),
		Action:  encoded,
		Version: version,
	})
}

// DispatchFromServer dispatches a server-sourced action once the writer gate
// admits it. Rejections by a listener are announced on the change feed.
func (s *Server) DispatchFromServer(ctx context.Context, a dispatch.Action) error {
	if err := s.acquireWriter(ctx); err != nil {
		s.logger.Warn("writer gate wait expired", "action_type", action.Type(a))
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	err := s.dispatchGated(a)

	var lerr *dispatch.ListenerError
	if errors.As(err, &lerr) {
		typ, _, _ := action.Encode(a)
		s.logger.Info("action rejected", "action_type", typ, "listener", lerr.Index, "error", lerr.Err)
		if s.events != nil {
			s.events.Publish(events.TypeDispatchError, DispatchFailure{
				Type:     typ,
				Source:   lerr.Source.String(),
				Listener: lerr.Index,
				Error:    lerr.Err.Error(),
			})
		}
	} else if err != nil && !errors.Is(err, dispatch.ErrIllegalState) {
		s.logger.Error("dispatch failed", "action_type", action.Type(a), "error", err)
	}
	return err
}

// dispatchGated runs one round while holding the writer gate. The gate is
// freed even if a listener panics.
func (s *Server) dispatchGated(a dispatch.Action) error {
	defer s.releaseWriter()
	return s.dispatcher.DispatchFromServer(a)
}

// acquireWriter queues for the writer gate until ctx ends or MaxWriteWait
// elapses.
func (s *Server) acquireWriter(ctx context.Context) error {
	timer := time.NewTimer(s.config.MaxWriteWait)
	defer timer.Stop()

	select {
	case s.writeGate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return context.DeadlineExceeded
	}
}

func (s *Server) releaseWriter() { <-s.writeGate }

// DispatchStatus maps a dispatch error onto an HTTP status and client message.
func DispatchStatus(err error) (int, string) {
	var lerr *dispatch.ListenerError
	switch {
	case errors.As(err, &lerr):
		return http.StatusUnprocessableEntity, lerr.Err.Error()
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable, "dispatcher busy, try again"
	case errors.Is(err, dispatch.ErrIllegalState):
		return http.StatusConflict, err.Error()
	case errors.Is(err, dispatch.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "dispatch failed"
	}
}

// handleTodos handles GET /todos.
func (s *Server) handleTodos(w http.ResponseWriter, r *http.Request) {
	if s.todos == nil {
		s.writeError(w, http.StatusNotFound, "todo store not available")
		return
	}
	total, completed := s.todos.Counts()
	respondJSON(w, http.StatusOK, TodosResponse{
		Todos:     s.todos.List(),
		Total:     total,
		Completed: completed,
		Version:   s.todos.Version(),
	})
}

// handleJournal handles GET /journal?limit=N.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, "journal disabled")
		return
	}

	limit := defaultJournalMax
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := s.journal.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list journal")
		return
	}
	respondJSON(w, http.StatusOK, JournalResponse{Entries: entries})
}
