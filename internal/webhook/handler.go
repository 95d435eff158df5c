package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/dispatch"
)

// Dispatcher delivers a decoded action. It is expected to serialize writers
// and to stamp the round as server-sourced.
type Dispatcher interface {
	DispatchFromServer(ctx context.Context, a dispatch.Action) error
}

// StatusFunc maps a dispatch error onto an HTTP status and client message.
type StatusFunc func(error) (int, string)

// Handler serves every configured webhook.
type Handler struct {
	endpoints  map[string]Endpoint
	dispatcher Dispatcher
	status     StatusFunc
	logger     *slog.Logger
}

// Response is returned for an accepted webhook.
type Response struct {
	Webhook string          `json:"webhook"`
	Type    string          `json:"type"`
	Action  json.RawMessage `json:"action"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds a handler for endpoints. status may be nil, in which case every
// dispatch failure is a 500.
func New(endpoints []Endpoint, d Dispatcher, status StatusFunc, logger *slog.Logger) *Handler {
	byName := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		byName[ep.Name] = ep
	}
	if status == nil {
		status = func(error) (int, string) { return http.StatusInternalServerError, "dispatch failed" }
	}
	return &Handler{
		endpoints:  byName,
		dispatcher: d,
		status:     status,
		logger:     logger.With("component", "webhook"),
	}
}

// Len reports the number of configured endpoints.
func (h *Handler) Len() int { return len(h.endpoints) }

// Routes returns a router exposing POST /{name}.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/{name}", h.handle)
	return r
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ep, ok := h.endpoints[name]
	if !ok {
		respond(w, http.StatusNotFound, errorResponse{Error: "webhook not found"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, ep.MaxBodySize+1))
	if err != nil {
		respond(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}
	if int64(len(body)) > ep.MaxBodySize {
		respond(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large"})
		return
	}

	// Log nothing about the body until the sender is authenticated.
	if err := Verify(body, r.Header.Get(ep.SignatureHeader), ep.Secret); err != nil {
		h.logger.Warn("webhook signature rejected",
			"webhook", name,
			"header", ep.SignatureHeader,
			"request_id", middleware.GetReqID(r.Context()),
		)
		respond(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
		return
	}

	a, err := action.Decode(ep.Action, body)
	if err != nil {
		respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := h.dispatcher.DispatchFromServer(r.Context(), a); err != nil {
		status, msg := h.status(err)
		respond(w, status, errorResponse{Error: msg})
		return
	}

	typ, encoded, err := action.Encode(a)
	if err != nil {
		respond(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	h.logger.Info("webhook dispatched", "webhook", name, "action_type", typ)
	respond(w, http.StatusAccepted, Response{Webhook: name, Type: typ, Action: encoded})
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
