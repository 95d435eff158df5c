package api

import (
	"encoding/json"

	"github.com/mattjoyce/fluxd/internal/journal"
	"github.com/mattjoyce/fluxd/internal/store"
)

// ActionResponse is returned by POST /actions/{type} once every listener has
// accepted the action.
type ActionResponse struct {
	Type    string          `json:"type"`
	Source  string          `json:"source"`
	Action  json.RawMessage `json:"action"`
	Version int64           `json:"version"`
}

// TodosResponse is returned by GET /todos.
type TodosResponse struct {
	Todos     []store.Todo `json:"todos"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Version   int64        `json:"version"`
}

// JournalResponse is returned by GET /journal.
type JournalResponse struct {
	Entries []journal.Entry `json:"entries"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// DispatchFailure is the change feed payload for a rejected action.
type DispatchFailure struct {
	Type     string `json:"type"`
	Source   string `json:"source"`
	Listener int    `json:"listener"`
	Error    string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Listeners     int    `json:"listeners"`
	Dispatching   bool   `json:"dispatching"`
}
