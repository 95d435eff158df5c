package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/events"
	"github.com/mattjoyce/fluxd/internal/journal"
	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/state"
	"github.com/mattjoyce/fluxd/internal/storage"
	"github.com/mattjoyce/fluxd/internal/store"
	"github.com/mattjoyce/fluxd/internal/webhook"
)

type stack struct {
	server  *Server
	handler http.Handler
	todos   *store.TodoStore
	journal *journal.Journal
	hub     *events.Hub
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hub := events.NewHub(64)
	j := journal.New(db)
	d := dispatch.New(dispatch.WithObserver(j))
	_, err = j.Register(d)
	require.NoError(t, err)

	todos := store.NewTodoStore(state.NewStore(db), hub)
	_, err = todos.Register(d)
	require.NoError(t, err)

	srv := New(Config{APIKey: testKey}, d, todos, j, hub, log.WithComponent("api"))
	return &stack{server: srv, handler: srv.Handler(), todos: todos, journal: j, hub: hub}
}

func TestIntegration_ActionsFlowThroughStoreAndJournal(t *testing.T) {
	s := newStack(t)

	rr := do(t, s.handler, http.MethodPost, "/actions/todo.add", testKey, `{"id":"a","title":"milk"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	rr = do(t, s.handler, http.MethodPost, "/actions/todo.toggle", testKey, `{"id":"a"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = do(t, s.handler, http.MethodPost, "/actions/todo.toggle", testKey, `{"id":"missing"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, decodeError(t, rr), "todo not found")

	rr = do(t, s.handler, http.MethodGet, "/todos", testKey, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var todos TodosResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&todos))
	require.Len(t, todos.Todos, 1)
	assert.True(t, todos.Todos[0].Completed)
	assert.Equal(t, int64(2), todos.Version)

	rr = do(t, s.handler, http.MethodGet, "/journal", testKey, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var jr JournalResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&jr))
	require.Len(t, jr.Entries, 3)
	for _, e := range jr.Entries {
		assert.Equal(t, "server", e.Source)
	}
	assert.Equal(t, journal.StatusFailed, jr.Entries[0].Status)
	assert.Equal(t, journal.StatusDelivered, jr.Entries[1].Status)
}

func TestIntegration_WebhookSharesTheWriterGate(t *testing.T) {
	s := newStack(t)
	hooks := webhook.New([]webhook.Endpoint{{
		Name:            "inbox",
		Action:          "todo.add",
		Secret:          "hook-secret",
		SignatureHeader: webhook.DefaultSignatureHeader,
		MaxBodySize:     webhook.DefaultMaxBodySize,
	}}, s.server, DispatchStatus, log.WithComponent("api"))
	s.server.Mount("/webhooks", hooks.Routes())
	h := s.server.Handler()

	var wg sync.WaitGroup
	codes := make(chan int, 10)
	for i := range 5 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"title":"hook %d"}`, i)
			req := httptest.NewRequest(http.MethodPost, "/webhooks/inbox", strings.NewReader(body))
			req.Header.Set(webhook.DefaultSignatureHeader, webhook.Sign([]byte(body), "hook-secret"))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			codes <- rr.Code
		}()
		go func() {
			defer wg.Done()
			codes <- do(t, h, http.MethodPost, "/actions/todo.add", testKey, fmt.Sprintf(`{"title":"api %d"}`, i)).Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Equal(t, http.StatusAccepted, code)
	}
	total, _ := s.todos.Counts()
	assert.Equal(t, 10, total)

	entries, err := s.journal.List(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	for _, e := range entries {
		assert.Equal(t, "server", e.Source)
	}

	// Webhooks skip bearer auth but still need a valid signature.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbox", strings.NewReader(`{"title":"x"}`))
	req.Header.Set(webhook.DefaultSignatureHeader, webhook.Sign([]byte(`{"title":"y"}`), "hook-secret"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestIntegration_ConcurrentRequestsQueueForTheWriterGate(t *testing.T) {
	s := newStack(t)

	const n = 12
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"id":"t%d","title":"item %d"}`, i, i)
			codes <- do(t, s.handler, http.MethodPost, "/actions/todo.add", testKey, body).Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Equal(t, http.StatusAccepted, code, "no request should see the re-entrancy guard")
	}
	assert.Len(t, s.todos.List(), n)
}

func TestIntegration_EventsStreamReplaysAndFollows(t *testing.T) {
	s := newStack(t)
	ts := httptest.NewServer(s.handler)
	defer ts.Close()

	// Two events before the client connects; it has already seen the first.
	rr := do(t, s.handler, http.MethodPost, "/actions/todo.add", testKey, `{"id":"a","title":"milk"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	rr = do(t, s.handler, http.MethodPost, "/actions/todo.toggle", testKey, `{"id":"a"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	nextID := func() string {
		for lines.Scan() {
			if id, ok := strings.CutPrefix(lines.Text(), "id: "); ok {
				return id
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return ""
	}

	assert.Equal(t, "2", nextID(), "replay starts after Last-Event-ID")

	rr = do(t, s.handler, http.MethodPost, "/actions/todo.remove", testKey, `{"id":"a"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "3", nextID())
}
