package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/dispatch"
)

type recordingDispatcher struct {
	got []dispatch.Action
	err error
}

func (r *recordingDispatcher) DispatchFromServer(_ context.Context, a dispatch.Action) error {
	r.got = append(r.got, a)
	return r.err
}

func newTestHandler(d Dispatcher, status StatusFunc) http.Handler {
	h := New([]Endpoint{{
		Name:            "inbox",
		Action:          action.TypeAddTodo,
		Secret:          "inbox-secret",
		SignatureHeader: DefaultSignatureHeader,
		MaxBodySize:     128,
	}}, d, status, slog.New(slog.DiscardHandler))
	return h.Routes()
}

func post(t *testing.T, h http.Handler, path string, body []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if sig != "" {
		req.Header.Set(DefaultSignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerDispatchesSignedPayload(t *testing.T) {
	d := &recordingDispatcher{}
	h := newTestHandler(d, nil)
	body := []byte(`{"title":"call back","sender":"ignored"}`)

	rec := post(t, h, "/inbox", body, Sign(body, "inbox-secret"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, d.got, 1)
	add, ok := d.got[0].(action.AddTodo)
	require.True(t, ok)
	assert.Equal(t, "call back", add.Title)
	assert.NotEmpty(t, add.ID)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "inbox", resp.Webhook)
	assert.Equal(t, action.TypeAddTodo, resp.Type)
}

func TestHandlerRejections(t *testing.T) {
	good := []byte(`{"title":"x"}`)
	big := bytes.Repeat([]byte("a"), 200)

	tests := []struct {
		name string
		path string
		body []byte
		sig  string
		want int
	}{
		{"unknown webhook", "/nope", good, Sign(good, "inbox-secret"), http.StatusNotFound},
		{"missing signature", "/inbox", good, "", http.StatusForbidden},
		{"wrong secret", "/inbox", good, Sign(good, "other"), http.StatusForbidden},
		{"too large", "/inbox", big, Sign(big, "inbox-secret"), http.StatusRequestEntityTooLarge},
		{"bad json", "/inbox", []byte("{"), Sign([]byte("{"), "inbox-secret"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDispatcher{}
			rec := post(t, newTestHandler(d, nil), tt.path, tt.body, tt.sig)
			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, d.got)
		})
	}
}

func TestHandlerMapsDispatchErrors(t *testing.T) {
	rejected := errors.New("title required")
	d := &recordingDispatcher{err: rejected}
	status := func(err error) (int, string) {
		assert.ErrorIs(t, err, rejected)
		return http.StatusUnprocessableEntity, err.Error()
	}
	body := []byte(`{"title":""}`)

	rec := post(t, newTestHandler(d, status), "/inbox", body, Sign(body, "inbox-secret"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "title required")
}

func TestHandlerDefaultStatusIs500(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("boom")}
	body := []byte(`{"title":"x"}`)

	rec := post(t, newTestHandler(d, nil), "/inbox", body, Sign(body, "inbox-secret"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
