package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc", "abc", nil},
		{"trims", "Bearer   abc  ", "abc", nil},
		{"missing", "", "", ErrMissingCredentials},
		{"wrong scheme", "Basic abc", "", ErrMalformedCredentials},
		{"no separator", "Bearer", "", ErrMalformedCredentials},
		{"empty token", "Bearer ", "", ErrEmptyToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := BearerToken(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScopes(t *testing.T) {
	s := ParseScopes([]string{ScopeActionsRW, " ", " journal:rw "})

	assert.True(t, s.Allows(ScopeActionsRW))
	assert.True(t, s.Allows(ScopeTodosRO), "actions:rw implies todos:ro")
	assert.True(t, s.Allows(ScopeEventsRO), "actions:rw implies events:ro")
	assert.True(t, s.Allows(ScopeJournalRO), "journal:rw implies journal:ro")
	assert.True(t, s.Allows())
	assert.NotContains(t, s, "")

	reader := ParseScopes([]string{ScopeTodosRO})
	assert.False(t, reader.Allows(ScopeActionsRW, ScopeJournalRO))
	assert.True(t, reader.Allows(ScopeActionsRW, ScopeTodosRO))
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("admin-key", []TokenConfig{
		{Token: "", Scopes: []string{ScopeAll}},
		{Token: "writer", Scopes: []string{ScopeActionsRW}},
	})
	assert.Equal(t, 2, v.Len())

	t.Run("admin key grants everything", func(t *testing.T) {
		p, ok := v.Verify("admin-key")
		require.True(t, ok)
		assert.Equal(t, "admin", p.Name)
		assert.True(t, p.Scopes.Allows(ScopeJournalRW))
	})

	t.Run("scoped token is named by position", func(t *testing.T) {
		p, ok := v.Verify("writer")
		require.True(t, ok)
		assert.Equal(t, "token[1]", p.Name)
		assert.True(t, p.Scopes.Allows(ScopeTodosRO))
		assert.False(t, p.Scopes.Allows(ScopeJournalRO))
	})

	t.Run("unknown and prefix tokens fail", func(t *testing.T) {
		for _, presented := range []string{"nope", "write", "writer2", "admin-key "} {
			_, ok := v.Verify(presented)
			assert.False(t, ok, presented)
		}
	})

	t.Run("empty secrets never match", func(t *testing.T) {
		_, ok := v.Verify("")
		assert.False(t, ok)

		_, ok = NewVerifier("", nil).Verify("")
		assert.False(t, ok)
	})
}

func TestVerifier_FirstConfiguredMatchWins(t *testing.T) {
	v := NewVerifier("", []TokenConfig{
		{Token: "dup", Scopes: []string{ScopeTodosRO}},
		{Token: "dup", Scopes: []string{ScopeJournalRW}},
	})

	p, ok := v.Verify("dup")
	require.True(t, ok)
	assert.Equal(t, "token[0]", p.Name)
	assert.False(t, p.Scopes.Allows(ScopeJournalRO))
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{Name: "admin"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "admin", p.Name)
}
