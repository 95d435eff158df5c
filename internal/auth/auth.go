// Package auth authenticates API bearer tokens and checks their scopes.
//
// Tokens are resolved once into a Verifier. Presented tokens are compared by
// BLAKE3 digest, so every comparison costs the same regardless of how long or
// how similar the presented token is.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"
)

// Well-known scopes.
const (
	ScopeAll       = "*"
	ScopeActionsRW = "actions:rw"
	ScopeTodosRO   = "todos:ro"
	ScopeEventsRO  = "events:ro"
	ScopeJournalRO = "journal:ro"
	ScopeJournalRW = "journal:rw"
)

// implied lists the scopes a granted scope carries with it. Dispatching
// implies reading the state it changes.
var implied = map[string][]string{
	ScopeActionsRW: {ScopeTodosRO, ScopeEventsRO},
	ScopeJournalRW: {ScopeJournalRO},
}

// KnownScope reports whether scope is one the API checks for.
func KnownScope(scope string) bool {
	switch scope {
	case ScopeAll, ScopeActionsRW, ScopeTodosRO, ScopeEventsRO, ScopeJournalRO, ScopeJournalRW:
		return true
	}
	return false
}

// Scopes is the resolved scope set of a principal, implications included.
type Scopes map[string]struct{}

// ParseScopes resolves granted scopes into a set. Blank entries are dropped.
func ParseScopes(granted []string) Scopes {
	out := make(Scopes, len(granted))
	for _, s := range granted {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out[s] = struct{}{}
		for _, extra := range implied[s] {
			out[extra] = struct{}{}
		}
	}
	return out
}

// Allows reports whether the set grants any of required. An empty
// requirement is always allowed.
func (s Scopes) Allows(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	if _, ok := s[ScopeAll]; ok {
		return true
	}
	for _, r := range required {
		if _, ok := s[r]; ok {
			return true
		}
	}
	return false
}

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is an authenticated caller. Name is "admin" for the legacy key
// and "token[i]" for the i-th scoped token; the secret itself is never kept.
type Principal struct {
	Name   string
	Scopes Scopes
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

var (
	ErrMissingCredentials   = errors.New("missing Authorization header")
	ErrMalformedCredentials = errors.New("invalid Authorization header format")
	ErrEmptyToken           = errors.New("missing API key")
)

// BearerToken returns the token carried by r's Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return "", ErrMalformedCredentials
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

type credential struct {
	digest    [32]byte
	principal Principal
}

// Verifier maps presented bearer tokens to principals.
type Verifier struct {
	creds []credential
}

// NewVerifier resolves the legacy admin key and the scoped tokens. Empty
// secrets are skipped, so an unset key can never match.
func NewVerifier(adminKey string, tokens []TokenConfig) *Verifier {
	v := &Verifier{}
	if adminKey != "" {
		v.creds = append(v.creds, credential{
			digest:    blake3.Sum256([]byte(adminKey)),
			principal: Principal{Name: "admin", Scopes: Scopes{ScopeAll: {}}},
		})
	}
	for i, t := range tokens {
		if t.Token == "" {
			continue
		}
		v.creds = append(v.creds, credential{
			digest:    blake3.Sum256([]byte(t.Token)),
			principal: Principal{Name: fmt.Sprintf("token[%d]", i), Scopes: ParseScopes(t.Scopes)},
		})
	}
	return v
}

// Len returns the number of usable credentials.
func (v *Verifier) Len() int { return len(v.creds) }

// Verify returns the principal for presented. Every credential is compared,
// and the first configured match wins.
func (v *Verifier) Verify(presented string) (Principal, bool) {
	if presented == "" {
		return Principal{}, false
	}
	digest := blake3.Sum256([]byte(presented))

	var (
		found Principal
		ok    bool
	)
	for _, c := range v.creds {
		if subtle.ConstantTimeCompare(digest[:], c.digest[:]) == 1 && !ok {
			found, ok = c.principal, true
		}
	}
	return found, ok
}
