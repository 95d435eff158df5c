// Package doctor lints a loaded fluxd configuration for mistakes that parse
// cleanly but will misbehave at runtime.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/auth"
	"github.com/mattjoyce/fluxd/internal/config"
	"github.com/mattjoyce/fluxd/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded config.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateState(r)
	d.validateTokenScopes(r)
	d.validateWebhooks(r)
	d.warnExposedAPI(r)
	d.warnDeprecatedAuth(r)
	d.warnJournalSchedule(r)
	d.warnSmallFeed(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateState(r *Result) {
	dir := filepath.Dir(d.cfg.State.Path)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		d.addWarning(r, "state", "state.path", fmt.Sprintf("directory %s does not exist yet; it will be created", dir))
	case err != nil:
		d.addError(r, "state", "state.path", err.Error())
	case !info.IsDir():
		d.addError(r, "state", "state.path", fmt.Sprintf("%s is not a directory", dir))
	}

	for field, path := range map[string]string{"state.path": d.cfg.State.Path, "lock.path": d.cfg.Lock.Path} {
		if _, err := storage.CheckLocal(path); errors.Is(err, storage.ErrNetworkFilesystem) {
			d.addError(r, "state", field, err.Error())
		}
	}

	if filepath.Clean(d.cfg.Lock.Path) == filepath.Clean(d.cfg.State.Path) {
		d.addError(r, "state", "lock.path", "lock.path must differ from state.path")
	}
}

func (d *Doctor) validateTokenScopes(r *Result) {
	seen := make(map[string]int)
	for i, token := range d.cfg.API.Auth.Tokens {
		if prev, ok := seen[token.Token]; ok {
			d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].token", i),
				fmt.Sprintf("token duplicates api.auth.tokens[%d]", prev))
		}
		seen[token.Token] = i

		for j, scope := range token.Scopes {
			if !auth.KnownScope(scope) {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q", scope))
			}
		}
		if slices.Contains(token.Scopes, auth.ScopeAll) && len(token.Scopes) > 1 {
			d.addWarning(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes", i),
				"\"*\" already grants every scope")
		}
	}
}

func (d *Doctor) validateWebhooks(r *Result) {
	if len(d.cfg.API.Webhooks) == 0 {
		return
	}
	if !d.cfg.API.Enabled {
		d.addWarning(r, "webhooks", "api.webhooks", "webhooks are configured but api.enabled is false; they will not be served")
	}

	known := action.Types()
	for i, wh := range d.cfg.API.Webhooks {
		field := fmt.Sprintf("api.webhooks[%d]", i)
		if !slices.Contains(known, wh.Action) {
			d.addError(r, "webhooks", field+".action",
				fmt.Sprintf("webhook %q targets unknown action %q (known: %s)", wh.Name, wh.Action, strings.Join(known, ", ")))
		}
		if strings.ContainsAny(wh.Name, "/ ") {
			d.addError(r, "webhooks", field+".name", fmt.Sprintf("webhook name %q must be a single path segment", wh.Name))
		}
		if len(wh.Secret) < 16 {
			d.addWarning(r, "webhooks", field+".secret", fmt.Sprintf("webhook %q secret is shorter than 16 bytes", wh.Name))
		}
	}
}

// warnExposedAPI flags a listener reachable off-host that still relies on
// the all-powerful legacy key.
func (d *Doctor) warnExposedAPI(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if ip := net.ParseIP(host); host == "localhost" || (ip != nil && ip.IsLoopback()) {
		return
	}
	if d.cfg.API.Auth.APIKey != "" {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("API listens on %q with a legacy api_key; prefer scoped tokens off-host", d.cfg.API.Listen))
	}
}

func (d *Doctor) warnDeprecatedAuth(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "deprecated", "api.auth.api_key",
			"legacy api_key grants full access; migrate to tokens array with scopes")
	}
}

func (d *Doctor) warnJournalSchedule(r *Result) {
	j := d.cfg.Journal
	if !j.Enabled {
		return
	}
	interval, err := config.ParseInterval(j.PruneEvery)
	if err != nil {
		d.addError(r, "journal", "journal.prune_every", err.Error())
		return
	}
	if interval < time.Minute {
		d.addWarning(r, "journal", "journal.prune_every",
			fmt.Sprintf("prune interval %q is very short (< 1m)", j.PruneEvery))
	}
	if j.Retention > 0 && interval > j.Retention {
		d.addWarning(r, "journal", "journal.prune_every",
			fmt.Sprintf("prune interval %s exceeds retention %s; entries will outlive their retention", interval, j.Retention))
	}
	if j.PruneJitter >= interval {
		d.addWarning(r, "journal", "journal.prune_jitter", "jitter is not smaller than the prune interval")
	}
}

func (d *Doctor) warnSmallFeed(r *Result) {
	if d.cfg.Events.Buffer > 0 && d.cfg.Events.Buffer < 16 {
		d.addWarning(r, "events", "events.buffer",
			fmt.Sprintf("buffer of %d events makes SSE replay after a reconnect unlikely to succeed", d.cfg.Events.Buffer))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	writeIssues(&b, "ERROR", r.Errors)
	writeIssues(&b, "WARN ", r.Warnings)
	return b.String()
}

func writeIssues(b *strings.Builder, label string, issues []Issue) {
	for _, i := range issues {
		if i.Field != "" {
			fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, i.Category, i.Field, i.Message)
		} else {
			fmt.Fprintf(b, "  %s [%s] %s\n", label, i.Category, i.Message)
		}
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
