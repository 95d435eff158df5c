package config

import "time"

// Config represents the complete fluxd configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	State   StateConfig   `yaml:"state"`
	Lock    LockConfig    `yaml:"lock"`
	API     APIConfig     `yaml:"api,omitempty"`
	Journal JournalConfig `yaml:"journal"`
	Events  EventsConfig  `yaml:"events"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// LockConfig defines the single-writer PID lock.
type LockConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`

	// Webhooks are served under /webhooks/<name> and authenticate with an
	// HMAC signature instead of a bearer token.
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig maps a signed inbound payload onto one action type.
type WebhookConfig struct {
	Name            string `yaml:"name"`
	Action          string `yaml:"action"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header,omitempty"`
	// MaxBodySize accepts plain bytes or a KB/MB suffix.
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// JournalConfig controls the action journal.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention time.Duration `yaml:"retention"`
	// PruneEvery is how often serve prunes: "hourly", "daily", "weekly",
	// a Go duration, or a day/week count such as "2d" or "1w".
	PruneEvery  string        `yaml:"prune_every"`
	PruneJitter time.Duration `yaml:"prune_jitter"`
}

// EventsConfig controls the store change feed.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// ChecksumManifest is the on-disk .checksums format.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns a Config with sensible defaults. Lock.Path is left empty
// and derived from State.Path by Parse.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "fluxd",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Journal: JournalConfig{
			Enabled:    true,
			Retention:  30 * 24 * time.Hour,
			PruneEvery: "hourly",
		},
		Events: EventsConfig{
			Buffer: 256,
		},
	}
}
