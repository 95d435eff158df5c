package webhook

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/config"
)

const (
	DefaultMaxBodySize     = 64 * 1024
	DefaultSignatureHeader = "X-Hub-Signature-256"
)

// Endpoint is a resolved webhook.
type Endpoint struct {
	Name            string
	Action          string
	Secret          string
	SignatureHeader string
	MaxBodySize     int64
}

// FromConfig resolves configured webhooks, applying defaults and rejecting
// unknown action types.
func FromConfig(hooks []config.WebhookConfig) ([]Endpoint, error) {
	known := action.Types()
	out := make([]Endpoint, 0, len(hooks))
	for _, h := range hooks {
		if !slices.Contains(known, h.Action) {
			return nil, fmt.Errorf("webhook %q: %w: %q", h.Name, action.ErrUnknownType, h.Action)
		}
		size, err := parseMaxBodySize(h.MaxBodySize)
		if err != nil {
			return nil, fmt.Errorf("webhook %q: invalid max_body_size %q: %w", h.Name, h.MaxBodySize, err)
		}
		header := h.SignatureHeader
		if header == "" {
			header = DefaultSignatureHeader
		}
		out = append(out, Endpoint{
			Name:            h.Name,
			Action:          h.Action,
			Secret:          h.Secret,
			SignatureHeader: header,
			MaxBodySize:     size,
		})
	}
	return out, nil
}

// parseMaxBodySize parses "2048", "16KB" or "1MB".
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	// Anything past 1GB is a typo.
	if value > (1<<30)/multiplier {
		return 0, fmt.Errorf("size too large")
	}
	return value * multiplier, nil
}
