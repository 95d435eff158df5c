package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/config"
)

func TestFromConfigAppliesDefaults(t *testing.T) {
	eps, err := FromConfig([]config.WebhookConfig{
		{Name: "inbox", Action: action.TypeAddTodo, Secret: "s"},
		{Name: "sweep", Action: action.TypeClearCompleted, Secret: "t", SignatureHeader: "X-Sig", MaxBodySize: "2KB"},
	})
	require.NoError(t, err)
	require.Len(t, eps, 2)

	assert.Equal(t, DefaultSignatureHeader, eps[0].SignatureHeader)
	assert.EqualValues(t, DefaultMaxBodySize, eps[0].MaxBodySize)
	assert.Equal(t, "X-Sig", eps[1].SignatureHeader)
	assert.EqualValues(t, 2048, eps[1].MaxBodySize)
}

func TestFromConfigRejectsUnknownAction(t *testing.T) {
	_, err := FromConfig([]config.WebhookConfig{{Name: "x", Action: "todo.explode", Secret: "s"}})
	assert.ErrorIs(t, err, action.ErrUnknownType)
}

func TestParseMaxBodySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", DefaultMaxBodySize, false},
		{"2048", 2048, false},
		{"16kb", 16 * 1024, false},
		{" 1MB ", 1024 * 1024, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"lots", 0, true},
		{"4096MB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMaxBodySize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
