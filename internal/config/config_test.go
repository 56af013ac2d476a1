package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"*"}, cfg.CORSAllow)
	assert.Equal(t, time.Duration(0), cfg.ProposalTimeout)
	assert.Equal(t, 32, cfg.OutboxSize)
	assert.Equal(t, 280, cfg.MaxPromptRunes)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("CORS_ALLOW", "http://localhost:5173,http://127.0.0.1:5173")
	t.Setenv("PROPOSAL_TIMEOUT", "45s")
	t.Setenv("OUTBOX_SIZE", "8")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.CORSAllow)
	assert.Equal(t, 45*time.Second, cfg.ProposalTimeout)
	assert.Equal(t, 8, cfg.OutboxSize)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"OUTBOX_SIZE":      "0",
		"PROPOSAL_TIMEOUT": "-1s",
		"WS_WRITE_TIMEOUT": "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Parse()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "parse env")
		})
	}
}
