package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.SessionTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 16, cfg.OutboxSize)
	assert.Equal(t, 15*time.Second, cfg.PingInterval)
	assert.Equal(t, int64(64<<10), cfg.ReadLimit)
	assert.False(t, cfg.NotifyRejected)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Nil(t, cfg.AllowedOrigins)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"PORT":            "9000",
		"SESSION_TTL":     "30m",
		"NOTIFY_REJECTED": "true",
		"OUTBOX_SIZE":     "4",
		"ALLOWED_ORIGINS": "localhost:3000, example.com ,",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.NotifyRejected)
	assert.Equal(t, 4, cfg.OutboxSize)
	assert.Equal(t, []string{"localhost:3000", "example.com"}, cfg.AllowedOrigins)
}

func TestFromEnv_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"SESSION_TTL":     "soon",
		"OUTBOX_SIZE":     "lots",
		"NOTIFY_REJECTED": "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			_, err := FromEnv(lookupFrom(map[string]string{key: value}))
			assert.ErrorContains(t, err, key)
		})
	}

	_, err := FromEnv(lookupFrom(map[string]string{"OUTBOX_SIZE": "1"}))
	assert.Error(t, err)
}
