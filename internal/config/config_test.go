// Package config tests.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := LoadWithPrefix("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.SessionSweepInterval)
	assert.Equal(t, 10, cfg.SessionHistoryLimit)
	assert.Equal(t, "api-key", cfg.APIAuthMode)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.SlackEnabled())
	assert.False(t, cfg.TwilioValidationEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LLM_PROVIDER", "anthropic")

	cfg, err := LoadWithPrefix("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 45*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, "anthropic", cfg.LLMProvider)
}

func TestLoadFile(t *testing.T) {
	os.Clearenv()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LISTEN_ADDR=:7070\nAPI_AUTH_MODE=none\n"), 0o600))
	t.Setenv("API_AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", "s")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "jwt", cfg.APIAuthMode, "environment wins over the file")

	_, err = LoadFile(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{LLMProvider: "openai", APIAuthMode: "none", SessionHistoryLimit: 10}
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.LLMProvider = "parrot"
	assert.Error(t, c.Validate())

	c = base()
	c.SessionBackend = "redis"
	assert.Error(t, c.Validate(), "redis without URL")

	c = base()
	c.APIAuthMode = "jwt"
	assert.Error(t, c.Validate(), "jwt without secret")
	c.JWTSecret = "s3cret"
	assert.NoError(t, c.Validate())

	c = base()
	c.SessionHistoryLimit = 0
	assert.Error(t, c.Validate())
}

func TestConfig_EnabledFlags(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.SlackEnabled())

	cfg.SlackBotToken = "xoxb-test"
	assert.False(t, cfg.SlackEnabled(), "channel still missing")
	cfg.SlackChannel = "C123"
	assert.True(t, cfg.SlackEnabled())

	cfg.TwilioAuthToken = "tok"
	assert.True(t, cfg.TwilioValidationEnabled())
}

func TestLoadProfile(t *testing.T) {
	p, err := LoadProfile("")
	require.NoError(t, err)
	assert.Empty(t, p.Greeting)

	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("greeting: G'day, joinery desk.\nhistory_limit: 6\n"), 0o600))

	p, err = LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "G'day, joinery desk.", p.Greeting)
	assert.Equal(t, 6, p.HistoryLimit)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
