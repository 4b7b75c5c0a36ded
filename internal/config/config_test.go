package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 60, cfg.Anthropic.RequestsPerMin)
	assert.Equal(t, []string{"comms", "media"}, cfg.Filter.Keywords)
	assert.Equal(t, 3, cfg.Batch.Size)
	assert.Equal(t, time.Second, cfg.Batch.Delay())
	assert.Equal(t, time.Hour, cfg.Batch.CacheTTL())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPPSCAN_BATCH_SIZE", "5")
	t.Setenv("OPPSCAN_STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Batch.Size)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
