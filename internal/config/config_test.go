package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendREST, cfg.GeminiBackend)
	assert.Equal(t, "gemini-2.5-flash-image", cfg.GeminiModel)
	assert.Equal(t, 120*time.Second, cfg.AttemptTimeout)
	assert.Equal(t, int64(1245), cfg.CounterSeed)
	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.False(t, cfg.S3.Enabled())
	assert.Error(t, cfg.RequireTelegram())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("GEMINI_BACKEND", "SDK")
	t.Setenv("ATTEMPT_TIMEOUT_SECONDS", "0")
	t.Setenv("MAX_CONCURRENT", "-3")
	t.Setenv("DOCUMENT_JPEG_QUALITY", "150")
	t.Setenv("PREFER_IPV4", "not-a-bool")
	t.Setenv("S3_ENDPOINT", "localhost:9000")
	t.Setenv("S3_BUCKET", "pages")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSDK, cfg.GeminiBackend)
	assert.Zero(t, cfg.AttemptTimeout)
	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.Zero(t, cfg.DocumentJPEGQuality)
	assert.True(t, cfg.PreferIPv4)
	assert.True(t, cfg.S3.Enabled())
	assert.NoError(t, cfg.RequireTelegram())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		_, err := Load()
		assert.ErrorContains(t, err, "GEMINI_API_KEY")
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "key")
		t.Setenv("GEMINI_BACKEND", "grpc")
		_, err := Load()
		assert.ErrorContains(t, err, "GEMINI_BACKEND")
	})
}
