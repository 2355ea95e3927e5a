package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LLM_PROVIDER", "OPENAI_MODEL", "LLM_TEMPERATURE", "LLM_MAX_TOKENS", "OCR_MAX_UPLOAD_BYTES", "STORE_BACKEND", "STORE_IDLE_TTL"} {
		t.Setenv(key, "")
	}
	Reset()
	t.Cleanup(Reset)

	cfg := Get()

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.OpenAIModel)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 1000, cfg.LLM.MaxTokens)
	assert.Equal(t, int64(5<<20), cfg.OCR.MaxUploadBytes)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, time.Hour, cfg.Store.IdleTTL)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("STORE_IDLE_TTL", "30m")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("DB_DRIVER", "sqlite")
	Reset()
	t.Cleanup(Reset)

	cfg := Get()

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Store.IdleTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "lots")
	t.Setenv("LLM_TIMEOUT", "soon")
	Reset()
	t.Cleanup(Reset)

	cfg := Get()

	assert.Equal(t, 1000, cfg.LLM.MaxTokens)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Driver = "oracle"

	_, err := dialectorFor(cfg)
	assert.Error(t, err)
}
