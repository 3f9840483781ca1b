package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("GW_TEST_HOST", "db.internal")

	assert.Equal(t, "host: db.internal", expandEnv("host: ${GW_TEST_HOST}"))
	assert.Equal(t, "port: 6543", expandEnv("port: ${GW_TEST_UNSET_PORT:6543}"))
	assert.Equal(t, "key: ", expandEnv("key: ${GW_TEST_UNSET_KEY:}"))
	assert.Equal(t, "raw: ${GW_TEST_UNSET}", expandEnv("raw: ${GW_TEST_UNSET}"))
}

func TestLoadFrom_DefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
app:
  name: gateway-under-test
database:
  postgres:
    host: ${GW_TEST_PG_HOST:localhost}
llm:
  providers:
    openai:
      api_key: ${GW_TEST_OPENAI_KEY:}
      models: [gpt-4o]
    anthropic:
      temperature: 0
gateway:
  supersede_wait: 2s
`)
	writeConfig(t, dir, "config.staging.yaml", `
gateway:
  history_limit: 20
`)
	t.Setenv("APP_ENV", "staging")
	t.Setenv("GW_TEST_PG_HOST", "pg.staging")
	t.Setenv("GW_TEST_OPENAI_KEY", "sk-test")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "gateway-under-test", cfg.App.Name)
	assert.Equal(t, "pg.staging", cfg.Database.Postgres.Host)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)

	openai := cfg.LLM.Providers[ProviderOpenAI]
	assert.Equal(t, "sk-test", openai.APIKey)
	assert.Equal(t, []string{"gpt-4o"}, openai.Models)
	assert.Equal(t, "https://api.openai.com/v1", openai.BaseURL)
	assert.Equal(t, 128000, openai.ContextWindow)
	assert.Equal(t, 120*time.Second, openai.Timeout)
	assert.InDelta(t, 0.7, openai.Temperature, 1e-9)
	assert.Zero(t, cfg.LLM.Providers[ProviderAnthropic].Temperature)

	assert.Equal(t, 20, cfg.Gateway.HistoryLimit)
	assert.Equal(t, 2*time.Second, cfg.Gateway.SupersedeWait)
	assert.Equal(t, 5*time.Minute, cfg.Gateway.Timeouts.Total)
	assert.Equal(t, 60*time.Second, cfg.Gateway.Timeouts.Stall)
	assert.Equal(t, 3, cfg.Gateway.Persistence.MaxAttempts)
	assert.Equal(t, 300*time.Second, cfg.Gateway.Status.CheckInterval)
	assert.False(t, cfg.Gateway.PersistTruncatedPartial)

	assert.Equal(t, "redis", cfg.Messaging.Driver)
	assert.Equal(t, "/metrics", cfg.Observability.Metrics.Path)
	assert.Empty(t, cfg.Security.JWT.Secret)
}

func TestLoadFrom_MissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	assert.Error(t, err)
}
