package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("substitutes environment variables", func(t *testing.T) {
		t.Setenv("TEST_REDIS_ADDR", "redis.internal:6380")
		t.Setenv("TEST_API_KEY", "sk-test")

		cfg, err := Parse([]byte(`
redis:
  addr: ${TEST_REDIS_ADDR}
llm:
  api_key: ${TEST_API_KEY}
`))
		require.NoError(t, err)
		assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
		assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	})

	t.Run("unset variables become empty and fall back to defaults", func(t *testing.T) {
		cfg, err := Parse([]byte("redis:\n  addr: ${DEFINITELY_NOT_SET_ANYWHERE}\n"))
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	})

	t.Run("defaults fill unspecified sections", func(t *testing.T) {
		cfg, err := Parse([]byte("service:\n  workers: 8\n"))
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Service.Workers)
		assert.Equal(t, "agent_jobs", cfg.Redis.JobStream)
		assert.Equal(t, "agent_workers", cfg.Redis.WorkerGroup)
		assert.Equal(t, Duration(30*time.Second), cfg.Pipeline.HTTPTimeout)
		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	})

	t.Run("durations parse from strings", func(t *testing.T) {
		cfg, err := Parse([]byte("pipeline:\n  http_timeout: 45s\nservice:\n  shutdown_timeout: 2m\n"))
		require.NoError(t, err)
		assert.Equal(t, Duration(45*time.Second), cfg.Pipeline.HTTPTimeout)
		assert.Equal(t, Duration(2*time.Minute), cfg.Service.ShutdownTimeout)
	})

	t.Run("rejects malformed YAML", func(t *testing.T) {
		_, err := Parse([]byte("service: [not a map"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())

	cfg.LLM.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())
}
