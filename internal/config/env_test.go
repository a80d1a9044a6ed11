package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorhaus/kbvec/internal/config"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := config.LoadFromEnvWithPrefix("KBVEC_TEST_NONE")
	require.NoError(t, err)

	app := cfg.ToAppConfig()
	assert.Equal(t, config.DefaultPort, app.Port())
	assert.Equal(t, config.DefaultEmbeddingModel, app.Embedding().Model())
	assert.Equal(t, config.DefaultWorkerCount, app.Queue().WorkerCount())
	assert.Equal(t, config.DefaultCacheThreshold, app.Cache().Threshold())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("HOST", "10.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("API_KEYS", "alpha,beta")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("EMBEDDING_DIMENSION", "3072")
	t.Setenv("EMBEDDING_BATCH_SIZE", "50")
	t.Setenv("QUEUE_WORKER_COUNT", "8")
	t.Setenv("QUEUE_RETRY_DELAY_SECONDS", "5")
	t.Setenv("GENERATION_FAILURE_THRESHOLD", "3")
	t.Setenv("CACHE_TTL_HOURS", "2")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)

	app := cfg.ToAppConfig()
	assert.Equal(t, "10.0.0.1:9090", app.Addr())
	assert.Equal(t, []string{"alpha", "beta"}, app.APIKeys())
	assert.Equal(t, "text-embedding-3-large", app.Embedding().Model())
	assert.Equal(t, 3072, app.Embedding().Dimension())
	assert.Equal(t, 50, app.Embedding().BatchSize())
	assert.Equal(t, 8, app.Queue().WorkerCount())
	assert.Equal(t, 5*time.Second, app.Queue().RetryBaseDelay())
	assert.Equal(t, 3, app.Generation().FailureThreshold())
	assert.Equal(t, 2*time.Hour, app.Cache().TTL())
}
