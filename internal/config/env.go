package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration. Nested structs use an
// underscore delimiter (e.g. EMBEDDING_BASE_URL, QUEUE_WORKER_COUNT).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.kbvec
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/kbvec.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// APIKeys is a comma-separated list of valid API keys.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// SearchLimit is the default search result limit.
	// Env: SEARCH_LIMIT (default: 10)
	SearchLimit int `envconfig:"SEARCH_LIMIT" default:"10"`

	// ScoreThreshold is the default similarity score threshold.
	// Env: SCORE_THRESHOLD (default: 0.3)
	ScoreThreshold float64 `envconfig:"SCORE_THRESHOLD" default:"0.3"`

	// HeartbeatSeconds is the realtime stream heartbeat interval in seconds.
	// Env: HEARTBEAT_SECONDS (default: 30)
	HeartbeatSeconds float64 `envconfig:"HEARTBEAT_SECONDS" default:"30"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingEnv `envconfig:"EMBEDDING"`

	// Generation configures the chat-generation endpoint.
	Generation GenerationEnv `envconfig:"GENERATION"`

	// Queue configures the task queue and worker pool.
	Queue QueueEnv `envconfig:"QUEUE"`

	// Chunking configures the document chunker.
	Chunking ChunkingEnv `envconfig:"CHUNKING"`

	// Cache configures the semantic response cache.
	Cache CacheEnv `envconfig:"CACHE"`
}

// EmbeddingEnv holds environment configuration for the embedding provider.
type EmbeddingEnv struct {
	// BaseURL is the provider base URL.
	// Env: EMBEDDING_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the embedding model identifier.
	// Env: EMBEDDING_MODEL (default: text-embedding-3-small)
	Model string `envconfig:"MODEL" default:"text-embedding-3-small"`

	// Dimension is the embedding vector dimensionality.
	// Env: EMBEDDING_DIMENSION (default: 1536)
	Dimension int `envconfig:"DIMENSION" default:"1536"`

	// APIKey is the environment-level default API key.
	// Env: EMBEDDING_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// BatchSize is the maximum texts per provider call.
	// Env: EMBEDDING_BATCH_SIZE (default: 100)
	BatchSize int `envconfig:"BATCH_SIZE" default:"100"`

	// Timeout is the request timeout in seconds.
	// Env: EMBEDDING_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum retry count for transient errors.
	// Env: EMBEDDING_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: EMBEDDING_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: EMBEDDING_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`
}

// GenerationEnv holds environment configuration for the generation endpoint.
type GenerationEnv struct {
	// BaseURL is the provider base URL.
	// Env: GENERATION_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the generation model identifier.
	// Env: GENERATION_MODEL (default: gpt-4o-mini)
	Model string `envconfig:"MODEL" default:"gpt-4o-mini"`

	// APIKey is the API key.
	// Env: GENERATION_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// FailureThreshold is the consecutive-failure count that opens the
	// circuit breaker.
	// Env: GENERATION_FAILURE_THRESHOLD (default: 5)
	FailureThreshold int `envconfig:"FAILURE_THRESHOLD" default:"5"`

	// BreakerTimeout is the open-state cooldown in seconds.
	// Env: GENERATION_BREAKER_TIMEOUT (default: 60)
	BreakerTimeout float64 `envconfig:"BREAKER_TIMEOUT" default:"60"`
}

// QueueEnv holds environment configuration for the task queue.
type QueueEnv struct {
	// WorkerCount is the maximum concurrently processing tasks.
	// Env: QUEUE_WORKER_COUNT (default: 4)
	WorkerCount int `envconfig:"WORKER_COUNT" default:"4"`

	// PollIntervalSeconds is the scheduler poll interval in seconds.
	// Env: QUEUE_POLL_INTERVAL_SECONDS (default: 1)
	PollIntervalSeconds float64 `envconfig:"POLL_INTERVAL_SECONDS" default:"1"`

	// MaxRetries is the per-task automatic retry bound.
	// Env: QUEUE_MAX_RETRIES (default: 3)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"3"`

	// RetryDelaySeconds is the base retry backoff delay in seconds.
	// Env: QUEUE_RETRY_DELAY_SECONDS (default: 30)
	RetryDelaySeconds float64 `envconfig:"RETRY_DELAY_SECONDS" default:"30"`

	// RetentionHours is how long terminal tasks are kept, in hours.
	// Env: QUEUE_RETENTION_HOURS (default: 168)
	RetentionHours float64 `envconfig:"RETENTION_HOURS" default:"168"`
}

// ChunkingEnv holds environment configuration for the chunker.
type ChunkingEnv struct {
	// MaxTokens is the per-chunk token bound.
	// Env: CHUNKING_MAX_TOKENS (default: 512)
	MaxTokens int `envconfig:"MAX_TOKENS" default:"512"`

	// OverlapTokens is the token overlap between adjacent chunks.
	// Env: CHUNKING_OVERLAP_TOKENS (default: 64)
	OverlapTokens int `envconfig:"OVERLAP_TOKENS" default:"64"`
}

// CacheEnv holds environment configuration for the semantic cache.
type CacheEnv struct {
	// Enabled controls whether the semantic cache is enabled.
	// Env: CACHE_ENABLED (default: true)
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// Threshold is the cosine similarity required for a cache hit.
	// Env: CACHE_THRESHOLD (default: 0.95)
	Threshold float64 `envconfig:"THRESHOLD" default:"0.95"`

	// TTLHours is the entry time-to-live in hours.
	// Env: CACHE_TTL_HOURS (default: 24)
	TTLHours float64 `envconfig:"TTL_HOURS" default:"24"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "KBVEC" would require KBVEC_DATA_DIR instead of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	opts := []AppConfigOption{
		WithLogFormat(ParseLogFormat(e.LogFormat)),
		WithEmbedding(e.Embedding.ToEmbeddingConfig()),
		WithGeneration(e.Generation.ToGenerationConfig()),
		WithQueue(e.Queue.ToQueueConfig()),
		WithChunking(e.Chunking.ToChunkingConfig()),
		WithCache(e.Cache.ToCacheConfig()),
	}

	if e.Host != "" {
		opts = append(opts, WithHost(e.Host))
	}
	if e.Port != 0 {
		opts = append(opts, WithPort(e.Port))
	}
	if e.DataDir != "" {
		opts = append(opts, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		opts = append(opts, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		opts = append(opts, WithLogLevel(e.LogLevel))
	}
	if e.APIKeys != "" {
		opts = append(opts, WithAPIKeys(ParseAPIKeys(e.APIKeys)))
	}
	if e.SearchLimit > 0 {
		opts = append(opts, WithSearchLimit(e.SearchLimit))
	}
	if e.ScoreThreshold > 0 {
		opts = append(opts, WithScoreThreshold(e.ScoreThreshold))
	}
	if e.HeartbeatSeconds > 0 {
		opts = append(opts, WithHeartbeatInterval(seconds(e.HeartbeatSeconds)))
	}

	return NewAppConfigWithOptions(opts...)
}

// ToEmbeddingConfig converts EmbeddingEnv to EmbeddingConfig.
func (e EmbeddingEnv) ToEmbeddingConfig() EmbeddingConfig {
	opts := []EmbeddingOption{
		WithEmbeddingModel(e.Model, e.Dimension),
		WithEmbeddingBatchSize(e.BatchSize),
		WithEmbeddingTimeout(seconds(e.Timeout)),
		WithEmbeddingRetry(e.MaxRetries, seconds(e.InitialDelay), e.BackoffFactor),
	}
	if e.BaseURL != "" {
		opts = append(opts, WithEmbeddingBaseURL(e.BaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithEmbeddingAPIKey(e.APIKey))
	}
	return NewEmbeddingConfigWithOptions(opts...)
}

// ToGenerationConfig converts GenerationEnv to GenerationConfig.
func (g GenerationEnv) ToGenerationConfig() GenerationConfig {
	opts := []GenerationOption{
		WithGenerationModel(g.Model),
		WithBreaker(g.FailureThreshold, seconds(g.BreakerTimeout)),
	}
	if g.BaseURL != "" {
		opts = append(opts, WithGenerationBaseURL(g.BaseURL))
	}
	if g.APIKey != "" {
		opts = append(opts, WithGenerationAPIKey(g.APIKey))
	}
	return NewGenerationConfigWithOptions(opts...)
}

// ToQueueConfig converts QueueEnv to QueueConfig.
func (q QueueEnv) ToQueueConfig() QueueConfig {
	return NewQueueConfigWithOptions(
		WithQueueWorkers(q.WorkerCount),
		WithQueuePollInterval(seconds(q.PollIntervalSeconds)),
		WithQueueRetry(q.MaxRetries, seconds(q.RetryDelaySeconds)),
		WithQueueRetention(hours(q.RetentionHours)),
	)
}

// ToChunkingConfig converts ChunkingEnv to ChunkingConfig.
func (c ChunkingEnv) ToChunkingConfig() ChunkingConfig {
	return NewChunkingConfig().
		WithMaxTokens(c.MaxTokens).
		WithOverlapTokens(c.OverlapTokens)
}

// ToCacheConfig converts CacheEnv to CacheConfig.
func (c CacheEnv) ToCacheConfig() CacheConfig {
	return NewCacheConfig().
		WithEnabled(c.Enabled).
		WithThreshold(c.Threshold).
		WithTTL(hours(c.TTLHours))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
