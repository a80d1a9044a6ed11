// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 8080
	DefaultLogLevel           = "INFO"
	DefaultWorkerCount        = 4
	DefaultSearchLimit        = 10
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultEmbeddingDimension = 1536
	DefaultEmbeddingBatchSize = 100
	DefaultEmbeddingTimeout   = 60 * time.Second
	DefaultEmbeddingRetries   = 5
	DefaultInitialDelay       = 2 * time.Second
	DefaultBackoffFactor      = 2.0
	DefaultGenerationModel    = "gpt-4o-mini"
	DefaultBreakerThreshold   = 5
	DefaultBreakerTimeout     = 60 * time.Second
	DefaultQueuePollInterval  = 1 * time.Second
	DefaultQueueMaxRetries    = 3
	DefaultQueueRetryDelay    = 30 * time.Second
	DefaultQueueRetention     = 7 * 24 * time.Hour
	DefaultChunkMaxTokens     = 512
	DefaultChunkOverlapTokens = 64
	DefaultCacheThreshold     = 0.95
	DefaultCacheTTL           = 24 * time.Hour
	DefaultScoreThreshold     = 0.3
	DefaultHeartbeatInterval  = 30 * time.Second
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// ParseLogFormat parses a log format string, defaulting to pretty.
func ParseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}

// EmbeddingConfig configures the embedding provider endpoint.
type EmbeddingConfig struct {
	baseURL       string
	model         string
	dimension     int
	apiKey        string
	batchSize     int
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewEmbeddingConfig creates an EmbeddingConfig with defaults.
func NewEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		model:         DefaultEmbeddingModel,
		dimension:     DefaultEmbeddingDimension,
		batchSize:     DefaultEmbeddingBatchSize,
		timeout:       DefaultEmbeddingTimeout,
		maxRetries:    DefaultEmbeddingRetries,
		initialDelay:  DefaultInitialDelay,
		backoffFactor: DefaultBackoffFactor,
	}
}

// BaseURL returns the provider base URL (empty means the provider default).
func (e EmbeddingConfig) BaseURL() string { return e.baseURL }

// Model returns the embedding model identifier.
func (e EmbeddingConfig) Model() string { return e.model }

// Dimension returns the embedding vector dimensionality.
func (e EmbeddingConfig) Dimension() int { return e.dimension }

// APIKey returns the environment-level default API key.
func (e EmbeddingConfig) APIKey() string { return e.apiKey }

// BatchSize returns the maximum number of texts per provider call.
func (e EmbeddingConfig) BatchSize() int { return e.batchSize }

// Timeout returns the request timeout.
func (e EmbeddingConfig) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count for transient errors.
func (e EmbeddingConfig) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e EmbeddingConfig) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e EmbeddingConfig) BackoffFactor() float64 { return e.backoffFactor }

// EmbeddingOption is a functional option for EmbeddingConfig.
type EmbeddingOption func(*EmbeddingConfig)

// WithEmbeddingBaseURL sets the provider base URL.
func WithEmbeddingBaseURL(url string) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.baseURL = url }
}

// WithEmbeddingModel sets the model and its vector dimensionality together.
func WithEmbeddingModel(model string, dimension int) EmbeddingOption {
	return func(e *EmbeddingConfig) {
		e.model = model
		e.dimension = dimension
	}
}

// WithEmbeddingAPIKey sets the environment-level default API key.
func WithEmbeddingAPIKey(key string) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.apiKey = key }
}

// WithEmbeddingBatchSize sets the maximum texts per provider call.
func WithEmbeddingBatchSize(n int) EmbeddingOption {
	return func(e *EmbeddingConfig) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithEmbeddingTimeout sets the request timeout.
func WithEmbeddingTimeout(d time.Duration) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.timeout = d }
}

// WithEmbeddingRetry sets the retry policy.
func WithEmbeddingRetry(maxRetries int, initialDelay time.Duration, backoffFactor float64) EmbeddingOption {
	return func(e *EmbeddingConfig) {
		e.maxRetries = maxRetries
		e.initialDelay = initialDelay
		e.backoffFactor = backoffFactor
	}
}

// NewEmbeddingConfigWithOptions creates an EmbeddingConfig with options.
func NewEmbeddingConfigWithOptions(opts ...EmbeddingOption) EmbeddingConfig {
	e := NewEmbeddingConfig()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// GenerationConfig configures the chat-generation endpoint and its circuit
// breaker.
type GenerationConfig struct {
	baseURL          string
	model            string
	apiKey           string
	failureThreshold int
	breakerTimeout   time.Duration
	requestTimeout   time.Duration
}

// NewGenerationConfig creates a GenerationConfig with defaults.
func NewGenerationConfig() GenerationConfig {
	return GenerationConfig{
		model:            DefaultGenerationModel,
		failureThreshold: DefaultBreakerThreshold,
		breakerTimeout:   DefaultBreakerTimeout,
		requestTimeout:   DefaultEmbeddingTimeout,
	}
}

// BaseURL returns the provider base URL.
func (g GenerationConfig) BaseURL() string { return g.baseURL }

// Model returns the generation model identifier.
func (g GenerationConfig) Model() string { return g.model }

// APIKey returns the API key.
func (g GenerationConfig) APIKey() string { return g.apiKey }

// FailureThreshold returns the consecutive-failure count that opens the breaker.
func (g GenerationConfig) FailureThreshold() int { return g.failureThreshold }

// BreakerTimeout returns how long the breaker stays open before a trial call.
func (g GenerationConfig) BreakerTimeout() time.Duration { return g.breakerTimeout }

// RequestTimeout returns the per-request timeout.
func (g GenerationConfig) RequestTimeout() time.Duration { return g.requestTimeout }

// GenerationOption is a functional option for GenerationConfig.
type GenerationOption func(*GenerationConfig)

// WithGenerationBaseURL sets the provider base URL.
func WithGenerationBaseURL(url string) GenerationOption {
	return func(g *GenerationConfig) { g.baseURL = url }
}

// WithGenerationModel sets the model.
func WithGenerationModel(model string) GenerationOption {
	return func(g *GenerationConfig) { g.model = model }
}

// WithGenerationAPIKey sets the API key.
func WithGenerationAPIKey(key string) GenerationOption {
	return func(g *GenerationConfig) { g.apiKey = key }
}

// WithBreaker sets the circuit breaker policy.
func WithBreaker(failureThreshold int, timeout time.Duration) GenerationOption {
	return func(g *GenerationConfig) {
		g.failureThreshold = failureThreshold
		g.breakerTimeout = timeout
	}
}

// NewGenerationConfigWithOptions creates a GenerationConfig with options.
func NewGenerationConfigWithOptions(opts ...GenerationOption) GenerationConfig {
	g := NewGenerationConfig()
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// QueueConfig configures the task queue and worker pool.
type QueueConfig struct {
	workerCount    int
	pollInterval   time.Duration
	maxRetries     int
	retryBaseDelay time.Duration
	retention      time.Duration
}

// NewQueueConfig creates a QueueConfig with defaults.
func NewQueueConfig() QueueConfig {
	return QueueConfig{
		workerCount:    DefaultWorkerCount,
		pollInterval:   DefaultQueuePollInterval,
		maxRetries:     DefaultQueueMaxRetries,
		retryBaseDelay: DefaultQueueRetryDelay,
		retention:      DefaultQueueRetention,
	}
}

// WorkerCount returns the maximum number of concurrently processing tasks.
func (q QueueConfig) WorkerCount() int { return q.workerCount }

// PollInterval returns how often the scheduler polls for claimable tasks.
func (q QueueConfig) PollInterval() time.Duration { return q.pollInterval }

// MaxRetries returns the per-task automatic retry bound.
func (q QueueConfig) MaxRetries() int { return q.maxRetries }

// RetryBaseDelay returns the base delay for exponential retry backoff.
func (q QueueConfig) RetryBaseDelay() time.Duration { return q.retryBaseDelay }

// Retention returns how long terminal tasks are kept before the janitor
// removes them.
func (q QueueConfig) Retention() time.Duration { return q.retention }

// QueueOption is a functional option for QueueConfig.
type QueueOption func(*QueueConfig)

// WithQueueWorkers sets the worker pool size.
func WithQueueWorkers(n int) QueueOption {
	return func(q *QueueConfig) {
		if n > 0 {
			q.workerCount = n
		}
	}
}

// WithQueuePollInterval sets the scheduler poll interval.
func WithQueuePollInterval(d time.Duration) QueueOption {
	return func(q *QueueConfig) { q.pollInterval = d }
}

// WithQueueRetry sets the retry policy.
func WithQueueRetry(maxRetries int, baseDelay time.Duration) QueueOption {
	return func(q *QueueConfig) {
		q.maxRetries = maxRetries
		q.retryBaseDelay = baseDelay
	}
}

// WithQueueRetention sets the terminal-task retention window.
func WithQueueRetention(d time.Duration) QueueOption {
	return func(q *QueueConfig) { q.retention = d }
}

// NewQueueConfigWithOptions creates a QueueConfig with options.
func NewQueueConfigWithOptions(opts ...QueueOption) QueueConfig {
	q := NewQueueConfig()
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// ChunkingConfig configures the document chunker.
type ChunkingConfig struct {
	maxTokens     int
	overlapTokens int
}

// NewChunkingConfig creates a ChunkingConfig with defaults.
func NewChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		maxTokens:     DefaultChunkMaxTokens,
		overlapTokens: DefaultChunkOverlapTokens,
	}
}

// MaxTokens returns the per-chunk token bound.
func (c ChunkingConfig) MaxTokens() int { return c.maxTokens }

// OverlapTokens returns the token overlap between adjacent chunks.
func (c ChunkingConfig) OverlapTokens() int { return c.overlapTokens }

// WithMaxTokens returns a new config with the given per-chunk bound.
func (c ChunkingConfig) WithMaxTokens(n int) ChunkingConfig {
	if n > 0 {
		c.maxTokens = n
	}
	return c
}

// WithOverlapTokens returns a new config with the given overlap.
func (c ChunkingConfig) WithOverlapTokens(n int) ChunkingConfig {
	if n >= 0 {
		c.overlapTokens = n
	}
	return c
}

// CacheConfig configures the semantic response cache.
type CacheConfig struct {
	enabled   bool
	threshold float64
	ttl       time.Duration
}

// NewCacheConfig creates a CacheConfig with defaults.
func NewCacheConfig() CacheConfig {
	return CacheConfig{
		enabled:   true,
		threshold: DefaultCacheThreshold,
		ttl:       DefaultCacheTTL,
	}
}

// Enabled returns whether the semantic cache is enabled.
func (c CacheConfig) Enabled() bool { return c.enabled }

// Threshold returns the cosine similarity required for a cache hit.
func (c CacheConfig) Threshold() float64 { return c.threshold }

// TTL returns the entry time-to-live.
func (c CacheConfig) TTL() time.Duration { return c.ttl }

// WithEnabled returns a new config with the specified enabled state.
func (c CacheConfig) WithEnabled(enabled bool) CacheConfig {
	c.enabled = enabled
	return c
}

// WithThreshold returns a new config with the specified similarity threshold.
func (c CacheConfig) WithThreshold(threshold float64) CacheConfig {
	c.threshold = threshold
	return c
}

// WithTTL returns a new config with the specified entry time-to-live.
func (c CacheConfig) WithTTL(ttl time.Duration) CacheConfig {
	c.ttl = ttl
	return c
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host              string
	port              int
	dataDir           string
	dbURL             string
	logLevel          string
	logFormat         LogFormat
	apiKeys           []string
	searchLimit       int
	scoreThreshold    float64
	heartbeatInterval time.Duration
	embedding         EmbeddingConfig
	generation        GenerationConfig
	queue             QueueConfig
	chunking          ChunkingConfig
	cache             CacheConfig
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kbvec"
	}
	return filepath.Join(home, ".kbvec")
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates an AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:              DefaultHost,
		port:              DefaultPort,
		dataDir:           dataDir,
		dbURL:             "sqlite:///" + filepath.Join(dataDir, "kbvec.db"),
		logLevel:          DefaultLogLevel,
		logFormat:         LogFormatPretty,
		apiKeys:           []string{},
		searchLimit:       DefaultSearchLimit,
		scoreThreshold:    DefaultScoreThreshold,
		heartbeatInterval: DefaultHeartbeatInterval,
		embedding:         NewEmbeddingConfig(),
		generation:        NewGenerationConfig(),
		queue:             NewQueueConfig(),
		chunking:          NewChunkingConfig(),
		cache:             NewCacheConfig(),
	}
}

// EnsureDataDir creates the data directory if it does not exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// APIKeys returns the configured API keys.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// SearchLimit returns the default search result limit.
func (c AppConfig) SearchLimit() int { return c.searchLimit }

// ScoreThreshold returns the default similarity score threshold.
func (c AppConfig) ScoreThreshold() float64 { return c.scoreThreshold }

// HeartbeatInterval returns the realtime stream heartbeat interval.
func (c AppConfig) HeartbeatInterval() time.Duration { return c.heartbeatInterval }

// Embedding returns the embedding provider config.
func (c AppConfig) Embedding() EmbeddingConfig { return c.embedding }

// Generation returns the generation endpoint config.
func (c AppConfig) Generation() GenerationConfig { return c.generation }

// Queue returns the task queue config.
func (c AppConfig) Queue() QueueConfig { return c.queue }

// Chunking returns the chunker config.
func (c AppConfig) Chunking() ChunkingConfig { return c.chunking }

// Cache returns the semantic cache config.
func (c AppConfig) Cache() CacheConfig { return c.cache }

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.dataDir = dir }
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithAPIKeys sets the valid API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithSearchLimit sets the default search result limit.
func WithSearchLimit(limit int) AppConfigOption {
	return func(c *AppConfig) {
		if limit > 0 {
			c.searchLimit = limit
		}
	}
}

// WithScoreThreshold sets the default similarity score threshold.
func WithScoreThreshold(threshold float64) AppConfigOption {
	return func(c *AppConfig) { c.scoreThreshold = threshold }
}

// WithHeartbeatInterval sets the realtime stream heartbeat interval.
func WithHeartbeatInterval(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

// WithEmbedding sets the embedding provider config.
func WithEmbedding(e EmbeddingConfig) AppConfigOption {
	return func(c *AppConfig) { c.embedding = e }
}

// WithGeneration sets the generation endpoint config.
func WithGeneration(g GenerationConfig) AppConfigOption {
	return func(c *AppConfig) { c.generation = g }
}

// WithQueue sets the task queue config.
func WithQueue(q QueueConfig) AppConfigOption {
	return func(c *AppConfig) { c.queue = q }
}

// WithChunking sets the chunker config.
func WithChunking(ch ChunkingConfig) AppConfigOption {
	return func(c *AppConfig) { c.chunking = ch }
}

// WithCache sets the semantic cache config.
func WithCache(cc CacheConfig) AppConfigOption {
	return func(c *AppConfig) { c.cache = cc }
}

// Apply returns a copy of the config with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// ParseAPIKeys splits a comma-separated API key list, trimming whitespace
// and dropping empty entries.
func ParseAPIKeys(s string) []string {
	parts := strings.Split(s, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.TrimSpace(p); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
