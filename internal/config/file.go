package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration file schema. Every field is a pointer
// so that unset keys are distinguishable from zero values and leave the
// environment-derived configuration untouched.
type FileConfig struct {
	Host           *string  `yaml:"host"`
	Port           *int     `yaml:"port"`
	DataDir        *string  `yaml:"data_dir"`
	DBURL          *string  `yaml:"db_url"`
	LogLevel       *string  `yaml:"log_level"`
	LogFormat      *string  `yaml:"log_format"`
	APIKeys        []string `yaml:"api_keys"`
	SearchLimit    *int     `yaml:"search_limit"`
	ScoreThreshold *float64 `yaml:"score_threshold"`

	Embedding struct {
		BaseURL   *string `yaml:"base_url"`
		Model     *string `yaml:"model"`
		Dimension *int    `yaml:"dimension"`
		APIKey    *string `yaml:"api_key"`
		BatchSize *int    `yaml:"batch_size"`
	} `yaml:"embedding"`

	Generation struct {
		BaseURL          *string  `yaml:"base_url"`
		Model            *string  `yaml:"model"`
		APIKey           *string  `yaml:"api_key"`
		FailureThreshold *int     `yaml:"failure_threshold"`
		BreakerTimeout   *float64 `yaml:"breaker_timeout_seconds"`
	} `yaml:"generation"`

	Queue struct {
		WorkerCount *int     `yaml:"worker_count"`
		MaxRetries  *int     `yaml:"max_retries"`
		RetryDelay  *float64 `yaml:"retry_delay_seconds"`
	} `yaml:"queue"`

	Chunking struct {
		MaxTokens     *int `yaml:"max_tokens"`
		OverlapTokens *int `yaml:"overlap_tokens"`
	} `yaml:"chunking"`

	Cache struct {
		Enabled   *bool    `yaml:"enabled"`
		Threshold *float64 `yaml:"threshold"`
		TTLHours  *float64 `yaml:"ttl_hours"`
	} `yaml:"cache"`
}

// LoadFile parses a YAML configuration file.
func LoadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read config file: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Apply overlays the file's set values onto an existing AppConfig.
func (f FileConfig) Apply(cfg AppConfig) AppConfig {
	var opts []AppConfigOption

	if f.Host != nil {
		opts = append(opts, WithHost(*f.Host))
	}
	if f.Port != nil {
		opts = append(opts, WithPort(*f.Port))
	}
	if f.DataDir != nil {
		opts = append(opts, WithDataDir(*f.DataDir))
	}
	if f.DBURL != nil {
		opts = append(opts, WithDBURL(*f.DBURL))
	}
	if f.LogLevel != nil {
		opts = append(opts, WithLogLevel(*f.LogLevel))
	}
	if f.LogFormat != nil {
		opts = append(opts, WithLogFormat(ParseLogFormat(*f.LogFormat)))
	}
	if f.APIKeys != nil {
		opts = append(opts, WithAPIKeys(f.APIKeys))
	}
	if f.SearchLimit != nil {
		opts = append(opts, WithSearchLimit(*f.SearchLimit))
	}
	if f.ScoreThreshold != nil {
		opts = append(opts, WithScoreThreshold(*f.ScoreThreshold))
	}

	emb := cfg.Embedding()
	var embOpts []EmbeddingOption
	if f.Embedding.BaseURL != nil {
		embOpts = append(embOpts, WithEmbeddingBaseURL(*f.Embedding.BaseURL))
	}
	if f.Embedding.Model != nil {
		dim := emb.Dimension()
		if f.Embedding.Dimension != nil {
			dim = *f.Embedding.Dimension
		}
		embOpts = append(embOpts, WithEmbeddingModel(*f.Embedding.Model, dim))
	}
	if f.Embedding.APIKey != nil {
		embOpts = append(embOpts, WithEmbeddingAPIKey(*f.Embedding.APIKey))
	}
	if f.Embedding.BatchSize != nil {
		embOpts = append(embOpts, WithEmbeddingBatchSize(*f.Embedding.BatchSize))
	}
	if len(embOpts) > 0 {
		for _, opt := range embOpts {
			opt(&emb)
		}
		opts = append(opts, WithEmbedding(emb))
	}

	gen := cfg.Generation()
	var genOpts []GenerationOption
	if f.Generation.BaseURL != nil {
		genOpts = append(genOpts, WithGenerationBaseURL(*f.Generation.BaseURL))
	}
	if f.Generation.Model != nil {
		genOpts = append(genOpts, WithGenerationModel(*f.Generation.Model))
	}
	if f.Generation.APIKey != nil {
		genOpts = append(genOpts, WithGenerationAPIKey(*f.Generation.APIKey))
	}
	if f.Generation.FailureThreshold != nil || f.Generation.BreakerTimeout != nil {
		threshold := gen.FailureThreshold()
		timeout := gen.BreakerTimeout()
		if f.Generation.FailureThreshold != nil {
			threshold = *f.Generation.FailureThreshold
		}
		if f.Generation.BreakerTimeout != nil {
			timeout = seconds(*f.Generation.BreakerTimeout)
		}
		genOpts = append(genOpts, WithBreaker(threshold, timeout))
	}
	if len(genOpts) > 0 {
		for _, opt := range genOpts {
			opt(&gen)
		}
		opts = append(opts, WithGeneration(gen))
	}

	queue := cfg.Queue()
	var queueOpts []QueueOption
	if f.Queue.WorkerCount != nil {
		queueOpts = append(queueOpts, WithQueueWorkers(*f.Queue.WorkerCount))
	}
	if f.Queue.MaxRetries != nil || f.Queue.RetryDelay != nil {
		retries := queue.MaxRetries()
		delay := queue.RetryBaseDelay()
		if f.Queue.MaxRetries != nil {
			retries = *f.Queue.MaxRetries
		}
		if f.Queue.RetryDelay != nil {
			delay = seconds(*f.Queue.RetryDelay)
		}
		queueOpts = append(queueOpts, WithQueueRetry(retries, delay))
	}
	if len(queueOpts) > 0 {
		for _, opt := range queueOpts {
			opt(&queue)
		}
		opts = append(opts, WithQueue(queue))
	}

	chunking := cfg.Chunking()
	if f.Chunking.MaxTokens != nil {
		chunking = chunking.WithMaxTokens(*f.Chunking.MaxTokens)
	}
	if f.Chunking.OverlapTokens != nil {
		chunking = chunking.WithOverlapTokens(*f.Chunking.OverlapTokens)
	}
	opts = append(opts, WithChunking(chunking))

	cache := cfg.Cache()
	if f.Cache.Enabled != nil {
		cache = cache.WithEnabled(*f.Cache.Enabled)
	}
	if f.Cache.Threshold != nil {
		cache = cache.WithThreshold(*f.Cache.Threshold)
	}
	if f.Cache.TTLHours != nil {
		cache = cache.WithTTL(hours(*f.Cache.TTLHours))
	}
	opts = append(opts, WithCache(cache))

	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
