// Package provider implements the external embedding and generation API
// clients, their retry and fallback behavior, and the error taxonomy the
// pipeline classifies failures with.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/internal/config"
	"github.com/vectorhaus/kbvec/internal/log"
)

// errEmbeddingCountMismatch indicates the API returned fewer embedding
// vectors than requested. Retryable: transient upstream issues can produce
// partial responses behind a 200 status.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

// embeddingSettings is the runtime-swappable part of the client
// configuration. Model and dimension always change together.
type embeddingSettings struct {
	model     string
	dimension int
	batchSize int
}

// EmbedResult carries the vectors for one embedding request.
type EmbedResult struct {
	Vectors     [][]float64
	Placeholder bool
	TotalTokens int
}

// EmbeddingClient embeds texts through the OpenAI embeddings API with
// batching, retry with exponential backoff, and a deterministic placeholder
// fallback when no credential resolves.
type EmbeddingClient struct {
	resolver      document.CredentialResolver
	baseURL       string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	settings      atomic.Pointer[embeddingSettings]
	logger        *log.Logger
}

// NewEmbeddingClient creates an EmbeddingClient from configuration.
func NewEmbeddingClient(cfg config.EmbeddingConfig, resolver document.CredentialResolver, logger *log.Logger) *EmbeddingClient {
	if logger == nil {
		logger = log.Default()
	}
	c := &EmbeddingClient{
		resolver:      resolver,
		baseURL:       cfg.BaseURL(),
		timeout:       cfg.Timeout(),
		maxRetries:    cfg.MaxRetries(),
		initialDelay:  cfg.InitialDelay(),
		backoffFactor: cfg.BackoffFactor(),
		logger:        logger.With("component", "embedding_client"),
	}
	c.settings.Store(&embeddingSettings{
		model:     cfg.Model(),
		dimension: cfg.Dimension(),
		batchSize: cfg.BatchSize(),
	})
	return c
}

// Reconfigure atomically swaps the model, dimension, and batch size. Model
// and dimension change together or not at all; in-flight requests keep the
// settings they started with.
func (c *EmbeddingClient) Reconfigure(model string, dimension, batchSize int) error {
	if model == "" {
		return NewError(KindValidation, "reconfigure", "model must not be empty", nil)
	}
	if dimension <= 0 {
		return NewError(KindValidation, "reconfigure", fmt.Sprintf("dimension must be positive, got %d", dimension), nil)
	}
	if batchSize <= 0 {
		batchSize = c.settings.Load().batchSize
	}
	c.settings.Store(&embeddingSettings{
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	})
	c.logger.Info("embedding client reconfigured",
		"model", model, "dimension", dimension, "batch_size", batchSize)
	return nil
}

// Model returns the current model identifier.
func (c *EmbeddingClient) Model() string { return c.settings.Load().model }

// Dimension returns the current vector dimensionality.
func (c *EmbeddingClient) Dimension() int { return c.settings.Load().dimension }

// BatchSize returns the current maximum texts per provider call.
func (c *EmbeddingClient) BatchSize() int { return c.settings.Load().batchSize }

// EmbedForKnowledgeBase embeds texts with the credential resolved for the
// given knowledge base. When no credential resolves it returns deterministic
// placeholder vectors flagged as such instead of failing.
func (c *EmbeddingClient) EmbedForKnowledgeBase(ctx context.Context, knowledgeBaseID string, texts []string) (EmbedResult, error) {
	if len(texts) == 0 {
		return EmbedResult{}, NewError(KindValidation, "embed", "empty text list", nil)
	}

	settings := c.settings.Load()

	var key string
	if c.resolver != nil {
		resolved, err := c.resolver.Resolve(ctx, knowledgeBaseID)
		if err != nil {
			return EmbedResult{}, NewError(KindStorage, "embed", "resolve credential", err)
		}
		key = resolved
	}

	if key == "" {
		c.logger.WarnContext(ctx, "no embedding credential resolvable, using placeholder vectors",
			"knowledge_base_id", knowledgeBaseID, "texts", len(texts))
		vectors := make([][]float64, len(texts))
		for i, text := range texts {
			vectors[i] = PlaceholderVector(text, settings.dimension)
		}
		return EmbedResult{Vectors: vectors, Placeholder: true}, nil
	}

	return c.embed(ctx, key, settings, texts)
}

// Embed embeds texts with the default credential chain. It implements the
// search-path embedder; placeholder fallback applies here too so queries
// against placeholder-indexed content stay comparable.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	result, err := c.EmbedForKnowledgeBase(ctx, "", texts)
	if err != nil {
		return nil, err
	}
	return result.Vectors, nil
}

// embed splits texts into batches no larger than the configured maximum and
// calls the provider once per batch, preserving input order across batches.
func (c *EmbeddingClient) embed(ctx context.Context, key string, settings *embeddingSettings, texts []string) (EmbedResult, error) {
	client := c.newClient(key)

	result := EmbedResult{Vectors: make([][]float64, 0, len(texts))}
	for start := 0; start < len(texts); start += settings.batchSize {
		end := start + settings.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, tokens, err := c.embedBatch(ctx, client, settings, batch)
		if err != nil {
			return EmbedResult{}, err
		}
		result.Vectors = append(result.Vectors, vectors...)
		result.TotalTokens += tokens
	}
	return result, nil
}

func (c *EmbeddingClient) embedBatch(ctx context.Context, client *openai.Client, settings *embeddingSettings, batch []string) ([][]float64, int, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(settings.model),
		Input: batch,
	}

	var resp openai.EmbeddingResponse
	err := c.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = client.CreateEmbeddings(ctx, req)
		if callErr != nil {
			return callErr
		}
		if len(resp.Data) != len(batch) {
			return fmt.Errorf("%w: got %d vectors for %d texts",
				errEmbeddingCountMismatch, len(resp.Data), len(batch))
		}
		return nil
	})
	if err != nil {
		return nil, 0, c.wrapError("embed", err)
	}

	vectors := make([][]float64, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			vectors[i][j] = float64(v)
		}
	}
	return vectors, resp.Usage.TotalTokens, nil
}

func (c *EmbeddingClient) newClient(key string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	if c.timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: c.timeout}
	}
	return openai.NewClientWithConfig(cfg)
}

// withRetry executes fn with exponential backoff, retrying only errors
// classified as transient.
func (c *EmbeddingClient) withRetry(ctx context.Context, fn func() error) error {
	delay := c.initialDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			return lastErr
		}

		if attempt < c.maxRetries {
			c.logger.DebugContext(ctx, "retrying embedding call",
				"attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * c.backoffFactor)
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable determines if an error should be retried.
func isRetryable(err error) bool {
	// Partial embedding responses are retryable; upstreams can return 200
	// with missing data under transient load.
	if errors.Is(err, errEmbeddingCountMismatch) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		// Network-level failures before an HTTP response.
		return true
	}

	return false
}

// wrapError classifies a raw provider error into the pipeline taxonomy.
func (c *EmbeddingClient) wrapError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := KindInternal
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = KindCredential
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			kind = KindTransient
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			kind = KindValidation
		}
		return NewHTTPError(kind, op, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(KindTransient, op, "request timed out", err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewHTTPError(KindTransient, op, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return NewError(KindInternal, op, err.Error(), err)
}
