package provider

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vectorhaus/kbvec/internal/config"
	"github.com/vectorhaus/kbvec/internal/log"
)

// Message is one turn of a generation conversation.
type Message struct {
	Role    string
	Content string
}

// GenerationRequest describes one chat-generation call.
type GenerationRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// GenerationResponse carries a completed generation.
type GenerationResponse struct {
	Content      string
	FinishReason string
	TotalTokens  int
}

// chatCaller is the provider call the breaker wraps. Swappable in tests.
type chatCaller interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GenerationClient calls the chat-generation API behind a circuit breaker.
// Generation failures are an independent failure domain from embedding: an
// open breaker here never blocks the embedding pipeline.
type GenerationClient struct {
	client  chatCaller
	model   string
	breaker *CircuitBreaker
	logger  *log.Logger
}

// NewGenerationClient creates a GenerationClient from configuration.
func NewGenerationClient(cfg config.GenerationConfig, logger *log.Logger) *GenerationClient {
	if logger == nil {
		logger = log.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey())
	if cfg.BaseURL() != "" {
		clientCfg.BaseURL = cfg.BaseURL()
	}
	if cfg.RequestTimeout() > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout()}
	}
	return &GenerationClient{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model(),
		breaker: NewCircuitBreaker(cfg.FailureThreshold(), cfg.BreakerTimeout()),
		logger:  logger.With("component", "generation_client"),
	}
}

// Generate performs one chat completion. When the breaker is open the call
// fails fast without touching the network.
func (c *GenerationClient) Generate(ctx context.Context, req GenerationRequest) (GenerationResponse, error) {
	if len(req.Messages) == 0 {
		return GenerationResponse{}, NewError(KindValidation, "generate", "empty message list", nil)
	}

	if !c.breaker.Allow() {
		return GenerationResponse{}, NewError(KindUnavailable, "generate",
			"circuit breaker open, generation temporarily unavailable", nil)
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		openaiReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		openaiReq.Temperature = float32(req.Temperature)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		// Caller-side cancellation is not a provider failure.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return GenerationResponse{}, err
		}
		c.breaker.RecordFailure()
		c.logger.WarnContext(ctx, "generation call failed",
			"error", err, "breaker_state", c.breaker.State())
		return GenerationResponse{}, c.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		c.breaker.RecordFailure()
		return GenerationResponse{}, NewError(KindInternal, "generate", "no choices in response", nil)
	}

	c.breaker.RecordSuccess()
	return GenerationResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// Breaker exposes the circuit breaker for health reporting.
func (c *GenerationClient) Breaker() *CircuitBreaker {
	return c.breaker
}

func (c *GenerationClient) wrapError(err error) error {
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
		}
		return NewHTTPError(kind, "generate", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	return NewError(KindInternal, "generate", err.Error(), err)
}
