package provider

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorhaus/kbvec/internal/log"
)

type fakeChat struct {
	calls int
	err   error
	reply string
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}, FinishReason: openai.FinishReasonStop},
		},
		Usage: openai.Usage{TotalTokens: 7},
	}, nil
}

func newFakeGenerationClient(fake *fakeChat, threshold int) *GenerationClient {
	return &GenerationClient{
		client:  fake,
		model:   "gpt-4o-mini",
		breaker: NewCircuitBreaker(threshold, time.Minute),
		logger:  log.Default(),
	}
}

func userMessage(content string) GenerationRequest {
	return GenerationRequest{Messages: []Message{{Role: "user", Content: content}}}
}

func TestGenerateSuccess(t *testing.T) {
	fake := &fakeChat{reply: "answer"}
	client := newFakeGenerationClient(fake, 3)

	resp, err := client.Generate(context.Background(), userMessage("question"))
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, 7, resp.TotalTokens)
	assert.Equal(t, BreakerClosed, client.Breaker().State())
}

func TestGenerateEmptyMessagesRejected(t *testing.T) {
	client := newFakeGenerationClient(&fakeChat{}, 3)

	_, err := client.Generate(context.Background(), GenerationRequest{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestGenerateBreakerOpensAndFailsFast(t *testing.T) {
	fake := &fakeChat{err: &openai.APIError{HTTPStatusCode: 503, Message: "down"}}
	client := newFakeGenerationClient(fake, 2)

	for range 2 {
		_, err := client.Generate(context.Background(), userMessage("q"))
		require.Error(t, err)
	}
	require.Equal(t, BreakerOpen, client.Breaker().State())

	_, err := client.Generate(context.Background(), userMessage("q"))
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Equal(t, 2, fake.calls, "open breaker blocks the network call")
}

func TestGenerateHalfOpenTrialCloses(t *testing.T) {
	fake := &fakeChat{err: &openai.APIError{HTTPStatusCode: 500, Message: "boom"}}
	client := newFakeGenerationClient(fake, 1)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client.breaker.now = func() time.Time { return now }

	_, err := client.Generate(context.Background(), userMessage("q"))
	require.Error(t, err)
	require.Equal(t, BreakerOpen, client.Breaker().State())

	fake.err = nil
	fake.reply = "recovered"
	now = now.Add(time.Minute)

	resp, err := client.Generate(context.Background(), userMessage("q"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, BreakerClosed, client.Breaker().State())
}

func TestGenerateContextCancelDoesNotTrip(t *testing.T) {
	fake := &fakeChat{err: context.Canceled}
	client := newFakeGenerationClient(fake, 1)

	_, err := client.Generate(context.Background(), userMessage("q"))
	require.Error(t, err)
	assert.Equal(t, BreakerClosed, client.Breaker().State())
}
