package provider_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorhaus/kbvec/infrastructure/provider"
	"github.com/vectorhaus/kbvec/internal/config"
)

// embeddingServer fakes the provider embeddings endpoint. Each input text of
// the form "t<N>" maps to the vector [N, N], so tests can verify ordering
// across batches.
type embeddingServer struct {
	mu         sync.Mutex
	calls      int
	batchSizes []int
	failures   int // respond with failStatus for the first N calls
	failStatus int
	apiKey     string // when set, other keys get 401
}

func (s *embeddingServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls++
		call := s.calls
		s.mu.Unlock()

		if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			writeAPIError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		if call <= s.failures {
			writeAPIError(w, s.failStatus, "upstream unhappy")
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIError(w, http.StatusBadRequest, "bad request body")
			return
		}

		s.mu.Lock()
		s.batchSizes = append(s.batchSizes, len(req.Input))
		s.mu.Unlock()

		type datum struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]datum, len(req.Input))
		for i, text := range req.Input {
			n, _ := strconv.ParseFloat(strings.TrimPrefix(text, "t"), 64)
			data[i] = datum{Embedding: []float64{n, n}, Index: i}
		}

		resp := map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": "api_error"},
	})
}

type staticResolver string

func (r staticResolver) Resolve(context.Context, string) (string, error) {
	return string(r), nil
}

func newTestClient(t *testing.T, srv *embeddingServer, key string, opts ...config.EmbeddingOption) *provider.EmbeddingClient {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	base := []config.EmbeddingOption{
		config.WithEmbeddingBaseURL(ts.URL + "/v1"),
		config.WithEmbeddingModel("text-embedding-3-small", 2),
		config.WithEmbeddingRetry(3, time.Millisecond, 2.0),
	}
	cfg := config.NewEmbeddingConfigWithOptions(append(base, opts...)...)
	return provider.NewEmbeddingClient(cfg, staticResolver(key), nil)
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("t%d", i)
	}
	return out
}

func TestEmbedBatchingPreservesOrder(t *testing.T) {
	srv := &embeddingServer{}
	client := newTestClient(t, srv, "sk-test", config.WithEmbeddingBatchSize(50))

	result, err := client.EmbedForKnowledgeBase(context.Background(), "kb1", texts(150))
	require.NoError(t, err)

	assert.Equal(t, 3, srv.calls, "150 texts at batch size 50 should take exactly 3 calls")
	assert.Equal(t, []int{50, 50, 50}, srv.batchSizes)

	require.Len(t, result.Vectors, 150)
	assert.False(t, result.Placeholder)
	for i, v := range result.Vectors {
		assert.Equal(t, []float64{float64(i), float64(i)}, v, "vector %d should match input %d", i, i)
	}
}

func TestEmbedPartialFinalBatch(t *testing.T) {
	srv := &embeddingServer{}
	client := newTestClient(t, srv, "sk-test", config.WithEmbeddingBatchSize(40))

	result, err := client.EmbedForKnowledgeBase(context.Background(), "kb1", texts(90))
	require.NoError(t, err)

	assert.Equal(t, []int{40, 40, 10}, srv.batchSizes)
	assert.Len(t, result.Vectors, 90)
}

func TestEmbedRetriesRateLimit(t *testing.T) {
	srv := &embeddingServer{failures: 2, failStatus: http.StatusTooManyRequests}
	client := newTestClient(t, srv, "sk-test")

	result, err := client.EmbedForKnowledgeBase(context.Background(), "kb1", texts(3))
	require.NoError(t, err)
	assert.Equal(t, 3, srv.calls, "two 429s then success")
	assert.Len(t, result.Vectors, 3)
}

func TestEmbedTransientExhaustion(t *testing.T) {
	srv := &embeddingServer{failures: 100, failStatus: http.StatusServiceUnavailable}
	client := newTestClient(t, srv, "sk-test")

	_, err := client.EmbedForKnowledgeBase(context.Background(), "kb1", texts(2))
	require.Error(t, err)
	assert.True(t, provider.IsTransient(err))
	assert.Equal(t, 4, srv.calls, "initial attempt plus three retries")
}

func TestEmbedCredentialErrorFailsFast(t *testing.T) {
	srv := &embeddingServer{apiKey: "sk-right"}
	client := newTestClient(t, srv, "sk-wrong")

	_, err := client.EmbedForKnowledgeBase(context.Background(), "kb1", texts(2))
	require.Error(t, err)
	assert.True(t, provider.IsCredential(err))
	assert.True(t, provider.IsPermanent(err))
	assert.Equal(t, 1, srv.calls, "credential errors are not retried")
}

func TestEmbedPlaceholderFallback(t *testing.T) {
	srv := &embeddingServer{}
	client := newTestClient(t, srv, "") // resolver yields no credential

	result, err := client.EmbedForKnowledgeBase(context.Background(), "kb1", []string{"alpha", "beta", "alpha"})
	require.NoError(t, err)

	assert.Equal(t, 0, srv.calls, "no network call without a credential")
	assert.True(t, result.Placeholder)
	require.Len(t, result.Vectors, 3)
	assert.Equal(t, result.Vectors[0], result.Vectors[2], "identical text yields identical placeholder")
	assert.NotEqual(t, result.Vectors[0], result.Vectors[1])
	assert.Len(t, result.Vectors[0], 2)
}

func TestEmbedEmptyInputRejected(t *testing.T) {
	srv := &embeddingServer{}
	client := newTestClient(t, srv, "sk-test")

	_, err := client.EmbedForKnowledgeBase(context.Background(), "kb1", nil)
	require.Error(t, err)
	assert.True(t, provider.IsValidation(err))
}

func TestReconfigureSwapsModelAndDimension(t *testing.T) {
	srv := &embeddingServer{}
	client := newTestClient(t, srv, "")

	require.NoError(t, client.Reconfigure("text-embedding-3-large", 3072, 25))
	assert.Equal(t, "text-embedding-3-large", client.Model())
	assert.Equal(t, 3072, client.Dimension())
	assert.Equal(t, 25, client.BatchSize())

	// Placeholder vectors pick up the new dimension.
	result, err := client.EmbedForKnowledgeBase(context.Background(), "kb1", []string{"x"})
	require.NoError(t, err)
	assert.Len(t, result.Vectors[0], 3072)
}

func TestReconfigureRejectsInvalid(t *testing.T) {
	srv := &embeddingServer{}
	client := newTestClient(t, srv, "")

	assert.Error(t, client.Reconfigure("", 10, 10))
	assert.Error(t, client.Reconfigure("model", 0, 10))

	// Batch size zero keeps the previous value.
	require.NoError(t, client.Reconfigure("model", 8, 0))
	assert.Equal(t, config.DefaultEmbeddingBatchSize, client.BatchSize())
}

func TestChainResolverOrder(t *testing.T) {
	ctx := context.Background()

	r := provider.NewChainResolver(staticResolver("user-key"), "default-key")
	key, err := r.Resolve(ctx, "kb1")
	require.NoError(t, err)
	assert.Equal(t, "user-key", key)

	r = provider.NewChainResolver(staticResolver(""), "default-key")
	key, err = r.Resolve(ctx, "kb1")
	require.NoError(t, err)
	assert.Equal(t, "default-key", key)

	t.Setenv(provider.EnvAPIKeyVar, "env-key")
	r = provider.NewChainResolver(nil, "")
	key, err = r.Resolve(ctx, "kb1")
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
}
