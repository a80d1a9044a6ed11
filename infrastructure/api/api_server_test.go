package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vectorhaus/kbvec"
	"github.com/vectorhaus/kbvec/domain/task"
	"github.com/vectorhaus/kbvec/infrastructure/api"
	"github.com/vectorhaus/kbvec/infrastructure/api/v1/dto"
	"github.com/vectorhaus/kbvec/infrastructure/notify"
	"github.com/vectorhaus/kbvec/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

// newTestAPI builds a client on a throwaway SQLite file with no embedding
// credential, so provider calls fall back to deterministic placeholders
// and never leave the process.
func newTestAPI(t *testing.T) (*kbvec.Client, http.Handler) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")

	cfg := config.NewAppConfigWithOptions(
		config.WithAPIKeys([]string{testAPIKey}),
		config.WithLogLevel("error"),
	)
	client, err := kbvec.New(
		kbvec.WithSQLite(filepath.Join(t.TempDir(), "kbvec.db")),
		kbvec.WithConfig(cfg),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	return client, api.NewAPIServer(client).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-KEY", apiKey)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func submitBody(docID string) dto.SubmitTaskRequest {
	return dto.SubmitTaskRequest{
		DocumentID:      docID,
		KnowledgeBaseID: "kb-1",
		Content:         "some document text",
	}
}

func TestAPI_SubmitRequiresAPIKey(t *testing.T) {
	_, handler := newTestAPI(t)

	w := doJSON(t, handler, http.MethodPost, "/api/v1/tasks", submitBody("doc-1"), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_SubmitCreatesTask(t *testing.T) {
	_, handler := newTestAPI(t)

	w := doJSON(t, handler, http.MethodPost, "/api/v1/tasks", submitBody("doc-1"), testAPIKey)
	require.Equal(t, http.StatusAccepted, w.Code)

	resp := decodeBody[dto.TaskResponse](t, w)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "doc-1", resp.DocumentID)
	assert.Equal(t, string(task.StatusPending), resp.Status)
	assert.Equal(t, "normal", resp.Priority)
}

func TestAPI_SubmitValidation(t *testing.T) {
	_, handler := newTestAPI(t)

	body := submitBody("doc-1")
	body.DocumentID = ""
	w := doJSON(t, handler, http.MethodPost, "/api/v1/tasks", body, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_SubmitMalformedJSON(t *testing.T) {
	_, handler := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader("{not json"))
	req.Header.Set("X-API-KEY", testAPIKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_TaskLifecycle(t *testing.T) {
	_, handler := newTestAPI(t)

	created := decodeBody[dto.TaskResponse](t,
		doJSON(t, handler, http.MethodPost, "/api/v1/tasks", submitBody("doc-1"), testAPIKey))

	w := doJSON(t, handler, http.MethodGet, "/api/v1/tasks/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[dto.TaskResponse](t, w)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, string(task.StatusPending), got.Status)

	w = doJSON(t, handler, http.MethodDelete, "/api/v1/tasks/"+created.ID, nil, testAPIKey)
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decodeBody[dto.CancelResponse](t, w)
	assert.True(t, cancelled.Cancelled)

	w = doJSON(t, handler, http.MethodGet, "/api/v1/tasks/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got = decodeBody[dto.TaskResponse](t, w)
	assert.Equal(t, string(task.StatusCancelled), got.Status)
}

func TestAPI_GetUnknownTask(t *testing.T) {
	_, handler := newTestAPI(t)

	w := doJSON(t, handler, http.MethodGet, "/api/v1/tasks/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_CancelRequiresAPIKey(t *testing.T) {
	_, handler := newTestAPI(t)

	created := decodeBody[dto.TaskResponse](t,
		doJSON(t, handler, http.MethodPost, "/api/v1/tasks", submitBody("doc-1"), testAPIKey))

	w := doJSON(t, handler, http.MethodDelete, "/api/v1/tasks/"+created.ID, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_BatchSubmitPerItemResults(t *testing.T) {
	_, handler := newTestAPI(t)

	body := dto.SubmitBatchRequest{Tasks: []dto.SubmitTaskRequest{
		submitBody("doc-1"),
		{KnowledgeBaseID: "kb-1", Content: "missing document id"},
	}}
	w := doJSON(t, handler, http.MethodPost, "/api/v1/tasks/batch", body, testAPIKey)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[dto.SubmitBatchResponse](t, w)
	require.Len(t, resp.Results, 2)
	assert.NotEmpty(t, resp.Results[0].TaskID)
	assert.Empty(t, resp.Results[0].Error)
	assert.Empty(t, resp.Results[1].TaskID)
	assert.NotEmpty(t, resp.Results[1].Error)
}

func TestAPI_QueueStatus(t *testing.T) {
	_, handler := newTestAPI(t)

	doJSON(t, handler, http.MethodPost, "/api/v1/tasks", submitBody("doc-1"), testAPIKey)

	w := doJSON(t, handler, http.MethodGet, "/api/v1/queue/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[dto.QueueStatusResponse](t, w)
	assert.EqualValues(t, 1, resp.QueueSize)
	assert.EqualValues(t, 1, resp.StatusCounts[string(task.StatusPending)])
	assert.Positive(t, resp.MaxConcurrentTasks)
}

func TestAPI_SearchEmptyCorpus(t *testing.T) {
	_, handler := newTestAPI(t)

	w := doJSON(t, handler, http.MethodPost, "/api/v1/search",
		dto.SearchRequest{Query: "anything", Type: "semantic"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[dto.SearchResponse](t, w)
	assert.Equal(t, "semantic", resp.Type)
	assert.Zero(t, resp.TotalResults)
	assert.NotNil(t, resp.Results)
}

func TestAPI_SearchValidation(t *testing.T) {
	_, handler := newTestAPI(t)

	w := doJSON(t, handler, http.MethodPost, "/api/v1/search",
		dto.SearchRequest{Query: "   "}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_AskValidation(t *testing.T) {
	_, handler := newTestAPI(t)

	w := doJSON(t, handler, http.MethodPost, "/api/v1/search/ask",
		dto.AskRequest{Question: ""}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Statistics(t *testing.T) {
	_, handler := newTestAPI(t)

	w := doJSON(t, handler, http.MethodGet, "/api/v1/statistics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[dto.StatisticsResponse](t, w)
	assert.Zero(t, resp.Documents)
	assert.Zero(t, resp.Chunks)
}

func TestAPI_Health(t *testing.T) {
	_, handler := newTestAPI(t)

	w := doJSON(t, handler, http.MethodGet, "/api/v1/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[dto.HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "closed", resp.Breaker.State)
}

func TestAPI_EventsStreamDeliversTerminalEvent(t *testing.T) {
	client, handler := newTestAPI(t)

	created := decodeBody[dto.TaskResponse](t,
		doJSON(t, handler, http.MethodPost, "/api/v1/tasks", submitBody("doc-1"), testAPIKey))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+created.ID+"/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(w, req)
	}()

	// Publish the terminal event once the stream has subscribed.
	require.Eventually(t, func() bool {
		return client.Hub().SubscriberCount(created.ID) > 0
	}, 2*time.Second, 10*time.Millisecond)
	client.Hub().Publish(notify.Event{
		Type:      notify.EventTaskUpdate,
		TaskID:    created.ID,
		Status:    task.StatusCompleted,
		Progress:  100,
		Timestamp: time.Now().UTC(),
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream did not terminate")
	}

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: subscription_confirmed")
	assert.Contains(t, body, "event: task_update")
	assert.Contains(t, body, `"status":"completed"`)
}

func TestAPI_EventsTerminalTaskClosesImmediately(t *testing.T) {
	_, handler := newTestAPI(t)

	created := decodeBody[dto.TaskResponse](t,
		doJSON(t, handler, http.MethodPost, "/api/v1/tasks", submitBody("doc-1"), testAPIKey))
	doJSON(t, handler, http.MethodDelete, "/api/v1/tasks/"+created.ID, nil, testAPIKey)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+created.ID+"/events", nil)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(w, req)
	}()

	// No hub publish happens; the stream must replay the stored terminal
	// state and end without waiting on heartbeats.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream for a cancelled task did not terminate")
	}

	body := w.Body.String()
	assert.Contains(t, body, "event: subscription_confirmed")
	assert.Contains(t, body, `"status":"cancelled"`)
	assert.Contains(t, body, "event: task_update")
}

func TestAPI_EventsUnknownTask(t *testing.T) {
	_, handler := newTestAPI(t)

	w := doJSON(t, handler, http.MethodGet, "/api/v1/tasks/nope/events", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
