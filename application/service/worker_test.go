package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/domain/task"
	"github.com/vectorhaus/kbvec/infrastructure/chunking"
	"github.com/vectorhaus/kbvec/infrastructure/notify"
	"github.com/vectorhaus/kbvec/infrastructure/persistence"
	"github.com/vectorhaus/kbvec/infrastructure/provider"
	"github.com/vectorhaus/kbvec/internal/config"
	"github.com/vectorhaus/kbvec/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	mu          sync.Mutex
	batchSize   int
	calls       int
	batchLens   []int
	failures    int
	failWith    error
	placeholder bool
	onEmbed     func()
}

func (f *fakeEmbedder) BatchSize() int { return f.batchSize }

func (f *fakeEmbedder) EmbedForKnowledgeBase(_ context.Context, _ string, texts []string) (provider.EmbedResult, error) {
	f.mu.Lock()
	f.calls++
	f.batchLens = append(f.batchLens, len(texts))
	call := f.calls
	hook := f.onEmbed
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if call <= f.failures {
		return provider.EmbedResult{}, f.failWith
	}

	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vectors[i] = []float64{float64(len(text)), 1}
	}
	return provider.EmbedResult{Vectors: vectors, Placeholder: f.placeholder}, nil
}

type recordingSink struct {
	mu       sync.Mutex
	statuses []document.DocumentStatus
	chunks   []int
	errors   []string
}

func (r *recordingSink) UpdateStatus(_ context.Context, _ string, status document.DocumentStatus, chunkCount int, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.chunks = append(r.chunks, chunkCount)
	r.errors = append(r.errors, errorMessage)
	return nil
}

type workerFixture struct {
	worker   *Worker
	tasks    *persistence.TaskStore
	chunks   *persistence.ChunkStore
	embedder *fakeEmbedder
	sink     *recordingSink
	hub      *notify.Hub
}

func newWorkerFixture(t *testing.T, embedder *fakeEmbedder) workerFixture {
	t.Helper()
	db := testdb.New(t)
	tasks := persistence.NewTaskStore(db, nil)
	chunks := persistence.NewChunkStore(db, nil)
	keywords, err := persistence.NewSQLiteKeywordStore(db, nil)
	if errors.Is(err, persistence.ErrKeywordStoreInitFailed) {
		t.Skip("sqlite driver built without fts5")
	}
	require.NoError(t, err)
	sink := &recordingSink{}
	hub := notify.NewHub(nil)
	t.Cleanup(hub.Close)

	queueCfg := config.NewQueueConfigWithOptions(
		config.WithQueueWorkers(2),
		config.WithQueueRetry(2, time.Millisecond),
	)
	chunkCfg := config.NewChunkingConfig().WithMaxTokens(16).WithOverlapTokens(0)

	worker := NewWorker(
		tasks, chunks, embedder,
		chunking.NewSplitter(chunking.NewEstimateCounter()),
		keywords, sink, hub, queueCfg, chunkCfg, nil,
	)
	return workerFixture{worker: worker, tasks: tasks, chunks: chunks, embedder: embedder, sink: sink, hub: hub}
}

// multiChunkContent is long enough to split into several chunks at the
// fixture's 16-token budget.
func multiChunkContent() string {
	var lines []string
	for range 12 {
		lines = append(lines, "a handful of plain words on every line")
	}
	return strings.Join(lines, "\n")
}

func enqueue(t *testing.T, store *persistence.TaskStore, id, content string) task.Task {
	t.Helper()
	tk := task.New(id, "doc-"+id, "kb-1", content, task.PriorityNormal, nil)
	require.NoError(t, store.Save(context.Background(), tk))
	return tk
}

func TestWorker_ProcessCompletesTask(t *testing.T) {
	embedder := &fakeEmbedder{batchSize: 2}
	fx := newWorkerFixture(t, embedder)
	ctx := context.Background()

	enqueue(t, fx.tasks, "task-1", multiChunkContent())

	found, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, found)

	done, err := fx.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, done.Status())
	assert.Equal(t, 100, done.Progress())
	assert.Equal(t, done.TotalChunks(), done.ProcessedChunks())
	assert.False(t, done.Placeholder())
	require.NotNil(t, done.CompletedAt())

	// Chunk indexes are contiguous 0..N-1 with embeddings attached.
	persisted, err := fx.chunks.FindByDocument(ctx, "doc-task-1")
	require.NoError(t, err)
	require.Len(t, persisted, done.TotalChunks())
	for i, c := range persisted {
		assert.Equal(t, i, c.Index())
		assert.NotEmpty(t, c.Embedding())
		assert.False(t, c.Placeholder())
	}

	// Every provider call respected the batch size.
	for _, n := range embedder.batchLens {
		assert.LessOrEqual(t, n, 2)
	}

	require.NotEmpty(t, fx.sink.statuses)
	assert.Equal(t, document.DocumentStatusCompleted, fx.sink.statuses[len(fx.sink.statuses)-1])
	assert.Equal(t, len(persisted), fx.sink.chunks[len(fx.sink.chunks)-1])
}

func TestWorker_EmptyContentCompletesWithZeroChunks(t *testing.T) {
	fx := newWorkerFixture(t, &fakeEmbedder{batchSize: 10})
	ctx := context.Background()

	enqueue(t, fx.tasks, "task-1", "   \n  ")

	found, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, found)

	done, err := fx.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, done.Status())
	assert.Zero(t, done.TotalChunks())
	assert.Equal(t, 100, done.Progress())
	assert.Zero(t, fx.embedder.calls)
}

func TestWorker_PlaceholderVectorsFlagged(t *testing.T) {
	fx := newWorkerFixture(t, &fakeEmbedder{batchSize: 10, placeholder: true})
	ctx := context.Background()

	enqueue(t, fx.tasks, "task-1", "a short document")

	_, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)

	done, err := fx.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, done.Status())
	assert.True(t, done.Placeholder())

	persisted, err := fx.chunks.FindByDocument(ctx, "doc-task-1")
	require.NoError(t, err)
	require.NotEmpty(t, persisted)
	for _, c := range persisted {
		assert.True(t, c.Placeholder())
	}
}

func TestWorker_TransientErrorSchedulesRetry(t *testing.T) {
	embedder := &fakeEmbedder{
		batchSize: 10,
		failures:  1,
		failWith:  provider.NewError(provider.KindTransient, "embed", "rate limited", nil),
	}
	fx := newWorkerFixture(t, embedder)
	ctx := context.Background()

	enqueue(t, fx.tasks, "task-1", "a short document")

	_, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)

	retried, err := fx.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, retried.Status())
	assert.Equal(t, 1, retried.RetryCount())
	assert.True(t, retried.AvailableAt().After(retried.CreatedAt()))
	// Retries restart chunking from scratch.
	assert.Zero(t, retried.ProcessedChunks())

	// Second attempt succeeds once the backoff has elapsed.
	fx.worker.now = func() time.Time { return time.Now().Add(time.Minute) }
	found, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, found)

	done, err := fx.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, done.Status())
	assert.Equal(t, 1, done.RetryCount())
}

func TestWorker_CredentialErrorFailsWithoutRetry(t *testing.T) {
	embedder := &fakeEmbedder{
		batchSize: 10,
		failures:  10,
		failWith:  provider.NewError(provider.KindCredential, "embed", "invalid api key", nil),
	}
	fx := newWorkerFixture(t, embedder)
	ctx := context.Background()

	enqueue(t, fx.tasks, "task-1", "a short document")

	_, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)

	failed, err := fx.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, failed.Status())
	assert.Zero(t, failed.RetryCount())
	assert.Contains(t, failed.ErrorMessage(), "invalid api key")
	assert.Equal(t, 1, embedder.calls)

	require.NotEmpty(t, fx.sink.statuses)
	assert.Equal(t, document.DocumentStatusFailed, fx.sink.statuses[len(fx.sink.statuses)-1])
}

func TestWorker_RetryBudgetExhaustedFailsTask(t *testing.T) {
	embedder := &fakeEmbedder{
		batchSize: 10,
		failures:  100,
		failWith:  provider.NewError(provider.KindTransient, "embed", "rate limited", nil),
	}
	fx := newWorkerFixture(t, embedder)
	ctx := context.Background()

	enqueue(t, fx.tasks, "task-1", "a short document")

	// Each clock read jumps a minute forward so every backoff has elapsed
	// by the next claim.
	base := time.Now()
	var ticks int
	fx.worker.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Minute)
	}

	// maxRetries is 2: two re-enqueues, then the third attempt fails for good.
	for range 3 {
		found, err := fx.worker.ProcessOne(ctx)
		require.NoError(t, err)
		require.True(t, found)
	}

	failed, err := fx.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, failed.Status())
	assert.Equal(t, 2, failed.RetryCount())

	// The failed task is never claimable again.
	found, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWorker_CancellationObservedAtCheckpoint(t *testing.T) {
	embedder := &fakeEmbedder{batchSize: 2}
	fx := newWorkerFixture(t, embedder)
	ctx := context.Background()

	enqueue(t, fx.tasks, "task-1", multiChunkContent())

	// Cancel the task from the outside during the first embed call; the
	// worker must stop at the next inter-batch checkpoint.
	embedder.onEmbed = func() {
		embedder.onEmbed = nil
		_, err := fx.tasks.Cancel(ctx, "task-1", time.Now().UTC())
		require.NoError(t, err)
	}

	found, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, found)

	got, err := fx.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, got.Status())

	// No chunks were made visible for the cancelled document.
	persisted, err := fx.chunks.FindByDocument(ctx, "doc-task-1")
	require.NoError(t, err)
	assert.Empty(t, persisted)

	// At most one more batch ran after the cancel.
	assert.LessOrEqual(t, embedder.calls, 2)
}

func TestWorker_TerminalEventPublished(t *testing.T) {
	fx := newWorkerFixture(t, &fakeEmbedder{batchSize: 10})
	ctx := context.Background()

	enqueue(t, fx.tasks, "task-1", "a short document")

	events, unsub := fx.hub.Subscribe("task-1")
	defer unsub()

	_, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)

	var terminal *notify.Event
	for e := range events {
		if e.Terminal() {
			e := e
			terminal = &e
		}
	}
	require.NotNil(t, terminal)
	assert.Equal(t, task.StatusCompleted, terminal.Status)
	assert.Equal(t, 100, terminal.Progress)
}

func TestWorker_StartStopDrainsQueue(t *testing.T) {
	fx := newWorkerFixture(t, &fakeEmbedder{batchSize: 10})
	fx.worker.pollInterval = 5 * time.Millisecond
	ctx := context.Background()

	for _, id := range []string{"task-1", "task-2", "task-3"} {
		enqueue(t, fx.tasks, id, "a short document")
	}

	fx.worker.Start(ctx)
	defer fx.worker.Stop()

	require.Eventually(t, func() bool {
		counts, err := fx.tasks.StatusCounts(ctx)
		return err == nil && counts[task.StatusCompleted] == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_CancelDuringFailingEmbedStaysCancelled(t *testing.T) {
	embedder := &fakeEmbedder{
		batchSize: 10,
		failures:  1,
		failWith:  provider.NewError(provider.KindTransient, "embed", "rate limited", nil),
	}
	fx := newWorkerFixture(t, embedder)
	ctx := context.Background()

	enqueue(t, fx.tasks, "task-1", "a short document")

	// Cancel lands while the embed call is in flight and that call then
	// fails; the retry transition must not overwrite the cancellation.
	embedder.onEmbed = func() {
		embedder.onEmbed = nil
		_, err := fx.tasks.Cancel(ctx, "task-1", time.Now().UTC())
		require.NoError(t, err)
	}

	found, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, found)

	got, err := fx.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, got.Status())
	assert.Zero(t, got.RetryCount())

	// The task never becomes claimable again, however far the clock moves.
	fx.worker.now = func() time.Time { return time.Now().Add(time.Hour) }
	found, err = fx.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWorker_CancelDuringPermanentFailureStaysCancelled(t *testing.T) {
	embedder := &fakeEmbedder{
		batchSize: 10,
		failures:  1,
		failWith:  provider.NewError(provider.KindCredential, "embed", "invalid api key", nil),
	}
	fx := newWorkerFixture(t, embedder)
	ctx := context.Background()

	enqueue(t, fx.tasks, "task-1", "a short document")

	embedder.onEmbed = func() {
		embedder.onEmbed = nil
		_, err := fx.tasks.Cancel(ctx, "task-1", time.Now().UTC())
		require.NoError(t, err)
	}

	found, err := fx.worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, found)

	got, err := fx.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, got.Status())
	assert.Empty(t, got.ErrorMessage())
}
