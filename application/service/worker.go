package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/domain/task"
	"github.com/vectorhaus/kbvec/infrastructure/chunking"
	"github.com/vectorhaus/kbvec/infrastructure/notify"
	"github.com/vectorhaus/kbvec/infrastructure/provider"
	"github.com/vectorhaus/kbvec/internal/config"
	"github.com/vectorhaus/kbvec/internal/database"
	"github.com/vectorhaus/kbvec/internal/log"
)

// DocumentEmbedder turns text batches into vectors for a knowledge base.
type DocumentEmbedder interface {
	EmbedForKnowledgeBase(ctx context.Context, knowledgeBaseID string, texts []string) (provider.EmbedResult, error)
	BatchSize() int
}

// KeywordIndexer keeps the lexical index in step with chunk writes.
type KeywordIndexer interface {
	IndexDocument(ctx context.Context, documentID string, chunks []document.Chunk) error
	RemoveDocuments(ctx context.Context, documentIDs []string) error
}

// Worker drains the task queue, turning submitted documents into persisted
// chunk embeddings. A weighted semaphore bounds the number of tasks
// processing at once; tasks beyond the cap wait in the queue.
type Worker struct {
	store    task.Store
	chunks   document.ChunkStore
	embedder DocumentEmbedder
	splitter chunking.Splitter
	keywords KeywordIndexer
	statuses document.StatusSink
	hub      *notify.Hub
	logger   *slog.Logger

	splitParams  chunking.SplitParams
	pollInterval time.Duration
	maxRetries   int
	retryDelay   time.Duration
	slots        *semaphore.Weighted

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	now    func() time.Time
}

// NewWorker creates a new queue worker pool. keywords and statuses may be
// nil when no lexical index or external document-status sink is wired.
func NewWorker(
	store task.Store,
	chunks document.ChunkStore,
	embedder DocumentEmbedder,
	splitter chunking.Splitter,
	keywords KeywordIndexer,
	statuses document.StatusSink,
	hub *notify.Hub,
	queueCfg config.QueueConfig,
	chunkCfg config.ChunkingConfig,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:    store,
		chunks:   chunks,
		embedder: embedder,
		splitter: splitter,
		keywords: keywords,
		statuses: statuses,
		hub:      hub,
		logger:   logger,
		splitParams: chunking.SplitParams{
			MaxTokens:     chunkCfg.MaxTokens(),
			OverlapTokens: chunkCfg.OverlapTokens(),
		},
		pollInterval: queueCfg.PollInterval(),
		maxRetries:   queueCfg.MaxRetries(),
		retryDelay:   queueCfg.RetryBaseDelay(),
		slots:        semaphore.NewWeighted(int64(queueCfg.WorkerCount())),
		now:          time.Now,
	}
}

// Start begins claiming tasks in the background until Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()

	w.logger.Info("queue worker started", slog.Duration("poll_interval", w.pollInterval))
}

// Stop shuts the worker down and waits for in-flight tasks to finish their
// current checkpoint.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Info("queue worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.claimAvailable(ctx)
		}
	}
}

// claimAvailable claims as many due tasks as free slots allow, processing
// each in its own goroutine.
func (w *Worker) claimAvailable(ctx context.Context) {
	for {
		if !w.slots.TryAcquire(1) {
			return
		}

		t, found, err := w.store.Claim(ctx, w.now().UTC())
		if err != nil || !found {
			w.slots.Release(1)
			if err != nil && ctx.Err() == nil {
				w.logger.Error("claim failed", slog.String("error", err.Error()))
			}
			return
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.slots.Release(1)
			w.process(ctx, t)
		}()
	}
}

// ProcessOne claims and processes a single task synchronously. It reports
// whether a task was found.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	t, found, err := w.store.Claim(ctx, w.now().UTC())
	if err != nil || !found {
		return false, err
	}
	w.process(ctx, t)
	return true, nil
}

func (w *Worker) process(ctx context.Context, t task.Task) {
	// Provider log lines emitted while this task runs carry its ID.
	ctx = log.WithTaskID(ctx, t.ID())

	start := w.now()
	w.logger.Info("processing task",
		slog.String("task_id", t.ID()),
		slog.String("document_id", t.DocumentID()),
		slog.Int("retry_count", t.RetryCount()),
	)

	if err := w.execute(ctx, t); err != nil {
		w.handleFailure(ctx, t, err)
		return
	}

	w.logger.Info("task finished",
		slog.String("task_id", t.ID()),
		slog.Duration("duration", w.now().Sub(start)),
	)
}

// execute runs the chunk → embed → persist pipeline for one claimed task.
// Retries restart chunking from scratch; the splitter is deterministic so
// the restart is idempotent.
func (w *Worker) execute(ctx context.Context, t task.Task) error {
	pieces, err := w.splitter.Split(t.Content(), w.splitParams)
	if err != nil {
		return fmt.Errorf("split document: %w",
			provider.NewError(provider.KindValidation, "worker.chunk", err.Error(), err))
	}

	t = t.WithChunkTotal(len(pieces))
	ok, err := w.store.UpdateProgress(ctx, t)
	if err != nil {
		return fmt.Errorf("record chunk total: %w", err)
	}
	if !ok {
		w.logger.Info("task cancelled before chunking", slog.String("task_id", t.ID()))
		return nil
	}
	w.publishProgress(t)

	// Empty content completes immediately with zero chunks.
	if len(pieces) == 0 {
		if err := w.chunks.ReplaceDocument(ctx, t.DocumentID(), nil); err != nil {
			return fmt.Errorf("clear document chunks: %w", err)
		}
		return w.complete(ctx, t, nil)
	}

	chunks := make([]document.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = document.NewChunk(
			uuid.NewString(),
			t.DocumentID(), t.KnowledgeBaseID(),
			p.Index(), p.Content(), p.TokenCount(),
		)
	}

	batchSize := w.embedder.BatchSize()
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	placeholder := false
	for processed := 0; processed < len(chunks); processed += batchSize {
		end := min(processed+batchSize, len(chunks))
		texts := make([]string, 0, end-processed)
		for _, c := range chunks[processed:end] {
			texts = append(texts, c.Content())
		}

		result, err := w.embedder.EmbedForKnowledgeBase(ctx, t.KnowledgeBaseID(), texts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		placeholder = placeholder || result.Placeholder
		for i, vector := range result.Vectors {
			chunks[processed+i] = chunks[processed+i].WithEmbedding(vector, result.Placeholder)
		}

		// Cancellation takes effect between batches, never mid-call: the
		// conditional progress write refuses once the row left processing.
		t = t.WithProgress(end).WithPlaceholder(placeholder)
		ok, err := w.store.UpdateProgress(ctx, t)
		if err != nil {
			return fmt.Errorf("record progress: %w", err)
		}
		if !ok {
			w.logger.Info("task cancelled at checkpoint", slog.String("task_id", t.ID()))
			return nil
		}
		w.publishProgress(t)
	}

	cancelled, err := w.cancelledAtCheckpoint(ctx, t.ID())
	if err != nil {
		return err
	}
	if cancelled {
		w.logger.Info("task cancelled at checkpoint", slog.String("task_id", t.ID()))
		return nil
	}

	if err := w.chunks.ReplaceDocument(ctx, t.DocumentID(), chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	if w.keywords != nil {
		if err := w.keywords.IndexDocument(ctx, t.DocumentID(), chunks); err != nil {
			return fmt.Errorf("index chunks: %w", err)
		}
	}

	return w.complete(ctx, t, chunks)
}

// cancelledAtCheckpoint re-reads the task and reports whether it was
// cancelled while this worker held it. A task deleted out from under the
// worker counts as cancelled.
func (w *Worker) cancelledAtCheckpoint(ctx context.Context, taskID string) (bool, error) {
	current, err := w.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("checkpoint read: %w", err)
	}
	return current.Status() == task.StatusCancelled, nil
}

func (w *Worker) complete(ctx context.Context, t task.Task, chunks []document.Chunk) error {
	t = t.Completed(w.now().UTC())
	ok, err := w.store.Transition(ctx, t, task.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if !ok {
		w.logger.Info("task cancelled before completion", slog.String("task_id", t.ID()))
		return nil
	}

	if w.statuses != nil {
		if err := w.statuses.UpdateStatus(ctx, t.DocumentID(), document.DocumentStatusCompleted, len(chunks), ""); err != nil {
			w.logger.Warn("document status update failed",
				slog.String("document_id", t.DocumentID()),
				slog.String("error", err.Error()),
			)
		}
	}

	w.publishTerminal(t, "")
	return nil
}

// handleFailure classifies the error: permanent errors fail the task,
// transient ones re-enqueue it with exponential backoff until the retry
// budget runs out.
func (w *Worker) handleFailure(ctx context.Context, t task.Task, err error) {
	// A shutdown mid-task is not a task failure; the claim is re-enqueued
	// and picked up after restart.
	if ctx.Err() != nil {
		now := w.now().UTC()
		requeued := t.Retried("interrupted by shutdown", 0, now)
		if _, saveErr := w.store.Transition(context.WithoutCancel(ctx), requeued, task.StatusProcessing); saveErr != nil {
			w.logger.Error("failed to requeue interrupted task",
				slog.String("task_id", t.ID()),
				slog.String("error", saveErr.Error()),
			)
		}
		return
	}

	now := w.now().UTC()
	if provider.IsPermanent(err) || t.RetryCount() >= w.maxRetries {
		w.fail(ctx, t, err)
		return
	}

	delay := w.retryDelay * (1 << t.RetryCount())
	retried := t.Retried(err.Error(), delay, now)
	ok, saveErr := w.store.Transition(ctx, retried, task.StatusProcessing)
	if saveErr != nil {
		w.logger.Error("failed to schedule retry",
			slog.String("task_id", t.ID()),
			slog.String("error", saveErr.Error()),
		)
		return
	}
	if !ok {
		w.logger.Info("task cancelled before retry", slog.String("task_id", t.ID()))
		return
	}

	w.logger.Warn("task scheduled for retry",
		slog.String("task_id", t.ID()),
		slog.Int("retry_count", retried.RetryCount()),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
	if w.hub != nil {
		w.hub.Publish(notify.Event{
			Type:    notify.EventError,
			TaskID:  t.ID(),
			Status:  retried.Status(),
			Message: err.Error(),
		})
	}
}

func (w *Worker) fail(ctx context.Context, t task.Task, cause error) {
	t = t.Failed(cause.Error(), w.now().UTC())
	ok, err := w.store.Transition(ctx, t, task.StatusProcessing)
	if err != nil {
		w.logger.Error("failed to mark task failed",
			slog.String("task_id", t.ID()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		w.logger.Info("task cancelled before failure was recorded", slog.String("task_id", t.ID()))
		return
	}

	w.logger.Error("task failed permanently",
		slog.String("task_id", t.ID()),
		slog.Int("retry_count", t.RetryCount()),
		slog.String("error", cause.Error()),
	)

	if w.statuses != nil {
		if err := w.statuses.UpdateStatus(ctx, t.DocumentID(), document.DocumentStatusFailed, 0, cause.Error()); err != nil {
			w.logger.Warn("document status update failed",
				slog.String("document_id", t.DocumentID()),
				slog.String("error", err.Error()),
			)
		}
	}

	w.publishTerminal(t, cause.Error())
}

func (w *Worker) publishProgress(t task.Task) {
	if w.hub == nil {
		return
	}
	w.hub.Publish(notify.Event{
		Type:            notify.EventProgressUpdate,
		TaskID:          t.ID(),
		Status:          t.Status(),
		Progress:        t.Progress(),
		ProcessedChunks: t.ProcessedChunks(),
		TotalChunks:     t.TotalChunks(),
	})
}

func (w *Worker) publishTerminal(t task.Task, message string) {
	if w.hub == nil {
		return
	}
	w.hub.Publish(notify.Event{
		Type:            notify.EventTaskUpdate,
		TaskID:          t.ID(),
		Status:          t.Status(),
		Progress:        t.Progress(),
		ProcessedChunks: t.ProcessedChunks(),
		TotalChunks:     t.TotalChunks(),
		Message:         message,
	})
}
