// Package service provides application layer services that orchestrate
// domain operations.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vectorhaus/kbvec/domain/store"
	"github.com/vectorhaus/kbvec/domain/task"
	"github.com/vectorhaus/kbvec/infrastructure/notify"
	"github.com/vectorhaus/kbvec/infrastructure/provider"
	"github.com/vectorhaus/kbvec/internal/config"
)

// SubmitRequest describes one document submission.
type SubmitRequest struct {
	DocumentID      string
	KnowledgeBaseID string
	Content         string
	Priority        task.Priority
	Metadata        map[string]string
}

// Validate checks the request for required fields. Content may be empty;
// an empty document clears its previous chunks and completes with none.
func (r SubmitRequest) Validate() error {
	if strings.TrimSpace(r.DocumentID) == "" {
		return provider.NewError(provider.KindValidation, "queue.submit", "document_id is required", nil)
	}
	if strings.TrimSpace(r.KnowledgeBaseID) == "" {
		return provider.NewError(provider.KindValidation, "queue.submit", "knowledge_base_id is required", nil)
	}
	return nil
}

// BatchItemResult is the outcome of one submission inside a batch.
type BatchItemResult struct {
	DocumentID string
	TaskID     string
	Status     task.Status
	Err        error
}

// TaskProgress is a task status snapshot with an optional completion
// estimate.
type TaskProgress struct {
	Task       task.Task
	ETASeconds *float64
}

// QueueStatus summarizes the queue for operators.
type QueueStatus struct {
	QueueSize          int64
	StatusCounts       map[task.Status]int64
	ActiveTasks        int64
	MaxConcurrentTasks int
}

// Queue accepts embedding tasks and answers progress queries. It never
// blocks on embedding work; the worker pool drains the queue in the
// background.
type Queue struct {
	store         task.Store
	hub           *notify.Hub
	logger        *slog.Logger
	maxConcurrent int
	now           func() time.Time
}

// NewQueue creates a new queue service.
func NewQueue(store task.Store, hub *notify.Hub, cfg config.QueueConfig, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:         store,
		hub:           hub,
		logger:        logger,
		maxConcurrent: cfg.WorkerCount(),
		now:           time.Now,
	}
}

// Submit validates the request and enqueues an embedding task for the
// document. Submitting a document that already has a pending task reuses
// that task, raising its priority if the new submission's is higher.
func (s *Queue) Submit(ctx context.Context, req SubmitRequest) (task.Task, error) {
	if err := req.Validate(); err != nil {
		return task.Task{}, err
	}

	priority := req.Priority
	if !priority.Valid() {
		priority = task.PriorityNormal
	}

	existing, found, err := s.store.FindActiveByDocument(ctx, req.DocumentID)
	if err != nil {
		return task.Task{}, fmt.Errorf("check active task: %w", err)
	}
	if found && existing.Status() == task.StatusPending {
		if priority > existing.Priority() {
			existing = existing.WithPriority(priority)
			// Conditional on the task still being pending; a task claimed
			// or cancelled in the meantime keeps its state.
			ok, err := s.store.Transition(ctx, existing, task.StatusPending)
			if err != nil {
				return task.Task{}, fmt.Errorf("bump task priority: %w", err)
			}
			if ok {
				s.logger.Debug("reused pending task with raised priority",
					slog.String("task_id", existing.ID()),
					slog.String("priority", priority.String()),
				)
			}
		}
		return existing, nil
	}

	t := task.New(uuid.NewString(), req.DocumentID, req.KnowledgeBaseID, req.Content, priority, req.Metadata)
	if err := s.store.Save(ctx, t); err != nil {
		return task.Task{}, fmt.Errorf("enqueue task: %w", err)
	}

	s.logger.Info("task enqueued",
		slog.String("task_id", t.ID()),
		slog.String("document_id", t.DocumentID()),
		slog.String("priority", t.Priority().String()),
	)
	return t, nil
}

// SubmitBatch enqueues each request, collecting per-item outcomes. A bad
// item does not abort the rest of the batch.
func (s *Queue) SubmitBatch(ctx context.Context, reqs []SubmitRequest) []BatchItemResult {
	results := make([]BatchItemResult, len(reqs))
	for i, req := range reqs {
		t, err := s.Submit(ctx, req)
		if err != nil {
			results[i] = BatchItemResult{DocumentID: req.DocumentID, Err: err}
			continue
		}
		results[i] = BatchItemResult{DocumentID: req.DocumentID, TaskID: t.ID(), Status: t.Status()}
	}
	return results
}

// Progress returns a status snapshot for the task, including an estimated
// time to completion extrapolated from the chunk throughput so far.
func (s *Queue) Progress(ctx context.Context, taskID string) (TaskProgress, error) {
	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		return TaskProgress{}, err
	}
	return TaskProgress{Task: t, ETASeconds: estimateETA(t, s.now())}, nil
}

// Get returns the task with the given ID.
func (s *Queue) Get(ctx context.Context, taskID string) (task.Task, error) {
	return s.store.Get(ctx, taskID)
}

// List returns tasks filtered by the given options in queue order.
func (s *Queue) List(ctx context.Context, opts ...store.Option) ([]task.Task, error) {
	opts = append(opts, task.WithQueueOrder())
	return s.store.Find(ctx, opts...)
}

// Cancel cancels a pending or processing task. It reports false when the
// task is already terminal. The worker observes the cancellation at its
// next inter-batch checkpoint.
func (s *Queue) Cancel(ctx context.Context, taskID string) (bool, error) {
	// Surface unknown IDs as not-found rather than a silent false.
	if _, err := s.store.Get(ctx, taskID); err != nil {
		return false, err
	}

	now := s.now().UTC()
	cancelled, err := s.store.Cancel(ctx, taskID, now)
	if err != nil {
		return false, fmt.Errorf("cancel task: %w", err)
	}
	if !cancelled {
		return false, nil
	}

	s.logger.Info("task cancelled", slog.String("task_id", taskID))
	if s.hub != nil {
		s.hub.Publish(notify.Event{
			Type:      notify.EventTaskUpdate,
			TaskID:    taskID,
			Status:    task.StatusCancelled,
			Timestamp: now,
		})
	}
	return true, nil
}

// Status summarizes queue depth and per-status counts.
func (s *Queue) Status(ctx context.Context) (QueueStatus, error) {
	counts, err := s.store.StatusCounts(ctx)
	if err != nil {
		return QueueStatus{}, fmt.Errorf("queue status: %w", err)
	}
	return QueueStatus{
		QueueSize:          counts[task.StatusPending],
		StatusCounts:       counts,
		ActiveTasks:        counts[task.StatusProcessing],
		MaxConcurrentTasks: s.maxConcurrent,
	}, nil
}

// estimateETA extrapolates remaining processing time from the elapsed time
// and chunk ratio. It returns nil when no estimate is possible yet.
func estimateETA(t task.Task, now time.Time) *float64 {
	if t.Status() != task.StatusProcessing || t.StartedAt() == nil {
		return nil
	}
	processed := t.ProcessedChunks()
	total := t.TotalChunks()
	if processed <= 0 || total <= 0 || processed >= total {
		return nil
	}

	elapsed := now.Sub(*t.StartedAt()).Seconds()
	if elapsed <= 0 {
		return nil
	}
	remaining := elapsed * float64(total-processed) / float64(processed)
	return &remaining
}
