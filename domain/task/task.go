// Package task provides the embedding task domain types and the state
// machine driving asynchronous document processing.
package task

import (
	"maps"
	"time"
)

// Task represents one unit of asynchronous embedding work: a document's raw
// content waiting to be chunked, embedded, and persisted. Tasks are immutable
// values; every mutation returns a copy. The queue worker owning a claimed
// task is the only writer while it is processing.
type Task struct {
	id              string
	documentID      string
	knowledgeBaseID string
	content         string
	metadata        map[string]string
	priority        Priority
	status          Status
	processedChunks int
	totalChunks     int
	retryCount      int
	errorMessage    string
	placeholder     bool
	createdAt       time.Time
	availableAt     time.Time
	startedAt       *time.Time
	completedAt     *time.Time
}

// New creates a pending Task for the given document.
func New(id, documentID, knowledgeBaseID, content string, priority Priority, metadata map[string]string) Task {
	now := time.Now().UTC()
	if !priority.Valid() {
		priority = PriorityNormal
	}
	return Task{
		id:              id,
		documentID:      documentID,
		knowledgeBaseID: knowledgeBaseID,
		content:         content,
		metadata:        copyMetadata(metadata),
		priority:        priority,
		status:          StatusPending,
		createdAt:       now,
		availableAt:     now,
	}
}

// NewFull creates a Task with all fields populated (used by the store).
func NewFull(
	id, documentID, knowledgeBaseID, content string,
	metadata map[string]string,
	priority Priority,
	status Status,
	processedChunks, totalChunks, retryCount int,
	errorMessage string,
	placeholder bool,
	createdAt, availableAt time.Time,
	startedAt, completedAt *time.Time,
) Task {
	return Task{
		id:              id,
		documentID:      documentID,
		knowledgeBaseID: knowledgeBaseID,
		content:         content,
		metadata:        copyMetadata(metadata),
		priority:        priority,
		status:          status,
		processedChunks: processedChunks,
		totalChunks:     totalChunks,
		retryCount:      retryCount,
		errorMessage:    errorMessage,
		placeholder:     placeholder,
		createdAt:       createdAt,
		availableAt:     availableAt,
		startedAt:       startedAt,
		completedAt:     completedAt,
	}
}

// ID returns the task ID.
func (t Task) ID() string { return t.id }

// DocumentID returns the source document ID.
func (t Task) DocumentID() string { return t.documentID }

// KnowledgeBaseID returns the owning knowledge base ID.
func (t Task) KnowledgeBaseID() string { return t.knowledgeBaseID }

// Content returns the raw document text.
func (t Task) Content() string { return t.content }

// Metadata returns a copy of the pass-through metadata.
func (t Task) Metadata() map[string]string { return copyMetadata(t.metadata) }

// Priority returns the scheduling priority tier.
func (t Task) Priority() Priority { return t.priority }

// Status returns the current lifecycle status.
func (t Task) Status() Status { return t.status }

// ProcessedChunks returns the number of chunks embedded so far.
func (t Task) ProcessedChunks() int { return t.processedChunks }

// TotalChunks returns the total chunk count (0 until chunking runs).
func (t Task) TotalChunks() int { return t.totalChunks }

// RetryCount returns the number of automatic retries attempted.
func (t Task) RetryCount() int { return t.retryCount }

// ErrorMessage returns the last failure reason.
func (t Task) ErrorMessage() string { return t.errorMessage }

// Placeholder reports whether the task was embedded with placeholder vectors
// because no provider credential was available.
func (t Task) Placeholder() bool { return t.placeholder }

// CreatedAt returns when the task was submitted.
func (t Task) CreatedAt() time.Time { return t.createdAt }

// AvailableAt returns the earliest time the scheduler may claim the task.
// Retry backoff pushes this into the future.
func (t Task) AvailableAt() time.Time { return t.availableAt }

// StartedAt returns when processing began, if it has.
func (t Task) StartedAt() *time.Time { return t.startedAt }

// CompletedAt returns when the task reached a terminal state, if it has.
func (t Task) CompletedAt() *time.Time { return t.completedAt }

// Progress returns the completion percentage (0–100).
func (t Task) Progress() int {
	if t.status == StatusCompleted {
		return 100
	}
	if t.totalChunks == 0 {
		return 0
	}
	p := t.processedChunks * 100 / t.totalChunks
	if p > 100 {
		p = 100
	}
	return p
}

// Started returns a copy transitioned to Processing.
func (t Task) Started(now time.Time) Task {
	t.status = StatusProcessing
	t.startedAt = &now
	return t
}

// WithChunkTotal returns a copy with the total chunk count set.
func (t Task) WithChunkTotal(total int) Task {
	t.totalChunks = total
	return t
}

// WithProgress returns a copy with updated processed-chunk count.
func (t Task) WithProgress(processed int) Task {
	t.processedChunks = processed
	return t
}

// WithPlaceholder returns a copy flagged as placeholder-embedded.
func (t Task) WithPlaceholder(placeholder bool) Task {
	t.placeholder = placeholder
	return t
}

// WithPriority returns a copy with the given priority tier.
func (t Task) WithPriority(p Priority) Task {
	if p.Valid() {
		t.priority = p
	}
	return t
}

// Completed returns a copy transitioned to the Completed terminal state.
// A completed task always reports full progress.
func (t Task) Completed(now time.Time) Task {
	t.status = StatusCompleted
	t.processedChunks = t.totalChunks
	t.errorMessage = ""
	t.completedAt = &now
	return t
}

// Failed returns a copy transitioned to the Failed terminal state.
func (t Task) Failed(message string, now time.Time) Task {
	t.status = StatusFailed
	t.errorMessage = message
	t.completedAt = &now
	return t
}

// Cancelled returns a copy transitioned to the Cancelled terminal state.
func (t Task) Cancelled(now time.Time) Task {
	t.status = StatusCancelled
	t.completedAt = &now
	return t
}

// Retried returns a copy re-enqueued as Pending with an incremented retry
// count. The task becomes claimable again only after the backoff delay;
// progress counters reset because a retry re-chunks from scratch.
func (t Task) Retried(message string, delay time.Duration, now time.Time) Task {
	t.status = StatusPending
	t.retryCount++
	t.errorMessage = message
	t.processedChunks = 0
	t.totalChunks = 0
	t.availableAt = now.Add(delay)
	t.startedAt = nil
	t.completedAt = nil
	return t
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	result := make(map[string]string, len(m))
	maps.Copy(result, m)
	return result
}
