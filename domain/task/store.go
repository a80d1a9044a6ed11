package task

import (
	"context"
	"time"

	"github.com/vectorhaus/kbvec/domain/store"
)

// Store persists embedding tasks.
type Store interface {
	// Save inserts or updates a task.
	Save(ctx context.Context, t Task) error
	// Get returns the task with the given ID.
	Get(ctx context.Context, id string) (Task, error)
	// Find returns tasks matching the given options.
	Find(ctx context.Context, opts ...store.Option) ([]Task, error)
	// Count returns the number of tasks matching the given options.
	Count(ctx context.Context, opts ...store.Option) (int64, error)
	// Claim atomically selects the highest-priority claimable pending task,
	// marks it processing, and returns it. It returns found=false when no
	// task is claimable.
	Claim(ctx context.Context, now time.Time) (Task, bool, error)
	// UpdateProgress writes the task's chunk counters and placeholder flag
	// only while the row is still processing. It reports whether the write
	// happened; false means the task was cancelled or removed mid-flight.
	UpdateProgress(ctx context.Context, t Task) (bool, error)
	// Transition writes the task's full state only while the stored row's
	// status is still from. It reports whether the write happened; false
	// means another writer moved the task first, so terminal states stay
	// final.
	Transition(ctx context.Context, t Task, from Status) (bool, error)
	// Cancel marks the task cancelled if it is still pending or processing.
	// It reports whether this call performed the transition.
	Cancel(ctx context.Context, id string, now time.Time) (bool, error)
	// StatusCounts returns the number of tasks per status.
	StatusCounts(ctx context.Context) (map[Status]int64, error)
	// FindActiveByDocument returns the pending or processing task for the
	// document, if one exists.
	FindActiveByDocument(ctx context.Context, documentID string) (Task, bool, error)
	// DeleteTerminalBefore removes terminal tasks completed before the
	// cutoff and returns the number deleted.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
