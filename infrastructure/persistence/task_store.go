package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vectorhaus/kbvec/domain/store"
	"github.com/vectorhaus/kbvec/domain/task"
	"github.com/vectorhaus/kbvec/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskStore persists embedding tasks using GORM.
type TaskStore struct {
	db     database.Database
	repo   database.Repository[task.Task, TaskModel]
	logger *slog.Logger
}

var _ task.Store = (*TaskStore)(nil)

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db database.Database, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		db:     db,
		repo:   database.NewRepository[task.Task, TaskModel](db, TaskMapper{}, "task"),
		logger: logger,
	}
}

// Save inserts or updates a task.
func (s *TaskStore) Save(ctx context.Context, t task.Task) error {
	model := TaskMapper{}.ToModel(t)
	result := s.db.Session(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&model)
	if result.Error != nil {
		return fmt.Errorf("save task: %w", result.Error)
	}
	return nil
}

// Get returns the task with the given ID.
func (s *TaskStore) Get(ctx context.Context, id string) (task.Task, error) {
	return s.repo.FindOne(ctx, store.WithCondition("id", id))
}

// Find returns tasks matching the given options.
func (s *TaskStore) Find(ctx context.Context, opts ...store.Option) ([]task.Task, error) {
	return s.repo.Find(ctx, opts...)
}

// Count returns the number of tasks matching the given options.
func (s *TaskStore) Count(ctx context.Context, opts ...store.Option) (int64, error) {
	return s.repo.Count(ctx, opts...)
}

// Claim atomically selects the highest-priority pending task whose
// availability time has passed, marks it processing, and returns it. The
// select and update run in one transaction so concurrent workers never claim
// the same task.
func (s *TaskStore) Claim(ctx context.Context, now time.Time) (task.Task, bool, error) {
	var model TaskModel
	found := false

	err := s.db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Where("status = ?", string(task.StatusPending)).
			Where("available_at <= ?", now).
			Order("priority DESC, created_at ASC").
			First(&model)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return result.Error
		}

		started := now.UTC()
		update := tx.Model(&TaskModel{}).
			Where("id = ? AND status = ?", model.ID, string(task.StatusPending)).
			Updates(map[string]any{
				"status":     string(task.StatusProcessing),
				"started_at": started,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return nil
		}

		model.Status = string(task.StatusProcessing)
		model.StartedAt = &started
		found = true
		return nil
	})
	if err != nil {
		return task.Task{}, false, fmt.Errorf("claim task: %w", err)
	}
	if !found {
		return task.Task{}, false, nil
	}

	return TaskMapper{}.ToDomain(model), true, nil
}

// UpdateProgress writes the task's chunk counters and placeholder flag only
// while the row is still processing, so a concurrent cancellation is never
// overwritten by a progress write.
func (s *TaskStore) UpdateProgress(ctx context.Context, t task.Task) (bool, error) {
	result := s.db.Session(ctx).Model(&TaskModel{}).
		Where("id = ? AND status = ?", t.ID(), string(task.StatusProcessing)).
		Updates(map[string]any{
			"processed_chunks": t.ProcessedChunks(),
			"total_chunks":     t.TotalChunks(),
			"placeholder":      t.Placeholder(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("update task progress: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Transition writes the task's full state only while the stored row's
// status is still from. Terminal and retry transitions go through here so a
// concurrent cancellation is never overwritten by a plain upsert.
func (s *TaskStore) Transition(ctx context.Context, t task.Task, from task.Status) (bool, error) {
	model := TaskMapper{}.ToModel(t)
	result := s.db.Session(ctx).Model(&TaskModel{}).
		Where("id = ? AND status = ?", t.ID(), string(from)).
		Select("*").Omit("id", "created_at").
		Updates(&model)
	if result.Error != nil {
		return false, fmt.Errorf("transition task: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Cancel marks the task cancelled if it is still pending or processing. The
// conditional update makes cancellation take effect exactly once.
func (s *TaskStore) Cancel(ctx context.Context, id string, now time.Time) (bool, error) {
	result := s.db.Session(ctx).Model(&TaskModel{}).
		Where("id = ? AND status IN ?", id, []string{
			string(task.StatusPending),
			string(task.StatusProcessing),
		}).
		Updates(map[string]any{
			"status":       string(task.StatusCancelled),
			"completed_at": now.UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("cancel task: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// StatusCounts returns the number of tasks per status.
func (s *TaskStore) StatusCounts(ctx context.Context) (map[task.Status]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	result := s.db.Session(ctx).Model(&TaskModel{}).
		Select("status, COUNT(*) as total").
		Group("status").
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("count tasks by status: %w", result.Error)
	}

	counts := make(map[task.Status]int64, len(rows))
	for _, row := range rows {
		counts[task.Status(row.Status)] = row.Total
	}
	return counts, nil
}

// FindActiveByDocument returns the pending or processing task for the
// document, if one exists.
func (s *TaskStore) FindActiveByDocument(ctx context.Context, documentID string) (task.Task, bool, error) {
	tasks, err := s.repo.Find(ctx,
		task.WithDocumentID(documentID),
		task.WithStatuses(task.StatusPending, task.StatusProcessing),
		store.WithLimit(1),
	)
	if err != nil {
		return task.Task{}, false, err
	}
	if len(tasks) == 0 {
		return task.Task{}, false, nil
	}
	return tasks[0], true, nil
}

// DeleteTerminalBefore removes terminal tasks completed before the cutoff.
func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.Session(ctx).
		Where("status IN ?", []string{
			string(task.StatusCompleted),
			string(task.StatusFailed),
			string(task.StatusCancelled),
		}).
		Where("completed_at IS NOT NULL AND completed_at < ?", cutoff).
		Delete(&TaskModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete terminal tasks: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Debug("pruned terminal tasks", "count", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
