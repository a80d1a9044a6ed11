package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/domain/task"
	"github.com/vectorhaus/kbvec/internal/config"
)

// janitorInterval is how often retention sweeps run.
const janitorInterval = time.Hour

// Janitor evicts terminal tasks past the retention window and purges
// expired semantic cache entries on a timer.
type Janitor struct {
	tasks     task.Store
	cache     document.CacheStore
	logger    *slog.Logger
	retention time.Duration
	interval  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	now    func() time.Time
}

// NewJanitor creates a new Janitor. cache may be nil when no semantic
// cache is configured.
func NewJanitor(tasks task.Store, cache document.CacheStore, cfg config.QueueConfig, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		tasks:     tasks,
		cache:     cache,
		logger:    logger,
		retention: cfg.Retention(),
		interval:  janitorInterval,
		now:       time.Now,
	}
}

// Start begins retention sweeps in a background goroutine.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.run(ctx)
	}()

	j.logger.Info("janitor started",
		slog.Duration("retention", j.retention),
		slog.Duration("interval", j.interval),
	)
}

// Stop cancels the background goroutine and waits for it to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
	j.logger.Info("janitor stopped")
}

func (j *Janitor) run(ctx context.Context) {
	// Sweep immediately on startup.
	j.Sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one retention pass: terminal tasks older than the retention
// window are deleted and expired cache entries purged.
func (j *Janitor) Sweep(ctx context.Context) {
	now := j.now().UTC()

	deleted, err := j.tasks.DeleteTerminalBefore(ctx, now.Add(-j.retention))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		j.logger.Error("task retention sweep failed", slog.String("error", err.Error()))
	} else if deleted > 0 {
		j.logger.Info("evicted terminal tasks", slog.Int64("count", deleted))
	}

	if j.cache == nil {
		return
	}
	purged, err := j.cache.PurgeExpired(ctx, now)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		j.logger.Error("cache purge failed", slog.String("error", err.Error()))
	} else if purged > 0 {
		j.logger.Info("purged expired cache entries", slog.Int64("count", purged))
	}
}
