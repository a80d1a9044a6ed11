package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vectorhaus/kbvec/application/service"
	"github.com/vectorhaus/kbvec/domain/task"
	"github.com/vectorhaus/kbvec/infrastructure/api/middleware"
	"github.com/vectorhaus/kbvec/infrastructure/api/v1/dto"
	"github.com/vectorhaus/kbvec/infrastructure/provider"
)

// BreakerReporter exposes the generation circuit breaker for health checks.
type BreakerReporter func() provider.BreakerStatus

// SystemRouter handles queue status, corpus statistics, and health.
type SystemRouter struct {
	queue   *service.Queue
	search  *service.Search
	breaker BreakerReporter
	logger  *slog.Logger
}

// NewSystemRouter creates a new SystemRouter. breaker may be nil when no
// generation client is configured.
func NewSystemRouter(queue *service.Queue, searchSvc *service.Search, breaker BreakerReporter, logger *slog.Logger) *SystemRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemRouter{
		queue:   queue,
		search:  searchSvc,
		breaker: breaker,
		logger:  logger,
	}
}

// QueueStatus handles GET /api/v1/queue/status.
func (r *SystemRouter) QueueStatus(w http.ResponseWriter, req *http.Request) {
	status, err := r.queue.Status(req.Context())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	counts := make(map[string]int64, len(status.StatusCounts))
	for s, n := range status.StatusCounts {
		counts[string(s)] = n
	}
	for _, s := range []task.Status{
		task.StatusPending, task.StatusProcessing, task.StatusCompleted,
		task.StatusFailed, task.StatusCancelled,
	} {
		if _, ok := counts[string(s)]; !ok {
			counts[string(s)] = 0
		}
	}

	middleware.WriteJSON(w, http.StatusOK, dto.QueueStatusResponse{
		QueueSize:          status.QueueSize,
		ActiveTasks:        status.ActiveTasks,
		MaxConcurrentTasks: status.MaxConcurrentTasks,
		StatusCounts:       counts,
	})
}

// Statistics handles GET /api/v1/statistics. An optional knowledge_base_id
// query parameter scopes the counts.
func (r *SystemRouter) Statistics(w http.ResponseWriter, req *http.Request) {
	stats, err := r.search.Statistics(req.Context(), req.URL.Query().Get("knowledge_base_id"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.StatisticsResponse{
		Documents:         stats.Documents,
		Chunks:            stats.Chunks,
		PlaceholderChunks: stats.PlaceholderChunks,
		Tokens:            stats.Tokens,
	})
}

// Health handles GET /api/v1/health.
func (r *SystemRouter) Health(w http.ResponseWriter, _ *http.Request) {
	resp := dto.HealthResponse{Status: "ok"}
	if r.breaker != nil {
		status := r.breaker()
		resp.Breaker = dto.BreakerHealth{
			State:    string(status.State),
			Failures: status.Failures,
		}
		if status.State == provider.BreakerOpen {
			resp.Status = "degraded"
		}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Routes returns the chi router for queue status endpoints.
func (r *SystemRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/status", r.QueueStatus)
	return router
}
