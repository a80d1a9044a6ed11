// Package v1 implements the v1 HTTP API routers.
package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vectorhaus/kbvec/application/service"
	"github.com/vectorhaus/kbvec/domain/task"
	"github.com/vectorhaus/kbvec/infrastructure/api/middleware"
	"github.com/vectorhaus/kbvec/infrastructure/api/v1/dto"
	"github.com/vectorhaus/kbvec/infrastructure/notify"
	"github.com/vectorhaus/kbvec/infrastructure/provider"
)

// badJSON wraps a body decode failure as a validation error so it maps to
// 400 rather than 500.
func badJSON(err error) error {
	return provider.NewError(provider.KindValidation, "api", "invalid JSON body", err)
}

// TasksRouter handles task submission, progress, and cancellation.
type TasksRouter struct {
	queue     *service.Queue
	hub       *notify.Hub
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewTasksRouter creates a new TasksRouter. heartbeat sets the SSE
// keep-alive interval.
func NewTasksRouter(queue *service.Queue, hub *notify.Hub, heartbeat time.Duration, logger *slog.Logger) *TasksRouter {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &TasksRouter{
		queue:     queue,
		hub:       hub,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// Routes returns the chi router for task endpoints. The events stream is
// mounted separately so it can bypass timeout middleware.
func (r *TasksRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Submit)
	router.Post("/batch", r.SubmitBatch)
	router.Get("/{taskID}", r.GetTask)
	router.Delete("/{taskID}", r.CancelTask)

	return router
}

// Submit handles POST /api/v1/tasks.
func (r *TasksRouter) Submit(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body dto.SubmitTaskRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, badJSON(err), r.logger)
		return
	}

	t, err := r.queue.Submit(ctx, submitRequestFromDTO(body))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, taskToDTO(t, nil))
}

// SubmitBatch handles POST /api/v1/tasks/batch. Items are validated
// independently; one bad document does not reject the rest.
func (r *TasksRouter) SubmitBatch(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body dto.SubmitBatchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, badJSON(err), r.logger)
		return
	}

	reqs := make([]service.SubmitRequest, len(body.Tasks))
	for i, item := range body.Tasks {
		reqs[i] = submitRequestFromDTO(item)
	}

	results := r.queue.SubmitBatch(ctx, reqs)
	response := dto.SubmitBatchResponse{
		Results: make([]dto.BatchItemResponse, len(results)),
	}
	for i, res := range results {
		item := dto.BatchItemResponse{
			DocumentID: res.DocumentID,
			TaskID:     res.TaskID,
			Status:     string(res.Status),
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		response.Results[i] = item
	}

	middleware.WriteJSON(w, http.StatusOK, response)
}

// GetTask handles GET /api/v1/tasks/{taskID}.
func (r *TasksRouter) GetTask(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	taskID := chi.URLParam(req, "taskID")

	progress, err := r.queue.Progress(ctx, taskID)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, taskToDTO(progress.Task, progress.ETASeconds))
}

// CancelTask handles DELETE /api/v1/tasks/{taskID}.
func (r *TasksRouter) CancelTask(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	taskID := chi.URLParam(req, "taskID")

	cancelled, err := r.queue.Cancel(ctx, taskID)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.CancelResponse{
		TaskID:    taskID,
		Cancelled: cancelled,
	})
}

// Events handles GET /api/v1/tasks/{taskID}/events: a Server-Sent Events
// stream of progress updates ending with the task's terminal event.
func (r *TasksRouter) Events(w http.ResponseWriter, req *http.Request) {
	taskID := chi.URLParam(req, "taskID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Confirm the task exists before holding the connection open.
	current, err := r.queue.Get(req.Context(), taskID)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	events, unsubscribe := r.hub.Subscribe(taskID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// The confirmation carries the task's current state so subscribers do
	// not need a separate progress request.
	fmt.Fprintf(w, "event: subscription_confirmed\ndata: {\"task_id\":%q,\"status\":%q,\"progress\":%d}\n\n",
		taskID, current.Status(), current.Progress())
	flusher.Flush()

	// An already-finished task produces no further hub events; replay its
	// terminal state and end the stream instead of heartbeating forever.
	if current.Status().IsTerminal() {
		r.writeEvent(w, flusher, notify.Event{
			Type:            notify.EventTaskUpdate,
			TaskID:          taskID,
			Status:          current.Status(),
			Progress:        current.Progress(),
			ProcessedChunks: current.ProcessedChunks(),
			TotalChunks:     current.TotalChunks(),
			Message:         current.ErrorMessage(),
		})
		return
	}

	heartbeat := time.NewTicker(r.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			// SSE comment lines keep intermediate proxies from closing
			// the idle connection.
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			r.writeEvent(w, flusher, event)
			if event.Terminal() {
				return
			}
		}
	}
}

func (r *TasksRouter) writeEvent(w http.ResponseWriter, flusher http.Flusher, event notify.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("failed to encode event", slog.String("error", err.Error()))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
	flusher.Flush()
}

func submitRequestFromDTO(body dto.SubmitTaskRequest) service.SubmitRequest {
	return service.SubmitRequest{
		DocumentID:      body.DocumentID,
		KnowledgeBaseID: body.KnowledgeBaseID,
		Content:         body.Content,
		Priority:        task.ParsePriority(body.Priority),
		Metadata:        body.Metadata,
	}
}

func taskToDTO(t task.Task, eta *float64) dto.TaskResponse {
	return dto.TaskResponse{
		ID:              t.ID(),
		DocumentID:      t.DocumentID(),
		KnowledgeBaseID: t.KnowledgeBaseID(),
		Priority:        t.Priority().String(),
		Status:          string(t.Status()),
		Progress:        t.Progress(),
		ProcessedChunks: t.ProcessedChunks(),
		TotalChunks:     t.TotalChunks(),
		RetryCount:      t.RetryCount(),
		Placeholder:     t.Placeholder(),
		ErrorMessage:    t.ErrorMessage(),
		Metadata:        t.Metadata(),
		CreatedAt:       t.CreatedAt(),
		StartedAt:       t.StartedAt(),
		CompletedAt:     t.CompletedAt(),
		ETASeconds:      eta,
	}
}
