// Package dto defines the JSON request and response bodies of the v1 API.
package dto

import "time"

// SubmitTaskRequest is the body of POST /api/v1/tasks.
type SubmitTaskRequest struct {
	DocumentID      string            `json:"document_id"`
	KnowledgeBaseID string            `json:"knowledge_base_id"`
	Content         string            `json:"content"`
	Priority        string            `json:"priority,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// SubmitBatchRequest is the body of POST /api/v1/tasks/batch.
type SubmitBatchRequest struct {
	Tasks []SubmitTaskRequest `json:"tasks"`
}

// TaskResponse is one task's state as reported by the API.
type TaskResponse struct {
	ID              string            `json:"id"`
	DocumentID      string            `json:"document_id"`
	KnowledgeBaseID string            `json:"knowledge_base_id"`
	Priority        string            `json:"priority"`
	Status          string            `json:"status"`
	Progress        int               `json:"progress"`
	ProcessedChunks int               `json:"processed_chunks"`
	TotalChunks     int               `json:"total_chunks"`
	RetryCount      int               `json:"retry_count"`
	Placeholder     bool              `json:"placeholder,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	ETASeconds      *float64          `json:"eta_seconds,omitempty"`
}

// BatchItemResponse is one per-document outcome of a batch submission.
type BatchItemResponse struct {
	DocumentID string `json:"document_id"`
	TaskID     string `json:"task_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SubmitBatchResponse is the body returned by POST /api/v1/tasks/batch.
type SubmitBatchResponse struct {
	Results []BatchItemResponse `json:"results"`
}

// QueueStatusResponse summarizes the queue for operators.
type QueueStatusResponse struct {
	QueueSize          int64            `json:"queue_size"`
	ActiveTasks        int64            `json:"active_tasks"`
	MaxConcurrentTasks int              `json:"max_concurrent_tasks"`
	StatusCounts       map[string]int64 `json:"status_counts"`
}

// CancelResponse is the body returned by DELETE /api/v1/tasks/{taskID}.
type CancelResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}
