// Package notify provides an in-process publish/subscribe hub for task
// progress events.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vectorhaus/kbvec/domain/task"
)

// EventType identifies the kind of event on a subscription.
type EventType string

// Event types.
const (
	EventProgressUpdate EventType = "progress_update"
	EventTaskUpdate     EventType = "task_update"
	EventQueueStatus    EventType = "queue_status"
	EventError          EventType = "error"
)

// Event is one notification about a task.
type Event struct {
	Type            EventType   `json:"type"`
	TaskID          string      `json:"task_id"`
	Status          task.Status `json:"status,omitempty"`
	Progress        int         `json:"progress"`
	ProcessedChunks int         `json:"processed_chunks"`
	TotalChunks     int         `json:"total_chunks"`
	Message         string      `json:"message,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

// Terminal reports whether the event carries a terminal task status.
func (e Event) Terminal() bool {
	return e.Type == EventTaskUpdate && e.Status.IsTerminal()
}

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind is dropped rather than blocking publishers.
const subscriberBuffer = 16

// Hub fans task events out to subscribers keyed by task ID. Publishing
// never blocks; the hub delivers exactly one terminal event per task and
// then closes that task's subscriptions.
type Hub struct {
	mu     sync.Mutex
	subs   map[string][]*subscription
	closed bool
	logger *slog.Logger
}

type subscription struct {
	taskID string
	ch     chan Event
	done   bool
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string][]*subscription),
		logger: logger,
	}
}

// Subscribe registers interest in events for the task. The returned cancel
// function is safe to call more than once and must be called when the
// subscriber goes away.
func (h *Hub) Subscribe(taskID string) (<-chan Event, func()) {
	sub := &subscription{
		taskID: taskID,
		ch:     make(chan Event, subscriberBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[taskID] = append(h.subs[taskID], sub)
	h.mu.Unlock()

	return sub.ch, func() { h.unsubscribe(sub) }
}

// Publish delivers the event to every subscriber of its task. Subscribers
// whose buffers are full are dropped so a stalled consumer cannot block the
// pipeline. A terminal event closes the task's subscriptions after delivery.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	subs := h.subs[event.TaskID]
	if len(subs) == 0 {
		return
	}

	kept := subs[:0]
	for _, sub := range subs {
		select {
		case sub.ch <- event:
			kept = append(kept, sub)
		default:
			h.logger.Warn("dropping slow subscriber", "task_id", event.TaskID)
			sub.done = true
			close(sub.ch)
		}
	}

	if event.Terminal() {
		for _, sub := range kept {
			sub.done = true
			close(sub.ch)
		}
		delete(h.subs, event.TaskID)
		return
	}

	if len(kept) == 0 {
		delete(h.subs, event.TaskID)
		return
	}
	h.subs[event.TaskID] = kept
}

// SubscriberCount returns the number of live subscribers for the task.
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[taskID])
}

// Close shuts the hub down, closing every open subscription. Publish and
// Subscribe become no-ops afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, subs := range h.subs {
		for _, sub := range subs {
			if !sub.done {
				sub.done = true
				close(sub.ch)
			}
		}
	}
	h.subs = nil
}

func (h *Hub) unsubscribe(target *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || target.done {
		return
	}

	subs := h.subs[target.taskID]
	for i, sub := range subs {
		if sub == target {
			h.subs[target.taskID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subs[target.taskID]) == 0 {
		delete(h.subs, target.taskID)
	}
	target.done = true
	close(target.ch)
}
