package task

import "github.com/vectorhaus/kbvec/domain/store"

// WithStatus filters tasks by status.
func WithStatus(s Status) store.Option {
	return store.WithCondition("status", string(s))
}

// WithStatuses filters tasks by any of the given statuses.
func WithStatuses(statuses ...Status) store.Option {
	values := make([]any, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return store.WithConditionIn("status", values...)
}

// WithDocumentID filters tasks by source document.
func WithDocumentID(id string) store.Option {
	return store.WithCondition("document_id", id)
}

// WithKnowledgeBaseID filters tasks by owning knowledge base.
func WithKnowledgeBaseID(id string) store.Option {
	return store.WithCondition("knowledge_base_id", id)
}

// WithQueueOrder orders tasks the way the scheduler claims them: highest
// priority first, oldest first within a tier.
func WithQueueOrder() store.Option {
	return func(q store.Query) store.Query {
		q = store.WithOrderDesc("priority")(q)
		return store.WithOrderAsc("created_at")(q)
	}
}
