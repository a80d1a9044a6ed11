package persistence

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Float64Slice serializes a vector as JSON for storage in a text column.
type Float64Slice []float64

// Scan implements sql.Scanner for reading JSON from the database.
func (f *Float64Slice) Scan(value any) error {
	if value == nil {
		*f = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Float64Slice", value)
	}

	return json.Unmarshal(data, f)
}

// Value implements driver.Valuer for writing JSON to the database.
func (f Float64Slice) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

// StringMap serializes free-form metadata as JSON.
type StringMap map[string]string

// Scan implements sql.Scanner for reading JSON from the database.
func (m *StringMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringMap", value)
	}

	return json.Unmarshal(data, m)
}

// Value implements driver.Valuer for writing JSON to the database.
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// TaskModel is the database representation of an embedding task.
type TaskModel struct {
	ID              string     `gorm:"column:id;primaryKey;size:255"`
	DocumentID      string     `gorm:"column:document_id;index;size:255"`
	KnowledgeBaseID string     `gorm:"column:knowledge_base_id;index;size:255"`
	Content         string     `gorm:"column:content;type:text"`
	Metadata        StringMap  `gorm:"column:metadata;type:json"`
	Priority        int        `gorm:"column:priority;index"`
	Status          string     `gorm:"column:status;index;size:32"`
	ProcessedChunks int        `gorm:"column:processed_chunks"`
	TotalChunks     int        `gorm:"column:total_chunks"`
	RetryCount      int        `gorm:"column:retry_count"`
	ErrorMessage    string     `gorm:"column:error_message;type:text"`
	Placeholder     bool       `gorm:"column:placeholder"`
	CreatedAt       time.Time  `gorm:"column:created_at;index"`
	AvailableAt     time.Time  `gorm:"column:available_at;index"`
	StartedAt       *time.Time `gorm:"column:started_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at;index"`
}

// TableName returns the database table name.
func (TaskModel) TableName() string { return "kbvec_tasks" }

// ChunkModel is the database representation of an embedded chunk.
type ChunkModel struct {
	ID              string       `gorm:"column:id;primaryKey;size:255"`
	DocumentID      string       `gorm:"column:document_id;index;size:255"`
	KnowledgeBaseID string       `gorm:"column:knowledge_base_id;index;size:255"`
	ChunkIndex      int          `gorm:"column:chunk_index"`
	Content         string       `gorm:"column:content;type:text"`
	TokenCount      int          `gorm:"column:token_count"`
	Embedding       Float64Slice `gorm:"column:embedding;type:json"`
	Placeholder     bool         `gorm:"column:placeholder;index"`
	Metadata        StringMap    `gorm:"column:metadata;type:json"`
	CreatedAt       time.Time    `gorm:"column:created_at"`
}

// TableName returns the database table name.
func (ChunkModel) TableName() string { return "kbvec_chunks" }

// CacheModel is the database representation of a semantic cache entry.
type CacheModel struct {
	ID             string       `gorm:"column:id;primaryKey;size:255"`
	Query          string       `gorm:"column:query;type:text"`
	Embedding      Float64Slice `gorm:"column:embedding;type:json"`
	Response       string       `gorm:"column:response;type:text"`
	HitCount       int64        `gorm:"column:hit_count"`
	CreatedAt      time.Time    `gorm:"column:created_at"`
	LastAccessedAt time.Time    `gorm:"column:last_accessed_at"`
	ExpiresAt      time.Time    `gorm:"column:expires_at;index"`
}

// TableName returns the database table name.
func (CacheModel) TableName() string { return "kbvec_cache_entries" }
