package persistence

import (
	"context"
	"fmt"

	"github.com/vectorhaus/kbvec/internal/database"
)

// AutoMigrate creates or updates the database schema for all persisted
// models.
func AutoMigrate(db database.Database) error {
	models := []any{
		&TaskModel{},
		&ChunkModel{},
		&CacheModel{},
	}

	if err := db.Session(context.Background()).AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate schema: %w", err)
	}

	return nil
}
