// Package tasks implements the scheduled background tasks of the service.
package tasks

import (
	"context"
	"log/slog"
)

// Store is the storage used by scheduled tasks.
type Store interface {
	RunSQLMaintenance(ctx context.Context) error
}

// History reports recorded activity.
type History interface {
	SuccessesToday(ctx context.Context) (int, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   Store
	History History
	// DatabasePath is the SQLite file compacted by sql_maintenance.
	DatabasePath string
}
