package tasks

import (
	"context"
	"fmt"
	"os"
	"time"
)

// newSQLMaintenanceTask compacts the database file. Trimming processed events
// and history leaves free pages behind; VACUUM returns them to the filesystem.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance", "db_path", deps.DatabasePath)

	return func(ctx context.Context) error {
		sizeBefore := fileSize(deps.DatabasePath)
		log.InfoContext(ctx, "Compacting database...", "size_bytes", sizeBefore)
		startTime := time.Now()

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "Database compaction failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		sizeAfter := fileSize(deps.DatabasePath)
		log.InfoContext(ctx, "Database compacted",
			"size_bytes", sizeAfter,
			"reclaimed_bytes", max(sizeBefore-sizeAfter, 0),
			"duration", time.Since(startTime))
		return nil
	}
}

// fileSize returns the size of path, or 0 when it cannot be read.
func fileSize(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
