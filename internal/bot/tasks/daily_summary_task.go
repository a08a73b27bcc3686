package tasks

import (
	"context"
	"fmt"
)

// newDailySummaryTask logs how many successful actions were recorded today.
func newDailySummaryTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "daily_summary")

	return func(ctx context.Context) error {
		count, err := deps.History.SuccessesToday(ctx)
		if err != nil {
			return fmt.Errorf("failed to count today's successes: %w", err)
		}
		log.InfoContext(ctx, "Daily activity summary", "successes_today", count)
		return nil
	}
}
