package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/adscope/harvester/internal/storage"
)

// JobRunsCleanupArgs prunes terminal job runs past the retention window.
type JobRunsCleanupArgs struct {
	RetentionDays int `json:"retention_days"`
}

func (JobRunsCleanupArgs) Kind() string { return JobKindJobRunsCleanup }

type JobRunsCleanupWorker struct {
	river.WorkerDefaults[JobRunsCleanupArgs]
	Runs   storage.JobRunRepository
	Logger *slog.Logger
}

func (JobRunsCleanupWorker) Kind() string { return JobKindJobRunsCleanup }

func (w JobRunsCleanupWorker) Work(ctx context.Context, job *river.Job[JobRunsCleanupArgs]) error {
	if w.Runs == nil {
		return fmt.Errorf("job run repository not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	days := job.Args.RetentionDays
	if days <= 0 {
		days = 90
	}

	deleted, err := w.Runs.DeleteOlderThan(ctx, days)
	if err != nil {
		return fmt.Errorf("prune job runs: %w", err)
	}

	logger.Info("pruned job run history",
		"retention_days", days,
		"deleted_count", deleted,
	)
	return nil
}
