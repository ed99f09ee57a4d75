package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/storage"
)

var _ storage.JobRunRepository = (*JobRunRepository)(nil)

func (r *JobRunRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *JobRunRepository) InsertRunning(ctx context.Context, run ads.HarvestJobRun) (string, error) {
	id := uuid.NewString()
	metadata, err := marshalMetadata(run.Metadata)
	if err != nil {
		return "", err
	}

	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	_, err = r.queryer().Exec(ctx, `
INSERT INTO harvest_job_runs (id, tenant_id, job_name, task_type, status, started_at, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, id, run.TenantID, run.JobName, run.TaskType, string(ads.RunRunning), startedAt, metadata)
	if err != nil {
		return "", fmt.Errorf("insert job run %s: %w", run.JobName, err)
	}
	return id, nil
}

func (r *JobRunRepository) Finish(ctx context.Context, runID string, run ads.HarvestJobRun) error {
	metadata, err := marshalMetadata(run.Metadata)
	if err != nil {
		return err
	}

	completedAt := time.Now().UTC()
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}

	tag, err := r.queryer().Exec(ctx, `
UPDATE harvest_job_runs
   SET status = $2, completed_at = $3, ads_processed = $4, errors_count = $5, metadata = $6
 WHERE id = $1
`, runID, string(run.Status), completedAt, run.AdsProcessed, run.ErrorsCount, metadata)
	if err != nil {
		return fmt.Errorf("finish job run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *JobRunRepository) Record(ctx context.Context, run ads.HarvestJobRun) error {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}
	metadata, err := marshalMetadata(run.Metadata)
	if err != nil {
		return err
	}

	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	completedAt := time.Now().UTC()
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}

	_, err = r.queryer().Exec(ctx, `
INSERT INTO harvest_job_runs
    (id, tenant_id, job_name, task_type, status, started_at, completed_at,
     ads_processed, errors_count, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, id, run.TenantID, run.JobName, run.TaskType, string(run.Status),
		startedAt, completedAt, run.AdsProcessed, run.ErrorsCount, metadata)
	if err != nil {
		return fmt.Errorf("record job run %s: %w", run.JobName, err)
	}
	return nil
}

func (r *JobRunRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM harvest_job_runs
 WHERE completed_at IS NOT NULL
   AND completed_at < now() - make_interval(days => $1)
`, days)
	if err != nil {
		return 0, fmt.Errorf("prune job runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal run metadata: %w", err)
	}
	return data, nil
}
