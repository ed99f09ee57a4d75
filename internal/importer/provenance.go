package importer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/storage"
)

// RunSummary describes one finished harvest/import run.
type RunSummary struct {
	TenantID    string
	JobName     string
	TaskType    string
	StartedAt   time.Time
	CompletedAt time.Time
	Result      Result
	Metadata    map[string]any
	// Fatal marks a run aborted before any import could happen (for
	// example a session that never opened).
	Fatal error
}

// DeriveStatus maps aggregate counts to the terminal run status: partial
// when some records failed but some succeeded, failed when nothing
// succeeded and at least one error occurred, completed otherwise. A fatal
// abort never yields completed: with salvaged progress it is partial,
// without any it is failed.
func DeriveStatus(result Result, fatal error) ads.RunStatus {
	if fatal != nil {
		if result.Processed() == 0 {
			return ads.RunFailed
		}
		return ads.RunPartial
	}
	switch {
	case result.Errors > 0 && result.Processed() > 0:
		return ads.RunPartial
	case result.Errors > 0:
		return ads.RunFailed
	default:
		return ads.RunCompleted
	}
}

// Recorder persists one audit row per run. It is fire-and-forget relative
// to the pipeline: a provenance-write failure is logged, never propagated.
type Recorder struct {
	runs   storage.JobRunRepository
	alerts *Alerter
	logger zerolog.Logger
}

func NewRecorder(runs storage.JobRunRepository, logger zerolog.Logger) *Recorder {
	return &Recorder{runs: runs, logger: logger}
}

// WithAlerts fans failed and partial runs out through alerter.
func (r *Recorder) WithAlerts(alerter *Alerter) *Recorder {
	if r != nil {
		r.alerts = alerter
	}
	return r
}

// Begin creates the audit row in the running state and returns its id. An
// empty id means the row could not be created; Complete then synthesizes
// the whole row at the end instead. Safe on a nil receiver.
func (r *Recorder) Begin(ctx context.Context, summary RunSummary) string {
	if r == nil || r.runs == nil {
		return ""
	}

	runID, err := r.runs.InsertRunning(ctx, ads.HarvestJobRun{
		TenantID:  summary.TenantID,
		JobName:   summary.JobName,
		TaskType:  summary.TaskType,
		Status:    ads.RunRunning,
		StartedAt: summary.StartedAt,
		Metadata:  summary.Metadata,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("job", summary.JobName).
			Msg("importer: failed to open job run")
		return ""
	}
	return runID
}

// Complete moves the row created by Begin to its terminal status. With an
// empty runID it falls back to Record.
func (r *Recorder) Complete(ctx context.Context, runID string, summary RunSummary) {
	if r == nil || r.runs == nil {
		return
	}
	if runID == "" {
		r.Record(ctx, summary)
		return
	}

	run := buildRun(summary)
	r.alerts.Notify(summary.JobName, run)
	if err := r.runs.Finish(ctx, runID, run); err != nil {
		r.logger.Warn().Err(err).Str("job", summary.JobName).Str("run_id", runID).
			Msg("importer: failed to finish job run")
		return
	}
	r.logRun(summary.JobName, run)
}

// Record synthesizes and writes the audit row for summary in one shot, for
// fire-and-forget paths (webhook, manual import). Safe to call with a nil
// receiver or missing repository (dry runs, tests).
func (r *Recorder) Record(ctx context.Context, summary RunSummary) {
	if r == nil || r.runs == nil {
		return
	}

	run := buildRun(summary)
	r.alerts.Notify(summary.JobName, run)
	if err := r.runs.Record(ctx, run); err != nil {
		r.logger.Warn().Err(err).Str("job", summary.JobName).
			Msg("importer: failed to record job run")
		return
	}
	r.logRun(summary.JobName, run)
}

func buildRun(summary RunSummary) ads.HarvestJobRun {
	status := DeriveStatus(summary.Result, summary.Fatal)
	metadata := summary.Metadata
	if summary.Fatal != nil {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["fatal_error"] = summary.Fatal.Error()
	}
	if len(summary.Result.ErrorDetails) > 0 {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["error_details"] = summary.Result.ErrorDetails
	}

	completedAt := summary.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	return ads.HarvestJobRun{
		TenantID:     summary.TenantID,
		JobName:      summary.JobName,
		TaskType:     summary.TaskType,
		Status:       status,
		StartedAt:    summary.StartedAt,
		CompletedAt:  &completedAt,
		AdsProcessed: summary.Result.Processed(),
		ErrorsCount:  summary.Result.Errors,
		Metadata:     metadata,
	}
}

func (r *Recorder) logRun(jobName string, run ads.HarvestJobRun) {
	r.logger.Info().
		Str("job", jobName).
		Str("status", string(run.Status)).
		Int("processed", run.AdsProcessed).
		Int("errors", run.ErrorsCount).
		Msg("importer: recorded job run")
}
