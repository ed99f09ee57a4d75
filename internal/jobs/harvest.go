package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/adscope/harvester/internal/harvest"
)

// HarvestArgs enqueues one harvest run for a named target.
type HarvestArgs struct {
	Target   string `json:"target"`
	TenantID string `json:"tenant_id"`
}

func (HarvestArgs) Kind() string { return JobKindHarvest }

func (HarvestArgs) InsertOpts() river.InsertOpts {
	opts := InsertOptsForKind(JobKindHarvest)
	opts.Queue = "harvest"
	return opts
}

// HarvestWorker resolves the named target and drives a full controller run.
type HarvestWorker struct {
	river.WorkerDefaults[HarvestArgs]
	Controller *harvest.Controller
	TargetsDir string
	Logger     *slog.Logger
}

func (HarvestWorker) Kind() string { return JobKindHarvest }

func (w HarvestWorker) Work(ctx context.Context, job *river.Job[HarvestArgs]) error {
	if w.Controller == nil {
		return fmt.Errorf("harvest controller not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	targets, err := harvest.LoadTargets(w.TargetsDir)
	if err != nil {
		return fmt.Errorf("load targets: %w", err)
	}
	target, err := harvest.FindTarget(targets, job.Args.Target)
	if err != nil {
		return err
	}
	if !target.IsEnabled() {
		logger.Info("skipping disabled harvest target", "target", target.Name)
		return nil
	}

	start := time.Now()
	result, err := w.Controller.Run(ctx, target, job.Args.TenantID)
	if err != nil {
		return fmt.Errorf("harvest %q: %w", target.Name, err)
	}

	logger.Info("harvest job completed",
		"target", target.Name,
		"imported", result.Imported,
		"updated", result.Updated,
		"errors", result.Errors,
		"duration_seconds", time.Since(start).Seconds(),
	)
	return nil
}
