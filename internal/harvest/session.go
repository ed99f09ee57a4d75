// Package harvest drives collection runs against the public ad library. A
// Driver opens a Session for a target; the controller pulls payload pages
// from the session, extracts and normalizes candidates, and hands batches
// to the importer. The run moves through an explicit state machine so logs
// and failures name the phase they happened in.
package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/importer"
	"github.com/adscope/harvester/internal/metrics"
	"github.com/adscope/harvester/internal/retry"
	"github.com/adscope/harvester/internal/telemetry"
)

// State is the controller's phase within one run.
type State string

const (
	StateIdle           State = "idle"
	StateSessionOpening State = "session_opening"
	StatePaginating     State = "paginating"
	StateDraining       State = "draining"
	StateFinalizing     State = "finalizing"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// Session is one open pagination stream for a target.
type Session interface {
	// LoadMore advances the stream one step and returns the raw payloads it
	// produced. more=false means the stream is exhausted.
	LoadMore(ctx context.Context) (payloads [][]byte, more bool, err error)
	Close() error
}

// Driver opens sessions. The browser driver paginates by scrolling a live
// page; the static driver fetches rendered markup once.
type Driver interface {
	Open(ctx context.Context, target Target) (Session, error)
}

// Extractor turns one raw payload into zero or more candidates.
type Extractor interface {
	Extract(payload []byte) []ads.RawCandidate
}

// Importer is the slice of the reconciler the controller needs.
type Importer interface {
	ImportBatch(ctx context.Context, records []ads.AdRecord, tenantID string) importer.Result
}

// Controller runs harvests end to end: open, paginate, normalize, import in
// batches, record provenance.
type Controller struct {
	driver    Driver
	extractor Extractor
	importer  Importer
	recorder  *importer.Recorder
	batchSize int
	policy    retry.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

func NewController(driver Driver, extractor Extractor, imp Importer, recorder *importer.Recorder, batchSize int, logger zerolog.Logger) *Controller {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Controller{
		driver:    driver,
		extractor: extractor,
		importer:  imp,
		recorder:  recorder,
		batchSize: batchSize,
		policy:    retry.Interactive,
		logger:    logger,
		now:       time.Now,
	}
}

// Run harvests one target for tenantID. The returned result covers every
// batch imported during the run; err is non-nil only for fatal failures
// (session never opened, pagination died after retries). Per-record import
// failures are absorbed into the result.
func (c *Controller) Run(ctx context.Context, target Target, tenantID string) (importer.Result, error) {
	ctx, span := telemetry.GetTracer("harvest").Start(ctx, "harvest.run")
	span.SetAttributes(
		attribute.String("harvest.target", target.Name),
		attribute.String("harvest.tenant_id", tenantID),
	)
	defer span.End()

	startedAt := c.now().UTC()
	state := StateSessionOpening
	log := c.logger.With().Str("target", target.Name).Str("tenant_id", tenantID).Logger()
	log.Info().Str("state", string(state)).Msg("harvest: opening session")

	runID := c.recorder.Begin(ctx, c.summary(target, tenantID, startedAt, importer.Result{}, nil))

	// A session that cannot open is fatal for the run, with no retry: the
	// failure is environmental (no browser endpoint, robots disallow, bad
	// credential), not a per-page blip.
	session, err := c.driver.Open(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session open failed")
		c.finish(ctx, runID, target, tenantID, startedAt, importer.Result{}, StateFailed, err)
		return importer.Result{}, fmt.Errorf("open session for %q: %w", target.Name, err)
	}
	defer func() { _ = session.Close() }()

	var (
		result    importer.Result
		pending   []ads.AdRecord
		collected int
		rejected  int
		fatal     error
	)
	defaults := ads.Defaults{Country: target.Country}

	state = StatePaginating
	for state == StatePaginating {
		if ctxErr := ctx.Err(); ctxErr != nil {
			fatal = ctxErr
			break
		}

		step, loadErr := retry.Do(ctx, c.policy, retry.Classify, c.observeRetry(log, "load_more"),
			func(ctx context.Context) (loadStep, error) {
				p, m, e := session.LoadMore(ctx)
				return loadStep{payloads: p, more: m}, e
			})
		if loadErr != nil {
			// Whatever was already collected still gets imported below.
			fatal = fmt.Errorf("pagination failed: %w", loadErr)
			break
		}

		for _, payload := range step.payloads {
			candidates := c.extractor.Extract(payload)
			for _, candidate := range candidates {
				record, normErr := ads.Normalize(candidate, ads.SourceScrape, defaults)
				if normErr != nil {
					rejected++
					metrics.AdsRejected.Inc()
					continue
				}
				pending = append(pending, record)
				collected++

				if target.Limit > 0 && collected >= target.Limit {
					state = StateDraining
					break
				}
			}
			if state == StateDraining {
				break
			}
		}

		for len(pending) >= c.batchSize {
			batch := pending[:c.batchSize]
			pending = pending[c.batchSize:]
			result.Merge(c.importer.ImportBatch(ctx, batch, tenantID))
		}

		if state == StateDraining {
			break
		}
		if !step.more {
			state = StateDraining
		}
	}

	state = StateFinalizing
	log.Debug().Str("state", string(state)).Int("pending", len(pending)).Msg("harvest: flushing final batch")
	if len(pending) > 0 {
		result.Merge(c.importer.ImportBatch(ctx, pending, tenantID))
	}

	terminal := StateCompleted
	if fatal != nil && result.Processed() == 0 {
		terminal = StateFailed
	}
	c.finish(ctx, runID, target, tenantID, startedAt, result, terminal, fatal)

	span.SetAttributes(
		attribute.Int("harvest.collected", collected),
		attribute.Int("harvest.imported", result.Imported),
		attribute.Int("harvest.updated", result.Updated),
		attribute.Int("harvest.errors", result.Errors),
	)
	if fatal != nil {
		span.RecordError(fatal)
		span.SetStatus(codes.Error, string(terminal))
	}

	log.Info().
		Str("state", string(terminal)).
		Int("collected", collected).
		Int("rejected", rejected).
		Int("imported", result.Imported).
		Int("updated", result.Updated).
		Int("errors", result.Errors).
		Msg("harvest: run finished")

	return result, fatal
}

type loadStep struct {
	payloads [][]byte
	more     bool
}

func (c *Controller) finish(ctx context.Context, runID string, target Target, tenantID string, startedAt time.Time, result importer.Result, terminal State, fatal error) {
	completedAt := c.now().UTC()
	// The metric is labeled by the audit-row status, not the state machine's
	// terminal state: a fatal abort after salvaged progress counts as partial.
	status := importer.DeriveStatus(result, fatal)
	metrics.HarvestDuration.WithLabelValues(string(status)).Observe(completedAt.Sub(startedAt).Seconds())

	summary := c.summary(target, tenantID, startedAt, result, fatal)
	summary.CompletedAt = completedAt
	c.recorder.Complete(ctx, runID, summary)
}

func (c *Controller) summary(target Target, tenantID string, startedAt time.Time, result importer.Result, fatal error) importer.RunSummary {
	return importer.RunSummary{
		TenantID:  tenantID,
		JobName:   "harvest:" + target.Name,
		TaskType:  "harvest",
		StartedAt: startedAt,
		Result:    result,
		Fatal:     fatal,
		Metadata: map[string]any{
			"target":  target.Name,
			"term":    target.Term,
			"page_id": target.PageID,
		},
	}
}

func (c *Controller) observeRetry(log zerolog.Logger, operation string) retry.OnRetry {
	return func(attempt, maxAttempts int, delay time.Duration, err error) {
		metrics.RetryAttempts.WithLabelValues(string(retry.Classify(err))).Inc()
		log.Warn().
			Str("operation", operation).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("retry_in", delay).
			Err(err).
			Str("hint", retry.Classify(err).Suggestion()).
			Msg("harvest: retrying")
	}
}
