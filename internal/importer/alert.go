package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/domain/ads"
)

const alertTimeout = 5 * time.Second

// Alerter fans failed and partial runs out to an external webhook so an
// operator can step in. Delivery is fire-and-forget: the pipeline never
// waits on it and a delivery failure is only logged.
type Alerter struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewAlerter builds an alerter posting to url. An empty url disables it.
func NewAlerter(url string, logger zerolog.Logger) *Alerter {
	return &Alerter{
		url:    url,
		client: &http.Client{Timeout: alertTimeout},
		logger: logger,
	}
}

type alertPayload struct {
	JobName      string `json:"job_name"`
	TenantID     string `json:"tenant_id,omitempty"`
	Status       string `json:"status"`
	AdsProcessed int    `json:"ads_processed"`
	Errors       int    `json:"errors"`
	FatalError   string `json:"fatal_error,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// Notify posts an alert for a run that did not complete cleanly. Safe on a
// nil receiver; runs that completed are ignored.
func (a *Alerter) Notify(jobName string, run ads.HarvestJobRun) {
	if a == nil || a.url == "" {
		return
	}
	if run.Status != ads.RunFailed && run.Status != ads.RunPartial {
		return
	}

	payload := alertPayload{
		JobName:      jobName,
		TenantID:     run.TenantID,
		Status:       string(run.Status),
		AdsProcessed: run.AdsProcessed,
		Errors:       run.ErrorsCount,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if fatal, ok := run.Metadata["fatal_error"].(string); ok {
		payload.FatalError = fatal
	}

	go a.post(payload)
}

func (a *Alerter) post(payload alertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		a.logger.Warn().Err(err).Msg("importer: building alert request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn().Err(err).Str("job", payload.JobName).
			Msg("importer: alert delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		a.logger.Warn().Int("status", resp.StatusCode).Str("job", payload.JobName).
			Msg("importer: alert endpoint rejected payload")
	}
}
