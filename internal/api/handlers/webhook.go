package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/api/problem"
	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/importer"
	"github.com/adscope/harvester/internal/metrics"
)

const secretHeader = "X-Webhook-Secret"

// maxWebhookBody bounds inbound payloads at 5 MiB.
const maxWebhookBody = 5 << 20

// Importer is the batch-import surface the handlers drive.
type Importer interface {
	ImportBatch(ctx context.Context, records []ads.AdRecord, tenantID string) importer.Result
}

// WebhookHandler accepts push-style ad deliveries from external automations.
type WebhookHandler struct {
	importer Importer
	recorder *importer.Recorder
	secret   string
	env      string
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewWebhookHandler(imp Importer, recorder *importer.Recorder, secret, env string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		importer: imp,
		recorder: recorder,
		secret:   secret,
		env:      env,
		validate: validator.New(),
		logger:   logger,
	}
}

type webhookRequest struct {
	Action    string             `json:"action" validate:"required,oneof=ping single_import batch_import"`
	TenantID  string             `json:"tenant_id"`
	Country   string             `json:"country"`
	ScraperID string             `json:"scraper_id"`
	Ad        ads.RawCandidate   `json:"ad"`
	Ads       []ads.RawCandidate `json:"ads"`
	Metadata  map[string]any     `json:"metadata"`
}

type webhookResponse struct {
	Success   bool     `json:"success"`
	Action    string   `json:"action"`
	Message   string   `json:"message,omitempty"`
	Imported  int      `json:"imported"`
	Updated   int      `json:"updated"`
	Errors    int      `json:"errors"`
	Details   []string `json:"details,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// Receive handles POST /api/v1/webhook. Authentication is checked before
// the body is read: an invalid secret produces a 401 with zero writes.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		metrics.WebhookRequests.WithLabelValues("unknown", "unauthorized").Inc()
		problem.Write(w, r, http.StatusUnauthorized, "about:blank", "Invalid webhook secret",
			fmt.Errorf("webhook secret mismatch"), h.env)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Unreadable request body", err, h.env)
		return
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		metrics.WebhookRequests.WithLabelValues("unknown", "bad_request").Inc()
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Malformed JSON payload", err, h.env)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		metrics.WebhookRequests.WithLabelValues(req.Action, "bad_request").Inc()
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Invalid webhook payload", err, h.env)
		return
	}

	if req.Action == "ping" {
		metrics.WebhookRequests.WithLabelValues("ping", "ok").Inc()
		writeJSON(w, http.StatusOK, webhookResponse{
			Success:   true,
			Action:    "ping",
			Message:   "pong",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	// Imports need an explicit tenant. There is no fallback tenant: a
	// payload that cannot name its owner is rejected before any write.
	if req.TenantID == "" {
		metrics.WebhookRequests.WithLabelValues(req.Action, "bad_request").Inc()
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Missing tenant",
			fmt.Errorf("tenant_id is required for %s", req.Action), h.env)
		return
	}

	candidates := req.Ads
	if req.Action == "single_import" {
		if req.Ad == nil {
			problem.Write(w, r, http.StatusBadRequest, "about:blank", "Missing ad",
				fmt.Errorf("single_import requires an ad object"), h.env)
			return
		}
		candidates = []ads.RawCandidate{req.Ad}
	}
	if len(candidates) == 0 {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Empty batch",
			fmt.Errorf("batch_import requires a non-empty ads array"), h.env)
		return
	}

	startedAt := time.Now().UTC()
	defaults := ads.Defaults{Country: req.Country}
	records := make([]ads.AdRecord, 0, len(candidates))
	var result importer.Result
	for _, candidate := range candidates {
		record, normErr := ads.Normalize(candidate, ads.SourceWebhook, defaults)
		if normErr != nil {
			result.Errors++
			result.ErrorDetails = append(result.ErrorDetails, normErr.Error())
			metrics.AdsRejected.Inc()
			continue
		}
		records = append(records, record)
	}

	result.Merge(h.importer.ImportBatch(r.Context(), records, req.TenantID))

	metadata := map[string]any{"action": req.Action, "received": len(candidates)}
	if req.ScraperID != "" {
		metadata["scraper_id"] = req.ScraperID
	}
	if len(req.Metadata) > 0 {
		metadata["client_metadata"] = req.Metadata
	}

	h.recorder.Record(r.Context(), importer.RunSummary{
		TenantID:    req.TenantID,
		JobName:     "webhook:" + req.Action,
		TaskType:    "webhook",
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
		Result:      result,
		Metadata:    metadata,
	})

	metrics.WebhookRequests.WithLabelValues(req.Action, "ok").Inc()
	writeJSON(w, http.StatusOK, webhookResponse{
		Success:   result.Errors == 0,
		Action:    req.Action,
		Imported:  result.Imported,
		Updated:   result.Updated,
		Errors:    result.Errors,
		Details:   result.ErrorDetails,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// authorized compares the shared secret in constant time. A deployment
// without a configured secret accepts everything; that is logged once per
// request so it cannot pass unnoticed outside development.
func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		h.logger.Warn().Msg("webhook: no secret configured, accepting unauthenticated request")
		return true
	}
	provided := r.Header.Get(secretHeader)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
