package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adscope/harvester/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func get(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhook", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitEnforcesBurst(t *testing.T) {
	cfg := config.RateLimitConfig{WebhookPerMinute: 3}
	handler := RateLimit(cfg, TierWebhook)(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(handler, "10.0.0.1:1234").Code)
	}

	rec := get(handler, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitIsPerClient(t *testing.T) {
	cfg := config.RateLimitConfig{WebhookPerMinute: 1}
	handler := RateLimit(cfg, TierWebhook)(okHandler())

	assert.Equal(t, http.StatusOK, get(handler, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(handler, "10.0.0.1:9999").Code,
		"same host, different port shares the budget")
	assert.Equal(t, http.StatusOK, get(handler, "10.0.0.2:1234").Code)
}

func TestRateLimitZeroLimitDisables(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{}, TierWebhook)(okHandler())

	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, get(handler, "10.0.0.1:1234").Code)
	}
}

func TestRateLimitTiersAreIndependent(t *testing.T) {
	cfg := config.RateLimitConfig{WebhookPerMinute: 1, ImportPerMinute: 1}
	webhook := RateLimit(cfg, TierWebhook)(okHandler())
	imports := RateLimit(cfg, TierImport)(okHandler())

	assert.Equal(t, http.StatusOK, get(webhook, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, get(imports, "10.0.0.1:1").Code,
		"import budget untouched by webhook traffic")
}
