// Package api wires the HTTP surface: webhook ingestion, manual import,
// health probes, and metrics.
package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/api/handlers"
	"github.com/adscope/harvester/internal/api/middleware"
	"github.com/adscope/harvester/internal/config"
	"github.com/adscope/harvester/internal/importer"
	"github.com/adscope/harvester/internal/metrics"
	"github.com/adscope/harvester/internal/storage"
)

func NewRouter(cfg config.Config, repo storage.Repository, db handlers.Pinger, logger zerolog.Logger) http.Handler {
	reconciler := importer.NewReconciler(repo.Ads(), repo.Advertisers(), logger)
	recorder := importer.NewRecorder(repo.JobRuns(), logger).
		WithAlerts(importer.NewAlerter(cfg.Webhook.AlertURL, logger))

	webhookHandler := handlers.NewWebhookHandler(reconciler, recorder, cfg.Webhook.Secret, cfg.Environment, logger)
	importHandler := handlers.NewImportHandler(reconciler, recorder, cfg.Environment, logger)

	logRequests := middleware.RequestLogging(logger)
	limitWebhook := middleware.RateLimit(cfg.RateLimit, middleware.TierWebhook)
	limitImport := middleware.RateLimit(cfg.RateLimit, middleware.TierImport)

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(db))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/v1/webhook", methodMux(map[string]http.Handler{
		http.MethodPost: limitWebhook(http.HandlerFunc(webhookHandler.Receive)),
	}))
	mux.Handle("/api/v1/import", methodMux(map[string]http.Handler{
		http.MethodPost: limitImport(http.HandlerFunc(importHandler.Upload)),
	}))

	return logRequests(mux)
}

func methodMux(routes map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := routes[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(routes))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(routes map[string]http.Handler) string {
	methods := make([]string, 0, len(routes))
	for method := range routes {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
