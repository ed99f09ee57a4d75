package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adharvest"

// Registry is the process-wide Prometheus registry.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// AdsExtracted counts raw candidates produced by the extractors, by payload kind.
var AdsExtracted = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ads_extracted_total",
		Help:      "Raw ad candidates extracted from upstream payloads",
	},
	[]string{"kind"},
)

// AdsRejected counts candidates rejected at normalization (no natural key).
var AdsRejected = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ads_rejected_total",
		Help:      "Candidates rejected at normalization for lacking an external id",
	},
)

// AdsImported counts ads written through the import reconciler, by outcome.
var AdsImported = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ads_imported_total",
		Help:      "Ads written by the import reconciler (outcome: imported|updated)",
	},
	[]string{"outcome"},
)

// ImportErrors counts per-record import failures.
var ImportErrors = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_errors_total",
		Help:      "Per-record import failures absorbed by the reconciler",
	},
)

// RetryAttempts counts retries performed by the backoff executor, by error class.
var RetryAttempts = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retry_attempts_total",
		Help:      "Retry attempts by classified error class",
	},
	[]string{"class"},
)

// HarvestDuration observes end-to-end harvest run duration.
var HarvestDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "harvest_duration_seconds",
		Help:      "Harvest run duration by terminal status",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
	[]string{"status"},
)

// WebhookRequests counts inbound webhook requests by action and result.
var WebhookRequests = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_requests_total",
		Help:      "Inbound webhook requests by action and result",
	},
	[]string{"action", "result"},
)
