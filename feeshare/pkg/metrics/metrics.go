package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feeshare_build_info",
			Help: "Build information of the fee sharing engine",
		},
		[]string{"version", "commit", "date"},
	)

	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeshare_batch_runs_total",
			Help: "Total number of distribution batch runs",
		},
		[]string{"trigger", "status"},
	)

	BatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feeshare_batch_run_duration_seconds",
			Help:    "Duration of distribution batch runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~2048s (~34 minutes)
		},
	)

	BatchSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeshare_batch_skipped_total",
			Help: "Total number of scheduled ticks skipped because a run was in progress",
		},
	)

	AssetOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeshare_asset_outcomes_total",
			Help: "Total number of per-asset batch outcomes",
		},
		[]string{"status"},
	)

	DistributionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeshare_distributions_total",
			Help: "Total number of creator fee distributions",
		},
		[]string{"status"},
	)

	DistributedLamportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeshare_distributed_lamports_total",
			Help: "Total lamports distributed to shareholders",
		},
	)

	BuybacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeshare_buybacks_total",
			Help: "Total number of buyback-and-burn executions",
		},
		[]string{"status"},
	)

	TransactionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeshare_transaction_attempts_total",
			Help: "Total number of transaction submission attempts",
		},
		[]string{"kind", "status"},
	)

	DegradedReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeshare_degraded_reads_total",
			Help: "Total number of chain reads that fell back to a default value",
		},
		[]string{"read"},
	)

	AuditWriteErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeshare_audit_write_errors_total",
			Help: "Total number of audit events that failed to persist",
		},
	)

	PanicsRecoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeshare_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeshare_http_requests_total",
			Help: "Total number of admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feeshare_http_request_duration_seconds",
			Help:    "Duration of admin HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
