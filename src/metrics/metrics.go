// Package metrics provides Prometheus instrumentation for the backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gainfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gainfolio_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "path"})

	// TaxComputationsTotal counts full report computations, partitioned by
	// report kind. Cache hits do not count.
	TaxComputationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gainfolio_tax_computations_total",
		Help: "Tax reports computed from scratch",
	}, []string{"report"})

	// ReportCacheHitsTotal counts report requests served from the cache.
	ReportCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gainfolio_report_cache_hits_total",
		Help: "Report requests served from the cache",
	}, []string{"report"})

	// PriceLookupsTotal counts market price fetches by provider and outcome.
	PriceLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gainfolio_price_lookups_total",
		Help: "Market price lookups against external providers",
	}, []string{"provider", "status"})

	// ImportedRowsTotal counts transaction rows accepted from CSV imports.
	ImportedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gainfolio_imported_rows_total",
		Help: "Transaction rows accepted from CSV imports",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// The matched route pattern keeps label cardinality bounded;
		// transaction detail routes carry UUIDs in the raw path.
		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
