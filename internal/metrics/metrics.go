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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextbill_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nextbill_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextbill_refreshes_total",
			Help: "Notification refreshes by mode and result",
		},
		[]string{"mode", "result"},
	)

	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextbill_mutations_total",
			Help: "Notification and preference mutations by operation and result",
		},
		[]string{"op", "result"},
	)

	rollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextbill_rollbacks_total",
			Help: "Optimistic mutations rolled back after an upstream failure",
		},
		[]string{"op"},
	)

	remindersDerived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nextbill_reminders_derived_total",
			Help: "Payment reminders derived locally after dedup",
		},
	)

	alertsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextbill_alerts_enqueued_total",
			Help: "Alert emails enqueued by threshold",
		},
		[]string{"alert_type"},
	)

	alertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextbill_alerts_sent_total",
			Help: "Alert emails sent by result",
		},
		[]string{"result"},
	)

	cacheRestores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextbill_cache_restores_total",
			Help: "Session cache restores at startup by result",
		},
		[]string{"result"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextbill_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"user_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRefresh records one refresh attempt. Result is ok, error, or stale.
func RecordRefresh(mode, result string) {
	refreshesTotal.WithLabelValues(mode, result).Inc()
}

// RecordMutation records a notification or preference mutation outcome.
func RecordMutation(op, result string) {
	mutationsTotal.WithLabelValues(op, result).Inc()
}

// RecordRollback records a rolled-back optimistic mutation.
func RecordRollback(op string) {
	rollbacksTotal.WithLabelValues(op).Inc()
}

// RecordRemindersDerived adds n to the derived reminder counter.
func RecordRemindersDerived(n int) {
	remindersDerived.Add(float64(n))
}

// RecordAlertEnqueued records one alert event put on the queue.
func RecordAlertEnqueued(alertType string) {
	alertsEnqueued.WithLabelValues(alertType).Inc()
}

// RecordAlertSent records one alert delivery attempt. Result is ok or error.
func RecordAlertSent(result string) {
	alertsSent.WithLabelValues(result).Inc()
}

// RecordCacheRestore records a startup cache restore. Result is hit, miss,
// or corrupt.
func RecordCacheRestore(result string) {
	cacheRestores.WithLabelValues(result).Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(userID string) {
	rateLimitRejections.WithLabelValues(userID).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
