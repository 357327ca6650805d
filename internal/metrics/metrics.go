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
			Name: "habitora_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "habitora_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	remindersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitora_reminders_created_total",
			Help: "Reminders created by kind (AUTOMATICO/MANUAL)",
		},
		[]string{"kind"},
	)

	remindersDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitora_reminders_dispatched_total",
			Help: "Dispatch outcomes by resulting status (ENVIADO/FALLIDO)",
		},
		[]string{"status"},
	)

	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "habitora_dispatch_duration_seconds",
			Help:    "Time spent in one WhatsApp send attempt",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		},
	)

	cycleRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitora_daily_cycle_runs_total",
			Help: "Reminder cycles by outcome (ok, error)",
		},
		[]string{"outcome"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "habitora_daily_cycle_duration_seconds",
			Help:    "Duration of one daily reminder cycle",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitora_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"property_id"},
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

// RecordReminderCreated counts one created reminder.
func RecordReminderCreated(kind string) {
	remindersCreated.WithLabelValues(kind).Inc()
}

// RecordReminderDispatched counts one dispatch outcome.
func RecordReminderDispatched(status string) {
	remindersDispatched.WithLabelValues(status).Inc()
}

// ObserveDispatchDuration records the latency of one send attempt.
func ObserveDispatchDuration(d time.Duration) {
	dispatchDuration.Observe(d.Seconds())
}

// RecordCycle records one reminder cycle and its duration.
func RecordCycle(outcome string, d time.Duration) {
	cycleRuns.WithLabelValues(outcome).Inc()
	cycleDuration.Observe(d.Seconds())
}

// RecordRateLimitRejection records a rate limit rejection.
func RecordRateLimitRejection(propertyID string) {
	rateLimitRejections.WithLabelValues(propertyID).Inc()
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
