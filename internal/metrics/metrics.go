// Package metrics holds the Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "insight_pipeline_build_info",
			Help: "Build information of the insight pipeline",
		},
		[]string{"version", "commit", "date"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_pipeline_runs_total",
			Help: "Total number of pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "insight_pipeline_runs_in_flight",
			Help: "Number of pipeline runs currently executing",
		},
	)

	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_pipeline_retries_total",
			Help: "Total number of planner re-entries after a not valid verdict",
		},
	)

	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_pipeline_verdicts_total",
			Help: "Total number of validation verdicts",
		},
		[]string{"verdict"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	StageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_pipeline_stage_failures_total",
			Help: "Total number of stage invocations that returned a diagnostic error",
		},
		[]string{"stage"},
	)

	DelegateCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_pipeline_delegate_calls_total",
			Help: "Total number of language model calls by tier and result",
		},
		[]string{"tier", "result"},
	)

	DelegateCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_pipeline_delegate_call_duration_seconds",
			Help:    "Duration of language model calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"tier"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_pipeline_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_pipeline_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// ObserveDelegateCall records one language model call.
func ObserveDelegateCall(tier string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DelegateCallsTotal.WithLabelValues(tier, result).Inc()
	DelegateCallDuration.WithLabelValues(tier).Observe(elapsed.Seconds())
}

// ObserveStage records one stage invocation.
func ObserveStage(stage string, elapsed time.Duration, failed bool) {
	StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if failed {
		StageFailuresTotal.WithLabelValues(stage).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request counts and durations keyed by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// ServeMux patterns carry the method prefix ("GET /run")
		path := r.Pattern
		if i := strings.IndexByte(path, ' '); i >= 0 {
			path = path[i+1:]
		}
		if path == "" {
			path = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
