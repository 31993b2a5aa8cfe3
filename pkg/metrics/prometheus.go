package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "corrpull"

// Recorder implements domain.repository.Metrics and the HTTP observer on Prometheus.
type Recorder struct {
	fetches      *prometheus.CounterVec
	skips        *prometheus.CounterVec
	correlations *prometheus.CounterVec
	ranked       *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec

	httpLatency  *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
}

// New creates a recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Recorder{
		fetches:      counter("series", "fetches_total", "Series retrievals by origin and outcome.", "source", "result"),
		skips:        counter("engine", "skipped_total", "Candidates or pairs skipped during a correlation pass.", "reason"),
		correlations: counter("engine", "correlations_total", "Coefficients written per window.", "window"),
		ranked:       counter("reducer", "ranked_candidates_total", "Candidates appended to ranked lists.", "side"),
		errorsTotal:  counter("", "errors_total", "Errors by stage.", "type"),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of whole operations such as a correlation job.",
			// jobs over a large universe run for minutes
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"operation"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "latency_seconds",
			Help:      "Latency of API endpoints.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		httpRequests: counter("http", "requests_total", "API requests by endpoint and status class.", "endpoint", "class"),
	}
}

// RecordFetch counts one series retrieval. result is hit, miss, download, store or no_data.
func (r *Recorder) RecordFetch(source, result string) {
	r.fetches.WithLabelValues(source, result).Inc()
}

func (r *Recorder) RecordSkip(reason string) {
	r.skips.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordCorrelations(window string, n int) {
	r.correlations.WithLabelValues(window).Add(float64(n))
}

func (r *Recorder) RecordRanked(side string, n int) {
	r.ranked.WithLabelValues(side).Add(float64(n))
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// ObserveHTTP records one finished API request.
func (r *Recorder) ObserveHTTP(endpoint string, status int, seconds float64) {
	r.httpLatency.WithLabelValues(endpoint).Observe(seconds)
	r.httpRequests.WithLabelValues(endpoint, statusClass(status)).Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
