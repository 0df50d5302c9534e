// Package metrics holds the Prometheus collectors for the acquisition pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gscout"

// Recorder exposes the pipeline's counters and histograms.
type Recorder struct {
	registry *prometheus.Registry

	fetchAttempts       *prometheus.CounterVec
	fetchFailures       *prometheus.CounterVec
	batches             prometheus.Counter
	candidatesEvaluated prometheus.Counter
	batchDuration       prometheus.Histogram
	trainings           *prometheus.CounterVec
	trainingDuration    prometheus.Histogram
	httpRequests        *prometheus.CounterVec
}

// Private registry so the default Go collectors stay out of /metrics.
var defaultRecorder = New(prometheus.NewRegistry()) //nolint:gochecknoglobals

// Default returns the process-wide recorder.
func Default() *Recorder {
	return defaultRecorder
}

// New registers a fresh set of collectors on registry.
func New(registry *prometheus.Registry) *Recorder {
	auto := promauto.With(registry)
	return &Recorder{
		registry: registry,
		fetchAttempts: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "GitHub HTTP attempts by response status (0 for network faults)",
		}, []string{"status"}),
		fetchFailures: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Fetches that failed for good, by kind",
		}, []string{"kind"}),
		batches: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Evaluation batches processed",
		}),
		candidatesEvaluated: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_evaluated_total",
			Help:      "Candidates that survived filtering and were scored by the model",
		}),
		batchDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one evaluation batch",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		trainings: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_trainings_total",
			Help:      "Model training attempts by result",
		}, []string{"result"}),
		trainingDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_training_duration_seconds",
			Help:      "Wall time of a successful training",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method, route and status",
		}, []string{"method", "route", "status"}),
	}
}

func (r *Recorder) FetchAttempt(status int) {
	r.fetchAttempts.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (r *Recorder) FetchFailure(kind string) {
	r.fetchFailures.WithLabelValues(kind).Inc()
}

// Batch records one finished evaluation batch.
func (r *Recorder) Batch(evaluated int, elapsed time.Duration) {
	r.batches.Inc()
	r.candidatesEvaluated.Add(float64(evaluated))
	r.batchDuration.Observe(elapsed.Seconds())
}

// Training records a training attempt; result is "success", "no_labeled_data" or "error".
func (r *Recorder) Training(result string, elapsed time.Duration) {
	r.trainings.WithLabelValues(result).Inc()
	if result == "success" {
		r.trainingDuration.Observe(elapsed.Seconds())
	}
}

func (r *Recorder) HTTPRequest(method, route string, status int) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry, mostly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}
