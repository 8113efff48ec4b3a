package completer

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_completer_requests_total",
			Help: "Total number of batch completion requests",
		},
		[]string{"status", "model"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_completer_request_duration_seconds",
			Help:    "Duration of batch completion requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Batch metrics
	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prompt_completer_batch_size",
			Help:    "Number of prompt rows per batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	rowsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prompt_completer_rows_processed_total",
			Help: "Total number of prompt rows processed",
		},
	)

	// Error metrics
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_completer_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"error_type"},
	)

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prompt_completer_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	circuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_completer_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"name"},
	)

	// Retry metrics
	retryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prompt_completer_retry_attempts",
			Help:    "Number of retry attempts per request",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	retryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_completer_retry_total",
			Help: "Total number of retries by reason",
		},
		[]string{"reason"},
	)

	// API metrics
	apiCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_completer_api_call_duration_seconds",
			Help:    "Duration of API calls to OpenAI",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	apiTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_completer_api_tokens_used_total",
			Help: "Total number of tokens used in API calls",
		},
		[]string{"type"}, // prompt, completion, total
	)

	// Completion length distribution
	completionChars = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prompt_completer_completion_chars",
			Help:    "Distribution of completion lengths in characters",
			Buckets: []float64{0, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	// Concurrent processing metrics
	concurrentRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prompt_completer_concurrent_requests",
			Help: "Number of concurrent requests being processed",
		},
	)

	queuedRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prompt_completer_queued_requests",
			Help: "Number of requests waiting in queue",
		},
	)
)

// MetricsRecorder provides methods to record metrics
type MetricsRecorder struct {
	enabled bool
}

// NewMetricsRecorder creates a new metrics recorder
func NewMetricsRecorder(enabled bool) *MetricsRecorder {
	return &MetricsRecorder{enabled: enabled}
}

// RecordRequest records a request metric
func (m *MetricsRecorder) RecordRequest(status string, model string) {
	if !m.enabled {
		return
	}
	requestsTotal.WithLabelValues(status, model).Inc()
}

// RecordRequestDuration records request duration
func (m *MetricsRecorder) RecordRequestDuration(seconds float64, model string) {
	if !m.enabled {
		return
	}
	requestDuration.WithLabelValues(model).Observe(seconds)
}

// RecordBatchSize records the size of a batch
func (m *MetricsRecorder) RecordBatchSize(size int) {
	if !m.enabled {
		return
	}
	batchSize.Observe(float64(size))
}

// RecordRowsProcessed records the number of rows processed
func (m *MetricsRecorder) RecordRowsProcessed(count int) {
	if !m.enabled {
		return
	}
	rowsProcessed.Add(float64(count))
}

// RecordError records an error
func (m *MetricsRecorder) RecordError(errorType string) {
	if !m.enabled {
		return
	}
	errorsTotal.WithLabelValues(errorType).Inc()
}

// RecordCircuitBreakerState records circuit breaker state
func (m *MetricsRecorder) RecordCircuitBreakerState(name string, state int) {
	if !m.enabled {
		return
	}
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *MetricsRecorder) RecordCircuitBreakerTrip(name string) {
	if !m.enabled {
		return
	}
	circuitBreakerTrips.WithLabelValues(name).Inc()
}

// RecordRetryAttempt records retry attempts
func (m *MetricsRecorder) RecordRetryAttempt(attempts int) {
	if !m.enabled {
		return
	}
	retryAttempts.Observe(float64(attempts))
}

// RecordRetry records a retry
func (m *MetricsRecorder) RecordRetry(reason string) {
	if !m.enabled {
		return
	}
	retryTotal.WithLabelValues(reason).Inc()
}

// RecordAPICall records an API call duration
func (m *MetricsRecorder) RecordAPICall(endpoint string, status string, seconds float64) {
	if !m.enabled {
		return
	}
	apiCallDuration.WithLabelValues(endpoint, status).Observe(seconds)
}

// RecordTokensUsed records tokens used
func (m *MetricsRecorder) RecordTokensUsed(tokenType string, count int) {
	if !m.enabled {
		return
	}
	apiTokensUsed.WithLabelValues(tokenType).Add(float64(count))
}

// RecordCompletionChars records the length of a completion
func (m *MetricsRecorder) RecordCompletionChars(chars int) {
	if !m.enabled {
		return
	}
	completionChars.Observe(float64(chars))
}

// RecordConcurrentRequests updates concurrent request count
func (m *MetricsRecorder) RecordConcurrentRequests(delta float64) {
	if !m.enabled {
		return
	}
	concurrentRequests.Add(delta)
}

// RecordQueuedRequests updates queued request count
func (m *MetricsRecorder) RecordQueuedRequests(delta float64) {
	if !m.enabled {
		return
	}
	queuedRequests.Add(delta)
}

// GetMetricsHandler returns an HTTP handler for Prometheus metrics
func GetMetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RegisterCustomMetrics allows registration of custom metrics
func RegisterCustomMetrics(collector prometheus.Collector) error {
	return prometheus.Register(collector)
}
