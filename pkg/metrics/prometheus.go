// Package metrics provides Prometheus metrics for the passwatch prediction service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Training durations are seconds to minutes, not milliseconds.
var defaultTrainingBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800} //nolint:gochecknoglobals // fixed bucket layout

// Manager manages all Prometheus metrics for the passwatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	trainingBuckets  []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Prediction Metrics
	predictionsTotal    *prometheus.CounterVec
	predictionErrors    *prometheus.CounterVec
	predictionLatency   prometheus.Histogram
	featureBuildLatency *prometheus.HistogramVec
	sinkErrors          *prometheus.CounterVec

	// Training Metrics
	trainingRuns               *prometheus.CounterVec
	trainingSamples            prometheus.Gauge
	trainingSkippedCheckpoints prometheus.Counter
	trainingDroppedLabels      *prometheus.CounterVec
	trainingDuration           prometheus.Histogram
	trainingAccuracy           *prometheus.GaugeVec

	// Model Metrics
	modelLoaded   *prometheus.GaugeVec
	artifactSaves prometheus.Counter
	artifactLoads *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository Metrics
	repositoryRecordsTotal  prometheus.Gauge
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue Metrics - Training job queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "passwatch",
		subsystem:        "predictor",
		histogramBuckets: prometheus.DefBuckets,
		trainingBuckets:  defaultTrainingBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Prediction Metrics
	m.predictionsTotal = auto.NewCounterVec(
		m.counterOpts("predictions_total", "Total number of horizon predictions served by horizon and predicted status"),
		[]string{"horizon", "status"},
	)
	m.predictionErrors = auto.NewCounterVec(
		m.counterOpts("prediction_errors_total", "Total number of failed prediction requests by reason"),
		[]string{"reason"},
	)
	m.predictionLatency = auto.NewHistogram(
		m.histogramOpts("prediction_latency_milliseconds", "End-to-end prediction latency in milliseconds", m.histogramBuckets),
	)
	m.featureBuildLatency = auto.NewHistogramVec(
		m.histogramOpts("feature_build_latency_milliseconds", "Feature builder latency in milliseconds", m.histogramBuckets),
		[]string{"builder"},
	)
	m.sinkErrors = auto.NewCounterVec(
		m.counterOpts("prediction_sink_errors_total", "Total number of prediction sink failures by sink"),
		[]string{"sink"},
	)

	// Training Metrics
	m.trainingRuns = auto.NewCounterVec(
		m.counterOpts("training_runs_total", "Total number of training runs by outcome"),
		[]string{"outcome"},
	)
	m.trainingSamples = auto.NewGauge(
		m.gaugeOpts("training_samples", "Number of aligned samples in the last training run"),
	)
	m.trainingSkippedCheckpoints = auto.NewCounter(
		m.counterOpts("training_skipped_checkpoints_total", "Checkpoints skipped for having too few observations"),
	)
	m.trainingDroppedLabels = auto.NewCounterVec(
		m.counterOpts("training_dropped_labels_total", "Observations dropped during label alignment by reason"),
		[]string{"reason"},
	)
	m.trainingDuration = auto.NewHistogram(
		m.histogramOpts("training_duration_seconds", "Duration of training runs in seconds", m.trainingBuckets),
	)
	m.trainingAccuracy = auto.NewGaugeVec(
		m.gaugeOpts("training_accuracy_ratio", "Held-out accuracy of the last trained model by horizon"),
		[]string{"horizon"},
	)

	// Model Metrics
	m.modelLoaded = auto.NewGaugeVec(
		m.gaugeOpts("model_loaded", "Set to 1 for the artifact version currently serving"),
		[]string{"version"},
	)
	m.artifactSaves = auto.NewCounter(
		m.counterOpts("artifact_saves_total", "Total number of model artifacts persisted"),
	)
	m.artifactLoads = auto.NewCounterVec(
		m.counterOpts("artifact_loads_total", "Total number of model artifact loads by outcome"),
		[]string{"outcome"},
	)

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	// Repository Metrics
	m.repositoryRecordsTotal = auto.NewGauge(
		m.gaugeOpts("repository_records_total", "Total number of observations and signals stored"),
	)
	m.repositoryUpdateLatency = auto.NewHistogram(
		m.histogramOpts("repository_update_latency_milliseconds", "Repository append latency in milliseconds", m.histogramBuckets),
	)
	m.repositoryQueryLatency = auto.NewHistogram(
		m.histogramOpts("repository_query_latency_milliseconds", "Repository range query latency in milliseconds", m.histogramBuckets),
	)

	// Queue Metrics
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current number of queued training requests"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum training queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of training requests enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of training requests dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of enqueue errors"))
	m.queueProcessingLatency = auto.NewHistogram(
		m.histogramOpts("queue_processing_latency_milliseconds", "Time a training request waited in the queue in milliseconds", m.histogramBuckets),
	)

	// Worker Metrics
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of workers currently running a training job"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count", "Number of idle workers"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Worker job processing latency in milliseconds", m.histogramBuckets),
	)
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of worker job errors"))

	// Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// Prediction Metrics Functions.

// RecordPrediction increments the prediction counter for a horizon and predicted status.
func RecordPrediction(horizon, status string) {
	globalManager.predictionsTotal.WithLabelValues(horizon, status).Inc()
}

// RecordPredictionError increments the prediction error counter.
func RecordPredictionError(reason string) {
	globalManager.predictionErrors.WithLabelValues(reason).Inc()
}

// RecordPredictionLatency records prediction latency in milliseconds.
func RecordPredictionLatency(latencyMs float64) {
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordFeatureBuildLatency records one builder's latency in milliseconds.
func RecordFeatureBuildLatency(builder string, latencyMs float64) {
	globalManager.featureBuildLatency.WithLabelValues(builder).Observe(latencyMs)
}

// RecordSinkError increments the failure counter of a prediction sink.
func RecordSinkError(sink string) {
	globalManager.sinkErrors.WithLabelValues(sink).Inc()
}

// Training Metrics Functions.

// RecordTrainingRun increments the training run counter for an outcome.
func RecordTrainingRun(outcome string) {
	globalManager.trainingRuns.WithLabelValues(outcome).Inc()
}

// UpdateTrainingSamples sets the sample count of the last training run.
func UpdateTrainingSamples(n int) {
	globalManager.trainingSamples.Set(float64(n))
}

// RecordTrainingSkippedCheckpoints adds to the skipped checkpoints counter.
func RecordTrainingSkippedCheckpoints(n int) {
	globalManager.trainingSkippedCheckpoints.Add(float64(n))
}

// RecordTrainingDroppedLabels adds to the dropped labels counter.
func RecordTrainingDroppedLabels(reason string, n int) {
	globalManager.trainingDroppedLabels.WithLabelValues(reason).Add(float64(n))
}

// RecordTrainingDuration records a training run's wall time.
func RecordTrainingDuration(d time.Duration) {
	globalManager.trainingDuration.Observe(d.Seconds())
}

// UpdateTrainingAccuracy sets the held-out accuracy for a horizon.
func UpdateTrainingAccuracy(horizon string, accuracy float64) {
	globalManager.trainingAccuracy.WithLabelValues(horizon).Set(accuracy)
}

// Model Metrics Functions.

// UpdateModelLoaded marks version as the serving artifact. An empty version
// clears the gauge.
func UpdateModelLoaded(version string) {
	globalManager.modelLoaded.Reset()
	if version != "" {
		globalManager.modelLoaded.WithLabelValues(version).Set(1)
	}
}

// RecordArtifactSave increments the artifact save counter.
func RecordArtifactSave() {
	globalManager.artifactSaves.Inc()
}

// RecordArtifactLoad increments the artifact load counter for an outcome.
func RecordArtifactLoad(outcome string) {
	globalManager.artifactLoads.WithLabelValues(outcome).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repository Metrics Functions.

// UpdateRepositoryRecordsTotal sets the total number of stored records.
func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

// RecordRepositoryUpdateLatency records repository update operation latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository query operation latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
