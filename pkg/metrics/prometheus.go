// Package metrics provides Prometheus metrics for the skillcast prediction service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the skillcast service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Prediction Metrics - What really matters for the dual-engine pipeline
	predictionsTotal    *prometheus.CounterVec
	predictionLatency   prometheus.Histogram
	engineFallbacks     prometheus.Counter
	batchSize           prometheus.Histogram
	predictionErrors    prometheus.Counter
	explanationsTotal   *prometheus.CounterVec

	// Training Metrics
	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	datasetRows      prometheus.Gauge
	droppedRows      prometheus.Counter

	// Model Lifecycle Metrics
	promotions        prometheus.Counter
	promotionFailures prometheus.Counter
	modelLoaded       prometheus.Gauge
	modelLoadFailures prometheus.Counter
	modelReloads      prometheus.Counter

	// Queue Metrics - Recalculation job queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueues    prometheus.Counter
	queueDequeues    prometheus.Counter
	queueEnqueueErrs prometheus.Counter

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
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
		namespace:        "skillcast",
		subsystem:        "prediction",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.predictionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predictions_total",
		Help:      "Total predictions produced, labeled by the engine actually executed.",
	}, []string{"engine"})

	m.predictionLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "prediction_latency_ms",
		Help:      "Latency of single predictions in milliseconds.",
		Buckets:   m.histogramBuckets,
	})

	m.engineFallbacks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "engine_fallbacks_total",
		Help:      "Selection decisions that fell back to the rule engine because the learned model was unavailable.",
	})

	m.batchSize = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_size",
		Help:      "Size of batch prediction requests.",
		Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000},
	})

	m.predictionErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "prediction_errors_total",
		Help:      "Per-row prediction failures captured during single or batch prediction.",
	})

	m.explanationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "explanations_total",
		Help:      "Explanations generated, labeled by explainer variant.",
	}, []string{"variant"})

	m.trainingRuns = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "training",
		Name:      "runs_total",
		Help:      "Training runs, labeled by terminal status.",
	}, []string{"status"})

	m.trainingDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "training",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of training runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	m.datasetRows = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "training",
		Name:      "dataset_rows",
		Help:      "Usable rows in the most recently loaded dataset.",
	})

	m.droppedRows = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "training",
		Name:      "dropped_rows_total",
		Help:      "Dataset rows dropped for malformed values or unknown labels.",
	})

	m.promotions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "registry",
		Name:      "promotions_total",
		Help:      "Model versions promoted to production.",
	})

	m.promotionFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "registry",
		Name:      "promotion_failures_total",
		Help:      "Promotion attempts that failed after a completed training run.",
	})

	m.modelLoaded = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "model",
		Name:      "loaded",
		Help:      "1 when a learned model artifact is loaded and serving, 0 otherwise.",
	})

	m.modelLoadFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "model",
		Name:      "load_failures_total",
		Help:      "Failed attempts to load the model artifact.",
	})

	m.modelReloads = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "model",
		Name:      "reloads_total",
		Help:      "Explicit invalidate-and-reload operations.",
	})

	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "size",
		Help:      "Current number of queued prediction jobs.",
	})

	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "capacity",
		Help:      "Configured queue capacity.",
	})

	m.queueUtilization = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "utilization",
		Help:      "Queue utilization ratio (size/capacity).",
	})

	m.queueEnqueues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "enqueues_total",
		Help:      "Jobs enqueued.",
	})

	m.queueDequeues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "dequeues_total",
		Help:      "Jobs dequeued by workers.",
	})

	m.queueEnqueueErrs = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "enqueue_errors_total",
		Help:      "Enqueue attempts rejected by a full or closed queue.",
	})

	m.workerCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "count",
		Help:      "Number of prediction workers in the pool.",
	})

	m.workerProcessingLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "processing_latency_ms",
		Help:      "Per-job processing latency in milliseconds.",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "errors_total",
		Help:      "Jobs that failed in the worker pool.",
	})
}

// Handler returns an http.Handler exposing the custom registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

// Package-level helpers delegating to the global manager.

func RecordPrediction(engine string) {
	globalManager.predictionsTotal.WithLabelValues(engine).Inc()
}

func RecordPredictionLatency(ms float64) {
	globalManager.predictionLatency.Observe(ms)
}

func RecordEngineFallback() {
	globalManager.engineFallbacks.Inc()
}

func RecordBatchSize(n int) {
	globalManager.batchSize.Observe(float64(n))
}

func RecordPredictionError() {
	globalManager.predictionErrors.Inc()
}

func RecordExplanation(variant string) {
	globalManager.explanationsTotal.WithLabelValues(variant).Inc()
}

func RecordTrainingRun(status string) {
	globalManager.trainingRuns.WithLabelValues(status).Inc()
}

func RecordTrainingDuration(seconds float64) {
	globalManager.trainingDuration.Observe(seconds)
}

func UpdateDatasetRows(n int) {
	globalManager.datasetRows.Set(float64(n))
}

func RecordDroppedRows(n int) {
	globalManager.droppedRows.Add(float64(n))
}

func RecordPromotion() {
	globalManager.promotions.Inc()
}

func RecordPromotionFailure() {
	globalManager.promotionFailures.Inc()
}

func UpdateModelLoaded(loaded bool) {
	if loaded {
		globalManager.modelLoaded.Set(1)
		return
	}
	globalManager.modelLoaded.Set(0)
}

func RecordModelLoadFailure() {
	globalManager.modelLoadFailures.Inc()
}

func RecordModelReload() {
	globalManager.modelReloads.Inc()
}

func UpdateQueueSize(n int) {
	globalManager.queueSize.Set(float64(n))
}

func UpdateQueueCapacity(n int) {
	globalManager.queueCapacity.Set(float64(n))
}

func UpdateQueueUtilization(ratio float64) {
	globalManager.queueUtilization.Set(ratio)
}

func RecordEnqueue() {
	globalManager.queueEnqueues.Inc()
}

func RecordDequeue() {
	globalManager.queueDequeues.Inc()
}

func RecordEnqueueError() {
	globalManager.queueEnqueueErrs.Inc()
}

func UpdateWorkerCount(n int) {
	globalManager.workerCount.Set(float64(n))
}

func RecordWorkerProcessingLatency(ms float64) {
	globalManager.workerProcessingLatency.Observe(ms)
}

func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}
