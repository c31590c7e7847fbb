// Package metrics provides Prometheus metrics for the federated recommendation service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
	trustBucketStart       = 0.1
	trustBucketWidth       = 0.1
	trustBucketCount       = 10
)

// Manager manages all Prometheus metrics for the fedrec service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Round metrics
	submissions            *prometheus.CounterVec
	roundsAggregated       prometheus.Counter
	aggregationLatency     prometheus.Histogram
	modelVersion           prometheus.Gauge
	bufferedClients        prometheus.Gauge
	zeroTrustFallbacks     prometheus.Counter
	syntheticContributions prometheus.Counter

	// Trust metrics
	registeredClients prometheus.Gauge
	trustUpdates      prometheus.Counter
	trustValues       prometheus.Histogram

	// Recommendation metrics
	recommendations   prometheus.Counter
	recommendLatency  prometheus.Histogram
	coldStarts        prometheus.Counter
	exploredItems     prometheus.Counter
	skippedCandidates prometheus.Counter
	catalogSize       prometheus.Gauge

	// Persistence metrics
	persistenceSaves    prometheus.Counter
	persistenceFailures prometheus.Counter
	persistenceLatency  prometheus.Histogram
	breakerOpen         prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System metrics
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
		namespace:        "fedrec",
		subsystem:        "server",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval returns how often periodic gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

// Enabled reports whether collection is switched on.
func (m *Manager) Enabled() bool {
	return m.enabled
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     buckets,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	ms := m.histogramBuckets

	// Round metrics
	m.submissions = auto.NewCounterVec(
		m.counterOpts("submissions_total", "Weight submissions by outcome"),
		[]string{"outcome"},
	)
	m.roundsAggregated = auto.NewCounter(m.counterOpts("rounds_aggregated_total", "Rounds folded into a new global model version"))
	m.aggregationLatency = auto.NewHistogram(m.histogramOpts("aggregation_latency_milliseconds", "Time spent aggregating one round", ms))
	m.modelVersion = auto.NewGauge(m.gaugeOpts("model_version", "Version of the published global model"))
	m.bufferedClients = auto.NewGauge(m.gaugeOpts("buffered_clients", "Distinct clients buffered in the open round"))
	m.zeroTrustFallbacks = auto.NewCounter(m.counterOpts("zero_trust_fallbacks_total", "Rounds aggregated unweighted because total trust was zero"))
	m.syntheticContributions = auto.NewCounter(m.counterOpts("synthetic_contributions_total", "Simulated noisy contributions injected into rounds"))

	// Trust metrics
	m.registeredClients = auto.NewGauge(m.gaugeOpts("registered_clients", "Clients known to the trust graph"))
	m.trustUpdates = auto.NewCounter(m.counterOpts("trust_updates_total", "Validation signals applied to client trust"))
	m.trustValues = auto.NewHistogram(m.histogramOpts("trust_value", "Distribution of client trust after each change",
		prometheus.LinearBuckets(trustBucketStart, trustBucketWidth, trustBucketCount)))

	// Recommendation metrics
	m.recommendations = auto.NewCounter(m.counterOpts("recommendations_total", "Recommendation requests served"))
	m.recommendLatency = auto.NewHistogram(m.histogramOpts("recommend_latency_milliseconds", "Recommendation latency", ms))
	m.coldStarts = auto.NewCounter(m.counterOpts("cold_starts_total", "Requests served by random sampling for users without history"))
	m.exploredItems = auto.NewCounter(m.counterOpts("explored_items_total", "Items placed into results by exploration"))
	m.skippedCandidates = auto.NewCounter(m.counterOpts("skipped_candidates_total", "Candidates skipped for a mismatched feature dimension"))
	m.catalogSize = auto.NewGauge(m.gaugeOpts("catalog_size", "Candidates in the last loaded catalog"))

	// Persistence metrics
	m.persistenceSaves = auto.NewCounter(m.counterOpts("persistence_saves_total", "Snapshots written to the model store"))
	m.persistenceFailures = auto.NewCounter(m.counterOpts("persistence_failures_total", "Snapshots that could not be queued or written"))
	m.persistenceLatency = auto.NewHistogram(m.histogramOpts("persistence_latency_milliseconds", "Model store write latency", ms))
	m.breakerOpen = auto.NewGauge(m.gaugeOpts("store_breaker_open", "1 when the model store circuit breaker is open"))

	// HTTP metrics
	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", ms),
		[]string{"endpoint", "method", "status_code"},
	)

	// Queue metrics
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Snapshots waiting in the persistence queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum persistence queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Persistence queue utilization ratio (size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Snapshots enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Snapshots dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Snapshots dropped because the queue was full or closed"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds", "Time a snapshot waited in the queue", ms))

	// Worker metrics
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Persistence workers running"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Persistence workers currently writing"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count", "Persistence workers waiting for work"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Worker processing latency", ms))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Worker processing errors"))

	// Error metrics
	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that failed", ms),
		[]string{"component", "error_type"},
	)

	// System metrics
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Allocated heap memory in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds", "Average GC pause time", ms))
}

// Round metrics functions.

// RecordSubmission counts a weight submission by outcome.
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordRoundAggregated increments the aggregated rounds counter.
func RecordRoundAggregated() {
	globalManager.roundsAggregated.Inc()
}

// RecordAggregationLatency records aggregation latency in milliseconds.
func RecordAggregationLatency(latencyMs float64) {
	globalManager.aggregationLatency.Observe(latencyMs)
}

// UpdateModelVersion sets the published model version.
func UpdateModelVersion(version uint64) {
	globalManager.modelVersion.Set(float64(version))
}

// UpdateBufferedClients sets the number of distinct clients in the open round.
func UpdateBufferedClients(count int) {
	globalManager.bufferedClients.Set(float64(count))
}

// RecordZeroTrustFallback counts a round aggregated without trust weights.
func RecordZeroTrustFallback() {
	globalManager.zeroTrustFallbacks.Inc()
}

// RecordSyntheticContribution counts a simulated noisy contribution.
func RecordSyntheticContribution() {
	globalManager.syntheticContributions.Inc()
}

// Trust metrics functions.

// UpdateRegisteredClients sets the number of clients in the trust graph.
func UpdateRegisteredClients(count int) {
	globalManager.registeredClients.Set(float64(count))
}

// RecordTrustUpdate increments the trust updates counter.
func RecordTrustUpdate() {
	globalManager.trustUpdates.Inc()
}

// ObserveTrust records a client's trust after it changed.
func ObserveTrust(trust float64) {
	globalManager.trustValues.Observe(trust)
}

// Recommendation metrics functions.

// RecordRecommendation increments the recommendation counter.
func RecordRecommendation() {
	globalManager.recommendations.Inc()
}

// RecordRecommendLatency records recommendation latency in milliseconds.
func RecordRecommendLatency(latencyMs float64) {
	globalManager.recommendLatency.Observe(latencyMs)
}

// RecordColdStart counts a cold-start recommendation.
func RecordColdStart() {
	globalManager.coldStarts.Inc()
}

// RecordExploredItems adds n explored items.
func RecordExploredItems(n int) {
	globalManager.exploredItems.Add(float64(n))
}

// RecordSkippedCandidates adds n skipped candidates.
func RecordSkippedCandidates(n int) {
	globalManager.skippedCandidates.Add(float64(n))
}

// UpdateCatalogSize sets the size of the last loaded catalog.
func UpdateCatalogSize(n int) {
	globalManager.catalogSize.Set(float64(n))
}

// Persistence metrics functions.

// RecordPersistenceSave increments the saved snapshots counter.
func RecordPersistenceSave() {
	globalManager.persistenceSaves.Inc()
}

// RecordPersistenceFailure increments the persistence failures counter.
func RecordPersistenceFailure() {
	globalManager.persistenceFailures.Inc()
}

// RecordPersistenceLatency records a model store write in milliseconds.
func RecordPersistenceLatency(latencyMs float64) {
	globalManager.persistenceLatency.Observe(latencyMs)
}

// UpdateBreakerOpen records whether the store breaker is open.
func UpdateBreakerOpen(open bool) {
	v := 0.0
	if open {
		v = 1
	}
	globalManager.breakerOpen.Set(v)
}

// HTTP metrics functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue metrics functions.

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

// Worker metrics functions.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

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

// Error metrics functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System metrics functions.

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

// RefreshInterval returns the refresh interval of the global manager.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// Enabled reports whether the global manager's periodic gauges should be refreshed.
func Enabled() bool {
	return globalManager.enabled
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
