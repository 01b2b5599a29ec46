package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting engine metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Retrieval query throughput and latency
//   - Embedding provider calls by provider and path (primary/fallback)
//   - Vector store operation latencies per backend
//   - Compression passes (importance engine and AI summarization)
//   - Token consumption for summarization requests
//   - Cache hit/miss rates for the embedding and conversation caches
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	start := time.Now()
//	// ... run retrieval ...
//	metrics.RecordRetrieval("success", time.Since(start).Seconds())
type Metrics struct {
	// RetrievalQueries counts retrieval pipeline runs.
	// Labels: status (success|error)
	RetrievalQueries *prometheus.CounterVec

	// RetrievalDuration measures end-to-end retrieval latency in seconds.
	// Labels: status (success|error)
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 2s, 5s, 10s
	RetrievalDuration *prometheus.HistogramVec

	// EmbeddingRequests counts embedding provider calls.
	// Labels: provider, path (primary|fallback), status (success|error)
	EmbeddingRequests *prometheus.CounterVec

	// EmbeddingDuration measures embedding call latency in seconds.
	// Labels: provider
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 2s, 5s, 10s
	EmbeddingDuration *prometheus.HistogramVec

	// StoreOperations counts vector store calls.
	// Labels: operation (insert|batch_insert|search|delete|count), status
	StoreOperations *prometheus.CounterVec

	// StoreOperationDuration measures vector store latency in seconds.
	// Labels: operation
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	StoreOperationDuration *prometheus.HistogramVec

	// CompressionPasses counts history compression runs.
	// Labels: kind (importance|summary|truncation), status (success|error)
	CompressionPasses *prometheus.CounterVec

	// SummaryTokens tracks token consumption of summarization requests.
	// Labels: model, type (prompt|completion)
	SummaryTokens *prometheus.CounterVec

	// CacheEvents counts cache lookups.
	// Labels: cache (embedding|conversation|relevance), event (hit|miss)
	CacheEvents *prometheus.CounterVec

	// ActiveConversations is a gauge of currently cached conversations.
	ActiveConversations prometheus.Gauge

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (retrieval|embedding|store|compress|budget), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry. Call once at startup; they are served by the standard
// prometheus HTTP handler.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics against a specific registerer.
// Tests pass a fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RetrievalQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_retrieval_queries_total",
				Help: "Total number of retrieval pipeline runs by status",
			},
			[]string{"status"},
		),

		RetrievalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engram_retrieval_duration_seconds",
				Help:    "End-to-end retrieval pipeline latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"status"},
		),

		EmbeddingRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_embedding_requests_total",
				Help: "Total number of embedding provider calls by provider, path, and status",
			},
			[]string{"provider", "path", "status"},
		),

		EmbeddingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engram_embedding_duration_seconds",
				Help:    "Embedding provider call latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider"},
		),

		StoreOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_store_operations_total",
				Help: "Total number of vector store operations by operation and status",
			},
			[]string{"operation", "status"},
		),

		StoreOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engram_store_operation_duration_seconds",
				Help:    "Vector store operation latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),

		CompressionPasses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_compression_passes_total",
				Help: "Total number of history compression runs by kind and status",
			},
			[]string{"kind", "status"},
		),

		SummaryTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_summary_tokens_total",
				Help: "Total tokens consumed by summarization requests by model and type",
			},
			[]string{"model", "type"},
		),

		CacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_cache_events_total",
				Help: "Total cache lookups by cache and event",
			},
			[]string{"cache", "event"},
		),

		ActiveConversations: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "engram_active_conversations",
				Help: "Current number of conversations held in the memory cache",
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordRetrieval records one retrieval pipeline run.
func (m *Metrics) RecordRetrieval(status string, durationSeconds float64) {
	m.RetrievalQueries.WithLabelValues(status).Inc()
	m.RetrievalDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordEmbedding records one embedding provider call.
//
// Example:
//
//	metrics.RecordEmbedding("ollama", "primary", "success", 0.042)
func (m *Metrics) RecordEmbedding(provider, path, status string, durationSeconds float64) {
	m.EmbeddingRequests.WithLabelValues(provider, path, status).Inc()
	m.EmbeddingDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordStoreOperation records one vector store call.
func (m *Metrics) RecordStoreOperation(operation, status string, durationSeconds float64) {
	m.StoreOperations.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordCompression records one compression pass.
//
// Example:
//
//	metrics.RecordCompression("importance", "success")
func (m *Metrics) RecordCompression(kind, status string) {
	m.CompressionPasses.WithLabelValues(kind, status).Inc()
}

// RecordSummaryTokens tracks token usage of a summarization request.
func (m *Metrics) RecordSummaryTokens(model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		m.SummaryTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.SummaryTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// CacheHit increments the hit counter for a cache.
func (m *Metrics) CacheHit(cache string) {
	m.CacheEvents.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss increments the miss counter for a cache.
func (m *Metrics) CacheMiss(cache string) {
	m.CacheEvents.WithLabelValues(cache, "miss").Inc()
}

// ConversationCached increments the active conversation gauge.
func (m *Metrics) ConversationCached() {
	m.ActiveConversations.Inc()
}

// ConversationEvicted decrements the active conversation gauge.
func (m *Metrics) ConversationEvicted() {
	m.ActiveConversations.Dec()
}

// RecordError increments the error counter for a component and error type.
//
// Example:
//
//	metrics.RecordError("embedding", "api_timeout")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
