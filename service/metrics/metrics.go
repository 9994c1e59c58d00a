package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Analytics engine
	analyticsRunsTotal      *prometheus.CounterVec
	analyticsRunDuration    *prometheus.HistogramVec
	analyticsRecordsScanned *prometheus.CounterVec

	// Collaborator lookups
	priceLookupsTotal   *prometheus.CounterVec
	priceLookupDuration *prometheus.HistogramVec
	tokenLookupsTotal   *prometheus.CounterVec
	cacheOperations     *prometheus.CounterVec

	// Upstream APIs
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec
	heliusRequestsTotal   *prometheus.CounterVec
	heliusRequestDuration *prometheus.HistogramVec

	// Chat
	chatRequestsTotal *prometheus.CounterVec
	chatLLMDuration   *prometheus.HistogramVec

	// Indexing workflow
	indexWorkflowDuration        *prometheus.HistogramVec
	indexWorkflowExecutionsTotal *prometheus.CounterVec
	indexActivityDuration        *prometheus.HistogramVec
	recordsWrittenTotal          *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		analyticsRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_runs_total",
				Help: "Total number of wallet analyses by outcome",
			},
			[]string{"outcome"},
		),
		analyticsRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_run_duration_seconds",
				Help:    "Duration of wallet analyses in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"outcome"},
		),
		analyticsRecordsScanned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_records_scanned_total",
				Help: "Total number of records consumed by the analytics engine",
			},
			[]string{"kind"},
		),

		priceLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_lookups_total",
				Help: "Total number of price lookups by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		priceLookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "price_lookup_duration_seconds",
				Help:    "Duration of upstream price requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"source"},
		),
		tokenLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_metadata_lookups_total",
				Help: "Total number of token metadata resolutions by source",
			},
			[]string{"source"},
		),
		cacheOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_operations_total",
				Help: "Total number of cache reads by cache name and result",
			},
			[]string{"cache", "result"},
		),

		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		heliusRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helius_requests_total",
				Help: "Total number of Helius API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		heliusRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "helius_request_duration_seconds",
				Help:    "Duration of Helius API requests in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),

		chatRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_requests_total",
				Help: "Total number of chat requests by resolved action and status",
			},
			[]string{"action", "status"},
		),
		chatLLMDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_llm_duration_seconds",
				Help:    "Duration of LLM calls in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"step"},
		),

		indexWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_workflow_duration_seconds",
				Help:    "Duration of wallet indexing workflows in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		indexWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_workflow_executions_total",
				Help: "Total number of wallet indexing workflow executions",
			},
			[]string{"status"},
		),
		indexActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_activity_duration_seconds",
				Help:    "Duration of indexing activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),
		recordsWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_written_total",
				Help: "Total number of records written to the record store",
			},
			[]string{"kind"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"wallet_address"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"wallet_address", "event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Analytics metric helpers

// RecordAnalyticsRun records one wallet analysis.
func (m *Metrics) RecordAnalyticsRun(outcome string, duration float64) {
	m.analyticsRunsTotal.WithLabelValues(outcome).Inc()
	m.analyticsRunDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordRecordsScanned records how many records of a kind an analysis consumed.
func (m *Metrics) RecordRecordsScanned(kind string, count int) {
	m.analyticsRecordsScanned.WithLabelValues(kind).Add(float64(count))
}

// Lookup metric helpers

// RecordPriceLookup records a price lookup. Outcome is one of hit, miss, error, unknown.
func (m *Metrics) RecordPriceLookup(source, outcome string) {
	m.priceLookupsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordPriceRequest records the duration of an upstream price request.
func (m *Metrics) RecordPriceRequest(source string, duration float64) {
	m.priceLookupDuration.WithLabelValues(source).Observe(duration)
}

// RecordTokenLookup records where token metadata was resolved from.
func (m *Metrics) RecordTokenLookup(source string) {
	m.tokenLookupsTotal.WithLabelValues(source).Inc()
}

// RecordCacheRead records a cache hit or miss.
func (m *Metrics) RecordCacheRead(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheOperations.WithLabelValues(cache, result).Inc()
}

// Upstream metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordHeliusRequest records a Helius API request with duration.
func (m *Metrics) RecordHeliusRequest(endpoint string, statusCode int, duration float64) {
	m.heliusRequestsTotal.WithLabelValues(endpoint, statusCodeToString(statusCode)).Inc()
	m.heliusRequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// Chat metric helpers

// RecordChatRequest records a completed chat request.
func (m *Metrics) RecordChatRequest(action, status string) {
	m.chatRequestsTotal.WithLabelValues(action, status).Inc()
}

// RecordLLMCall records the duration of one LLM round trip.
func (m *Metrics) RecordLLMCall(step string, duration float64) {
	m.chatLLMDuration.WithLabelValues(step).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	m.indexWorkflowDuration.WithLabelValues(status).Observe(duration)
	m.indexWorkflowExecutionsTotal.WithLabelValues(status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.indexActivityDuration.WithLabelValues(activity).Observe(duration)
}

// RecordRecordsWritten records rows written by the indexer.
func (m *Metrics) RecordRecordsWritten(kind string, count int) {
	m.recordsWrittenTotal.WithLabelValues(kind).Add(float64(count))
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(walletAddress string, delta float64) {
	m.sseActiveConnections.WithLabelValues(walletAddress).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(walletAddress, eventType string) {
	m.sseEventsSent.WithLabelValues(walletAddress, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
