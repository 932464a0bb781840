package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch result labels
const (
	ResultSuccess   = "success"
	ResultTimeout   = "timeout"
	ResultMalformed = "malformed"
	ResultTransport = "transport_failure"
)

// Metrics contains all Prometheus metrics for the student marks service
type Metrics struct {
	// Mark-list fetch metrics
	Fetches        *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	RecordsFetched prometheus.Gauge
	LastSuccess    prometheus.Gauge

	// Store metrics
	StoredRecords prometheus.Gauge
	Upserts       *prometheus.CounterVec

	// Responder metrics
	RequestsReceived prometheus.Counter
	InvalidRequests  prometheus.Counter
	RepliesSent      prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Mark-list fetch metrics
		Fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marks_fetches_total",
			Help: "Total number of mark-list fetches by result",
		}, []string{"result"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "marks_fetch_duration_seconds",
			Help:    "Duration of mark-list request/reply exchanges",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		RecordsFetched: factory.NewGauge(prometheus.GaugeOpts{
			Name: "marks_records_fetched",
			Help: "Number of records in the last successful fetch",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "marks_last_success_timestamp_seconds",
			Help: "Unix time of the last successful fetch",
		}),

		// Store metrics
		StoredRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "marks_store_records",
			Help: "Current number of records held in memory",
		}),
		Upserts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marks_store_upserts_total",
			Help: "Total number of records added or updated through the API",
		}, []string{"operation"}),

		// Responder metrics
		RequestsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "marks_responder_requests_total",
			Help: "Total number of datagrams received by the responder",
		}),
		InvalidRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "marks_responder_invalid_requests_total",
			Help: "Total number of datagrams that were not a mark-list request",
		}),
		RepliesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "marks_responder_replies_total",
			Help: "Total number of mark-list replies sent",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marks_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marks_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marks_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFetch records the outcome of one fetch
func (m *Metrics) RecordFetch(result string, durationSeconds float64, records int, unixTime float64) {
	m.Fetches.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(durationSeconds)
	if result == ResultSuccess {
		m.RecordsFetched.Set(float64(records))
		m.LastSuccess.Set(unixTime)
	}
}

// SetStoredRecords sets the current store size
func (m *Metrics) SetStoredRecords(count int) {
	m.StoredRecords.Set(float64(count))
}

// RecordUpsert records an API write; created distinguishes add from update
func (m *Metrics) RecordUpsert(created bool) {
	operation := "update"
	if created {
		operation = "add"
	}
	m.Upserts.WithLabelValues(operation).Inc()
}

// RecordResponderRequest records a received datagram and whether it was valid
func (m *Metrics) RecordResponderRequest(valid bool) {
	m.RequestsReceived.Inc()
	if !valid {
		m.InvalidRequests.Inc()
	}
}

// RecordReplySent increments the replies sent counter
func (m *Metrics) RecordReplySent() {
	m.RepliesSent.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
