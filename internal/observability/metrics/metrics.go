// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meeting_protocol"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Job metrics
	JobsSubmitted prometheus.Counter
	JobsRejected  *prometheus.CounterVec
	JobsActive    prometheus.Gauge
	JobsQueued    prometheus.Gauge
	JobsCompleted prometheus.Counter
	JobsFailed    *prometheus.CounterVec
	JobDuration   prometheus.Histogram

	// Pipeline stage metrics
	StageLatency *prometheus.HistogramVec

	// Protocol metrics
	ProtocolSegments prometheus.Histogram

	// Summarization metrics
	SummariesTotal *prometheus.CounterVec
	SummaryLatency *prometheus.HistogramVec

	// Audio metrics
	AudioBytesReceived prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	GRPCRequests *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewUnregistered creates metrics on a private registry. Used by tests.
func NewUnregistered() *Metrics {
	return newMetrics(promauto.With(prometheus.NewRegistry()))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		JobsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of accepted job submissions",
		}),
		JobsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Total number of rejected job submissions",
		}, []string{"reason"}),
		JobsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of jobs currently running a pipeline",
		}),
		JobsQueued: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_queued",
			Help:      "Number of jobs waiting for a worker slot",
		}),
		JobsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that produced a protocol",
		}),
		JobsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of failed jobs",
		}, []string{"stage"}),
		JobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "End-to-end pipeline duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),

		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1200},
		}, []string{"stage"}),

		ProtocolSegments: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "protocol_segments",
			Help:      "Number of segments per completed protocol",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),

		SummariesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Total number of summarization requests",
		}, []string{"backend", "outcome"}),
		SummaryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summary_latency_seconds",
			Help:      "Summarization backend latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"backend"}),

		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received in uploads",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests",
		}, []string{"route", "code"}),
		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls",
		}, []string{"method", "code"}),
	}
}

// RecordJobSubmitted records an accepted submission of the given size.
func (m *Metrics) RecordJobSubmitted(audioBytes int64) {
	m.JobsSubmitted.Inc()
	m.AudioBytesReceived.Add(float64(audioBytes))
}

// RecordJobQueued records a job handed to the worker queue.
func (m *Metrics) RecordJobQueued() {
	m.JobsQueued.Inc()
}

// RecordJobRejected records a submission turned away before a job existed.
func (m *Metrics) RecordJobRejected(reason string) {
	m.JobsRejected.WithLabelValues(reason).Inc()
}

// RecordJobStart records a job leaving the queue.
func (m *Metrics) RecordJobStart() {
	m.JobsQueued.Dec()
	m.JobsActive.Inc()
}

// RecordJobEnd records a pipeline run ending. An empty stage means success.
func (m *Metrics) RecordJobEnd(failedStage string, durationSeconds float64) {
	m.JobsActive.Dec()
	m.JobDuration.Observe(durationSeconds)
	if failedStage == "" {
		m.JobsCompleted.Inc()
		return
	}
	m.JobsFailed.WithLabelValues(failedStage).Inc()
}

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(stage string, latencySeconds float64) {
	m.StageLatency.WithLabelValues(stage).Observe(latencySeconds)
}

// RecordProtocol records the size of a finished protocol.
func (m *Metrics) RecordProtocol(segments int) {
	m.ProtocolSegments.Observe(float64(segments))
}

// RecordSummary records a summarization attempt.
func (m *Metrics) RecordSummary(backend string, err error, latencySeconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.SummariesTotal.WithLabelValues(backend, outcome).Inc()
	m.SummaryLatency.WithLabelValues(backend).Observe(latencySeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordHTTPRequest records an API request by route pattern and status code.
func (m *Metrics) RecordHTTPRequest(route string, code int) {
	m.HTTPRequests.WithLabelValues(route, httpCode(code)).Inc()
}

// RecordGRPCRequest records a finished gRPC call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
