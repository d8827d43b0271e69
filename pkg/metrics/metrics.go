package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsEnded   prometheus.Counter
	SessionsActive  prometheus.Gauge

	// Analysis metrics
	FeedbackGenerated *prometheus.CounterVec
	AnalyzerErrors    *prometheus.CounterVec
	AnalysisLatency   *prometheus.HistogramVec
	SegmentsAnalyzed  prometheus.Counter

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSMessagesSent      prometheus.Counter

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionErrors  prometheus.Counter
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		SessionsStarted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fluently_sessions_started_total",
				Help: "Total number of analysis sessions started",
			},
		)

		SessionsEnded = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fluently_sessions_ended_total",
				Help: "Total number of analysis sessions ended",
			},
		)

		SessionsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fluently_sessions_active",
				Help: "Number of currently active analysis sessions",
			},
		)

		FeedbackGenerated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluently_feedback_generated_total",
				Help: "Total number of feedback items produced",
			},
			[]string{"analysis_type", "priority"},
		)

		AnalyzerErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluently_analyzer_errors_total",
				Help: "Total number of soft sub-analyzer failures",
			},
			[]string{"category"},
		)

		AnalysisLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluently_analysis_duration_seconds",
				Help:    "Duration of sub-analyzer runs",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // From 1ms to ~16s
			},
			[]string{"category"},
		)

		SegmentsAnalyzed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fluently_segments_analyzed_total",
				Help: "Total number of audio segments analyzed",
			},
		)

		WSConnectionsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fluently_websocket_connections_active",
				Help: "Number of connected WebSocket clients",
			},
		)

		WSMessagesSent = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fluently_websocket_messages_sent_total",
				Help: "Total number of messages pushed to WebSocket clients",
			},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluently_amqp_published_messages_total",
				Help: "Total number of events published to AMQP",
			},
			[]string{"event_type"},
		)

		AMQPConnectionErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fluently_amqp_connection_errors_total",
				Help: "Total number of AMQP connection failures",
			},
		)

		registry.MustRegister(
			SessionsStarted,
			SessionsEnded,
			SessionsActive,
			FeedbackGenerated,
			AnalyzerErrors,
			AnalysisLatency,
			SegmentsAnalyzed,
			WSConnectionsActive,
			WSMessagesSent,
			AMQPPublishedMessages,
			AMQPConnectionErrors,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the Prometheus registry, or nil when Init has not run
func GetRegistry() *prometheus.Registry {
	return registry
}

// The helpers below nil-check so core packages can record metrics without
// caring whether Init ran (it does not in unit tests).

// SessionStarted records a session start
func SessionStarted() {
	if SessionsStarted != nil {
		SessionsStarted.Inc()
	}
}

// SessionEnded records a session end
func SessionEnded() {
	if SessionsEnded != nil {
		SessionsEnded.Inc()
	}
}

// SetActiveSessions updates the active session gauge
func SetActiveSessions(n int) {
	if SessionsActive != nil {
		SessionsActive.Set(float64(n))
	}
}

// FeedbackProduced records one feedback item
func FeedbackProduced(analysisType, priority string) {
	if FeedbackGenerated != nil {
		FeedbackGenerated.WithLabelValues(analysisType, priority).Inc()
	}
}

// AnalyzerError records a soft sub-analyzer failure
func AnalyzerError(category string) {
	if AnalyzerErrors != nil {
		AnalyzerErrors.WithLabelValues(category).Inc()
	}
}

// ObserveAnalysisDuration records how long one sub-analyzer run took
func ObserveAnalysisDuration(category string, seconds float64) {
	if AnalysisLatency != nil {
		AnalysisLatency.WithLabelValues(category).Observe(seconds)
	}
}

// SegmentAnalyzed records one analyzed audio segment
func SegmentAnalyzed() {
	if SegmentsAnalyzed != nil {
		SegmentsAnalyzed.Inc()
	}
}

// SetWSConnections updates the WebSocket connection gauge
func SetWSConnections(n int) {
	if WSConnectionsActive != nil {
		WSConnectionsActive.Set(float64(n))
	}
}

// WSMessageSent records one message pushed to a WebSocket client
func WSMessageSent() {
	if WSMessagesSent != nil {
		WSMessagesSent.Inc()
	}
}

// AMQPPublished records one published AMQP event
func AMQPPublished(eventType string) {
	if AMQPPublishedMessages != nil {
		AMQPPublishedMessages.WithLabelValues(eventType).Inc()
	}
}

// AMQPConnectionError records an AMQP connection failure
func AMQPConnectionError() {
	if AMQPConnectionErrors != nil {
		AMQPConnectionErrors.Inc()
	}
}
