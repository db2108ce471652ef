// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "conversation_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Recording session metrics
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsStuck   prometheus.Counter
	SpeakerSwitches prometheus.Counter

	// Recognition channel metrics
	ResultsReceived *prometheus.CounterVec
	ViewsPublished  *prometheus.CounterVec
	ChannelRestarts *prometheus.CounterVec
	ChannelErrors   *prometheus.CounterVec
	LanguageForced  prometheus.Counter
	WatchdogKicks   prometheus.Counter

	// Transcript merge metrics
	MergeDecisions *prometheus.CounterVec

	// Persistence metrics
	ConversationsSaved prometheus.Counter
	AutosavesTotal     prometheus.Counter
	AutosavesSkipped   *prometheus.CounterVec
	SaveErrors         prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSConnectionsTotal  prometheus.Counter

	// Server-side audio ingress metrics
	AudioFramesDropped  *prometheus.CounterVec
	AudioFramesBuffered prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Recording session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of recording sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active recording sessions",
		}),
		SessionsStuck: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_stuck_total",
			Help:      "Total number of sessions that entered the stuck state",
		}),
		SpeakerSwitches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speaker_switches_total",
			Help:      "Total number of active speaker switches",
		}),

		// Recognition channel metrics
		ResultsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_results_total",
			Help:      "Total number of recognition result events received",
		}, []string{"lang"}),
		ViewsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_views_published_total",
			Help:      "Total number of transcript views published by the winning channel",
		}, []string{"lang"}),
		ChannelRestarts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_restarts_total",
			Help:      "Total number of recognition channel restarts",
		}, []string{"reason"}),
		ChannelErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_errors_total",
			Help:      "Total number of recognition channel errors",
		}, []string{"code"}),
		LanguageForced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "language_forced_total",
			Help:      "Total number of manual language pins",
		}),
		WatchdogKicks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_restarts_total",
			Help:      "Total number of silent restarts triggered by the liveness watchdog",
		}),

		// Transcript merge metrics
		MergeDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_decisions_total",
			Help:      "Total number of transcript merge decisions",
		}, []string{"action"}),

		// Persistence metrics
		ConversationsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_saved_total",
			Help:      "Total number of conversation saves",
		}),
		AutosavesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosaves_total",
			Help:      "Total number of debounced autosaves performed",
		}),
		AutosavesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosaves_skipped_total",
			Help:      "Total number of autosaves skipped",
		}, []string{"reason"}),
		SaveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "save_errors_total",
			Help:      "Total number of conversation save failures",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// WebSocket metrics
		WSConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_active",
			Help:      "Number of currently open editor WebSocket connections",
		}),
		WSConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_connections_total",
			Help:      "Total number of editor WebSocket connections accepted",
		}),

		// Server-side audio ingress metrics
		AudioFramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Total number of inbound audio frames rejected or dropped",
		}, []string{"reason"}),
		AudioFramesBuffered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_frames_buffered",
			Help:      "Inbound audio frames currently buffered for recognition",
		}),
	}
}

// RecordSessionStart records a recording session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a recording session ending.
func (m *Metrics) RecordSessionEnd() {
	m.SessionsActive.Dec()
}

// RecordMerge records a transcript merge decision.
func (m *Metrics) RecordMerge(action string) {
	m.MergeDecisions.WithLabelValues(action).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSave records a conversation save outcome.
func (m *Metrics) RecordSave(err error) {
	if err != nil {
		m.SaveErrors.Inc()
		return
	}
	m.ConversationsSaved.Inc()
}
