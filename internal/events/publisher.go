// Package events publishes transcription events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"conversation-transcription-service/internal/observability/metrics"
	"conversation-transcription-service/internal/schema"
)

// ViewEvent is the live transcript view of a recording session, published
// on every winning-channel update.
type ViewEvent struct {
	EventType        string `json:"eventType"`
	ConversationID   string `json:"conversationId"`
	SpeakerID        string `json:"speakerId"`
	SpeakerName      string `json:"speakerName"`
	FinalText        string `json:"finalText"`
	InterimText      string `json:"interimText"`
	DetectedLanguage string `json:"detectedLanguage"`
	Timestamp        int64  `json:"timestamp"`
}

// SegmentEvent is a finalized speaker segment, published when a speaker
// switch or a session stop commits text to the document.
type SegmentEvent struct {
	EventType      string `json:"eventType"`
	ConversationID string `json:"conversationId"`
	SegmentID      string `json:"segmentId,omitempty"`
	Seq            int    `json:"seq,omitempty"`
	SpeakerID      string `json:"speakerId"`
	SpeakerName    string `json:"speakerName"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp"`
}

// Event type values.
const (
	EventTypeView    = "conversation.transcript.view"
	EventTypeSegment = "conversation.segment.final"
)

// Publisher publishes view and segment events to separate Kafka topics.
// With Kafka disabled it degrades to log-only mode so the editor keeps
// working without a broker.
type Publisher struct {
	writerView    *kafka.Writer
	writerSegment *kafka.Writer
	principal     string
	topicView     string
	topicSegment  string
	enabled       bool
	metrics       *metrics.Metrics
	validator     *schema.Validator
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicView    string
	TopicSegment string
	Principal    string
	Enabled      bool
}

// New creates a Kafka event publisher with separate topics for live views
// and finalized segments.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	v := schema.New()

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			metrics:   m,
			validator: v,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:    cfg.Principal,
			topicView:    cfg.TopicView,
			topicSegment: cfg.TopicSegment,
			enabled:      false,
			metrics:      m,
			validator:    v,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerView := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicView,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerSegment := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicSegment,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicView", cfg.TopicView).
		Str("topicSegment", cfg.TopicSegment).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerView:    writerView,
		writerSegment: writerSegment,
		principal:     cfg.Principal,
		topicView:     cfg.TopicView,
		topicSegment:  cfg.TopicSegment,
		enabled:       true,
		metrics:       m,
		validator:     v,
	}
}

// PublishView publishes a live transcript view, keyed by conversation so
// consumers see one ordered stream per conversation.
func (p *Publisher) PublishView(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerView, p.topicView, "view", key, event)
}

// PublishSegment publishes a finalized speaker segment.
func (p *Publisher) PublishSegment(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerSegment, p.topicSegment, "segment", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	if err := p.validator.Validate(payload); err != nil {
		log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("Dropping invalid event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// Log-only mode
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(topic)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerView != nil {
		if e := p.writerView.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing view writer")
			err = e
		}
	}
	if p.writerSegment != nil {
		if e := p.writerSegment.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing segment writer")
			err = e
		}
	}
	return err
}
