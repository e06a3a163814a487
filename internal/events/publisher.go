// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"meeting-protocol-service/internal/models"
	"meeting-protocol-service/internal/observability/metrics"
	"meeting-protocol-service/internal/schema"
)

// Publisher publishes job lifecycle events to separate Kafka topics.
// With Kafka disabled every event is validated and logged only.
type Publisher struct {
	writerStatus  *kafka.Writer
	writerSummary *kafka.Writer
	principal     string
	topicStatus   string
	topicSummary  string
	enabled       bool
	metrics       *metrics.Metrics
	validator     *schema.Validator
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicStatus  string
	TopicSummary string
	Principal    string
	Enabled      bool
}

// New creates a new Kafka event publisher with separate topics for status
// transitions and summaries.
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
			topicStatus:  cfg.TopicStatus,
			topicSummary: cfg.TopicSummary,
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

	writerStatus := newWriter(cfg.Brokers, cfg.TopicStatus, transport)
	writerSummary := newWriter(cfg.Brokers, cfg.TopicSummary, transport)

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicStatus", cfg.TopicStatus).
		Str("topicSummary", cfg.TopicSummary).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerStatus:  writerStatus,
		writerSummary: writerSummary,
		principal:     cfg.Principal,
		topicStatus:   cfg.TopicStatus,
		topicSummary:  cfg.TopicSummary,
		enabled:       true,
		metrics:       m,
		validator:     v,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishStatus publishes a job status snapshot. Messages are keyed by job
// ID so one job's events stay ordered on a partition.
func (p *Publisher) PublishStatus(ctx context.Context, job models.Job, segments int) error {
	event := models.JobStatusEvent{
		EventType: models.EventTypeJobStatus,
		JobID:     job.JobID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.Message,
		Segments:  segments,
		Timestamp: time.Now().UnixMilli(),
	}
	return p.publish(ctx, p.writerStatus, p.topicStatus, event.EventType, job.JobID, event)
}

// PublishSummary publishes a finished summary for a job.
func (p *Publisher) PublishSummary(ctx context.Context, jobID, backend, summary string) error {
	event := models.JobSummaryEvent{
		EventType: models.EventTypeJobSummary,
		JobID:     jobID,
		Backend:   backend,
		Summary:   summary,
		Timestamp: time.Now().UnixMilli(),
	}
	return p.publish(ctx, p.writerSummary, p.topicSummary, event.EventType, jobID, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Refusing to publish invalid event")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
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
	if p.writerStatus != nil {
		if e := p.writerStatus.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing status writer")
			err = e
		}
	}
	if p.writerSummary != nil {
		if e := p.writerSummary.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing summary writer")
			err = e
		}
	}
	return err
}
