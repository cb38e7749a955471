package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// ParseBrokers splits a comma-separated broker list.
func ParseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer publishes record and run events
type Producer struct {
	writer  *kafka.Writer
	logger  ectologger.Logger
	topic   string
	brokers []string
}

func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	var compression kafka.Compression
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "snappy":
		compression = kafka.Snappy
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer:  writer,
		logger:  logger,
		topic:   cfg.Topic,
		brokers: cfg.Brokers,
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Ping succeeds once any configured broker accepts a connection.
func (p *Producer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

// RecordEvent describes a committed change to one row of a managed table.
type RecordEvent struct {
	EventType    string          `json:"event_type"` // record.created, record.updated, record.deleted
	Table        string          `json:"table"`
	RecordID     string          `json:"record_id"`
	SurrogateKey int64           `json:"surrogate_key,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
	TraceID      string          `json:"trace_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// RunEvent summarises a finished pipeline run.
type RunEvent struct {
	EventType string          `json:"event_type"` // run.completed, run.failed, run.skipped
	RunID     string          `json:"run_id"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// PublishRecordEvent publishes one record event keyed by table and record id,
// so every change to a row lands on the same partition.
func (p *Producer) PublishRecordEvent(ctx context.Context, event *RecordEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRecordEvent")
	defer span.End()

	msg, err := p.recordMessage(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return err
	}

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("event_type", event.EventType),
		attribute.String("table", event.Table),
	)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish record event to Kafka topic %s", p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"table":      event.Table,
		"record_id":  event.RecordID,
	}).Debug("Published record event")

	return nil
}

// PublishRecordEvents publishes events in a single write.
func (p *Producer) PublishRecordEvents(ctx context.Context, events []*RecordEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRecordEvents")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.Int("messaging.batch_size", len(events)),
	)

	msgs := make([]kafka.Message, 0, len(events))
	for i, event := range events {
		msg, err := p.recordMessage(ctx, event)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("failed to marshal message %d", i))
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish batch")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish batch to Kafka topic %s", p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "batch published")
	p.logger.WithContext(ctx).Infof("Published %d record events to Kafka", len(events))
	return nil
}

func (p *Producer) PublishRunEvent(ctx context.Context, event *RunEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRunEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	headers := append([]kafka.Header{
		{Key: "event_type", Value: []byte(event.EventType)},
		{Key: "run_id", Value: []byte(event.RunID)},
	}, traceHeaders(ctx)...)

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.RunID),
		Value:   data,
		Headers: headers,
	}); err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish run event to Kafka topic %s", p.topic)
		return err
	}

	return nil
}

func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}

func (p *Producer) recordMessage(ctx context.Context, event *RecordEvent) (kafka.Message, error) {
	if event == nil {
		return kafka.Message{}, fmt.Errorf("record event is nil")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal record event: %w", err)
	}

	headers := append([]kafka.Header{
		{Key: "event_type", Value: []byte(event.EventType)},
		{Key: "table", Value: []byte(event.Table)},
	}, traceHeaders(ctx)...)
	if event.RequestID != "" {
		headers = append(headers, kafka.Header{Key: "request_id", Value: []byte(event.RequestID)})
	}

	return kafka.Message{
		Key:     []byte(event.Table + ":" + event.RecordID),
		Value:   data,
		Headers: headers,
	}, nil
}

// traceHeaders carries W3C trace context to consumers.
func traceHeaders(ctx context.Context) []kafka.Header {
	var headers []kafka.Header
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}
	return headers
}
