// Package events emits change events for records and pipeline runs
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	appctx "github.com/WilliamDuke02/databaseProject/pkg/context"
	"github.com/WilliamDuke02/databaseProject/pkg/kafka"
	"github.com/WilliamDuke02/databaseProject/pkg/metrics"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

const (
	RecordCreated = "record.created"
	RecordUpdated = "record.updated"
	RecordDeleted = "record.deleted"

	RunCompleted = "run.completed"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishRecordEvent(ctx context.Context, event *kafka.RecordEvent) error
	PublishRunEvent(ctx context.Context, event *kafka.RunEvent) error
}

// Emitter publishes events after writes have committed. A nil publisher
// turns every method into a no-op. Failures are logged and counted but
// never returned, so a broker outage cannot fail a write.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// Enabled reports whether events leave the process.
func (e *Emitter) Enabled() bool {
	return e != nil && e.publisher != nil
}

func (e *Emitter) EmitRecordCreated(ctx context.Context, table, id string, key int64, data any) {
	e.emitRecord(ctx, RecordCreated, table, id, key, data)
}

func (e *Emitter) EmitRecordUpdated(ctx context.Context, table, id string, key int64, data any) {
	e.emitRecord(ctx, RecordUpdated, table, id, key, data)
}

func (e *Emitter) EmitRecordDeleted(ctx context.Context, table, id string, key int64) {
	e.emitRecord(ctx, RecordDeleted, table, id, key, nil)
}

func (e *Emitter) emitRecord(ctx context.Context, eventType, table, id string, key int64, data any) {
	if !e.Enabled() {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.emitRecord")
	defer span.End()

	event := &kafka.RecordEvent{
		EventType:    eventType,
		Table:        table,
		RecordID:     id,
		SurrogateKey: key,
		Data:         e.marshal(ctx, data),
		RequestID:    appctx.GetRequestID(ctx),
	}

	err := e.publisher.PublishRecordEvent(ctx, event)
	e.observe(ctx, eventType, err, map[string]any{
		"table":     table,
		"record_id": id,
	})
}

// EmitRunCompleted publishes the outcome of a pipeline run; summary is
// marshalled as the event payload.
func (e *Emitter) EmitRunCompleted(ctx context.Context, runID, status string, summary any) {
	if !e.Enabled() {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunCompleted")
	defer span.End()

	err := e.publisher.PublishRunEvent(ctx, &kafka.RunEvent{
		EventType: RunCompleted,
		RunID:     runID,
		Status:    status,
		Data:      e.marshal(ctx, summary),
	})
	e.observe(ctx, RunCompleted, err, map[string]any{
		"run_id": runID,
		"status": status,
	})
}

func (e *Emitter) marshal(ctx context.Context, data any) json.RawMessage {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("failed to marshal event payload, sending without data")
		return nil
	}
	return raw
}

func (e *Emitter) observe(ctx context.Context, eventType string, err error, fields map[string]any) {
	status := "success"
	if err != nil {
		status = "error"
		fields["event_type"] = eventType
		e.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("failed to emit event")
	}
	metrics.EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}
