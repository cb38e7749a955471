package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, ParseBrokers(" kafka-1:9092, kafka-2:9092 ,"))
	assert.Nil(t, ParseBrokers(""))
}

func TestRecordMessage(t *testing.T) {
	p := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}, Topic: "vinledger.records"}, nil)
	defer p.Close()

	event := &RecordEvent{
		EventType:    "record.created",
		Table:        "merged_admin",
		RecordID:     "1FTFW1E5XPFA00001",
		SurrogateKey: 42,
		Data:         json.RawMessage(`{"make":"Ford"}`),
		RequestID:    "req-1",
	}

	msg, err := p.recordMessage(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, "merged_admin:1FTFW1E5XPFA00001", string(msg.Key))
	assert.False(t, event.Timestamp.IsZero(), "timestamp is stamped on publish")

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "record.created", headers["event_type"])
	assert.Equal(t, "merged_admin", headers["table"])
	assert.Equal(t, "req-1", headers["request_id"])
	assert.NotContains(t, headers, "traceparent", "no active span")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "record.created", decoded["event_type"])
	assert.Equal(t, float64(42), decoded["surrogate_key"])
	assert.Equal(t, map[string]any{"make": "Ford"}, decoded["data"])
}

func TestRecordMessage_Nil(t *testing.T) {
	p := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	defer p.Close()

	_, err := p.recordMessage(context.Background(), nil)
	assert.Error(t, err)
}

func TestPublishRecordEvents_Empty(t *testing.T) {
	p := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	defer p.Close()

	assert.NoError(t, p.PublishRecordEvents(context.Background(), nil))
}

func TestPing_NoBrokers(t *testing.T) {
	p := NewProducer(ProducerConfig{Topic: "vinledger.records"}, nil)
	defer p.Close()

	assert.ErrorContains(t, p.Ping(context.Background()), "no kafka brokers")
}

func TestPing_Unreachable(t *testing.T) {
	p := NewProducer(ProducerConfig{Brokers: []string{"127.0.0.1:1"}, Topic: "vinledger.records"}, nil)
	defer p.Close()

	assert.ErrorContains(t, p.Ping(context.Background()), "no kafka broker reachable")
}
