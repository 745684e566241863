package mq

import (
	"testing"
	"time"
)

func TestToKafkaMessage(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := &Message{ID: "sub-1", Body: []byte(`{"status":"Accepted"}`), Timestamp: ts}
	msg.SetHeader("event", "verdict.final")

	km := toKafkaMessage("judge.verdict.final", msg)
	if km.Topic != "judge.verdict.final" {
		t.Fatalf("expected topic, got %s", km.Topic)
	}
	if string(km.Key) != "sub-1" {
		t.Fatalf("expected key sub-1, got %s", km.Key)
	}
	if !km.Time.Equal(ts) {
		t.Fatalf("expected time %v, got %v", ts, km.Time)
	}
	headers := make(map[string]string)
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event"] != "verdict.final" {
		t.Fatalf("expected custom header, got %v", headers)
	}
	if headers[headerID] != "sub-1" {
		t.Fatalf("expected id header, got %v", headers)
	}
	if headers[headerTimestamp] != ts.Format(time.RFC3339Nano) {
		t.Fatalf("expected timestamp header, got %v", headers)
	}
}

func TestToKafkaMessageFillsTimestamp(t *testing.T) {
	t.Parallel()
	km := toKafkaMessage("t", &Message{Body: []byte("x")})
	if km.Time.IsZero() {
		t.Fatalf("expected timestamp to be filled")
	}
	if len(km.Key) != 0 {
		t.Fatalf("expected empty key, got %s", km.Key)
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	t.Parallel()
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
