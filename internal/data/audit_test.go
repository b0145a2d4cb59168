package data

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaAuditRepo_Publish(t *testing.T) {
	w := &fakeWriter{}
	r := &kafkaAuditRepo{w: w}

	summary := domain.RunSummary{
		RunID:        "run-1",
		GuildID:      "tenant_a",
		Category:     domain.CategoryShiny,
		Status:       domain.RunStatusOK,
		MessagesSent: 4,
		StartedAt:    time.Unix(1_700_000_000, 0),
		Duration:     2 * time.Second,
	}
	if err := r.Publish(context.Background(), summary); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("got %d messages", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "tenant_a" {
		t.Errorf("key = %q", w.msgs[0].Key)
	}
	var got domain.RunSummary
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-1" || got.MessagesSent != 4 || got.Status != domain.RunStatusOK {
		t.Errorf("decoded %+v", got)
	}

	if err := r.Close(); err != nil || !w.closed {
		t.Errorf("Close: %v closed=%v", err, w.closed)
	}
}

func TestKafkaAuditRepo_WriteError(t *testing.T) {
	r := &kafkaAuditRepo{w: &fakeWriter{err: errors.New("leader not available")}}
	if err := r.Publish(context.Background(), domain.RunSummary{GuildID: "t"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewKafkaAuditRepo_NoBrokers(t *testing.T) {
	r := NewKafkaAuditRepo(nil, "runs")
	if _, ok := r.(noopAuditRepo); !ok {
		t.Fatalf("got %T, want noop", r)
	}
	if err := r.Publish(context.Background(), domain.RunSummary{}); err != nil {
		t.Errorf("noop Publish: %v", err)
	}
}
