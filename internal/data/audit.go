package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/repo"
)

// messageWriter is the part of *kafka.Writer the audit repo uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaAuditRepo publishes run summaries as JSON, keyed by guild id
type kafkaAuditRepo struct {
	w messageWriter
}

// NewKafkaAuditRepo creates an audit repository writing to topic.
// With no brokers it returns a repository that drops summaries.
func NewKafkaAuditRepo(brokers []string, topic string) repo.AuditRepo {
	if len(brokers) == 0 || topic == "" {
		return noopAuditRepo{}
	}
	return &kafkaAuditRepo{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}}
}

// Publish writes one summary
func (r *kafkaAuditRepo) Publish(ctx context.Context, summary domain.RunSummary) error {
	b, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(summary.GuildID),
		Value: b,
		Time:  summary.StartedAt.Add(summary.Duration),
	}
	if err := r.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish run summary: %w", err)
	}
	return nil
}

func (r *kafkaAuditRepo) Close() error {
	return r.w.Close()
}

type noopAuditRepo struct{}

func (noopAuditRepo) Publish(context.Context, domain.RunSummary) error { return nil }
func (noopAuditRepo) Close() error                                     { return nil }
