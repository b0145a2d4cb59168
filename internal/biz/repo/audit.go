package repo

import (
	"context"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
)

// AuditRepo publishes run summaries to an external sink
type AuditRepo interface {
	Publish(ctx context.Context, summary domain.RunSummary) error
	Close() error
}
