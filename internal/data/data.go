package data

import (
	"errors"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/repo"
	"github.com/pogostats/feishu-stats-reporter/internal/infra/feishu"
)

// Repositories contains all repositories
type Repositories struct {
	Observation repo.ObservationRepo
	Chat        repo.ChatRepo
	Audit       repo.AuditRepo
}

// Options selects the backing stores
type Options struct {
	DBDriver     string
	DBDSN        string
	KafkaBrokers []string
	KafkaTopic   string
}

// NewRepositories creates all repositories
func NewRepositories(feishuClient *feishu.Client, opts Options) (*Repositories, error) {
	obsRepo, err := NewObservationRepo(opts.DBDriver, opts.DBDSN)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Observation: obsRepo,
		Chat:        NewFeishuRepo(feishuClient),
		Audit:       NewKafkaAuditRepo(opts.KafkaBrokers, opts.KafkaTopic),
	}, nil
}

// Close releases the store connections
func (r *Repositories) Close() error {
	return errors.Join(r.Observation.Close(), r.Audit.Close())
}
