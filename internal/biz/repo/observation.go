package repo

import (
	"context"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
)

// ObservationRepo is the read side of the observation store
type ObservationRepo interface {
	// ListObservations returns every observation expiring in [from, to]
	ListObservations(ctx context.Context, from, to time.Time) ([]domain.RawObservation, error)

	// CountByEntity counts observations per entity id in [from, to]; an empty ids slice counts all entities
	CountByEntity(ctx context.Context, ids []uint32, from, to time.Time) (map[uint32]uint64, error)

	// Save inserts observations (used by the seeding tool and tests)
	Save(ctx context.Context, obs ...domain.RawObservation) error

	Close() error
}
