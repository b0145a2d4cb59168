package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/repo"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

const (
	DefaultStatWindow   = 24 * time.Hour
	DefaultQueryTimeout = 30 * time.Second
)

// AggregationRecorder is notified of data source failures
type AggregationRecorder interface {
	AggregationFailed()
}

// StatsUsecase reads observations and aggregates them per category
type StatsUsecase struct {
	obsRepo  repo.ObservationRepo
	window   time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      logging.Logger
	recorder AggregationRecorder
}

// StatsOption configures a StatsUsecase
type StatsOption func(*StatsUsecase)

// WithStatsClock replaces time.Now, mainly for tests
func WithStatsClock(now func() time.Time) StatsOption {
	return func(uc *StatsUsecase) { uc.now = now }
}

// WithQueryTimeout bounds a single data source read
func WithQueryTimeout(d time.Duration) StatsOption {
	return func(uc *StatsUsecase) {
		if d > 0 {
			uc.timeout = d
		}
	}
}

// WithAggregationRecorder sets the failure recorder
func WithAggregationRecorder(r AggregationRecorder) StatsOption {
	return func(uc *StatsUsecase) { uc.recorder = r }
}

// NewStatsUsecase creates a new stats usecase over the given trailing window
func NewStatsUsecase(obsRepo repo.ObservationRepo, window time.Duration, log logging.Logger, opts ...StatsOption) *StatsUsecase {
	if window <= 0 {
		window = DefaultStatWindow
	}
	uc := &StatsUsecase{
		obsRepo: obsRepo,
		window:  window,
		timeout: DefaultQueryTimeout,
		now:     time.Now,
		log:     log.Named("Stats"),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Window returns the trailing aggregation window
func (uc *StatsUsecase) Window() time.Duration {
	return uc.window
}

// Collect reads the window and aggregates it for sel.
// A data source failure is logged and yields nil; callers treat nil as "no stats available".
func (uc *StatsUsecase) Collect(ctx context.Context, sel domain.Selector) *domain.AggregateResult {
	now := uc.now()
	from := now.Add(-uc.window)

	qctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	rows, err := uc.obsRepo.ListObservations(qctx, from, now)
	if err != nil {
		uc.log.Error(ctx, "failed to read observations",
			logging.String("category", sel.Category.String()),
			logging.Time("from", from),
			logging.Err(err))
		if uc.recorder != nil {
			uc.recorder.AggregationFailed()
		}
		return nil
	}

	res := domain.Aggregate(rows, sel, uc.window, now)
	uc.log.Debug(ctx, "aggregated observations",
		logging.String("category", sel.Category.String()),
		logging.Int("rows", len(rows)),
		logging.Int("entities", res.Len()))
	return res
}

// CountSightings counts sightings of the given entities over the last d (all entities when ids is empty)
func (uc *StatsUsecase) CountSightings(ctx context.Context, ids []uint32, d time.Duration) (map[uint32]uint64, error) {
	if d <= 0 {
		d = uc.window
	}
	now := uc.now()

	qctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	counts, err := uc.obsRepo.CountByEntity(qctx, ids, now.Add(-d), now)
	if err != nil {
		return nil, fmt.Errorf("failed to count sightings: %w", err)
	}
	return counts, nil
}
