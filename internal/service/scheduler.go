package service

import (
	"context"
	"fmt"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

// ReportScheduler owns one MidnightTimer per distinct timezone
type ReportScheduler struct {
	timers []*MidnightTimer
	log    logging.Logger
}

// NewReportScheduler creates idle timers for each timezone, all calling onFire
func NewReportScheduler(timezones []string, offsetMinutes int, onFire FireFunc, log logging.Logger, opts ...TimerOption) (*ReportScheduler, error) {
	s := &ReportScheduler{log: log.Named("Scheduler")}
	seen := make(map[string]bool)
	for _, tz := range timezones {
		if seen[tz] {
			continue
		}
		seen[tz] = true

		t, err := NewMidnightTimer(tz, offsetMinutes, onFire, log, opts...)
		if err != nil {
			return nil, err
		}
		s.timers = append(s.timers, t)
	}
	return s, nil
}

// Start arms every timer
func (s *ReportScheduler) Start(ctx context.Context) error {
	for i, t := range s.timers {
		if err := t.Start(ctx); err != nil {
			for _, started := range s.timers[:i] {
				started.Stop()
			}
			return fmt.Errorf("failed to start timer for %s: %w", t.timezone, err)
		}
	}
	s.log.Info(ctx, "scheduler started", logging.Int("timers", len(s.timers)))
	return nil
}

// Stop disarms every timer. Runs already in progress finish first.
func (s *ReportScheduler) Stop() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.log.Info(context.Background(), "scheduler stopped")
}

// Entries returns the schedule of every timer
func (s *ReportScheduler) Entries() []domain.ScheduleEntry {
	out := make([]domain.ScheduleEntry, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.Entry())
	}
	return out
}
