package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

// TimerState is the lifecycle state of a MidnightTimer
type TimerState int32

const (
	TimerIdle TimerState = iota
	TimerArmed
	TimerFired
)

func (s TimerState) String() string {
	switch s {
	case TimerArmed:
		return "armed"
	case TimerFired:
		return "fired"
	default:
		return "idle"
	}
}

// ErrTimerRunning is returned by Start on a timer that is already armed
var ErrTimerRunning = errors.New("timer already running")

// Clock abstracts wall-clock time for the timer loop
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FireFunc is invoked once per cycle with the wake-up time and the timer's timezone
type FireFunc func(ctx context.Context, t time.Time, timezone string)

// TimerOption configures a MidnightTimer
type TimerOption func(*MidnightTimer)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c Clock) TimerOption {
	return func(t *MidnightTimer) { t.clock = c }
}

// MidnightTimer fires once a day at local midnight plus an offset in one timezone.
// The next fire time is recomputed from the wall clock every cycle, so daylight-saving
// changes and late wake-ups do not accumulate.
type MidnightTimer struct {
	timezone      string
	loc           *time.Location
	offsetMinutes int
	onFire        FireFunc
	clock         Clock
	log           logging.Logger

	mu        sync.Mutex
	state     TimerState
	nextFire  time.Time
	lastFired time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMidnightTimer creates an idle timer for timezone (an IANA name or "Local")
func NewMidnightTimer(timezone string, offsetMinutes int, onFire FireFunc, log logging.Logger, opts ...TimerOption) (*MidnightTimer, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	t := &MidnightTimer{
		timezone:      timezone,
		loc:           loc,
		offsetMinutes: offsetMinutes,
		onFire:        onFire,
		clock:         realClock{},
		log:           log.Named("Timer").With(logging.String("timezone", timezone)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NextFire returns the first local midnight plus offset strictly after now
func NextFire(now time.Time, loc *time.Location, offsetMinutes int) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, 0, offsetMinutes, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(y, m, d+1, 0, offsetMinutes, 0, 0, loc)
	}
	return next
}

// Start arms the timer. The loop runs until Stop is called or ctx is cancelled.
func (t *MidnightTimer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return ErrTimerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(loopCtx, t.done)
	return nil
}

// Stop disarms the timer and waits for the loop to exit.
// A callback already running is allowed to finish.
func (t *MidnightTimer) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done

	t.mu.Lock()
	t.cancel = nil
	t.done = nil
	t.state = TimerIdle
	t.nextFire = time.Time{}
	t.mu.Unlock()
}

// State returns the current state
func (t *MidnightTimer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Entry returns the timer's schedule
func (t *MidnightTimer) Entry() domain.ScheduleEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.ScheduleEntry{
		Timezone:      t.timezone,
		OffsetMinutes: t.offsetMinutes,
		State:         t.state.String(),
		NextFire:      t.nextFire,
		LastFired:     t.lastFired,
	}
}

func (t *MidnightTimer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	var target time.Time
	for {
		// Never schedule the same target twice, even if the wake-up came early
		from := t.clock.Now()
		if target.After(from) {
			from = target
		}
		target = NextFire(from, t.loc, t.offsetMinutes)
		wait := target.Sub(t.clock.Now())

		t.mu.Lock()
		t.state = TimerArmed
		t.nextFire = target
		t.mu.Unlock()
		t.log.Debug(ctx, "timer armed", logging.Time("next_fire", target), logging.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return
		case now := <-t.clock.After(wait):
			t.mu.Lock()
			t.state = TimerFired
			t.lastFired = now
			t.mu.Unlock()

			t.fire(context.WithoutCancel(ctx), now)
		}
	}
}

// fire runs the callback; a panic is logged and the loop re-arms
func (t *MidnightTimer) fire(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error(ctx, "scheduled callback panicked", logging.Any("panic", r))
		}
	}()
	t.log.Info(ctx, "timer fired", logging.Time("at", now))
	t.onFire(ctx, now, t.timezone)
}
