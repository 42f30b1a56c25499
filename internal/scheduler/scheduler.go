package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per polling cycle.
type TickFunc func(ctx context.Context, startedAt time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives the polling loop on a resettable timer. The interval can
// change while Run is blocked waiting: SetInterval wakes the loop so the new
// cadence takes effect immediately rather than after the old delay expires.
type Scheduler struct {
	opts     Options
	logger   zerolog.Logger
	interval atomic.Int64
	reload   chan struct{}
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	s := &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		reload: make(chan struct{}, 1),
	}
	s.interval.Store(int64(opts.Interval))
	return s
}

// Interval returns the current interval.
func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// SetInterval replaces the interval and interrupts any in-progress wait.
// Non-positive values are ignored.
func (s *Scheduler) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	old := time.Duration(s.interval.Swap(int64(interval)))
	if old == interval {
		return
	}
	s.logger.Info().Dur("old", old).Dur("new", interval).Msg("poll interval changed")
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Run blocks, invoking the tick function every interval until ctx is
// cancelled. The wait between ticks measures from tick completion, so a slow
// cycle never causes overlapping runs. Tick errors are logged, never fatal.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for {
		startedAt := time.Now().UTC()
		if err := s.runTick(ctx, tick, startedAt); err != nil {
			s.logger.Error().Err(err).Time("started_at", startedAt).Msg("tick execution failed")
		}

		if err := s.wait(ctx); err != nil {
			return err
		}
	}
}

// runTick invokes one cycle, converting a panic into an error so a single
// bad cycle cannot kill the loop.
func (s *Scheduler) runTick(ctx context.Context, tick TickFunc, startedAt time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return tick(ctx, startedAt)
}

// wait sleeps for the current interval, restarting the timer when the
// interval changes mid-wait.
func (s *Scheduler) wait(ctx context.Context) error {
	deadline := time.Now().Add(s.Interval())
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-s.reload:
			deadline = time.Now().Add(s.Interval())
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(time.Until(deadline))
		}
	}
}
