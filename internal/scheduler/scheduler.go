package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// JobFunc runs once per interval with the bucket it was scheduled for.
type JobFunc func(ctx context.Context, bucket time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives interval-aligned execution of the ingestion job.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the job at each interval until ctx is cancelled. Job
// errors are logged; the loop keeps going.
func (s *Scheduler) Run(ctx context.Context, job JobFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := s.next(time.Now().UTC())
	for {
		if time.Until(next) < 0 {
			next = s.next(time.Now().UTC())
		}

		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")
		if err := sleep(ctx, time.Until(next)); err != nil {
			return err
		}

		bucket := next
		if s.opts.AlignToStart {
			bucket = next.Truncate(s.opts.Interval)
		}
		s.logger.Info().Time("bucket", bucket).Msg("executing scheduled job")

		if err := job(ctx, bucket); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("scheduled job failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) next(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
