package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every aligned interval.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Job describes one periodically executed task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      TickFunc
}

// Options tune scheduler behaviour.
type Options struct {
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives aligned execution of named jobs, each on its own interval.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, executing every job at its aligned interval until ctx is cancelled.
// Job failures are logged; the loop continues.
func (s *Scheduler) Run(ctx context.Context, jobs ...Job) error {
	var wg sync.WaitGroup
	for _, job := range jobs {
		if job.Interval <= 0 {
			s.logger.Warn().Str("job", job.Name).Msg("job has no interval; skipping")
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runJob(ctx, job)
		}(job)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	logger := s.logger.With().Str("job", job.Name).Logger()

	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().UTC(), job.Interval)
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC(), job.Interval)
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			timer.Stop()
		}

		bucket := s.bucketStart(next, job.Interval)
		logger.Info().Time("bucket", bucket).Msg("executing scheduled job")

		if err := job.Run(ctx, bucket); err != nil {
			logger.Error().Err(err).Time("bucket", bucket).Msg("job execution failed")
		}

		next = next.Add(job.Interval)
	}
}

func (s *Scheduler) nextTick(now time.Time, interval time.Duration) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(interval)
	}
	bucket := now.Truncate(interval)
	if !bucket.After(now) {
		bucket = bucket.Add(interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time, interval time.Duration) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(interval)
}
