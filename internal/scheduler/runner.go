// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

// Package scheduler runs the recurring background jobs: the per-user
// recommendation refresh, the popularity recompute, trending cache
// pre-warm, and scheduled trending invalidation.
//
// The runner keeps no persisted state. Every run is independent and
// idempotent; a rerun overwrites cache entries but never corrupts
// anything. Overlap of the same job is prevented by a per-job-name
// single-flight guard: a trigger that fires while the previous run is
// still executing is skipped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfrank/shelfrank/internal/metrics"
)

// Job is one named recurring task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives a set of jobs, each on its own ticker.
type Runner struct {
	jobs   []Job
	flight map[string]*sync.Mutex
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRunner creates a runner for the given jobs.
func NewRunner(logger zerolog.Logger, jobs ...Job) (*Runner, error) {
	flight := make(map[string]*sync.Mutex, len(jobs))
	for _, j := range jobs {
		if j.Name == "" || j.Run == nil {
			return nil, fmt.Errorf("job needs a name and a run function")
		}
		if j.Interval <= 0 {
			return nil, fmt.Errorf("job %s needs a positive interval", j.Name)
		}
		if _, dup := flight[j.Name]; dup {
			return nil, fmt.Errorf("duplicate job name %s", j.Name)
		}
		flight[j.Name] = &sync.Mutex{}
	}

	return &Runner{
		jobs:   jobs,
		flight: flight,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Start launches one loop per job. Each job runs once immediately so
// caches are warm shortly after boot, then on its interval.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, job)
		r.logger.Info().
			Str("job", job.Name).
			Dur("interval", job.Interval).
			Msg("Scheduled job")
	}
	return nil
}

// Stop halts all job loops and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info().Msg("Scheduler stopped")
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	r.RunOnce(ctx, job.Name)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RunOnce(ctx, job.Name)
		}
	}
}

// RunOnce executes the named job now, honoring the single-flight
// guard: if the job is already running the trigger is dropped.
func (r *Runner) RunOnce(ctx context.Context, name string) {
	guard, ok := r.flight[name]
	if !ok {
		r.logger.Error().Str("job", name).Msg("Unknown job")
		return
	}
	if !guard.TryLock() {
		r.logger.Warn().Str("job", name).Msg("Job still running, trigger skipped")
		metrics.RecordSchedulerSkip(name)
		return
	}
	defer guard.Unlock()

	var job Job
	for _, j := range r.jobs {
		if j.Name == name {
			job = j
			break
		}
	}

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	metrics.RecordSchedulerRun(name, err, elapsed)

	if err != nil {
		r.logger.Error().
			Err(err).
			Str("job", name).
			Dur("elapsed", elapsed).
			Msg("Job run failed")
		return
	}
	r.logger.Info().
		Str("job", name).
		Dur("elapsed", elapsed).
		Msg("Job run complete")
}
