// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package scheduler

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shelfrank/shelfrank/internal/logging"
)

func TestNewRunnerValidation(t *testing.T) {
	logger := logging.NewTestLogger(io.Discard)
	noop := func(ctx context.Context) error { return nil }

	tests := []struct {
		name    string
		jobs    []Job
		wantErr bool
	}{
		{"valid", []Job{{Name: "a", Interval: time.Hour, Run: noop}}, false},
		{"missing name", []Job{{Interval: time.Hour, Run: noop}}, true},
		{"missing run", []Job{{Name: "a", Interval: time.Hour}}, true},
		{"zero interval", []Job{{Name: "a", Run: noop}}, true},
		{"duplicate name", []Job{
			{Name: "a", Interval: time.Hour, Run: noop},
			{Name: "a", Interval: time.Hour, Run: noop},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(logger, tt.jobs...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRunner() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSingleFlightSkipsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int64

	r, err := NewRunner(logging.NewTestLogger(io.Discard), Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			close(started)
			<-release
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.RunOnce(ctx, "slow")
	}()
	<-started

	// A trigger while the first run holds the guard must be dropped.
	r.RunOnce(ctx, "slow")
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1 while first run in flight", got)
	}

	close(release)
	wg.Wait()

	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1 after completion", got)
	}
}

func TestRunnerStartStop(t *testing.T) {
	var runs atomic.Int64

	r, err := NewRunner(logging.NewTestLogger(io.Discard), Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Error("second start did not fail")
	}

	time.Sleep(50 * time.Millisecond)
	r.Stop()
	after := runs.Load()

	// Runs once at start, then on each tick.
	if after < 2 {
		t.Errorf("runs = %d, want at least 2", after)
	}

	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Error("job still running after Stop")
	}

	// Stop twice is safe.
	r.Stop()
}

func TestRunOnceUnknownJob(t *testing.T) {
	r, err := NewRunner(logging.NewTestLogger(io.Discard), Job{
		Name:     "known",
		Interval: time.Hour,
		Run:      func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	// Must not panic.
	r.RunOnce(context.Background(), "unknown")
}
