// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package notify

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/shelfrank/shelfrank/internal/logging"
)

func TestPublishReachesSubscriber(t *testing.T) {
	d := NewBusDispatcher(logging.NewTestLogger(io.Discard))
	defer func() { _ = d.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := d.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := d.NotifyNewRecommendations(ctx, 42); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case msg := <-events:
		var event NewRecommendationsEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if event.UserID != 42 {
			t.Errorf("user_id = %d, want 42", event.UserID)
		}
		if event.EventID == "" {
			t.Error("event_id is empty")
		}
		if event.OccurredAt.IsZero() {
			t.Error("occurred_at is zero")
		}
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("no event received before timeout")
	}
}

func TestEventIDsAreUnique(t *testing.T) {
	d := NewBusDispatcher(logging.NewTestLogger(io.Discard))
	defer func() { _ = d.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := d.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := d.NotifyNewRecommendations(ctx, int64(i)); err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		select {
		case msg := <-events:
			if seen[msg.UUID] {
				t.Errorf("duplicate event id %s", msg.UUID)
			}
			seen[msg.UUID] = true
			msg.Ack()
		case <-ctx.Done():
			t.Fatalf("received %d events before timeout, want 3", i)
		}
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	d := NewBusDispatcher(logging.NewTestLogger(io.Discard))
	defer func() { _ = d.Close() }()

	if state := d.BreakerState(); state != "closed" {
		t.Errorf("breaker state = %q, want closed", state)
	}
}

func TestNopDispatcher(t *testing.T) {
	var d Dispatcher = NopDispatcher{}
	if err := d.NotifyNewRecommendations(context.Background(), 1); err != nil {
		t.Errorf("nop dispatcher returned %v", err)
	}
}
