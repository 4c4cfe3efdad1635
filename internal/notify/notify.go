// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

// Package notify publishes recommendation events for downstream
// delivery. Rendering and delivering the actual notifications (mail,
// push, sockets) happens outside this service; this package only
// hands typed events to the message bus.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/shelfrank/shelfrank/internal/metrics"
)

// TopicNewRecommendations carries NewRecommendationsEvent messages.
const TopicNewRecommendations = "recommendations.new"

// Dispatcher is the surface the scheduler notifies through. At most
// one call per user per refresh run.
type Dispatcher interface {
	NotifyNewRecommendations(ctx context.Context, userID int64) error
}

// NewRecommendationsEvent signals that a user's precomputed
// recommendation sets were refreshed with non-empty results.
type NewRecommendationsEvent struct {
	EventID    string    `json:"event_id"`
	UserID     int64     `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BusDispatcher publishes events onto an in-process Watermill bus,
// guarded by a circuit breaker so a wedged subscriber cannot stall a
// refresh run.
type BusDispatcher struct {
	bus     *gochannel.GoChannel
	breaker *gobreaker.CircuitBreaker[any]
	logger  zerolog.Logger
}

// NewBusDispatcher creates the dispatcher and its bus. The returned
// dispatcher owns the bus; Close shuts it down.
func NewBusDispatcher(logger zerolog.Logger) *BusDispatcher {
	bus := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NopLogger{})

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:     "notify",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &BusDispatcher{
		bus:     bus,
		breaker: breaker,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// NotifyNewRecommendations publishes one event for the user. Errors
// are returned for accounting but callers treat them as non-fatal.
func (d *BusDispatcher) NotifyNewRecommendations(ctx context.Context, userID int64) error {
	event := NewRecommendationsEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(event.EventID, payload)
	msg.SetContext(ctx)

	_, err = d.breaker.Execute(func() (any, error) {
		return nil, d.bus.Publish(TopicNewRecommendations, msg)
	})
	if err != nil {
		metrics.NotificationFailures.Inc()
		d.logger.Warn().Err(err).Int64("user_id", userID).Msg("Notification publish failed")
		return fmt.Errorf("publish event: %w", err)
	}

	metrics.NotificationsPublished.Inc()
	d.logger.Debug().Int64("user_id", userID).Str("event_id", event.EventID).Msg("Notification event published")
	return nil
}

// Subscribe returns the event stream for a delivery consumer.
func (d *BusDispatcher) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	ch, err := d.bus.Subscribe(ctx, TopicNewRecommendations)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicNewRecommendations, err)
	}
	return ch, nil
}

// BreakerState exposes the breaker state for metrics.
func (d *BusDispatcher) BreakerState() string {
	return d.breaker.State().String()
}

// Close shuts the bus down and closes all subscriber channels.
func (d *BusDispatcher) Close() error {
	return d.bus.Close()
}

// NopDispatcher drops all events. Used when notifications are
// disabled and in tests that only count calls.
type NopDispatcher struct{}

func (NopDispatcher) NotifyNewRecommendations(ctx context.Context, userID int64) error {
	return nil
}
