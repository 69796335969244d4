package events

import (
	"context"
	"fmt"
	"reservo/pkg/kafka"
	"reservo/pkg/logger"
	"reservo/pkg/model"
	"time"
)

// Lifecycle event types published to the booking events topic.
const (
	TypeBookingCreated   = "booking.created"
	TypeBookingConfirmed = "booking.confirmed"
	TypeBookingCancelled = "booking.cancelled"
	TypeBookingChanged   = "booking.changed"
	TypeBookingsSwept    = "booking.swept"
)

// BookingEvent is the payload for single-booking lifecycle transitions.
type BookingEvent struct {
	BookingID    string     `json:"booking_id"`
	BookableKind string     `json:"bookable_type"`
	BookableID   string     `json:"bookable_id"`
	BookedByKind string     `json:"booked_by_type,omitempty"`
	BookedByID   string     `json:"booked_by_id,omitempty"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// SweepEvent summarizes one sweep run over expired holds.
type SweepEvent struct {
	CancelledCount int64     `json:"cancelled_count"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher emits booking lifecycle events. Publishing is best effort: a
// failed publish is logged and never fails the booking operation that caused
// it. A nil Publisher is a no-op, so the service runs without Kafka.
type Publisher struct {
	producer *kafka.Producer
	source   string
	log      *logger.Logger
}

func NewPublisher(producer *kafka.Producer, source string, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		source:   source,
		log:      log,
	}
}

func (p *Publisher) BookingCreated(ctx context.Context, b *model.Booking) {
	p.publishBooking(ctx, TypeBookingCreated, b)
}

func (p *Publisher) BookingConfirmed(ctx context.Context, b *model.Booking) {
	p.publishBooking(ctx, TypeBookingConfirmed, b)
}

func (p *Publisher) BookingCancelled(ctx context.Context, b *model.Booking) {
	p.publishBooking(ctx, TypeBookingCancelled, b)
}

func (p *Publisher) BookingChanged(ctx context.Context, b *model.Booking) {
	p.publishBooking(ctx, TypeBookingChanged, b)
}

func (p *Publisher) BookingsSwept(ctx context.Context, cancelled int64, at time.Time) {
	if p == nil || p.producer == nil || cancelled == 0 {
		return
	}

	msg := kafka.NewMessage().
		WithKey("sweep").
		WithEventType(TypeBookingsSwept).
		WithSource(p.source).
		WithValue(SweepEvent{
			CancelledCount: cancelled,
			OccurredAt:     at,
		}).
		Build()

	p.publish(ctx, TypeBookingsSwept, msg)
}

func (p *Publisher) publishBooking(ctx context.Context, eventType string, b *model.Booking) {
	if p == nil || p.producer == nil {
		return
	}

	// Key by subject so events for one bookable stay ordered.
	key := fmt.Sprintf("%s:%s", b.BookableKind, b.BookableID)

	msg := kafka.NewMessage().
		WithKey(key).
		WithEventType(eventType).
		WithSource(p.source).
		WithValue(BookingEvent{
			BookingID:    b.ID,
			BookableKind: b.BookableKind,
			BookableID:   b.BookableID,
			BookedByKind: b.BookedByKind,
			BookedByID:   b.BookedByID,
			StartTime:    b.StartTime,
			EndTime:      b.EndTime,
			Status:       b.Status,
			ExpiresAt:    b.ExpiresAt,
			OccurredAt:   time.Now().UTC(),
		}).
		Build()

	p.publish(ctx, eventType, msg)
}

func (p *Publisher) publish(ctx context.Context, eventType string, msg kafka.Message) {
	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Warn("Failed to publish booking event",
			"event_type", eventType,
			"error", err,
		)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
