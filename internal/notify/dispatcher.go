package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openfleet/ride-booking/internal/booking"
)

// Event is the contract consumed by the notification delivery collaborator.
// user_id doubles as the recipient address, as in the upstream consumer.
type Event struct {
	Type      string    `json:"type"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Reference string    `json:"booking_reference"`
	Timestamp time.Time `json:"timestamp"`
}

const publishTimeout = 3 * time.Second

// Dispatcher formats booking lifecycle events and publishes them
// fire-and-forget: a delivery failure is logged and swallowed, it never
// reaches the booking pipeline.
type Dispatcher struct {
	publisher Publisher
	log       *zap.Logger
	dropped   func() // optional hook, bumps the dropped-notifications counter
}

func NewDispatcher(publisher Publisher, log *zap.Logger, dropped func()) *Dispatcher {
	return &Dispatcher{publisher: publisher, log: log, dropped: dropped}
}

func (d *Dispatcher) BookingConfirmed(ctx context.Context, b *booking.Booking) {
	d.publish(ctx, Event{
		Type:      "booking_confirmation",
		Email:     b.UserID,
		Subject:   "Your booking is confirmed",
		Reference: b.Reference,
		Message: fmt.Sprintf(
			"Your booking %s for bike %s on %s (%s to %s) has been confirmed.",
			b.Reference, b.BikeID, b.Date, b.StartTime, b.EndTime),
	})
}

func (d *Dispatcher) BookingFailed(ctx context.Context, b *booking.Booking) {
	d.publish(ctx, Event{
		Type:      "booking_failure",
		Email:     b.UserID,
		Subject:   "Your booking could not be completed",
		Reference: b.Reference,
		Message: fmt.Sprintf(
			"Your booking %s for bike %s on %s could not be completed: %s.",
			b.Reference, b.BikeID, b.Date, b.Reason),
	})
}

func (d *Dispatcher) BookingCancelled(ctx context.Context, b *booking.Booking) {
	d.publish(ctx, Event{
		Type:      "booking_cancellation",
		Email:     b.UserID,
		Subject:   "Your booking was cancelled",
		Reference: b.Reference,
		Message: fmt.Sprintf(
			"Your booking %s for bike %s on %s (%s to %s) has been cancelled and the slot released.",
			b.Reference, b.BikeID, b.Date, b.StartTime, b.EndTime),
	})
}

func (d *Dispatcher) publish(ctx context.Context, ev Event) {
	ev.Timestamp = time.Now().UTC()

	value, err := json.Marshal(ev)
	if err != nil {
		d.log.Warn("failed to marshal notification event",
			zap.String("type", ev.Type), zap.Error(err))
		d.countDropped()
		return
	}

	// Detached from the request context so a finished request cannot
	// cancel the publish, but still bounded.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(pubCtx, []byte(ev.Reference), value); err != nil {
		d.log.Warn("failed to publish notification event",
			zap.String("type", ev.Type),
			zap.String("reference", ev.Reference),
			zap.Error(err))
		d.countDropped()
	}
}

func (d *Dispatcher) countDropped() {
	if d.dropped != nil {
		d.dropped()
	}
}
