package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfleet/ride-booking/internal/booking"
)

type capturePublisher struct {
	keys   [][]byte
	values [][]byte
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, key, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func testBooking() *booking.Booking {
	return &booking.Booking{
		Reference: "BOOKCAFEF00D",
		BikeID:    "BIKE-0003",
		Date:      "2026-09-14",
		StartTime: "09:00",
		EndTime:   "10:00",
		UserID:    "rider@example.com",
		Status:    booking.StatusBooked,
	}
}

func TestDispatcherPublishesLifecycleEvents(t *testing.T) {
	pub := &capturePublisher{}
	d := NewDispatcher(pub, zap.NewNop(), nil)

	b := testBooking()
	d.BookingConfirmed(context.Background(), b)

	b.Status = booking.StatusFailed
	b.Reason = "slot no longer available"
	d.BookingFailed(context.Background(), b)

	b.Status = booking.StatusCancelled
	d.BookingCancelled(context.Background(), b)

	require.Len(t, pub.values, 3)

	var events []Event
	for i, raw := range pub.values {
		assert.Equal(t, []byte(b.Reference), pub.keys[i], "partition key is the reference")

		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		events = append(events, ev)
	}

	assert.Equal(t, "booking_confirmation", events[0].Type)
	assert.Equal(t, "booking_failure", events[1].Type)
	assert.Equal(t, "booking_cancellation", events[2].Type)

	for _, ev := range events {
		assert.Equal(t, "rider@example.com", ev.Email)
		assert.Equal(t, b.Reference, ev.Reference)
		assert.NotEmpty(t, ev.Subject)
		assert.Contains(t, ev.Message, b.Reference)
		assert.False(t, ev.Timestamp.IsZero())
	}

	assert.Contains(t, events[1].Message, "slot no longer available")
}

func TestDispatcherSwallowsPublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker unreachable")}

	dropped := 0
	d := NewDispatcher(pub, zap.NewNop(), func() { dropped++ })

	d.BookingConfirmed(context.Background(), testBooking())
	d.BookingFailed(context.Background(), testBooking())

	assert.Equal(t, 2, dropped)
	assert.Empty(t, pub.values)
}

func TestDispatcherSurvivesCancelledRequestContext(t *testing.T) {
	pub := &capturePublisher{}
	d := NewDispatcher(pub, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.BookingConfirmed(ctx, testBooking())

	require.Len(t, pub.values, 1)
}
