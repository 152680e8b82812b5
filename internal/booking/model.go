package booking

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusBooked    BookingStatus = "booked"
	StatusFailed    BookingStatus = "failed"
	StatusCancelled BookingStatus = "cancelled"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// SlotIdentity is the full identity of an open slot: one bike, one date,
// one time range. Location is descriptive and not part of the identity.
type SlotIdentity struct {
	BikeID    string `json:"bike_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (id SlotIdentity) Validate() error {
	if id.BikeID == "" {
		return fmt.Errorf("%w: bike_id is required", ErrInvalidInput)
	}
	if _, err := time.Parse(dateLayout, id.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	start, err := time.Parse(timeLayout, id.StartTime)
	if err != nil {
		return fmt.Errorf("%w: start_time must be HH:MM", ErrInvalidInput)
	}
	end, err := time.Parse(timeLayout, id.EndTime)
	if err != nil {
		return fmt.Errorf("%w: end_time must be HH:MM", ErrInvalidInput)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start_time must be before end_time", ErrInvalidInput)
	}
	return nil
}

type Slot struct {
	BikeID    string `json:"bike_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Location  string `json:"location,omitempty"`
}

func (s Slot) Identity() SlotIdentity {
	return SlotIdentity{
		BikeID:    s.BikeID,
		Date:      s.Date,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
	}
}

type Booking struct {
	Reference string
	BikeID    string
	Date      string
	StartTime string
	EndTime   string
	Location  string
	UserID    string
	Status    BookingStatus
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApprovalMessage is the immutable fact published once per admitted booking
// request. Delivery is at least once; consumers must tolerate duplicates.
type ApprovalMessage struct {
	BookingReference string    `json:"booking_reference"`
	BikeID           string    `json:"bike_id"`
	Date             string    `json:"date"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	UserID           string    `json:"user_id"`
	RequestedAt      time.Time `json:"requested_at"`
}

func (m ApprovalMessage) SlotIdentity() SlotIdentity {
	return SlotIdentity{
		BikeID:    m.BikeID,
		Date:      m.Date,
		StartTime: m.StartTime,
		EndTime:   m.EndTime,
	}
}

type BookingEvent struct {
	ID        int64
	EventType string
	Reference string
	Payload   []byte
	CreatedAt time.Time
}
