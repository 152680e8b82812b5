package api

import (
	"time"

	"github.com/openfleet/ride-booking/internal/booking"
)

type SlotInput struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Location  string `json:"location,omitempty"`
}

type PublishAvailabilityRequest struct {
	BikeID  string      `json:"bike_id"`
	Date    string      `json:"date"`
	Slots   []SlotInput `json:"slots"`
	Replace bool        `json:"replace,omitempty"`
}

type PublishAvailabilityResponse struct {
	BikeID string `json:"bike_id"`
	Date   string `json:"date"`
	Count  int    `json:"count"`
}

type AvailabilityResponse struct {
	Slots []booking.Slot `json:"slots"`
	Count int            `json:"count"`
}

type CreateBookingRequest struct {
	BikeID    string `json:"bike_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	UserID    string `json:"user_id,omitempty"`
}

type BookingResponse struct {
	BookingReference string    `json:"booking_reference"`
	BikeID           string    `json:"bike_id"`
	Date             string    `json:"date"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	UserID           string    `json:"user_id"`
	Status           string    `json:"status"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type BookingListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Count    int               `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		BookingReference: b.Reference,
		BikeID:           b.BikeID,
		Date:             b.Date,
		StartTime:        b.StartTime,
		EndTime:          b.EndTime,
		UserID:           b.UserID,
		Status:           string(b.Status),
		Reason:           b.Reason,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}
