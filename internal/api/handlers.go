package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openfleet/ride-booking/internal/booking"
	"github.com/openfleet/ride-booking/internal/metrics"
)

// BookingService is what the handlers need from the domain layer.
type BookingService interface {
	PublishAvailability(ctx context.Context, id booking.Identity, bikeID, date string, slots []booking.Slot, replace bool) error
	ListAvailability(ctx context.Context, bikeID, date string) ([]booking.Slot, error)
	RequestBooking(ctx context.Context, id booking.Identity, req booking.BookingRequest) (*booking.Booking, error)
	CancelBooking(ctx context.Context, id booking.Identity, ref string) (*booking.Booking, error)
	GetBooking(ctx context.Context, ref string) (*booking.Booking, error)
	ListBookings(ctx context.Context, userID string, status booking.BookingStatus, limit, offset int) ([]booking.Booking, error)
}

func publishAvailabilityHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PublishAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slots := make([]booking.Slot, 0, len(req.Slots))
		for _, in := range req.Slots {
			slots = append(slots, booking.Slot{
				StartTime: in.StartTime,
				EndTime:   in.EndTime,
				Location:  in.Location,
			})
		}

		err := svc.PublishAvailability(r.Context(), GetIdentity(r.Context()), req.BikeID, req.Date, slots, req.Replace)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, PublishAvailabilityResponse{
			BikeID: req.BikeID,
			Date:   req.Date,
			Count:  len(slots),
		})
	}
}

func listAvailabilityHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bikeID := r.URL.Query().Get("bike_id")
		date := r.URL.Query().Get("date")

		slots, err := svc.ListAvailability(r.Context(), bikeID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		if len(slots) == 0 && bikeID != "" {
			writeError(w, http.StatusNotFound, "no_slots_available", "no open slots match the query")
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			Slots: slots,
			Count: len(slots),
		})
	}
}

func createBookingHandler(svc BookingService, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.RequestBooking(r.Context(), GetIdentity(r.Context()), booking.BookingRequest{
			BikeID:    req.BikeID,
			Date:      req.Date,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			UserID:    req.UserID,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		m.BookingsRequested.Inc()

		// The outcome is decided asynchronously; the caller polls or waits
		// for a notification.
		writeJSON(w, http.StatusAccepted, toBookingResponse(b))
	}
}

func getBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "reference")

		b, err := svc.GetBooking(r.Context(), ref)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func listBookingsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if ref := q.Get("booking_reference"); ref != "" {
			b, err := svc.GetBooking(r.Context(), ref)
			if err != nil {
				handleServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toBookingResponse(b))
			return
		}

		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		bookings, err := svc.ListBookings(r.Context(),
			q.Get("user_id"), booking.BookingStatus(q.Get("status")), limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := BookingListResponse{Bookings: make([]BookingResponse, 0, len(bookings))}
		for i := range bookings {
			resp.Bookings = append(resp.Bookings, toBookingResponse(&bookings[i]))
		}
		resp.Count = len(resp.Bookings)

		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelBookingHandler(svc BookingService, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "reference")

		b, err := svc.CancelBooking(r.Context(), GetIdentity(r.Context()), ref)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		m.BookingsCancelled.Inc()

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", "no matching open slot")
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", "unknown booking reference")
	case errors.Is(err, booking.ErrStatusConflict):
		writeError(w, http.StatusConflict, "status_conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
