package booking

import (
	"context"
	"errors"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrReferenceConflict = errors.New("booking reference already exists")
	ErrStatusConflict    = errors.New("booking is not in an expected status")
)

// Repository contains all store interactions the pipeline needs. Every
// mutation is conditional: claims are single-statement deletes, status
// changes are guarded by the expected prior status.
type Repository interface {
	// Availability
	PublishSlots(ctx context.Context, bikeID, date string, slots []Slot, replace bool) error
	// GetSlot reads an open slot without claiming it. ErrSlotNotFound when
	// no slot matches the identity.
	GetSlot(ctx context.Context, id SlotIdentity) (*Slot, error)
	// ReserveSlot atomically removes the matching slot. The second return is
	// true iff a slot existed at the instant of removal; the returned slot
	// carries the location needed for a later restore.
	ReserveSlot(ctx context.Context, id SlotIdentity) (*Slot, bool, error)
	RestoreSlot(ctx context.Context, slot Slot) error
	ListSlots(ctx context.Context, bikeID, date string) ([]Slot, error)

	// Bookings
	InsertPendingBooking(ctx context.Context, b *Booking) error
	GetBookingByReference(ctx context.Context, ref string) (*Booking, error)
	ListBookings(ctx context.Context, userID string, status BookingStatus, limit, offset int) ([]Booking, error)
	UpdateBookingStatus(ctx context.Context, ref string, from []BookingStatus, to BookingStatus, reason string) (*Booking, error)
	// CancelBooking commits the cancelled transition, conditioned on the
	// expected prior status, and the compensating slot restore in a single
	// transaction. A nil restore skips the insert: only a booking that
	// actually holds its slot (booked) may put it back. Returns
	// ErrStatusConflict when the booking is no longer in the from status.
	CancelBooking(ctx context.Context, ref string, from BookingStatus, restore *Slot) (*Booking, error)

	// Audit trail
	InsertEvent(ctx context.Context, ev BookingEvent) error
}
