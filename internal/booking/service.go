package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventBookingRequested   = "BOOKING_REQUESTED"
	EventBookingApproved    = "BOOKING_APPROVED"
	EventBookingFailed      = "BOOKING_FAILED"
	EventBookingCancelled   = "BOOKING_CANCELLED"
	EventSlotClaimReverted  = "SLOT_CLAIM_REVERTED"
	EventAvailabilityUpsert = "AVAILABILITY_PUBLISHED"
)

const (
	ReasonSlotUnavailable     = "slot no longer available"
	ReasonProcessingExhausted = "processing exhausted"

	maxReferenceAttempts = 5
)

// Enqueuer publishes an approval message to the asynchronous channel.
// Delivery downstream is at least once.
type Enqueuer interface {
	EnqueueApproval(ctx context.Context, msg ApprovalMessage) error
}

// Notifier is the fire-and-forget notification sink. Implementations must
// never block booking-state commits; failures are theirs to log.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b *Booking)
	BookingFailed(ctx context.Context, b *Booking)
	BookingCancelled(ctx context.Context, b *Booking)
}

// Outcome reports what an approval pass did, mostly for metrics and tests.
type Outcome string

const (
	OutcomeBooked Outcome = "booked"
	OutcomeFailed Outcome = "failed"
	OutcomeNoop   Outcome = "noop"
)

type Service struct {
	repo     Repository
	enqueuer Enqueuer
	notifier Notifier
	log      *zap.Logger
}

func NewService(repo Repository, enqueuer Enqueuer, notifier Notifier, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		enqueuer: enqueuer,
		notifier: notifier,
		log:      log,
	}
}

// PublishAvailability replaces or extends the open slot set for one bike and
// date. Operators only; a single publisher per bike is assumed.
func (s *Service) PublishAvailability(ctx context.Context, id Identity, bikeID, date string, slots []Slot, replace bool) error {
	if !id.IsOperator() {
		return fmt.Errorf("%w: publishing availability requires the operator role", ErrForbidden)
	}
	if bikeID == "" {
		return fmt.Errorf("%w: bike_id is required", ErrInvalidInput)
	}
	if len(slots) == 0 {
		return fmt.Errorf("%w: slots must not be empty", ErrInvalidInput)
	}

	// Stamp a copy; the caller keeps its slice.
	stamped := make([]Slot, len(slots))
	copy(stamped, slots)
	for i := range stamped {
		stamped[i].BikeID = bikeID
		stamped[i].Date = date
		if err := stamped[i].Identity().Validate(); err != nil {
			return err
		}
	}

	if err := s.repo.PublishSlots(ctx, bikeID, date, stamped, replace); err != nil {
		return fmt.Errorf("publish slots: %w", err)
	}

	s.logEvent(ctx, EventAvailabilityUpsert, "", map[string]any{
		"bike_id": bikeID,
		"date":    date,
		"count":   len(slots),
		"replace": replace,
	})

	return nil
}

func (s *Service) ListAvailability(ctx context.Context, bikeID, date string) ([]Slot, error) {
	slots, err := s.repo.ListSlots(ctx, bikeID, date)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return slots, nil
}

type BookingRequest struct {
	BikeID    string
	Date      string
	StartTime string
	EndTime   string
	UserID    string
}

// RequestBooking admits a reservation request: it validates, verifies the
// slot still looks open, persists a pending booking under a fresh unique
// reference and hands the final decision to the approval channel. The caller
// gets back a pending booking, never a terminal state.
func (s *Service) RequestBooking(ctx context.Context, id Identity, req BookingRequest) (*Booking, error) {
	if !id.IsCustomer() {
		return nil, fmt.Errorf("%w: booking requires the registered customer role", ErrForbidden)
	}

	userID := req.UserID
	if userID == "" {
		userID = id.UserID
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}

	slotID := SlotIdentity{BikeID: req.BikeID, Date: req.Date, StartTime: req.StartTime, EndTime: req.EndTime}
	if err := slotID.Validate(); err != nil {
		return nil, err
	}

	// Early reject only. The approval worker re-validates against the
	// authoritative store, so a stale positive here is harmless. The
	// booking carries the slot's location so a later booked cancel can
	// restore the slot as published.
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("check availability: %w", err)
	}

	b := &Booking{
		BikeID:    req.BikeID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Location:  slot.Location,
		UserID:    userID,
		Status:    StatusPending,
	}

	// The conditional insert is the uniqueness guarantee; regeneration
	// handles the (unlikely) reference collision.
	inserted := false
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		b.Reference = newBookingReference()
		err := s.repo.InsertPendingBooking(ctx, b)
		if err == nil {
			inserted = true
			break
		}
		if errors.Is(err, ErrReferenceConflict) {
			s.log.Warn("booking reference collision, regenerating",
				zap.String("reference", b.Reference))
			continue
		}
		return nil, fmt.Errorf("persist pending booking: %w", err)
	}
	if !inserted {
		return nil, fmt.Errorf("exhausted booking reference attempts")
	}

	s.logEvent(ctx, EventBookingRequested, b.Reference, map[string]any{
		"bike_id": b.BikeID,
		"date":    b.Date,
		"user_id": b.UserID,
	})

	msg := ApprovalMessage{
		BookingReference: b.Reference,
		BikeID:           b.BikeID,
		Date:             b.Date,
		StartTime:        b.StartTime,
		EndTime:          b.EndTime,
		UserID:           b.UserID,
		RequestedAt:      time.Now().UTC(),
	}

	if err := s.enqueuer.EnqueueApproval(ctx, msg); err != nil {
		// The pending row must not be left silent when the approval
		// channel never saw the message.
		if _, updErr := s.repo.UpdateBookingStatus(ctx, b.Reference,
			[]BookingStatus{StatusPending}, StatusFailed, "approval message could not be published"); updErr != nil {
			s.log.Error("failed to fail booking after enqueue error",
				zap.String("reference", b.Reference), zap.Error(updErr))
		}
		return nil, fmt.Errorf("enqueue approval: %w", err)
	}

	return b, nil
}

// ProcessApproval is the second phase. It is safe under duplicate delivery:
// every mutation is conditioned on the expected prior state, so a redelivery
// after a successful commit observes a finalized booking and does nothing.
// A returned error means the pass was transient and the message should be
// redelivered; domain failures resolve into a failed booking and return nil.
func (s *Service) ProcessApproval(ctx context.Context, msg ApprovalMessage) (Outcome, error) {
	b, err := s.repo.GetBookingByReference(ctx, msg.BookingReference)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			s.log.Warn("approval message for unknown booking, dropping",
				zap.String("reference", msg.BookingReference))
			return OutcomeNoop, nil
		}
		return OutcomeNoop, fmt.Errorf("load booking: %w", err)
	}

	if b.Status != StatusPending {
		s.log.Debug("booking already finalized, acknowledging redelivery",
			zap.String("reference", b.Reference), zap.String("status", string(b.Status)))
		return OutcomeNoop, nil
	}

	slot, claimed, err := s.repo.ReserveSlot(ctx, msg.SlotIdentity())
	if err != nil {
		return OutcomeNoop, fmt.Errorf("reserve slot: %w", err)
	}

	if !claimed {
		return s.finalizeFailed(ctx, msg)
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, msg.BookingReference,
		[]BookingStatus{StatusPending}, StatusBooked, "")
	if err != nil {
		// The slot is claimed but the booking did not move to booked;
		// put the slot back before deciding anything else.
		s.revertClaim(ctx, msg.BookingReference, *slot)

		if errors.Is(err, ErrStatusConflict) {
			// Lost the race against cancellation; the compensating
			// restore above is the whole outcome.
			return OutcomeNoop, nil
		}
		return OutcomeNoop, fmt.Errorf("mark booking booked: %w", err)
	}

	s.logEvent(ctx, EventBookingApproved, updated.Reference, map[string]any{
		"bike_id":    updated.BikeID,
		"date":       updated.Date,
		"start_time": updated.StartTime,
		"end_time":   updated.EndTime,
	})

	s.notifier.BookingConfirmed(ctx, updated)

	return OutcomeBooked, nil
}

func (s *Service) finalizeFailed(ctx context.Context, msg ApprovalMessage) (Outcome, error) {
	updated, err := s.repo.UpdateBookingStatus(ctx, msg.BookingReference,
		[]BookingStatus{StatusPending}, StatusFailed, ReasonSlotUnavailable)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrBookingNotFound) {
			return OutcomeNoop, nil
		}
		// Nothing was claimed, so a retry of the whole pass is safe.
		return OutcomeNoop, fmt.Errorf("mark booking failed: %w", err)
	}

	s.logEvent(ctx, EventBookingFailed, updated.Reference, map[string]any{
		"reason": ReasonSlotUnavailable,
	})

	s.notifier.BookingFailed(ctx, updated)

	return OutcomeFailed, nil
}

func (s *Service) revertClaim(ctx context.Context, ref string, slot Slot) {
	if err := s.repo.RestoreSlot(ctx, slot); err != nil {
		// The claim could not be compensated; leave a loud trail.
		s.log.Error("failed to restore slot after losing status race",
			zap.String("reference", ref),
			zap.String("bike_id", slot.BikeID),
			zap.String("date", slot.Date),
			zap.Error(err))
		return
	}

	s.logEvent(ctx, EventSlotClaimReverted, ref, map[string]any{
		"bike_id":    slot.BikeID,
		"date":       slot.Date,
		"start_time": slot.StartTime,
		"end_time":   slot.EndTime,
	})
}

// MarkProcessingExhausted records the terminal failure for a message that
// spent its whole redelivery budget on transient errors. The task itself is
// dead-lettered by the queue.
func (s *Service) MarkProcessingExhausted(ctx context.Context, ref string) {
	updated, err := s.repo.UpdateBookingStatus(ctx, ref,
		[]BookingStatus{StatusPending}, StatusFailed, ReasonProcessingExhausted)
	if err != nil {
		if !errors.Is(err, ErrStatusConflict) && !errors.Is(err, ErrBookingNotFound) {
			s.log.Error("failed to mark booking as processing exhausted",
				zap.String("reference", ref), zap.Error(err))
		}
		return
	}

	s.logEvent(ctx, EventBookingFailed, ref, map[string]any{
		"reason": ReasonProcessingExhausted,
	})

	s.notifier.BookingFailed(ctx, updated)
}

// CancelBooking transitions an active booking to cancelled. A booked
// booking holds its slot, so its cancel restores the slot in the same
// transaction. A pending booking never claimed one: restoring here would
// resurrect a slot a competing booking may hold, so the pending cancel
// carries no restore and the approval worker's claim compensation covers
// the cancel-overtakes-approval race. Cancelling twice is a no-op success.
func (s *Service) CancelBooking(ctx context.Context, id Identity, ref string) (*Booking, error) {
	b, err := s.repo.GetBookingByReference(ctx, ref)
	if err != nil {
		return nil, err
	}

	if !id.IsOperator() && b.UserID != id.UserID {
		return nil, fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
	}

	// The status can move under us (approval booking a pending request),
	// so each attempt is conditioned on the status just observed and a
	// lost race re-reads. pending→booked→cancelled is the longest chain.
	for attempt := 0; attempt < 3; attempt++ {
		switch b.Status {
		case StatusCancelled:
			return b, nil
		case StatusFailed:
			return nil, fmt.Errorf("%w: booking already failed", ErrStatusConflict)
		}

		var restore *Slot
		if b.Status == StatusBooked {
			restore = &Slot{
				BikeID:    b.BikeID,
				Date:      b.Date,
				StartTime: b.StartTime,
				EndTime:   b.EndTime,
				Location:  b.Location,
			}
		}

		cancelled, err := s.repo.CancelBooking(ctx, ref, b.Status, restore)
		if err != nil {
			if errors.Is(err, ErrStatusConflict) {
				b, err = s.repo.GetBookingByReference(ctx, ref)
				if err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("cancel booking: %w", err)
		}

		s.logEvent(ctx, EventBookingCancelled, cancelled.Reference, map[string]any{
			"bike_id":       cancelled.BikeID,
			"date":          cancelled.Date,
			"cancelled_by":  id.UserID,
			"from_operator": id.IsOperator(),
		})

		s.notifier.BookingCancelled(ctx, cancelled)

		return cancelled, nil
	}

	return nil, ErrStatusConflict
}

func (s *Service) GetBooking(ctx context.Context, ref string) (*Booking, error) {
	return s.repo.GetBookingByReference(ctx, ref)
}

func (s *Service) ListBookings(ctx context.Context, userID string, status BookingStatus, limit, offset int) ([]Booking, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := s.repo.ListBookings(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

func (s *Service) logEvent(ctx context.Context, eventType, ref string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := BookingEvent{
		EventType: eventType,
		Reference: ref,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert booking event",
			zap.String("event", eventType), zap.String("reference", ref), zap.Error(err))
	}
}

// newBookingReference yields BOOK plus 8 uppercase hex characters.
func newBookingReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "BOOK" + strings.ToUpper(raw[:8])
}
