package booking

import (
	"context"
	"sync"
	"time"
)

// memRepo is an in-memory Repository with the same conditional-write
// semantics as the Postgres implementation, guarded by one mutex so
// concurrent tests exercise real interleavings.
type memRepo struct {
	mu       sync.Mutex
	slots    map[SlotIdentity]Slot
	bookings map[string]*Booking
	events   []BookingEvent
}

func newMemRepo() *memRepo {
	return &memRepo{
		slots:    make(map[SlotIdentity]Slot),
		bookings: make(map[string]*Booking),
	}
}

func (r *memRepo) PublishSlots(ctx context.Context, bikeID, date string, slots []Slot, replace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if replace {
		for id := range r.slots {
			if id.BikeID == bikeID && id.Date == date {
				delete(r.slots, id)
			}
		}
	}
	for _, s := range slots {
		if _, exists := r.slots[s.Identity()]; !exists {
			r.slots[s.Identity()] = s
		}
	}
	return nil
}

func (r *memRepo) GetSlot(ctx context.Context, id SlotIdentity) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := s
	return &cp, nil
}

func (r *memRepo) ReserveSlot(ctx context.Context, id SlotIdentity) (*Slot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, false, nil
	}
	delete(r.slots, id)
	return &s, true, nil
}

func (r *memRepo) RestoreSlot(ctx context.Context, slot Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.slots[slot.Identity()]; !exists {
		r.slots[slot.Identity()] = slot
	}
	return nil
}

func (r *memRepo) ListSlots(ctx context.Context, bikeID, date string) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Slot
	for id, s := range r.slots {
		if bikeID != "" && id.BikeID != bikeID {
			continue
		}
		if date != "" && id.Date != date {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *memRepo) InsertPendingBooking(ctx context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bookings[b.Reference]; exists {
		return ErrReferenceConflict
	}

	now := time.Now()
	stored := *b
	stored.Status = StatusPending
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.bookings[b.Reference] = &stored

	b.Status = StatusPending
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

func (r *memRepo) GetBookingByReference(ctx context.Context, ref string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[ref]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memRepo) ListBookings(ctx context.Context, userID string, status BookingStatus, limit, offset int) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Booking
	for _, b := range r.bookings {
		if userID != "" && b.UserID != userID {
			continue
		}
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, *b)
	}

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) UpdateBookingStatus(ctx context.Context, ref string, from []BookingStatus, to BookingStatus, reason string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(ref, from, to, reason)
}

func (r *memRepo) updateLocked(ref string, from []BookingStatus, to BookingStatus, reason string) (*Booking, error) {
	b, ok := r.bookings[ref]
	if !ok {
		return nil, ErrBookingNotFound
	}

	matched := false
	for _, f := range from {
		if b.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrStatusConflict
	}

	b.Status = to
	b.Reason = reason
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (r *memRepo) CancelBooking(ctx context.Context, ref string, from BookingStatus, restore *Slot) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.updateLocked(ref, []BookingStatus{from}, StatusCancelled, "")
	if err != nil {
		if err == ErrBookingNotFound {
			return nil, ErrStatusConflict
		}
		return nil, err
	}

	if restore != nil {
		if _, exists := r.slots[restore.Identity()]; !exists {
			r.slots[restore.Identity()] = *restore
		}
	}
	return b, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) slotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// memEnqueuer records approval messages; tests drive the worker pass
// themselves.
type memEnqueuer struct {
	mu       sync.Mutex
	messages []ApprovalMessage
	err      error
}

func (e *memEnqueuer) EnqueueApproval(ctx context.Context, msg ApprovalMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

func (e *memEnqueuer) last() ApprovalMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.messages[len(e.messages)-1]
}

type memNotifier struct {
	mu        sync.Mutex
	confirmed []string
	failed    []string
	cancelled []string
}

func (n *memNotifier) BookingConfirmed(ctx context.Context, b *Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, b.Reference)
}

func (n *memNotifier) BookingFailed(ctx context.Context, b *Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, b.Reference)
}

func (n *memNotifier) BookingCancelled(ctx context.Context, b *Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, b.Reference)
}

// collideOnceRepo forces one reference collision to exercise regeneration.
type collideOnceRepo struct {
	Repository
	mu      sync.Mutex
	collide bool
}

func (r *collideOnceRepo) InsertPendingBooking(ctx context.Context, b *Booking) error {
	r.mu.Lock()
	if !r.collide {
		r.collide = true
		r.mu.Unlock()
		return ErrReferenceConflict
	}
	r.mu.Unlock()
	return r.Repository.InsertPendingBooking(ctx, b)
}

// hookedReserveRepo runs a callback right after a successful claim, to pin
// down interleavings where another actor moves the booking status between
// the claim and the booked transition.
type hookedReserveRepo struct {
	Repository
	afterReserve func()
}

func (r *hookedReserveRepo) ReserveSlot(ctx context.Context, id SlotIdentity) (*Slot, bool, error) {
	s, claimed, err := r.Repository.ReserveSlot(ctx, id)
	if claimed && r.afterReserve != nil {
		r.afterReserve()
	}
	return s, claimed, err
}

// flakyReserveRepo fails ReserveSlot with an infrastructure error.
type flakyReserveRepo struct {
	Repository
	err error
}

func (r *flakyReserveRepo) ReserveSlot(ctx context.Context, id SlotIdentity) (*Slot, bool, error) {
	return nil, false, r.err
}
