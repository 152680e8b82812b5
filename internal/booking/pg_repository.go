package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var location *string

	err := row.Scan(
		&s.BikeID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&location,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	if location != nil {
		s.Location = *location
	}
	return &s, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var location, reason *string

	err := row.Scan(
		&b.Reference,
		&b.BikeID,
		&b.Date,
		&b.StartTime,
		&b.EndTime,
		&location,
		&b.UserID,
		&b.Status,
		&reason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if location != nil {
		b.Location = *location
	}
	if reason != nil {
		b.Reason = *reason
	}
	return &b, nil
}

const bookingColumns = `booking_reference, bike_id, date, start_time, end_time, location, user_id, status, reason, created_at, updated_at`

// Availability

func (r *PgRepository) PublishSlots(ctx context.Context, bikeID, date string, slots []Slot, replace bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback(ctx)

	if replace {
		_, err := tx.Exec(ctx, `
			DELETE FROM availability_slots
			WHERE bike_id = $1 AND date = $2
		`, bikeID, date)
		if err != nil {
			return fmt.Errorf("clear existing slots: %w", err)
		}
	}

	for _, s := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_slots (bike_id, date, start_time, end_time, location, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (bike_id, date, start_time, end_time) DO NOTHING
		`, bikeID, date, s.StartTime, s.EndTime, nullableString(s.Location))
		if err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetSlot(ctx context.Context, id SlotIdentity) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT bike_id, date, start_time, end_time, location
		FROM availability_slots
		WHERE bike_id = $1 AND date = $2 AND start_time = $3 AND end_time = $4
	`, id.BikeID, id.Date, id.StartTime, id.EndTime)
	return scanSlot(row)
}

// ReserveSlot is the synchronization point of the whole pipeline: a single
// conditional DELETE. Two concurrent claims for the same identity cannot
// both observe a deleted row.
func (r *PgRepository) ReserveSlot(ctx context.Context, id SlotIdentity) (*Slot, bool, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM availability_slots
		WHERE bike_id = $1 AND date = $2 AND start_time = $3 AND end_time = $4
		RETURNING bike_id, date, start_time, end_time, location
	`, id.BikeID, id.Date, id.StartTime, id.EndTime)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reserve slot: %w", err)
	}

	return slot, true, nil
}

func (r *PgRepository) RestoreSlot(ctx context.Context, slot Slot) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_slots (bike_id, date, start_time, end_time, location, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (bike_id, date, start_time, end_time) DO NOTHING
	`, slot.BikeID, slot.Date, slot.StartTime, slot.EndTime, nullableString(slot.Location))
	if err != nil {
		return fmt.Errorf("restore slot: %w", err)
	}
	return nil
}

func (r *PgRepository) ListSlots(ctx context.Context, bikeID, date string) ([]Slot, error) {
	query := `
		SELECT bike_id, date, start_time, end_time, location
		FROM availability_slots
	`
	var args []any
	switch {
	case bikeID != "" && date != "":
		query += ` WHERE bike_id = $1 AND date = $2`
		args = []any{bikeID, date}
	case bikeID != "":
		query += ` WHERE bike_id = $1`
		args = []any{bikeID}
	case date != "":
		query += ` WHERE date = $1`
		args = []any{date}
	}
	query += ` ORDER BY bike_id, date, start_time`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Bookings

func (r *PgRepository) InsertPendingBooking(ctx context.Context, b *Booking) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO bookings (booking_reference, bike_id, date, start_time, end_time, location, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', now(), now())
		ON CONFLICT (booking_reference) DO NOTHING
	`, b.Reference, b.BikeID, b.Date, b.StartTime, b.EndTime, nullableString(b.Location), b.UserID)
	if err != nil {
		return fmt.Errorf("insert pending booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReferenceConflict
	}

	b.Status = StatusPending
	return nil
}

func (r *PgRepository) GetBookingByReference(ctx context.Context, ref string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE booking_reference = $1
	`, ref)
	return scanBooking(row)
}

func (r *PgRepository) ListBookings(ctx context.Context, userID string, status BookingStatus, limit, offset int) ([]Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
	`
	var args []any
	switch {
	case userID != "" && status != "":
		query += ` WHERE user_id = $1 AND status = $2`
		args = []any{userID, status}
	case userID != "":
		query += ` WHERE user_id = $1`
		args = []any{userID}
	case status != "":
		query += ` WHERE status = $1`
		args = []any{status}
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, ref string, from []BookingStatus, to BookingStatus, reason string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    reason = $3,
		    updated_at = now()
		WHERE booking_reference = $1
		  AND status = ANY($4)
		RETURNING `+bookingColumns+`
	`, ref, to, nullableString(reason), statusStrings(from))

	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// Distinguish a missing row from a lost status race.
			if _, getErr := r.GetBookingByReference(ctx, ref); getErr == nil {
				return nil, ErrStatusConflict
			}
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	return b, nil
}

// CancelBooking performs the compensating transaction: the status
// transition and the slot restore commit or roll back together, so a
// successful cancel can never have lost the slot. The transition is
// conditioned on the status the caller observed; a pending booking never
// claimed its slot, so only a booked cancel carries a restore.
func (r *PgRepository) CancelBooking(ctx context.Context, ref string, from BookingStatus, restore *Slot) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
		    updated_at = now()
		WHERE booking_reference = $1
		  AND status = $2
		RETURNING `+bookingColumns,
		ref, string(from))

	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	if restore != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO availability_slots (bike_id, date, start_time, end_time, location, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (bike_id, date, start_time, end_time) DO NOTHING
		`, restore.BikeID, restore.Date, restore.StartTime, restore.EndTime, nullableString(restore.Location))
		if err != nil {
			return nil, fmt.Errorf("restore slot on cancel: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	return b, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev BookingEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO booking_events (event_type, booking_reference, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.Reference, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}

	return nil
}

func statusStrings(statuses []BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
