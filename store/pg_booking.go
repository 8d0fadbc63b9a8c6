package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGBookingStore implements BookingStore backed by PostgreSQL.
type PGBookingStore struct {
	pool *pgxpool.Pool
}

func (s *PGBookingStore) Create(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = BookingPending
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, customer_id, provider_id, service_id, status, scheduled_at, address, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		b.ID, b.CustomerID, b.ProviderID, b.ServiceID, b.Status, b.ScheduledAt, b.Address, b.Notes,
	)
	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		if isDuplicateError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (s *PGBookingStore) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return scanBooking(s.pool.QueryRow(ctx, bookingSelect+` WHERE id = $1`, id))
}

func (s *PGBookingStore) Accept(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	return s.transition(ctx, id, providerID, BookingAccepted)
}

func (s *PGBookingStore) Decline(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	return s.transition(ctx, id, providerID, BookingDeclined)
}

// transition moves a pending booking to the target status under a row lock,
// so two providers racing on the same booking serialize and the loser sees
// the already-transitioned state instead of overwriting it.
func (s *PGBookingStore) transition(ctx context.Context, id, providerID uuid.UUID, target BookingStatus) (*Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := scanBooking(tx.QueryRow(ctx, bookingSelect+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if b.ProviderID != providerID {
		return nil, fmt.Errorf("%w: booking %s belongs to another provider", ErrForbidden, id)
	}
	if b.Status != BookingPending {
		return nil, fmt.Errorf("%w: booking %s is already %s", ErrConflict, id, b.Status)
	}

	row := tx.QueryRow(ctx, `
		UPDATE bookings SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING updated_at`,
		target, id,
	)
	if err := row.Scan(&b.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	b.Status = target

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking transition: %w", err)
	}
	return b, nil
}

const bookingSelect = `
	SELECT id, customer_id, provider_id, service_id, status, scheduled_at,
	       COALESCE(address, ''), COALESCE(notes, ''), created_at, updated_at
	FROM bookings`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.ProviderID, &b.ServiceID, &b.Status,
		&b.ScheduledAt, &b.Address, &b.Notes, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	return &b, nil
}

var _ BookingStore = (*PGBookingStore)(nil)
