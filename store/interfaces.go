package store

import (
	"context"

	"github.com/google/uuid"
)

// BookingStore defines persistence operations for bookings.
type BookingStore interface {
	// Create inserts a new booking in the pending state.
	Create(ctx context.Context, b *Booking) error

	// Get returns the booking with the given ID, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Booking, error)

	// Accept transitions a pending booking to accepted on behalf of its
	// provider. The row is locked for the duration of the transition;
	// a second concurrent Accept observes the new state and gets
	// ErrConflict rather than silently winning. A provider other than
	// the booking's gets ErrForbidden.
	Accept(ctx context.Context, id, providerID uuid.UUID) (*Booking, error)

	// Decline transitions a pending booking to declined, with the same
	// locking and ownership rules as Accept.
	Decline(ctx context.Context, id, providerID uuid.UUID) (*Booking, error)
}

// PaymentStore defines persistence operations for payments.
type PaymentStore interface {
	// Capture records a captured payment, idempotent by IdempotencyKey:
	// replaying a capture with the same key returns the original payment
	// and never charges twice. Reusing a key with different payment
	// details is ErrConflict.
	Capture(ctx context.Context, p *Payment) (*Payment, error)

	// GetByKey returns the payment recorded under the idempotency key,
	// or ErrNotFound.
	GetByKey(ctx context.Context, key string) (*Payment, error)

	// ListForBooking returns all payments against a booking, oldest first.
	ListForBooking(ctx context.Context, bookingID uuid.UUID) ([]*Payment, error)
}
