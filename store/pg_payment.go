package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGPaymentStore implements PaymentStore backed by PostgreSQL.
type PGPaymentStore struct {
	pool *pgxpool.Pool
}

// Capture inserts the payment, relying on the unique index over
// idempotency_key: a replayed capture inserts zero rows and the original
// payment is returned instead. The gateway call that precedes this write
// is the caller's business; this store only guarantees the record is
// written at most once per key.
func (s *PGPaymentStore) Capture(ctx context.Context, p *Payment) (*Payment, error) {
	if p.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PaymentCaptured
	}
	if p.Currency == "" {
		p.Currency = "INR"
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, booking_id, amount_cents, currency, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`,
		p.ID, p.BookingID, p.AmountCents, p.Currency, p.Status, p.IdempotencyKey,
	)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Replay: surface the original capture.
		existing, err := s.GetByKey(ctx, p.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing.BookingID != p.BookingID || existing.AmountCents != p.AmountCents {
			return nil, fmt.Errorf("%w: idempotency key %q reused with different payment details",
				ErrConflict, p.IdempotencyKey)
		}
		return existing, nil
	}

	return s.getByID(ctx, p.ID)
}

func (s *PGPaymentStore) GetByKey(ctx context.Context, key string) (*Payment, error) {
	return scanPayment(s.pool.QueryRow(ctx, paymentSelect+` WHERE idempotency_key = $1`, key))
}

func (s *PGPaymentStore) getByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return scanPayment(s.pool.QueryRow(ctx, paymentSelect+` WHERE id = $1`, id))
}

func (s *PGPaymentStore) ListForBooking(ctx context.Context, bookingID uuid.UUID) ([]*Payment, error) {
	rows, err := s.pool.Query(ctx, paymentSelect+` WHERE booking_id = $1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

const paymentSelect = `
	SELECT id, booking_id, amount_cents, currency, status,
	       COALESCE(idempotency_key, ''), created_at
	FROM payments`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.BookingID, &p.AmountCents, &p.Currency, &p.Status,
		&p.IdempotencyKey, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}

var _ PaymentStore = (*PGPaymentStore)(nil)
