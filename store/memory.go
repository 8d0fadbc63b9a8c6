package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryBookingStore is a thread-safe in-memory implementation of
// BookingStore for testing and single-node development. Semantics match
// the PostgreSQL implementation; the mutex stands in for the row lock.
type InMemoryBookingStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
}

// NewInMemoryBookingStore creates a new InMemoryBookingStore.
func NewInMemoryBookingStore() *InMemoryBookingStore {
	return &InMemoryBookingStore{bookings: make(map[uuid.UUID]*Booking)}
}

func (s *InMemoryBookingStore) Create(_ context.Context, b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = BookingPending
	}
	if _, exists := s.bookings[b.ID]; exists {
		return ErrDuplicate
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := *b
	s.bookings[b.ID] = &cp
	return nil
}

func (s *InMemoryBookingStore) Get(_ context.Context, id uuid.UUID) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *InMemoryBookingStore) Accept(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	return s.transition(ctx, id, providerID, BookingAccepted)
}

func (s *InMemoryBookingStore) Decline(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	return s.transition(ctx, id, providerID, BookingDeclined)
}

func (s *InMemoryBookingStore) transition(_ context.Context, id, providerID uuid.UUID, target BookingStatus) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if b.ProviderID != providerID {
		return nil, fmt.Errorf("%w: booking %s belongs to another provider", ErrForbidden, id)
	}
	if b.Status != BookingPending {
		return nil, fmt.Errorf("%w: booking %s is already %s", ErrConflict, id, b.Status)
	}

	b.Status = target
	b.UpdatedAt = time.Now().UTC()
	cp := *b
	return &cp, nil
}

// InMemoryPaymentStore is a thread-safe in-memory implementation of
// PaymentStore for testing and single-node development.
type InMemoryPaymentStore struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*Payment
	byKey    map[string]uuid.UUID
	ordering []uuid.UUID
}

// NewInMemoryPaymentStore creates a new InMemoryPaymentStore.
func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		byID:  make(map[uuid.UUID]*Payment),
		byKey: make(map[string]uuid.UUID),
	}
}

func (s *InMemoryPaymentStore) Capture(_ context.Context, p *Payment) (*Payment, error) {
	if p.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byKey[p.IdempotencyKey]; ok {
		existing := s.byID[existingID]
		if existing.BookingID != p.BookingID || existing.AmountCents != p.AmountCents {
			return nil, fmt.Errorf("%w: idempotency key %q reused with different payment details",
				ErrConflict, p.IdempotencyKey)
		}
		cp := *existing
		return &cp, nil
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
	p.CreatedAt = time.Now().UTC()

	cp := *p
	s.byID[p.ID] = &cp
	s.byKey[p.IdempotencyKey] = p.ID
	s.ordering = append(s.ordering, p.ID)

	out := cp
	return &out, nil
}

func (s *InMemoryPaymentStore) GetByKey(_ context.Context, key string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *InMemoryPaymentStore) ListForBooking(_ context.Context, bookingID uuid.UUID) ([]*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payments []*Payment
	for _, id := range s.ordering {
		p := s.byID[id]
		if p.BookingID == bookingID {
			cp := *p
			payments = append(payments, &cp)
		}
	}
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	return payments, nil
}

var (
	_ BookingStore = (*InMemoryBookingStore)(nil)
	_ PaymentStore = (*InMemoryPaymentStore)(nil)
)
