package migration

import (
	"context"
	"errors"
	"testing"
)

func TestLocalGate_AcquireRelease(t *testing.T) {
	gate := NewLocalGate()
	ctx := context.Background()

	release, err := gate.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()

	// Reacquirable after release.
	release, err = gate.Acquire(ctx)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	release()
}

func TestLocalGate_Contention(t *testing.T) {
	gate := NewLocalGate()
	ctx := context.Background()

	release, err := gate.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	_, err = gate.Acquire(ctx)
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
}

func TestLocalGate_ReleaseIdempotent(t *testing.T) {
	gate := NewLocalGate()

	release, err := gate.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release() // second call must be a no-op, not an unlock of someone else's hold

	release2, err := gate.Acquire(context.Background())
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	release2()
}

func TestLocalGate_CancelledContext(t *testing.T) {
	gate := NewLocalGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := gate.Acquire(ctx); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

func TestLockKey(t *testing.T) {
	k1 := LockKey()
	k2 := LockKey()
	if k1 != k2 {
		t.Errorf("lock key must be stable: %d != %d", k1, k2)
	}
	if k1 < 0 {
		t.Errorf("lock key must be non-negative, got %d", k1)
	}
}

func TestGate_Interfaces(t *testing.T) {
	var _ Gate = (*AdvisoryGate)(nil)
	var _ Gate = (*LocalGate)(nil)
}
