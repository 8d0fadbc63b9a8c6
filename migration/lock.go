package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
)

// lockApplication is hashed into the advisory-lock key so the key is stable
// across runner builds but does not collide with unrelated advisory-lock
// users on the same database.
const lockApplication = "buildxpert-migrations"

// ErrLockHeld is returned when another migration process already holds the
// advisory lock. The runner fails fast on contention; it never queues.
var ErrLockHeld = errors.New("another migration process is already running")

// Gate provides mutual exclusion for migration runs across processes.
type Gate interface {
	// Acquire obtains the gate without blocking. The returned release
	// function must be called once the run is finished; calling it more
	// than once is safe. Contention yields ErrLockHeld immediately.
	Acquire(ctx context.Context) (release func(), err error)
}

// LockKey returns the advisory-lock key shared by all runner instances:
// the FNV-1a hash of the application name, masked to a non-negative int64.
func LockKey() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(lockApplication))
	v := h.Sum64() & 0x7FFFFFFFFFFFFFFF
	return int64(v) //nolint:gosec // masked to non-negative range
}

// AdvisoryGate implements Gate using a PostgreSQL session advisory lock
// (pg_try_advisory_lock / pg_advisory_unlock).
type AdvisoryGate struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAdvisoryGate creates a new AdvisoryGate on the given database handle.
func NewAdvisoryGate(db *sql.DB, logger *slog.Logger) *AdvisoryGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvisoryGate{db: db, logger: logger}
}

// Acquire attempts a non-blocking advisory lock on a dedicated connection.
// Session advisory locks belong to the connection that took them, so the
// connection is pinned out of the pool and held until release.
func (g *AdvisoryGate) Acquire(ctx context.Context) (func(), error) {
	key := LockKey()

	conn, err := g.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pg_try_advisory_lock(%d): %w", key, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, ErrLockHeld
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Unlock is best-effort: the session lock dies with the
			// connection anyway, and a release failure must never mask
			// the migration outcome. Background context because the
			// caller's context may already be cancelled.
			if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key); err != nil {
				g.logger.Warn("failed to release advisory lock", "key", key, "error", err)
			}
			_ = conn.Close()
		})
	}
	return release, nil
}

// LocalGate implements Gate with an in-process mutex. SQLite has no advisory
// locks; its single-writer model plus file locking covers cross-process
// safety, so a process-local mutex with the same fail-fast contract is
// sufficient for development and tests.
type LocalGate struct {
	mu sync.Mutex
}

// NewLocalGate creates a new LocalGate.
func NewLocalGate() *LocalGate {
	return &LocalGate{}
}

// Acquire obtains the mutex without blocking, matching the advisory-lock
// contract: contention yields ErrLockHeld rather than queueing.
func (g *LocalGate) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire local gate: %w", err)
	}
	if !g.mu.TryLock() {
		return nil, ErrLockHeld
	}
	var once sync.Once
	return func() {
		once.Do(g.mu.Unlock)
	}, nil
}

var (
	_ Gate = (*AdvisoryGate)(nil)
	_ Gate = (*LocalGate)(nil)
)
