package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLedgerMissing is returned by read paths when the ledger table has not
// been created yet. Callers reading status on a fresh database get this
// sentinel instead of a driver error; the read path never creates the table.
var ErrLedgerMissing = errors.New("migration ledger table does not exist")

// Status is the ledger's answer for a single unit.
type Status struct {
	Executed   bool
	Success    bool
	NeedsRetry bool
}

// Record is one ledger row. The ledger keeps exactly one row per unit;
// re-executing a unit updates the row in place and increments Version.
type Record struct {
	ID              string
	Name            string
	Description     string
	ExecutedAt      time.Time
	Success         bool
	ErrorMessage    string
	ExecutionTimeMS int64
	ExecutedBy      string
	Checksum        string
	Version         int
}

// Querier is the subset of database operations the ledger writes through.
// Both *sql.DB and *sql.Tx satisfy it, so a success record can join the
// unit's transaction while a failure record gets its own write.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Ledger persists per-unit execution bookkeeping.
type Ledger interface {
	// Ensure creates the ledger table if absent and applies additive
	// evolution of the ledger's own schema. Safe to call repeatedly.
	Ensure(ctx context.Context) error

	// Status reports whether the unit has executed and with what result.
	// A missing ledger table is the bootstrap case, not an error: it
	// yields the zero Status.
	Status(ctx context.Context, id string) (Status, error)

	// Record upserts the outcome row for a unit. This is the only write
	// path to the ledger; rows are never deleted in normal operation.
	Record(ctx context.Context, q Querier, rec Record) error

	// List returns all ledger rows ordered by unit ID. Returns
	// ErrLedgerMissing when the table does not exist.
	List(ctx context.Context) ([]Record, error)
}

// PGLedger is the PostgreSQL ledger implementation.
type PGLedger struct {
	db *sql.DB
}

// NewPGLedger creates a PGLedger on the given database handle.
func NewPGLedger(db *sql.DB) *PGLedger {
	return &PGLedger{db: db}
}

const pgLedgerCreate = `
CREATE TABLE IF NOT EXISTS migration_ledger (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	executed_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	success           BOOLEAN NOT NULL,
	error_message     TEXT,
	execution_time_ms BIGINT NOT NULL DEFAULT 0,
	executed_by       TEXT NOT NULL DEFAULT '',
	checksum          TEXT NOT NULL DEFAULT '',
	version           INTEGER NOT NULL DEFAULT 1
)`

// pgLedgerEvolution adds bookkeeping columns introduced after the ledger
// first shipped, for databases whose ledger predates them.
var pgLedgerEvolution = []string{
	`ALTER TABLE migration_ledger ADD COLUMN IF NOT EXISTS execution_time_ms BIGINT NOT NULL DEFAULT 0`,
	`ALTER TABLE migration_ledger ADD COLUMN IF NOT EXISTS executed_by TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE migration_ledger ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE migration_ledger ADD COLUMN IF NOT EXISTS version INTEGER NOT NULL DEFAULT 1`,
}

// Ensure creates the ledger table and applies additive column evolution.
func (l *PGLedger) Ensure(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, pgLedgerCreate); err != nil {
		return fmt.Errorf("create migration_ledger table: %w", err)
	}
	for _, stmt := range pgLedgerEvolution {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("evolve migration_ledger table: %w", err)
		}
	}
	return nil
}

// Status reports the last outcome for a unit.
func (l *PGLedger) Status(ctx context.Context, id string) (Status, error) {
	var success bool
	err := l.db.QueryRowContext(ctx,
		`SELECT success FROM migration_ledger WHERE id = $1`, id,
	).Scan(&success)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Status{}, nil
	case isPGUndefinedTable(err):
		// Bootstrap: the ledger itself has not been created yet.
		return Status{}, nil
	case err != nil:
		return Status{}, fmt.Errorf("query migration_ledger for %s: %w", id, err)
	}
	return Status{Executed: true, Success: success, NeedsRetry: !success}, nil
}

// Record upserts the outcome row for a unit, incrementing version on re-run.
func (l *PGLedger) Record(ctx context.Context, q Querier, rec Record) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO migration_ledger
			(id, name, description, executed_at, success, error_message,
			 execution_time_ms, executed_by, checksum, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
		ON CONFLICT (id) DO UPDATE SET
			name              = EXCLUDED.name,
			description       = EXCLUDED.description,
			executed_at       = EXCLUDED.executed_at,
			success           = EXCLUDED.success,
			error_message     = EXCLUDED.error_message,
			execution_time_ms = EXCLUDED.execution_time_ms,
			executed_by       = EXCLUDED.executed_by,
			checksum          = EXCLUDED.checksum,
			version           = migration_ledger.version + 1`,
		rec.ID, rec.Name, rec.Description, rec.ExecutedAt, rec.Success,
		nullIfEmpty(rec.ErrorMessage), rec.ExecutionTimeMS, rec.ExecutedBy, rec.Checksum,
	)
	if err != nil {
		return fmt.Errorf("record migration %s: %w", rec.ID, err)
	}
	return nil
}

// List returns all ledger rows ordered by unit ID.
func (l *PGLedger) List(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, name, description, executed_at, success, error_message,
		       execution_time_ms, executed_by, checksum, version
		FROM migration_ledger
		ORDER BY id`)
	if err != nil {
		if isPGUndefinedTable(err) {
			return nil, ErrLedgerMissing
		}
		return nil, fmt.Errorf("query migration_ledger: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var errMsg sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Description, &rec.ExecutedAt, &rec.Success,
			&errMsg, &rec.ExecutionTimeMS, &rec.ExecutedBy, &rec.Checksum, &rec.Version,
		); err != nil {
			return nil, fmt.Errorf("scan migration_ledger row: %w", err)
		}
		rec.ErrorMessage = errMsg.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration_ledger: %w", err)
	}
	return records, nil
}

// isPGUndefinedTable checks for PostgreSQL undefined-table (42P01).
func isPGUndefinedTable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "42P01"
	}
	return false
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Ledger = (*PGLedger)(nil)
