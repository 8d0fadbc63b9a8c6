package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteLedger is the SQLite ledger implementation, used for local
// development and tests. Same contract as PGLedger.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger creates a SQLiteLedger on the given database handle.
func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

const sqliteLedgerCreate = `
CREATE TABLE IF NOT EXISTS migration_ledger (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	executed_at       TEXT NOT NULL,
	success           INTEGER NOT NULL,
	error_message     TEXT,
	execution_time_ms INTEGER NOT NULL DEFAULT 0,
	executed_by       TEXT NOT NULL DEFAULT '',
	checksum          TEXT NOT NULL DEFAULT '',
	version           INTEGER NOT NULL DEFAULT 1
)`

// sqliteLedgerEvolution mirrors pgLedgerEvolution. SQLite has no
// ADD COLUMN IF NOT EXISTS, so Ensure probes PRAGMA table_info first.
var sqliteLedgerEvolution = map[string]string{
	"execution_time_ms": `ALTER TABLE migration_ledger ADD COLUMN execution_time_ms INTEGER NOT NULL DEFAULT 0`,
	"executed_by":       `ALTER TABLE migration_ledger ADD COLUMN executed_by TEXT NOT NULL DEFAULT ''`,
	"checksum":          `ALTER TABLE migration_ledger ADD COLUMN checksum TEXT NOT NULL DEFAULT ''`,
	"version":           `ALTER TABLE migration_ledger ADD COLUMN version INTEGER NOT NULL DEFAULT 1`,
}

// Ensure creates the ledger table and applies additive column evolution.
func (l *SQLiteLedger) Ensure(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, sqliteLedgerCreate); err != nil {
		return fmt.Errorf("create migration_ledger table: %w", err)
	}

	existing, err := l.columns(ctx)
	if err != nil {
		return err
	}
	for col, stmt := range sqliteLedgerEvolution {
		if existing[col] {
			continue
		}
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add migration_ledger column %s: %w", col, err)
		}
	}
	return nil
}

func (l *SQLiteLedger) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := l.db.QueryContext(ctx, `PRAGMA table_info(migration_ledger)`)
	if err != nil {
		return nil, fmt.Errorf("inspect migration_ledger columns: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info row: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Status reports the last outcome for a unit.
func (l *SQLiteLedger) Status(ctx context.Context, id string) (Status, error) {
	var success int
	err := l.db.QueryRowContext(ctx,
		`SELECT success FROM migration_ledger WHERE id = ?`, id,
	).Scan(&success)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Status{}, nil
	case isSQLiteMissingTable(err):
		return Status{}, nil
	case err != nil:
		return Status{}, fmt.Errorf("query migration_ledger for %s: %w", id, err)
	}
	ok := success != 0
	return Status{Executed: true, Success: ok, NeedsRetry: !ok}, nil
}

// Record upserts the outcome row for a unit, incrementing version on re-run.
func (l *SQLiteLedger) Record(ctx context.Context, q Querier, rec Record) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO migration_ledger
			(id, name, description, executed_at, success, error_message,
			 execution_time_ms, executed_by, checksum, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (id) DO UPDATE SET
			name              = excluded.name,
			description       = excluded.description,
			executed_at       = excluded.executed_at,
			success           = excluded.success,
			error_message     = excluded.error_message,
			execution_time_ms = excluded.execution_time_ms,
			executed_by       = excluded.executed_by,
			checksum          = excluded.checksum,
			version           = migration_ledger.version + 1`,
		rec.ID, rec.Name, rec.Description,
		rec.ExecutedAt.UTC().Format(sqliteTimeLayout),
		boolToInt(rec.Success),
		nullIfEmpty(rec.ErrorMessage),
		rec.ExecutionTimeMS, rec.ExecutedBy, rec.Checksum,
	)
	if err != nil {
		return fmt.Errorf("record migration %s: %w", rec.ID, err)
	}
	return nil
}

// List returns all ledger rows ordered by unit ID.
func (l *SQLiteLedger) List(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, name, description, executed_at, success, error_message,
		       execution_time_ms, executed_by, checksum, version
		FROM migration_ledger
		ORDER BY id`)
	if err != nil {
		if isSQLiteMissingTable(err) {
			return nil, ErrLedgerMissing
		}
		return nil, fmt.Errorf("query migration_ledger: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			executedAt string
			success    int
			errMsg     sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Description, &executedAt, &success,
			&errMsg, &rec.ExecutionTimeMS, &rec.ExecutedBy, &rec.Checksum, &rec.Version,
		); err != nil {
			return nil, fmt.Errorf("scan migration_ledger row: %w", err)
		}
		rec.ExecutedAt, err = parseSQLiteTime(executedAt)
		if err != nil {
			return nil, fmt.Errorf("parse executed_at for %s: %w", rec.ID, err)
		}
		rec.Success = success != 0
		rec.ErrorMessage = errMsg.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration_ledger: %w", err)
	}
	return records, nil
}

// isSQLiteMissingTable checks for a missing-table error. The driver exposes
// no structured code for it, only the message text.
func isSQLiteMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

const sqliteTimeLayout = "2006-01-02 15:04:05.000"

// sqliteTimeFormats lists the time formats SQLite may hand back.
var sqliteTimeFormats = []string{
	sqliteTimeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
}

func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range sqliteTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Ledger = (*SQLiteLedger)(nil)
