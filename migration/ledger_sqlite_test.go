package migration

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection so every statement sees the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(id string, success bool, errMsg string) Record {
	return Record{
		ID:              id,
		Name:            "unit " + id,
		Description:     "test unit",
		ExecutedAt:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Success:         success,
		ErrorMessage:    errMsg,
		ExecutionTimeMS: 12,
		ExecutedBy:      "test",
		Checksum:        "deadbeefdeadbeef",
	}
}

func TestSQLiteLedger_EnsureIdempotent(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSQLiteLedger(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ledger.Ensure(ctx); err != nil {
			t.Fatalf("ensure #%d: %v", i, err)
		}
	}
}

func TestSQLiteLedger_StatusBootstrap(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSQLiteLedger(db)

	// No Ensure: the table does not exist yet.
	status, err := ledger.Status(context.Background(), "001")
	if err != nil {
		t.Fatalf("status on fresh database: %v", err)
	}
	if status.Executed {
		t.Errorf("expected not-executed on fresh database, got %+v", status)
	}
}

func TestSQLiteLedger_ListMissingTable(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSQLiteLedger(db)

	_, err := ledger.List(context.Background())
	if !errors.Is(err, ErrLedgerMissing) {
		t.Fatalf("expected ErrLedgerMissing, got %v", err)
	}

	// The read path must not create the table as a side effect.
	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'migration_ledger'`).Scan(&n)
	if err != nil {
		t.Fatalf("inspect sqlite_master: %v", err)
	}
	if n != 0 {
		t.Error("List created the ledger table")
	}
}

func TestSQLiteLedger_RecordAndStatus(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSQLiteLedger(db)
	ctx := context.Background()

	if err := ledger.Ensure(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if err := ledger.Record(ctx, db, testRecord("001", true, "")); err != nil {
		t.Fatalf("record: %v", err)
	}

	status, err := ledger.Status(ctx, "001")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Executed || !status.Success || status.NeedsRetry {
		t.Errorf("unexpected status after success: %+v", status)
	}

	if err := ledger.Record(ctx, db, testRecord("002", false, "disk full")); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	status, err = ledger.Status(ctx, "002")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Executed || status.Success || !status.NeedsRetry {
		t.Errorf("unexpected status after failure: %+v", status)
	}
}

func TestSQLiteLedger_RecordUpsertsAndIncrementsVersion(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSQLiteLedger(db)
	ctx := context.Background()

	if err := ledger.Ensure(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if err := ledger.Record(ctx, db, testRecord("001", false, "first attempt")); err != nil {
		t.Fatalf("record #1: %v", err)
	}
	if err := ledger.Record(ctx, db, testRecord("001", true, "")); err != nil {
		t.Fatalf("record #2: %v", err)
	}

	records, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one row per unit, got %d", len(records))
	}
	rec := records[0]
	if rec.Version != 2 {
		t.Errorf("expected version 2 after re-run, got %d", rec.Version)
	}
	if !rec.Success {
		t.Error("expected latest outcome (success) to win")
	}
	if rec.ErrorMessage != "" {
		t.Errorf("expected error message cleared, got %q", rec.ErrorMessage)
	}
}

func TestSQLiteLedger_ListOrderedByID(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSQLiteLedger(db)
	ctx := context.Background()

	if err := ledger.Ensure(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, id := range []string{"003", "001", "002"} {
		if err := ledger.Record(ctx, db, testRecord(id, true, "")); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	records, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"001", "002", "003"}
	if len(records) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(records))
	}
	for i, rec := range records {
		if rec.ID != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], rec.ID)
		}
	}
}

func TestSQLiteLedger_EnsureEvolvesOldTable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Ledger shape from before the bookkeeping columns shipped.
	_, err := db.ExecContext(ctx, `
		CREATE TABLE migration_ledger (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			executed_at   TEXT NOT NULL,
			success       INTEGER NOT NULL,
			error_message TEXT
		)`)
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO migration_ledger (id, name, executed_at, success) VALUES ('001', 'legacy', '2025-01-01 00:00:00', 1)`)
	if err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	ledger := NewSQLiteLedger(db)
	if err := ledger.Ensure(ctx); err != nil {
		t.Fatalf("ensure over legacy table: %v", err)
	}

	records, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("list after evolution: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 row, got %d", len(records))
	}
	if records[0].Version != 1 {
		t.Errorf("expected defaulted version 1, got %d", records[0].Version)
	}
	if records[0].ExecutedBy != "" {
		t.Errorf("expected defaulted executed_by, got %q", records[0].ExecutedBy)
	}
}
