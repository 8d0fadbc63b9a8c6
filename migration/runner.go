package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Options control a single runner invocation.
type Options struct {
	// Only restricts the run to a single unit by ID. Validated against
	// the three-digit format before the database is touched.
	Only string

	// Force re-runs units that previously succeeded.
	Force bool

	// SkipOptional skips every unit not marked Required.
	SkipOptional bool

	// ExecutedBy identifies the operator or process in the ledger.
	ExecutedBy string
}

// Runner applies registered migration units in order, serialized across
// processes by a Gate and bookkept in a Ledger.
//
// Each unit runs inside its own transaction, with its success record
// written in the same transaction. Note that rollback of a failed unit is
// only as good as the engine's DDL transactionality: PostgreSQL rolls DDL
// back, but engines that auto-commit DDL per statement leave earlier
// statements of a failed unit applied. The runner records the failure
// either way; it does not pretend to a stronger guarantee.
type Runner struct {
	db       *sql.DB
	registry *Registry
	ledger   Ledger
	gate     Gate
	logger   *slog.Logger

	now func() time.Time
}

// NewRunner constructs a Runner. All collaborators are passed in
// explicitly; the runner owns no global state.
func NewRunner(db *sql.DB, registry *Registry, ledger Ledger, gate Gate, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		db:       db,
		registry: registry,
		ledger:   ledger,
		gate:     gate,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run processes the registry in order and returns a per-unit Summary.
// The returned error is reserved for infrastructure faults (lock
// contention, ledger bootstrap failure, ID validation); unit failures are
// reported through the Summary, never as an error.
func (r *Runner) Run(ctx context.Context, opts Options) (Summary, error) {
	units := r.registry.Units()
	if opts.Only != "" {
		if err := ValidateID(opts.Only); err != nil {
			return Summary{}, fmt.Errorf("%w; known ids: %s", err, strings.Join(r.registry.IDs(), ", "))
		}
		unit, ok := r.registry.Lookup(opts.Only)
		if !ok {
			return Summary{}, fmt.Errorf("%w: %q is not registered; known ids: %s",
				ErrInvalidID, opts.Only, strings.Join(r.registry.IDs(), ", "))
		}
		units = []Unit{unit}
	}

	release, err := r.gate.Acquire(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer release()

	if err := r.ledger.Ensure(ctx); err != nil {
		return Summary{}, err
	}

	var summary Summary
	pendingCount := 0
	for _, unit := range units {
		if opts.SkipOptional && !unit.Required {
			r.logger.Debug("skipping optional migration", "id", unit.ID, "name", unit.Name)
			summary.Outcomes = append(summary.Outcomes, Outcome{
				ID: unit.ID, Name: unit.Name, Required: unit.Required,
				State: StateSkipped, Reason: "optional",
			})
			continue
		}

		status, err := r.ledger.Status(ctx, unit.ID)
		if err != nil {
			return summary, err
		}
		if status.Executed && status.Success && !opts.Force {
			r.logger.Debug("migration already applied", "id", unit.ID, "name", unit.Name)
			summary.Outcomes = append(summary.Outcomes, Outcome{
				ID: unit.ID, Name: unit.Name, Required: unit.Required,
				State: StateSkipped, Reason: "already applied",
			})
			continue
		}
		pendingCount++

		outcome := r.apply(ctx, unit, opts)
		summary.Outcomes = append(summary.Outcomes, outcome)

		if outcome.State == StateFailed {
			if unit.Required {
				r.logger.Error("required migration failed, halting batch",
					"id", unit.ID, "name", unit.Name, "reason", outcome.Reason)
				summary.Halted = true
				break
			}
			r.logger.Warn("optional migration failed, continuing",
				"id", unit.ID, "name", unit.Name, "reason", outcome.Reason)
		}
	}

	r.logger.Info("migration run complete",
		"pending", pendingCount,
		"executed", summary.Executed(),
		"failed", len(summary.Failed()),
		"halted", summary.Halted)

	return summary, nil
}

// apply runs one unit in its own transaction and records the outcome.
func (r *Runner) apply(ctx context.Context, unit Unit, opts Options) Outcome {
	outcome := Outcome{ID: unit.ID, Name: unit.Name, Required: unit.Required}
	start := r.now()

	r.logger.Info("applying migration", "id", unit.ID, "name", unit.Name, "required", unit.Required)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		outcome.State = StateFailed
		outcome.Reason = fmt.Sprintf("begin transaction: %v", err)
		outcome.Duration = r.now().Sub(start)
		r.record(ctx, r.db, unit, outcome, opts)
		return outcome
	}

	if err := unit.Apply(ctx, tx); err != nil {
		_ = tx.Rollback()
		outcome.State = StateFailed
		outcome.Reason = err.Error()
		outcome.Duration = r.now().Sub(start)
		// The failure record gets its own write outside the aborted
		// transaction so the outcome is observable even though the
		// unit's changes rolled back.
		r.record(ctx, r.db, unit, outcome, opts)
		return outcome
	}

	outcome.State = StateSucceeded
	outcome.Duration = r.now().Sub(start)
	r.record(ctx, tx, unit, outcome, opts)

	if err := tx.Commit(); err != nil {
		outcome.State = StateFailed
		outcome.Reason = fmt.Sprintf("commit: %v", err)
		outcome.Duration = r.now().Sub(start)
		r.record(ctx, r.db, unit, outcome, opts)
		return outcome
	}

	r.logger.Info("migration applied", "id", unit.ID, "name", unit.Name, "duration", outcome.Duration)
	return outcome
}

// record writes a ledger row through q. A bookkeeping failure is logged and
// swallowed so it never masks or replaces the unit's real outcome.
func (r *Runner) record(ctx context.Context, q Querier, unit Unit, outcome Outcome, opts Options) {
	rec := Record{
		ID:              unit.ID,
		Name:            unit.Name,
		Description:     unit.Description,
		ExecutedAt:      r.now(),
		Success:         outcome.State == StateSucceeded,
		ErrorMessage:    outcome.Reason,
		ExecutionTimeMS: outcome.Duration.Milliseconds(),
		ExecutedBy:      opts.ExecutedBy,
		Checksum:        unit.Checksum(),
	}
	if err := r.ledger.Record(ctx, q, rec); err != nil {
		r.logger.Warn("ledger write failed", "id", unit.ID, "error", err)
	}
}
