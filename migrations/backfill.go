package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/buildxpert/platform/migration"
)

// legacyBookingStatuses maps status values written by early app builds to
// the canonical set. Early provider-app builds wrote "confirmed" and
// "rejected"; the apps have only ever read the canonical values since.
var legacyBookingStatuses = map[string]string{
	"confirmed": "accepted",
	"rejected":  "declined",
}

// backfillBookingStatus rewrites legacy booking status values in place. It
// is a Run-based unit because the mapping is data, not schema, and the row
// counts are worth logging back through the error path if the update stalls.
func backfillBookingStatus() migration.Unit {
	return migration.Unit{
		ID:          "013",
		Name:        "backfill booking statuses",
		Description: "Rewrite legacy booking status values (confirmed/rejected) to the canonical set (accepted/declined).",
		Required:    true,
		Run: func(ctx context.Context, tx *sql.Tx) error {
			for legacy, canonical := range legacyBookingStatuses {
				res, err := tx.ExecContext(ctx,
					`UPDATE bookings SET status = $1, updated_at = NOW() WHERE status = $2`,
					canonical, legacy,
				)
				if err != nil {
					return fmt.Errorf("rewrite %q to %q: %w", legacy, canonical, err)
				}
				if _, err := res.RowsAffected(); err != nil {
					return fmt.Errorf("rows affected for %q: %w", legacy, err)
				}
			}
			return nil
		},
	}
}
