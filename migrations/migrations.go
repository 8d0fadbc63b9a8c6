// Package migrations holds the BuildXpert platform's append-only migration
// catalog. Units are applied strictly in the order listed here; ordering is
// the only dependency mechanism, so a unit that needs a table created by an
// earlier unit simply comes after it. Units are never deleted or reordered
// once shipped.
package migrations

import "github.com/buildxpert/platform/migration"

// All returns the full catalog in application order.
func All() []migration.Unit {
	return []migration.Unit{
		{
			ID:          "001",
			Name:        "create users",
			Description: "Customer accounts with authentication identity.",
			Required:    true,
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS users (
					id            UUID PRIMARY KEY,
					email         TEXT NOT NULL UNIQUE,
					phone         TEXT,
					full_name     TEXT NOT NULL,
					password_hash TEXT NOT NULL,
					created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`,
			},
		},
		{
			ID:          "002",
			Name:        "create service providers",
			Description: "Provider accounts (plumbers, painters, electricians).",
			Required:    true,
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS service_providers (
					id            UUID PRIMARY KEY,
					email         TEXT NOT NULL UNIQUE,
					phone         TEXT,
					full_name     TEXT NOT NULL,
					password_hash TEXT NOT NULL,
					bio           TEXT,
					verified      BOOLEAN NOT NULL DEFAULT FALSE,
					created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`,
			},
		},
		{
			ID:          "003",
			Name:        "create service categories",
			Description: "Top-level trade categories shown in the apps.",
			Required:    true,
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS service_categories (
					id         UUID PRIMARY KEY,
					name       TEXT NOT NULL UNIQUE,
					icon       TEXT,
					sort_order INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`,
			},
		},
		{
			ID:          "004",
			Name:        "create services",
			Description: "Offerings a provider lists under a category.",
			Required:    true,
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS services (
					id           UUID PRIMARY KEY,
					provider_id  UUID NOT NULL REFERENCES service_providers(id),
					category_id  UUID NOT NULL REFERENCES service_categories(id),
					title        TEXT NOT NULL,
					description  TEXT,
					price_cents  BIGINT NOT NULL,
					currency     TEXT NOT NULL DEFAULT 'INR',
					active       BOOLEAN NOT NULL DEFAULT TRUE,
					created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`,
				`CREATE INDEX IF NOT EXISTS idx_services_provider ON services(provider_id)`,
				`CREATE INDEX IF NOT EXISTS idx_services_category ON services(category_id)`,
			},
		},
		{
			ID:          "005",
			Name:        "create bookings",
			Description: "A customer's request for a service at a scheduled time.",
			Required:    true,
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS bookings (
					id           UUID PRIMARY KEY,
					customer_id  UUID NOT NULL REFERENCES users(id),
					provider_id  UUID NOT NULL REFERENCES service_providers(id),
					service_id   UUID NOT NULL REFERENCES services(id),
					status       TEXT NOT NULL DEFAULT 'pending',
					scheduled_at TIMESTAMPTZ NOT NULL,
					address      TEXT,
					notes        TEXT,
					created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`,
				`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id)`,
				`CREATE INDEX IF NOT EXISTS idx_bookings_provider ON bookings(provider_id, status)`,
			},
		},
		{
			ID:          "006",
			Name:        "create payments",
			Description: "Payment attempts and captures against bookings.",
			Required:    true,
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS payments (
					id           UUID PRIMARY KEY,
					booking_id   UUID NOT NULL REFERENCES bookings(id),
					amount_cents BIGINT NOT NULL,
					currency     TEXT NOT NULL DEFAULT 'INR',
					status       TEXT NOT NULL DEFAULT 'pending',
					created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`,
				`CREATE INDEX IF NOT EXISTS idx_payments_booking ON payments(booking_id)`,
			},
		},
		{
			ID:          "007",
			Name:        "add payment idempotency keys",
			Description: "Unique idempotency key so a retried capture can never double-charge; the API layer relies on ON CONFLICT against this constraint.",
			Required:    true,
			Statements: []string{
				`ALTER TABLE payments ADD COLUMN IF NOT EXISTS idempotency_key TEXT`,
				`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_idempotency_key ON payments(idempotency_key) WHERE idempotency_key IS NOT NULL`,
			},
		},
		{
			ID:          "008",
			Name:        "create notifications",
			Description: "Per-user notification feed rows.",
			Required:    true,
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS notifications (
					id         UUID PRIMARY KEY,
					user_id    UUID NOT NULL,
					title      TEXT NOT NULL,
					body       TEXT,
					read       BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read)`,
			},
		},
		{
			ID:          "009",
			Name:        "add device push tokens",
			Description: "Push-notification device token column on users and providers.",
			Required:    false,
			Statements: []string{
				`ALTER TABLE users ADD COLUMN IF NOT EXISTS push_token TEXT`,
				`ALTER TABLE service_providers ADD COLUMN IF NOT EXISTS push_token TEXT`,
			},
		},
		{
			ID:          "010",
			Name:        "create reviews",
			Description: "Customer reviews of completed bookings.",
			Required:    false,
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS reviews (
					id          UUID PRIMARY KEY,
					booking_id  UUID NOT NULL REFERENCES bookings(id) UNIQUE,
					rating      INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
					comment     TEXT,
					created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`,
			},
		},
		{
			ID:          "011",
			Name:        "create provider availability",
			Description: "Weekly availability windows per provider.",
			Required:    false,
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS provider_availability (
					id          UUID PRIMARY KEY,
					provider_id UUID NOT NULL REFERENCES service_providers(id),
					day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
					starts_at   TIME NOT NULL,
					ends_at     TIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_availability_provider ON provider_availability(provider_id)`,
			},
		},
		{
			ID:          "012",
			Name:        "add referral codes",
			Description: "Referral code column and self-referential referred_by link.",
			Required:    false,
			Statements: []string{
				`ALTER TABLE users ADD COLUMN IF NOT EXISTS referral_code TEXT`,
				`ALTER TABLE users ADD COLUMN IF NOT EXISTS referred_by UUID REFERENCES users(id)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_referral_code ON users(referral_code) WHERE referral_code IS NOT NULL`,
			},
		},
		backfillBookingStatus(),
		{
			ID:          "014",
			Name:        "constrain payment status",
			Description: "Restrict payments.status to the states the apps understand.",
			Required:    true,
			Statements: []string{
				`ALTER TABLE payments DROP CONSTRAINT IF EXISTS chk_payments_status`,
				`ALTER TABLE payments ADD CONSTRAINT chk_payments_status
					CHECK (status IN ('pending', 'captured', 'refunded', 'failed'))`,
			},
		},
	}
}
