package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
)

// idPattern is the required format for migration IDs: exactly three digits.
var idPattern = regexp.MustCompile(`^\d{3}$`)

// ErrInvalidID is returned when a migration ID does not match the
// three-digit format.
var ErrInvalidID = errors.New("invalid migration id")

// ValidateID checks that id matches the three-digit migration ID format.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (expected exactly three digits, e.g. \"007\")", ErrInvalidID, id)
	}
	return nil
}

// Unit is one self-contained, idempotent schema change. Units are identified
// by a three-digit ID and applied in registry order; ordering is the sole
// mechanism for expressing dependencies between units.
//
// A unit is defined either by Statements (a list of SQL statements executed
// in order) or by a Run function for changes that need logic beyond plain
// SQL (data backfills). Exactly one of the two must be set.
type Unit struct {
	ID          string
	Name        string
	Description string

	// Required marks units the platform cannot run without. A required
	// unit's failure halts the batch; an optional unit's failure is logged
	// and the batch continues.
	Required bool

	Statements []string
	Run        func(ctx context.Context, tx *sql.Tx) error
}

// Apply executes the unit inside the given transaction.
func (u Unit) Apply(ctx context.Context, tx *sql.Tx) error {
	if u.Run != nil {
		return u.Run(ctx, tx)
	}
	for _, stmt := range u.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Checksum returns a short stable checksum over the unit's identity and SQL
// body, recorded in the ledger so drift in a shipped unit is observable.
func (u Unit) Checksum() string {
	h := sha256.New()
	_, _ = io.WriteString(h, u.ID)
	_, _ = io.WriteString(h, u.Name)
	for _, stmt := range u.Statements {
		_, _ = io.WriteString(h, stmt)
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:8])
}

// Registry is an ordered, append-only collection of migration units.
// It is constructed explicitly and passed to the Runner; there is no
// package-level registry.
type Registry struct {
	units []Unit
	byID  map[string]int
}

// NewRegistry validates and collects the given units, preserving order.
func NewRegistry(units ...Unit) (*Registry, error) {
	r := &Registry{
		units: make([]Unit, 0, len(units)),
		byID:  make(map[string]int, len(units)),
	}
	for _, u := range units {
		if err := ValidateID(u.ID); err != nil {
			return nil, err
		}
		if u.Name == "" {
			return nil, fmt.Errorf("migration %s: name is required", u.ID)
		}
		if _, exists := r.byID[u.ID]; exists {
			return nil, fmt.Errorf("duplicate migration id %q", u.ID)
		}
		if (u.Run == nil) == (len(u.Statements) == 0) {
			return nil, fmt.Errorf("migration %s: exactly one of Statements or Run must be set", u.ID)
		}
		r.byID[u.ID] = len(r.units)
		r.units = append(r.units, u)
	}
	return r, nil
}

// Units returns the registered units in registration order.
func (r *Registry) Units() []Unit {
	out := make([]Unit, len(r.units))
	copy(out, r.units)
	return out
}

// Lookup returns the unit with the given ID.
func (r *Registry) Lookup(id string) (Unit, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return Unit{}, false
	}
	return r.units[idx], true
}

// IDs returns all registered IDs in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.units))
	for i, u := range r.units {
		ids[i] = u.ID
	}
	return ids
}

// Len returns the number of registered units.
func (r *Registry) Len() int { return len(r.units) }
