package migration

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"001", true},
		{"042", true},
		{"999", true},
		{"1", false},
		{"01", false},
		{"0001", false},
		{"abc", false},
		{"0a1", false},
		{"", false},
		{" 001", false},
		{"001 ", false},
	}

	for _, tt := range tests {
		err := ValidateID(tt.id)
		if tt.valid && err != nil {
			t.Errorf("ValidateID(%q): unexpected error %v", tt.id, err)
		}
		if !tt.valid {
			if err == nil {
				t.Errorf("ValidateID(%q): expected error, got nil", tt.id)
			} else if !errors.Is(err, ErrInvalidID) {
				t.Errorf("ValidateID(%q): error %v is not ErrInvalidID", tt.id, err)
			}
		}
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		Unit{ID: "001", Name: "a", Statements: []string{"SELECT 1"}},
		Unit{ID: "001", Name: "b", Statements: []string{"SELECT 1"}},
	)
	if err == nil {
		t.Fatal("expected duplicate-id error, got nil")
	}
}

func TestNewRegistry_RejectsMalformedID(t *testing.T) {
	_, err := NewRegistry(Unit{ID: "1", Name: "a", Statements: []string{"SELECT 1"}})
	if !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestNewRegistry_RequiresExactlyOneBody(t *testing.T) {
	_, err := NewRegistry(Unit{ID: "001", Name: "neither"})
	if err == nil {
		t.Fatal("expected error for unit with no body, got nil")
	}

	_, err = NewRegistry(Unit{
		ID:         "001",
		Name:       "both",
		Statements: []string{"SELECT 1"},
		Run:        func(context.Context, *sql.Tx) error { return nil },
	})
	if err == nil {
		t.Fatal("expected error for unit with both bodies, got nil")
	}
}

func TestRegistry_OrderAndLookup(t *testing.T) {
	reg, err := NewRegistry(
		Unit{ID: "003", Name: "third", Statements: []string{"SELECT 1"}},
		Unit{ID: "001", Name: "first", Statements: []string{"SELECT 1"}},
		Unit{ID: "002", Name: "second", Statements: []string{"SELECT 1"}},
	)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	// Registration order is preserved, not sorted.
	want := []string{"003", "001", "002"}
	got := reg.IDs()
	if len(got) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("id[%d]: expected %s, got %s", i, want[i], got[i])
		}
	}

	u, ok := reg.Lookup("001")
	if !ok || u.Name != "first" {
		t.Errorf("Lookup(001): got %+v, ok=%v", u, ok)
	}
	if _, ok := reg.Lookup("404"); ok {
		t.Error("Lookup(404): expected miss")
	}
}

func TestUnit_ChecksumStable(t *testing.T) {
	a := Unit{ID: "001", Name: "create users", Statements: []string{"CREATE TABLE users (id INTEGER)"}}
	b := Unit{ID: "001", Name: "create users", Statements: []string{"CREATE TABLE users (id INTEGER)"}}
	c := Unit{ID: "001", Name: "create users", Statements: []string{"CREATE TABLE users (id TEXT)"}}

	if a.Checksum() != b.Checksum() {
		t.Error("identical units must share a checksum")
	}
	if a.Checksum() == c.Checksum() {
		t.Error("differing SQL must change the checksum")
	}
	if len(a.Checksum()) != 16 {
		t.Errorf("expected 16 hex chars, got %d", len(a.Checksum()))
	}
}
