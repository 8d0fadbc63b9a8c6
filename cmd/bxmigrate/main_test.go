package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/buildxpert/platform/migration"
)

func writeSQLiteConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "scratch.db")
	content := "database:\n  driver: sqlite\n  path: " + dbPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestRun_StatusOnFreshDatabase(t *testing.T) {
	cfgPath := writeSQLiteConfig(t)

	var out bytes.Buffer
	if err := run([]string{"--status", "--config", cfgPath}, &out); err != nil {
		t.Fatalf("run --status: %v", err)
	}
	if !strings.Contains(out.String(), "no migrations executed yet") {
		t.Errorf("unexpected status output: %q", out.String())
	}

	// Repeat: the read path must not have created the ledger table.
	out.Reset()
	if err := run([]string{"--status", "--config", cfgPath}, &out); err != nil {
		t.Fatalf("second run --status: %v", err)
	}
	if !strings.Contains(out.String(), "no migrations executed yet") {
		t.Errorf("status read path created state: %q", out.String())
	}
}

func TestRun_MalformedIDFailsBeforeDatabase(t *testing.T) {
	// No config file exists and none is needed: validation comes first.
	var out bytes.Buffer
	for _, id := range []string{"1", "12", "1234", "abc"} {
		err := run([]string{id}, &out)
		if !errors.Is(err, migration.ErrInvalidID) {
			t.Errorf("id %q: expected ErrInvalidID, got %v", id, err)
		}
		if err != nil && !strings.Contains(err.Error(), "known ids") {
			t.Errorf("id %q: error should list known ids, got %v", id, err)
		}
	}
}

func TestRun_RejectsExtraArgs(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"001", "002"}, &out); err == nil {
		t.Fatal("expected error for extra positional args")
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"--version"}, &out); err != nil {
		t.Fatalf("run --version: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("expected version output, got %q", out.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short): %q", got)
	}
	if got := truncate("a very long migration name here", 10); len([]rune(got)) != 10 {
		t.Errorf("truncate long: %q (%d runes)", got, len([]rune(got)))
	}

	// Multibyte names must not be cut mid-rune.
	got := truncate("создать таблицу бронирований", 10)
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if len([]rune(got)) != 10 {
		t.Errorf("truncate multibyte: %q (%d runes)", got, len([]rune(got)))
	}
}
