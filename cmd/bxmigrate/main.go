package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/buildxpert/platform/config"
	"github.com/buildxpert/platform/migration"
	"github.com/buildxpert/platform/migrations"
	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bxmigrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	dbURL := fs.String("db", "", "PostgreSQL URL (overrides config and DATABASE_URL)")
	force := fs.Bool("force", false, "Re-run migrations that previously succeeded")
	skipOptional := fs.Bool("skip-optional", false, "Skip migrations not marked required")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	status := fs.Bool("status", false, "Print the execution ledger without running anything")
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `bxmigrate - BuildXpert schema migration runner (version %s)

Usage:
  bxmigrate [migrationID] [options]

With no migration ID, all pending migrations run in registry order.
A three-digit migration ID runs just that migration.

Options:
`, version)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	// Accept the migration ID before or after the flags: flag parsing stops
	// at the first positional argument, so pull it out and re-parse the rest.
	var only string
	if rest := fs.Args(); len(rest) > 0 {
		only = rest[0]
		if err := fs.Parse(rest[1:]); err != nil {
			return err
		}
		if fs.NArg() > 0 {
			fs.Usage()
			return fmt.Errorf("at most one migration ID may be given")
		}
	}
	if *showVersion {
		fmt.Fprintln(out, version)
		return nil
	}

	registry, err := migration.NewRegistry(migrations.All()...)
	if err != nil {
		return fmt.Errorf("build migration registry: %w", err)
	}

	// Validate the requested ID before anything touches the database.
	if only != "" {
		if err := migration.ValidateID(only); err != nil {
			return fmt.Errorf("%w; known ids: %s", err, strings.Join(registry.IDs(), ", "))
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dbURL != "" {
		cfg.Database.Driver = config.DriverPostgres
		cfg.Database.URL = *dbURL
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger = logger.With("run_id", uuid.NewString()[:8])

	db, ledger, gate, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	if *status {
		return printStatus(ctx, ledger, out)
	}

	runner := migration.NewRunner(db, registry, ledger, gate, logger)
	summary, err := runner.Run(ctx, migration.Options{
		Only:         only,
		Force:        *force,
		SkipOptional: *skipOptional,
		ExecutedBy:   executedBy(cfg),
	})
	if err != nil {
		return err
	}

	printSummary(summary, out)

	if !summary.OK() {
		return fmt.Errorf("migration batch failed")
	}
	return nil
}

// openDatabase opens the configured database and pairs it with the matching
// ledger and gate implementations.
func openDatabase(cfg *config.Config, logger *slog.Logger) (*sql.DB, migration.Ledger, migration.Gate, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.Database.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Database.MaxConns > 0 {
			db.SetMaxOpenConns(int(cfg.Database.MaxConns))
		}
		return db, migration.NewPGLedger(db), migration.NewAdvisoryGate(db, logger), nil

	case config.DriverSQLite:
		db, err := sql.Open("sqlite", cfg.Database.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		// One connection so in-memory databases and transactions behave.
		db.SetMaxOpenConns(1)
		return db, migration.NewSQLiteLedger(db), migration.NewLocalGate(), nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func executedBy(cfg *config.Config) string {
	if cfg.Migration.ExecutedBy != "" {
		return cfg.Migration.ExecutedBy
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// printStatus prints the ledger contents. The read path never creates the
// ledger table; a fresh database reports that nothing has run yet.
func printStatus(ctx context.Context, ledger migration.Ledger, out io.Writer) error {
	records, err := ledger.List(ctx)
	if err != nil {
		if errors.Is(err, migration.ErrLedgerMissing) {
			fmt.Fprintln(out, "no migrations executed yet")
			return nil
		}
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "no migrations executed yet")
		return nil
	}

	fmt.Fprintf(out, "%-5s %-32s %-9s %-20s %-3s %s\n", "ID", "NAME", "RESULT", "EXECUTED AT", "RUN", "ERROR")
	for _, rec := range records {
		result := "ok"
		if !rec.Success {
			result = "failed"
		}
		fmt.Fprintf(out, "%-5s %-32s %-9s %-20s %-3d %s\n",
			rec.ID,
			truncate(rec.Name, 32),
			result,
			rec.ExecutedAt.UTC().Format("2006-01-02 15:04:05"),
			rec.Version,
			rec.ErrorMessage,
		)
	}
	return nil
}

func printSummary(summary migration.Summary, out io.Writer) {
	for _, o := range summary.Outcomes {
		switch o.State {
		case migration.StateSkipped:
			fmt.Fprintf(out, "skip   %s %s (%s)\n", o.ID, o.Name, o.Reason)
		case migration.StateSucceeded:
			fmt.Fprintf(out, "ok     %s %s (%s)\n", o.ID, o.Name, o.Duration)
		case migration.StateFailed:
			fmt.Fprintf(out, "FAILED %s %s: %s\n", o.ID, o.Name, o.Reason)
		}
	}
	if summary.Halted {
		fmt.Fprintln(out, "batch halted: a required migration failed")
	}
	fmt.Fprintf(out, "%d executed, %d failed, %d total\n",
		summary.Executed(), len(summary.Failed()), len(summary.Outcomes))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
