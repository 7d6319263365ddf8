package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/hotel-booking/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envDSN         = "HOTEL_POSTGRES_DSN"
)

// migrator описывает часть postgres.Store, нужную CLI.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	Status(ctx context.Context) (postgres.MigrationStatus, error)
	Close() error
}

type openFunc func(ctx context.Context, dsn string) (migrator, error)

type options struct {
	direction string
	steps     int
	dsn       string
}

func main() {
	_ = godotenv.Load(".env")

	if err := run(context.Background(), os.Args[1:], os.Getenv, openStore, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func openStore(ctx context.Context, dsn string) (migrator, error) {
	return postgres.Open(ctx, dsn, postgres.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
}

func parseArgs(args []string, getenv func(string) string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envDSN+")")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv(envDSN))
	}
	if opts.dsn == "" {
		return options{}, errors.New(envDSN + " (or -dsn) is required")
	}
	if opts.steps < 0 {
		return options{}, fmt.Errorf("steps must not be negative, got %d", opts.steps)
	}
	switch opts.direction {
	case "up", "down", "status":
	default:
		return options{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, getenv func(string) string, open openFunc, out io.Writer) error {
	opts, err := parseArgs(args, getenv)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	store, err := open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		steps := opts.steps
		if steps == 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}

	status, err := store.Status(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d pending=%d\n",
		opts.direction, status.CurrentVersion, status.Applied, status.Pending())
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
