// Command migrate applies the inbound mail schema migrations. It reads
// the same DB_* environment variables as the server, so the two binaries
// always point at the same database. Version state lives in the
// schema_migrations table.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cmclass/inbound-mail/internal/config"
)

const migrateTimeout = 5 * time.Minute

func main() {
	path := flag.String("path", "migrations", "Path to the migrations directory")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	if err := run(cfg.Database.DSN(), *path, args[0], args[1:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-path dir] <command> [args]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  up           Apply all pending migrations\n")
	fmt.Fprintf(os.Stderr, "  down N       Roll back the last N migrations\n")
	fmt.Fprintf(os.Stderr, "  version      Print the current schema version\n")
	fmt.Fprintf(os.Stderr, "  force V      Mark the schema as version V after manual repair\n")
	fmt.Fprintf(os.Stderr, "\nConnection settings come from the DB_* environment variables.\n")
}

func run(dsn, path, cmd string, args []string) error {
	m, err := open(dsn, path)
	if err != nil {
		return err
	}
	defer m.Close()

	switch cmd {
	case "up":
		return up(m)
	case "down":
		if len(args) < 1 {
			return errors.New("down requires the number of migrations to roll back")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return down(m, n)
	case "version":
		return showVersion(m)
	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return force(m, v)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func up(m *migrate.Migrate) error {
	from, _, _ := m.Version()
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("Schema already up to date")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}
	to, _, _ := m.Version()
	log.Printf("Migrated: %d -> %d", from, to)
	return nil
}

func down(m *migrate.Migrate, steps int) error {
	from, _, _ := m.Version()
	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("Nothing to roll back")
			return nil
		}
		return fmt.Errorf("rolling back: %w", err)
	}
	to, _, _ := m.Version()
	log.Printf("Rolled back: %d -> %d", from, to)
	return nil
}

func showVersion(m *migrate.Migrate) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Println("No migrations applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading version: %w", err)
	}
	if dirty {
		log.Printf("Schema version: %d (dirty, repair with force)", v)
	} else {
		log.Printf("Schema version: %d", v)
	}
	return nil
}

func force(m *migrate.Migrate, version int) error {
	if err := m.Force(version); err != nil {
		return fmt.Errorf("forcing version: %w", err)
	}
	log.Printf("Schema version forced to %d", version)
	return nil
}

func open(dsn, path string) (*migrate.Migrate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+abs, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	m.LockTimeout = migrateTimeout
	return m, nil
}
