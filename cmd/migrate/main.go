package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/repo"
	"github.com/light-bringer/supplytrace-ledger/internal/config"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/postgres"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/sqlite"
)

func main() {
	cfg := config.Load()

	driver := flag.String("driver", cfg.StoreDriver, "Store driver: sqlite, postgres or spanner")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	flag.StringVar(&cfg.PostgresURL, "postgres-url", cfg.PostgresURL, "PostgreSQL connection URL")
	flag.StringVar(&cfg.SpannerDatabase, "spanner-database", cfg.SpannerDatabase, "Spanner database (projects/P/instances/I/databases/D)")
	flag.Parse()
	cfg.StoreDriver = strings.ToLower(*driver)

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully!")
}

func run(ctx context.Context, cfg config.Config) error {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		// Opening the store applies the embedded schema.
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		log.Printf("SQLite schema applied to %s", store.Path())
		return store.Close()

	case config.DriverPostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		log.Println("PostgreSQL schema applied")
		return store.Close()

	case config.DriverSpanner:
		return migrateSpanner(ctx, cfg.SpannerDatabase)

	case config.DriverMemory:
		return fmt.Errorf("the memory driver has no schema to migrate")

	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func migrateSpanner(ctx context.Context, path string) error {
	dbCfg, err := repo.ParseDatabasePath(path)
	if err != nil {
		return err
	}

	// Check if using emulator
	if emulatorHost := os.Getenv("SPANNER_EMULATOR_HOST"); emulatorHost != "" {
		log.Printf("Using Spanner emulator at %s", emulatorHost)
		log.Printf("Ensuring instance %s exists...", dbCfg.InstanceID)
		if err := repo.EnsureInstance(ctx, dbCfg); err != nil {
			return fmt.Errorf("failed to ensure instance: %w", err)
		}
	}

	applied, err := repo.Migrate(ctx, dbCfg)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		log.Printf("Database %s is up to date", dbCfg.DatabaseID)
		return nil
	}
	for _, stmt := range applied {
		log.Printf("  applied: %s", firstLine(stmt))
	}
	log.Printf("Applied %d statements to %s", len(applied), dbCfg.DatabaseID)
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
