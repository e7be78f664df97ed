package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/config"
	"github.com/light-bringer/supplytrace-ledger/internal/services"
)

// Options configures one cleanup run.
type Options struct {
	RetentionDays int
	DryRun        bool
}

func main() {
	cfg := config.Load()

	opts := Options{}
	flag.StringVar(&cfg.StoreDriver, "driver", cfg.StoreDriver, "Store driver: sqlite, postgres or spanner")
	flag.IntVar(&opts.RetentionDays, "completed-retention", 30, "Retention days for completed events")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "Show what would be deleted without actually deleting")
	flag.Parse()

	ctx := context.Background()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, err := services.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	// Run cleanup
	if err := cleanupOutbox(ctx, store, opts, time.Now().UTC()); err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}

	log.Println("Cleanup completed successfully")
}

func cleanupOutbox(ctx context.Context, store contracts.Store, opts Options, now time.Time) error {
	if opts.RetentionDays < 0 {
		return fmt.Errorf("retention must not be negative, got %d", opts.RetentionDays)
	}
	cutoff := now.AddDate(0, 0, -opts.RetentionDays)

	log.Printf("Starting outbox cleanup...")
	log.Printf("  Completed events cutoff: %s (retention: %d days)", cutoff.Format(time.RFC3339), opts.RetentionDays)
	log.Printf("  Dry run: %v", opts.DryRun)

	if opts.DryRun {
		return dryRunCleanup(ctx, store, cutoff)
	}

	deleted, err := store.PurgeCompleted(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	log.Printf("Successfully deleted %d events", deleted)
	return nil
}

// dryRunCleanup counts completed events older than cutoff.
// Failed events are kept for inspection.
func dryRunCleanup(ctx context.Context, store contracts.Store, cutoff time.Time) error {
	events, err := store.ListEvents(ctx, &contracts.EventFilter{Status: contracts.OutboxStatusCompleted})
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}

	count := 0
	for _, e := range events {
		if e.ProcessedAt != nil && e.ProcessedAt.Before(cutoff) {
			count++
		}
	}

	log.Printf("DRY RUN: Would delete %d completed events", count)
	log.Println("Run without --dry-run to actually delete events")
	return nil
}
