package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/list_events"
	"github.com/light-bringer/supplytrace-ledger/internal/config"
	"github.com/light-bringer/supplytrace-ledger/internal/services"
)

func main() {
	cfg := config.Load()

	req := &list_events.Request{}
	flag.StringVar(&cfg.StoreDriver, "driver", cfg.StoreDriver, "Store driver: sqlite, postgres or spanner")
	flag.StringVar(&req.AggregateID, "product", "", "Only events of this product")
	flag.StringVar(&req.EventType, "type", "", "Only events of this type")
	flag.StringVar(&req.Status, "status", "", "Only events in this status")
	flag.IntVar(&req.Limit, "limit", 10, "Maximum number of events")
	flag.Parse()

	ctx := context.Background()
	store, err := services.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	events, err := list_events.NewQuery(store).Execute(ctx, req)
	if err != nil {
		log.Fatalf("Failed to list events: %v", err)
	}

	fmt.Println("Events in the outbox:")
	for i, e := range events {
		fmt.Printf("%d. %s - %s (product: %s, status: %s, retries: %d, created: %s)\n",
			i+1, e.EventType, e.EventID, e.AggregateID, e.Status, e.RetryCount, e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}

	if len(events) == 0 {
		fmt.Println("No events found!")
	} else {
		fmt.Printf("\nTotal: %d events\n", len(events))
	}
}
