package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/verify_product"
	"github.com/light-bringer/supplytrace-ledger/internal/config"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/clock"
	"github.com/light-bringer/supplytrace-ledger/internal/services"
)

// errIntegrity makes the process exit non-zero after a full report.
var errIntegrity = errors.New("integrity failures found")

func main() {
	cfg := config.Load()

	productID := flag.String("product", "", "Verify a single product (default: every product)")
	flag.StringVar(&cfg.StoreDriver, "driver", cfg.StoreDriver, "Store driver: sqlite, postgres or spanner")
	quiet := flag.Bool("quiet", false, "Only report products that fail verification")
	flag.Parse()

	ctx := context.Background()
	store, err := services.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	err = run(ctx, store, os.Stdout, *productID, *quiet)
	if errors.Is(err, errIntegrity) {
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
}

func run(ctx context.Context, store contracts.Store, out io.Writer, productID string, quiet bool) error {
	verify := verify_product.NewQuery(store, store, clock.NewRealClock())

	ids := []string{productID}
	if productID == "" {
		var err error
		if ids, err = allProductIDs(ctx, store); err != nil {
			return err
		}
	}

	invalid := 0
	for _, id := range ids {
		result, err := verify.Execute(ctx, &verify_product.Request{ProductID: id})
		if err != nil {
			return fmt.Errorf("verify %s: %w", id, err)
		}
		if !result.Valid {
			invalid++
		}
		report(out, result, quiet)
	}

	summary := color.New(color.FgGreen)
	if invalid > 0 {
		summary = color.New(color.FgRed, color.Bold)
	}
	summary.Fprintf(out, "\n%d products verified, %d with integrity failures\n", len(ids), invalid)

	if invalid > 0 {
		return errIntegrity
	}
	return nil
}

func report(out io.Writer, result domain.VerificationResult, quiet bool) {
	if result.Valid {
		if !quiet {
			fmt.Fprintf(out, "%s %s (%d records, head %d:%.16s)\n",
				color.GreenString("✓"), result.ProductID, result.RecordCount, result.Head.Sequence, result.Head.Hash)
		}
		return
	}

	fmt.Fprintf(out, "%s %s (%d records)\n", color.RedString("✗"), result.ProductID, result.RecordCount)
	for _, f := range result.Failures {
		fmt.Fprintf(out, "    %s at %d: %s\n", color.YellowString("%s", f.Kind), f.Sequence, f.Message)
	}
}

func allProductIDs(ctx context.Context, store contracts.ReadModel) ([]string, error) {
	var ids []string
	filter := &contracts.ListFilter{PageSize: contracts.MaxPageSize}
	for {
		page, err := store.ListProducts(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}
		for _, p := range page.Products {
			ids = append(ids, p.ProductID)
		}
		if page.NextPageToken == "" {
			return ids, nil
		}
		filter.PageToken = page.NextPageToken
	}
}
