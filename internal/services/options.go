package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/repo"
	"github.com/light-bringer/supplytrace-ledger/internal/config"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/archive/fs"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/archive/s3"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/memory"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/postgres"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/sqlite"
	"github.com/light-bringer/supplytrace-ledger/internal/outbox"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/clock"
	"github.com/light-bringer/supplytrace-ledger/internal/transport/grpc/ledger"
	httphandler "github.com/light-bringer/supplytrace-ledger/internal/transport/http"
)

// ServiceOptions holds all dependencies for the application.
type ServiceOptions struct {
	Config  config.Config
	Logger  *slog.Logger
	Store   contracts.Store
	Archive contracts.ArchiveStore // nil when ARCHIVE_DRIVER=none
	App     *Application

	LedgerHandler *ledger.Handler
	HTTPHandler   http.Handler

	// Dispatcher is nil unless the outbox is enabled.
	Dispatcher *outbox.Dispatcher
	producer   *outbox.KafkaProducer
}

// NewServiceOptions creates and wires up all application dependencies.
func NewServiceOptions(ctx context.Context, cfg config.Config, logger *slog.Logger) (*ServiceOptions, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// 1. Open the store for the configured driver
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", "driver", cfg.StoreDriver)

	// 2. Open the chain export archive
	archive, err := OpenArchive(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if archive != nil {
		logger.Info("archive configured", "driver", cfg.ArchiveDriver)
	}

	// 3. Create use cases and queries
	clk := clock.NewRealClock()
	app := NewApplication(store, archive, clk)

	// 4. Create transport handlers
	ledgerHandler := ledger.NewHandler(
		app.RegisterProduct,
		app.TransitionStatus,
		app.RecordActivity,
		app.ExportChain,
		app.GetProduct,
		app.ListProducts,
		app.GetHistory,
		app.VerifyProduct,
		app.ListEvents,
	)
	httpHandler := httphandler.NewRouter(
		httphandler.NewProductsHandler(app.GetProduct, app.ListProducts, app.GetHistory, app.VerifyProduct),
		httphandler.NewEventsHandler(app.ListEvents),
		store,
		cfg.StoreTimeout,
	)

	opts := &ServiceOptions{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		Archive:       archive,
		App:           app,
		LedgerHandler: ledgerHandler,
		HTTPHandler:   httpHandler,
	}

	// 5. Outbox relay to Kafka
	if cfg.OutboxEnabled {
		opts.producer = outbox.NewKafkaProducer(cfg.KafkaBrokers)
		opts.Dispatcher = outbox.NewDispatcher(store, opts.producer, clk, logger.With("component", "outbox"), outbox.Config{
			Topic:        cfg.KafkaTopic,
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
			MaxRetries:   int64(cfg.OutboxMaxRetries),
		})
	}

	return opts, nil
}

// OpenStore opens the backend named by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg config.Config) (contracts.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		s, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	case config.DriverSpanner:
		s, err := repo.NewStore(ctx, cfg.SpannerDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to create Spanner client: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenArchive opens the archive named by cfg.ArchiveDriver, or returns nil
// for "none".
func OpenArchive(ctx context.Context, cfg config.Config) (contracts.ArchiveStore, error) {
	switch cfg.ArchiveDriver {
	case config.ArchiveNone, "":
		return nil, nil
	case config.ArchiveFS:
		a, err := fs.New(cfg.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open fs archive: %w", err)
		}
		return a, nil
	case config.ArchiveS3:
		a, err := s3.New(ctx, s3.Config{
			Region:    cfg.ArchiveS3Region,
			Bucket:    cfg.ArchiveS3Bucket,
			Endpoint:  cfg.ArchiveS3Endpoint,
			PathStyle: cfg.ArchiveS3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open s3 archive: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.ArchiveDriver)
	}
}

// Close closes all resources.
func (s *ServiceOptions) Close() error {
	var errs []error
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}
