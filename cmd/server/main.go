package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/light-bringer/supplytrace-ledger/internal/config"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/logging"
	"github.com/light-bringer/supplytrace-ledger/internal/services"
	"github.com/light-bringer/supplytrace-ledger/internal/transport/grpc/ledger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration from environment variables
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting supplytrace ledger",
		"store", cfg.StoreDriver,
		"archive", cfg.ArchiveDriver,
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"outbox", cfg.OutboxEnabled,
	)

	// 2. Initialize service dependencies (DI container)
	serviceOpts, err := services.NewServiceOptions(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	defer func() {
		if err := serviceOpts.Close(); err != nil {
			logger.Error("failed to close resources", "error", err)
		}
	}()

	// 3. Create gRPC server with logging and default deadlines
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			ledger.UnaryLoggingInterceptor(logger),
			ledger.UnaryTimeoutInterceptor(cfg.StoreTimeout),
		),
		grpc.ChainStreamInterceptor(ledger.StreamLoggingInterceptor(logger)),
	)

	// 4. Register services
	ledger.RegisterLedgerServiceServer(grpcServer, serviceOpts.LedgerHandler)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ledger.ServiceName, healthpb.HealthCheckResponse_SERVING)

	// 5. Enable reflection (for grpcurl and debugging)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           serviceOpts.HTTPHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", lis.Addr().String())
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if d := serviceOpts.Dispatcher; d != nil {
		g.Go(func() error {
			d.Start(ctx)
			return nil
		})
	}

	// 6. Graceful shutdown handling
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down gracefully")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
