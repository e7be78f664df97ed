// Package outbox delivers committed ledger events to Kafka.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/clock"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Config tunes the polling loop.
type Config struct {
	Topic        string
	PollInterval time.Duration
	BatchSize    int
	// Lease is how long a claim stays exclusive before another dispatcher may retake it.
	Lease      time.Duration
	MaxRetries int64
}

func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = "supplytrace.ledger.events"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	return c
}

// Dispatcher drains the outbox and publishes events keyed by product id,
// so every product's events land on one partition in commit order.
type Dispatcher struct {
	repo             contracts.OutboxRepository
	producer         messageWriter
	clock            clock.Clock
	logger           *slog.Logger
	cfg              Config
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(repo contracts.OutboxRepository, producer messageWriter, clk clock.Clock, logger *slog.Logger, cfg Config) *Dispatcher {
	return &Dispatcher{
		repo:             repo,
		producer:         producer,
		clock:            clk,
		logger:           logger,
		cfg:              cfg.withDefaults(),
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	d.logger.Info("outbox dispatcher started", "topic", d.cfg.Topic, "interval", d.cfg.PollInterval)
	for {
		if _, err := d.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatcher error", "error", err)
		}

		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

// ProcessBatch claims one batch, publishes it and records the outcome of
// every event. It returns how many events were delivered.
func (d *Dispatcher) ProcessBatch(ctx context.Context) (int, error) {
	start := time.Now()

	events, err := d.repo.ClaimPending(ctx, d.clock.Now(), d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	messages := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		messages = append(messages, toMessage(e))
	}

	if err := d.producer.WriteMessages(ctx, d.cfg.Topic, messages...); err != nil {
		d.logger.Warn("outbox delivery failed", "events", len(events), "error", err)
		return 0, d.markFailed(ctx, events, err)
	}

	now := d.clock.Now()
	for _, e := range events {
		if err := d.repo.MarkCompleted(ctx, e.EventID, now); err != nil {
			return 0, err
		}
	}
	deliveredCounter.Add(float64(len(events)))
	return len(events), nil
}

func (d *Dispatcher) markFailed(ctx context.Context, events []*contracts.OutboxEvent, cause error) error {
	var errs []error
	for _, e := range events {
		if err := d.repo.MarkFailed(ctx, e.EventID, cause.Error(), d.cfg.MaxRetries); err != nil {
			errs = append(errs, err)
			continue
		}
		failedCounter.Inc()
		if e.RetryCount+1 >= d.cfg.MaxRetries {
			exhaustedCounter.Inc()
			d.logger.Error("outbox event gave up", "event_id", e.EventID, "event_type", e.EventType, "attempts", e.RetryCount+1)
		}
	}
	return errors.Join(errs...)
}

func toMessage(e *contracts.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: []byte(e.Payload),
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.EventID)},
			{Key: "event_type", Value: []byte(e.EventType)},
		},
	}
}
