// Package postgres stores the ledger in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

//go:embed schema.sql
var schema string

const productColumns = `product_id, name, batch_number, manufactured_at, origin, category, description,
	owner, status, fingerprint, head_sequence, head_hash, created_at, updated_at`

const recordColumns = `product_id, sequence, event_type, location, handler, details, timestamp, hash, previous_hash`

const eventColumns = `event_id::text, event_type, aggregate_id, payload::text, status, retry_count, error_message, created_at, processed_at`

// Store implements contracts.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ contracts.Store = (*Store)(nil)

// NewStore connects to url and applies the schema.
func NewStore(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	return NewStoreWithConfig(ctx, cfg)
}

// NewStoreWithConfig connects with a prepared pool config.
func NewStoreWithConfig(ctx context.Context, cfg *pgxpool.Config) (*Store, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Pool exposes the pool for integration testing hooks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.pool.Ping(ctx))
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// PostgreSQL error codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
)

// mapErr marks serialization failures and lost connections as transient.
func mapErr(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeAdminShutdown:
			return fmt.Errorf("%w: %v", contracts.ErrTransient, err)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) || strings.Contains(err.Error(), "closed pool") {
		return fmt.Errorf("%w: %v", contracts.ErrTransient, err)
	}
	return err
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.ProductState, error) {
	var st domain.ProductState
	var status string
	err := row.Scan(&st.ID, &st.Name, &st.BatchNumber, &st.ManufacturedAt, &st.Origin, &st.Category,
		&st.Description, &st.Owner, &status, &st.Fingerprint, &st.Head.Sequence, &st.Head.Hash,
		&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return st, err
	}
	st.Status = domain.ProductStatus(status)
	st.ManufacturedAt = st.ManufacturedAt.UTC()
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

func scanRecord(row scanner) (*domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	var eventType string
	if err := row.Scan(&rec.ProductID, &rec.Sequence, &eventType, &rec.Location, &rec.Handler,
		&rec.Details, &rec.Timestamp, &rec.Hash, &rec.PreviousHash); err != nil {
		return nil, err
	}
	rec.EventType = domain.EventType(eventType)
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}

func scanEvent(row scanner) (*contracts.OutboxEvent, error) {
	var e contracts.OutboxEvent
	var processed *time.Time
	if err := row.Scan(&e.EventID, &e.EventType, &e.AggregateID, &e.Payload, &e.Status,
		&e.RetryCount, &e.ErrorMessage, &e.CreatedAt, &processed); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	if processed != nil {
		p := processed.UTC()
		e.ProcessedAt = &p
	}
	return &e, nil
}

// GetByID reconstructs the product aggregate.
func (s *Store) GetByID(ctx context.Context, productID string) (*domain.Product, error) {
	st, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE product_id = $1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read product: %w", mapErr(err))
	}
	return domain.ReconstructProduct(st), nil
}

// FindIDByFingerprint returns the product registered under fingerprint.
func (s *Store) FindIDByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT product_id FROM products WHERE fingerprint = $1`, fingerprint).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrProductNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up fingerprint: %w", mapErr(err))
	}
	return id, nil
}

// Exists checks if a product exists.
func (s *Store) Exists(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE product_id = $1)`, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check product existence: %w", mapErr(err))
	}
	return exists, nil
}

// Head returns the record with the highest sequence.
func (s *Store) Head(ctx context.Context, productID string) (*domain.ActivityRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM activity_records
		WHERE product_id = $1 ORDER BY sequence DESC LIMIT 1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chain head: %w", mapErr(err))
	}
	return rec, nil
}

// Records reads the chain one page per query; no transaction spans pages.
func (s *Store) Records(ctx context.Context, productID string, through int64) iter.Seq2[*domain.ActivityRecord, error] {
	return func(yield func(*domain.ActivityRecord, error) bool) {
		var next int64
		for next <= through {
			page, err := s.recordPage(ctx, productID, next, through)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			next = page[len(page)-1].Sequence + 1
		}
	}
}

func (s *Store) recordPage(ctx context.Context, productID string, from, through int64) ([]*domain.ActivityRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM activity_records
		WHERE product_id = $1 AND sequence BETWEEN $2 AND $3
		ORDER BY sequence LIMIT $4`, productID, from, through, contracts.RecordPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain: %w", mapErr(err))
	}
	defer rows.Close()

	var page []*domain.ActivityRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		page = append(page, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chain: %w", mapErr(err))
	}
	return page, nil
}
