// Package sqlite stores the ledger in a single SQLite database through the
// pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

//go:embed schema.sql
var schema string

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const productColumns = `product_id, name, batch_number, manufactured_at, origin, category, description,
	owner, status, fingerprint, head_sequence, head_hash, created_at, updated_at`

const recordColumns = `product_id, sequence, event_type, location, handler, details, timestamp, hash, previous_hash`

const eventColumns = `event_id, event_type, aggregate_id, payload, status, retry_count, error_message, created_at, processed_at`

// Store implements contracts.Store on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ contracts.Store = (*Store)(nil)

// NewStore opens (creating if needed) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "supplytrace.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite allows a single writer anyway, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func dsn(path string) string {
	params := []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=foreign_keys(1)",
		"_txlock=immediate",
	}
	if path != ":memory:" {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.db.PingContext(ctx))
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// mapErr marks lock contention and closed connections as transient.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlitedriver.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", contracts.ErrTransient, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "sql: database is closed") {
		return fmt.Errorf("%w: %v", contracts.ErrTransient, err)
	}
	return err
}

func isConstraint(err error) bool {
	var se *sqlitedriver.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func formatTime(t time.Time) string {
	return domain.NormalizeTimestamp(t).Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.ProductState, error) {
	var st domain.ProductState
	var status, manufactured, created, updated string
	err := row.Scan(&st.ID, &st.Name, &st.BatchNumber, &manufactured, &st.Origin, &st.Category,
		&st.Description, &st.Owner, &status, &st.Fingerprint, &st.Head.Sequence, &st.Head.Hash,
		&created, &updated)
	if err != nil {
		return st, err
	}
	st.Status = domain.ProductStatus(status)
	if st.ManufacturedAt, err = parseTime(manufactured); err != nil {
		return st, err
	}
	if st.CreatedAt, err = parseTime(created); err != nil {
		return st, err
	}
	if st.UpdatedAt, err = parseTime(updated); err != nil {
		return st, err
	}
	return st, nil
}

func scanRecord(row scanner) (*domain.ActivityRecord, error) {
	var (
		rec       domain.ActivityRecord
		eventType string
		ts        string
	)
	if err := row.Scan(&rec.ProductID, &rec.Sequence, &eventType, &rec.Location, &rec.Handler,
		&rec.Details, &ts, &rec.Hash, &rec.PreviousHash); err != nil {
		return nil, err
	}
	rec.EventType = domain.EventType(eventType)
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = t
	return &rec, nil
}

func scanEvent(row scanner) (*contracts.OutboxEvent, error) {
	var (
		e         contracts.OutboxEvent
		created   string
		processed sql.NullString
	)
	if err := row.Scan(&e.EventID, &e.EventType, &e.AggregateID, &e.Payload, &e.Status,
		&e.RetryCount, &e.ErrorMessage, &created, &processed); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = t
	if processed.Valid {
		p, err := parseTime(processed.String)
		if err != nil {
			return nil, err
		}
		e.ProcessedAt = &p
	}
	return &e, nil
}

// GetByID reconstructs the product aggregate.
func (s *Store) GetByID(ctx context.Context, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE product_id = ?`, productID)
	st, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	err := s.db.QueryRowContext(ctx, `SELECT product_id FROM products WHERE fingerprint = ?`, fingerprint).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrProductNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up fingerprint: %w", mapErr(err))
	}
	return id, nil
}

// Exists checks if a product exists.
func (s *Store) Exists(ctx context.Context, productID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM products WHERE product_id = ?`, productID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check product existence: %w", mapErr(err))
	}
	return true, nil
}

// Head returns the record with the highest sequence.
func (s *Store) Head(ctx context.Context, productID string) (*domain.ActivityRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM activity_records
		WHERE product_id = ? ORDER BY sequence DESC LIMIT 1`, productID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM activity_records
		WHERE product_id = ? AND sequence >= ? AND sequence <= ?
		ORDER BY sequence LIMIT ?`, productID, from, through, contracts.RecordPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain: %w", mapErr(err))
	}
	defer func() { _ = rows.Close() }()

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
