package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// Commit applies the plan in one IMMEDIATE transaction, so the head check
// and the writes cannot interleave with another writer.
func (s *Store) Commit(ctx context.Context, plan *contracts.CommitPlan) (err error) {
	if plan.IsEmpty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if p := plan.InsertProduct; p != nil {
		if err = insertProduct(ctx, tx, p); err != nil {
			return err
		}
	}
	if p := plan.UpdateProduct; p != nil {
		if err = updateProduct(ctx, tx, p, plan.ExpectedHead); err != nil {
			return err
		}
	}
	for _, rec := range plan.Records {
		if err = insertRecord(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, e := range plan.Events {
		if err = insertEvent(ctx, tx, e); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

func insertProduct(ctx context.Context, tx *sql.Tx, p *domain.Product) error {
	var owner string
	err := tx.QueryRowContext(ctx, `SELECT product_id FROM products
		WHERE product_id = ? OR fingerprint = ?
		ORDER BY product_id = ? DESC LIMIT 1`,
		p.ID(), p.Fingerprint(), p.ID()).Scan(&owner)
	switch {
	case err == nil && owner == p.ID():
		return domain.ErrProductAlreadyExists
	case err == nil:
		return domain.ErrDuplicateFingerprint
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to check registration: %w", mapErr(err))
	}

	st := p.State()
	_, err = tx.ExecContext(ctx, `INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.BatchNumber, formatTime(st.ManufacturedAt), st.Origin, st.Category,
		st.Description, st.Owner, string(st.Status), st.Fingerprint, st.Head.Sequence, st.Head.Hash,
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", mapErr(err))
	}
	return nil
}

// updateProduct writes the dirty columns guarded by the expected head.
func updateProduct(ctx context.Context, tx *sql.Tx, p *domain.Product, expected domain.ChainHead) error {
	sets, args := updateColumns(p)
	args = append(args, p.ID(), expected.Sequence, expected.Hash)

	res, err := tx.ExecContext(ctx, `UPDATE products SET `+strings.Join(sets, ", ")+`
		WHERE product_id = ? AND head_sequence = ? AND head_hash = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update product: %w", mapErr(err))
	}
	if n == 1 {
		return nil
	}

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM products WHERE product_id = ?`, p.ID()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check product: %w", mapErr(err))
	}
	return contracts.ErrHeadConflict
}

func updateColumns(p *domain.Product) ([]string, []any) {
	var sets []string
	var args []any
	changes := p.Changes()

	if changes.Dirty(domain.FieldStatus) {
		sets = append(sets, "status = ?")
		args = append(args, string(p.Status()))
	}
	if changes.Dirty(domain.FieldHead) {
		sets = append(sets, "head_sequence = ?", "head_hash = ?")
		args = append(args, p.Head().Sequence, p.Head().Hash)
	}
	// Always written, so the guarded UPDATE has a SET clause even for a clean aggregate.
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(p.UpdatedAt()))
	return sets, args
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec *domain.ActivityRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO activity_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ProductID, rec.Sequence, string(rec.EventType), rec.Location, rec.Handler, rec.Details,
		formatTime(rec.Timestamp), rec.Hash, rec.PreviousHash)
	if isConstraint(err) {
		return contracts.ErrHeadConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", mapErr(err))
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, e *contracts.OutboxEvent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO outbox_events
		(event_id, event_type, aggregate_id, payload, status, retry_count, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.EventType, e.AggregateID, e.Payload, e.Status, e.RetryCount, e.ErrorMessage,
		formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", mapErr(err))
	}
	return nil
}
