package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// Commit applies the plan in one transaction. The product row is locked
// with SELECT ... FOR UPDATE before the head is compared.
func (s *Store) Commit(ctx context.Context, plan *contracts.CommitPlan) (err error) {
	if plan.IsEmpty() {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
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

	batch := &pgx.Batch{}
	for _, rec := range plan.Records {
		batch.Queue(`INSERT INTO activity_records (`+recordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.ProductID, rec.Sequence, string(rec.EventType), rec.Location, rec.Handler, rec.Details,
			rec.Timestamp, rec.Hash, rec.PreviousHash)
	}
	for _, e := range plan.Events {
		batch.Queue(`INSERT INTO outbox_events
			(event_id, event_type, aggregate_id, payload, status, retry_count, error_message, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.EventID, e.EventType, e.AggregateID, e.Payload, e.Status, e.RetryCount, e.ErrorMessage, e.CreatedAt)
	}
	if batch.Len() > 0 {
		if err = tx.SendBatch(ctx, batch).Close(); err != nil {
			if constraint, ok := uniqueViolation(err); ok && strings.HasPrefix(constraint, "activity_records") {
				return contracts.ErrHeadConflict
			}
			return fmt.Errorf("failed to write records: %w", mapErr(err))
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

func insertProduct(ctx context.Context, tx pgx.Tx, p *domain.Product) error {
	st := p.State()
	_, err := tx.Exec(ctx, `INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		st.ID, st.Name, st.BatchNumber, st.ManufacturedAt, st.Origin, st.Category,
		st.Description, st.Owner, string(st.Status), st.Fingerprint, st.Head.Sequence, st.Head.Hash,
		st.CreatedAt, st.UpdatedAt)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == "products_fingerprint_key" {
			return domain.ErrDuplicateFingerprint
		}
		return domain.ErrProductAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", mapErr(err))
	}
	return nil
}

func updateProduct(ctx context.Context, tx pgx.Tx, p *domain.Product, expected domain.ChainHead) error {
	var current domain.ChainHead
	err := tx.QueryRow(ctx, `SELECT head_sequence, head_hash FROM products WHERE product_id = $1 FOR UPDATE`,
		p.ID()).Scan(&current.Sequence, &current.Hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock product: %w", mapErr(err))
	}
	if current != expected {
		return contracts.ErrHeadConflict
	}

	sets, args := updateColumns(p)
	args = append(args, p.ID())
	if _, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE products SET %s WHERE product_id = $%d`,
		strings.Join(sets, ", "), len(args)), args...); err != nil {
		return fmt.Errorf("failed to update product: %w", mapErr(err))
	}
	return nil
}

// updateColumns builds the SET clause from the dirty fields. updated_at is
// always written.
func updateColumns(p *domain.Product) ([]string, []any) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	changes := p.Changes()
	if changes.Dirty(domain.FieldStatus) {
		set("status", string(p.Status()))
	}
	if changes.Dirty(domain.FieldHead) {
		set("head_sequence", p.Head().Sequence)
		set("head_hash", p.Head().Hash)
	}
	set("updated_at", p.UpdatedAt())
	return sets, args
}
