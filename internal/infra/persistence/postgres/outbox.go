package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
)

// ClaimPending claims events with FOR UPDATE SKIP LOCKED so concurrent
// dispatchers never receive the same event.
func (s *Store) ClaimPending(ctx context.Context, now time.Time, limit int, lease time.Duration) (_ []*contracts.OutboxEvent, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `SELECT `+eventColumns+` FROM outbox_events
		WHERE status = $1 OR (status = $2 AND claimed_at < $3)
		ORDER BY seq
		LIMIT $4
		FOR UPDATE SKIP LOCKED`,
		contracts.OutboxStatusPending, contracts.OutboxStatusProcessing, now.Add(-lease), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", mapErr(err))
	}

	var claimed []*contracts.OutboxEvent
	var ids []string
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Status = contracts.OutboxStatusProcessing
		claimed = append(claimed, e)
		ids = append(ids, e.EventID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", mapErr(err))
	}

	if len(ids) == 0 {
		_ = tx.Rollback(ctx)
		return nil, nil
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox_events SET status = $1, claimed_at = $2 WHERE event_id::text = ANY($3)`,
		contracts.OutboxStatusProcessing, now, ids); err != nil {
		return nil, fmt.Errorf("failed to claim events: %w", mapErr(err))
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", mapErr(err))
	}
	return claimed, nil
}

// MarkCompleted records a successful delivery.
func (s *Store) MarkCompleted(ctx context.Context, eventID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE outbox_events
		SET status = $1, processed_at = $2, error_message = '', claimed_at = NULL
		WHERE event_id = $3`, contracts.OutboxStatusCompleted, at, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event completed: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %s not found", eventID)
	}
	return nil
}

// MarkFailed records a failed delivery attempt.
func (s *Store) MarkFailed(ctx context.Context, eventID string, reason string, maxRetries int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE outbox_events
		SET retry_count = retry_count + 1,
		    error_message = $1,
		    claimed_at = NULL,
		    status = CASE WHEN retry_count + 1 >= $2 THEN $3 ELSE $4 END
		WHERE event_id = $5`,
		reason, maxRetries, contracts.OutboxStatusFailed, contracts.OutboxStatusPending, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %s not found", eventID)
	}
	return nil
}

// PurgeCompleted deletes completed events processed before olderThan.
func (s *Store) PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM outbox_events WHERE status = $1 AND processed_at < $2`,
		contracts.OutboxStatusCompleted, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox: %w", mapErr(err))
	}
	return tag.RowsAffected(), nil
}

// ListEvents lists outbox events, newest first.
func (s *Store) ListEvents(ctx context.Context, filter *contracts.EventFilter) ([]*contracts.OutboxEvent, error) {
	var where []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.EventType != "" {
		add("event_type = $%d", filter.EventType)
	}
	if filter.AggregateID != "" {
		add("aggregate_id = $%d", filter.AggregateID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	query := `SELECT ` + eventColumns + ` FROM outbox_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", mapErr(err))
	}
	defer rows.Close()

	var out []*contracts.OutboxEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", mapErr(err))
	}
	return out, nil
}
