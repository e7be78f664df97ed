package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
)

// ClaimPending claims events inside one IMMEDIATE transaction, which plays
// the role of FOR UPDATE SKIP LOCKED on a single-writer database.
func (s *Store) ClaimPending(ctx context.Context, now time.Time, limit int, lease time.Duration) (_ []*contracts.OutboxEvent, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `SELECT `+eventColumns+` FROM outbox_events
		WHERE status = ? OR (status = ? AND claimed_at < ?)
		ORDER BY seq LIMIT ?`,
		contracts.OutboxStatusPending, contracts.OutboxStatusProcessing, formatTime(now.Add(-lease)), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", mapErr(err))
	}

	var claimed []*contracts.OutboxEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		claimed = append(claimed, e)
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to query pending events: %w", mapErr(err))
	}
	_ = rows.Close()

	if len(claimed) == 0 {
		_ = tx.Rollback()
		return nil, nil
	}

	ids := make([]any, 0, len(claimed)+2)
	ids = append(ids, contracts.OutboxStatusProcessing, formatTime(now))
	for _, e := range claimed {
		e.Status = contracts.OutboxStatusProcessing
		ids = append(ids, e.EventID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(claimed)), ", ")
	if _, err = tx.ExecContext(ctx, `UPDATE outbox_events SET status = ?, claimed_at = ?
		WHERE event_id IN (`+placeholders+`)`, ids...); err != nil {
		return nil, fmt.Errorf("failed to claim events: %w", mapErr(err))
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", mapErr(err))
	}
	return claimed, nil
}

// MarkCompleted records a successful delivery.
func (s *Store) MarkCompleted(ctx context.Context, eventID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE outbox_events
		SET status = ?, processed_at = ?, error_message = '', claimed_at = NULL
		WHERE event_id = ?`, contracts.OutboxStatusCompleted, formatTime(at), eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event completed: %w", mapErr(err))
	}
	return requireRow(res, eventID)
}

// MarkFailed records a failed delivery attempt.
func (s *Store) MarkFailed(ctx context.Context, eventID string, reason string, maxRetries int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE outbox_events
		SET retry_count = retry_count + 1,
		    error_message = ?,
		    claimed_at = NULL,
		    status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END
		WHERE event_id = ?`,
		reason, maxRetries, contracts.OutboxStatusFailed, contracts.OutboxStatusPending, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", mapErr(err))
	}
	return requireRow(res, eventID)
}

// PurgeCompleted deletes completed events processed before olderThan.
func (s *Store) PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outbox_events WHERE status = ? AND processed_at < ?`,
		contracts.OutboxStatusCompleted, formatTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox: %w", mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox: %w", mapErr(err))
	}
	return n, nil
}

// ListEvents lists outbox events, newest first.
func (s *Store) ListEvents(ctx context.Context, filter *contracts.EventFilter) ([]*contracts.OutboxEvent, error) {
	var where []string
	var args []any
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.AggregateID != "" {
		where = append(where, "aggregate_id = ?")
		args = append(args, filter.AggregateID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + eventColumns + ` FROM outbox_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", mapErr(err))
	}
	defer func() { _ = rows.Close() }()

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

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffected, eventID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return fmt.Errorf("outbox event %s not found", eventID)
	}
	return nil
}
