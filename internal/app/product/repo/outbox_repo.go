package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/models/m_outbox"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/committer"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/query"
)

// OutboxRepo implements OutboxRepository for Spanner.
type OutboxRepo struct {
	client    *spanner.Client
	committer *committer.Committer
	model     *m_outbox.Model
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(client *spanner.Client, c *committer.Committer) *OutboxRepo {
	return &OutboxRepo{
		client:    client,
		committer: c,
		model:     m_outbox.NewModel(),
	}
}

// InsertMut creates a mutation for inserting an outbox event.
func (r *OutboxRepo) InsertMut(event *contracts.OutboxEvent) *spanner.Mutation {
	// RawMessage keeps the payload a JSON document instead of a JSON string
	payload := spanner.NullJSON{Value: json.RawMessage(event.Payload), Valid: event.Payload != ""}

	data := &m_outbox.Data{
		EventID:     event.EventID,
		EventType:   event.EventType,
		AggregateID: event.AggregateID,
		Payload:     payload,
		Status:      event.Status,
		CreatedAt:   event.CreatedAt,
		RetryCount:  event.RetryCount,
	}
	if event.ErrorMessage != "" {
		data.ErrorMessage = spanner.NullString{StringVal: event.ErrorMessage, Valid: true}
	}

	return r.model.InsertMut(data)
}

// ClaimPending reads and re-stamps the claimable events in one read-write
// transaction. Spanner's lock on the rows read stands in for SKIP LOCKED.
func (r *OutboxRepo) ClaimPending(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*contracts.OutboxEvent, error) {
	stmt := query.From(m_outbox.TableName).
		Select(m_outbox.Columns...).
		Where(query.Or(
			query.Eq(m_outbox.Status, contracts.OutboxStatusPending),
			query.And(
				query.Eq(m_outbox.Status, contracts.OutboxStatusProcessing),
				query.Lt(m_outbox.ClaimedAt, now.Add(-lease)),
			),
		)).
		OrderBy(m_outbox.CreatedAt, query.Asc).
		OrderBy(m_outbox.EventID, query.Asc).
		Limit(int64(limit)).
		Build()

	var claimed []*contracts.OutboxEvent
	err := r.committer.ApplyWithReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		// the function is re-run on abort
		claimed = claimed[:0]

		events, err := collectEvents(txn.Query(ctx, stmt))
		if err != nil {
			return err
		}

		muts := make([]*spanner.Mutation, 0, len(events))
		for _, e := range events {
			e.Status = contracts.OutboxStatusProcessing
			muts = append(muts, r.model.UpdateMut(e.EventID, map[string]interface{}{
				m_outbox.Status:    contracts.OutboxStatusProcessing,
				m_outbox.ClaimedAt: now,
			}))
		}
		claimed = append(claimed, events...)
		return txn.BufferWrite(muts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim events: %w", mapErr(err))
	}
	return claimed, nil
}

// MarkCompleted records a successful delivery.
func (r *OutboxRepo) MarkCompleted(ctx context.Context, eventID string, at time.Time) error {
	plan := committer.NewPlan()
	plan.Add(r.model.UpdateMut(eventID, map[string]interface{}{
		m_outbox.Status:       contracts.OutboxStatusCompleted,
		m_outbox.ProcessedAt:  at,
		m_outbox.ClaimedAt:    spanner.NullTime{},
		m_outbox.ErrorMessage: spanner.NullString{},
	}))

	if err := r.committer.Apply(ctx, plan); err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return fmt.Errorf("outbox event %s not found", eventID)
		}
		return fmt.Errorf("failed to mark event completed: %w", mapErr(err))
	}
	return nil
}

// MarkFailed records a failed delivery attempt.
func (r *OutboxRepo) MarkFailed(ctx context.Context, eventID string, reason string, maxRetries int64) error {
	err := r.committer.ApplyWithReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		row, err := txn.ReadRow(ctx, m_outbox.TableName, spanner.Key{eventID}, []string{m_outbox.RetryCount})
		if err != nil {
			return err
		}
		var retries int64
		if err := row.Column(0, &retries); err != nil {
			return err
		}
		retries++

		status := contracts.OutboxStatusPending
		if retries >= maxRetries {
			status = contracts.OutboxStatusFailed
		}
		return txn.BufferWrite([]*spanner.Mutation{r.model.UpdateMut(eventID, map[string]interface{}{
			m_outbox.Status:       status,
			m_outbox.RetryCount:   retries,
			m_outbox.ErrorMessage: spanner.NullString{StringVal: reason, Valid: true},
			m_outbox.ClaimedAt:    spanner.NullTime{},
		})})
	})
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return fmt.Errorf("outbox event %s not found", eventID)
		}
		return fmt.Errorf("failed to mark event failed: %w", mapErr(err))
	}
	return nil
}

// PurgeCompleted deletes completed events processed before olderThan.
func (r *OutboxRepo) PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error) {
	stmt := spanner.Statement{
		SQL: "DELETE FROM " + m_outbox.TableName +
			" WHERE " + m_outbox.Status + " = @status AND " + m_outbox.ProcessedAt + " < @cutoff",
		Params: map[string]interface{}{
			"status": contracts.OutboxStatusCompleted,
			"cutoff": olderThan,
		},
	}

	var purged int64
	err := r.committer.ApplyWithReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		n, err := txn.Update(ctx, stmt)
		purged = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox: %w", mapErr(err))
	}
	return purged, nil
}

// collectEvents drains a row iterator of outbox rows.
func collectEvents(iter *spanner.RowIterator) ([]*contracts.OutboxEvent, error) {
	defer iter.Stop()

	var events []*contracts.OutboxEvent
	for {
		row, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return events, nil
		}
		if err != nil {
			return nil, err
		}

		var data m_outbox.Data
		if err := row.ToStruct(&data); err != nil {
			return nil, fmt.Errorf("failed to parse event: %w", err)
		}
		e, err := dataToEvent(&data)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
}

func dataToEvent(data *m_outbox.Data) (*contracts.OutboxEvent, error) {
	e := &contracts.OutboxEvent{
		EventID:      data.EventID,
		EventType:    data.EventType,
		AggregateID:  data.AggregateID,
		Status:       data.Status,
		RetryCount:   data.RetryCount,
		ErrorMessage: data.ErrorMessage.StringVal,
		CreatedAt:    data.CreatedAt.UTC(),
	}
	if data.Payload.Valid {
		payload, err := json.Marshal(data.Payload.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload of %s: %w", data.EventID, err)
		}
		e.Payload = string(payload)
	}
	if data.ProcessedAt.Valid {
		processed := data.ProcessedAt.Time.UTC()
		e.ProcessedAt = &processed
	}
	return e, nil
}
