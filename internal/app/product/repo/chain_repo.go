package repo

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/models/m_activity"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/query"
)

// ChainRepo reads activity chains from Spanner and builds record mutations.
type ChainRepo struct {
	client *spanner.Client
	model  *m_activity.Model
}

// NewChainRepo creates a new ChainRepo.
func NewChainRepo(client *spanner.Client) *ChainRepo {
	return &ChainRepo{
		client: client,
		model:  m_activity.NewModel(),
	}
}

// InsertMut creates a mutation appending rec to its chain.
func (r *ChainRepo) InsertMut(rec *domain.ActivityRecord) *spanner.Mutation {
	return r.model.InsertMut(&m_activity.Data{
		ProductID:    rec.ProductID,
		Sequence:     rec.Sequence,
		EventType:    string(rec.EventType),
		Location:     rec.Location,
		Handler:      rec.Handler,
		Details:      rec.Details,
		Timestamp:    rec.Timestamp,
		Hash:         rec.Hash,
		PreviousHash: rec.PreviousHash,
	})
}

// Head returns the record with the highest sequence.
func (r *ChainRepo) Head(ctx context.Context, productID string) (*domain.ActivityRecord, error) {
	stmt := query.From(m_activity.TableName).
		Select(m_activity.Columns...).
		Where(query.Eq(m_activity.ProductID, productID)).
		OrderBy(m_activity.Sequence, query.Desc).
		Limit(1).
		Build()

	iter := r.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	row, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chain head: %w", mapErr(err))
	}
	return rowToRecord(row)
}

// Records streams the chain one page at a time. Each page is its own
// single-use read, so nothing stays open while the caller handles a record.
func (r *ChainRepo) Records(ctx context.Context, productID string, through int64) iter.Seq2[*domain.ActivityRecord, error] {
	return func(yield func(*domain.ActivityRecord, error) bool) {
		next := int64(0)
		for next <= through {
			page, err := r.page(ctx, productID, next, through)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
				next = rec.Sequence + 1
			}
			if len(page) < contracts.RecordPageSize {
				return
			}
		}
	}
}

func (r *ChainRepo) page(ctx context.Context, productID string, from, through int64) ([]*domain.ActivityRecord, error) {
	stmt := query.From(m_activity.TableName).
		Select(m_activity.Columns...).
		Where(query.Eq(m_activity.ProductID, productID)).
		Where(query.Between(m_activity.Sequence, from, through)).
		OrderBy(m_activity.Sequence, query.Asc).
		Limit(contracts.RecordPageSize).
		Build()

	iter := r.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	records := make([]*domain.ActivityRecord, 0, contracts.RecordPageSize)
	for {
		row, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read chain: %w", mapErr(err))
		}
		rec, err := rowToRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

func rowToRecord(row *spanner.Row) (*domain.ActivityRecord, error) {
	var data m_activity.Data
	if err := row.ToStruct(&data); err != nil {
		return nil, fmt.Errorf("failed to parse activity record: %w", err)
	}
	return &domain.ActivityRecord{
		Sequence:     data.Sequence,
		ProductID:    data.ProductID,
		EventType:    domain.EventType(data.EventType),
		Location:     data.Location,
		Handler:      data.Handler,
		Details:      data.Details,
		Timestamp:    data.Timestamp.UTC(),
		Hash:         data.Hash,
		PreviousHash: data.PreviousHash,
	}, nil
}
