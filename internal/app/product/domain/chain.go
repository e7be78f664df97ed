package domain

import (
	"iter"
	"time"
)

// Link builds the record that follows head in productID's chain. A nil head
// produces the genesis record. The head's hash is recomputed before linking
// so a corrupted head is never extended.
func Link(head *ActivityRecord, productID string, ev ActivityEvent, at time.Time) (*ActivityRecord, error) {
	rec := &ActivityRecord{
		Sequence:     0,
		ProductID:    productID,
		EventType:    ev.Type,
		Location:     ev.Location,
		Handler:      ev.Handler,
		Details:      ev.Details,
		Timestamp:    NormalizeTimestamp(at),
		PreviousHash: GenesisPreviousHash,
	}

	if head != nil {
		if head.ProductID != productID {
			return nil, &ChainCorruptError{
				ProductID: productID,
				Sequence:  head.Sequence,
				Reason:    "head record belongs to product " + head.ProductID,
			}
		}
		if !head.HashValid() {
			return nil, &ChainCorruptError{
				ProductID: productID,
				Sequence:  head.Sequence,
				Reason:    "stored head hash does not match its fields",
			}
		}
		rec.Sequence = head.Sequence + 1
		rec.PreviousHash = head.Hash
	}

	rec.Hash = rec.ComputeHash()
	return rec, nil
}

// RecordSeq adapts an in-memory chain to the sequence form Verify consumes.
func RecordSeq(records []*ActivityRecord) iter.Seq2[*ActivityRecord, error] {
	return func(yield func(*ActivityRecord, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
	}
}
