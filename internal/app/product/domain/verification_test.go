package domain

import (
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain registers a product and walks it through to.
func buildChain(t *testing.T, to ...ProductStatus) (*Product, []*ActivityRecord) {
	t.Helper()

	now := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	p, genesis, err := NewProduct(validRegistration(), "", now)
	require.NoError(t, err)

	chain := []*ActivityRecord{genesis}
	for _, status := range to {
		now = now.Add(time.Hour)
		rec, err := p.ApplyTransition(status, ActivityDetails{Location: string(status) + "-site"}, chain[len(chain)-1], now)
		require.NoError(t, err)
		chain = append(chain, rec)
	}
	return p, chain
}

func copyChain(chain []*ActivityRecord) []*ActivityRecord {
	out := make([]*ActivityRecord, len(chain))
	for i, r := range chain {
		out[i] = r.Copy()
	}
	return out
}

func TestVerify_FreshRegistration(t *testing.T) {
	p, chain := buildChain(t)

	result := Verify(p, RecordSeq(chain))

	assert.True(t, result.Valid)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 1, result.RecordCount)
	assert.Equal(t, chain[0].Head(), result.Head)
	assert.Equal(t, HashScheme, result.Scheme)
}

func TestVerify_Idempotent(t *testing.T) {
	p, chain := buildChain(t, StatusInTransit, StatusDelivered)

	assert.Equal(t, Verify(p, RecordSeq(chain)), Verify(p, RecordSeq(chain)))
}

func TestVerify_SingleFieldTampering(t *testing.T) {
	p, chain := buildChain(t, StatusInTransit, StatusStored, StatusDelivered)

	tests := []struct {
		name   string
		mutate func(*ActivityRecord)
	}{
		{"location", func(r *ActivityRecord) { r.Location = "Rotterdam" }},
		{"handler", func(r *ActivityRecord) { r.Handler = "mallory" }},
		{"details", func(r *ActivityRecord) { r.Details = "rewritten" }},
		{"timestamp", func(r *ActivityRecord) { r.Timestamp = r.Timestamp.Add(-time.Hour) }},
		{"event_type", func(r *ActivityRecord) { r.EventType = EventStored }},
		{"hash", func(r *ActivityRecord) { r.Hash = "deadbeef" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := copyChain(chain)
			tt.mutate(tampered[1])

			result := Verify(p, RecordSeq(tampered))
			assert.False(t, result.Valid)

			mismatches := result.FailuresOf(FailureRecordHashMismatch)
			require.Len(t, mismatches, 1)
			assert.Equal(t, int64(1), mismatches[0].Sequence)

			broken := result.FailuresOf(FailureChainLinkBroken)
			require.Len(t, broken, 1)
			assert.Equal(t, int64(2), broken[0].Sequence)

			assert.Len(t, result.Failures, 2, "records 0, 2 and 3 must stay clean: %+v", result.Failures)
		})
	}
}

func TestVerify_TamperedHeadRecord(t *testing.T) {
	p, chain := buildChain(t, StatusInTransit)

	tampered := copyChain(chain)
	tampered[1].Location = "Elsewhere"

	result := Verify(p, RecordSeq(tampered))

	assert.Len(t, result.FailuresOf(FailureRecordHashMismatch), 1)
	assert.Len(t, result.FailuresOf(FailureHeadMismatch), 1)
}

func TestVerify_FingerprintMismatch(t *testing.T) {
	p, chain := buildChain(t)

	state := p.State()
	state.Origin = "Brazil"
	forged := ReconstructProduct(state)

	result := Verify(forged, RecordSeq(chain))

	require.Len(t, result.Failures, 1)
	assert.Equal(t, FailureFingerprintMismatch, result.Failures[0].Kind)
	assert.Equal(t, ProductLevel, result.Failures[0].Sequence)
}

func TestVerify_SequenceAnomalies(t *testing.T) {
	p, chain := buildChain(t, StatusInTransit, StatusStored, StatusDelivered)

	t.Run("gap", func(t *testing.T) {
		gapped := []*ActivityRecord{chain[0], chain[1], chain[3]}

		result := Verify(p, RecordSeq(gapped))

		gaps := result.FailuresOf(FailureSequenceGap)
		require.Len(t, gaps, 1)
		assert.Equal(t, int64(3), gaps[0].Sequence)
		assert.Equal(t, "2", gaps[0].Expected)
		assert.Len(t, result.FailuresOf(FailureChainLinkBroken), 1)
	})

	t.Run("duplicate", func(t *testing.T) {
		duplicated := []*ActivityRecord{chain[0], chain[1], chain[1], chain[2], chain[3]}

		result := Verify(p, RecordSeq(duplicated))

		dups := result.FailuresOf(FailureSequenceDuplicate)
		require.Len(t, dups, 1)
		assert.Equal(t, int64(1), dups[0].Sequence)
	})

	t.Run("truncated", func(t *testing.T) {
		result := Verify(p, RecordSeq(chain[:2]))

		assert.False(t, result.Valid)
		assert.Len(t, result.FailuresOf(FailureHeadMismatch), 1)
	})

	t.Run("empty", func(t *testing.T) {
		result := Verify(p, RecordSeq(nil))

		assert.False(t, result.Valid)
		assert.Equal(t, ChainHead{Sequence: -1}, result.Head)
		assert.Len(t, result.FailuresOf(FailureSequenceGap), 1)
	})
}

func TestVerify_GenesisSentinel(t *testing.T) {
	p, chain := buildChain(t)

	tampered := copyChain(chain)
	tampered[0].PreviousHash = "ff"
	tampered[0].Hash = tampered[0].ComputeHash()

	result := Verify(p, RecordSeq(tampered))

	assert.Len(t, result.FailuresOf(FailureChainLinkBroken), 1)
	assert.Len(t, result.FailuresOf(FailureHeadMismatch), 1)
}

func TestVerify_ForeignRecord(t *testing.T) {
	p, chain := buildChain(t)

	foreign := copyChain(chain)
	foreign[0].ProductID = "someone-else"
	foreign[0].Hash = foreign[0].ComputeHash()

	result := Verify(p, RecordSeq(foreign))

	assert.Len(t, result.FailuresOf(FailureForeignRecord), 1)
}

func TestVerify_ReadFailure(t *testing.T) {
	p, chain := buildChain(t, StatusInTransit)

	var records iter.Seq2[*ActivityRecord, error] = func(yield func(*ActivityRecord, error) bool) {
		if !yield(chain[0], nil) {
			return
		}
		yield(nil, errors.New("connection reset"))
	}

	result := Verify(p, records)

	reads := result.FailuresOf(FailureReadFailure)
	require.Len(t, reads, 1)
	assert.Equal(t, int64(1), reads[0].Sequence)
	assert.Contains(t, reads[0].Message, "connection reset")
	assert.Equal(t, 1, result.RecordCount)
}
