package domain

import (
	"fmt"
	"iter"
)

// FailureKind classifies an integrity finding.
type FailureKind string

const (
	FailureFingerprintMismatch FailureKind = "fingerprint_mismatch"
	FailureRecordHashMismatch  FailureKind = "record_hash_mismatch"
	FailureChainLinkBroken     FailureKind = "chain_link_broken"
	FailureSequenceGap         FailureKind = "sequence_gap"
	FailureSequenceDuplicate   FailureKind = "sequence_duplicate"
	FailureForeignRecord       FailureKind = "foreign_record"
	FailureHeadMismatch        FailureKind = "head_mismatch"
	FailureReadFailure         FailureKind = "read_failure"
)

// ProductLevel is the Failure.Sequence of findings that concern the product
// rather than a single record.
const ProductLevel int64 = -1

// Failure is one anomaly found by Verify.
type Failure struct {
	Kind     FailureKind `json:"kind"`
	Sequence int64       `json:"sequence"`
	Expected string      `json:"expected,omitempty"`
	Actual   string      `json:"actual,omitempty"`
	Message  string      `json:"message"`
}

// VerificationResult aggregates every failure found in one pass.
type VerificationResult struct {
	ProductID   string    `json:"product_id"`
	Valid       bool      `json:"valid"`
	Scheme      string    `json:"scheme"`
	RecordCount int       `json:"record_count"`
	Head        ChainHead `json:"head"`
	Failures    []Failure `json:"failures"`
}

// NoteStoredHead flags records stored past the product head. Bounded chain
// reads never reach them, so only the store's own head reveals them.
func (r *VerificationResult) NoteStoredHead(product, stored ChainHead) {
	if stored.Sequence <= product.Sequence {
		return
	}
	r.Valid = false
	r.Failures = append(r.Failures, Failure{
		Kind:     FailureHeadMismatch,
		Sequence: product.Sequence + 1,
		Expected: fmt.Sprintf("%d:%s", product.Sequence, product.Hash),
		Actual:   fmt.Sprintf("%d:%s", stored.Sequence, stored.Hash),
		Message:  fmt.Sprintf("%d records stored past the product head", stored.Sequence-product.Sequence),
	})
}

// FailuresOf returns the failures of the given kind in report order.
func (r VerificationResult) FailuresOf(kind FailureKind) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Verify recomputes p's fingerprint and replays records, which must be
// p's chain in ascending sequence order. It never stops at the first
// finding. A read error ends the replay and is reported as FailureReadFailure.
func Verify(p *Product, records iter.Seq2[*ActivityRecord, error]) VerificationResult {
	v := verifier{product: p, expectedSeq: 0}

	if got := Fingerprint(p.RegistrationData()); got != p.Fingerprint() {
		v.fail(Failure{
			Kind:     FailureFingerprintMismatch,
			Sequence: ProductLevel,
			Expected: got,
			Actual:   p.Fingerprint(),
			Message:  "stored fingerprint does not match registration data",
		})
	}

	for rec, err := range records {
		if err != nil {
			v.fail(Failure{
				Kind:     FailureReadFailure,
				Sequence: v.expectedSeq,
				Message:  fmt.Sprintf("reading chain: %v", err),
			})
			break
		}
		v.visit(rec)
	}

	v.checkHead()

	return VerificationResult{
		ProductID:   p.ID(),
		Valid:       len(v.failures) == 0,
		Scheme:      HashScheme,
		RecordCount: v.count,
		Head:        v.head(),
		Failures:    v.failures,
	}
}

type verifier struct {
	product      *Product
	failures     []Failure
	count        int
	expectedSeq  int64
	prev         *ActivityRecord
	prevComputed string
}

func (v *verifier) fail(f Failure) {
	v.failures = append(v.failures, f)
}

func (v *verifier) visit(rec *ActivityRecord) {
	v.count++
	computed := rec.ComputeHash()

	if rec.ProductID != v.product.ID() {
		v.fail(Failure{
			Kind:     FailureForeignRecord,
			Sequence: rec.Sequence,
			Expected: v.product.ID(),
			Actual:   rec.ProductID,
			Message:  "record belongs to another product",
		})
	}

	if computed != rec.Hash {
		v.fail(Failure{
			Kind:     FailureRecordHashMismatch,
			Sequence: rec.Sequence,
			Expected: computed,
			Actual:   rec.Hash,
			Message:  "stored hash does not match record fields",
		})
	}

	switch {
	case rec.Sequence < v.expectedSeq:
		v.fail(Failure{
			Kind:     FailureSequenceDuplicate,
			Sequence: rec.Sequence,
			Expected: fmt.Sprint(v.expectedSeq),
			Actual:   fmt.Sprint(rec.Sequence),
			Message:  "sequence number already used",
		})
	case rec.Sequence > v.expectedSeq:
		v.fail(Failure{
			Kind:     FailureSequenceGap,
			Sequence: rec.Sequence,
			Expected: fmt.Sprint(v.expectedSeq),
			Actual:   fmt.Sprint(rec.Sequence),
			Message:  fmt.Sprintf("sequences %d..%d are missing", v.expectedSeq, rec.Sequence-1),
		})
	}

	v.checkLink(rec)

	if rec.Sequence >= v.expectedSeq {
		v.expectedSeq = rec.Sequence + 1
	}
	v.prev = rec
	v.prevComputed = computed
}

// checkLink compares rec.PreviousHash against both the stored and the
// recomputed hash of its predecessor, so an edited predecessor breaks the
// link even when its stored hash was left alone.
func (v *verifier) checkLink(rec *ActivityRecord) {
	if v.prev == nil {
		if rec.Sequence == 0 && rec.PreviousHash != GenesisPreviousHash {
			v.fail(Failure{
				Kind:     FailureChainLinkBroken,
				Sequence: rec.Sequence,
				Expected: GenesisPreviousHash,
				Actual:   rec.PreviousHash,
				Message:  "genesis record must carry the empty previous hash",
			})
		}
		return
	}

	if rec.PreviousHash != v.prev.Hash || rec.PreviousHash != v.prevComputed {
		v.fail(Failure{
			Kind:     FailureChainLinkBroken,
			Sequence: rec.Sequence,
			Expected: v.prevComputed,
			Actual:   rec.PreviousHash,
			Message:  fmt.Sprintf("previous hash does not match record %d", v.prev.Sequence),
		})
	}
}

func (v *verifier) checkHead() {
	want := v.product.Head()

	if v.prev == nil {
		v.fail(Failure{
			Kind:     FailureSequenceGap,
			Sequence: 0,
			Expected: "0",
			Message:  "chain has no records",
		})
		return
	}

	if v.prev.Sequence != want.Sequence || want.Hash != v.prev.Hash || want.Hash != v.prevComputed {
		v.fail(Failure{
			Kind:     FailureHeadMismatch,
			Sequence: ProductLevel,
			Expected: fmt.Sprintf("%d:%s", want.Sequence, want.Hash),
			Actual:   fmt.Sprintf("%d:%s", v.prev.Sequence, v.prev.Hash),
			Message:  "last record does not match the product head",
		})
	}
}

func (v *verifier) head() ChainHead {
	if v.prev == nil {
		return ChainHead{Sequence: -1}
	}
	return v.prev.Head()
}
