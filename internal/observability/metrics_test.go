package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

func TestRecordVerification(t *testing.T) {
	beforeInvalid := testutil.ToFloat64(verifications.WithLabelValues("invalid"))
	beforeMismatch := testutil.ToFloat64(verificationFailures.WithLabelValues(string(domain.FailureRecordHashMismatch)))

	RecordVerification(domain.VerificationResult{
		Valid: false,
		Failures: []domain.Failure{
			{Kind: domain.FailureRecordHashMismatch, Sequence: 1},
			{Kind: domain.FailureChainLinkBroken, Sequence: 2},
		},
	}, 3*time.Millisecond)

	assert.Equal(t, beforeInvalid+1, testutil.ToFloat64(verifications.WithLabelValues("invalid")))
	assert.Equal(t, beforeMismatch+1, testutil.ToFloat64(verificationFailures.WithLabelValues(string(domain.FailureRecordHashMismatch))))
}

func TestRecordAppended(t *testing.T) {
	before := testutil.ToFloat64(recordsAppended.WithLabelValues("custom"))

	RecordAppended(&domain.ActivityRecord{Sequence: 3, EventType: "quality_check", Timestamp: time.Unix(1700000000, 0)})

	assert.Equal(t, before+1, testutil.ToFloat64(recordsAppended.WithLabelValues("custom")))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(lastAppendGauge))
}

func TestRecordTransitions(t *testing.T) {
	committed := transitions.WithLabelValues("manufactured", "in_transit")
	rejected := rejectedTransitions.WithLabelValues("delivered", "stored")
	beforeCommitted, beforeRejected := testutil.ToFloat64(committed), testutil.ToFloat64(rejected)

	RecordTransition(domain.StatusManufactured, domain.StatusInTransit)
	RecordRejectedTransition(domain.StatusDelivered, domain.StatusStored)

	assert.Equal(t, beforeCommitted+1, testutil.ToFloat64(committed))
	assert.Equal(t, beforeRejected+1, testutil.ToFloat64(rejected))
}
