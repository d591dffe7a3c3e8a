package verification

import (
	"time"

	"github.com/go-otp-relay/internal/domain"
)

// matchOutcome names the record a reported OTP resolves and how.
type matchOutcome struct {
	Target domain.VerificationRecord
	Status domain.VerificationStatus
	Reason *string
}

// matchPending selects the completion target for an observed OTP among the
// pending records of one phone (already sorted oldest first by the store).
//
// Records past their expiry are filtered out first; they are left for the
// sweep to close as EXPIRED rather than FAILED. With no active record the
// report is a non-event. An exact match completes that record as SUCCESS;
// otherwise the oldest active record is completed as FAILED/OTP_MISMATCH,
// so a wrong code never silently stalls the oldest verification.
func matchPending(pending []domain.VerificationRecord, observedOTP string, now time.Time) (matchOutcome, bool) {
	active := pending[:0:0]
	for _, rec := range pending {
		if !rec.ExpiresAt.Before(now) {
			active = append(active, rec)
		}
	}
	if len(active) == 0 {
		return matchOutcome{}, false
	}

	for _, rec := range active {
		if rec.ExpectedOTP == observedOTP {
			return matchOutcome{Target: rec, Status: domain.StatusSuccess}, true
		}
	}

	reason := domain.ReasonOTPMismatch
	return matchOutcome{Target: active[0], Status: domain.StatusFailed, Reason: &reason}, true
}
