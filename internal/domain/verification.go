package domain

import "time"

// VerificationStatus is the lifecycle state of a verification request.
type VerificationStatus string

const (
	StatusPending VerificationStatus = "PENDING"
	StatusSuccess VerificationStatus = "SUCCESS"
	StatusFailed  VerificationStatus = "FAILED"
	StatusExpired VerificationStatus = "EXPIRED"
)

// Terminal reports whether s permits no further transitions.
func (s VerificationStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusExpired
}

// Reasons attached to non-SUCCESS terminal states.
const (
	ReasonOTPMismatch = "OTP_MISMATCH"
	ReasonOTPExpired  = "OTP_EXPIRED"
)

// VerificationRecord is a pending or completed OTP verification.
// Records are immutable values: the only mutation path is WithCompletion,
// which returns a copy, so a snapshot handed out by the store never changes
// under the caller.
type VerificationRecord struct {
	RequestID   string             `json:"requestId"`
	Origin      string             `json:"origin"`
	Phone       string             `json:"visitorPhoneE164"` // normalized +<digits>
	ExpectedOTP string             `json:"-"`                // never serialized outward
	ExpiresAt   time.Time          `json:"expiresAt"`
	CallbackURL string             `json:"callbackUrl"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Status      VerificationStatus `json:"status"`
	Reason      *string            `json:"reason"`
	OTPReceived *string            `json:"otpReceived"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// WithCompletion returns a copy of r transitioned to the given terminal
// status. The store enforces the PENDING guard before applying it.
func (r VerificationRecord) WithCompletion(status VerificationStatus, reason, otpReceived *string, at time.Time) VerificationRecord {
	updated := r
	updated.Status = status
	updated.Reason = reason
	updated.OTPReceived = otpReceived
	updated.UpdatedAt = at
	return updated
}
