// Package callback delivers verification outcomes to the origin's callback
// URL as a signed HTTP POST.
package callback

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-otp-relay/internal/domain"
	"github.com/go-otp-relay/internal/pkg/id"
)

// SignatureHeader carries the lowercase-hex HMAC-SHA256 of the exact
// request body, keyed with the shared callback secret.
const SignatureHeader = "X-Whatsapp-Viewer-Signature"

// DeliveryIDHeader carries a per-attempt ULID for log correlation on the
// receiving side.
const DeliveryIDHeader = "X-Relay-Delivery-Id"

// Payload is the JSON body POSTed to the registered callback URL.
type Payload struct {
	RequestID   string                    `json:"requestId"`
	Origin      string                    `json:"origin"`
	Phone       string                    `json:"visitorPhoneE164"`
	Status      domain.VerificationStatus `json:"status"`
	Reason      *string                   `json:"reason"`
	OTPReceived *string                   `json:"otpReceived"`
	ReceivedAt  time.Time                 `json:"receivedAt"`
}

// Dispatcher notifies an origin of a completed verification.
type Dispatcher interface {
	Deliver(ctx context.Context, rec domain.VerificationRecord) error
}

type dispatcher struct {
	client *http.Client
	secret []byte
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher builds an HTTP dispatcher signing payloads with secret.
// timeout bounds the whole callback attempt; zero means no bound.
func NewDispatcher(secret string, timeout time.Duration, logger *slog.Logger) Dispatcher {
	return &dispatcher{
		client: &http.Client{Timeout: timeout},
		secret: []byte(secret),
		logger: logger,
		now:    time.Now,
	}
}

// Deliver issues a single POST to rec.CallbackURL. A non-2xx response or a
// transport failure is a delivery failure; the record stays in its terminal
// status either way and the attempt is never retried.
func (d *dispatcher) Deliver(ctx context.Context, rec domain.VerificationRecord) error {
	body, err := json.Marshal(Payload{
		RequestID:   rec.RequestID,
		Origin:      rec.Origin,
		Phone:       rec.Phone,
		Status:      rec.Status,
		Reason:      rec.Reason,
		OTPReceived: rec.OTPReceived,
		ReceivedAt:  d.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rec.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	deliveryID := id.New()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(body, d.secret))
	req.Header.Set(DeliveryIDHeader, deliveryID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback failed with status %d", resp.StatusCode)
	}
	d.logger.Info("callback delivered",
		"request_id", rec.RequestID,
		"delivery_id", deliveryID,
		"status", rec.Status,
	)
	return nil
}

// Sign computes the lowercase-hex HMAC-SHA256 of body with secret. An
// independent verifier recomputes it over the received bytes and compares.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
