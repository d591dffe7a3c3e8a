// Package verification orchestrates the verification lifecycle: intake of
// registrations, matching of inbound OTP reports and the periodic expiry
// sweep, with signed callback dispatch on every completion.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-otp-relay/internal/domain"
	"github.com/go-otp-relay/internal/infrastructure/callback"
	"github.com/go-otp-relay/internal/pkg/otp"
	"github.com/go-otp-relay/internal/pkg/phone"
)

// RegisterRequest is the logical registration consumed from the intake
// endpoint. Required-field checks run in the handler via validate tags;
// semantic validation happens in Register.
type RegisterRequest struct {
	RequestID   string         `json:"requestId" validate:"required"`
	Origin      string         `json:"origin" validate:"required"`
	Phone       string         `json:"visitorPhoneE164" validate:"required"`
	OTP         string         `json:"otp" validate:"required"`
	ExpiresAt   string         `json:"expiresAt" validate:"required"`
	CallbackURL string         `json:"callbackUrl" validate:"required"`
	Metadata    map[string]any `json:"metadata"`
}

// Store is the verification registry the service drives.
type Store interface {
	Upsert(ctx context.Context, rec domain.VerificationRecord)
	PendingByPhone(ctx context.Context, phone string) []domain.VerificationRecord
	Complete(ctx context.Context, requestID string, status domain.VerificationStatus, reason, otpReceived *string) (domain.VerificationRecord, bool)
	SweepExpired(ctx context.Context, now time.Time) []domain.VerificationRecord
	GetByRequestID(ctx context.Context, requestID string) (domain.VerificationRecord, bool)
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.VerificationRecord, error)
	ReportOTP(ctx context.Context, rawPhone, candidate string)
	Get(ctx context.Context, requestID string) (*domain.VerificationRecord, error)
	RunSweeper(ctx context.Context, interval time.Duration)
}

// ServiceDeps wires the service's collaborators.
type ServiceDeps struct {
	Store                  Store
	Dispatcher             callback.Dispatcher
	Logger                 *slog.Logger
	OTPLength              int
	AllowInsecureCallbacks bool
	Now                    func() time.Time
}

type service struct {
	store         Store
	dispatcher    callback.Dispatcher
	logger        *slog.Logger
	otpLength     int
	allowInsecure bool
	now           func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		store:         deps.Store,
		dispatcher:    deps.Dispatcher,
		logger:        deps.Logger,
		otpLength:     deps.OTPLength,
		allowInsecure: deps.AllowInsecureCallbacks,
		now:           now,
	}
}

// Register validates the request semantically, builds a PENDING record and
// upserts it. Re-registration under the same requestId replaces the prior
// record, whatever its fate was. No state is touched on a validation error.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*domain.VerificationRecord, error) {
	normalized := phone.Normalize(req.Phone)
	if normalized == "" {
		return nil, fmt.Errorf("visitorPhoneE164 must be a valid phone number: %w", domain.ErrBadRequest)
	}
	if !otp.Valid(req.OTP, s.otpLength) {
		return nil, fmt.Errorf("otp must be alphanumeric and exactly %d chars: %w", s.otpLength, domain.ErrBadRequest)
	}
	if err := s.validateCallbackURL(req.CallbackURL); err != nil {
		return nil, err
	}
	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("expiresAt must be a valid ISO datetime: %w", domain.ErrBadRequest)
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	now := s.now().UTC()
	rec := domain.VerificationRecord{
		RequestID:   req.RequestID,
		Origin:      req.Origin,
		Phone:       normalized,
		ExpectedOTP: strings.ToUpper(req.OTP),
		ExpiresAt:   expiresAt,
		CallbackURL: req.CallbackURL,
		Metadata:    metadata,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.store.Upsert(ctx, rec)
	s.logger.Info("verification registered",
		"request_id", rec.RequestID,
		"origin", rec.Origin,
		"expires_at", rec.ExpiresAt,
	)
	return &rec, nil
}

func (s *service) validateCallbackURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("callbackUrl must be a valid URL: %w", domain.ErrBadRequest)
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if s.allowInsecure {
			return nil
		}
		return fmt.Errorf("only HTTPS callbackUrl is allowed unless ALLOW_INSECURE_CALLBACKS=true: %w", domain.ErrBadRequest)
	default:
		return fmt.Errorf("callbackUrl must use http or https: %w", domain.ErrBadRequest)
	}
}

// ReportOTP resolves an observed OTP candidate against the pending records
// for the sender's phone. Unrelated inbound messages are expected noise, so
// every non-event (no pending records, all expired, completion race lost)
// is a silent no-op. The callback is dispatched after the record is marked
// complete, outside the store's critical section, and its outcome never
// changes the record.
func (s *service) ReportOTP(ctx context.Context, rawPhone, candidate string) {
	normalized := phone.Normalize(rawPhone)
	if normalized == "" || candidate == "" {
		return
	}
	observed := strings.ToUpper(candidate)

	pending := s.store.PendingByPhone(ctx, normalized)
	if len(pending) == 0 {
		return
	}
	outcome, ok := matchPending(pending, observed, s.now())
	if !ok {
		return
	}

	completed, ok := s.store.Complete(ctx, outcome.Target.RequestID, outcome.Status, outcome.Reason, &observed)
	if !ok {
		// Lost the race against the sweep; the sweep notifies.
		return
	}
	s.logger.Info("verification completed",
		"request_id", completed.RequestID,
		"status", completed.Status,
	)
	s.deliver(ctx, completed)
}

// Get returns the record registered under requestID, pending or completed.
func (s *service) Get(ctx context.Context, requestID string) (*domain.VerificationRecord, error) {
	rec, ok := s.store.GetByRequestID(ctx, requestID)
	if !ok {
		return nil, fmt.Errorf("verification %q: %w", requestID, domain.ErrNotFound)
	}
	return &rec, nil
}

// RunSweeper closes out expired pending records on a fixed interval until
// ctx is cancelled. Each expired record gets its EXPIRED callback.
func (s *service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *service) sweepOnce(ctx context.Context) {
	expired := s.store.SweepExpired(ctx, s.now())
	for _, rec := range expired {
		s.logger.Info("verification expired", "request_id", rec.RequestID)
		s.deliver(ctx, rec)
	}
}

// deliver is best-effort notification: a failure is logged and the record
// stays terminal regardless.
func (s *service) deliver(ctx context.Context, rec domain.VerificationRecord) {
	if err := s.dispatcher.Deliver(ctx, rec); err != nil {
		s.logger.Error("callback delivery failed",
			"request_id", rec.RequestID,
			"status", rec.Status,
			"err", err,
		)
	}
}
