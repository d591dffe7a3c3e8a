package http

import (
	"github.com/go-otp-relay/internal/application/verification"
	"github.com/go-otp-relay/internal/transport/http/handler"
)

// Deps holds the dependencies for the router.
type Deps struct {
	VerificationSvc verification.Service
	// Readiness may be nil when the WhatsApp client is disabled or failed
	// to start; the ready endpoint then reports not_ready.
	Readiness handler.ReadinessReporter
}
