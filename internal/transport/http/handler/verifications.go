package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/go-otp-relay/internal/application/verification"
	"github.com/go-otp-relay/internal/pkg/validate"
)

// VerificationHandler handles verification registration and lookup.
type VerificationHandler struct {
	svc verification.Service
}

func NewVerificationHandler(svc verification.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

// Register accepts a pending verification and acknowledges it with 202; the
// outcome arrives later on the registered callback URL.
func (h *VerificationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req verification.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RegistrationEnvelope{
		Accepted:  true,
		RequestID: rec.RequestID,
		Status:    string(rec.Status),
		Mode:      "REST_CALLBACK",
	})
}

// Get returns the verification registered under {requestId}, pending or
// completed, without the expected OTP.
func (h *VerificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
