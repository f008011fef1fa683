package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/verify/internal/verify/service"
	"github.com/aussiebroadwan/verify/pkg/httpx"
)

// OTPHandler serves the one-time-password sign-in flow.
type OTPHandler struct {
	SignInService *service.SignInService
}

type sendCodeRequest struct {
	Email       string  `json:"email"`
	Variant     string  `json:"variant,omitempty"`
	CallbackURL *string `json:"callback_url,omitempty"`
}

type sendCodeResponse struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleSendCode serves POST /v1/auth/otp/send-code.
func (h *OTPHandler) HandleSendCode(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)

	var req sendCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	ticket, err := h.SignInService.SendSignInCode(r.Context(), tenancy, req.Email, req.Variant, req.CallbackURL)
	if err != nil {
		writeSignInError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, sendCodeResponse{
		Nonce:     ticket.Nonce,
		ExpiresAt: ticket.ExpiresAt,
	})
}

type otpSignInRequest struct {
	// Either the full code (from a magic link) or the nonce+otp split.
	Code  string `json:"code,omitempty"`
	Nonce string `json:"nonce,omitempty"`
	OTP   string `json:"otp,omitempty"`
}

// HandleSignIn serves POST /v1/auth/otp/sign-in.
func (h *OTPHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)

	var req otpSignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	code := req.Code
	if code == "" {
		if req.Nonce == "" || req.OTP == "" {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "either code or nonce+otp is required")
			return
		}
		code = req.OTP + req.Nonce
	}

	resp, err := h.SignInService.SignInWithCode(r.Context(), tenancy, code)
	if err != nil {
		writeSignInError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type checkCodeResponse struct {
	IsValid bool `json:"is_valid"`
}

// HandleCheckCode serves POST /v1/auth/otp/check-code. It never consumes the
// code, so landing pages can vet magic links before committing.
func (h *OTPHandler) HandleCheckCode(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)

	var req otpSignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	code := req.Code
	if code == "" {
		code = req.OTP + req.Nonce
	}

	err := h.SignInService.CheckSignInCode(r.Context(), tenancy, code)

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, checkCodeResponse{IsValid: err == nil})
}
