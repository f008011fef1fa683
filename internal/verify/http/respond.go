package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/verify/internal/verify/codes"
	"github.com/aussiebroadwan/verify/internal/verify/service"
	"github.com/aussiebroadwan/verify/pkg/httpx"
	"github.com/aussiebroadwan/verify/pkg/slogx"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON request body into dst, writing the error response
// itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return false
	}
	return true
}

// mfaRequiredResponse tells the client to come back with a second factor.
type mfaRequiredResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	AttemptCode      string `json:"attempt_code"`
}

// writeSignInError maps sign-in failures onto HTTP responses. The MFA
// continuation signal becomes a 403 carrying the attempt code; every invalid
// code case is a single uniform 400.
func writeSignInError(w http.ResponseWriter, r *http.Request, err error) {
	if mfaErr, ok := service.IsMFARequired(err); ok {
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusForbidden, mfaRequiredResponse{
			Error:            "mfa_required",
			ErrorDescription: "multi-factor authentication required to finish signing in",
			AttemptCode:      mfaErr.AttemptCode,
		})
		return
	}

	switch {
	case errors.Is(err, codes.ErrInvalidCode):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_code", "the code is invalid, expired, or already used")
	case errors.Is(err, service.ErrSignInDisabled):
		httpx.WriteError(w, http.StatusForbidden, "otp_sign_in_disabled", "OTP sign-in is disabled for this project")
	case errors.Is(err, service.ErrSignUpDisabled):
		httpx.WriteError(w, http.StatusForbidden, "sign_up_disabled", "sign-ups are disabled for this project")
	case errors.Is(err, service.ErrUserNotFound):
		httpx.WriteError(w, http.StatusNotFound, "user_not_found", "no account exists for this address")
	case errors.Is(err, service.ErrInvalidCallbackURL):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_callback_url", "callback URL is not on a trusted domain")
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
	case errors.Is(err, service.ErrInvalidTOTPCode):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_totp_code", "the authenticator code is incorrect")
	default:
		slogx.FromContext(r.Context()).Error("sign-in failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "something went wrong")
	}
}
