package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/verify/internal/verify/service"
	"github.com/aussiebroadwan/verify/pkg/httpx"
	"github.com/aussiebroadwan/verify/pkg/slogx"
)

// MFAHandler serves MFA continuation and TOTP enrollment.
type MFAHandler struct {
	MFAService *service.MFAService
}

type mfaSignInRequest struct {
	AttemptCode string `json:"attempt_code"`
	TOTP        string `json:"totp"`
}

// HandleSignIn serves POST /v1/auth/mfa/sign-in. It finishes a sign-in that
// was parked behind an attempt code.
func (h *MFAHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)

	var req mfaSignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AttemptCode == "" || req.TOTP == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "attempt_code and totp are required")
		return
	}

	resp, err := h.MFAService.SignInWithMFA(r.Context(), tenancy, req.AttemptCode, req.TOTP)
	if err != nil {
		writeSignInError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleEnroll serves POST /v1/auth/mfa/enroll (authenticated).
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)
	userID := httpx.UserIDFromContext(r.Context())

	resp, err := h.MFAService.EnrollTOTP(r.Context(), tenancy, userID)
	if err != nil {
		if errors.Is(err, service.ErrMFAAlreadyEnrolled) {
			httpx.WriteError(w, http.StatusConflict, "mfa_already_enrolled", "an authenticator is already enrolled")
			return
		}
		slogx.FromContext(r.Context()).Error("mfa enroll failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "something went wrong")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type mfaConfirmRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

// HandleConfirm serves POST /v1/auth/mfa/confirm (authenticated). It
// activates a secret returned by enroll.
func (h *MFAHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)
	userID := httpx.UserIDFromContext(r.Context())

	var req mfaConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Secret == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "secret and code are required")
		return
	}

	err := h.MFAService.ConfirmTOTPEnrollment(r.Context(), tenancy, userID, req.Secret, req.Code)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrInvalidTOTPCode):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_totp_code", "the authenticator code is incorrect")
	case errors.Is(err, service.ErrMFAAlreadyEnrolled):
		httpx.WriteError(w, http.StatusConflict, "mfa_already_enrolled", "an authenticator is already enrolled")
	default:
		slogx.FromContext(r.Context()).Error("mfa confirm failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "something went wrong")
	}
}

// HandleDisable serves DELETE /v1/auth/mfa (authenticated).
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)
	userID := httpx.UserIDFromContext(r.Context())

	err := h.MFAService.DisableTOTP(r.Context(), tenancy, userID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrMFANotEnrolled):
		httpx.WriteError(w, http.StatusNotFound, "mfa_not_enrolled", "no authenticator is enrolled")
	default:
		slogx.FromContext(r.Context()).Error("mfa disable failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "something went wrong")
	}
}
