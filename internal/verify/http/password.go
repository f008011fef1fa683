package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/verify/internal/verify/service"
	"github.com/aussiebroadwan/verify/pkg/httpx"
	"github.com/aussiebroadwan/verify/pkg/slogx"
)

// PasswordHandler serves password sign-in and management.
type PasswordHandler struct {
	UserService *service.UserService
}

type passwordSignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignIn serves POST /v1/auth/password/sign-in.
func (h *PasswordHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)

	var req passwordSignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	resp, err := h.UserService.SignInWithPassword(r.Context(), tenancy, req.Email, req.Password)
	if err != nil {
		writeSignInError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

// HandleSet serves POST /v1/auth/password/set (authenticated).
func (h *PasswordHandler) HandleSet(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)
	userID := httpx.UserIDFromContext(r.Context())

	var req setPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.UserService.SetPassword(r.Context(), tenancy, userID, req.Password)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrPasswordAlreadySet):
		httpx.WriteError(w, http.StatusConflict, "password_already_set", "use the update endpoint to change an existing password")
	default:
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	}
}

type updatePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// HandleUpdate serves POST /v1/auth/password/update (authenticated). A
// successful update revokes every other session.
func (h *PasswordHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)
	userID := httpx.UserIDFromContext(r.Context())

	var req updatePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.UserService.UpdatePassword(r.Context(), tenancy, userID, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "old password is incorrect")
	case errors.Is(err, service.ErrPasswordNotSet):
		httpx.WriteError(w, http.StatusConflict, "password_not_set", "no password exists yet, use the set endpoint")
	default:
		slogx.FromContext(r.Context()).Error("password update failed", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	}
}
