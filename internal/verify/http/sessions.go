package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/verify/internal/verify/service"
	"github.com/aussiebroadwan/verify/pkg/httpx"
	"github.com/aussiebroadwan/verify/pkg/slogx"
)

// SessionsHandler serves refresh token exchange and revocation.
type SessionsHandler struct {
	TokenService *service.TokenService
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh serves POST /v1/auth/sessions/refresh. It mints a new access
// token against an existing refresh token.
func (h *SessionsHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)

	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	pair, err := h.TokenService.RefreshAccessToken(r.Context(), tenancy, req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh_token", "the refresh token is invalid, expired, or revoked")
			return
		}
		slogx.FromContext(r.Context()).Error("refresh failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "something went wrong")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleSignOut serves DELETE /v1/auth/sessions/current. Revoking an unknown
// token succeeds; sign-out is idempotent.
func (h *SessionsHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	if err := h.TokenService.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
		slogx.FromContext(r.Context()).Error("sign-out failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "something went wrong")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSignOutAll serves DELETE /v1/auth/sessions (authenticated). Every
// refresh token the user holds is revoked.
func (h *SessionsHandler) HandleSignOutAll(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)
	userID := httpx.UserIDFromContext(r.Context())

	if err := h.TokenService.RevokeAllRefreshTokens(r.Context(), tenancy, userID); err != nil {
		slogx.FromContext(r.Context()).Error("sign-out-all failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "something went wrong")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
