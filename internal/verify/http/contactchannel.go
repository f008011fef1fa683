package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/verify/internal/verify/service"
	"github.com/aussiebroadwan/verify/pkg/httpx"
)

// ContactChannelHandler serves verification of addresses attached to an
// account after sign-up.
type ContactChannelHandler struct {
	ChannelService *service.ContactChannelService
}

type sendChannelCodeRequest struct {
	ChannelID   string  `json:"channel_id"`
	CallbackURL *string `json:"callback_url,omitempty"`
}

// HandleSendCode serves POST /v1/contact-channels/send-verification-code
// (authenticated).
func (h *ContactChannelHandler) HandleSendCode(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)
	userID := httpx.UserIDFromContext(r.Context())

	var req sendChannelCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChannelID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "channel_id is required")
		return
	}

	ticket, err := h.ChannelService.SendVerificationCode(r.Context(), tenancy, userID, req.ChannelID, req.CallbackURL)
	if err != nil {
		if errors.Is(err, service.ErrChannelNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "channel_not_found", "no such contact channel on this account")
			return
		}
		writeSignInError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, sendCodeResponse{
		Nonce:     ticket.Nonce,
		ExpiresAt: ticket.ExpiresAt,
	})
}

type verifyChannelRequest struct {
	Code  string `json:"code,omitempty"`
	Nonce string `json:"nonce,omitempty"`
	OTP   string `json:"otp,omitempty"`
}

type verifyChannelResponse struct {
	ChannelID string `json:"channel_id"`
}

// HandleVerify serves POST /v1/contact-channels/verify.
func (h *ContactChannelHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	tenancy := mustTenancy(r)

	var req verifyChannelRequest
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

	channelID, err := h.ChannelService.VerifyChannel(r.Context(), tenancy, code)
	if err != nil {
		if errors.Is(err, service.ErrChannelNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "channel_not_found", "no such contact channel on this account")
			return
		}
		writeSignInError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, verifyChannelResponse{ChannelID: channelID})
}
