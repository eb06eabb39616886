package http

import (
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// ProfileHandler lets a user finish account setup from inside a login attempt.
type ProfileHandler struct {
	ProfileService *service.ProfileService
}

// HandleSetEmail handles POST /v1/auth/profile/email
//
//	@Summary		Set account email
//	@Description	Replaces the email of the account behind the attempt and marks it unverified.
//	@Tags			Profile
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SetEmailRequest	true	"Login attempt and email"
//	@Success		200		{object}	UpdatedResponse	"Email updated"
//	@Failure		400		{object}	ErrorResponse	"Unknown attempt or bad email"
//	@Router			/v1/auth/profile/email [post]
func (h *ProfileHandler) HandleSetEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SetEmailRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slogx.FromContext(ctx).Debug("invalid set email request", "err", err)
		ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.ProfileService.SetEmail(ctx, req.LoginAttemptID, req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, UpdatedResponse{Updated: true})
}

// HandleSendVerifyEmail handles POST /v1/auth/profile/verify-email
//
//	@Summary		Send verification email
//	@Tags			Profile
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AttemptRequest		true	"Login attempt"
//	@Success		200		{object}	EmailSentResponse	"Verification email requested"
//	@Failure		400		{object}	ErrorResponse		"Unknown attempt"
//	@Router			/v1/auth/profile/verify-email [post]
func (h *ProfileHandler) HandleSendVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AttemptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slogx.FromContext(ctx).Debug("invalid verify email request", "err", err)
		ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.ProfileService.SendVerifyEmail(ctx, req.LoginAttemptID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, EmailSentResponse{EmailSent: true})
}

// HandleStatus handles GET /v1/auth/profile/status
//
//	@Summary		Profile status
//	@Description	Fresh capability snapshot of the account behind the attempt.
//	@Tags			Profile
//	@Produce		json
//	@Param			loginAttemptId	query		string					true	"Login attempt"
//	@Success		200				{object}	domain.ProfileStatus	"Capability snapshot"
//	@Failure		400				{object}	ErrorResponse			"Unknown attempt"
//	@Router			/v1/auth/profile/status [get]
func (h *ProfileHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.ProfileService.Status(ctx, r.URL.Query().Get("loginAttemptId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, status)
}
