package http

import (
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// EmailHandler handles the email one-time code factor.
type EmailHandler struct {
	EmailService *service.EmailOTPService
}

// HandleSend handles POST /v1/auth/mfa/email/send
//
//	@Summary		Send an email code
//	@Description	Issues a fresh six digit code for the attempt and emails it to the account address.
//	@Description	Any previously issued code for the attempt stops working.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AttemptRequest	true	"Login attempt"
//	@Success		200		{object}	SentResponse	"Code issued"
//	@Failure		400		{object}	ErrorResponse	"Unknown attempt or no email on account"
//	@Router			/v1/auth/mfa/email/send [post]
func (h *EmailHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AttemptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slogx.FromContext(ctx).Debug("invalid email send request", "err", err)
		ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.EmailService.Send(ctx, req.LoginAttemptID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, SentResponse{Sent: true})
}

// HandleVerify handles POST /v1/auth/mfa/email/verify
//
//	@Summary		Verify an email code
//	@Description	Consumes the emailed code and completes the login attempt with a final token.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		VerifyCodeRequest	true	"Login attempt and code"
//	@Success		200		{object}	domain.FinalToken	"Final token"
//	@Failure		400		{object}	ErrorResponse		"Unknown attempt or invalid code"
//	@Failure		500		{object}	ErrorResponse		"Token could not be signed"
//	@Router			/v1/auth/mfa/email/verify [post]
func (h *EmailHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slogx.FromContext(ctx).Debug("invalid email verify request", "err", err)
		ErrInvalidRequest.WriteError(w)
		return
	}

	tok, err := h.EmailService.Verify(ctx, req.LoginAttemptID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tok)
}
