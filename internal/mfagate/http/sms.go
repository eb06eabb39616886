package http

import (
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// SMSHandler handles the SMS factor.
type SMSHandler struct {
	SMSService *service.SMSOTPService
}

// HandleSend handles POST /v1/auth/mfa/sms/send
//
//	@Summary		Send an SMS code
//	@Description	Asks the SMS verification provider to text a code to the account phone number.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AttemptRequest	true	"Login attempt"
//	@Success		200		{object}	SentResponse	"Code sent"
//	@Failure		400		{object}	ErrorResponse	"Unknown attempt or no phone on account"
//	@Failure		401		{object}	ErrorResponse	"Provider failure"
//	@Router			/v1/auth/mfa/sms/send [post]
func (h *SMSHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AttemptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slogx.FromContext(ctx).Debug("invalid sms send request", "err", err)
		ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.SMSService.Send(ctx, req.LoginAttemptID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, SentResponse{Sent: true})
}

// HandleVerify handles POST /v1/auth/mfa/sms/verify
//
//	@Summary		Verify an SMS code
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		VerifyCodeRequest	true	"Login attempt and code"
//	@Success		200		{object}	domain.FinalToken	"Final token"
//	@Failure		400		{object}	ErrorResponse		"Unknown attempt or invalid code"
//	@Router			/v1/auth/mfa/sms/verify [post]
func (h *SMSHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slogx.FromContext(ctx).Debug("invalid sms verify request", "err", err)
		ErrInvalidRequest.WriteError(w)
		return
	}

	tok, err := h.SMSService.Verify(ctx, req.LoginAttemptID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tok)
}
