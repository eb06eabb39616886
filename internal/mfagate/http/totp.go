package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// TOTPHandler handles the authenticator app factor and its enrollment.
type TOTPHandler struct {
	TOTPService *service.TOTPService
	AppURL      string
}

// HandleEnroll handles POST /v1/auth/mfa/totp/enroll
//
//	@Summary		Enroll an authenticator by email
//	@Description	Reports alreadyConfigured when the account has an authenticator, otherwise asks the
//	@Description	identity provider to email the user a link to set one up.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AttemptRequest			true	"Login attempt"
//	@Success		200		{object}	domain.TOTPEnrollment	"alreadyConfigured or emailSent"
//	@Failure		400		{object}	ErrorResponse			"Unknown attempt"
//	@Failure		401		{object}	ErrorResponse			"Provider failure"
//	@Router			/v1/auth/mfa/totp/enroll [post]
func (h *TOTPHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AttemptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slogx.FromContext(ctx).Debug("invalid totp enroll request", "err", err)
		ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.TOTPService.Enroll(ctx, req.LoginAttemptID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}

// HandleStartSession handles POST /v1/auth/mfa/totp/start-session
//
//	@Summary		Start a browser enrollment session
//	@Description	Returns the identity provider authorization URL. Signing in there lets the user set up an
//	@Description	authenticator; the provider then redirects to the callback endpoint.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AttemptRequest	true	"Login attempt"
//	@Success		200		{object}	AuthURLResponse	"Authorization URL"
//	@Failure		400		{object}	ErrorResponse	"Unknown attempt"
//	@Router			/v1/auth/mfa/totp/start-session [post]
func (h *TOTPHandler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AttemptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slogx.FromContext(ctx).Debug("invalid totp session request", "err", err)
		ErrInvalidRequest.WriteError(w)
		return
	}

	authURL, err := h.TOTPService.StartSession(ctx, req.LoginAttemptID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, AuthURLResponse{AuthURL: authURL})
}

// HandleCallback handles GET /v1/auth/mfa/totp/callback
//
//	@Summary		Browser enrollment callback
//	@Description	Redirect target of the identity provider. Always redirects to the application,
//	@Description	which then completes the login with POST /v1/auth/mfa/totp/verify.
//	@Tags			MFA
//	@Param			code	query	string	false	"Authorization code"
//	@Param			state	query	string	false	"State issued by start-session"
//	@Success		302		"Redirect to the application"
//	@Router			/v1/auth/mfa/totp/callback [get]
func (h *TOTPHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Failures are logged and audited by the service; the browser is sent
	// back either way and the app re-reads the profile status.
	q := r.URL.Query()
	if err := h.TOTPService.Callback(ctx, q.Get("code"), q.Get("state")); err != nil {
		slogx.FromContext(ctx).Debug("totp callback unverified", "unknown_state", errors.Is(err, service.ErrUnknownState))
	}

	httpx.NoCache(w)
	http.Redirect(w, r, h.AppURL, http.StatusFound)
}

// HandleVerify handles POST /v1/auth/mfa/totp/verify
//
//	@Summary		Verify an authenticator code
//	@Description	Checks the password retained by the attempt together with the authenticator code
//	@Description	against the identity provider and completes the login with a final token.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		VerifyCodeRequest	true	"Login attempt and code"
//	@Success		200		{object}	domain.FinalToken	"Final token"
//	@Failure		400		{object}	ErrorResponse		"Unknown attempt, missing password, or invalid code"
//	@Router			/v1/auth/mfa/totp/verify [post]
func (h *TOTPHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		slogx.FromContext(ctx).Debug("invalid totp verify request", "err", err)
		ErrInvalidRequest.WriteError(w)
		return
	}

	tok, err := h.TOTPService.Verify(ctx, req.LoginAttemptID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tok)
}
