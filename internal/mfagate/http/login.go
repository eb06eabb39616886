package http

import (
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// LoginHandler handles the password step of a login.
type LoginHandler struct {
	LoginService *service.LoginService
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Start a login
//	@Description	Checks the password against the identity provider and opens a login attempt.
//	@Description	The response lists the second factors the account can complete the attempt with.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest			true	"Realm and credentials"
//	@Success		200		{object}	domain.LoginChallenge	"Open login attempt"
//	@Failure		400		{object}	ErrorResponse			"Malformed request or unknown realm"
//	@Failure		401		{object}	ErrorResponse			"Invalid password or provider failure"
//	@Failure		404		{object}	ErrorResponse			"Unknown user"
//	@Failure		429		{object}	ErrorResponse			"Rate limited"
//	@Router			/v1/auth/login [post]
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Debug("invalid login request", "err", err)
		ErrInvalidRequest.WriteError(w)
		return
	}

	challenge, err := h.LoginService.StartLogin(ctx, req.Realm, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, challenge)
}
