package http

import (
	"net/http"

	"github.com/aussiebroadwan/mfagate/pkg/httpx"
)

// HandlePing handles GET /v1/secure/ping
//
//	@Summary		Authenticated ping
//	@Description	Resource endpoint accepting only a final token.
//	@Tags			Secure
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	PingResponse	"Token accepted"
//	@Failure		401	{object}	ErrorResponse	"Missing or invalid token"
//	@Router			/v1/secure/ping [get]
func HandlePing(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		ErrLoginFailed.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, PingResponse{
		Message:  "pong",
		Subject:  claims.Subject,
		Realm:    claims.Realm,
		Username: claims.Username,
	})
}
