package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/service"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

var (
	ErrInvalidRequest      = httpx.NewAPIError(http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
	ErrInvalidRealm        = httpx.NewAPIError(http.StatusBadRequest, "INVALID_REALM", "realm does not exist")
	ErrUserNotFound        = httpx.NewAPIError(http.StatusNotFound, "USER_NOT_FOUND", "user does not exist")
	ErrInvalidPassword     = httpx.NewAPIError(http.StatusUnauthorized, "INVALID_PASSWORD", "invalid user credentials")
	ErrLoginFailed         = httpx.NewAPIError(http.StatusUnauthorized, "LOGIN_FAILED", "login could not be completed")
	ErrInvalidAttempt      = httpx.NewAPIError(http.StatusBadRequest, "INVALID_ATTEMPT", "login attempt is unknown or expired")
	ErrNoEmailOnAccount    = httpx.NewAPIError(http.StatusBadRequest, "NO_EMAIL_ON_ACCOUNT", "account has no email address")
	ErrNoPhoneOnAccount    = httpx.NewAPIError(http.StatusBadRequest, "NO_PHONE_ON_ACCOUNT", "account has no E.164 phone number")
	ErrInvalidOrExpiredOTP = httpx.NewAPIError(http.StatusBadRequest, "INVALID_OR_EXPIRED_OTP", "code is invalid or expired")
	ErrInvalidTOTP         = httpx.NewAPIError(http.StatusBadRequest, "INVALID_TOTP", "authenticator code is invalid")
	ErrPasswordMissing     = httpx.NewAPIError(http.StatusBadRequest, "PASSWORD_MISSING", "login attempt has no retained password")
	ErrBadEmail            = httpx.NewAPIError(http.StatusBadRequest, "BAD_EMAIL", "email address is invalid")
	ErrServerError         = httpx.NewAPIError(http.StatusInternalServerError, "SERVER_ERROR", "internal server error")
)

// apiErrors maps service sentinels onto their wire errors, in match order.
var apiErrors = []struct {
	err error
	api *httpx.APIError
}{
	{service.ErrInvalidRealm, ErrInvalidRealm},
	{service.ErrUserNotFound, ErrUserNotFound},
	{service.ErrInvalidPassword, ErrInvalidPassword},
	{service.ErrInvalidAttempt, ErrInvalidAttempt},
	{service.ErrNoEmailOnAccount, ErrNoEmailOnAccount},
	{service.ErrNoPhoneOnAccount, ErrNoPhoneOnAccount},
	{service.ErrInvalidOrExpiredOTP, ErrInvalidOrExpiredOTP},
	{service.ErrInvalidTOTP, ErrInvalidTOTP},
	{service.ErrPasswordMissing, ErrPasswordMissing},
	{service.ErrBadEmail, ErrBadEmail},
	{service.ErrTokenSigning, ErrServerError},
	{service.ErrLoginFailed, ErrLoginFailed},
}

// writeServiceError writes the wire error for err. Unclassified errors
// collapse to LOGIN_FAILED so provider details never reach the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range apiErrors {
		if errors.Is(err, m.err) {
			if m.api.StatusCode >= http.StatusInternalServerError {
				slogx.FromContext(r.Context()).Error("request failed", "error", err)
			}
			m.api.WriteError(w)
			return
		}
	}

	slogx.FromContext(r.Context()).Warn("unclassified service error", "error", err)
	ErrLoginFailed.WriteError(w)
}
