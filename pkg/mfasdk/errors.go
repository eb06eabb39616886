package mfasdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the service.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInvalidRealm        = "INVALID_REALM"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeInvalidPassword     = "INVALID_PASSWORD"
	CodeLoginFailed         = "LOGIN_FAILED"
	CodeInvalidAttempt      = "INVALID_ATTEMPT"
	CodeNoEmailOnAccount    = "NO_EMAIL_ON_ACCOUNT"
	CodeNoPhoneOnAccount    = "NO_PHONE_ON_ACCOUNT"
	CodeInvalidOrExpiredOTP = "INVALID_OR_EXPIRED_OTP"
	CodeInvalidTOTP         = "INVALID_TOTP"
	CodePasswordMissing     = "PASSWORD_MISSING"
	CodeBadEmail            = "BAD_EMAIL"
	CodeRateLimited         = "RATE_LIMITED"
	CodeServerError         = "SERVER_ERROR"
	CodeInvalidToken        = "invalid_token"
)

// APIError is an error response from the service.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// IsCode reports whether err is an *APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// parseErrorResponse builds an *APIError from a non-2xx response body.
// Bodies that are not the service's error envelope keep the raw status.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Description = string(body)
	}
	return apiErr
}
