// Package service holds the login orchestration: primary credential
// checks, second-factor completion, and token issuance.
package service

import "errors"

var (
	ErrInvalidRealm        = errors.New("invalid realm")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrLoginFailed         = errors.New("login failed")
	ErrInvalidAttempt      = errors.New("invalid or expired login attempt")
	ErrNoEmailOnAccount    = errors.New("no email on account")
	ErrNoPhoneOnAccount    = errors.New("no phone on account")
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired one-time code")
	ErrInvalidTOTP         = errors.New("invalid authenticator code")
	ErrPasswordMissing     = errors.New("retained password missing")
	ErrBadEmail            = errors.New("bad email address")
	ErrTokenSigning        = errors.New("failed to sign token")
)
