package domain

import (
	"log/slog"
	"time"
)

// EmailOTPTTL is how long an issued email code stays valid.
const EmailOTPTTL = 5 * time.Minute

// EmailOTPDigits is the length of an email code.
const EmailOTPDigits = 6

// Attempt is a login whose password was accepted and whose second factor
// is still pending.
type Attempt struct {
	ID        string    // opaque, unguessable, single use
	Realm     string    // identity provider realm
	Username  string    // as typed at login
	AccountID string    // identity provider user id
	Password  string    // retained for the direct TOTP grant; never logged
	EmailOTP  *EmailOTP // pending email challenge, nil when none
	CreatedAt time.Time
}

// LogValue keeps the password and raw id out of structured logs.
func (a Attempt) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("realm", a.Realm),
		slog.String("username", a.Username),
		slog.String("account_id", a.AccountID),
		slog.Bool("has_password", a.Password != ""),
		slog.Bool("email_otp_pending", a.EmailOTP != nil),
		slog.Time("created_at", a.CreatedAt),
	)
}

// ExpiredAt reports whether the attempt's absolute lifetime has elapsed at now.
func (a Attempt) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && !now.Before(a.CreatedAt.Add(ttl))
}

// EmailOTP is the active email challenge of an attempt.
type EmailOTP struct {
	Code      string
	ExpiresAt time.Time
}

// ValidAt reports whether the code may still be redeemed at now.
func (o EmailOTP) ValidAt(now time.Time) bool {
	return now.Before(o.ExpiresAt)
}

// LogValue hides the code.
func (o EmailOTP) LogValue() slog.Value {
	return slog.GroupValue(slog.Time("expires_at", o.ExpiresAt))
}

// RedirectBinding ties a browser redirect state token back to its attempt.
type RedirectBinding struct {
	AttemptID string
	Realm     string
	Nonce     string // OIDC nonce sent in the authorization request
	CreatedAt time.Time
}

// ExpiredAt reports whether the binding has outlived ttl at now.
func (b RedirectBinding) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && !now.Before(b.CreatedAt.Add(ttl))
}
