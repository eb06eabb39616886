package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is the lifetime of a completed-login token when the
// deployment does not configure one.
const DefaultSessionTTL = time.Hour

// Claims are the claims of a token issued after a login passes its second
// factor.
type Claims struct {
	jwt.RegisteredClaims

	// Realm the account belongs to in the identity provider.
	Realm string `json:"realm"`

	// Username as typed at login.
	Username string `json:"username"`

	// Authentication Methods Reference, e.g. ["pwd","otp"] or ["pwd","sms"].
	AMR []string `json:"amr,omitempty"`
}

// NewSessionClaims builds minimally-correct claims for a completed login.
func NewSessionClaims(
	subject, realm, username string,
	amr []string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Realm:    realm,
		Username: username,
		AMR:      amr,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryWithLeeway(0)
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateSubject requires the subject and realm a completed login carries.
func (c *Claims) ValidateSubject() error {
	if c.Subject == "" || c.Realm == "" {
		return ErrInvalidClaim
	}
	return nil
}
