package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// Finalizer is the terminal step shared by every second factor: it removes
// the attempt and issues the final token.
type Finalizer struct {
	Attempts store.Attempts
	Signer   jwtx.Signer
	Issuer   string
	TTL      time.Duration
	Audit    *Audit

	Now func() time.Time
}

func (f *Finalizer) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// amr maps a completed method onto RFC 8176 authentication method values.
func amr(method domain.Method) []string {
	switch method {
	case domain.MethodSMS:
		return []string{"pwd", "sms", "mfa"}
	default:
		return []string{"pwd", "otp", "mfa"}
	}
}

// Finalize claims the attempt and signs a token for it. The claim happens
// before signing, so concurrent completions of one attempt yield at most
// one token.
func (f *Finalizer) Finalize(ctx context.Context, attemptID string, method domain.Method) (domain.FinalToken, error) {
	a, err := f.Attempts.ClaimAttempt(ctx, attemptID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.FinalToken{}, ErrInvalidAttempt
	}
	if err != nil {
		return domain.FinalToken{}, fmt.Errorf("%w: claim attempt: %v", ErrLoginFailed, err)
	}

	ttl := f.TTL
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}

	claims := jwtx.NewSessionClaims(a.AccountID, a.Realm, a.Username, amr(method), ttl, f.Issuer, f.now())
	token, err := f.Signer.Sign(claims)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to sign final token", "realm", a.Realm, "error", err)
		return domain.FinalToken{}, fmt.Errorf("%w: %v", ErrTokenSigning, err)
	}

	f.Audit.Record(ctx, attemptID, attemptEvent(domain.EventLoginCompleted, a, method, ""))
	slogx.FromContext(ctx).Info("login completed", "realm", a.Realm, "username", a.Username, "method", method)

	return domain.FinalToken{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(ttl / time.Second),
	}, nil
}
