package service

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
)

// Admin is the identity provider's admin capability.
type Admin interface {
	FindRealm(ctx context.Context, realm string) error
	FindUserByUsername(ctx context.Context, realm, username string) (string, error)
	GetUserProfile(ctx context.Context, realm, accountID string) (domain.AccountState, error)
	ListCredentials(ctx context.Context, realm, accountID string) ([]string, error)
	SetRequiredActions(ctx context.Context, realm, accountID string, actions []string) error
	SetEmail(ctx context.Context, realm, accountID, email string) error
	TriggerEmailAction(ctx context.Context, realm, accountID, action string) error
}

// CredentialChecker validates passwords, optionally with an authenticator
// code, in a single provider round trip.
type CredentialChecker interface {
	CheckPassword(ctx context.Context, realm, username, password string) domain.LoginOutcome
	CheckPasswordWithTOTP(ctx context.Context, realm, username, password, code string) bool
}

// BrowserFlow is the authorization-code redirect used for TOTP enrollment.
type BrowserFlow interface {
	AuthURL(realm, state, nonce, loginHint string) string
	Exchange(ctx context.Context, realm, code string) (*oauth2.Token, error)
	VerifyIDToken(ctx context.Context, realm string, tok *oauth2.Token, nonce string) (string, error)
}

// SMSVerifier sends and checks SMS codes. The provider owns the codes.
type SMSVerifier interface {
	Send(ctx context.Context, phone string) error
	Check(ctx context.Context, phone, code string) (bool, error)
}

// EmailSender delivers an email OTP.
type EmailSender interface {
	SendOTP(ctx context.Context, to, code string) error
}
