package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/idp"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// LoginService runs the primary credential check and opens an attempt.
type LoginService struct {
	Admin       Admin
	Credentials CredentialChecker
	Attempts    store.Attempts
	Resolver    *Resolver
	Audit       *Audit
}

// StartLogin validates realm, user and password with the identity provider.
// On acceptance, or when the provider only refuses because setup actions
// are pending, it opens an attempt and returns the second factors on offer.
func (s *LoginService) StartLogin(ctx context.Context, realm, username, password string) (domain.LoginChallenge, error) {
	realm = strings.TrimSpace(realm)
	username = strings.TrimSpace(username)
	log := slogx.FromContext(ctx).With("realm", realm, "username", username)

	if realm == "" {
		return domain.LoginChallenge{}, ErrInvalidRealm
	}
	if err := s.Admin.FindRealm(ctx, realm); err != nil {
		if !errors.Is(err, idp.ErrRealmNotFound) {
			log.Warn("realm lookup failed", "error", err)
		}
		s.reject(ctx, realm, username, domain.OutcomeUnknownRealm.String())
		return domain.LoginChallenge{}, ErrInvalidRealm
	}

	if username == "" {
		return domain.LoginChallenge{}, ErrUserNotFound
	}
	accountID, err := s.Admin.FindUserByUsername(ctx, realm, username)
	switch {
	case errors.Is(err, idp.ErrUserNotFound):
		s.reject(ctx, realm, username, "user_not_found")
		return domain.LoginChallenge{}, ErrUserNotFound
	case errors.Is(err, idp.ErrRealmNotFound):
		return domain.LoginChallenge{}, ErrInvalidRealm
	case err != nil:
		log.Warn("user lookup failed", "error", err)
		return domain.LoginChallenge{}, fmt.Errorf("%w: user lookup: %v", ErrLoginFailed, err)
	}

	outcome := s.Credentials.CheckPassword(ctx, realm, username, password)
	if !outcome.Proceeds() {
		s.reject(ctx, realm, username, outcome.Kind.String())
		log.Info("login rejected", "outcome", outcome.Kind.String())
		switch outcome.Kind {
		case domain.OutcomeBadPassword:
			return domain.LoginChallenge{}, ErrInvalidPassword
		case domain.OutcomeUnknownRealm:
			return domain.LoginChallenge{}, ErrInvalidRealm
		default:
			return domain.LoginChallenge{}, ErrLoginFailed
		}
	}

	state, caps, err := s.Resolver.Resolve(ctx, realm, accountID)
	if err != nil {
		log.Warn("failed to resolve capabilities", "error", err)
		return domain.LoginChallenge{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	needs := caps.Needs()
	if outcome.Kind == domain.OutcomeSetupIncomplete {
		outcome.PendingActions = state.RequiredActions
		needs.VerifyEmail = needs.VerifyEmail || state.HasRequiredAction(domain.ActionVerifyEmail)
		needs.ConfigureTOTP = needs.ConfigureTOTP || state.HasRequiredAction(domain.ActionConfigureTOTP)
	}

	id, err := s.Attempts.CreateAttempt(ctx, realm, username, accountID, password)
	if err != nil {
		log.Error("failed to create attempt", "error", err)
		return domain.LoginChallenge{}, fmt.Errorf("%w: create attempt: %v", ErrLoginFailed, err)
	}

	ctx = slogx.WithAttempt(ctx, id)
	s.Audit.Record(ctx, id, domain.LoginEvent{
		Type:     domain.EventLoginStarted,
		Realm:    realm,
		Username: username,
		Detail:   outcome.Kind.String(),
	})
	slogx.FromContext(ctx).Info("login attempt started",
		"realm", realm,
		"username", username,
		"outcome", outcome.Kind.String(),
		"pending_actions", outcome.PendingActions,
	)

	return domain.LoginChallenge{
		MFARequired:    true,
		Methods:        caps.Methods(),
		LoginAttemptID: id,
		Needs:          needs,
	}, nil
}

func (s *LoginService) reject(ctx context.Context, realm, username, detail string) {
	s.Audit.Record(ctx, "", domain.LoginEvent{
		Type:     domain.EventLoginRejected,
		Realm:    realm,
		Username: username,
		Detail:   detail,
	})
}
