package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

var (
	// ErrUnknownState is returned by Callback for a missing or expired state.
	ErrUnknownState = errors.New("unknown redirect state")

	// ErrSubjectMismatch is returned by Callback when the browser login
	// belongs to another account than the attempt.
	ErrSubjectMismatch = errors.New("redirect login subject mismatch")
)

// TOTPService covers both authenticator paths: the direct code check, and
// the browser redirect the provider uses for enrollment.
type TOTPService struct {
	Attempts    store.Attempts
	Admin       Admin
	Resolver    *Resolver
	Credentials CredentialChecker
	Browser     BrowserFlow
	Finalizer   *Finalizer
	Audit       *Audit

	Now func() time.Time
}

func (s *TOTPService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Enroll asks the provider to email a CONFIGURE_TOTP link unless an
// authenticator is already configured.
func (s *TOTPService) Enroll(ctx context.Context, attemptID string) (domain.TOTPEnrollment, error) {
	ctx, a, err := loadAttempt(ctx, s.Attempts, attemptID)
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}
	log := slogx.FromContext(ctx)

	has, err := s.Resolver.HasTOTP(ctx, a.Realm, a.AccountID)
	if err != nil {
		log.Warn("failed to check authenticator", "error", err)
		return domain.TOTPEnrollment{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if has {
		return domain.TOTPEnrollment{AlreadyConfigured: true}, nil
	}

	if err := s.Admin.TriggerEmailAction(ctx, a.Realm, a.AccountID, domain.ActionConfigureTOTP); err != nil {
		log.Warn("failed to send enrollment email", "error", err)
		return domain.TOTPEnrollment{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	log.Info("totp enrollment email sent")
	return domain.TOTPEnrollment{EmailSent: true}, nil
}

// Verify submits the retained password and code in one grant. Accounts
// without an authenticator are rejected. Success completes the attempt.
func (s *TOTPService) Verify(ctx context.Context, attemptID, code string) (domain.FinalToken, error) {
	ctx, a, err := loadAttempt(ctx, s.Attempts, attemptID)
	if err != nil {
		return domain.FinalToken{}, err
	}
	if strings.TrimSpace(a.Password) == "" {
		return domain.FinalToken{}, ErrPasswordMissing
	}

	// The provider skips its OTP step for accounts without an authenticator.
	has, err := s.Resolver.HasTOTP(ctx, a.Realm, a.AccountID)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to check authenticator", "error", err)
		return domain.FinalToken{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	if !has || !s.Credentials.CheckPasswordWithTOTP(ctx, a.Realm, a.Username, a.Password, strings.TrimSpace(code)) {
		s.Audit.Record(ctx, attemptID, attemptEvent(domain.EventOTPRejected, a, domain.MethodTOTP, ""))
		return domain.FinalToken{}, ErrInvalidTOTP
	}

	return s.Finalizer.Finalize(ctx, attemptID, domain.MethodTOTP)
}

// newState mints a redirect state of the form "<realm>:<uuid>".
func newState(realm string) string {
	return realm + ":" + uuid.NewString()
}

// stateRealm recovers the realm prefix of a redirect state.
func stateRealm(state string) string {
	realm, _, ok := strings.Cut(state, ":")
	if !ok {
		return ""
	}
	return realm
}

// StartSession prepares the browser redirect. If the account has no
// authenticator yet, CONFIGURE_TOTP is added to its required actions so the
// provider runs enrollment during the redirected login.
func (s *TOTPService) StartSession(ctx context.Context, attemptID string) (string, error) {
	ctx, a, err := loadAttempt(ctx, s.Attempts, attemptID)
	if err != nil {
		return "", err
	}
	log := slogx.FromContext(ctx)

	state, err := s.Resolver.Account(ctx, a.Realm, a.AccountID)
	if err != nil {
		log.Warn("failed to read account", "error", err)
		return "", fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	if !state.HasTOTP && !state.HasRequiredAction(domain.ActionConfigureTOTP) {
		actions := append(slices.Clone(state.RequiredActions), domain.ActionConfigureTOTP)
		if err := s.Admin.SetRequiredActions(ctx, a.Realm, a.AccountID, actions); err != nil {
			log.Warn("failed to request totp configuration", "error", err)
			return "", fmt.Errorf("%w: %v", ErrLoginFailed, err)
		}
	}

	redirectState := newState(a.Realm)
	nonce := uuid.NewString()
	err = s.Attempts.BindRedirectState(ctx, redirectState, domain.RedirectBinding{
		AttemptID: attemptID,
		Realm:     a.Realm,
		Nonce:     nonce,
		CreatedAt: s.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidAttempt
	}
	if err != nil {
		return "", fmt.Errorf("%w: bind state: %v", ErrLoginFailed, err)
	}

	s.Audit.Record(ctx, attemptID, attemptEvent(domain.EventTOTPSessionStarted, a, domain.MethodTOTP, ""))
	log.Info("totp redirect session started", "needs_enrollment", !state.HasTOTP)

	return s.Browser.AuthURL(a.Realm, redirectState, nonce, a.Username), nil
}

// Callback finishes the browser redirect: it exchanges the code, checks the
// id_token against the bound attempt, and always clears the binding. It
// never issues a token; the caller reconciles through the resolver.
func (s *TOTPService) Callback(ctx context.Context, code, state string) error {
	if state == "" {
		return ErrUnknownState
	}
	defer func() {
		if err := s.Attempts.ClearRedirectState(ctx, state); err != nil {
			slogx.FromContext(ctx).Warn("failed to clear redirect state", "error", err)
		}
	}()

	binding, err := s.Attempts.ResolveRedirectState(ctx, state)
	if err != nil {
		realm := stateRealm(state)
		if realm != "" && code != "" {
			if _, err := s.Browser.Exchange(ctx, realm, code); err != nil {
				slogx.FromContext(ctx).Warn("totp callback exchange failed", "realm", realm, "error", err)
			}
		}
		slogx.FromContext(ctx).Info("totp callback for unknown state", "realm", realm)
		s.Audit.Record(ctx, "", domain.LoginEvent{
			Type:   domain.EventTOTPCallback,
			Realm:  realm,
			Method: domain.MethodTOTP,
			Detail: "unknown_state",
		})
		return ErrUnknownState
	}

	ctx = slogx.WithAttempt(ctx, binding.AttemptID)
	log := slogx.FromContext(ctx)
	a, attemptErr := s.Attempts.GetAttempt(ctx, binding.AttemptID)

	result := s.redeem(ctx, binding, code, a, attemptErr)
	detail := "verified"
	if result != nil {
		detail = "unverified"
		log.Warn("totp callback not verified", "error", result)
	} else {
		log.Info("totp callback verified")
	}

	ev := domain.LoginEvent{Type: domain.EventTOTPCallback, Realm: binding.Realm, Method: domain.MethodTOTP, Detail: detail}
	if attemptErr == nil {
		ev.Username = a.Username
	}
	s.Audit.Record(ctx, binding.AttemptID, ev)
	return result
}

func (s *TOTPService) redeem(ctx context.Context, b domain.RedirectBinding, code string, a domain.Attempt, attemptErr error) error {
	if code == "" {
		return errors.New("callback carried no code")
	}

	tok, err := s.Browser.Exchange(ctx, b.Realm, code)
	if err != nil {
		return err
	}
	subject, err := s.Browser.VerifyIDToken(ctx, b.Realm, tok, b.Nonce)
	if err != nil {
		return err
	}
	if attemptErr != nil {
		return fmt.Errorf("attempt gone: %w", attemptErr)
	}
	if subject != a.AccountID {
		return ErrSubjectMismatch
	}
	return nil
}
