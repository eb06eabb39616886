package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// ProfileService lets a pending login complete its account profile.
type ProfileService struct {
	Attempts store.Attempts
	Admin    Admin
	Resolver *Resolver
}

// SetEmail replaces the account email and marks it unverified.
func (s *ProfileService) SetEmail(ctx context.Context, attemptID, email string) error {
	ctx, a, err := loadAttempt(ctx, s.Attempts, attemptID)
	if err != nil {
		return err
	}

	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return ErrBadEmail
	}

	if err := s.Admin.SetEmail(ctx, a.Realm, a.AccountID, email); err != nil {
		slogx.FromContext(ctx).Warn("failed to update email", "error", err)
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	slogx.FromContext(ctx).Info("account email updated")
	return nil
}

// SendVerifyEmail asks the provider to email a VERIFY_EMAIL link.
func (s *ProfileService) SendVerifyEmail(ctx context.Context, attemptID string) error {
	ctx, a, err := loadAttempt(ctx, s.Attempts, attemptID)
	if err != nil {
		return err
	}

	if err := s.Admin.TriggerEmailAction(ctx, a.Realm, a.AccountID, domain.ActionVerifyEmail); err != nil {
		slogx.FromContext(ctx).Warn("failed to send verification email", "error", err)
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	return nil
}

// Status reports the account's current second-factor readiness.
func (s *ProfileService) Status(ctx context.Context, attemptID string) (domain.ProfileStatus, error) {
	ctx, a, err := loadAttempt(ctx, s.Attempts, attemptID)
	if err != nil {
		return domain.ProfileStatus{}, err
	}

	state, caps, err := s.Resolver.Resolve(ctx, a.Realm, a.AccountID)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to resolve capabilities", "error", err)
		return domain.ProfileStatus{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	return domain.ProfileStatus{
		EmailMissing:  !state.HasEmail(),
		EmailVerified: state.EmailVerified,
		HasTOTP:       state.HasTOTP,
		HasPhone:      caps.SMSAvailable,
		Methods:       caps.Methods(),
	}, nil
}
