package service

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/idp"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// ResolveCapabilities derives the available second factors and the
// advisory setup flags from an account's current state.
func ResolveCapabilities(s domain.AccountState) domain.CapabilitySet {
	hasEmail := s.HasEmail()
	_, hasPhone := s.SMSPhone()

	return domain.CapabilitySet{
		EmailAvailable:         hasEmail,
		TOTPConfigured:         s.HasTOTP,
		SMSAvailable:           hasPhone,
		NeedsEmail:             !hasEmail,
		NeedsEmailVerification: hasEmail && !s.EmailVerified,
		NeedsTOTPSetup:         !s.HasTOTP,
	}
}

// Resolver reads account state from the identity provider. Nothing it
// returns is cached.
type Resolver struct {
	Admin Admin
}

// Account fetches the profile and credential list of an account. Both
// lookups must succeed.
func (r *Resolver) Account(ctx context.Context, realm, accountID string) (domain.AccountState, error) {
	state, err := r.profile(ctx, realm, accountID)
	if err != nil {
		return domain.AccountState{}, err
	}
	if state.HasTOTP, err = r.HasTOTP(ctx, realm, accountID); err != nil {
		return domain.AccountState{}, err
	}
	return state, nil
}

// Resolve returns the account state together with its capability set. The
// set is advisory, so a failed credential lookup reads as no authenticator.
func (r *Resolver) Resolve(ctx context.Context, realm, accountID string) (domain.AccountState, domain.CapabilitySet, error) {
	state, err := r.profile(ctx, realm, accountID)
	if err != nil {
		return domain.AccountState{}, domain.CapabilitySet{}, err
	}
	if state.HasTOTP, err = r.HasTOTP(ctx, realm, accountID); err != nil {
		slogx.FromContext(ctx).Warn("failed to list credentials", "realm", realm, "error", err)
	}
	return state, ResolveCapabilities(state), nil
}

func (r *Resolver) profile(ctx context.Context, realm, accountID string) (domain.AccountState, error) {
	state, err := r.Admin.GetUserProfile(ctx, realm, accountID)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("failed to get user profile: %w", err)
	}
	return state, nil
}

// HasTOTP reports whether the account has an authenticator credential.
func (r *Resolver) HasTOTP(ctx context.Context, realm, accountID string) (bool, error) {
	types, err := r.Admin.ListCredentials(ctx, realm, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to list credentials: %w", err)
	}
	return idp.HasTOTP(types), nil
}
