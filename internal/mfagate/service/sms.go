package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// SMSOTPService delegates code generation, delivery and checking to the
// SMS verification provider. No code is stored locally.
type SMSOTPService struct {
	Attempts  store.Attempts
	Resolver  *Resolver
	SMS       SMSVerifier
	Finalizer *Finalizer
	Audit     *Audit
}

func (s *SMSOTPService) phone(ctx context.Context, a domain.Attempt) (string, error) {
	state, err := s.Resolver.Admin.GetUserProfile(ctx, a.Realm, a.AccountID)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to read account phone", "error", err)
		return "", fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	phone, ok := state.SMSPhone()
	if !ok {
		return "", ErrNoPhoneOnAccount
	}
	return phone, nil
}

// Send asks the provider to text a code to the account's phone.
func (s *SMSOTPService) Send(ctx context.Context, attemptID string) error {
	ctx, a, err := loadAttempt(ctx, s.Attempts, attemptID)
	if err != nil {
		return err
	}

	phone, err := s.phone(ctx, a)
	if err != nil {
		return err
	}

	if err := s.SMS.Send(ctx, phone); err != nil {
		slogx.FromContext(ctx).Warn("sms verification send failed", "error", err)
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	s.Audit.Record(ctx, attemptID, attemptEvent(domain.EventOTPSent, a, domain.MethodSMS, ""))
	slogx.FromContext(ctx).Info("sms otp sent")
	return nil
}

// Verify checks code with the provider and completes the attempt on success.
func (s *SMSOTPService) Verify(ctx context.Context, attemptID, code string) (domain.FinalToken, error) {
	ctx, a, err := loadAttempt(ctx, s.Attempts, attemptID)
	if err != nil {
		return domain.FinalToken{}, err
	}

	phone, err := s.phone(ctx, a)
	if err != nil {
		return domain.FinalToken{}, err
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return domain.FinalToken{}, ErrInvalidOrExpiredOTP
	}

	ok, err := s.SMS.Check(ctx, phone, code)
	if err != nil {
		slogx.FromContext(ctx).Warn("sms verification check failed", "error", err)
	}
	if err != nil || !ok {
		s.Audit.Record(ctx, attemptID, attemptEvent(domain.EventOTPRejected, a, domain.MethodSMS, ""))
		return domain.FinalToken{}, ErrInvalidOrExpiredOTP
	}

	return s.Finalizer.Finalize(ctx, attemptID, domain.MethodSMS)
}
