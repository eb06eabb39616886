package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// EmailOTPService issues locally generated email codes and redeems them.
type EmailOTPService struct {
	Attempts  store.Attempts
	Resolver  *Resolver
	Sender    EmailSender
	Finalizer *Finalizer
	Audit     *Audit

	Now func() time.Time
}

func (s *EmailOTPService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Send generates a fresh code, replacing any pending one, and hands it to
// the email transport. Delivery is fire-and-forget.
func (s *EmailOTPService) Send(ctx context.Context, attemptID string) error {
	ctx, a, err := loadAttempt(ctx, s.Attempts, attemptID)
	if err != nil {
		return err
	}
	log := slogx.FromContext(ctx)

	state, err := s.Resolver.Admin.GetUserProfile(ctx, a.Realm, a.AccountID)
	if err != nil {
		log.Warn("failed to read account email", "error", err)
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if !state.HasEmail() {
		return ErrNoEmailOnAccount
	}

	code, err := cryptox.NumericCode(domain.EmailOTPDigits)
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	err = s.Attempts.SetEmailOTP(ctx, attemptID, code, s.now().Add(domain.EmailOTPTTL))
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidAttempt
	}
	if err != nil {
		return fmt.Errorf("%w: store code: %v", ErrLoginFailed, err)
	}

	if err := s.Sender.SendOTP(ctx, state.Email, code); err != nil {
		log.Warn("email otp not handed to transport", "error", err)
	}

	s.Audit.Record(ctx, attemptID, attemptEvent(domain.EventOTPSent, a, domain.MethodEmail, ""))
	log.Info("email otp sent")
	return nil
}

// Verify redeems code. A correct, unexpired code completes the attempt.
func (s *EmailOTPService) Verify(ctx context.Context, attemptID, code string) (domain.FinalToken, error) {
	ctx, a, err := loadAttempt(ctx, s.Attempts, attemptID)
	if err != nil {
		return domain.FinalToken{}, err
	}

	ok, err := s.Attempts.ConsumeEmailOTP(ctx, attemptID, code)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to consume email otp", "error", err)
		return domain.FinalToken{}, ErrInvalidOrExpiredOTP
	}
	if !ok {
		s.Audit.Record(ctx, attemptID, attemptEvent(domain.EventOTPRejected, a, domain.MethodEmail, ""))
		return domain.FinalToken{}, ErrInvalidOrExpiredOTP
	}

	return s.Finalizer.Finalize(ctx, attemptID, domain.MethodEmail)
}
