package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
)

func TestStartLogin_Accepted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.admin.add("acme", "alice", "pw", domain.AccountState{Email: "alice@example.com", EmailVerified: true})

	ch, err := h.login.StartLogin(context.Background(), " acme ", "alice ", "pw")
	require.NoError(t, err)
	require.True(t, ch.MFARequired)
	require.Equal(t, []domain.Method{domain.MethodEmail, domain.MethodTOTP}, ch.Methods)
	require.True(t, ch.Needs.ConfigureTOTP)
	require.False(t, ch.Needs.EmailMissing)
	require.False(t, ch.Needs.VerifyEmail)
	require.NotEmpty(t, ch.LoginAttemptID)

	a, err := h.attempts.GetAttempt(context.Background(), ch.LoginAttemptID)
	require.NoError(t, err)
	require.Equal(t, "acme", a.Realm)
	require.Equal(t, "alice", a.Username)
	require.Equal(t, "id-alice", a.AccountID)
	require.Equal(t, "pw", a.Password)

	events, err := h.events.ListEvents(context.Background(), store.EventFilter{Type: domain.EventLoginStarted})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotEqual(t, ch.LoginAttemptID, events[0].AttemptFingerprint)
	require.NotEmpty(t, events[0].AttemptFingerprint)
}

func TestStartLogin_FreshAttemptEachTime(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.admin.add("acme", "alice", "pw", domain.AccountState{})

	a, err := h.login.StartLogin(context.Background(), "acme", "alice", "pw")
	require.NoError(t, err)
	b, err := h.login.StartLogin(context.Background(), "acme", "alice", "pw")
	require.NoError(t, err)
	require.NotEqual(t, a.LoginAttemptID, b.LoginAttemptID)
}

func TestStartLogin_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		realm    string
		username string
		password string
		outcome  *domain.LoginOutcome
		want     error
	}{
		{"empty realm", "", "alice", "pw", nil, ErrInvalidRealm},
		{"unknown realm", "nowhere", "alice", "pw", nil, ErrInvalidRealm},
		{"empty username", "acme", " ", "pw", nil, ErrUserNotFound},
		{"unknown user", "acme", "carol", "pw", nil, ErrUserNotFound},
		{"bad password", "acme", "alice", "wrong", nil, ErrInvalidPassword},
		{"provider other", "acme", "alice", "pw", &domain.LoginOutcome{Kind: domain.OutcomeOther}, ErrLoginFailed},
		{"realm vanished", "acme", "alice", "pw", &domain.LoginOutcome{Kind: domain.OutcomeUnknownRealm}, ErrInvalidRealm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.admin.add("acme", "alice", "pw", domain.AccountState{})
			h.checker.outcome = tt.outcome

			_, err := h.login.StartLogin(context.Background(), tt.realm, tt.username, tt.password)
			require.ErrorIs(t, err, tt.want)

			attempts, _ := h.attempts.Len()
			require.Zero(t, attempts)
		})
	}
}

func TestStartLogin_ProviderErrorOnRealmIsInvalidRealm(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.admin.realmErr = errBoom

	_, err := h.login.StartLogin(context.Background(), "acme", "alice", "pw")
	require.ErrorIs(t, err, ErrInvalidRealm)
	require.Zero(t, h.checker.calls, "password is not checked for a bad realm")
}

func TestStartLogin_SetupIncomplete(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.admin.add("acme", "alice", "pw", domain.AccountState{
		Email:           "alice@example.com",
		EmailVerified:   true,
		RequiredActions: []string{domain.ActionVerifyEmail},
	}, "password", "otp")
	h.checker.outcome = &domain.LoginOutcome{
		Kind:                domain.OutcomeSetupIncomplete,
		ProviderError:       "invalid_grant",
		ProviderDescription: "Account is not fully set up",
	}

	ch, err := h.login.StartLogin(context.Background(), "acme", "alice", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, ch.LoginAttemptID, "setup-incomplete still opens an attempt")
	require.True(t, ch.Needs.VerifyEmail, "pending VERIFY_EMAIL is reported")
	require.False(t, ch.Needs.ConfigureTOTP)
	require.Equal(t, []domain.Method{domain.MethodEmail, domain.MethodTOTP}, ch.Methods)
}
