package idp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/idp"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/idp/idptest"
)

func newAdmin(t *testing.T, kc *idptest.Keycloak) *idp.KeycloakAdmin {
	t.Helper()
	return idp.NewKeycloakAdmin(idp.AdminConfig{
		BaseURL:  kc.URL(),
		Realm:    idptest.AdminRealm,
		ClientID: idptest.AdminClientID,
		Username: idptest.AdminUsername,
		Password: idptest.AdminPassword,
		Timeout:  2 * time.Second,
	})
}

func TestKeycloakAdmin_FindRealm(t *testing.T) {
	kc := idptest.New(t)
	kc.AddRealm("acme")
	admin := newAdmin(t, kc)
	ctx := context.Background()

	require.NoError(t, admin.FindRealm(ctx, "acme"))
	require.ErrorIs(t, admin.FindRealm(ctx, "nowhere"), idp.ErrRealmNotFound)
}

func TestKeycloakAdmin_FindUserByUsername(t *testing.T) {
	kc := idptest.New(t)
	id := kc.AddUser("acme", idptest.User{Username: "alice"})
	kc.AddUser("acme", idptest.User{Username: "alice2"})
	admin := newAdmin(t, kc)
	ctx := context.Background()

	got, err := admin.FindUserByUsername(ctx, "acme", "alice")
	require.NoError(t, err)
	require.Equal(t, id, got)

	got, err = admin.FindUserByUsername(ctx, "acme", "ALICE")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = admin.FindUserByUsername(ctx, "acme", "carol")
	require.ErrorIs(t, err, idp.ErrUserNotFound)

	_, err = admin.FindUserByUsername(ctx, "nowhere", "alice")
	require.ErrorIs(t, err, idp.ErrRealmNotFound)
}

func TestKeycloakAdmin_ProfileAndCredentials(t *testing.T) {
	kc := idptest.New(t)
	secret := idptest.NewTOTPSecret(t)
	id := kc.AddUser("acme", idptest.User{
		Username:        "alice",
		Email:           "alice@example.com",
		EmailVerified:   true,
		Phone:           "+61400000000",
		TOTPSecret:      secret,
		RequiredActions: []string{domain.ActionVerifyEmail},
	})
	plain := kc.AddUser("acme", idptest.User{Username: "bob"})
	admin := newAdmin(t, kc)
	ctx := context.Background()

	state, err := admin.GetUserProfile(ctx, "acme", id)
	require.NoError(t, err)
	require.Equal(t, id, state.ID)
	require.Equal(t, "alice", state.Username)
	require.Equal(t, "alice@example.com", state.Email)
	require.True(t, state.EmailVerified)
	require.Equal(t, "+61400000000", state.Phone)
	require.Equal(t, []string{domain.ActionVerifyEmail}, state.RequiredActions)

	types, err := admin.ListCredentials(ctx, "acme", id)
	require.NoError(t, err)
	require.True(t, idp.HasTOTP(types))

	types, err = admin.ListCredentials(ctx, "acme", plain)
	require.NoError(t, err)
	require.False(t, idp.HasTOTP(types))

	_, err = admin.GetUserProfile(ctx, "acme", "missing")
	require.ErrorIs(t, err, idp.ErrUserNotFound)
}

func TestKeycloakAdmin_Updates(t *testing.T) {
	kc := idptest.New(t)
	id := kc.AddUser("acme", idptest.User{Username: "alice", Email: "old@example.com", EmailVerified: true})
	admin := newAdmin(t, kc)
	ctx := context.Background()

	require.NoError(t, admin.SetEmail(ctx, "acme", id, "new@example.com"))
	u, _ := kc.User("acme", "alice")
	require.Equal(t, "new@example.com", u.Email)
	require.False(t, u.EmailVerified)

	require.NoError(t, admin.SetRequiredActions(ctx, "acme", id, []string{domain.ActionConfigureTOTP}))
	u, _ = kc.User("acme", "alice")
	require.Equal(t, []string{domain.ActionConfigureTOTP}, u.RequiredActions)

	require.NoError(t, admin.TriggerEmailAction(ctx, "acme", id, domain.ActionVerifyEmail))
	emails := kc.ActionEmails()
	require.Len(t, emails, 1)
	require.Equal(t, id, emails[0].UserID)
	require.Equal(t, []string{domain.ActionVerifyEmail}, emails[0].Actions)

	require.ErrorIs(t, admin.SetEmail(ctx, "acme", "missing", "x@example.com"), idp.ErrUserNotFound)
}

func TestKeycloakAdmin_BadCredentials(t *testing.T) {
	kc := idptest.New(t)
	kc.AddRealm("acme")
	admin := idp.NewKeycloakAdmin(idp.AdminConfig{
		BaseURL:  kc.URL(),
		Realm:    idptest.AdminRealm,
		ClientID: idptest.AdminClientID,
		Username: idptest.AdminUsername,
		Password: "wrong",
		Timeout:  time.Second,
	})

	err := admin.FindRealm(context.Background(), "acme")
	require.ErrorIs(t, err, idp.ErrProvider)
	require.NotErrorIs(t, err, idp.ErrRealmNotFound)
	require.ErrorIs(t, admin.Ping(context.Background()), idp.ErrProvider)
}

func TestKeycloakAdmin_ClientCredentials(t *testing.T) {
	kc := idptest.New(t)
	kc.AddRealm("acme")
	admin := idp.NewKeycloakAdmin(idp.AdminConfig{
		BaseURL:      kc.URL(),
		Realm:        idptest.AdminRealm,
		ClientID:     "mfa-admin",
		ClientSecret: "secret",
		Timeout:      time.Second,
	})

	require.NoError(t, admin.Ping(context.Background()))
	require.NoError(t, admin.FindRealm(context.Background(), "acme"))
}

func TestHasTOTP(t *testing.T) {
	t.Parallel()

	require.True(t, idp.HasTOTP([]string{"password", "otp"}))
	require.True(t, idp.HasTOTP([]string{"OTP"}))
	require.False(t, idp.HasTOTP([]string{"password", "webauthn"}))
	require.False(t, idp.HasTOTP(nil))
}
