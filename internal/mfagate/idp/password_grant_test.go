package idp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/idp"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/idp/idptest"
)

func newGrant(baseURL string, timeout time.Duration) *idp.PasswordGrant {
	return idp.NewPasswordGrant(idp.GrantConfig{
		BaseURL:          baseURL,
		PasswordClientID: idptest.PasswordClientID,
		OTPClientID:      idptest.OTPClientID,
		Timeout:          timeout,
	})
}

func TestPasswordGrant_CheckPassword(t *testing.T) {
	kc := idptest.New(t)
	kc.AddUser("acme", idptest.User{Username: "alice", Password: "correct horse"})
	kc.AddUser("acme", idptest.User{Username: "bob", Password: "pw", RequiredActions: []string{domain.ActionVerifyEmail}})
	kc.AddUser("acme", idptest.User{Username: "erin", Password: "pw", TOTPSecret: idptest.NewTOTPSecret(t)})
	kc.AddRealm("empty")

	g := newGrant(kc.URL(), 2*time.Second)
	ctx := context.Background()

	tests := []struct {
		name     string
		realm    string
		username string
		password string
		want     domain.OutcomeKind
	}{
		{"accepted", "acme", "alice", "correct horse", domain.OutcomeAccepted},
		{"accepted with authenticator", "acme", "erin", "pw", domain.OutcomeAccepted},
		{"bad password", "acme", "alice", "wrong", domain.OutcomeBadPassword},
		{"unknown user", "acme", "carol", "pw", domain.OutcomeBadPassword},
		{"setup incomplete", "acme", "bob", "pw", domain.OutcomeSetupIncomplete},
		{"unknown realm", "nowhere", "alice", "pw", domain.OutcomeUnknownRealm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.CheckPassword(ctx, tt.realm, tt.username, tt.password)
			require.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestPasswordGrant_CheckPasswordWithTOTP(t *testing.T) {
	kc := idptest.New(t)
	secret := idptest.NewTOTPSecret(t)
	kc.AddUser("acme", idptest.User{Username: "alice", Password: "pw", TOTPSecret: secret})

	g := newGrant(kc.URL(), 2*time.Second)
	ctx := context.Background()

	require.True(t, g.CheckPasswordWithTOTP(ctx, "acme", "alice", "pw", idptest.TOTPCode(t, secret)))
	require.True(t, g.CheckPasswordWithTOTP(ctx, "acme", "alice", "pw", " "+idptest.TOTPCode(t, secret)+" "))
	require.False(t, g.CheckPasswordWithTOTP(ctx, "acme", "alice", "pw", "000000"))
	require.False(t, g.CheckPasswordWithTOTP(ctx, "acme", "alice", "wrong", idptest.TOTPCode(t, secret)))
	require.False(t, g.CheckPasswordWithTOTP(ctx, "acme", "alice", "pw", ""))
	require.False(t, g.CheckPasswordWithTOTP(ctx, "nowhere", "alice", "pw", "123456"))
}

func TestPasswordGrant_WrongCodeNeedsOTPClient(t *testing.T) {
	kc := idptest.New(t)
	secret := idptest.NewTOTPSecret(t)
	kc.AddUser("acme", idptest.User{Username: "alice", Password: "pw", TOTPSecret: secret})

	// A misconfigured deployment that points the code check at the
	// password-only client accepts any code.
	lax := idp.NewPasswordGrant(idp.GrantConfig{
		BaseURL:          kc.URL(),
		PasswordClientID: idptest.PasswordClientID,
		OTPClientID:      idptest.PasswordClientID,
		Timeout:          2 * time.Second,
	})
	require.True(t, lax.CheckPasswordWithTOTP(context.Background(), "acme", "alice", "pw", "000000"))

	g := newGrant(kc.URL(), 2*time.Second)
	require.False(t, g.CheckPasswordWithTOTP(context.Background(), "acme", "alice", "pw", "000000"))
}

func TestPasswordGrant_UnknownClient(t *testing.T) {
	kc := idptest.New(t)
	kc.AddUser("acme", idptest.User{Username: "alice", Password: "pw"})

	g := idp.NewPasswordGrant(idp.GrantConfig{
		BaseURL:          kc.URL(),
		PasswordClientID: "nobody",
		OTPClientID:      "nobody",
		Timeout:          2 * time.Second,
	})
	got := g.CheckPassword(context.Background(), "acme", "alice", "pw")
	require.Equal(t, domain.OutcomeOther, got.Kind)
	require.Equal(t, "invalid_client", got.ProviderError)
	require.False(t, g.CheckPasswordWithTOTP(context.Background(), "acme", "alice", "pw", "123456"))
}

// tokenRequest is what the recording server saw for one grant.
type tokenRequest struct {
	clientID     string
	clientSecret string
	form         url.Values
	contentType  string
}

func TestPasswordGrant_EachGrantUsesItsClient(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen []tokenRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/realms/acme/protocol/openid-connect/token", r.URL.Path)
		require.NoError(t, r.ParseForm())

		req := tokenRequest{
			clientID:     r.PostForm.Get("client_id"),
			clientSecret: r.PostForm.Get("client_secret"),
			form:         r.PostForm,
			contentType:  r.Header.Get("Content-Type"),
		}
		if id, secret, ok := r.BasicAuth(); ok {
			req.clientID, req.clientSecret = id, secret
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "x", "token_type": "Bearer", "expires_in": 300})
	}))
	t.Cleanup(srv.Close)

	g := idp.NewPasswordGrant(idp.GrantConfig{
		BaseURL:              srv.URL + "/",
		PasswordClientID:     "mfa-login-nootp",
		PasswordClientSecret: "pw-secret",
		OTPClientID:          "mfa-login",
		OTPClientSecret:      "otp-secret",
		Timeout:              time.Second,
	})
	ctx := context.Background()
	require.Equal(t, domain.OutcomeAccepted, g.CheckPassword(ctx, "acme", "alice", "pw").Kind)
	require.True(t, g.CheckPasswordWithTOTP(ctx, "acme", "alice", "pw", "123456"))

	require.Len(t, seen, 2)

	password := seen[0]
	require.Equal(t, "application/x-www-form-urlencoded", password.contentType)
	require.Equal(t, "mfa-login-nootp", password.clientID)
	require.Equal(t, "pw-secret", password.clientSecret)
	require.Equal(t, "password", password.form.Get("grant_type"))
	require.Equal(t, "alice", password.form.Get("username"))
	require.Equal(t, "openid", password.form.Get("scope"))
	require.Empty(t, password.form.Get("totp"))

	otp := seen[1]
	require.Equal(t, "mfa-login", otp.clientID)
	require.Equal(t, "otp-secret", otp.clientSecret)
	require.Equal(t, "password", otp.form.Get("grant_type"))
	require.Equal(t, "openid", otp.form.Get("scope"))
	require.Equal(t, "123456", otp.form.Get("totp"))
}

func TestPasswordGrant_TransportFailureIsOther(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	g := newGrant(srv.URL, 20*time.Millisecond)

	got := g.CheckPassword(context.Background(), "acme", "alice", "pw")
	require.Equal(t, domain.OutcomeOther, got.Kind)
	require.False(t, g.CheckPasswordWithTOTP(context.Background(), "acme", "alice", "pw", "123456"))
}

func TestPasswordGrant_ProviderDown(t *testing.T) {
	kc := idptest.New(t)
	kc.AddUser("acme", idptest.User{Username: "alice", Password: "pw"})
	kc.DownTokens = true

	g := newGrant(kc.URL(), time.Second)
	got := g.CheckPassword(context.Background(), "acme", "alice", "pw")
	require.Equal(t, domain.OutcomeOther, got.Kind)
}
