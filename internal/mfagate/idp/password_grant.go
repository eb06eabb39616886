package idp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// GrantConfig names the two direct-grant clients. Keycloak binds the
// direct-grant flow per client, so the password check and the
// password+code check go through different clients.
type GrantConfig struct {
	BaseURL string

	// PasswordClientID is bound to a flow that validates the password only.
	PasswordClientID     string
	PasswordClientSecret string // empty for a public client

	// OTPClientID is bound to a flow that requires the authenticator code.
	OTPClientID     string
	OTPClientSecret string

	Timeout time.Duration
}

// PasswordGrant checks credentials with the resource-owner password grant
// against a realm's token endpoint. The tokens it receives are discarded.
type PasswordGrant struct {
	cfg      GrantConfig
	client   *http.Client
	keycloak *gocloak.GoCloak
}

func NewPasswordGrant(cfg GrantConfig) *PasswordGrant {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	kc := gocloak.NewClient(cfg.BaseURL)
	if cfg.Timeout > 0 {
		kc.RestyClient().SetTimeout(cfg.Timeout)
	}
	return &PasswordGrant{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		keycloak: kc,
	}
}

func (g *PasswordGrant) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, g.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (g *PasswordGrant) passwordConfig(realm string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.cfg.PasswordClientID,
		ClientSecret: g.cfg.PasswordClientSecret,
		Scopes:       []string{oidc.ScopeOpenID},
		Endpoint: oauth2.Endpoint{
			TokenURL:  OIDCURL(g.cfg.BaseURL, url.PathEscape(realm), "token"),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// CheckPassword submits username and password through the password-only
// client. Timeouts and transport failures are reported as OutcomeOther.
func (g *PasswordGrant) CheckPassword(ctx context.Context, realm, username, password string) domain.LoginOutcome {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	_, err := g.passwordConfig(realm).PasswordCredentialsToken(ctx, username, password)

	var re *oauth2.RetrieveError
	if err != nil && !errors.As(err, &re) {
		slogx.FromContext(ctx).Warn("password grant failed", "realm", realm, "err", err)
	}
	return ClassifyError(err)
}

// CheckPasswordWithTOTP submits the password and an authenticator code in
// one grant through the OTP client. Only an issued token counts as success.
func (g *PasswordGrant) CheckPasswordWithTOTP(ctx context.Context, realm, username, password, code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	opts := gocloak.TokenOptions{
		ClientID:  gocloak.StringP(g.cfg.OTPClientID),
		GrantType: gocloak.StringP("password"),
		Username:  gocloak.StringP(username),
		Password:  gocloak.StringP(password),
		Totp:      gocloak.StringP(code),
		Scope:     gocloak.StringP(oidc.ScopeOpenID),
	}
	if g.cfg.OTPClientSecret != "" {
		opts.ClientSecret = gocloak.StringP(g.cfg.OTPClientSecret)
	}

	if _, err := g.keycloak.GetToken(ctx, realm, opts); err != nil {
		if apiStatus(err) == 0 {
			slogx.FromContext(ctx).Warn("password+totp grant failed", "realm", realm, "err", err)
		}
		return false
	}
	return true
}
