package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	// ErrNoIDToken is returned when a code exchange yields no id_token.
	ErrNoIDToken = errors.New("idp: token response carried no id_token")

	// ErrNonceMismatch is returned when the id_token was minted for another request.
	ErrNonceMismatch = errors.New("idp: id_token nonce mismatch")
)

// BrowserFlow drives the authorization-code redirect the provider uses to
// enroll an authenticator app. One confidential client serves every realm.
type BrowserFlow struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
	Timeout      time.Duration

	mu        sync.Mutex
	verifiers map[string]*oidc.IDTokenVerifier
}

func NewBrowserFlow(baseURL, clientID, clientSecret, redirectURL string, timeout time.Duration) *BrowserFlow {
	return &BrowserFlow{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		HTTPClient:   &http.Client{Timeout: timeout},
		Timeout:      timeout,
	}
}

func (b *BrowserFlow) config(realm string) *oauth2.Config {
	realm = url.PathEscape(realm)
	return &oauth2.Config{
		ClientID:     b.ClientID,
		ClientSecret: b.ClientSecret,
		RedirectURL:  b.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID},
		Endpoint: oauth2.Endpoint{
			AuthURL:   OIDCURL(b.BaseURL, realm, "auth"),
			TokenURL:  OIDCURL(b.BaseURL, realm, "token"),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthURL builds the URL the user's browser opens. prompt=login forces the
// provider to run its own login, including any pending required actions.
func (b *BrowserFlow) AuthURL(realm, state, nonce, loginHint string) string {
	opts := []oauth2.AuthCodeOption{
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "login"),
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	return b.config(realm).AuthCodeURL(state, opts...)
}

func (b *BrowserFlow) clientContext(ctx context.Context) context.Context {
	if b.HTTPClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, b.HTTPClient)
}

func (b *BrowserFlow) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.Timeout > 0 {
		return context.WithTimeout(ctx, b.Timeout)
	}
	return context.WithCancel(ctx)
}

// Exchange redeems an authorization code for the realm's tokens.
func (b *BrowserFlow) Exchange(ctx context.Context, realm, code string) (*oauth2.Token, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	tok, err := b.config(realm).Exchange(b.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange code: %v", ErrProvider, err)
	}
	return tok, nil
}

// VerifyIDToken checks the id_token carried by tok against the realm's
// keys and the expected nonce. It returns the token subject.
func (b *BrowserFlow) VerifyIDToken(ctx context.Context, realm string, tok *oauth2.Token, nonce string) (string, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return "", ErrNoIDToken
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	idt, err := b.verifier(realm).Verify(b.clientContext(ctx), raw)
	if err != nil {
		return "", fmt.Errorf("%w: verify id_token: %v", ErrProvider, err)
	}
	if idt.Nonce != nonce {
		return "", ErrNonceMismatch
	}
	return idt.Subject, nil
}

// verifier returns the cached id_token verifier for realm. Its key set
// fetches the realm's certs lazily and caches them.
func (b *BrowserFlow) verifier(realm string) *oidc.IDTokenVerifier {
	b.mu.Lock()
	defer b.mu.Unlock()

	if v, ok := b.verifiers[realm]; ok {
		return v
	}
	if b.verifiers == nil {
		b.verifiers = make(map[string]*oidc.IDTokenVerifier)
	}

	escaped := url.PathEscape(realm)
	keys := oidc.NewRemoteKeySet(b.clientContext(context.Background()), OIDCURL(b.BaseURL, escaped, "certs"))
	v := oidc.NewVerifier(RealmURL(b.BaseURL, escaped), keys, &oidc.Config{ClientID: b.ClientID})
	b.verifiers[realm] = v
	return v
}
