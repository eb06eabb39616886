package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/idp"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store/drivers/memory"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store/drivers/sqlite"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store/storetest"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
)

var errBoom = errors.New("boom")

type fakeAccount struct {
	id       string
	password string
	state    domain.AccountState
	creds    []string
}

// fakeAdmin is an in-memory identity provider admin API.
type fakeAdmin struct {
	mu       sync.Mutex
	realms   map[string]map[string]*fakeAccount // realm -> username -> account
	emails   []string                           // triggered "accountID:action"
	realmErr error
	updErr   error
	credErr  error
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{realms: map[string]map[string]*fakeAccount{}}
}

func (f *fakeAdmin) add(realm, username, password string, state domain.AccountState, creds ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.realms[realm] == nil {
		f.realms[realm] = map[string]*fakeAccount{}
	}
	state.ID = "id-" + username
	state.Username = username
	f.realms[realm][username] = &fakeAccount{id: state.ID, password: password, state: state, creds: creds}
	return state.ID
}

func (f *fakeAdmin) byID(realm, id string) *fakeAccount {
	for _, a := range f.realms[realm] {
		if a.id == id {
			return a
		}
	}
	return nil
}

func (f *fakeAdmin) FindRealm(_ context.Context, realm string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.realmErr != nil {
		return f.realmErr
	}
	if _, ok := f.realms[realm]; !ok {
		return idp.ErrRealmNotFound
	}
	return nil
}

func (f *fakeAdmin) FindUserByUsername(_ context.Context, realm, username string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.realms[realm][username]
	if !ok {
		return "", idp.ErrUserNotFound
	}
	return a.id, nil
}

func (f *fakeAdmin) GetUserProfile(_ context.Context, realm, accountID string) (domain.AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.byID(realm, accountID)
	if a == nil {
		return domain.AccountState{}, idp.ErrUserNotFound
	}
	s := a.state
	s.RequiredActions = slices.Clone(s.RequiredActions)
	return s, nil
}

func (f *fakeAdmin) ListCredentials(_ context.Context, realm, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credErr != nil {
		return nil, f.credErr
	}
	a := f.byID(realm, accountID)
	if a == nil {
		return nil, idp.ErrUserNotFound
	}
	return slices.Clone(a.creds), nil
}

func (f *fakeAdmin) SetRequiredActions(_ context.Context, realm, accountID string, actions []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updErr != nil {
		return f.updErr
	}
	a := f.byID(realm, accountID)
	if a == nil {
		return idp.ErrUserNotFound
	}
	a.state.RequiredActions = slices.Clone(actions)
	return nil
}

func (f *fakeAdmin) SetEmail(_ context.Context, realm, accountID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updErr != nil {
		return f.updErr
	}
	a := f.byID(realm, accountID)
	if a == nil {
		return idp.ErrUserNotFound
	}
	a.state.Email = email
	a.state.EmailVerified = false
	return nil
}

func (f *fakeAdmin) TriggerEmailAction(_ context.Context, realm, accountID, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updErr != nil {
		return f.updErr
	}
	if f.byID(realm, accountID) == nil {
		return idp.ErrUserNotFound
	}
	f.emails = append(f.emails, accountID+":"+action)
	return nil
}

func (f *fakeAdmin) account(realm, username string) fakeAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.realms[realm][username]
}

func (f *fakeAdmin) triggered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.emails)
}

// fakeChecker answers password grants from the fake admin's accounts.
type fakeChecker struct {
	admin    *fakeAdmin
	outcome  *domain.LoginOutcome // overrides the computed outcome when set
	totpCode string
	calls    int
}

func (c *fakeChecker) CheckPassword(_ context.Context, realm, username, password string) domain.LoginOutcome {
	c.calls++
	if c.outcome != nil {
		return *c.outcome
	}
	c.admin.mu.Lock()
	defer c.admin.mu.Unlock()
	a, ok := c.admin.realms[realm][username]
	if !ok || a.password != password {
		return domain.LoginOutcome{Kind: domain.OutcomeBadPassword}
	}
	return domain.LoginOutcome{Kind: domain.OutcomeAccepted}
}

func (c *fakeChecker) CheckPasswordWithTOTP(_ context.Context, realm, username, password, code string) bool {
	c.admin.mu.Lock()
	defer c.admin.mu.Unlock()
	a, ok := c.admin.realms[realm][username]
	return ok && a.password == password && code != "" && code == c.totpCode
}

type fakeSMS struct {
	mu      sync.Mutex
	sent    []string
	code    string
	sendErr error
	chkErr  error
}

func (s *fakeSMS) Send(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, phone)
	return nil
}

func (s *fakeSMS) Check(_ context.Context, _ string, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chkErr != nil {
		return false, s.chkErr
	}
	return code == s.code, nil
}

type fakeSender struct {
	mu    sync.Mutex
	codes map[string]string // to -> last code
	err   error
}

func (s *fakeSender) SendOTP(_ context.Context, to, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = map[string]string{}
	}
	s.codes[to] = code
	return s.err
}

func (s *fakeSender) last(to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[to]
}

type fakeBrowser struct {
	subject     string
	exchangeErr error
	exchanged   []string // realm:code
}

func (b *fakeBrowser) AuthURL(realm, state, nonce, loginHint string) string {
	return "https://idp.test/realms/" + realm + "/auth?state=" + state + "&nonce=" + nonce + "&login_hint=" + loginHint
}

func (b *fakeBrowser) Exchange(_ context.Context, realm, code string) (*oauth2.Token, error) {
	b.exchanged = append(b.exchanged, realm+":"+code)
	if b.exchangeErr != nil {
		return nil, b.exchangeErr
	}
	return (&oauth2.Token{AccessToken: "at"}).WithExtra(map[string]any{"id_token": "nonce:" + code}), nil
}

// VerifyIDToken accepts a token whose code was minted as "<nonce>".
func (b *fakeBrowser) VerifyIDToken(_ context.Context, _ string, tok *oauth2.Token, nonce string) (string, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw != "nonce:"+nonce {
		return "", idp.ErrNonceMismatch
	}
	return b.subject, nil
}

// harness wires every service over fakes and a memory attempt store.
type harness struct {
	clock    *storetest.Clock
	attempts *memory.Store
	events   *sqlite.Store
	admin    *fakeAdmin
	checker  *fakeChecker
	sms      *fakeSMS
	sender   *fakeSender
	browser  *fakeBrowser
	verifier jwtx.Verifier

	login    *LoginService
	email    *EmailOTPService
	totp     *TOTPService
	smsSvc   *SMSOTPService
	profile  *ProfileService
	finalize *Finalizer
}

const testIssuer = "mfagate-test"

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := storetest.NewClock()
	attempts := memory.New(storetest.TTL)
	attempts.Now = clock.Now

	events, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, events.ApplyMigrations())
	t.Cleanup(func() { _ = events.Close() })

	secret := []byte("0123456789abcdef0123456789abcdef")
	signer, err := jwtx.NewSignerHS256("test", secret)
	require.NoError(t, err)

	admin := newFakeAdmin()
	h := &harness{
		clock:    clock,
		attempts: attempts,
		events:   events,
		admin:    admin,
		checker:  &fakeChecker{admin: admin},
		sms:      &fakeSMS{},
		sender:   &fakeSender{},
		browser:  &fakeBrowser{},
		verifier: jwtx.NewVerifierHS256(secret, testIssuer),
	}

	audit := &Audit{Events: events, Now: clock.Now}
	resolver := &Resolver{Admin: admin}
	h.finalize = &Finalizer{Attempts: attempts, Signer: signer, Issuer: testIssuer, TTL: time.Hour, Audit: audit, Now: time.Now}

	h.login = &LoginService{Admin: admin, Credentials: h.checker, Attempts: attempts, Resolver: resolver, Audit: audit}
	h.email = &EmailOTPService{Attempts: attempts, Resolver: resolver, Sender: h.sender, Finalizer: h.finalize, Audit: audit, Now: clock.Now}
	h.totp = &TOTPService{Attempts: attempts, Admin: admin, Resolver: resolver, Credentials: h.checker, Browser: h.browser, Finalizer: h.finalize, Audit: audit, Now: clock.Now}
	h.smsSvc = &SMSOTPService{Attempts: attempts, Resolver: resolver, SMS: h.sms, Finalizer: h.finalize, Audit: audit}
	h.profile = &ProfileService{Attempts: attempts, Admin: admin, Resolver: resolver}
	return h
}

// startLogin seeds alice in acme with state and returns her attempt id.
func (h *harness) startLogin(t *testing.T, state domain.AccountState, creds ...string) string {
	t.Helper()
	h.admin.add("acme", "alice", "pw", state, creds...)
	ch, err := h.login.StartLogin(context.Background(), "acme", "alice", "pw")
	require.NoError(t, err)
	return ch.LoginAttemptID
}
