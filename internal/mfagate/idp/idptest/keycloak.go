// Package idptest runs an in-process fake of the Keycloak endpoints the
// gateway uses: the token endpoint, realm certs, and the admin REST API.
package idptest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
)

const (
	AdminRealm    = "master"
	AdminClientID = "admin-cli"
	AdminUsername = "admin"
	AdminPassword = "admin-password"

	// PasswordClientID and OTPClientID are the direct-grant clients every
	// fake realm knows.
	PasswordClientID = "mfa-login-nootp"
	OTPClientID      = "mfa-login"

	keyID = "fake-rs256"
)

// Flow is the direct-grant authentication flow bound to a client.
type Flow int

const (
	// FlowPassword validates username and password and ignores any totp.
	FlowPassword Flow = iota
	// FlowConditionalOTP additionally requires a valid totp when the user
	// has an otp credential, like Keycloak's default direct grant.
	FlowConditionalOTP
)

// User is an account seeded into a fake realm.
type User struct {
	ID              string
	Username        string
	Password        string
	Email           string
	EmailVerified   bool
	Phone           string
	TOTPSecret      string // non-empty means an otp credential exists
	RequiredActions []string
}

// ActionEmail records an execute-actions-email request.
type ActionEmail struct {
	Realm   string
	UserID  string
	Actions []string
}

type authCode struct {
	realm  string
	userID string
	nonce  string
}

// Keycloak is the fake provider. All methods are safe for concurrent use.
type Keycloak struct {
	Server *httptest.Server

	// DownTokens makes every token request fail with 503.
	DownTokens bool

	mu           sync.Mutex
	realms       map[string]map[string]*User // realm -> user id -> user
	actionEmails []ActionEmail
	codes        map[string]authCode
	clients      map[string]Flow
	adminToken   string
	key          *rsa.PrivateKey
}

// New starts a fake provider with the admin realm and no other realms.
func New(t testing.TB) *Keycloak {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	k := &Keycloak{
		realms:     map[string]map[string]*User{AdminRealm: {}},
		codes:      make(map[string]authCode),
		clients:    map[string]Flow{PasswordClientID: FlowPassword, OTPClientID: FlowConditionalOTP},
		adminToken: uuid.NewString(),
		key:        key,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/{realm}/protocol/openid-connect/token", k.handleToken)
	mux.HandleFunc("GET /realms/{realm}/protocol/openid-connect/certs", k.handleCerts)
	mux.HandleFunc("GET /admin/realms/{realm}", k.admin(k.handleGetRealm))
	mux.HandleFunc("GET /admin/realms/{realm}/users", k.admin(k.handleListUsers))
	mux.HandleFunc("GET /admin/realms/{realm}/users/{id}", k.admin(k.handleGetUser))
	mux.HandleFunc("PUT /admin/realms/{realm}/users/{id}", k.admin(k.handleUpdateUser))
	mux.HandleFunc("GET /admin/realms/{realm}/users/{id}/credentials", k.admin(k.handleCredentials))
	mux.HandleFunc("PUT /admin/realms/{realm}/users/{id}/execute-actions-email", k.admin(k.handleActionsEmail))

	k.Server = httptest.NewServer(mux)
	t.Cleanup(k.Server.Close)
	return k
}

// URL is the provider base URL.
func (k *Keycloak) URL() string { return k.Server.URL }

// AddRealm creates an empty realm.
func (k *Keycloak) AddRealm(realm string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.realms[realm]; !ok {
		k.realms[realm] = make(map[string]*User)
	}
}

// AddUser seeds u into realm, creating the realm if needed. It returns the
// user id.
func (k *Keycloak) AddUser(realm string, u User) string {
	k.AddRealm(realm)

	k.mu.Lock()
	defer k.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.RequiredActions = slices.Clone(u.RequiredActions)
	k.realms[realm][u.ID] = &u
	return u.ID
}

// User returns a copy of the account named username.
func (k *Keycloak) User(realm, username string) (User, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	u := k.findLocked(realm, username)
	if u == nil {
		return User{}, false
	}
	cp := *u
	cp.RequiredActions = slices.Clone(u.RequiredActions)
	return cp, true
}

// SetTOTPSecret simulates the user finishing authenticator enrollment.
func (k *Keycloak) SetTOTPSecret(realm, username, secret string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if u := k.findLocked(realm, username); u != nil {
		u.TOTPSecret = secret
		u.RequiredActions = slices.DeleteFunc(u.RequiredActions, func(a string) bool {
			return a == "CONFIGURE_TOTP"
		})
	}
}

// ActionEmails returns every execute-actions-email request seen so far.
func (k *Keycloak) ActionEmails() []ActionEmail {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.actionEmails)
}

// IssueCode simulates a completed browser login and returns the
// authorization code the provider would redirect back with.
func (k *Keycloak) IssueCode(realm, username, nonce string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	u := k.findLocked(realm, username)
	if u == nil {
		return ""
	}
	code := uuid.NewString()
	k.codes[code] = authCode{realm: realm, userID: u.ID, nonce: nonce}
	return code
}

func (k *Keycloak) findLocked(realm, username string) *User {
	for _, u := range k.realms[realm] {
		if strings.EqualFold(u.Username, username) {
			return u
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOAuthError(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": desc})
}

func (k *Keycloak) writeTokens(w http.ResponseWriter, access string, extra map[string]any) {
	body := map[string]any{
		"access_token":       access,
		"token_type":         "Bearer",
		"expires_in":         300,
		"refresh_expires_in": 1800,
	}
	for key, v := range extra {
		body[key] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func (k *Keycloak) handleToken(w http.ResponseWriter, r *http.Request) {
	if k.DownTokens {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "bad form")
		return
	}

	realm := r.PathValue("realm")
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.realms[realm]; !ok {
		writeOAuthError(w, http.StatusNotFound, "Realm does not exist", "")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "client_credentials":
		k.writeTokens(w, k.adminToken, nil)

	case "password":
		username := r.PostForm.Get("username")
		password := r.PostForm.Get("password")
		clientID := requestClientID(r)

		if realm == AdminRealm && clientID == AdminClientID {
			if username != AdminUsername || password != AdminPassword {
				writeOAuthError(w, http.StatusUnauthorized, "invalid_grant", "Invalid user credentials")
				return
			}
			k.writeTokens(w, k.adminToken, nil)
			return
		}

		flow, ok := k.clients[clientID]
		if !ok {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "Invalid client or Invalid client credentials")
			return
		}
		u := k.findLocked(realm, username)
		if u == nil || u.Password != password {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_grant", "Invalid user credentials")
			return
		}
		if flow == FlowConditionalOTP && u.TOTPSecret != "" && !totp.Validate(r.PostForm.Get("totp"), u.TOTPSecret) {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_grant", "Invalid user credentials")
			return
		}
		if len(u.RequiredActions) > 0 {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Account is not fully set up")
			return
		}
		k.writeTokens(w, uuid.NewString(), nil)

	case "authorization_code":
		code, ok := k.codes[r.PostForm.Get("code")]
		delete(k.codes, r.PostForm.Get("code"))
		if !ok || code.realm != realm {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Code not valid")
			return
		}
		idToken, err := k.signIDToken(realm, r.PostForm.Get("client_id"), code)
		if err != nil {
			writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		k.writeTokens(w, uuid.NewString(), map[string]any{"id_token": idToken})

	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

// requestClientID reads the client from the form, or from basic auth for
// confidential clients.
func requestClientID(r *http.Request) string {
	if id := r.PostForm.Get("client_id"); id != "" {
		return id
	}
	id, _, _ := r.BasicAuth()
	return id
}

func (k *Keycloak) signIDToken(realm, clientID string, code authCode) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   k.Server.URL + "/realms/" + realm,
		"aud":   clientID,
		"sub":   code.userID,
		"nonce": code.nonce,
		"iat":   now.Unix(),
		"exp":   now.Add(5 * time.Minute).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = keyID
	return tok.SignedString(k.key)
}

func (k *Keycloak) handleCerts(w http.ResponseWriter, _ *http.Request) {
	pub := k.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kid": keyID,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

// admin guards admin routes with the admin bearer token and resolves the realm.
func (k *Keycloak) admin(next func(w http.ResponseWriter, r *http.Request, users map[string]*User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k.mu.Lock()
		defer k.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+k.adminToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "HTTP 401 Unauthorized"})
			return
		}
		users, ok := k.realms[r.PathValue("realm")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Realm not found."})
			return
		}
		next(w, r, users)
	}
}

func userRepresentation(u *User) map[string]any {
	rep := map[string]any{
		"id":              u.ID,
		"username":        u.Username,
		"enabled":         true,
		"emailVerified":   u.EmailVerified,
		"requiredActions": slices.Clone(u.RequiredActions),
	}
	if u.Email != "" {
		rep["email"] = u.Email
	}
	if u.Phone != "" {
		rep["attributes"] = map[string][]string{"phone_number": {u.Phone}}
	}
	return rep
}

func (k *Keycloak) handleGetRealm(w http.ResponseWriter, r *http.Request, _ map[string]*User) {
	realm := r.PathValue("realm")
	writeJSON(w, http.StatusOK, map[string]any{"id": realm, "realm": realm, "enabled": true})
}

func (k *Keycloak) handleListUsers(w http.ResponseWriter, r *http.Request, users map[string]*User) {
	want := r.URL.Query().Get("username")
	exact := r.URL.Query().Get("exact") == "true"

	out := []map[string]any{}
	for _, u := range users {
		match := strings.Contains(strings.ToLower(u.Username), strings.ToLower(want))
		if exact {
			match = strings.EqualFold(u.Username, want)
		}
		if match {
			out = append(out, userRepresentation(u))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (k *Keycloak) handleGetUser(w http.ResponseWriter, r *http.Request, users map[string]*User) {
	u, ok := users[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	writeJSON(w, http.StatusOK, userRepresentation(u))
}

func (k *Keycloak) handleUpdateUser(w http.ResponseWriter, r *http.Request, users map[string]*User) {
	u, ok := users[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}

	var rep struct {
		Email           *string   `json:"email"`
		EmailVerified   *bool     `json:"emailVerified"`
		RequiredActions *[]string `json:"requiredActions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	if rep.Email != nil {
		u.Email = *rep.Email
	}
	if rep.EmailVerified != nil {
		u.EmailVerified = *rep.EmailVerified
	}
	if rep.RequiredActions != nil {
		u.RequiredActions = slices.Clone(*rep.RequiredActions)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (k *Keycloak) handleCredentials(w http.ResponseWriter, r *http.Request, users map[string]*User) {
	u, ok := users[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	creds := []map[string]string{{"id": uuid.NewString(), "type": "password"}}
	if u.TOTPSecret != "" {
		creds = append(creds, map[string]string{"id": uuid.NewString(), "type": "otp"})
	}
	writeJSON(w, http.StatusOK, creds)
}

func (k *Keycloak) handleActionsEmail(w http.ResponseWriter, r *http.Request, users map[string]*User) {
	u, ok := users[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	var actions []string
	if err := json.NewDecoder(r.Body).Decode(&actions); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	k.actionEmails = append(k.actionEmails, ActionEmail{
		Realm:   r.PathValue("realm"),
		UserID:  u.ID,
		Actions: actions,
	})
	w.WriteHeader(http.StatusNoContent)
}

// TOTPCode returns the current authenticator code for secret.
func TOTPCode(t testing.TB, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate totp code: %v", err)
	}
	return code
}

// NewTOTPSecret returns a fresh base32 authenticator secret.
func NewTOTPSecret(t testing.TB) string {
	t.Helper()
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "fake", AccountName: "user"})
	if err != nil {
		t.Fatalf("generate totp secret: %v", err)
	}
	return key.Secret()
}
