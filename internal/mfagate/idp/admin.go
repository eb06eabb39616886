package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
)

// PhoneAttribute is the user attribute holding the SMS number.
const PhoneAttribute = "phone_number"

// CredentialTypeOTP is Keycloak's credential type for authenticator apps.
const CredentialTypeOTP = "otp"

// tokenRefreshMargin renews the admin token this long before it expires.
const tokenRefreshMargin = 30 * time.Second

// AdminConfig configures how the admin client authenticates.
type AdminConfig struct {
	BaseURL string
	Realm   string // realm the admin account lives in, usually "master"

	ClientID     string
	ClientSecret string // when set, the client-credentials grant is used

	Username string
	Password string

	Timeout time.Duration
}

// KeycloakAdmin is the admin REST capability, backed by gocloak. The admin
// access token is cached and renewed on demand.
type KeycloakAdmin struct {
	client *gocloak.GoCloak
	cfg    AdminConfig

	mu      sync.Mutex
	token   string
	expires time.Time

	// now is the clock for token caching.
	now func() time.Time
}

func NewKeycloakAdmin(cfg AdminConfig) *KeycloakAdmin {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	client := gocloak.NewClient(cfg.BaseURL)
	if cfg.Timeout > 0 {
		client.RestyClient().SetTimeout(cfg.Timeout)
	}
	return &KeycloakAdmin{client: client, cfg: cfg, now: time.Now}
}

// accessToken returns a valid admin token, logging in again when needed.
func (k *KeycloakAdmin) accessToken(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.token != "" && k.now().Before(k.expires) {
		return k.token, nil
	}

	var (
		jwt *gocloak.JWT
		err error
	)
	if k.cfg.ClientSecret != "" {
		jwt, err = k.client.LoginClient(ctx, k.cfg.ClientID, k.cfg.ClientSecret, k.cfg.Realm)
	} else {
		jwt, err = k.client.LoginAdmin(ctx, k.cfg.Username, k.cfg.Password, k.cfg.Realm)
	}
	if err != nil {
		return "", fmt.Errorf("%w: admin login: %v", ErrProvider, err)
	}

	k.token = jwt.AccessToken
	k.expires = k.now().Add(time.Duration(jwt.ExpiresIn)*time.Second - tokenRefreshMargin)
	return k.token, nil
}

// invalidate drops the cached token after the provider rejects it.
func (k *KeycloakAdmin) invalidate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.token = ""
}

// call runs fn with an admin token, retrying once with a fresh token on 401.
func (k *KeycloakAdmin) call(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	if k.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.cfg.Timeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		token, err := k.accessToken(ctx)
		if err != nil {
			return err
		}

		err = fn(ctx, token)
		if attempt == 0 && apiStatus(err) == http.StatusUnauthorized {
			k.invalidate()
			continue
		}
		return err
	}
}

func apiStatus(err error) int {
	var apiErr *gocloak.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// wrap maps gocloak errors onto idp sentinels. notFound is returned for 404.
func wrap(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && apiStatus(err) == http.StatusNotFound {
		return notFound
	}
	if errors.Is(err, ErrProvider) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}

// FindRealm returns ErrRealmNotFound when the realm does not exist.
func (k *KeycloakAdmin) FindRealm(ctx context.Context, realm string) error {
	return wrap(k.call(ctx, func(ctx context.Context, token string) error {
		_, err := k.client.GetRealm(ctx, token, realm)
		return err
	}), ErrRealmNotFound)
}

// FindUserByUsername runs an exact username search and returns the user id.
func (k *KeycloakAdmin) FindUserByUsername(ctx context.Context, realm, username string) (string, error) {
	var id string
	err := k.call(ctx, func(ctx context.Context, token string) error {
		users, err := k.client.GetUsers(ctx, token, realm, gocloak.GetUsersParams{
			Username: gocloak.StringP(username),
			Exact:    gocloak.BoolP(true),
		})
		if err != nil {
			return err
		}
		for _, u := range users {
			if u != nil && strings.EqualFold(gocloak.PString(u.Username), username) {
				id = gocloak.PString(u.ID)
				return nil
			}
		}
		return ErrUserNotFound
	})
	if errors.Is(err, ErrUserNotFound) {
		return "", err
	}
	return id, wrap(err, ErrRealmNotFound)
}

// GetUserProfile reads email, phone and pending actions. HasTOTP is left
// false; use ListCredentials for it.
func (k *KeycloakAdmin) GetUserProfile(ctx context.Context, realm, accountID string) (domain.AccountState, error) {
	var state domain.AccountState
	err := k.call(ctx, func(ctx context.Context, token string) error {
		u, err := k.client.GetUserByID(ctx, token, realm, accountID)
		if err != nil {
			return err
		}
		state = accountState(u)
		return nil
	})
	return state, wrap(err, ErrUserNotFound)
}

func accountState(u *gocloak.User) domain.AccountState {
	state := domain.AccountState{
		ID:            gocloak.PString(u.ID),
		Username:      gocloak.PString(u.Username),
		Email:         gocloak.PString(u.Email),
		EmailVerified: gocloak.PBool(u.EmailVerified),
	}
	if u.Attributes != nil {
		if phones := (*u.Attributes)[PhoneAttribute]; len(phones) > 0 {
			state.Phone = phones[0]
		}
	}
	if u.RequiredActions != nil {
		state.RequiredActions = append([]string(nil), (*u.RequiredActions)...)
	}
	return state
}

// ListCredentials returns the credential types stored for the account.
func (k *KeycloakAdmin) ListCredentials(ctx context.Context, realm, accountID string) ([]string, error) {
	var types []string
	err := k.call(ctx, func(ctx context.Context, token string) error {
		creds, err := k.client.GetCredentials(ctx, token, realm, accountID)
		if err != nil {
			return err
		}
		types = types[:0]
		for _, c := range creds {
			if c != nil && c.Type != nil {
				types = append(types, *c.Type)
			}
		}
		return nil
	})
	return types, wrap(err, ErrUserNotFound)
}

// SetRequiredActions replaces the account's required actions.
func (k *KeycloakAdmin) SetRequiredActions(ctx context.Context, realm, accountID string, actions []string) error {
	return wrap(k.call(ctx, func(ctx context.Context, token string) error {
		return k.client.UpdateUser(ctx, token, realm, gocloak.User{
			ID:              gocloak.StringP(accountID),
			RequiredActions: &actions,
		})
	}), ErrUserNotFound)
}

// SetEmail replaces the account's email and marks it unverified.
func (k *KeycloakAdmin) SetEmail(ctx context.Context, realm, accountID, email string) error {
	return wrap(k.call(ctx, func(ctx context.Context, token string) error {
		return k.client.UpdateUser(ctx, token, realm, gocloak.User{
			ID:            gocloak.StringP(accountID),
			Email:         gocloak.StringP(email),
			EmailVerified: gocloak.BoolP(false),
		})
	}), ErrUserNotFound)
}

// TriggerEmailAction asks the provider to email the user a link that runs
// action, e.g. CONFIGURE_TOTP or VERIFY_EMAIL.
func (k *KeycloakAdmin) TriggerEmailAction(ctx context.Context, realm, accountID, action string) error {
	return wrap(k.call(ctx, func(ctx context.Context, token string) error {
		return k.client.ExecuteActionsEmail(ctx, token, realm, gocloak.ExecuteActionsEmail{
			UserID:  gocloak.StringP(accountID),
			Actions: &[]string{action},
		})
	}), ErrUserNotFound)
}

// HasTOTP reports whether types includes an authenticator credential.
func HasTOTP(types []string) bool {
	for _, t := range types {
		if strings.EqualFold(t, CredentialTypeOTP) {
			return true
		}
	}
	return false
}

// Ping checks the admin credentials still work.
func (k *KeycloakAdmin) Ping(ctx context.Context) error {
	_, err := k.accessToken(ctx)
	return err
}
