//go:build e2e

package keycloak_test

import (
	"context"
	"encoding/base32"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/idp"
)

/*
 * Shared Keycloak container and helpers for the end-to-end tests that run
 * the idp package against a real provider. The acme realm is imported from
 * testdata; the password-only direct-grant flow is built through the admin
 * API once the container is up.
 */

const (
	keycloakImage = "quay.io/keycloak/keycloak:26.0"

	adminRealm    = "master"
	adminClientID = "admin-cli"
	adminUsername = "admin"
	adminPassword = "admin-password"

	realm             = "acme"
	otpClientID       = "mfa-login"
	passwordClientID  = "mfa-login-nootp"
	passwordFlowAlias = "direct-grant-password-only"

	// carolOTPSecret is the raw value of carol's imported otp credential.
	carolOTPSecret = "mfagate-e2e-otp-secret"
)

var (
	startOnce sync.Once
	container testcontainers.Container
	baseURL   string
	startErr  error
)

// TestMain stops the shared container after all tests complete.
func TestMain(m *testing.M) {
	exitCode := m.Run()

	if container != nil {
		fmt.Fprintf(os.Stdout, "Stopping Keycloak container...")
		if err := testcontainers.TerminateContainer(container); err != nil {
			fmt.Fprintf(os.Stderr, "\nfailed to terminate container: %v\n", err)
		}
		fmt.Fprintf(os.Stdout, " done\n")
	}

	os.Exit(exitCode)
}

// keycloakURL starts the shared container on first use and returns its base
// URL. Tests are skipped in short mode or without a container runtime.
func keycloakURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("keycloak end-to-end tests skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	startOnce.Do(func() {
		baseURL, startErr = startKeycloak(context.Background())
	})
	require.NoError(t, startErr)
	return baseURL
}

func startKeycloak(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        keycloakImage,
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"KC_BOOTSTRAP_ADMIN_USERNAME": adminUsername,
			"KC_BOOTSTRAP_ADMIN_PASSWORD": adminPassword,
		},
		Files: []testcontainers.ContainerFile{{
			HostFilePath:      "testdata/acme-realm.json",
			ContainerFilePath: "/opt/keycloak/data/import/acme-realm.json",
			FileMode:          0o644,
		}},
		Cmd: []string{"start-dev", "--import-realm"},
		WaitingFor: wait.ForHTTP("/realms/" + realm + "/.well-known/openid-configuration").
			WithPort("8080/tcp").
			WithStartupTimeout(3 * time.Minute),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	container = c
	if err != nil {
		return "", fmt.Errorf("failed to start keycloak: %w", err)
	}

	mappedPort, err := c.MappedPort(ctx, "8080")
	if err != nil {
		return "", fmt.Errorf("failed to get mapped port: %w", err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get host: %w", err)
	}
	url := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	if err := bindPasswordOnlyFlow(ctx, url); err != nil {
		return "", err
	}
	return url, nil
}

// bindPasswordOnlyFlow creates a direct-grant flow of username and password
// validation and binds it to the password-only client.
func bindPasswordOnlyFlow(ctx context.Context, url string) error {
	kc := gocloak.NewClient(url)
	jwt, err := kc.LoginAdmin(ctx, adminUsername, adminPassword, adminRealm)
	if err != nil {
		return fmt.Errorf("failed to log in as admin: %w", err)
	}
	token := jwt.AccessToken

	err = kc.CreateAuthenticationFlow(ctx, token, realm, gocloak.AuthenticationFlowRepresentation{
		Alias:       gocloak.StringP(passwordFlowAlias),
		Description: gocloak.StringP("Direct grant without the OTP step"),
		ProviderID:  gocloak.StringP("basic-flow"),
		TopLevel:    gocloak.BoolP(true),
		BuiltIn:     gocloak.BoolP(false),
	})
	if err != nil {
		return fmt.Errorf("failed to create flow: %w", err)
	}

	for _, provider := range []string{"direct-grant-validate-username", "direct-grant-validate-password"} {
		err := kc.CreateAuthenticationExecution(ctx, token, realm, passwordFlowAlias,
			gocloak.CreateAuthenticationExecutionRepresentation{Provider: gocloak.StringP(provider)})
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", provider, err)
		}
	}

	executions, err := kc.GetAuthenticationExecutions(ctx, token, realm, passwordFlowAlias)
	if err != nil {
		return fmt.Errorf("failed to list executions: %w", err)
	}
	for _, e := range executions {
		e.Requirement = gocloak.StringP("REQUIRED")
		if err := kc.UpdateAuthenticationExecution(ctx, token, realm, passwordFlowAlias, *e); err != nil {
			return fmt.Errorf("failed to require execution: %w", err)
		}
	}

	flows, err := kc.GetAuthenticationFlows(ctx, token, realm)
	if err != nil {
		return fmt.Errorf("failed to list flows: %w", err)
	}
	var flowID string
	for _, f := range flows {
		if gocloak.PString(f.Alias) == passwordFlowAlias {
			flowID = gocloak.PString(f.ID)
		}
	}
	if flowID == "" {
		return fmt.Errorf("flow %q not found", passwordFlowAlias)
	}

	clients, err := kc.GetClients(ctx, token, realm, gocloak.GetClientsParams{ClientID: gocloak.StringP(passwordClientID)})
	if err != nil {
		return fmt.Errorf("failed to find client: %w", err)
	}
	if len(clients) != 1 {
		return fmt.Errorf("expected one %s client, got %d", passwordClientID, len(clients))
	}
	client := *clients[0]
	client.AuthenticationFlowBindingOverrides = &map[string]string{"direct_grant": flowID}
	if err := kc.UpdateClient(ctx, token, realm, client); err != nil {
		return fmt.Errorf("failed to bind flow: %w", err)
	}
	return nil
}

// newGrant builds the gateway's password grant against the container.
func newGrant(url, passwordClient, otpClient string) *idp.PasswordGrant {
	return idp.NewPasswordGrant(idp.GrantConfig{
		BaseURL:          url,
		PasswordClientID: passwordClient,
		OTPClientID:      otpClient,
		Timeout:          10 * time.Second,
	})
}

func newAdmin(url string) *idp.KeycloakAdmin {
	return idp.NewKeycloakAdmin(idp.AdminConfig{
		BaseURL:  url,
		Realm:    adminRealm,
		ClientID: adminClientID,
		Username: adminUsername,
		Password: adminPassword,
		Timeout:  10 * time.Second,
	})
}

// carolCode returns the current code for carol's authenticator. Keycloak
// keys TOTP on the raw secret bytes; authenticator apps get them in base32.
func carolCode(t *testing.T) string {
	t.Helper()
	secret := base32.StdEncoding.EncodeToString([]byte(carolOTPSecret))
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a six digit code that differs from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
