package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/store/drivers/memory"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store/drivers/redis"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequiredEnv(t *testing.T) {
	t.Setenv("TOKEN_SECRET", testSecret)
	t.Setenv("KEYCLOAK_ADMIN_USERNAME", "admin")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "memory", cfg.AttemptStore)
	require.Equal(t, "HS256", cfg.TokenAlgorithm)
	require.Equal(t, "mfagate", cfg.TokenIssuer)
	require.Equal(t, 15*time.Minute, cfg.AttemptTTL)
	require.Equal(t, time.Hour, cfg.TokenTTL)
	require.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	require.Equal(t, "http://localhost:8180", cfg.KeycloakURL)
	require.Equal(t, "master", cfg.KeycloakAdminRealm)
	require.Equal(t, "admin-cli", cfg.KeycloakAdminClientID)
	require.Equal(t, "mfa-login", cfg.LoginClientID)
	require.Equal(t, "mfa-login-nootp", cfg.LoginNoOTPClientID)
	require.Equal(t, "http://localhost:4200/", cfg.AppURL)
	require.Equal(t, []byte(testSecret), cfg.TokenSecret)
	require.False(t, cfg.SMSConfigured())
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ATTEMPT_TTL", "5m")
	t.Setenv("HOUSEKEEPING_INTERVAL", "2")
	t.Setenv("ATTEMPT_STORE", "Redis")
	t.Setenv("TOKEN_SECRET", "base64:MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")
	t.Setenv("SMTP_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_VERIFY_SERVICE_SID", "VA1")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 5*time.Minute, cfg.AttemptTTL)
	require.Equal(t, 2*time.Minute, cfg.HousekeepingInterval)
	require.Equal(t, "redis", cfg.AttemptStore)
	require.Equal(t, []byte(testSecret), cfg.TokenSecret)
	require.True(t, cfg.SMTPInsecureSkipVerify)
	require.True(t, cfg.SMSConfigured())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"TOKEN_SECRET": ""}},
		{"bad base64", map[string]string{"TOKEN_SECRET": "base64:***"}},
		{"unknown algorithm", map[string]string{"TOKEN_ALGORITHM": "RS256"}},
		{"unknown store", map[string]string{"ATTEMPT_STORE": "etcd"}},
		{"no admin credentials", map[string]string{"KEYCLOAK_ADMIN_USERNAME": ""}},
		{"zero ttl", map[string]string{"ATTEMPT_TTL": "0s"}},
		{"one login client for both grants", map[string]string{"LOGIN_NOOTP_CLIENT_ID": "mfa-login"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestParseSecret(t *testing.T) {
	b, err := parseSecret("")
	require.NoError(t, err)
	require.Nil(t, b)

	b, err = parseSecret("plain")
	require.NoError(t, err)
	require.Equal(t, []byte("plain"), b)

	b, err = parseSecret("base64:aGk=")
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), b)
}

func testLogger() *slog.Logger {
	return slogx.New(slogx.Config{Service: "mfagate-test", Level: "error", Output: io.Discard})
}

func TestInitTokenKeys_HS256(t *testing.T) {
	cfg := Config{TokenAlgorithm: "HS256", TokenSecret: []byte(testSecret), TokenIssuer: "iss"}

	k, err := initTokenKeys(cfg, testLogger())
	require.NoError(t, err)
	require.Nil(t, k.keys)

	tok, err := k.signer.Sign(jwtx.NewSessionClaims("sub", "acme", "alice", nil, time.Minute, "iss", time.Now()))
	require.NoError(t, err)
	claims, err := k.verifier.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "sub", claims.Subject)

	_, err = initTokenKeys(Config{TokenAlgorithm: "HS256", TokenSecret: []byte("short")}, testLogger())
	require.Error(t, err)
}

func TestInitTokenKeys_EdDSA(t *testing.T) {
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, pemKey, 0o600))

	for name, file := range map[string]string{"from file": path, "ephemeral": ""} {
		t.Run(name, func(t *testing.T) {
			cfg := Config{TokenAlgorithm: "EdDSA", TokenPrivateKeyFile: file, TokenIssuer: "iss"}
			k, err := initTokenKeys(cfg, testLogger())
			require.NoError(t, err)
			require.NotNil(t, k.keys)
			require.Len(t, k.keys.PublicJWKS().Keys, 1)

			tok, err := k.signer.Sign(jwtx.NewSessionClaims("sub", "acme", "alice", nil, time.Minute, "iss", time.Now()))
			require.NoError(t, err)
			_, err = k.verifier.Verify(tok)
			require.NoError(t, err)
		})
	}

	_, err = initTokenKeys(Config{TokenAlgorithm: "EdDSA", TokenPrivateKeyFile: filepath.Join(t.TempDir(), "missing.pem")}, testLogger())
	require.Error(t, err)
}

func testConfig(t *testing.T) Config {
	return Config{
		Env:                   "test",
		LogLevel:              "error",
		Port:                  0,
		ShutdownGracePeriod:   time.Second,
		HousekeepingInterval:  time.Minute,
		KeycloakURL:           "http://127.0.0.1:1",
		KeycloakAdminRealm:    "master",
		KeycloakAdminClientID: "admin-cli",
		KeycloakAdminUsername: "admin",
		LoginClientID:         "mfa-login",
		LoginNoOTPClientID:    "mfa-login-nootp",
		BrowserClientID:       "mfa-browser",
		AppURL:                "http://app.test/",
		ProviderTimeout:       time.Second,
		AttemptTTL:            15 * time.Minute,
		AttemptStore:          "memory",
		TokenAlgorithm:        "EdDSA",
		TokenIssuer:           "mfagate",
		TokenTTL:              time.Hour,
		AuditDatabaseFile:     filepath.Join(t.TempDir(), "audit.db"),
		AuditRetention:        time.Hour,
		CORSAllowedOrigins:    "http://app.test",
	}
}

func TestNew_WiresRoutes(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	app.housekeepingService.Start()
	t.Cleanup(func() { require.NoError(t, app.Shutdown()) })

	require.IsType(t, &memory.Store{}, app.attempts)

	for _, path := range []string{"/livez", "/.well-known/jwks.json"} {
		rr := httptest.NewRecorder()
		app.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rr.Code, path)
	}

	// Readiness stays up with the provider unreachable.
	rr := httptest.NewRecorder()
	app.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"provider":"error"`)
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.AttemptStore = "redis"
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	_, err := New(cfg)
	require.Error(t, err)
}

func TestNew_RedisAttemptStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.AttemptStore = "redis"
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	cfg.AttemptSealer = []byte("shared sealing secret")

	app, err := New(cfg)
	require.NoError(t, err)
	app.housekeepingService.Start()
	t.Cleanup(func() { require.NoError(t, app.Shutdown()) })

	require.IsType(t, &redis.Store{}, app.attempts)
}
