package app

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Sweep interval for expired attempts (default: 1m)

	KeycloakURL           string // Identity provider base URL, without /auth
	KeycloakAdminRealm    string // Realm the admin account lives in (default: master)
	KeycloakAdminClientID string // Admin client (default: admin-cli)
	KeycloakAdminSecret   string // Optional: client-credentials admin login
	KeycloakAdminUsername string // Admin password login
	KeycloakAdminPassword string
	LoginClientID         string // Direct-grant client requiring the OTP step (default: mfa-login)
	LoginClientSecret     string
	LoginNoOTPClientID    string // Direct-grant client checking the password only (default: mfa-login-nootp)
	LoginNoOTPSecret      string
	BrowserClientID       string // Authorization-code client for TOTP enrollment
	BrowserClientSecret   string
	BrowserRedirectURI    string
	AppURL                string        // Where the TOTP callback sends the browser
	ProviderTimeout       time.Duration // Bound for every outbound provider call (default: 10s)

	AttemptTTL    time.Duration // Absolute attempt lifetime (default: 15m)
	AttemptStore  string        // memory or redis (default: memory)
	RedisURL      string
	AttemptSealer []byte // Optional: key material for sealing retained passwords in redis

	TokenAlgorithm      string        // HS256 or EdDSA (default: HS256)
	TokenSecret         []byte        // Required for HS256
	TokenPrivateKeyFile string        // Optional: PKCS8 PEM Ed25519 key; generated if unset
	TokenIssuer         string        // iss claim (default: mfagate)
	TokenTTL            time.Duration // Final token lifetime (default: 60m)

	SMTPHost               string // host:port; email codes are only logged when unset
	SMTPUsername           string
	SMTPPassword           string
	SMTPFrom               string
	SMTPInsecureSkipVerify bool

	TwilioAccountSID       string // SMS is unavailable unless all three are set
	TwilioAuthToken        string
	TwilioVerifyServiceSID string

	AuditDatabaseFile string        // SQLite audit trail (default: mfagate.db)
	AuditRetention    time.Duration // Event retention (default: 30 days)

	CORSAllowedOrigins string // Comma separated list
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Minute),

		KeycloakURL:           getEnvOrDefault("KEYCLOAK_URL", "http://localhost:8180"),
		KeycloakAdminRealm:    getEnvOrDefault("KEYCLOAK_ADMIN_REALM", "master"),
		KeycloakAdminClientID: getEnvOrDefault("KEYCLOAK_ADMIN_CLIENT_ID", "admin-cli"),
		KeycloakAdminSecret:   os.Getenv("KEYCLOAK_ADMIN_CLIENT_SECRET"),
		KeycloakAdminUsername: os.Getenv("KEYCLOAK_ADMIN_USERNAME"),
		KeycloakAdminPassword: os.Getenv("KEYCLOAK_ADMIN_PASSWORD"),
		LoginClientID:         getEnvOrDefault("LOGIN_CLIENT_ID", "mfa-login"),
		LoginClientSecret:     os.Getenv("LOGIN_CLIENT_SECRET"),
		LoginNoOTPClientID:    getEnvOrDefault("LOGIN_NOOTP_CLIENT_ID", "mfa-login-nootp"),
		LoginNoOTPSecret:      os.Getenv("LOGIN_NOOTP_CLIENT_SECRET"),
		BrowserClientID:       getEnvOrDefault("BROWSER_CLIENT_ID", "mfa-browser"),
		BrowserClientSecret:   os.Getenv("BROWSER_CLIENT_SECRET"),
		BrowserRedirectURI:    getEnvOrDefault("BROWSER_REDIRECT_URI", "http://localhost:8080/v1/auth/mfa/totp/callback"),
		AppURL:                getEnvOrDefault("APP_URL", "http://localhost:4200/"),
		ProviderTimeout:       getEnvDurationOrDefault("PROVIDER_TIMEOUT", 10*time.Second),

		AttemptTTL:   getEnvDurationOrDefault("ATTEMPT_TTL", 15*time.Minute),
		AttemptStore: strings.ToLower(getEnvOrDefault("ATTEMPT_STORE", "memory")),
		RedisURL:     getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),

		TokenAlgorithm:      getEnvOrDefault("TOKEN_ALGORITHM", "HS256"),
		TokenPrivateKeyFile: os.Getenv("TOKEN_PRIVATE_KEY_FILE"),
		TokenIssuer:         getEnvOrDefault("TOKEN_ISSUER", "mfagate"),
		TokenTTL:            getEnvDurationOrDefault("TOKEN_TTL", 60*time.Minute),

		SMTPHost:               os.Getenv("SMTP_HOST"),
		SMTPUsername:           os.Getenv("SMTP_USERNAME"),
		SMTPPassword:           os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:               getEnvOrDefault("SMTP_FROM", "no-reply@localhost"),
		SMTPInsecureSkipVerify: getEnvBoolOrDefault("SMTP_INSECURE_SKIP_VERIFY", false),

		TwilioAccountSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:        os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioVerifyServiceSID: os.Getenv("TWILIO_VERIFY_SERVICE_SID"),

		AuditDatabaseFile: getEnvOrDefault("AUDIT_DATABASE_FILE", "mfagate.db"),
		AuditRetention:    getEnvDurationOrDefault("AUDIT_RETENTION", 30*24*time.Hour),

		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:4200"),
	}

	var err error
	if cfg.TokenSecret, err = parseSecret(os.Getenv("TOKEN_SECRET")); err != nil {
		return Config{}, fmt.Errorf("TOKEN_SECRET: %w", err)
	}
	if cfg.AttemptSealer, err = parseSecret(os.Getenv("ATTEMPT_SEAL_SECRET")); err != nil {
		return Config{}, fmt.Errorf("ATTEMPT_SEAL_SECRET: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the application cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.TokenAlgorithm {
	case "HS256":
		if len(c.TokenSecret) == 0 {
			errs = append(errs, errors.New("TOKEN_SECRET is required for HS256"))
		}
	case "EdDSA":
	default:
		errs = append(errs, fmt.Errorf("unsupported TOKEN_ALGORITHM %q", c.TokenAlgorithm))
	}

	switch c.AttemptStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported ATTEMPT_STORE %q", c.AttemptStore))
	}

	if c.AttemptTTL <= 0 {
		errs = append(errs, errors.New("ATTEMPT_TTL must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.LoginClientID == "" || c.LoginNoOTPClientID == "" {
		errs = append(errs, errors.New("LOGIN_CLIENT_ID and LOGIN_NOOTP_CLIENT_ID are required"))
	} else if c.LoginClientID == c.LoginNoOTPClientID {
		errs = append(errs, errors.New("LOGIN_CLIENT_ID and LOGIN_NOOTP_CLIENT_ID must name different clients"))
	}
	if c.KeycloakAdminSecret == "" && c.KeycloakAdminUsername == "" {
		errs = append(errs, errors.New("KEYCLOAK_ADMIN_CLIENT_SECRET or KEYCLOAK_ADMIN_USERNAME is required"))
	}

	return errors.Join(errs...)
}

// SMSConfigured reports whether every Twilio setting is present.
func (c Config) SMSConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioVerifyServiceSID != ""
}

// parseSecret reads raw secret text, or base64 after a "base64:" prefix.
func parseSecret(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if enc, ok := strings.CutPrefix(value, "base64:"); ok {
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
		return b, nil
	}
	return []byte(value), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
