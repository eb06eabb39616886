package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	httpapi "github.com/aussiebroadwan/mfagate/internal/mfagate/http"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/idp"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/notify"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/service"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store/drivers/memory"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store/drivers/redis"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store/drivers/sqlite"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	sealInfo = "mfagate attempt password v1"
)

// Application encapsulates the service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	attempts store.Attempts
	events   *sqlite.Store
	keys     *tokenKeys

	// Identity provider and delivery channels
	admin   *idp.KeycloakAdmin
	grant   *idp.PasswordGrant
	browser *idp.BrowserFlow
	email   *notify.Dispatcher
	sms     service.SMSVerifier

	// Services
	loginService        *service.LoginService
	emailService        *service.EmailOTPService
	totpService         *service.TOTPService
	smsService          *service.SMSOTPService
	profileService      *service.ProfileService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "mfagate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	keys, err := initTokenKeys(app.cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token keys: %w", err)
	}
	app.keys = keys

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initAttemptStore(context.Background()); err != nil {
		_ = app.events.Close()
		return nil, err
	}

	app.initProvider()
	app.initDelivery()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.email.Start()
	app.housekeepingService.Start()

	app.logger.Info("mfagate starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"attempt_store", app.cfg.AttemptStore,
		"token_algorithm", app.cfg.TokenAlgorithm,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down mfagate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	// Drain queued emails before the stores go away
	app.email.Stop()

	if err := app.attempts.Close(); err != nil {
		app.logger.Error("error closing attempt store", "error", err)
	}
	if err := app.events.Close(); err != nil {
		app.logger.Error("error closing audit database", "error", err)
		return err
	}

	app.logger.Info("mfagate stopped")
	return nil
}

// initDatabase opens the audit database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.AuditDatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize audit database: %w", err)
	}
	app.events = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply audit database migrations: %w", err)
	}

	app.logger.Info("audit database migrations applied successfully")
	return nil
}

// initAttemptStore selects the in-process or the shared redis attempt store.
func (app *Application) initAttemptStore(ctx context.Context) error {
	if app.cfg.AttemptStore != "redis" {
		app.attempts = memory.New(app.cfg.AttemptTTL)
		return nil
	}

	var (
		sealer *cryptox.Sealer
		err    error
	)
	if len(app.cfg.AttemptSealer) > 0 {
		sealer, err = cryptox.NewSealer(app.cfg.AttemptSealer, sealInfo)
	} else {
		// Passwords sealed by one replica cannot be opened by another
		app.logger.Warn("ATTEMPT_SEAL_SECRET not set, using a per-process sealing key")
		sealer, err = cryptox.NewRandomSealer(sealInfo)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize attempt sealer: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, app.cfg.ProviderTimeout)
	defer cancel()
	st, err := redis.Open(pingCtx, app.cfg.RedisURL, sealer, app.cfg.AttemptTTL)
	if err != nil {
		return fmt.Errorf("failed to connect attempt store: %w", err)
	}
	app.attempts = st
	return nil
}

// initProvider builds the Keycloak collaborators.
func (app *Application) initProvider() {
	app.admin = idp.NewKeycloakAdmin(idp.AdminConfig{
		BaseURL:      app.cfg.KeycloakURL,
		Realm:        app.cfg.KeycloakAdminRealm,
		ClientID:     app.cfg.KeycloakAdminClientID,
		ClientSecret: app.cfg.KeycloakAdminSecret,
		Username:     app.cfg.KeycloakAdminUsername,
		Password:     app.cfg.KeycloakAdminPassword,
		Timeout:      app.cfg.ProviderTimeout,
	})
	app.grant = idp.NewPasswordGrant(idp.GrantConfig{
		BaseURL:              app.cfg.KeycloakURL,
		PasswordClientID:     app.cfg.LoginNoOTPClientID,
		PasswordClientSecret: app.cfg.LoginNoOTPSecret,
		OTPClientID:          app.cfg.LoginClientID,
		OTPClientSecret:      app.cfg.LoginClientSecret,
		Timeout:              app.cfg.ProviderTimeout,
	})
	app.browser = idp.NewBrowserFlow(
		app.cfg.KeycloakURL,
		app.cfg.BrowserClientID,
		app.cfg.BrowserClientSecret,
		app.cfg.BrowserRedirectURI,
		app.cfg.ProviderTimeout,
	)
}

// initDelivery selects the email and SMS transports.
func (app *Application) initDelivery() {
	var sender notify.EmailSender
	if app.cfg.SMTPHost != "" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:               app.cfg.SMTPHost,
			Username:           app.cfg.SMTPUsername,
			Password:           app.cfg.SMTPPassword,
			From:               app.cfg.SMTPFrom,
			CodeTTL:            domain.EmailOTPTTL,
			InsecureSkipVerify: app.cfg.SMTPInsecureSkipVerify,
		})
	} else {
		app.logger.Warn("SMTP_HOST not set, email codes will not be delivered")
		sender = notify.LogSender{Logger: app.logger}
	}
	app.email = notify.NewDispatcher(sender, app.logger, notify.DefaultQueueSize, app.cfg.ProviderTimeout)

	if app.cfg.SMSConfigured() {
		app.sms = notify.NewTwilioVerifier(
			app.cfg.TwilioAccountSID,
			app.cfg.TwilioAuthToken,
			app.cfg.TwilioVerifyServiceSID,
			app.cfg.ProviderTimeout,
		)
	} else {
		app.logger.Warn("Twilio not configured, sms verification disabled")
		app.sms = notify.NoSMS{}
	}
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	audit := &service.Audit{Events: app.events}
	resolver := &service.Resolver{Admin: app.admin}
	finalizer := &service.Finalizer{
		Attempts: app.attempts,
		Signer:   app.keys.signer,
		Issuer:   app.cfg.TokenIssuer,
		TTL:      app.cfg.TokenTTL,
		Audit:    audit,
	}

	app.loginService = &service.LoginService{
		Admin:       app.admin,
		Credentials: app.grant,
		Attempts:    app.attempts,
		Resolver:    resolver,
		Audit:       audit,
	}
	app.emailService = &service.EmailOTPService{
		Attempts:  app.attempts,
		Resolver:  resolver,
		Sender:    app.email,
		Finalizer: finalizer,
		Audit:     audit,
	}
	app.totpService = &service.TOTPService{
		Attempts:    app.attempts,
		Admin:       app.admin,
		Resolver:    resolver,
		Credentials: app.grant,
		Browser:     app.browser,
		Finalizer:   finalizer,
		Audit:       audit,
	}
	app.smsService = &service.SMSOTPService{
		Attempts:  app.attempts,
		Resolver:  resolver,
		SMS:       app.sms,
		Finalizer: finalizer,
		Audit:     audit,
	}
	app.profileService = &service.ProfileService{
		Attempts: app.attempts,
		Admin:    app.admin,
		Resolver: resolver,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.attempts,
		app.events,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AuditRetention,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys.keys,
		app.keys.verifier,
		BuildVersion,
		app.attempts,
		app.events,
		httpx.SplitList(app.cfg.CORSAllowedOrigins),
		app.logger,
	)

	router.AppURL = app.cfg.AppURL
	router.Provider = app.admin
	router.LoginService = app.loginService
	router.EmailService = app.emailService
	router.TOTPService = app.totpService
	router.SMSService = app.smsService
	router.ProfileService = app.profileService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
