package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/service"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"

	_ "github.com/aussiebroadwan/mfagate/api/mfagate" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet // nil unless tokens are signed with a public key
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	attempts store.Attempts
	events   store.Events

	// AppURL is where the TOTP callback sends the browser.
	AppURL string

	// Provider is checked by /readyz when set.
	Provider Pinger

	LoginService   *service.LoginService
	EmailService   *service.EmailOTPService
	TOTPService    *service.TOTPService
	SMSService     *service.SMSOTPService
	ProfileService *service.ProfileService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	attempts store.Attempts,
	events store.Events,
	allowedOrigins []string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		attempts:     attempts,
		events:       events,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.CORS(allowedOrigins),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerEmail()
	r.registerTOTP()
	r.registerSMS()
	r.registerProfile()
	r.registerSecure()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			MFA Gate API
//	@version		0.1.0
//	@description	Second-factor orchestration in front of Keycloak. A password login opens a short-lived login attempt,
//	@description	which is completed with an email code, an SMS code, or an authenticator code to obtain a final token.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/mfagate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Final token issued after a completed login. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{LoginService: r.LoginService}

	// POST /auth/login - strict rate limit by IP (password guessing)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerEmail() {
	h := &EmailHandler{EmailService: r.EmailService}

	r.Mux.Handle("POST /v1/auth/mfa/email/send",
		httpx.Chain(http.HandlerFunc(h.HandleSend),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Code submission is the brute force surface.
	r.Mux.Handle("POST /v1/auth/mfa/email/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerTOTP() {
	h := &TOTPHandler{TOTPService: r.TOTPService, AppURL: r.AppURL}

	r.Mux.Handle("POST /v1/auth/mfa/totp/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/totp/start-session",
		httpx.Chain(http.HandlerFunc(h.HandleStartSession),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/totp/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// GET /callback - browser redirect from the provider, lenient by IP
	r.Mux.Handle("GET /v1/auth/mfa/totp/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSMS() {
	h := &SMSHandler{SMSService: r.SMSService}

	r.Mux.Handle("POST /v1/auth/mfa/sms/send",
		httpx.Chain(http.HandlerFunc(h.HandleSend),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/sms/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerProfile() {
	h := &ProfileHandler{ProfileService: r.ProfileService}

	r.Mux.Handle("POST /v1/auth/profile/email",
		httpx.Chain(http.HandlerFunc(h.HandleSetEmail),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/profile/verify-email",
		httpx.Chain(http.HandlerFunc(h.HandleSendVerifyEmail),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Status polling is keyed by IP and the queried attempt so one tab
	// polling cannot starve another.
	r.Mux.Handle("GET /v1/auth/profile/status",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			httpx.RateLimitMiddleware(httpx.LenientLimit,
				httpx.CompositeKeyExtractor(":",
					httpx.IPKeyExtractor,
					httpx.QueryKeyExtractor("loginAttemptId"),
				),
			),
		),
	)
}

func (r *Router) registerSecure() {
	secured := httpx.Chain(http.HandlerFunc(HandlePing),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByIP(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /v1/secure/ping", secured)
}

func (r *Router) registerSystem() {
	// JWKS is only meaningful for asymmetric signing
	if r.keys != nil {
		r.Mux.Handle("GET /.well-known/jwks.json",
			httpx.Chain(JWKSHandler(r.keys),
				httpx.RateLimitByIP(httpx.LenientLimit),
			),
		)
	}

	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.attempts, r.events, r.Provider),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
