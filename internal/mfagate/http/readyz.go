package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness check of the attempt store, the audit store, and the identity provider.
//	@Description	Only an unreachable attempt store fails readiness; the others report degraded.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	HealthResponse	"service not ready"
//	@Router			/readyz [get]
func ReadyzHandler(
	startTime time.Time,
	version string,
	attempts store.Attempts,
	events store.Events,
	provider Pinger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := &HealthChecks{Attempts: "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := attempts.Ping(ctx); err != nil {
			slogx.FromContext(ctx).Warn("attempt store not ready", "err", err)
			checks.Attempts = "error"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		degrade := func(name string, p Pinger) string {
			if p == nil {
				return ""
			}
			if err := p.Ping(ctx); err != nil {
				slogx.FromContext(ctx).Warn(name+" not ready", "err", err)
				overallStatus = "degraded"
				return "error"
			}
			return "ok"
		}
		if events != nil {
			checks.Audit = degrade("audit store", events)
		}
		checks.Provider = degrade("identity provider", provider)

		httpx.WriteJSON(w, statusCode, HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
