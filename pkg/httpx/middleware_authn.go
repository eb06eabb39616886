package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// AuthnMiddleware admits requests that carry a completed-login token signed
// by v. The verified claims are placed in the request context and the
// request logger is tagged with the token's realm and subject.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := bearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				slogx.FromContext(ctx).Warn("session token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = slogx.WithContext(ctx, slogx.FromContext(ctx).With("realm", claims.Realm, "sub", claims.Subject))
			next.ServeHTTP(w, r.WithContext(contextWithAuth(ctx, claims)))
		})
	}
}

// bearerToken extracts the credential of an Authorization header using the
// Bearer scheme. The scheme name is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyRealm, c.Realm)
	return context.WithValue(ctx, CtxKeyClaims, c)
}

// writeBearerError answers with an RFC 6750 challenge.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="mfagate", error="invalid_token", error_description="`+desc+`"`)
	NewAPIError(http.StatusUnauthorized, "invalid_token", desc).WriteError(w)
}
