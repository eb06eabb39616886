package httpx

import (
	"context"

	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyRealm  ctxKey = "realm"
	CtxKeyClaims ctxKey = "claims"
)

// ClaimsFromContext returns the verified token claims placed by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}
