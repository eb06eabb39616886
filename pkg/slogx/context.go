package slogx

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

func WithRequestID(ctx context.Context, reqID string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("req_id", reqID))
}

// WithAttempt tags the context logger with a fingerprint of the login
// attempt id. The raw id is a bearer credential and never reaches the log.
func WithAttempt(ctx context.Context, attemptID string) context.Context {
	if attemptID == "" {
		return ctx
	}
	l := FromContext(ctx)
	return WithContext(ctx, l.With("attempt", AttemptFingerprint(attemptID)))
}

// AttemptFingerprint is the short, log-safe form of an attempt id.
func AttemptFingerprint(attemptID string) string {
	return cryptox.FingerprintToken(attemptID)[:12]
}
