package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// loadAttempt fetches a live attempt and tags ctx's logger with its
// fingerprint.
func loadAttempt(ctx context.Context, attempts store.Attempts, id string) (context.Context, domain.Attempt, error) {
	if id == "" {
		return ctx, domain.Attempt{}, ErrInvalidAttempt
	}

	a, err := attempts.GetAttempt(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ctx, domain.Attempt{}, ErrInvalidAttempt
	}
	if err != nil {
		return ctx, domain.Attempt{}, fmt.Errorf("%w: load attempt: %v", ErrLoginFailed, err)
	}
	return slogx.WithAttempt(ctx, id), a, nil
}
