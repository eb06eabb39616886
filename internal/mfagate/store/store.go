package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// DefaultAttemptTTL bounds how long an attempt or redirect binding lives
// when the deployment does not configure a TTL.
const DefaultAttemptTTL = 15 * time.Minute

// Attempts owns in-progress login attempts and their redirect bindings.
// Drivers must keep every method safe for concurrent use and must treat
// records older than their TTL as absent even before they are swept.
type Attempts interface {
	// CreateAttempt stores a new attempt and returns its freshly minted,
	// unguessable id.
	CreateAttempt(ctx context.Context, realm, username, accountID, password string) (string, error)

	// GetAttempt returns ErrNotFound for unknown, removed or expired ids.
	GetAttempt(ctx context.Context, id string) (domain.Attempt, error)

	// RemoveAttempt is idempotent.
	RemoveAttempt(ctx context.Context, id string) error

	// ClaimAttempt removes the attempt and returns it as one atomic step.
	// Of several concurrent claims on one id, exactly one succeeds; the
	// rest get ErrNotFound.
	ClaimAttempt(ctx context.Context, id string) (domain.Attempt, error)

	// SetEmailOTP replaces any pending email code. ErrNotFound if the
	// attempt is gone.
	SetEmailOTP(ctx context.Context, id, code string, expiresAt time.Time) error

	// ConsumeEmailOTP checks and clears the pending code in one indivisible
	// step. It returns false when the attempt is gone, no code is pending,
	// the code differs, or the code has expired. An expired code is cleared.
	ConsumeEmailOTP(ctx context.Context, id, code string) (bool, error)

	// BindRedirectState records which attempt a browser redirect belongs to.
	BindRedirectState(ctx context.Context, state string, binding domain.RedirectBinding) error

	// ResolveRedirectState returns ErrNotFound for unknown or expired states.
	ResolveRedirectState(ctx context.Context, state string) (domain.RedirectBinding, error)

	// ClearRedirectState is idempotent.
	ClearRedirectState(ctx context.Context, state string) error

	// DeleteExpired sweeps expired attempts and bindings, returning how
	// many records were removed.
	DeleteExpired(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	Realm    string
	Username string
	Type     domain.EventType
	Limit    int
}

// Events is the login audit trail.
type Events interface {
	RecordEvent(ctx context.Context, e domain.LoginEvent) error

	// ListEvents returns matching events, newest first.
	ListEvents(ctx context.Context, f EventFilter) ([]domain.LoginEvent, error)

	// DeleteEventsBefore prunes events created before cutoff.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
