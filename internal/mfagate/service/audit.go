package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// Audit appends login events to the audit trail. A nil Audit, or one
// without Events, records nothing. Write failures are logged only.
type Audit struct {
	Events store.Events
	Now    func() time.Time
}

func (a *Audit) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Record stores e, deriving its attempt fingerprint from attemptID.
func (a *Audit) Record(ctx context.Context, attemptID string, e domain.LoginEvent) {
	if a == nil || a.Events == nil {
		return
	}
	if attemptID != "" {
		e.AttemptFingerprint = cryptox.FingerprintToken(attemptID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.now()
	}
	if err := a.Events.RecordEvent(ctx, e); err != nil {
		slogx.FromContext(ctx).Warn("failed to record login event", "type", e.Type, "error", err)
	}
}

// attemptEvent builds an event about an existing attempt.
func attemptEvent(typ domain.EventType, a domain.Attempt, method domain.Method, detail string) domain.LoginEvent {
	return domain.LoginEvent{
		Type:     typ,
		Realm:    a.Realm,
		Username: a.Username,
		Method:   method,
		Detail:   detail,
	}
}
