package domain

import "time"

// EventType names an audit trail entry.
type EventType string

const (
	EventLoginStarted       EventType = "login_started"
	EventLoginRejected      EventType = "login_rejected"
	EventOTPSent            EventType = "otp_sent"
	EventOTPRejected        EventType = "otp_rejected"
	EventTOTPSessionStarted EventType = "totp_session_started"
	EventTOTPCallback       EventType = "totp_callback"
	EventLoginCompleted     EventType = "login_completed"
)

// LoginEvent is one row of the login audit trail. It carries a fingerprint
// of the attempt id, never the id itself.
type LoginEvent struct {
	ID                 string // ULID
	Type               EventType
	Realm              string
	Username           string
	Method             Method
	AttemptFingerprint string
	Detail             string
	CreatedAt          time.Time
}
