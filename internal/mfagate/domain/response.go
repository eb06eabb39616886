package domain

// LoginChallenge is returned when a password is accepted and a second
// factor is required.
type LoginChallenge struct {
	MFARequired    bool     `json:"mfaRequired"`
	Methods        []Method `json:"methods"`
	LoginAttemptID string   `json:"loginAttemptId"`
	Needs          Needs    `json:"needs"`
}

// FinalToken is issued once an attempt completes its second factor.
type FinalToken struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

// ProfileStatus is a snapshot of an account's second-factor readiness.
type ProfileStatus struct {
	EmailMissing  bool     `json:"emailMissing"`
	EmailVerified bool     `json:"emailVerified"`
	HasTOTP       bool     `json:"hasTotp"`
	HasPhone      bool     `json:"hasPhone"`
	Methods       []Method `json:"methods"`
}

// TOTPEnrollment reports how an enroll request was handled. Exactly one
// field is set.
type TOTPEnrollment struct {
	AlreadyConfigured bool `json:"alreadyConfigured,omitempty"`
	EmailSent         bool `json:"emailSent,omitempty"`
}
