package mfasdk

import "slices"

// ============================================================================
// Login
// ============================================================================

// Method is a second factor a login attempt can be completed with.
type Method string

const (
	MethodEmail Method = "email"
	MethodTOTP  Method = "totp"
	MethodSMS   Method = "sms"
)

// Needs lists account setup the user should be prompted for.
type Needs struct {
	EmailMissing  bool `json:"emailMissing"`
	VerifyEmail   bool `json:"verifyEmail"`
	ConfigureTOTP bool `json:"configureTotp"`
}

// LoginChallenge is the open login attempt returned by StartLogin.
type LoginChallenge struct {
	MFARequired    bool     `json:"mfaRequired"`
	Methods        []Method `json:"methods"`
	LoginAttemptID string   `json:"loginAttemptId"`
	Needs          Needs    `json:"needs"`
}

// Has reports whether m is offered for this attempt.
func (c *LoginChallenge) Has(m Method) bool {
	return slices.Contains(c.Methods, m)
}

// TokenResponse is the final token of a completed login.
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

// TOTPEnrollment is the result of EnrollTOTP.
type TOTPEnrollment struct {
	AlreadyConfigured bool `json:"alreadyConfigured,omitempty"`
	EmailSent         bool `json:"emailSent,omitempty"`
}

// ProfileStatus is a fresh capability snapshot of the account.
type ProfileStatus struct {
	EmailMissing  bool     `json:"emailMissing"`
	EmailVerified bool     `json:"emailVerified"`
	HasTOTP       bool     `json:"hasTotp"`
	HasPhone      bool     `json:"hasPhone"`
	Methods       []Method `json:"methods"`
}

// ============================================================================
// Requests
// ============================================================================

type loginRequest struct {
	Realm    string `json:"realm"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type attemptRequest struct {
	LoginAttemptID string `json:"loginAttemptId"`
}

type verifyCodeRequest struct {
	LoginAttemptID string `json:"loginAttemptId"`
	Code           string `json:"code"`
}

type setEmailRequest struct {
	LoginAttemptID string `json:"loginAttemptId"`
	Email          string `json:"email"`
}

// ============================================================================
// Secure + Health
// ============================================================================

// PingResponse is returned by the token-protected ping endpoint.
type PingResponse struct {
	Message  string `json:"message"`
	Subject  string `json:"sub"`
	Realm    string `json:"realm"`
	Username string `json:"username"`
}

// HealthChecks reports per-dependency readiness.
type HealthChecks struct {
	Attempts string `json:"attempts"`
	Audit    string `json:"audit,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}
