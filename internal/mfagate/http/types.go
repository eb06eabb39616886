package http

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Realm    string `json:"realm" example:"acme"`
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"correct horse battery staple"`
}

// AttemptRequest carries only the login attempt id.
type AttemptRequest struct {
	LoginAttemptID string `json:"loginAttemptId"`
}

// VerifyCodeRequest submits a one-time code for an attempt.
type VerifyCodeRequest struct {
	LoginAttemptID string `json:"loginAttemptId"`
	Code           string `json:"code" example:"123456"`
}

// SetEmailRequest replaces the email of the account behind an attempt.
type SetEmailRequest struct {
	LoginAttemptID string `json:"loginAttemptId"`
	Email          string `json:"email" example:"alice@example.com"`
}

// ErrorResponse documents the error envelope written by httpx.APIError.
type ErrorResponse struct {
	Error            string `json:"error" example:"INVALID_ATTEMPT"`
	ErrorDescription string `json:"error_description" example:"login attempt is unknown or expired"`
}

type SentResponse struct {
	Sent bool `json:"sent"`
}

type UpdatedResponse struct {
	Updated bool `json:"updated"`
}

type EmailSentResponse struct {
	EmailSent bool `json:"emailSent"`
}

type AuthURLResponse struct {
	AuthURL string `json:"authUrl"`
}

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

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}
