package mfasdk

import (
	"context"
	"net/http"
	"net/url"
)

// StartLogin checks the password and opens a login attempt.
func (c *SDKClient) StartLogin(ctx context.Context, realm, username, password string) (*LoginChallenge, error) {
	var challenge LoginChallenge
	req := loginRequest{Realm: realm, Username: username, Password: password}
	if err := c.postJSON(ctx, "/v1/auth/login", req, &challenge); err != nil {
		return nil, err
	}
	return &challenge, nil
}

// SendEmailOTP emails a fresh code for the attempt, replacing any earlier one.
func (c *SDKClient) SendEmailOTP(ctx context.Context, attemptID string) error {
	return c.postJSON(ctx, "/v1/auth/mfa/email/send", attemptRequest{LoginAttemptID: attemptID}, nil)
}

// VerifyEmailOTP completes the attempt with an emailed code.
func (c *SDKClient) VerifyEmailOTP(ctx context.Context, attemptID, code string) (*Session, error) {
	return c.complete(ctx, "/v1/auth/mfa/email/verify", attemptID, code)
}

// SendSMSOTP texts a code to the account's phone.
func (c *SDKClient) SendSMSOTP(ctx context.Context, attemptID string) error {
	return c.postJSON(ctx, "/v1/auth/mfa/sms/send", attemptRequest{LoginAttemptID: attemptID}, nil)
}

// VerifySMSOTP completes the attempt with a texted code.
func (c *SDKClient) VerifySMSOTP(ctx context.Context, attemptID, code string) (*Session, error) {
	return c.complete(ctx, "/v1/auth/mfa/sms/verify", attemptID, code)
}

// EnrollTOTP reports an existing authenticator or requests a setup email.
func (c *SDKClient) EnrollTOTP(ctx context.Context, attemptID string) (*TOTPEnrollment, error) {
	var res TOTPEnrollment
	if err := c.postJSON(ctx, "/v1/auth/mfa/totp/enroll", attemptRequest{LoginAttemptID: attemptID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StartTOTPSession returns the identity provider URL to send the browser to.
func (c *SDKClient) StartTOTPSession(ctx context.Context, attemptID string) (string, error) {
	var res struct {
		AuthURL string `json:"authUrl"`
	}
	if err := c.postJSON(ctx, "/v1/auth/mfa/totp/start-session", attemptRequest{LoginAttemptID: attemptID}, &res); err != nil {
		return "", err
	}
	return res.AuthURL, nil
}

// VerifyTOTP completes the attempt with an authenticator code.
func (c *SDKClient) VerifyTOTP(ctx context.Context, attemptID, code string) (*Session, error) {
	return c.complete(ctx, "/v1/auth/mfa/totp/verify", attemptID, code)
}

func (c *SDKClient) complete(ctx context.Context, path, attemptID, code string) (*Session, error) {
	var tok TokenResponse
	if err := c.postJSON(ctx, path, verifyCodeRequest{LoginAttemptID: attemptID, Code: code}, &tok); err != nil {
		return nil, err
	}
	return newSession(c, &tok), nil
}

// SetEmail replaces the account email. The new address starts unverified.
func (c *SDKClient) SetEmail(ctx context.Context, attemptID, email string) error {
	return c.postJSON(ctx, "/v1/auth/profile/email", setEmailRequest{LoginAttemptID: attemptID, Email: email}, nil)
}

// SendVerifyEmail asks the identity provider to email a verification link.
func (c *SDKClient) SendVerifyEmail(ctx context.Context, attemptID string) error {
	return c.postJSON(ctx, "/v1/auth/profile/verify-email", attemptRequest{LoginAttemptID: attemptID}, nil)
}

// GetProfileStatus reads the account's current capabilities.
func (c *SDKClient) GetProfileStatus(ctx context.Context, attemptID string) (*ProfileStatus, error) {
	path := "/v1/auth/profile/status?" + url.Values{"loginAttemptId": {attemptID}}.Encode()
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var status ProfileStatus
	if err := decodeJSON(resp, &status, http.StatusOK); err != nil {
		return nil, err
	}
	return &status, nil
}
