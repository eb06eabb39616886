package mfasdk

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrSessionExpired is returned by Session calls after the final token has
// expired. There is no refresh; the user logs in again.
var ErrSessionExpired = errors.New("mfasdk: session expired")

// Session holds the final token of a completed login.
type Session struct {
	client    *SDKClient
	token     string
	expiresAt time.Time
}

func newSession(client *SDKClient, tok *TokenResponse) *Session {
	return &Session{
		client:    client,
		token:     tok.Token,
		expiresAt: time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
}

// NewSessionFromToken wraps a final token obtained elsewhere.
func (c *SDKClient) NewSessionFromToken(token string, expiresAt time.Time) *Session {
	return &Session{client: c, token: token, expiresAt: expiresAt}
}

// Token returns the raw final token.
func (s *Session) Token() string { return s.token }

// ExpiresAt returns when the final token stops being accepted.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// Ping calls the token-protected ping endpoint.
func (s *Session) Ping(ctx context.Context) (*PingResponse, error) {
	if !time.Now().Before(s.expiresAt) {
		return nil, ErrSessionExpired
	}

	resp, err := s.client.doRequest(ctx, http.MethodGet, "/v1/secure/ping", nil, s.token)
	if err != nil {
		return nil, err
	}

	var pong PingResponse
	if err := decodeJSON(resp, &pong, http.StatusOK); err != nil {
		return nil, err
	}
	return &pong, nil
}
