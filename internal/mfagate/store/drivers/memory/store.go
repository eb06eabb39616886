// Package memory is the in-process attempt store. Nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
)

var _ store.Attempts = (*Store)(nil)

// Store keeps attempts and redirect bindings in mutex-guarded maps. Every
// read checks the absolute TTL, so expired records are invisible even
// before DeleteExpired runs.
type Store struct {
	// Now is the clock; tests replace it.
	Now func() time.Time

	ttl time.Duration

	mu       sync.Mutex
	attempts map[string]*domain.Attempt
	states   map[string]domain.RedirectBinding
}

// New returns an empty store whose records expire ttl after creation.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = store.DefaultAttemptTTL
	}
	return &Store{
		Now:      time.Now,
		ttl:      ttl,
		attempts: make(map[string]*domain.Attempt),
		states:   make(map[string]domain.RedirectBinding),
	}
}

func (s *Store) CreateAttempt(_ context.Context, realm, username, accountID, password string) (string, error) {
	id, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attempts[id]; exists {
		return "", store.ErrAlreadyExists
	}
	s.attempts[id] = &domain.Attempt{
		ID:        id,
		Realm:     realm,
		Username:  username,
		AccountID: accountID,
		Password:  password,
		CreatedAt: s.Now(),
	}
	return id, nil
}

// live returns the attempt if present and unexpired, dropping it otherwise.
// Callers hold s.mu.
func (s *Store) live(id string) (*domain.Attempt, bool) {
	a, ok := s.attempts[id]
	if !ok {
		return nil, false
	}
	if a.ExpiredAt(s.Now(), s.ttl) {
		delete(s.attempts, id)
		return nil, false
	}
	return a, true
}

func (s *Store) GetAttempt(_ context.Context, id string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.live(id)
	if !ok {
		return domain.Attempt{}, store.ErrNotFound
	}
	return snapshot(a), nil
}

func (s *Store) RemoveAttempt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attempts, id)
	return nil
}

func (s *Store) ClaimAttempt(_ context.Context, id string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.live(id)
	if !ok {
		return domain.Attempt{}, store.ErrNotFound
	}
	delete(s.attempts, id)
	return snapshot(a), nil
}

func (s *Store) SetEmailOTP(_ context.Context, id, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.live(id)
	if !ok {
		return store.ErrNotFound
	}
	a.EmailOTP = &domain.EmailOTP{Code: code, ExpiresAt: expiresAt}
	return nil
}

func (s *Store) ConsumeEmailOTP(_ context.Context, id, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.live(id)
	if !ok || a.EmailOTP == nil {
		return false, nil
	}

	if !a.EmailOTP.ValidAt(s.Now()) {
		a.EmailOTP = nil
		return false, nil
	}
	if !cryptox.EqualCode(a.EmailOTP.Code, code) {
		return false, nil
	}

	a.EmailOTP = nil
	return true, nil
}

func (s *Store) BindRedirectState(_ context.Context, state string, binding domain.RedirectBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[state]; exists {
		return store.ErrAlreadyExists
	}
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = s.Now()
	}
	s.states[state] = binding
	return nil
}

func (s *Store) ResolveRedirectState(_ context.Context, state string) (domain.RedirectBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.states[state]
	if !ok {
		return domain.RedirectBinding{}, store.ErrNotFound
	}
	if b.ExpiredAt(s.Now(), s.ttl) {
		delete(s.states, state)
		return domain.RedirectBinding{}, store.ErrNotFound
	}
	return b, nil
}

func (s *Store) ClearRedirectState(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, state)
	return nil
}

func (s *Store) DeleteExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	n := 0
	for id, a := range s.attempts {
		if a.ExpiredAt(now, s.ttl) {
			delete(s.attempts, id)
			n++
		}
	}
	for state, b := range s.states {
		if b.ExpiredAt(now, s.ttl) {
			delete(s.states, state)
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// Len reports the number of stored attempts and bindings, expired or not.
func (s *Store) Len() (attempts, states int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts), len(s.states)
}

// snapshot copies a so callers never share the stored pointer.
func snapshot(a *domain.Attempt) domain.Attempt {
	out := *a
	if a.EmailOTP != nil {
		otp := *a.EmailOTP
		out.EmailOTP = &otp
	}
	return out
}
