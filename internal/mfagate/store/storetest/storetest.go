// Package storetest holds behaviour tests shared by every store.Attempts driver.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/stretchr/testify/require"
)

// TTL is the attempt lifetime every factory must configure.
const TTL = 15 * time.Minute

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory builds a fresh driver reading time from clock with TTL as its
// lifetime. Advance, if non-nil, is called alongside clock.Advance so
// drivers with server-side expiry can follow.
type Factory func(t *testing.T, clock *Clock) (s store.Attempts, advance func(time.Duration))

// Run executes the shared suite against a driver.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	setup := func(t *testing.T) (store.Attempts, *Clock, func(time.Duration)) {
		clock := NewClock()
		s, advance := newStore(t, clock)
		step := func(d time.Duration) {
			clock.Advance(d)
			if advance != nil {
				advance(d)
			}
		}
		return s, clock, step
	}

	t.Run("create and get", func(t *testing.T) {
		s, clock, _ := setup(t)

		id, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "hunter2")
		require.NoError(t, err)
		require.Len(t, id, 43)

		a, err := s.GetAttempt(ctx, id)
		require.NoError(t, err)
		require.Equal(t, id, a.ID)
		require.Equal(t, "acme", a.Realm)
		require.Equal(t, "alice", a.Username)
		require.Equal(t, "user-1", a.AccountID)
		require.Equal(t, "hunter2", a.Password)
		require.Nil(t, a.EmailOTP)
		require.WithinDuration(t, clock.Now(), a.CreatedAt, time.Second)

		other, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "hunter2")
		require.NoError(t, err)
		require.NotEqual(t, id, other)
	})

	t.Run("unknown id", func(t *testing.T) {
		s, _, _ := setup(t)

		_, err := s.GetAttempt(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)

		ok, err := s.ConsumeEmailOTP(ctx, "nope", "123456")
		require.NoError(t, err)
		require.False(t, ok)

		require.ErrorIs(t, s.SetEmailOTP(ctx, "nope", "123456", time.Now()), store.ErrNotFound)
		require.NoError(t, s.RemoveAttempt(ctx, "nope"))
	})

	t.Run("remove makes every operation behave as unknown", func(t *testing.T) {
		s, clock, _ := setup(t)

		id, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw")
		require.NoError(t, err)
		require.NoError(t, s.SetEmailOTP(ctx, id, "123456", clock.Now().Add(domain.EmailOTPTTL)))

		require.NoError(t, s.RemoveAttempt(ctx, id))
		require.NoError(t, s.RemoveAttempt(ctx, id))

		_, err = s.GetAttempt(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)

		ok, err := s.ConsumeEmailOTP(ctx, id, "123456")
		require.NoError(t, err)
		require.False(t, ok)

		_, err = s.ClaimAttempt(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("consume once", func(t *testing.T) {
		s, clock, _ := setup(t)

		id, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw")
		require.NoError(t, err)

		ok, err := s.ConsumeEmailOTP(ctx, id, "123456")
		require.NoError(t, err)
		require.False(t, ok, "no code pending")

		require.NoError(t, s.SetEmailOTP(ctx, id, "123456", clock.Now().Add(domain.EmailOTPTTL)))

		a, err := s.GetAttempt(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, a.EmailOTP)
		require.Equal(t, "123456", a.EmailOTP.Code)

		ok, err = s.ConsumeEmailOTP(ctx, id, "000000")
		require.NoError(t, err)
		require.False(t, ok, "wrong code")

		ok, err = s.ConsumeEmailOTP(ctx, id, "123456")
		require.NoError(t, err)
		require.True(t, ok, "wrong guess does not burn the code")

		ok, err = s.ConsumeEmailOTP(ctx, id, "123456")
		require.NoError(t, err)
		require.False(t, ok, "code is single use")

		a, err = s.GetAttempt(ctx, id)
		require.NoError(t, err)
		require.Nil(t, a.EmailOTP)
	})

	t.Run("new code replaces old", func(t *testing.T) {
		s, clock, _ := setup(t)

		id, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw")
		require.NoError(t, err)
		require.NoError(t, s.SetEmailOTP(ctx, id, "111111", clock.Now().Add(domain.EmailOTPTTL)))
		require.NoError(t, s.SetEmailOTP(ctx, id, "222222", clock.Now().Add(domain.EmailOTPTTL)))

		ok, err := s.ConsumeEmailOTP(ctx, id, "111111")
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = s.ConsumeEmailOTP(ctx, id, "222222")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("code expires at issue plus five minutes", func(t *testing.T) {
		s, clock, step := setup(t)

		id, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw")
		require.NoError(t, err)
		require.NoError(t, s.SetEmailOTP(ctx, id, "123456", clock.Now().Add(domain.EmailOTPTTL)))

		step(domain.EmailOTPTTL)

		ok, err := s.ConsumeEmailOTP(ctx, id, "123456")
		require.NoError(t, err)
		require.False(t, ok)

		a, err := s.GetAttempt(ctx, id)
		require.NoError(t, err, "attempt outlives its code")
		require.Nil(t, a.EmailOTP, "expired code is cleared")
	})

	t.Run("code valid just before expiry", func(t *testing.T) {
		s, clock, step := setup(t)

		id, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw")
		require.NoError(t, err)
		require.NoError(t, s.SetEmailOTP(ctx, id, "123456", clock.Now().Add(domain.EmailOTPTTL)))

		step(domain.EmailOTPTTL - time.Second)

		ok, err := s.ConsumeEmailOTP(ctx, id, "123456")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("concurrent consume succeeds exactly once", func(t *testing.T) {
		s, clock, _ := setup(t)

		id, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw")
		require.NoError(t, err)
		require.NoError(t, s.SetEmailOTP(ctx, id, "123456", clock.Now().Add(domain.EmailOTPTTL)))

		const callers = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.ConsumeEmailOTP(ctx, id, "123456")
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		require.EqualValues(t, 1, wins.Load())
	})

	t.Run("concurrent claim succeeds exactly once", func(t *testing.T) {
		s, _, _ := setup(t)

		id, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw")
		require.NoError(t, err)

		const callers = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if a, err := s.ClaimAttempt(ctx, id); err == nil && a.ID == id {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		require.EqualValues(t, 1, wins.Load())
		_, err = s.GetAttempt(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("attempt expires after ttl", func(t *testing.T) {
		s, _, step := setup(t)

		id, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw")
		require.NoError(t, err)

		step(TTL - time.Second)
		_, err = s.GetAttempt(ctx, id)
		require.NoError(t, err)

		step(time.Second)
		_, err = s.GetAttempt(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.ClaimAttempt(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("redirect state lifecycle", func(t *testing.T) {
		s, clock, _ := setup(t)

		binding := domain.RedirectBinding{AttemptID: "attempt-1", Realm: "acme", Nonce: "n-1", CreatedAt: clock.Now()}
		require.NoError(t, s.BindRedirectState(ctx, "acme:state-1", binding))
		require.ErrorIs(t, s.BindRedirectState(ctx, "acme:state-1", binding), store.ErrAlreadyExists)

		got, err := s.ResolveRedirectState(ctx, "acme:state-1")
		require.NoError(t, err)
		require.Equal(t, "attempt-1", got.AttemptID)
		require.Equal(t, "acme", got.Realm)
		require.Equal(t, "n-1", got.Nonce)

		require.NoError(t, s.ClearRedirectState(ctx, "acme:state-1"))
		require.NoError(t, s.ClearRedirectState(ctx, "acme:state-1"))

		_, err = s.ResolveRedirectState(ctx, "acme:state-1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("redirect state expires after ttl", func(t *testing.T) {
		s, clock, step := setup(t)

		require.NoError(t, s.BindRedirectState(ctx, "acme:state-2", domain.RedirectBinding{
			AttemptID: "attempt-2", Realm: "acme", CreatedAt: clock.Now(),
		}))

		step(TTL)
		_, err := s.ResolveRedirectState(ctx, "acme:state-2")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete expired", func(t *testing.T) {
		s, clock, step := setup(t)

		old, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw")
		require.NoError(t, err)
		require.NoError(t, s.BindRedirectState(ctx, "acme:old", domain.RedirectBinding{AttemptID: old, CreatedAt: clock.Now()}))

		step(TTL + time.Minute)

		fresh, err := s.CreateAttempt(ctx, "acme", "bob", "user-2", "pw")
		require.NoError(t, err)

		_, err = s.DeleteExpired(ctx)
		require.NoError(t, err)

		_, err = s.GetAttempt(ctx, old)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetAttempt(ctx, fresh)
		require.NoError(t, err)
	})

	t.Run("ping", func(t *testing.T) {
		s, _, _ := setup(t)
		require.NoError(t, s.Ping(ctx))
	})
}
