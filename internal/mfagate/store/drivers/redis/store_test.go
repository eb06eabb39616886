package redis_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	mfaredis "github.com/aussiebroadwan/mfagate/internal/mfagate/store/drivers/redis"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store/storetest"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newSealer(t *testing.T) *cryptox.Sealer {
	t.Helper()
	s, err := cryptox.NewSealer([]byte("redis-test-sealing-secret"), "mfagate attempt")
	require.NoError(t, err)
	return s
}

func TestRedisStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock *storetest.Clock) (store.Attempts, func(time.Duration)) {
		mr, rdb := newTestRedis(t)
		s := mfaredis.New(rdb, newSealer(t), storetest.TTL)
		s.Now = clock.Now
		return s, mr.FastForward
	})
}

func TestSecretsSealedAtRest(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := mfaredis.New(rdb, newSealer(t), time.Minute)

	id, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "correct horse battery staple")
	require.NoError(t, err)
	require.NoError(t, s.SetEmailOTP(ctx, id, "493817", time.Now().Add(domain.EmailOTPTTL)))

	raw, err := mr.Get("mfa:attempt:" + id)
	require.NoError(t, err)
	require.NotContains(t, raw, "correct horse")
	require.NotContains(t, raw, "493817")
	require.Contains(t, raw, `"username":"alice"`)

	ttl := mr.TTL("mfa:attempt:" + id)
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, time.Minute)
}

func TestSealedPasswordBoundToAttemptID(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := mfaredis.New(rdb, newSealer(t), time.Minute)

	a, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw-a")
	require.NoError(t, err)
	b, err := s.CreateAttempt(ctx, "acme", "bob", "user-2", "pw-b")
	require.NoError(t, err)

	// Swapping stored records between ids must not yield a readable attempt.
	rawA, err := mr.Get("mfa:attempt:" + a)
	require.NoError(t, err)
	require.NoError(t, mr.Set("mfa:attempt:"+b, rawA))

	_, err = s.GetAttempt(ctx, b)
	require.Error(t, err)
}

func TestBackendErrors(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := mfaredis.New(rdb, newSealer(t), time.Minute)
	mr.Close()

	_, err := s.CreateAttempt(ctx, "acme", "alice", "user-1", "pw")
	require.ErrorIs(t, err, mfaredis.ErrBackend)
	require.ErrorIs(t, s.Ping(ctx), mfaredis.ErrBackend)
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := mfaredis.Open(context.Background(), "::not a url", newSealer(t), time.Minute)
	require.Error(t, err)
	require.False(t, strings.Contains(err.Error(), "redis backend unavailable"))
}
