// Package redis is the shared attempt store for multi-instance deployments.
// Attempts live under mfa:attempt:{id} and bindings under mfa:state:{state},
// each with a server-side TTL matching the attempt lifetime. Passwords and
// email codes are sealed with AES-GCM before they leave the process.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	goredis "github.com/redis/go-redis/v9"
)

const (
	attemptPrefix = "mfa:attempt:"
	statePrefix   = "mfa:state:"

	// maxTxRetries bounds optimistic transaction retries under contention.
	maxTxRetries = 8
)

var _ store.Attempts = (*Store)(nil)

// ErrBackend wraps failures talking to redis.
var ErrBackend = errors.New("store: redis backend unavailable")

type Store struct {
	// Now is the clock used for lazy expiry; tests replace it.
	Now func() time.Time

	rdb    *goredis.Client
	sealer *cryptox.Sealer
	ttl    time.Duration
}

// Open connects to the redis instance at url (redis://host:port/db).
func Open(ctx context.Context, url string, sealer *cryptox.Sealer, ttl time.Duration) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}

	s := New(goredis.NewClient(opts), sealer, ttl)
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.
func New(rdb *goredis.Client, sealer *cryptox.Sealer, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = store.DefaultAttemptTTL
	}
	return &Store{Now: time.Now, rdb: rdb, sealer: sealer, ttl: ttl}
}

type attemptRecord struct {
	Realm          string `json:"realm"`
	Username       string `json:"username"`
	AccountID      string `json:"account_id"`
	SealedPassword []byte `json:"password"`
	SealedCode     []byte `json:"otp_code,omitempty"`
	CodeExpiresAt  int64  `json:"otp_expires_at,omitempty"` // unix millis
	CreatedAt      int64  `json:"created_at"`               // unix millis
}

type stateRecord struct {
	AttemptID string `json:"attempt_id"`
	Realm     string `json:"realm"`
	Nonce     string `json:"nonce"`
	CreatedAt int64  `json:"created_at"`
}

func attemptKey(id string) string  { return attemptPrefix + id }
func stateKey(state string) string { return statePrefix + state }

func backend(err error) error {
	return fmt.Errorf("%w: %v", ErrBackend, err)
}

// remaining returns how long a record created at createdMillis has left.
func (s *Store) remaining(createdMillis int64) time.Duration {
	return time.UnixMilli(createdMillis).Add(s.ttl).Sub(s.Now())
}

func (s *Store) CreateAttempt(ctx context.Context, realm, username, accountID, password string) (string, error) {
	id, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	sealed, err := s.sealer.Seal([]byte(password), []byte(id))
	if err != nil {
		return "", err
	}

	rec := attemptRecord{
		Realm:          realm,
		Username:       username,
		AccountID:      accountID,
		SealedPassword: sealed,
		CreatedAt:      s.Now().UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	ok, err := s.rdb.SetNX(ctx, attemptKey(id), data, s.ttl).Result()
	if err != nil {
		return "", backend(err)
	}
	if !ok {
		return "", store.ErrAlreadyExists
	}
	return id, nil
}

// decodeAttempt reports ErrNotFound for records past their lifetime.
func (s *Store) decodeAttempt(data []byte) (attemptRecord, error) {
	var rec attemptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return attemptRecord{}, fmt.Errorf("store: decode attempt: %w", err)
	}
	if s.remaining(rec.CreatedAt) <= 0 {
		return attemptRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) toDomain(id string, rec attemptRecord) (domain.Attempt, error) {
	password, err := s.sealer.Open(rec.SealedPassword, []byte(id))
	if err != nil {
		return domain.Attempt{}, err
	}

	a := domain.Attempt{
		ID:        id,
		Realm:     rec.Realm,
		Username:  rec.Username,
		AccountID: rec.AccountID,
		Password:  string(password),
		CreatedAt: time.UnixMilli(rec.CreatedAt).UTC(),
	}
	if len(rec.SealedCode) > 0 {
		code, err := s.sealer.Open(rec.SealedCode, []byte(id))
		if err != nil {
			return domain.Attempt{}, err
		}
		a.EmailOTP = &domain.EmailOTP{Code: string(code), ExpiresAt: time.UnixMilli(rec.CodeExpiresAt).UTC()}
	}
	return a, nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (domain.Attempt, error) {
	data, err := s.rdb.Get(ctx, attemptKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Attempt{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Attempt{}, backend(err)
	}

	rec, err := s.decodeAttempt(data)
	if errors.Is(err, store.ErrNotFound) {
		_ = s.rdb.Del(ctx, attemptKey(id)).Err()
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return s.toDomain(id, rec)
}

func (s *Store) RemoveAttempt(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, attemptKey(id)).Err(); err != nil {
		return backend(err)
	}
	return nil
}

func (s *Store) ClaimAttempt(ctx context.Context, id string) (domain.Attempt, error) {
	data, err := s.rdb.GetDel(ctx, attemptKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Attempt{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Attempt{}, backend(err)
	}

	rec, err := s.decodeAttempt(data)
	if err != nil {
		return domain.Attempt{}, err
	}
	return s.toDomain(id, rec)
}

// update runs fn over the attempt under WATCH and writes the result back
// with the attempt's remaining lifetime. fn returning errSkipWrite leaves
// the record untouched.
func (s *Store) update(ctx context.Context, id string, fn func(*attemptRecord) error) error {
	key := attemptKey(id)

	for range maxTxRetries {
		err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, goredis.Nil) {
				return store.ErrNotFound
			}
			if err != nil {
				return err
			}

			rec, err := s.decodeAttempt(data)
			if err != nil {
				return err
			}
			if err := fn(&rec); err != nil {
				return err
			}

			ttl := s.remaining(rec.CreatedAt)
			if ttl <= 0 {
				return store.ErrNotFound
			}
			updated, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		switch {
		case errors.Is(err, goredis.TxFailedErr):
			continue
		case err == nil, errors.Is(err, store.ErrNotFound), errors.Is(err, errSkipWrite):
			return err
		default:
			return backend(err)
		}
	}
	return backend(errors.New("too much contention"))
}

var errSkipWrite = errors.New("skip write")

func (s *Store) SetEmailOTP(ctx context.Context, id, code string, expiresAt time.Time) error {
	sealed, err := s.sealer.Seal([]byte(code), []byte(id))
	if err != nil {
		return err
	}
	return s.update(ctx, id, func(rec *attemptRecord) error {
		rec.SealedCode = sealed
		rec.CodeExpiresAt = expiresAt.UnixMilli()
		return nil
	})
}

func (s *Store) ConsumeEmailOTP(ctx context.Context, id, code string) (bool, error) {
	var consumed bool
	err := s.update(ctx, id, func(rec *attemptRecord) error {
		consumed = false
		if len(rec.SealedCode) == 0 {
			return errSkipWrite
		}

		if !s.Now().Before(time.UnixMilli(rec.CodeExpiresAt)) {
			rec.SealedCode, rec.CodeExpiresAt = nil, 0
			return nil
		}

		pending, err := s.sealer.Open(rec.SealedCode, []byte(id))
		if err != nil {
			return err
		}
		if !cryptox.EqualCode(string(pending), code) {
			return errSkipWrite
		}

		rec.SealedCode, rec.CodeExpiresAt = nil, 0
		consumed = true
		return nil
	})

	switch {
	case err == nil:
		return consumed, nil
	case errors.Is(err, errSkipWrite), errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) BindRedirectState(ctx context.Context, state string, binding domain.RedirectBinding) error {
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = s.Now()
	}
	data, err := json.Marshal(stateRecord{
		AttemptID: binding.AttemptID,
		Realm:     binding.Realm,
		Nonce:     binding.Nonce,
		CreatedAt: binding.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}

	ttl := s.remaining(binding.CreatedAt.UnixMilli())
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	ok, err := s.rdb.SetNX(ctx, stateKey(state), data, ttl).Result()
	if err != nil {
		return backend(err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *Store) ResolveRedirectState(ctx context.Context, state string) (domain.RedirectBinding, error) {
	data, err := s.rdb.Get(ctx, stateKey(state)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.RedirectBinding{}, store.ErrNotFound
	}
	if err != nil {
		return domain.RedirectBinding{}, backend(err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.RedirectBinding{}, fmt.Errorf("store: decode redirect state: %w", err)
	}
	if s.remaining(rec.CreatedAt) <= 0 {
		_ = s.rdb.Del(ctx, stateKey(state)).Err()
		return domain.RedirectBinding{}, store.ErrNotFound
	}

	return domain.RedirectBinding{
		AttemptID: rec.AttemptID,
		Realm:     rec.Realm,
		Nonce:     rec.Nonce,
		CreatedAt: time.UnixMilli(rec.CreatedAt).UTC(),
	}, nil
}

func (s *Store) ClearRedirectState(ctx context.Context, state string) error {
	if err := s.rdb.Del(ctx, stateKey(state)).Err(); err != nil {
		return backend(err)
	}
	return nil
}

// DeleteExpired removes records whose lifetime has elapsed by this
// process's clock but which redis has not yet evicted.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	removed := 0
	for _, prefix := range []string{attemptPrefix, statePrefix} {
		iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			data, err := s.rdb.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}

			var created struct {
				CreatedAt int64 `json:"created_at"`
			}
			if json.Unmarshal(data, &created) != nil || s.remaining(created.CreatedAt) <= 0 {
				n, err := s.rdb.Del(ctx, key).Result()
				if err != nil {
					return removed, backend(err)
				}
				removed += int(n)
			}
		}
		if err := iter.Err(); err != nil {
			return removed, backend(err)
		}
	}
	return removed, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return backend(err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
