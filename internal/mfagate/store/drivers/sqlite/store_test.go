package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestRecordAndListEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	events := []domain.LoginEvent{
		{Type: domain.EventLoginStarted, Realm: "acme", Username: "alice", AttemptFingerprint: "fp-1", CreatedAt: base},
		{Type: domain.EventOTPSent, Realm: "acme", Username: "alice", Method: domain.MethodEmail, AttemptFingerprint: "fp-1", CreatedAt: base.Add(time.Second)},
		{Type: domain.EventLoginCompleted, Realm: "acme", Username: "alice", Method: domain.MethodEmail, AttemptFingerprint: "fp-1", CreatedAt: base.Add(2 * time.Second)},
		{Type: domain.EventLoginRejected, Realm: "globex", Username: "bob", Detail: "rejected-bad-password", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, e := range events {
		require.NoError(t, s.RecordEvent(ctx, e))
	}

	tests := []struct {
		name   string
		filter store.EventFilter
		want   []domain.EventType
	}{
		{"all newest first", store.EventFilter{}, []domain.EventType{
			domain.EventLoginRejected, domain.EventLoginCompleted, domain.EventOTPSent, domain.EventLoginStarted,
		}},
		{"by user", store.EventFilter{Realm: "acme", Username: "alice"}, []domain.EventType{
			domain.EventLoginCompleted, domain.EventOTPSent, domain.EventLoginStarted,
		}},
		{"by type", store.EventFilter{Type: domain.EventLoginRejected}, []domain.EventType{domain.EventLoginRejected}},
		{"limit", store.EventFilter{Limit: 1}, []domain.EventType{domain.EventLoginRejected}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListEvents(ctx, tt.filter)
			require.NoError(t, err)

			types := make([]domain.EventType, 0, len(got))
			for _, e := range got {
				require.NotEmpty(t, e.ID)
				types = append(types, e.Type)
			}
			require.Equal(t, tt.want, types)
		})
	}

	got, err := s.ListEvents(ctx, store.EventFilter{Type: domain.EventOTPSent})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, domain.MethodEmail, got[0].Method)
	require.Equal(t, "fp-1", got[0].AttemptFingerprint)
	require.True(t, base.Add(time.Second).Equal(got[0].CreatedAt))
}

func TestRecordEventDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := domain.LoginEvent{ID: "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", Type: domain.EventLoginStarted}
	require.NoError(t, s.RecordEvent(ctx, e))
	require.ErrorIs(t, s.RecordEvent(ctx, e), store.ErrAlreadyExists)
}

func TestDeleteEventsBefore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.RecordEvent(ctx, domain.LoginEvent{Type: domain.EventLoginStarted, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.RecordEvent(ctx, domain.LoginEvent{Type: domain.EventLoginStarted, CreatedAt: now}))

	n, err := s.DeleteEventsBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	left, err := s.ListEvents(ctx, store.EventFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
}
