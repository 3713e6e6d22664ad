package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"access-service/internal/client"
	"access-service/internal/clock"
	"access-service/internal/models"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestClient(t *testing.T) (*client.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := client.NewRedisClientFromOptions(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSessionStore(t *testing.T) {
	rc, mr := newTestClient(t)
	clk := clock.NewManual(epoch)
	store := NewSessionStore(rc, time.Hour, clk)
	ctx := context.Background()

	session, err := store.Create(ctx, "user-1", "203.0.113.9", "agent/1.0")
	require.NoError(t, err)
	require.True(t, mr.Exists(sessionPrefix+session.SessionID))

	t.Run("get round trips", func(t *testing.T) {
		got, err := store.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, session, got)
	})

	t.Run("touch updates last access", func(t *testing.T) {
		clk.Advance(time.Minute)
		require.NoError(t, store.Touch(ctx, session.SessionID))

		got, err := store.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, epoch.Add(time.Minute), got.LastAccessedAt)
	})

	t.Run("touch unknown does not create", func(t *testing.T) {
		err := store.Touch(ctx, "missing")
		require.ErrorIs(t, err, models.ErrSessionNotFound)
		require.False(t, mr.Exists(sessionPrefix+"missing"))
	})

	t.Run("count", func(t *testing.T) {
		n, err := store.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("expired session is deleted on get", func(t *testing.T) {
		clk.Set(session.ExpiresAt.Add(time.Second))
		_, err := store.Get(ctx, session.SessionID)
		require.ErrorIs(t, err, models.ErrSessionNotFound)
		require.False(t, mr.Exists(sessionPrefix+session.SessionID))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, session.SessionID))
		require.NoError(t, store.Delete(ctx, "never-issued"))
	})
}

func TestAdminStore(t *testing.T) {
	rc, mr := newTestClient(t)
	clk := clock.NewManual(epoch)
	store := NewAdminStore(rc, clk)
	ctx := context.Background()

	session := &models.AdminSession{
		SessionID:      "s1",
		UserID:         "u1",
		Permissions:    models.NewPermissionSet(models.AllPermissions()...),
		CreatedAt:      epoch,
		ExpiresAt:      epoch.Add(time.Hour),
		LastAccessedAt: epoch,
	}
	require.NoError(t, store.CreateSession(ctx, session))
	require.NoError(t, store.PutToken(ctx, "tok-1", "s1", time.Hour))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, session.Permissions.Slice(), got.Permissions.Slice())
	require.Equal(t, session.ExpiresAt, got.ExpiresAt)

	id, err := store.ResolveToken(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, "s1", id)

	tokens, err := store.SessionsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"tok-1"}, tokens)

	require.NoError(t, store.TouchSession(ctx, "s1", epoch.Add(time.Minute)))
	got, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, epoch.Add(time.Minute), got.LastAccessedAt)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, store.DeleteSession(ctx, "s1"))
	_, err = store.GetSession(ctx, "s1")
	require.ErrorIs(t, err, models.ErrAdminSessionNotFound)
	require.ErrorIs(t, store.TouchSession(ctx, "s1", epoch), models.ErrAdminSessionNotFound)

	// The token outlives its session until someone deletes it.
	id, err = store.ResolveToken(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, "s1", id)

	require.NoError(t, store.DeleteToken(ctx, "tok-1"))
	require.NoError(t, store.DeleteToken(ctx, "tok-1"))
	_, err = store.ResolveToken(ctx, "tok-1")
	require.ErrorIs(t, err, models.ErrAdminTokenNotFound)
	require.False(t, mr.Exists(adminUserTokensPrefix+"u1"))
}

func TestAdminStore_PutTokenWithoutSession(t *testing.T) {
	rc, _ := newTestClient(t)
	store := NewAdminStore(rc, clock.NewManual(epoch))

	err := store.PutToken(context.Background(), "tok", "missing", time.Hour)
	require.ErrorIs(t, err, models.ErrAdminSessionNotFound)
}

func TestAdminStore_SessionsForUserPrunesExpiredTokens(t *testing.T) {
	rc, mr := newTestClient(t)
	store := NewAdminStore(rc, clock.NewManual(epoch))
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, store.CreateSession(ctx, &models.AdminSession{
			SessionID: id, UserID: "u1", CreatedAt: epoch, ExpiresAt: epoch.Add(time.Hour), LastAccessedAt: epoch,
		}))
	}
	require.NoError(t, store.PutToken(ctx, "short", "s1", time.Second))
	require.NoError(t, store.PutToken(ctx, "long", "s2", time.Hour))

	mr.FastForward(2 * time.Minute)

	tokens, err := store.SessionsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"long"}, tokens)

	members, err := mr.SMembers(adminUserTokensPrefix + "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"long"}, members)
}

func TestCounterStore_FixedWindow(t *testing.T) {
	rc, _ := newTestClient(t)
	clk := clock.NewManual(epoch)
	store := NewCounterStore(rc, clk)
	ctx := context.Background()

	const max = 3
	window := 15 * time.Minute

	for i := 1; i <= max; i++ {
		d, err := store.Take(ctx, "save:fp", max, window)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, i, d.Count)
		require.Equal(t, epoch.Add(window), d.ResetAt)
	}

	d, err := store.Take(ctx, "save:fp", max, window)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, epoch.Add(window), d.ResetAt)

	clk.Set(epoch.Add(window))
	d, err = store.Take(ctx, "save:fp", max, window)
	require.NoError(t, err)
	require.False(t, d.Allowed, "reset instant still belongs to the old window")

	clk.Set(epoch.Add(window + time.Millisecond))
	d, err = store.Take(ctx, "save:fp", max, window)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Count)
	require.Equal(t, clk.Now().Add(window), d.ResetAt)
}

func TestCounterStore_Sweep(t *testing.T) {
	rc, _ := newTestClient(t)
	clk := clock.NewManual(epoch)
	store := NewCounterStore(rc, clk)
	ctx := context.Background()

	_, err := store.Take(ctx, "short", 5, time.Second)
	require.NoError(t, err)
	_, err = store.Take(ctx, "long", 5, time.Hour)
	require.NoError(t, err)

	clk.Advance(5 * time.Second)
	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCounterStore_SweepKeepsWindowResetAfterScan(t *testing.T) {
	rc, mr := newTestClient(t)
	clk := clock.NewManual(epoch)
	store := NewCounterStore(rc, clk)
	ctx := context.Background()

	_, err := store.Take(ctx, "guest:save:abc", 5, time.Second)
	require.NoError(t, err)
	_, err = store.Take(ctx, "guest:save:def", 5, time.Second)
	require.NoError(t, err)

	clk.Advance(5 * time.Second)
	keys, err := rc.ScanAll(ctx, rateLimitPrefix+"*", sweepBatch)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	// another instance starts a fresh window on one key before the delete runs
	for i := 0; i < 3; i++ {
		_, err = store.Take(ctx, "guest:save:abc", 5, time.Second)
		require.NoError(t, err)
	}

	removed, err := store.sweepKeys(ctx, keys)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.True(t, mr.Exists(rateLimitPrefix+"guest:save:abc"))
	require.False(t, mr.Exists(rateLimitPrefix+"guest:save:def"))

	d, err := store.Take(ctx, "guest:save:abc", 5, time.Second)
	require.NoError(t, err)
	require.Equal(t, 4, d.Count)
}

func TestCounterStore_SweepReportsConnectionFailure(t *testing.T) {
	rc, mr := newTestClient(t)
	clk := clock.NewManual(epoch)
	store := NewCounterStore(rc, clk)
	ctx := context.Background()

	_, err := store.Take(ctx, "short", 5, time.Second)
	require.NoError(t, err)
	keys, err := rc.ScanAll(ctx, rateLimitPrefix+"*", sweepBatch)
	require.NoError(t, err)

	mr.Close()
	clk.Advance(5 * time.Second)
	_, err = store.sweepKeys(ctx, keys)
	require.Error(t, err)
}
