package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"access-service/internal/models"
)

func newAdminSession(id, userID string) *models.AdminSession {
	return &models.AdminSession{
		SessionID:      id,
		UserID:         userID,
		Permissions:    models.NewPermissionSet(models.AllPermissions()...),
		CreatedAt:      epoch,
		ExpiresAt:      epoch.Add(time.Hour),
		LastAccessedAt: epoch,
	}
}

func TestAdminStore_SessionLifecycle(t *testing.T) {
	store := NewAdminStore()
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, newAdminSession("s1", "u1")))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)
	require.True(t, got.Permissions.Has(models.PermPanelAccess))

	require.NoError(t, store.TouchSession(ctx, "s1", epoch.Add(time.Minute)))
	got, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, epoch.Add(time.Minute), got.LastAccessedAt)

	require.NoError(t, store.DeleteSession(ctx, "s1"))
	_, err = store.GetSession(ctx, "s1")
	require.ErrorIs(t, err, models.ErrAdminSessionNotFound)
	require.ErrorIs(t, store.TouchSession(ctx, "s1", epoch), models.ErrAdminSessionNotFound)
}

func TestAdminStore_Tokens(t *testing.T) {
	store := NewAdminStore()
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, newAdminSession("s1", "u1")))
	require.NoError(t, store.CreateSession(ctx, newAdminSession("s2", "u1")))
	require.NoError(t, store.PutToken(ctx, "t1", "s1", time.Hour))
	require.NoError(t, store.PutToken(ctx, "t2", "s2", time.Hour))

	id, err := store.ResolveToken(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "s1", id)

	tokens, err := store.SessionsForUser(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"t1", "t2"}, tokens)

	require.NoError(t, store.DeleteToken(ctx, "t1"))
	require.NoError(t, store.DeleteToken(ctx, "t1"))
	_, err = store.ResolveToken(ctx, "t1")
	require.ErrorIs(t, err, models.ErrAdminTokenNotFound)

	tokens, err = store.SessionsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"t2"}, tokens)
}

func TestAdminStore_PutTokenRequiresSession(t *testing.T) {
	store := NewAdminStore()
	err := store.PutToken(context.Background(), "t1", "missing", time.Hour)
	require.ErrorIs(t, err, models.ErrAdminSessionNotFound)
}

func TestAdminStore_ClonesPermissions(t *testing.T) {
	store := NewAdminStore()
	ctx := context.Background()

	session := newAdminSession("s1", "u1")
	require.NoError(t, store.CreateSession(ctx, session))
	delete(session.Permissions, models.PermPanelAccess)

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.True(t, got.Permissions.Has(models.PermPanelAccess))
}
