package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"access-service/internal/models"
)

func TestSessionService_CreateRequiresDirectoryUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.factory.SessionService().Create(context.Background(), "ghost", "", "")
	require.ErrorIs(t, err, models.ErrUserNotFound)

	n, err := f.sessions.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSessionService_CreateForEmail(t *testing.T) {
	f := newFixture(t)

	session, user, err := f.factory.SessionService().CreateForEmail(context.Background(), "WRITER@example.com", "ip", "ua")
	require.NoError(t, err)
	require.Equal(t, "user-1", user.UserID)
	require.Equal(t, "user-1", session.UserID)
}

func TestSessionService_UserForSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.baseSession(t, "user-1")

	f.clock.Advance(time.Minute)
	user, got, err := f.factory.SessionService().UserForSession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, "writer@example.com", user.Email)
	require.Equal(t, epoch.Add(time.Minute), got.LastAccessedAt)
}

func TestSessionService_TouchSurvivesFailedUserLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A session whose user has since disappeared from the directory.
	session, err := f.sessions.Create(ctx, "deleted-user", "", "")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, _, err = f.factory.SessionService().UserForSession(ctx, session.SessionID)
	require.ErrorIs(t, err, models.ErrUserNotFound)

	stored, err := f.sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, epoch.Add(2*time.Minute), stored.LastAccessedAt)
}

func TestSessionService_UnknownAndEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.factory.SessionService().UserForSession(ctx, "")
	require.ErrorIs(t, err, models.ErrSessionNotFound)
	_, _, err = f.factory.SessionService().UserForSession(ctx, "nope")
	require.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSessionService_SignOutIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.baseSession(t, "user-1")

	svc := f.factory.SessionService()
	require.NoError(t, svc.SignOut(ctx, session.SessionID))
	require.NoError(t, svc.SignOut(ctx, session.SessionID))
	require.NoError(t, svc.SignOut(ctx, ""))

	_, err := svc.Get(ctx, session.SessionID)
	require.ErrorIs(t, err, models.ErrSessionNotFound)
}
