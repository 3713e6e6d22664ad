package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"access-service/internal/config"
	"access-service/internal/models"
)

func TestAdminService_Issue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.baseSession(t, "admin-1")

	cred, user, err := f.factory.AdminService().Issue(ctx, base.SessionID)
	require.NoError(t, err)
	require.Equal(t, "admin-1", user.UserID)

	raw, err := base64.RawURLEncoding.DecodeString(cred.Token)
	require.NoError(t, err)
	require.Len(t, raw, 32)

	require.Equal(t, "admin-1", cred.Session.UserID)
	require.Equal(t, epoch.Add(time.Hour), cred.Session.ExpiresAt)
	require.ElementsMatch(t, models.AllPermissions(), cred.Session.Permissions.Slice())

	id, err := f.admin.ResolveToken(ctx, cred.Token)
	require.NoError(t, err)
	require.Equal(t, cred.Session.SessionID, id)
}

func TestAdminService_IssueNonAdminCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.baseSession(t, "user-1")

	cred, _, err := f.factory.AdminService().Issue(ctx, base.SessionID)
	require.ErrorIs(t, err, ErrNotAdministrator)
	require.Nil(t, cred)

	n, err := f.admin.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	tokens, err := f.admin.SessionsForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, tokens)
}

func TestAdminService_IssueRequiresBaseSession(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.factory.AdminService().Issue(context.Background(), "")
	require.ErrorIs(t, err, ErrBaseSessionRequired)
	_, _, err = f.factory.AdminService().Issue(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrBaseSessionRequired)
}

func TestAdminService_NoAdminConfigured(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Admin.Email = "" })
	base := f.baseSession(t, "admin-1")

	_, _, err := f.factory.AdminService().Issue(context.Background(), base.SessionID)
	require.ErrorIs(t, err, ErrNotAdministrator)
}

func TestAdminService_ReissueAllowConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.baseSession(t, "admin-1")
	svc := f.factory.AdminService()

	first, _, err := svc.Issue(ctx, base.SessionID)
	require.NoError(t, err)
	second, _, err := svc.Issue(ctx, base.SessionID)
	require.NoError(t, err)

	require.NotEqual(t, first.Token, second.Token)
	require.NotEqual(t, first.Session.SessionID, second.Session.SessionID)

	_, err = svc.Verify(ctx, first.Token)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, second.Token)
	require.NoError(t, err)
}

func TestAdminService_ReissueRevokePrevious(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Admin.ReissuePolicy = config.ReissueRevokePrevious })
	ctx := context.Background()
	base := f.baseSession(t, "admin-1")
	svc := f.factory.AdminService()

	first, _, err := svc.Issue(ctx, base.SessionID)
	require.NoError(t, err)
	second, _, err := svc.Issue(ctx, base.SessionID)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, first.Token)
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = svc.Verify(ctx, second.Token)
	require.NoError(t, err)

	n, err := f.admin.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAdminService_Verify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.baseSession(t, "admin-1")
	svc := f.factory.AdminService()

	cred, _, err := svc.Issue(ctx, base.SessionID)
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, err := svc.Verify(ctx, "")
		require.ErrorIs(t, err, ErrTokenMissing)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := svc.Verify(ctx, "not-a-token")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("valid touches", func(t *testing.T) {
		f.clock.Advance(10 * time.Minute)
		session, err := svc.Verify(ctx, cred.Token)
		require.NoError(t, err)
		require.Equal(t, f.clock.Now(), session.LastAccessedAt)

		stored, err := f.admin.GetSession(ctx, cred.Session.SessionID)
		require.NoError(t, err)
		require.Equal(t, f.clock.Now(), stored.LastAccessedAt)
	})
}

func TestAdminService_VerifyOrphanRepair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.baseSession(t, "admin-1")
	svc := f.factory.AdminService()

	cred, _, err := svc.Issue(ctx, base.SessionID)
	require.NoError(t, err)
	require.NoError(t, f.admin.DeleteSession(ctx, cred.Session.SessionID))

	_, err = svc.Verify(ctx, cred.Token)
	require.ErrorIs(t, err, ErrTokenOrphaned)

	_, err = f.admin.ResolveToken(ctx, cred.Token)
	require.ErrorIs(t, err, models.ErrAdminTokenNotFound, "orphaned token is deleted")

	_, err = svc.Verify(ctx, cred.Token)
	require.Error(t, err, "a repaired token never verifies again")
}

func TestAdminService_VerifyExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.baseSession(t, "admin-1")
	svc := f.factory.AdminService()

	cred, _, err := svc.Issue(ctx, base.SessionID)
	require.NoError(t, err)

	f.clock.Set(cred.Session.ExpiresAt)
	_, err = svc.Verify(ctx, cred.Token)
	require.NoError(t, err, "valid at the exact expiry instant")

	f.clock.Advance(time.Second)
	_, err = svc.Verify(ctx, cred.Token)
	require.ErrorIs(t, err, ErrAdminSessionExpired)

	_, err = f.admin.GetSession(ctx, cred.Session.SessionID)
	require.ErrorIs(t, err, models.ErrAdminSessionNotFound)
	_, err = f.admin.ResolveToken(ctx, cred.Token)
	require.ErrorIs(t, err, models.ErrAdminTokenNotFound)

	_, err = svc.Verify(ctx, cred.Token)
	require.Error(t, err)
}

func TestAdminService_SignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.baseSession(t, "admin-1")
	svc := f.factory.AdminService()

	cred, _, err := svc.Issue(ctx, base.SessionID)
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, cred.Token))
	require.NoError(t, svc.SignOut(ctx, cred.Token))
	require.NoError(t, svc.SignOut(ctx, "never-issued"))
	require.NoError(t, svc.SignOut(ctx, ""))

	_, err = svc.Verify(ctx, cred.Token)
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = f.admin.GetSession(ctx, cred.Session.SessionID)
	require.ErrorIs(t, err, models.ErrAdminSessionNotFound)
}

func TestAdminService_Peek(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.baseSession(t, "admin-1")
	svc := f.factory.AdminService()

	cred, _, err := svc.Issue(ctx, base.SessionID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	require.Equal(t, "admin-1", svc.Peek(ctx, cred.Token))
	require.Empty(t, svc.Peek(ctx, "bogus"))
	require.Empty(t, svc.Peek(ctx, ""))

	stored, err := f.admin.GetSession(ctx, cred.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, epoch, stored.LastAccessedAt, "peek does not touch")
}

func TestAdminService_RevokeUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.baseSession(t, "admin-1")
	svc := f.factory.AdminService()

	for i := 0; i < 3; i++ {
		_, _, err := svc.Issue(ctx, base.SessionID)
		require.NoError(t, err)
	}

	revoked, err := svc.RevokeUser(ctx, "admin-1")
	require.NoError(t, err)
	require.Equal(t, 3, revoked)

	n, err := f.admin.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	revoked, err = svc.RevokeUser(ctx, "admin-1")
	require.NoError(t, err)
	require.Zero(t, revoked)
}

func TestIsAuthFailure(t *testing.T) {
	require.True(t, IsAuthFailure(ErrTokenOrphaned))
	require.False(t, IsAuthFailure(ErrNotAdministrator))
}
