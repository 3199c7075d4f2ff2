package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-session/credentials"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/internal/storage/redisstore"
	"github.com/jrsteele09/go-tenant-session/tenants"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := redisstore.New("redis://"+s.Addr(), "edc.", ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNew(t *testing.T) {
	t.Run("connects", func(t *testing.T) {
		store, _ := setupTestRedis(t, 0)
		require.NoError(t, store.Ping(context.Background()))
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := redisstore.New("://nope", "edc.", 0)
		require.Error(t, err)
	})

	t.Run("unreachable", func(t *testing.T) {
		s := miniredis.RunT(t)
		addr := s.Addr()
		s.Close()
		_, err := redisstore.New("redis://"+addr, "edc.", 0)
		require.Error(t, err)
	})
}

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()

	t.Run("absent is anonymous", func(t *testing.T) {
		store, _ := setupTestRedis(t, 0)
		c, err := store.Credentials().Get(ctx)
		require.NoError(t, err)
		require.Nil(t, c)
	})

	t.Run("set get clear", func(t *testing.T) {
		store, s := setupTestRedis(t, time.Hour)
		creds := store.Credentials()
		require.NoError(t, creds.Set(ctx, credentials.Credential{AccessToken: "A1", RefreshToken: "R1"}))

		got, err := creds.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, &credentials.Credential{AccessToken: "A1", RefreshToken: "R1"}, got)
		s.CheckGet(t, "edc.access_token", "A1")

		require.NoError(t, creds.Clear(ctx))
		require.False(t, s.Exists("edc.access_token"))
		require.False(t, s.Exists("edc.refresh_token"))
	})

	t.Run("missing refresh token removes stale one", func(t *testing.T) {
		store, s := setupTestRedis(t, 0)
		creds := store.Credentials()
		require.NoError(t, creds.Set(ctx, credentials.Credential{AccessToken: "A1", RefreshToken: "R1"}))
		require.NoError(t, creds.Set(ctx, credentials.Credential{AccessToken: "A2"}))
		require.False(t, s.Exists("edc.refresh_token"))

		got, err := creds.Get(ctx)
		require.NoError(t, err)
		require.False(t, got.HasRefreshToken())
	})

	t.Run("rejects empty access token", func(t *testing.T) {
		store, _ := setupTestRedis(t, 0)
		require.ErrorIs(t, store.Credentials().Set(ctx, credentials.Credential{}), errors.ErrEmptyToken)
	})

	t.Run("expires with ttl", func(t *testing.T) {
		store, s := setupTestRedis(t, time.Minute)
		creds := store.Credentials()
		require.NoError(t, creds.Set(ctx, credentials.Credential{AccessToken: "A1", RefreshToken: "R1"}))
		s.FastForward(2 * time.Minute)

		got, err := creds.Get(ctx)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestContextRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("save load clear", func(t *testing.T) {
		store, s := setupTestRedis(t, 0)
		repo := store.Contexts()
		saved := tenants.ActiveContext{
			EstablishmentID: "E1",
			Role:            tenants.RoleTeacher,
			ConfirmedAt:     time.UnixMilli(1767225600123).UTC(),
		}
		require.NoError(t, repo.Save(ctx, saved))
		s.CheckGet(t, "edc.active_etab_id", "E1")
		s.CheckGet(t, "edc.active_ctx_at", "1767225600123")

		loaded, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, saved, loaded)

		require.NoError(t, repo.Clear(ctx))
		loaded, err = repo.Load(ctx)
		require.NoError(t, err)
		require.True(t, loaded.IsZero())
	})

	t.Run("context store restores across instances", func(t *testing.T) {
		store, _ := setupTestRedis(t, 0)
		first, err := tenants.NewContextStore(ctx, store.Contexts())
		require.NoError(t, err)
		require.NoError(t, first.Set(ctx, "E7", tenants.RoleParent))

		second, err := tenants.NewContextStore(ctx, store.Contexts())
		require.NoError(t, err)
		require.Equal(t, "E7", second.Get().EstablishmentID)
		require.Equal(t, tenants.RoleParent, second.Get().Role)
	})

	t.Run("credential clear keeps context", func(t *testing.T) {
		store, s := setupTestRedis(t, 0)
		require.NoError(t, store.Credentials().Set(ctx, credentials.Credential{AccessToken: "A1"}))
		require.NoError(t, store.Contexts().Save(ctx, tenants.ActiveContext{EstablishmentID: "E1", Role: tenants.RoleStudent}))
		require.NoError(t, store.Credentials().Clear(ctx))
		require.True(t, s.Exists("edc.active_etab_id"))
	})
}
