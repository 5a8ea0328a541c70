package session_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-session"
)

func newBunStore(t *testing.T) *session.BunStore {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "credentials.db")
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	store := session.NewBunStore(bun.NewDB(sqldb, sqlitedialect.New()))
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestBunStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newBunStore(t)

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)

	saved := &session.Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    1800,
	}
	require.NoError(t, store.Save(ctx, saved))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved, loaded)

	require.NoError(t, store.Clear(ctx))
	cleared, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cleared)
}

func TestBunStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := newBunStore(t)

	require.NoError(t, store.Save(ctx, &session.Credential{AccessToken: "first", RefreshToken: "r1"}))
	require.NoError(t, store.Save(ctx, &session.Credential{AccessToken: "second", RefreshToken: "r2"}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "second", loaded.AccessToken)
	assert.Equal(t, "r2", loaded.RefreshToken)
}

func TestOpenStoreFallsBackOnBadDSN(t *testing.T) {
	// A directory path is not a usable database; the store must degrade
	// rather than fail.
	store, err := session.OpenStore(t.TempDir(), silentLogger{})
	require.NoError(t, err)
	require.NotNil(t, store)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &session.Credential{AccessToken: "tok"}))
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "tok", loaded.AccessToken)
}
