package path_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit/core/cache"
	"github.com/sectrean/servicekit/core/keyvalue"
	"github.com/sectrean/servicekit/core/path"
	"github.com/sectrean/servicekit/internal/testutils"
)

func Test_AliasManager(t *testing.T) {
	ctx := context.Background()
	db := testutils.Database(t)

	manager := path.NewAliasManager(db, keyvalue.NewDatabaseFactory(db))
	cached := path.NewCachedAliasManager(manager, cache.NewMemoryBackend("path"))
	crud := path.NewPath(db, cached)

	t.Run("no alias", func(t *testing.T) {
		alias, err := cached.GetPathAlias(ctx, "/node/1", "en")
		require.NoError(t, err)
		assert.Equal(t, "/node/1", alias)
	})

	t.Run("saved alias clears caches", func(t *testing.T) {
		_, err := crud.Save(ctx, path.Alias{Source: "node/1", Alias: "about"})
		require.NoError(t, err)

		alias, err := cached.GetPathAlias(ctx, "/node/1", "en")
		require.NoError(t, err)
		assert.Equal(t, "/about", alias)

		source, err := cached.GetSystemPath(ctx, "/about", "en")
		require.NoError(t, err)
		assert.Equal(t, "/node/1", source)
	})

	t.Run("language specific alias wins", func(t *testing.T) {
		a, err := crud.Save(ctx, path.Alias{Source: "node/1", Alias: "ueber-uns", Langcode: "de"})
		require.NoError(t, err)

		alias, err := manager.GetPathAlias(ctx, "node/1", "de")
		require.NoError(t, err)
		assert.Equal(t, "/ueber-uns", alias)

		alias, err = manager.GetPathAlias(ctx, "node/1", "en")
		require.NoError(t, err)
		assert.Equal(t, "/about", alias)

		require.NoError(t, crud.Delete(ctx, a.PID))
		alias, err = cached.GetPathAlias(ctx, "node/1", "de")
		require.NoError(t, err)
		assert.Equal(t, "/about", alias)
	})

	t.Run("whitelist skips unaliased prefixes", func(t *testing.T) {
		var list []string
		ok, err := keyvalue.NewDatabaseFactory(db).Get("state").Get(ctx, "system.path_alias_whitelist", &list)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"node"}, list)
	})

	t.Run("load missing", func(t *testing.T) {
		_, err := crud.Load(ctx, 999)
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, path.ErrAliasNotFound)
	})
}
