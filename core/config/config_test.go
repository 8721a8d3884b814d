package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit/core/cache"
	"github.com/sectrean/servicekit/core/config"
	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/internal/testutils"
)

func Test_FileStorage(t *testing.T) {
	dir := t.TempDir()
	s := config.NewFileStorage(dir)

	t.Run("not found", func(t *testing.T) {
		_, err := s.Read("system.site")
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, config.ErrNotFound)
		assert.False(t, s.Exists("system.site"))
	})

	t.Run("write and read", func(t *testing.T) {
		err := s.Write("system.site", config.Data{
			"name": "Servicekit",
			"page": config.Data{"front": "node"},
		})
		require.NoError(t, err)

		raw, err := os.ReadFile(filepath.Join(dir, "system.site.yml"))
		require.NoError(t, err)
		assert.Contains(t, string(raw), "name: Servicekit")

		data, err := s.Read("system.site")
		require.NoError(t, err)
		assert.Equal(t, "Servicekit", data["name"])
		assert.Equal(t, map[string]any{"front": "node"}, data["page"])
	})

	t.Run("list all", func(t *testing.T) {
		require.NoError(t, s.Write("system.performance", config.Data{}))
		require.NoError(t, s.Write("user.settings", config.Data{}))

		names, err := s.ListAll("system.")
		require.NoError(t, err)
		assert.Equal(t, []string{"system.performance", "system.site"}, names)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete("user.settings"))
		assert.ErrorIs(t, s.Delete("user.settings"), config.ErrNotFound)
	})
}

func Test_CachedStorage(t *testing.T) {
	files := config.NewFileStorage(t.TempDir())
	require.NoError(t, files.Write("system.site", config.Data{"name": "before"}))

	bin := cache.NewMemoryBackend("config")
	s := config.NewCachedStorage(files, bin)

	data, err := s.Read("system.site")
	require.NoError(t, err)
	assert.Equal(t, "before", data["name"])

	// Changes behind the cache are not seen until the cache is cleared.
	require.NoError(t, files.Write("system.site", config.Data{"name": "after"}))
	data, err = s.Read("system.site")
	require.NoError(t, err)
	assert.Equal(t, "before", data["name"])

	bin.DeleteAll()
	data, err = s.Read("system.site")
	require.NoError(t, err)
	assert.Equal(t, "after", data["name"])
}

func Test_Factory(t *testing.T) {
	ctx := context.Background()
	storage := config.NewFileStorage(t.TempDir())
	require.NoError(t, storage.Write("system.site", config.Data{
		"name": "Servicekit",
		"page": config.Data{"front": "node"},
	}))

	dispatcher := event.NewEventDispatcher()
	var inits []string
	dispatcher.AddListener(config.EventInit, func(_ context.Context, e event.Event) error {
		c := e.(*config.Event).Config
		inits = append(inits, c.Name())
		if c.Name() == "system.site" {
			c.SetOverrides(config.Data{"page.front": "user"})
		}
		return nil
	}, 0)

	f := config.NewFactory(storage, dispatcher)

	t.Run("overrides applied on load", func(t *testing.T) {
		c, err := f.Get(ctx, "system.site")
		require.NoError(t, err)

		assert.False(t, c.IsNew())
		assert.Equal(t, "user", c.String("page.front", ""))
		assert.Equal(t, "Servicekit", c.String("name", ""))
		assert.Equal(t, "node", c.Raw()["page"].(config.Data)["front"])
	})

	t.Run("memoized", func(t *testing.T) {
		a, err := f.Get(ctx, "system.site")
		require.NoError(t, err)
		b, err := f.Get(ctx, "system.site")
		require.NoError(t, err)

		assert.Same(t, a, b)
		assert.Equal(t, []string{"system.site"}, inits)
	})

	t.Run("new object", func(t *testing.T) {
		c, err := f.Get(ctx, "system.maintenance")
		require.NoError(t, err)
		assert.True(t, c.IsNew())

		require.NoError(t, c.Set("message", "offline").Save())
		assert.False(t, c.IsNew())
		assert.True(t, storage.Exists("system.maintenance"))

		f.Reset("system.maintenance")
		c, err = f.Get(ctx, "system.maintenance")
		require.NoError(t, err)
		assert.Equal(t, "offline", c.String("message", ""))
	})
}
