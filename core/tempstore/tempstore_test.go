package tempstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit/core/lock"
	"github.com/sectrean/servicekit/core/tempstore"
	"github.com/sectrean/servicekit/internal/testutils"
)

type draft struct {
	Title string `json:"title"`
}

func Test_TempStore(t *testing.T) {
	ctx := context.Background()
	db := testutils.Database(t)
	f := tempstore.NewFactory(db, lock.NewDatabaseBackend(db))

	alice := f.Get("node_form", "1")
	bob := f.Get("node_form", "2")

	t.Run("missing", func(t *testing.T) {
		var d draft
		ok, err := alice.Get(ctx, "node/1", &d)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set if not exists", func(t *testing.T) {
		ok, err := alice.SetIfNotExists(ctx, "node/1", draft{Title: "Draft"})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = bob.SetIfNotExists(ctx, "node/1", draft{Title: "Other"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("shared across owners", func(t *testing.T) {
		var d draft
		ok, err := bob.Get(ctx, "node/1", &d)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Draft", d.Title)

		meta, ok, err := bob.GetMetadata(ctx, "node/1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", meta.Owner)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, alice.Delete(ctx, "node/1"))

		var d draft
		ok, err := alice.Get(ctx, "node/1", &d)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
