package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit/core/database"
	"github.com/sectrean/servicekit/internal/testutils"
)

func Test_Factory_GetConnection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("slave falls back to default", func(t *testing.T) {
		f := database.NewFactory(filepath.Join(dir, "a.db"), "")
		t.Cleanup(func() { f.Close() })

		def, err := f.GetConnection(ctx, database.RoleDefault)
		require.NoError(t, err)
		slave, err := f.GetConnection(ctx, database.RoleSlave)
		require.NoError(t, err)

		assert.Same(t, def, slave)
	})

	t.Run("separate slave", func(t *testing.T) {
		f := database.NewFactory(filepath.Join(dir, "b.db"), filepath.Join(dir, "b-replica.db"))
		t.Cleanup(func() { f.Close() })

		def, err := f.GetConnection(ctx, database.RoleDefault)
		require.NoError(t, err)
		slave, err := f.GetConnection(ctx, database.RoleSlave)
		require.NoError(t, err)

		assert.NotSame(t, def, slave)
	})

	t.Run("schema installed", func(t *testing.T) {
		f := database.NewFactory(filepath.Join(dir, "c.db"), "")
		t.Cleanup(func() { f.Close() })

		db, err := f.GetConnection(ctx, database.RoleDefault)
		require.NoError(t, err)

		var n int
		err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM semaphore").Scan(&n)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("unknown role", func(t *testing.T) {
		f := database.NewFactory(filepath.Join(dir, "d.db"), "")

		_, err := f.GetConnection(ctx, "archive")
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, database.ErrUnknownRole)
	})
}
