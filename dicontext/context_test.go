package dicontext_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/dicontext"
	"github.com/sectrean/servicekit/internal/testtypes"
	"github.com/sectrean/servicekit/internal/testutils"
)

func newContainer(t *testing.T) *di.Container {
	t.Helper()

	b := di.NewContainerBuilder()
	b.Register("subscriber", testtypes.NewSubscriber, di.WithArgs("config"))

	c, err := b.Compile(context.Background())
	require.NoError(t, err)
	return c
}

func Test_Scope(t *testing.T) {
	t.Run("with scope", func(t *testing.T) {
		c := newContainer(t)

		ctx := dicontext.WithScope(context.Background(), c)
		scope := dicontext.Scope(ctx)

		assert.Same(t, c, scope)
		assert.Same(t, c, di.ScopeFromContext(ctx))
	})

	t.Run("no scope", func(t *testing.T) {
		ctx := context.Background()
		scope := dicontext.Scope(ctx)
		assert.Nil(t, scope)
	})
}

func Test_Get(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		ctx := dicontext.WithScope(context.Background(), newContainer(t))

		got, err := dicontext.Get[*testtypes.Subscriber](ctx, "subscriber")
		require.NoError(t, err)
		assert.Equal(t, "config", got.Name)
	})

	t.Run("not found", func(t *testing.T) {
		ctx := dicontext.WithScope(context.Background(), newContainer(t))

		_, err := dicontext.Get[*testtypes.Subscriber](ctx, "missing")
		testutils.LogError(t, err)

		assert.ErrorIs(t, err, di.ErrServiceNotFound)
		assert.EqualError(t, err, "get from context: di.Container.Get missing: service not found")
	})

	t.Run("no scope", func(t *testing.T) {
		_, err := dicontext.Get[*testtypes.Subscriber](context.Background(), "subscriber")
		testutils.LogError(t, err)

		assert.EqualError(t, err, "get subscriber from context: scope not found on context")
	})

	t.Run("must get panics", func(t *testing.T) {
		assert.Panics(t, func() {
			dicontext.MustGet[*testtypes.Subscriber](context.Background(), "subscriber")
		})
	})
}
