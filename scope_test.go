package di_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/internal/testtypes"
	"github.com/sectrean/servicekit/internal/testutils"
)

type kernel struct {
	handler *di.Proxy
}

func newKernel(handler *di.Proxy) *kernel {
	return &kernel{handler: handler}
}

func newRequestContainer(t *testing.T, register ...func(b *di.ContainerBuilder)) *di.Container {
	t.Helper()

	b := di.NewContainerBuilder()
	b.AddScope(di.ScopeRequest, di.ScopeContainer)
	b.Register("request", nil, di.Synthetic(), di.InScope(di.ScopeRequest))
	b.Register("counter", testtypes.NewCounter, di.InScope(di.ScopeRequest))
	b.Register("handler", testtypes.NewHandler,
		di.WithArgs(di.Ref("request"), di.Ref("counter")),
		di.InScope(di.ScopeRequest),
	)
	for _, r := range register {
		r(b)
	}

	c, err := b.Compile(context.Background())
	require.NoError(t, err)
	return c
}

func Test_Container_NewScope(t *testing.T) {
	ctx := context.Background()
	c := newRequestContainer(t)

	t.Run("scope not active", func(t *testing.T) {
		_, err := c.Get(ctx, "handler")
		testutils.LogError(t, err)

		assert.ErrorIs(t, err, di.ErrScopeNotActive)
		assert.EqualError(t, err, "di.Container.Get handler: scope request: scope not active")
	})

	t.Run("memoized within scope", func(t *testing.T) {
		r := &testtypes.Request{Path: "/node/1"}
		scope, err := c.NewScope(di.ScopeRequest, di.WithSynthetic("request", r))
		require.NoError(t, err)
		defer scope.Close(ctx)

		h1 := di.MustGet[*testtypes.Handler](ctx, scope, "handler")
		h2 := di.MustGet[*testtypes.Handler](ctx, scope, "handler")
		assert.Same(t, h1, h2)
		assert.Same(t, r, h1.Request)
		assert.Equal(t, di.ScopeRequest, scope.ScopeName())
		assert.Same(t, c, scope.Parent())
	})

	t.Run("distinct across scopes", func(t *testing.T) {
		s1, err := c.NewScope(di.ScopeRequest, di.WithSynthetic("request", &testtypes.Request{}))
		require.NoError(t, err)
		s2, err := c.NewScope(di.ScopeRequest, di.WithSynthetic("request", &testtypes.Request{}))
		require.NoError(t, err)

		h1 := di.MustGet[*testtypes.Handler](ctx, s1, "handler")
		h2 := di.MustGet[*testtypes.Handler](ctx, s2, "handler")
		assert.NotSame(t, h1, h2)
		assert.NotSame(t, h1.Counter, h2.Counter)
	})

	t.Run("sub-request rebuilds", func(t *testing.T) {
		outer, err := c.NewScope(di.ScopeRequest, di.WithSynthetic("request", &testtypes.Request{Path: "/"}))
		require.NoError(t, err)
		inner, err := outer.NewScope(di.ScopeRequest, di.WithSynthetic("request", &testtypes.Request{Path: "/sub"}))
		require.NoError(t, err)

		h1 := di.MustGet[*testtypes.Handler](ctx, outer, "handler")
		h2 := di.MustGet[*testtypes.Handler](ctx, inner, "handler")
		assert.NotSame(t, h1, h2)
		assert.Equal(t, "/sub", h2.Request.Path)

		require.NoError(t, inner.Close(ctx))
		assert.Same(t, h1, di.MustGet[*testtypes.Handler](ctx, outer, "handler"))
	})

	t.Run("synthetic not supplied", func(t *testing.T) {
		scope, err := c.NewScope(di.ScopeRequest)
		require.NoError(t, err)

		_, err = scope.Get(ctx, "handler")
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, di.ErrSyntheticNotSet)
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, err := c.NewScope("session")
		testutils.LogError(t, err)

		assert.EqualError(t, err, "di.Container.NewScope session: scope not registered")
	})

	t.Run("closed scope", func(t *testing.T) {
		scope, err := c.NewScope(di.ScopeRequest)
		require.NoError(t, err)
		require.NoError(t, scope.Close(ctx))

		_, err = scope.Get(ctx, "counter")
		assert.ErrorIs(t, err, di.ErrContainerClosed)
		_, err = scope.NewScope(di.ScopeRequest)
		assert.ErrorIs(t, err, di.ErrContainerClosed)
	})

	t.Run("closed container", func(t *testing.T) {
		log := &testtypes.Log{}
		c := newRequestContainer(t, func(b *di.ContainerBuilder) {
			b.Register("log", func() *testtypes.Log { return log })
			b.Register("resource", testtypes.NewClosable, di.WithArgs(di.Ref("log"), "resource"))
		})

		scope, err := c.NewScope(di.ScopeRequest)
		require.NoError(t, err)
		require.NoError(t, c.Close(ctx))

		_, err = scope.Get(ctx, "resource")
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, di.ErrContainerClosed)
		assert.Empty(t, log.Events())
	})

	t.Run("concurrent scopes", func(t *testing.T) {
		var mu sync.Mutex
		seen := make(map[*testtypes.Counter]bool)

		testutils.RunParallel(20, func(int) {
			scope, err := c.NewScope(di.ScopeRequest, di.WithSynthetic("request", &testtypes.Request{}))
			if !assert.NoError(t, err) {
				return
			}
			defer scope.Close(ctx)

			h := di.MustGet[*testtypes.Handler](ctx, scope, "handler")

			mu.Lock()
			seen[h.Counter] = true
			mu.Unlock()
		})

		assert.Len(t, seen, 20)
	})
}

func Test_ScopeWidening(t *testing.T) {
	ctx := context.Background()

	t.Run("direct reference", func(t *testing.T) {
		b := di.NewContainerBuilder()
		b.AddScope(di.ScopeRequest, di.ScopeContainer)
		b.Register("request", nil, di.Synthetic(), di.InScope(di.ScopeRequest))
		b.Register("kernel", testtypes.NewHandler, di.WithArgs(di.Ref("request"), nil))

		_, err := b.Compile(ctx)
		testutils.LogError(t, err)

		assert.ErrorIs(t, err, di.ErrScopeWidening)
	})

	t.Run("through prototype", func(t *testing.T) {
		b := di.NewContainerBuilder()
		b.AddScope(di.ScopeRequest, di.ScopeContainer)
		b.Register("request", nil, di.Synthetic(), di.InScope(di.ScopeRequest))
		b.Register("handler", testtypes.NewHandler,
			di.WithArgs(di.Ref("request"), nil),
			di.InScope(di.ScopePrototype),
		)
		b.Register("kernel", testtypes.NewChain, di.WithMethodCall("AddPartial", di.Ref("handler")))

		_, err := b.Compile(ctx)
		testutils.LogError(t, err)

		assert.ErrorIs(t, err, di.ErrScopeWidening)
	})

	t.Run("narrower to wider is allowed", func(t *testing.T) {
		c := newRequestContainer(t, func(b *di.ContainerBuilder) {
			b.Register("a", testtypes.NewCounter)
			b.Register("scoped", testtypes.NewHandler,
				di.WithArgs(di.Ref("request"), di.Ref("a")),
				di.InScope(di.ScopeRequest),
			)
		})

		scope, err := c.NewScope(di.ScopeRequest, di.WithSynthetic("request", &testtypes.Request{}))
		require.NoError(t, err)

		h := di.MustGet[*testtypes.Handler](ctx, scope, "scoped")
		assert.Same(t, di.MustGet[*testtypes.Counter](ctx, c, "a"), h.Counter)
	})

	t.Run("proxy", func(t *testing.T) {
		c := newRequestContainer(t, func(b *di.ContainerBuilder) {
			b.Register("kernel", newKernel, di.WithArgs(di.ProxyRef("handler")))
		})

		k := di.MustGet[*kernel](ctx, c, "kernel")
		assert.Equal(t, "handler", k.handler.ID())

		_, err := k.handler.Get(ctx)
		assert.ErrorIs(t, err, di.ErrScopeNotActive)

		r := &testtypes.Request{Path: "/proxy"}
		scope, err := c.NewScope(di.ScopeRequest, di.WithSynthetic("request", r))
		require.NoError(t, err)

		h, err := di.ProxyGet[*testtypes.Handler](di.ContextWithScope(ctx, scope), k.handler)
		require.NoError(t, err)
		assert.Same(t, r, h.Request)
	})
}
