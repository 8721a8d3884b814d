package kernel_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/core/kernel"
	"github.com/sectrean/servicekit/internal/errors"
	"github.com/sectrean/servicekit/internal/testutils"
)

type pageController struct {
	r *http.Request
}

func newPageController(r *http.Request) *pageController {
	return &pageController{r: r}
}

func (c *pageController) Show(ctx context.Context, _ *http.Request) (any, error) {
	return "page " + kernel.Attributes(ctx)["id"], nil
}

func (c *pageController) Request(context.Context, *http.Request) (any, error) {
	return c.r, nil
}

func (*pageController) NotAController() string { return "" }

var errBroken = errors.New("broken")

type fixture struct {
	container  *di.Container
	dispatcher *event.EventDispatcher
	resolver   *kernel.ControllerResolver
	kernel     *kernel.HTTPKernel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	b := di.NewContainerBuilder()
	b.AddScope(di.ScopeRequest, di.ScopeContainer)
	b.Register("request", nil, di.Synthetic(), di.InScope(di.ScopeRequest))
	b.Register("page.controller", newPageController,
		di.WithArgs(di.Ref("request")),
		di.InScope(di.ScopeRequest),
	)
	c, err := b.Compile(ctx)
	require.NoError(t, err)

	f := &fixture{
		container:  c,
		dispatcher: event.NewEventDispatcher(),
		resolver:   kernel.NewControllerResolver(c),
	}
	f.kernel = kernel.NewHTTPKernel(f.dispatcher, c, f.resolver)

	// Routing stand-in: the path names the controller.
	f.dispatcher.AddListener(kernel.EventRequest, func(_ context.Context, e event.Event) error {
		ke := e.(*kernel.Event)
		switch ke.Request.URL.Path {
		case "/page":
			ke.SetAttributes(map[string]string{"_controller": "page.controller:Show", "id": "7"})
		case "/same":
			ke.SetAttributes(map[string]string{"_controller": "page.controller::Request"})
		case "/raw":
			ke.SetAttributes(map[string]string{"_controller": "raw"})
		case "/broken":
			ke.SetAttributes(map[string]string{"_controller": "broken"})
		case "/bad-method":
			ke.SetAttributes(map[string]string{"_controller": "page.controller:NotAController"})
		case "/early":
			ke.SetResponse(kernel.NewResponse(http.StatusTeapot, "text/plain", []byte("early")))
		}
		return nil
	}, 0)

	f.dispatcher.AddListener(kernel.EventView, func(_ context.Context, e event.Event) error {
		ke := e.(*kernel.Event)
		if s, ok := ke.Result.(string); ok {
			ke.Response = kernel.NewResponse(http.StatusOK, "text/plain", []byte(s))
		}
		return nil
	}, 0)

	f.dispatcher.AddListener(kernel.EventResponse, func(_ context.Context, e event.Event) error {
		e.(*kernel.Event).Response.Header.Set("X-Kernel", "1")
		return nil
	}, 0)

	f.resolver.Register("raw", func(context.Context, *http.Request) (any, error) {
		return kernel.NewResponse(http.StatusCreated, "text/plain", []byte("raw")), nil
	})
	f.resolver.Register("broken", func(context.Context, *http.Request) (any, error) {
		return nil, errBroken
	})

	return f
}

func Test_HTTPKernel_Handle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("service controller and view", func(t *testing.T) {
		resp, err := f.kernel.Handle(ctx, httptest.NewRequest("GET", "/page", nil), kernel.MainRequest)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "page 7", string(resp.Body))
		assert.Equal(t, "1", resp.Header.Get("X-Kernel"))
	})

	t.Run("registered controller response", func(t *testing.T) {
		resp, err := f.kernel.Handle(ctx, httptest.NewRequest("GET", "/raw", nil), kernel.MainRequest)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.Status)
		assert.Equal(t, "1", resp.Header.Get("X-Kernel"))
	})

	t.Run("request listener response", func(t *testing.T) {
		resp, err := f.kernel.Handle(ctx, httptest.NewRequest("GET", "/early", nil), kernel.MainRequest)
		require.NoError(t, err)
		assert.Equal(t, http.StatusTeapot, resp.Status)
		assert.Equal(t, "1", resp.Header.Get("X-Kernel"))
	})

	t.Run("no controller", func(t *testing.T) {
		_, err := f.kernel.Handle(ctx, httptest.NewRequest("GET", "/nothing", nil), kernel.MainRequest)
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, kernel.ErrControllerNotFound)
	})

	t.Run("method is not a controller", func(t *testing.T) {
		_, err := f.kernel.Handle(ctx, httptest.NewRequest("GET", "/bad-method", nil), kernel.MainRequest)
		testutils.LogError(t, err)
		assert.Error(t, err)
	})

	t.Run("unhandled error", func(t *testing.T) {
		_, err := f.kernel.Handle(ctx, httptest.NewRequest("GET", "/broken", nil), kernel.MainRequest)
		assert.ErrorIs(t, err, errBroken)
	})
}

func Test_HTTPKernel_Exception(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var seen error
	f.dispatcher.AddListener(kernel.EventException, func(_ context.Context, e event.Event) error {
		ke := e.(*kernel.Event)
		seen = ke.Err
		ke.SetResponse(kernel.NewResponse(http.StatusServiceUnavailable, "text/plain", []byte("sorry")))
		return nil
	}, 0)

	resp, err := f.kernel.Handle(ctx, httptest.NewRequest("GET", "/broken", nil), kernel.MainRequest)
	require.NoError(t, err)
	assert.ErrorIs(t, seen, errBroken)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, "1", resp.Header.Get("X-Kernel"), "response listeners run for exception responses")
}

func Test_HTTPKernel_Scopes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	outer := httptest.NewRequest("GET", "/same", nil)
	scope, err := f.container.NewScope(di.ScopeRequest, di.WithSynthetic("request", outer))
	require.NoError(t, err)
	t.Cleanup(func() { _ = scope.Close(ctx) })
	ctx = di.ContextWithScope(ctx, scope)

	var got *http.Request
	f.dispatcher.AddListener(kernel.EventView, func(_ context.Context, e event.Event) error {
		ke := e.(*kernel.Event)
		if r, ok := ke.Result.(*http.Request); ok {
			got = r
			ke.Response = kernel.NewResponse(http.StatusOK, "", nil)
		}
		return nil
	}, 0)

	t.Run("main request reuses scope", func(t *testing.T) {
		_, err := f.kernel.Handle(ctx, outer, kernel.MainRequest)
		require.NoError(t, err)
		assert.Same(t, outer, got)
	})

	t.Run("sub-request enters new scope", func(t *testing.T) {
		sub := httptest.NewRequest("GET", "/same", nil)
		_, err := f.kernel.HandleSubRequest(ctx, sub)
		require.NoError(t, err)
		assert.Same(t, sub, got)

		// The outer scope still holds its own instance.
		c, err := di.Get[*pageController](ctx, scope, "page.controller")
		require.NoError(t, err)
		assert.Same(t, outer, c.r)
	})

	t.Run("no scope on context", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/same", nil)
		_, err := f.kernel.Handle(context.Background(), r, kernel.MainRequest)
		require.NoError(t, err)
		assert.Same(t, r, got)
	})
}

func Test_HTTPKernel_ServeHTTP(t *testing.T) {
	f := newFixture(t)

	var terminated bool
	f.dispatcher.AddListener(kernel.EventTerminate, func(_ context.Context, e event.Event) error {
		terminated = e.(*kernel.Event).Response != nil
		return nil
	}, 0)

	t.Run("ok", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.kernel.ServeHTTP(w, httptest.NewRequest("GET", "/page", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "page 7", w.Body.String())
		assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
		assert.True(t, terminated)
	})

	t.Run("unhandled error", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.kernel.ServeHTTP(w, httptest.NewRequest("GET", "/broken", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
