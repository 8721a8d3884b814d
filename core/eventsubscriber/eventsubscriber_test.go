package eventsubscriber_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core/config"
	"github.com/sectrean/servicekit/core/entity"
	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/core/eventsubscriber"
	"github.com/sectrean/servicekit/core/kernel"
	"github.com/sectrean/servicekit/core/language"
	"github.com/sectrean/servicekit/core/negotiation"
	"github.com/sectrean/servicekit/core/routing"
	"github.com/sectrean/servicekit/core/serializer"
	"github.com/sectrean/servicekit/core/template"
	"github.com/sectrean/servicekit/internal/errors"
	"github.com/sectrean/servicekit/internal/testutils"
)

// dispatch sends e to the subscriber's listeners for name, in priority order.
func dispatch(t *testing.T, ctx context.Context, s event.Subscriber, name string, e event.Event) error {
	t.Helper()
	d := event.NewEventDispatcher()
	d.AddSubscriber(s)
	return d.Dispatch(ctx, name, e)
}

func newEvent(method, target string) *kernel.Event {
	return &kernel.Event{
		Request:    httptest.NewRequest(method, target, nil),
		Attributes: make(map[string]string),
	}
}

type aliasLookupMock struct {
	mock.Mock
}

func (m *aliasLookupMock) GetPathAlias(ctx context.Context, path, langcode string) (string, error) {
	args := m.Called(ctx, path, langcode)
	return args.String(0), args.Error(1)
}

func (m *aliasLookupMock) GetSystemPath(ctx context.Context, alias, langcode string) (string, error) {
	args := m.Called(ctx, alias, langcode)
	return args.String(0), args.Error(1)
}

func (m *aliasLookupMock) CacheClear(ctx context.Context, source string) error {
	return m.Called(ctx, source).Error(0)
}

type matcherFunc func(r *http.Request) (routing.Match, error)

func (f matcherFunc) MatchRequest(r *http.Request) (routing.Match, error) {
	return f(r)
}

func Test_LegacyRequestSubscriber(t *testing.T) {
	ctx := context.Background()
	s := eventsubscriber.NewLegacyRequestSubscriber()

	e := newEvent("GET", "/index.php?q=node/7&page=2")
	require.NoError(t, dispatch(t, ctx, s, kernel.EventRequest, e))
	assert.Equal(t, "/node/7", e.Request.URL.Path)
	assert.Equal(t, "page=2", e.Request.URL.RawQuery)

	e = newEvent("GET", "/node/8")
	orig := e.Request
	require.NoError(t, dispatch(t, ctx, s, kernel.EventRequest, e))
	assert.Same(t, orig, e.Request)
}

func Test_PathSubscriber(t *testing.T) {
	ctx := context.Background()

	aliases := &aliasLookupMock{}
	aliases.On("GetSystemPath", mock.Anything, "/about", "und").Return("/node/1", nil)
	aliases.On("GetSystemPath", mock.Anything, "/node/2", "und").Return("/node/2", nil)
	aliases.On("GetSystemPath", mock.Anything, "/fail", "und").Return("", errors.New("db down"))

	s := eventsubscriber.NewPathSubscriber(aliases)

	t.Run("alias", func(t *testing.T) {
		e := newEvent("GET", "/about")
		require.NoError(t, dispatch(t, ctx, s, kernel.EventRequest, e))
		assert.Equal(t, "/node/1", e.Request.URL.Path)
		assert.Equal(t, "node/1", e.Attribute("_system_path"))
	})

	t.Run("system path", func(t *testing.T) {
		e := newEvent("GET", "/node/2")
		orig := e.Request
		require.NoError(t, dispatch(t, ctx, s, kernel.EventRequest, e))
		assert.Same(t, orig, e.Request)
	})

	t.Run("error", func(t *testing.T) {
		err := dispatch(t, ctx, s, kernel.EventRequest, newEvent("GET", "/fail"))
		testutils.LogError(t, err)
		assert.Error(t, err)
	})

	aliases.AssertExpectations(t)
}

func Test_MaintenanceModeSubscriber(t *testing.T) {
	ctx := context.Background()

	err := dispatch(t, ctx, eventsubscriber.NewMaintenanceModeSubscriber(false), kernel.EventRequest, newEvent("GET", "/"))
	assert.NoError(t, err)

	on := eventsubscriber.NewMaintenanceModeSubscriber(true)
	err = dispatch(t, ctx, on, kernel.EventRequest, newEvent("GET", "/"))
	testutils.LogError(t, err)
	assert.ErrorIs(t, err, eventsubscriber.ErrMaintenanceMode)
	assert.Equal(t, http.StatusServiceUnavailable, eventsubscriber.StatusCode(err))

	admin := entity.WithAccount(ctx, entity.Account{UID: "2", Permissions: []string{eventsubscriber.MaintenancePermission}})
	assert.NoError(t, dispatch(t, admin, on, kernel.EventRequest, newEvent("GET", "/")))
}

func Test_RouterListener_RouteProcessor_Access(t *testing.T) {
	ctx := context.Background()

	matcher := matcherFunc(func(r *http.Request) (routing.Match, error) {
		switch r.URL.Path {
		case "/page":
			return routing.Match{
				Route:  routing.Route{Name: "page", Defaults: map[string]string{"_content": "page:Show"}},
				Params: map[string]string{"id": "1"},
			}, nil
		case "/admin":
			return routing.Match{
				Route: routing.Route{Name: "admin", Defaults: map[string]string{"_controller": "admin:Show", "_permission": "administer site"}},
			}, nil
		case "/closed":
			return routing.Match{
				Route: routing.Route{Name: "closed", Defaults: map[string]string{"_controller": "c:Show", "_access": "FALSE"}},
			}, nil
		}
		return routing.Match{}, routing.ErrResourceNotFound
	})

	d := event.NewEventDispatcher()
	d.AddSubscriber(eventsubscriber.NewRouterListener(matcher))
	d.AddSubscriber(eventsubscriber.NewRouteProcessorSubscriber())
	d.AddSubscriber(eventsubscriber.NewAccessSubscriber())

	t.Run("content route", func(t *testing.T) {
		e := newEvent("GET", "/page")
		require.NoError(t, d.Dispatch(ctx, kernel.EventRequest, e))
		assert.Equal(t, "page:Show", e.Attribute("_controller"))
		assert.Equal(t, "1", e.Attribute("id"))
		assert.Equal(t, "page", e.Attribute("_route"))
	})

	t.Run("already routed", func(t *testing.T) {
		e := newEvent("GET", "/nowhere")
		e.SetAttributes(map[string]string{"_controller": "x:Y"})
		require.NoError(t, d.Dispatch(ctx, kernel.EventRequest, e))
	})

	t.Run("not found", func(t *testing.T) {
		err := d.Dispatch(ctx, kernel.EventRequest, newEvent("GET", "/nowhere"))
		assert.ErrorIs(t, err, routing.ErrResourceNotFound)
		assert.Equal(t, http.StatusNotFound, eventsubscriber.StatusCode(err))
	})

	t.Run("permission", func(t *testing.T) {
		err := d.Dispatch(ctx, kernel.EventRequest, newEvent("GET", "/admin"))
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, routing.ErrAccessDenied)

		admin := entity.WithAccount(ctx, entity.Account{UID: "1"})
		assert.NoError(t, d.Dispatch(admin, kernel.EventRequest, newEvent("GET", "/admin")))
	})

	t.Run("access false", func(t *testing.T) {
		admin := entity.WithAccount(ctx, entity.Account{UID: "1"})
		err := d.Dispatch(admin, kernel.EventRequest, newEvent("GET", "/closed"))
		assert.ErrorIs(t, err, routing.ErrAccessDenied)
		assert.Equal(t, http.StatusForbidden, eventsubscriber.StatusCode(err))
	})
}

type payload struct {
	data   any
	status int
}

func (p payload) ResponseData() any   { return p.data }
func (p payload) StatusCode() int     { return p.status }
func (p payload) Header() http.Header { return http.Header{"X-Payload": {"1"}} }

func newSerializer() *serializer.Serializer {
	return serializer.NewSerializer(
		[]serializer.Normalizer{serializer.NewDefaultNormalizer()},
		[]serializer.Encoder{serializer.NewJSONEncoder(), serializer.NewYAMLEncoder()},
	)
}

func Test_ViewSubscriber(t *testing.T) {
	ctx := context.Background()
	twig, err := template.Get()
	require.NoError(t, err)

	s := eventsubscriber.NewViewSubscriber(negotiation.NewContentNegotiation(), newSerializer(), twig, nil)

	t.Run("html page", func(t *testing.T) {
		e := newEvent("GET", "/")
		e.SetAttributes(map[string]string{"_title": "Home"})
		e.Result = "<p>Welcome</p>"
		require.NoError(t, dispatch(t, ctx, s, kernel.EventView, e))

		require.NotNil(t, e.Response)
		assert.Equal(t, http.StatusOK, e.Response.Status)
		assert.Contains(t, e.Response.Header.Get("Content-Type"), "text/html")
		assert.Contains(t, string(e.Response.Body), "<title>Home</title>")
		assert.Contains(t, string(e.Response.Body), "<p>Welcome</p>")
		assert.Contains(t, string(e.Response.Body), `lang="und"`)
	})

	t.Run("json payload", func(t *testing.T) {
		e := newEvent("GET", "/?_format=json")
		e.Result = payload{data: map[string]any{"id": 7}, status: http.StatusCreated}
		require.NoError(t, dispatch(t, ctx, s, kernel.EventView, e))

		assert.Equal(t, http.StatusCreated, e.Response.Status)
		assert.Equal(t, "application/json", e.Response.Header.Get("Content-Type"))
		assert.Equal(t, "1", e.Response.Header.Get("X-Payload"))
		assert.JSONEq(t, `{"id":7}`, string(e.Response.Body))
	})

	t.Run("ajax", func(t *testing.T) {
		e := newEvent("GET", "/")
		e.Request.Header.Set("X-Requested-With", "XMLHttpRequest")
		e.Result = []int{1, 2}
		require.NoError(t, dispatch(t, ctx, s, kernel.EventView, e))
		assert.JSONEq(t, `[1,2]`, string(e.Response.Body))
	})

	t.Run("data as html", func(t *testing.T) {
		e := newEvent("GET", "/")
		e.Result = map[string]any{"id": 7}
		err := dispatch(t, ctx, s, kernel.EventView, e)
		assert.ErrorIs(t, err, routing.ErrNotAcceptable)
	})

	t.Run("unknown format", func(t *testing.T) {
		e := newEvent("GET", "/?_format=xml")
		e.Result = "x"
		err := dispatch(t, ctx, s, kernel.EventView, e)
		assert.ErrorIs(t, err, routing.ErrNotAcceptable)
	})
}

func Test_FinishResponseSubscriber(t *testing.T) {
	ctx := context.Background()

	r := httptest.NewRequest("GET", "/?lang=de", nil)
	s := eventsubscriber.NewFinishResponseSubscriber(language.NewManager(r, "en", []string{"de"}))

	e := newEvent("GET", "/")
	e.Response = kernel.NewResponse(http.StatusOK, "text/plain", nil)
	require.NoError(t, dispatch(t, ctx, s, kernel.EventResponse, e))

	assert.Equal(t, "de", e.Response.Header.Get("Content-Language"))
	assert.Equal(t, "no-cache, must-revalidate", e.Response.Header.Get("Cache-Control"))

	e.Response = &kernel.Response{Header: http.Header{"Cache-Control": {"max-age=60"}}}
	require.NoError(t, dispatch(t, ctx, s, kernel.EventResponse, e))
	assert.Equal(t, "max-age=60", e.Response.Header.Get("Cache-Control"))
}

func Test_LegacyControllerSubscriber(t *testing.T) {
	ctx := context.Background()

	legacy := routing.NewLegacyURLMatcher()
	legacy.Register("admin/config", func(_ context.Context, args ...string) (any, error) {
		return args, nil
	})
	s := eventsubscriber.NewLegacyControllerSubscriber(legacy)

	t.Run("legacy route", func(t *testing.T) {
		e := newEvent("GET", "/admin/config/system/site")
		e.SetAttributes(map[string]string{"_legacy": "admin/config", "args": "system/site"})
		require.NoError(t, dispatch(t, ctx, s, kernel.EventController, e))
		require.NotNil(t, e.Controller)

		out, err := e.Controller(ctx, e.Request)
		require.NoError(t, err)
		assert.Equal(t, []string{"system", "site"}, out)
	})

	t.Run("unknown legacy path", func(t *testing.T) {
		e := newEvent("GET", "/gone")
		e.SetAttributes(map[string]string{"_legacy": "gone"})
		err := dispatch(t, ctx, s, kernel.EventController, e)
		assert.ErrorIs(t, err, kernel.ErrControllerNotFound)
	})

	t.Run("not legacy", func(t *testing.T) {
		e := newEvent("GET", "/node/1")
		require.NoError(t, dispatch(t, ctx, s, kernel.EventController, e))
		assert.Nil(t, e.Controller)
	})
}

func Test_RequestCloseSubscriber(t *testing.T) {
	ctx := context.Background()

	s := eventsubscriber.NewRequestCloseSubscriber(nil)
	var ran int
	s.AddTask(func(context.Context) error { ran++; return nil })
	s.AddTask(func(context.Context) error { return errors.New("task failed") })

	err := dispatch(t, ctx, s, kernel.EventTerminate, newEvent("GET", "/"))
	testutils.LogError(t, err)
	assert.Error(t, err)
	assert.Equal(t, 1, ran)
}

func Test_ConfigGlobalOverrideSubscriber(t *testing.T) {
	ctx := context.Background()

	storage := config.NewFileStorage(t.TempDir())
	require.NoError(t, storage.Write("system.site", config.Data{"name": "Stored", "slogan": "Hi"}))

	d := event.NewEventDispatcher()
	d.AddSubscriber(eventsubscriber.NewConfigGlobalOverrideSubscriber(map[string]any{
		"system.site": map[string]any{"name": "Overridden"},
	}))
	f := config.NewFactory(storage, d)

	c, err := f.Get(ctx, "system.site")
	require.NoError(t, err)
	assert.Equal(t, "Overridden", c.String("name", ""))
	assert.Equal(t, "Hi", c.String("slogan", ""))
}

func Test_ExceptionListener(t *testing.T) {
	ctx := context.Background()

	b := di.NewContainerBuilder()
	b.Register("twig", template.Get)
	c, err := b.Compile(ctx)
	require.NoError(t, err)

	controller := eventsubscriber.NewExceptionController(negotiation.NewContentNegotiation(), newSerializer())
	listener := controller.Listener(c)

	tests := []struct {
		name   string
		target string
		err    error
		status int
		json   bool
	}{
		{name: "not found html", target: "/", err: routing.ErrResourceNotFound, status: 404},
		{name: "method json", target: "/?_format=json", err: routing.ErrMethodNotAllowed, status: 405, json: true},
		{name: "not acceptable", target: "/?_format=json", err: routing.ErrNotAcceptable, status: 406, json: true},
		{name: "no controller", target: "/", err: kernel.ErrControllerNotFound, status: 404},
		{name: "server error", target: "/?_format=json", err: errors.New("secret detail"), status: 500, json: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEvent("GET", tt.target)
			e.Err = tt.err
			require.NoError(t, dispatch(t, ctx, listener, kernel.EventException, e))
			require.NotNil(t, e.Response)
			assert.Equal(t, tt.status, e.Response.Status)

			if !tt.json {
				assert.Contains(t, string(e.Response.Body), http.StatusText(tt.status))
				return
			}

			var body map[string]any
			require.NoError(t, json.Unmarshal(e.Response.Body, &body))
			assert.EqualValues(t, tt.status, body["status"])
			assert.NotContains(t, body["message"], "secret detail")
		})
	}
}
