// Package routing matches requests to routes stored in the router table.
package routing

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sectrean/servicekit/internal/errors"
)

// patterns holds the compiled mux of every route pattern matched so far.
var patterns = xsync.NewMapOf[string, *chi.Mux]()

var (
	// ErrResourceNotFound is returned when no route matches the request path.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrMethodNotAllowed is returned when routes match the path but not the method.
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrNotAcceptable is returned when no route serves a format the client accepts.
	ErrNotAcceptable = errors.New("not acceptable")

	// ErrAccessDenied is returned when the route denies access.
	ErrAccessDenied = errors.New("access denied")
)

// Route attribute keys with a meaning to the kernel.
const (
	RouteAttribute      = "_route"
	ControllerAttribute = "_controller"
	ContentAttribute    = "_content"
	AccessAttribute     = "_access"
	PermissionAttribute = "_permission"
	LegacyAttribute     = "_legacy"
)

// Route maps a path pattern to defaults such as the controller.
//
// Path uses chi pattern syntax, for example "/node/{node}".
// Empty Methods or Formats accept everything.
type Route struct {
	Name     string            `json:"name"`
	Path     string            `json:"path"`
	Methods  []string          `json:"methods,omitempty"`
	Formats  []string          `json:"formats,omitempty"`
	Defaults map[string]string `json:"defaults,omitempty"`
}

// AllowsMethod returns true if the route accepts the HTTP method.
// HEAD is accepted wherever GET is.
func (r Route) AllowsMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	if method == http.MethodHead {
		method = http.MethodGet
	}
	return slices.ContainsFunc(r.Methods, func(m string) bool {
		return strings.EqualFold(m, method)
	})
}

// Fit scores how specific the path is. Static segments to the left weigh more.
func (r Route) Fit() int {
	parts := strings.Split(strings.Trim(r.Path, "/"), "/")
	fit := 0
	for i, p := range parts[:min(len(parts), 30)] {
		if p != "" && !strings.HasPrefix(p, "{") && p != "*" {
			fit |= 1 << (29 - i)
		}
	}
	return fit
}

// Match is the route selected for a request and its path parameters.
type Match struct {
	Route  Route
	Params map[string]string
}

// Attributes merges the route defaults, path parameters and route name.
func (m Match) Attributes() map[string]string {
	attrs := make(map[string]string, len(m.Route.Defaults)+len(m.Params)+1)
	for k, v := range m.Route.Defaults {
		attrs[k] = v
	}
	for k, v := range m.Params {
		attrs[k] = v
	}
	attrs[RouteAttribute] = m.Route.Name
	return attrs
}

// RouteCollection is an ordered set of routes keyed by name.
type RouteCollection struct {
	names  []string
	routes map[string]Route
}

// NewRouteCollection creates an empty [RouteCollection].
func NewRouteCollection() *RouteCollection {
	return &RouteCollection{routes: make(map[string]Route)}
}

// Add adds or replaces a route. A replaced route keeps its position.
func (c *RouteCollection) Add(r Route) {
	if _, ok := c.routes[r.Name]; !ok {
		c.names = append(c.names, r.Name)
	}
	c.routes[r.Name] = r
}

// Get returns the route with the name.
func (c *RouteCollection) Get(name string) (Route, bool) {
	r, ok := c.routes[name]
	return r, ok
}

// Remove deletes routes by name.
func (c *RouteCollection) Remove(names ...string) {
	for _, name := range names {
		if _, ok := c.routes[name]; !ok {
			continue
		}
		delete(c.routes, name)
		c.names = slices.DeleteFunc(c.names, func(n string) bool { return n == name })
	}
}

// All returns the routes in order.
func (c *RouteCollection) All() []Route {
	routes := make([]Route, len(c.names))
	for i, name := range c.names {
		routes[i] = c.routes[name]
	}
	return routes
}

// Len returns the number of routes.
func (c *RouteCollection) Len() int {
	return len(c.names)
}

// matchPath matches a path against a chi pattern and returns its parameters.
func matchPath(pattern, path string) (params map[string]string, ok bool, err error) {
	mux, err := compiled(pattern)
	if err != nil {
		return nil, false, err
	}

	rctx := chi.NewRouteContext()
	if !mux.Match(rctx, http.MethodGet, path) {
		return nil, false, nil
	}

	params = make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		if k == "*" {
			k = "path"
		}
		params[k] = rctx.URLParams.Values[i]
	}
	return params, true, nil
}

// compiled returns the cached mux for pattern, compiling it on first use.
func compiled(pattern string) (*chi.Mux, error) {
	if mux, ok := patterns.Load(pattern); ok {
		return mux, nil
	}
	mux, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	mux, _ = patterns.LoadOrStore(pattern, mux)
	return mux, nil
}

// compile builds a single-route chi mux. chi panics on malformed patterns.
func compile(pattern string) (mux *chi.Mux, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("route pattern %q: %v", pattern, r)
		}
	}()

	mux = chi.NewMux()
	mux.Handle(pattern, http.NotFoundHandler())
	return mux, nil
}
