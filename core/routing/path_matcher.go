package routing

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/sectrean/servicekit/core/negotiation"
	"github.com/sectrean/servicekit/internal/errors"
)

// PathMatcher finds the routes in the router table whose pattern matches the
// request path, most specific first.
//
// The table is loaded once and reloaded when its version changes.
type PathMatcher struct {
	db *sql.DB

	mu      sync.RWMutex
	loaded  bool
	version int64
	routes  []Route
}

var _ InitialMatcher = (*PathMatcher)(nil)

// NewPathMatcher creates a [PathMatcher] reading from db.
func NewPathMatcher(db *sql.DB) *PathMatcher {
	return &PathMatcher{db: db}
}

// MatchRequestPartial implements [InitialMatcher].
func (m *PathMatcher) MatchRequestPartial(r *http.Request) (*RouteCollection, error) {
	routes, err := m.table(r.Context())
	if err != nil {
		return nil, err
	}

	c := NewRouteCollection()
	for _, route := range routes {
		_, ok, err := matchPath(route.Path, r.URL.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "route %s", route.Name)
		}
		if ok {
			c.Add(route)
		}
	}

	if c.Len() == 0 {
		return nil, errors.Wrapf(ErrResourceNotFound, "no route for %s", r.URL.Path)
	}
	return c, nil
}

// table returns the routes of the current table version.
func (m *PathMatcher) table(ctx context.Context) ([]Route, error) {
	version, err := tableVersion(ctx, m.db)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	if m.loaded && m.version == version {
		routes := m.routes
		m.mu.RUnlock()
		return routes, nil
	}
	m.mu.RUnlock()

	routes, err := loadRoutes(ctx, m.db)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.loaded, m.version, m.routes = true, version, routes
	m.mu.Unlock()
	return routes, nil
}

func tableVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var version int64
	err := db.QueryRowContext(ctx, `SELECT version FROM router_version WHERE id = 0`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, errors.Wrap(err, "router version")
}

func loadRoutes(ctx context.Context, db *sql.DB) ([]Route, error) {
	rows, err := db.QueryContext(ctx, `SELECT route FROM router ORDER BY fit DESC, name`)
	if err != nil {
		return nil, errors.Wrap(err, "load routes")
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, errors.Wrap(err, "load routes")
		}
		var route Route
		if err := json.Unmarshal(blob, &route); err != nil {
			return nil, errors.Wrap(err, "load routes")
		}
		routes = append(routes, route)
	}
	return routes, errors.Wrap(rows.Err(), "load routes")
}

// MimeTypeMatcher drops candidates that cannot respond in a format the client accepts.
type MimeTypeMatcher struct{}

var _ PartialMatcher = (*MimeTypeMatcher)(nil)

// NewMimeTypeMatcher creates a [MimeTypeMatcher].
func NewMimeTypeMatcher() *MimeTypeMatcher {
	return &MimeTypeMatcher{}
}

// Filter implements [PartialMatcher]. The _format query parameter overrides
// the Accept header. A request that accepts anything keeps every candidate.
func (*MimeTypeMatcher) Filter(c *RouteCollection, r *http.Request) (*RouteCollection, error) {
	accepted, all := acceptedFormats(r)
	if all {
		return c, nil
	}

	out := NewRouteCollection()
	for _, route := range c.All() {
		if len(route.Formats) == 0 || slices.ContainsFunc(route.Formats, func(f string) bool {
			return slices.Contains(accepted, f)
		}) {
			out.Add(route)
		}
	}
	if out.Len() == 0 && c.Len() > 0 {
		return nil, errors.Wrapf(ErrNotAcceptable, "formats %s", strings.Join(accepted, ","))
	}
	return out, nil
}

func acceptedFormats(r *http.Request) (formats []string, all bool) {
	if f := r.URL.Query().Get(negotiation.FormatParam); f != "" {
		return []string{f}, false
	}

	types := negotiation.AcceptedMediaTypes(r)
	if len(types) == 0 {
		return nil, true
	}
	for _, mt := range types {
		if mt == "*/*" {
			return nil, true
		}
		if f, ok := negotiation.FormatForMediaType(mt); ok {
			formats = append(formats, f)
		}
	}
	return formats, false
}

// LegacyCallback serves a path registered with [LegacyURLMatcher].
// Args are the path segments after the registered path.
type LegacyCallback func(ctx context.Context, args ...string) (any, error)

// LegacyURLMatcher matches paths registered by prefix rather than from the
// router table. The longest registered prefix wins.
type LegacyURLMatcher struct {
	mu        sync.RWMutex
	callbacks map[string]LegacyCallback
}

var _ RequestMatcher = (*LegacyURLMatcher)(nil)

// NewLegacyURLMatcher creates an empty [LegacyURLMatcher].
func NewLegacyURLMatcher() *LegacyURLMatcher {
	return &LegacyURLMatcher{callbacks: make(map[string]LegacyCallback)}
}

// Register serves path and every path below it with callback.
func (m *LegacyURLMatcher) Register(path string, callback LegacyCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[strings.Trim(path, "/")] = callback
}

// Callback returns the callback registered for exactly path.
func (m *LegacyURLMatcher) Callback(path string) (LegacyCallback, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cb, ok := m.callbacks[strings.Trim(path, "/")]
	return cb, ok
}

// MatchRequest implements [RequestMatcher]. The match carries the registered
// path in the _legacy default and the remaining segments in the "args" parameter.
func (m *LegacyURLMatcher) MatchRequest(r *http.Request) (Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for i := len(parts); i > 0; i-- {
		prefix := strings.Join(parts[:i], "/")
		if _, ok := m.callbacks[prefix]; !ok {
			continue
		}

		return Match{
			Route: Route{
				Name:     "legacy:" + prefix,
				Path:     "/" + prefix,
				Defaults: map[string]string{LegacyAttribute: prefix},
			},
			Params: map[string]string{"args": strings.Join(parts[i:], "/")},
		}, nil
	}

	return Match{}, errors.Wrapf(ErrResourceNotFound, "no legacy path for %s", r.URL.Path)
}
