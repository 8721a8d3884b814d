package routing

import (
	"cmp"
	"net/http"
	"slices"

	"github.com/sectrean/servicekit/internal/errors"
)

// RequestMatcher selects a route for a request.
type RequestMatcher interface {
	MatchRequest(r *http.Request) (Match, error)
}

// InitialMatcher builds the candidate routes for a request.
type InitialMatcher interface {
	MatchRequestPartial(r *http.Request) (*RouteCollection, error)
}

// PartialMatcher narrows the candidate routes.
type PartialMatcher interface {
	Filter(c *RouteCollection, r *http.Request) (*RouteCollection, error)
}

// FinalMatcher picks one route from the candidates.
type FinalMatcher interface {
	MatchFinal(c *RouteCollection, r *http.Request) (Match, error)
}

// ChainMatcher tries its matchers by priority, highest first, until one matches.
type ChainMatcher struct {
	matchers []chained
	seq      int
}

type chained struct {
	matcher  RequestMatcher
	priority int
	seq      int
}

var _ RequestMatcher = (*ChainMatcher)(nil)

// NewChainMatcher creates an empty [ChainMatcher].
func NewChainMatcher() *ChainMatcher {
	return &ChainMatcher{}
}

// Add adds a matcher. Matchers with equal priority run in the order added.
func (c *ChainMatcher) Add(m RequestMatcher, priority int) {
	c.matchers = append(c.matchers, chained{matcher: m, priority: priority, seq: c.seq})
	c.seq++
	slices.SortStableFunc(c.matchers, func(a, b chained) int {
		if a.priority != b.priority {
			return cmp.Compare(b.priority, a.priority)
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

// Len returns the number of matchers.
func (c *ChainMatcher) Len() int {
	return len(c.matchers)
}

// MatchRequest returns the first match. When no matcher finds a route, the
// first method or format mismatch is reported instead of not found.
func (c *ChainMatcher) MatchRequest(r *http.Request) (Match, error) {
	var mismatch error
	for _, m := range c.matchers {
		match, err := m.matcher.MatchRequest(r)
		switch {
		case err == nil:
			return match, nil
		case errors.Is(err, ErrMethodNotAllowed), errors.Is(err, ErrNotAcceptable):
			if mismatch == nil {
				mismatch = err
			}
		case errors.Is(err, ErrResourceNotFound):
		default:
			return Match{}, err
		}
	}

	if mismatch != nil {
		return Match{}, mismatch
	}
	return Match{}, errors.Wrapf(ErrResourceNotFound, "no route for %s %s", r.Method, r.URL.Path)
}

// NestedMatcher matches in three steps: the initial matcher finds
// candidates, each partial matcher filters them, and the final matcher picks one.
type NestedMatcher struct {
	initial  InitialMatcher
	partials []PartialMatcher
	final    FinalMatcher
}

var _ RequestMatcher = (*NestedMatcher)(nil)

// NewNestedMatcher creates a [NestedMatcher] with no matchers set.
func NewNestedMatcher() *NestedMatcher {
	return &NestedMatcher{}
}

// SetInitialMatcher sets the matcher that builds the candidates.
func (n *NestedMatcher) SetInitialMatcher(m InitialMatcher) {
	n.initial = m
}

// AddPartialMatcher appends a filter.
func (n *NestedMatcher) AddPartialMatcher(m PartialMatcher) {
	n.partials = append(n.partials, m)
}

// SetFinalMatcher sets the matcher that picks the route.
func (n *NestedMatcher) SetFinalMatcher(m FinalMatcher) {
	n.final = m
}

// MatchRequest implements [RequestMatcher].
func (n *NestedMatcher) MatchRequest(r *http.Request) (Match, error) {
	if n.initial == nil || n.final == nil {
		return Match{}, errors.New("nested matcher: initial and final matchers are required")
	}

	c, err := n.initial.MatchRequestPartial(r)
	if err != nil {
		return Match{}, err
	}
	for _, p := range n.partials {
		if c, err = p.Filter(c, r); err != nil {
			return Match{}, err
		}
	}
	return n.final.MatchFinal(c, r)
}

// HTTPMethodMatcher drops candidates that do not accept the request method.
type HTTPMethodMatcher struct{}

var _ PartialMatcher = (*HTTPMethodMatcher)(nil)

// NewHTTPMethodMatcher creates an [HTTPMethodMatcher].
func NewHTTPMethodMatcher() *HTTPMethodMatcher {
	return &HTTPMethodMatcher{}
}

// Filter implements [PartialMatcher].
func (*HTTPMethodMatcher) Filter(c *RouteCollection, r *http.Request) (*RouteCollection, error) {
	out := NewRouteCollection()
	for _, route := range c.All() {
		if route.AllowsMethod(r.Method) {
			out.Add(route)
		}
	}
	if out.Len() == 0 && c.Len() > 0 {
		return nil, errors.Wrapf(ErrMethodNotAllowed, "%s %s", r.Method, r.URL.Path)
	}
	return out, nil
}

// FirstEntryFinalMatcher picks the first remaining candidate.
type FirstEntryFinalMatcher struct{}

var _ FinalMatcher = (*FirstEntryFinalMatcher)(nil)

// NewFirstEntryFinalMatcher creates a [FirstEntryFinalMatcher].
func NewFirstEntryFinalMatcher() *FirstEntryFinalMatcher {
	return &FirstEntryFinalMatcher{}
}

// MatchFinal implements [FinalMatcher].
func (*FirstEntryFinalMatcher) MatchFinal(c *RouteCollection, r *http.Request) (Match, error) {
	for _, route := range c.All() {
		params, ok, err := matchPath(route.Path, r.URL.Path)
		if err != nil {
			return Match{}, err
		}
		if ok {
			return Match{Route: route, Params: params}, nil
		}
	}
	return Match{}, errors.Wrapf(ErrResourceNotFound, "no route for %s", r.URL.Path)
}
