// Package eventsubscriber holds the core listeners of the kernel and
// configuration events.
package eventsubscriber

import (
	"context"
	"strings"

	"github.com/sectrean/servicekit/core/entity"
	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/core/kernel"
	"github.com/sectrean/servicekit/core/path"
	"github.com/sectrean/servicekit/core/routing"
	"github.com/sectrean/servicekit/internal/errors"
)

// Request listener priorities, highest first.
const (
	PriorityLegacyRequest   = 300
	PriorityPath            = 200
	PriorityMaintenanceMode = 40
	PriorityRouter          = 32
	PriorityRouteProcessor  = 31
	PriorityAccess          = 30
)

// ErrMaintenanceMode is returned for requests while the site is in maintenance mode.
var ErrMaintenanceMode = errors.New("site under maintenance")

// MaintenancePermission lets an account use the site in maintenance mode.
const MaintenancePermission = "access site in maintenance mode"

func kernelEvent(e event.Event) (*kernel.Event, error) {
	ke, ok := e.(*kernel.Event)
	if !ok {
		return nil, errors.Errorf("unexpected event %T", e)
	}
	return ke, nil
}

// kernelListener adapts a function of a kernel event to an [event.Listener].
func kernelListener(f func(ctx context.Context, e *kernel.Event) error) event.Listener {
	return func(ctx context.Context, e event.Event) error {
		ke, err := kernelEvent(e)
		if err != nil {
			return err
		}
		return f(ctx, ke)
	}
}

// LegacyRequestSubscriber turns the q query parameter into the request path.
type LegacyRequestSubscriber struct{}

// NewLegacyRequestSubscriber creates a [LegacyRequestSubscriber].
func NewLegacyRequestSubscriber() *LegacyRequestSubscriber {
	return &LegacyRequestSubscriber{}
}

// SubscribedEvents implements [event.Subscriber].
func (s *LegacyRequestSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventRequest, Listener: kernelListener(s.onRequest), Priority: PriorityLegacyRequest},
	}
}

func (*LegacyRequestSubscriber) onRequest(_ context.Context, e *kernel.Event) error {
	q := e.Request.URL.Query()
	p := q.Get("q")
	if p == "" {
		return nil
	}

	r := e.Request.Clone(e.Request.Context())
	q.Del("q")
	r.URL.Path = "/" + strings.Trim(p, "/")
	r.URL.RawPath = ""
	r.URL.RawQuery = q.Encode()
	e.Request = r
	return nil
}

// PathSubscriber converts an alias in the request path to its system path.
type PathSubscriber struct {
	aliases path.AliasLookup
}

// NewPathSubscriber creates a [PathSubscriber].
func NewPathSubscriber(aliases path.AliasLookup) *PathSubscriber {
	return &PathSubscriber{aliases: aliases}
}

// SubscribedEvents implements [event.Subscriber].
func (s *PathSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventRequest, Listener: kernelListener(s.onRequest), Priority: PriorityPath},
	}
}

func (s *PathSubscriber) onRequest(ctx context.Context, e *kernel.Event) error {
	system, err := s.aliases.GetSystemPath(ctx, e.Request.URL.Path, path.LangcodeNotSpecified)
	if err != nil {
		return errors.Wrap(err, "path subscriber")
	}
	e.SetAttributes(map[string]string{"_system_path": strings.TrimPrefix(system, "/")})

	if system == e.Request.URL.Path {
		return nil
	}
	r := e.Request.Clone(e.Request.Context())
	r.URL.Path = system
	r.URL.RawPath = ""
	e.Request = r
	return nil
}

// MaintenanceModeSubscriber rejects requests while the site is in maintenance mode.
type MaintenanceModeSubscriber struct {
	enabled bool
}

// NewMaintenanceModeSubscriber creates a [MaintenanceModeSubscriber].
func NewMaintenanceModeSubscriber(enabled bool) *MaintenanceModeSubscriber {
	return &MaintenanceModeSubscriber{enabled: enabled}
}

// SubscribedEvents implements [event.Subscriber].
func (s *MaintenanceModeSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventRequest, Listener: kernelListener(s.onRequest), Priority: PriorityMaintenanceMode},
	}
}

func (s *MaintenanceModeSubscriber) onRequest(ctx context.Context, e *kernel.Event) error {
	if !s.enabled || entity.AccountFromContext(ctx).HasPermission(MaintenancePermission) {
		return nil
	}
	return errors.Wrapf(ErrMaintenanceMode, "path %s", e.Request.URL.Path)
}

// RouterListener sets the request attributes from the matched route.
type RouterListener struct {
	matcher routing.RequestMatcher
}

// NewRouterListener creates a [RouterListener].
func NewRouterListener(matcher routing.RequestMatcher) *RouterListener {
	return &RouterListener{matcher: matcher}
}

// SubscribedEvents implements [event.Subscriber].
func (s *RouterListener) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventRequest, Listener: kernelListener(s.onRequest), Priority: PriorityRouter},
	}
}

func (s *RouterListener) onRequest(_ context.Context, e *kernel.Event) error {
	// Already routed, e.g. a sub-request built with its attributes.
	if e.Attribute(routing.ControllerAttribute) != "" {
		return nil
	}

	m, err := s.matcher.MatchRequest(e.Request)
	if err != nil {
		return err
	}
	e.SetAttributes(m.Attributes())
	return nil
}

// RouteProcessorSubscriber uses the _content default as the controller of
// routes that only define page content.
type RouteProcessorSubscriber struct{}

// NewRouteProcessorSubscriber creates a [RouteProcessorSubscriber].
func NewRouteProcessorSubscriber() *RouteProcessorSubscriber {
	return &RouteProcessorSubscriber{}
}

// SubscribedEvents implements [event.Subscriber].
func (s *RouteProcessorSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventRequest, Listener: kernelListener(s.onRequest), Priority: PriorityRouteProcessor},
	}
}

func (*RouteProcessorSubscriber) onRequest(_ context.Context, e *kernel.Event) error {
	content := e.Attribute(routing.ContentAttribute)
	if content != "" && e.Attribute(routing.ControllerAttribute) == "" {
		e.SetAttributes(map[string]string{routing.ControllerAttribute: content})
	}
	return nil
}

// AccessSubscriber enforces the _access and _permission route defaults.
type AccessSubscriber struct{}

// NewAccessSubscriber creates an [AccessSubscriber].
func NewAccessSubscriber() *AccessSubscriber {
	return &AccessSubscriber{}
}

// SubscribedEvents implements [event.Subscriber].
func (s *AccessSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventRequest, Listener: kernelListener(s.onRequest), Priority: PriorityAccess},
	}
}

func (*AccessSubscriber) onRequest(ctx context.Context, e *kernel.Event) error {
	route := e.Attribute(routing.RouteAttribute)

	if strings.EqualFold(e.Attribute(routing.AccessAttribute), "false") {
		return errors.Wrapf(routing.ErrAccessDenied, "route %s", route)
	}
	if p := e.Attribute(routing.PermissionAttribute); p != "" && !entity.AccountFromContext(ctx).HasPermission(p) {
		return errors.Wrapf(routing.ErrAccessDenied, "route %s requires %q", route, p)
	}
	return nil
}
