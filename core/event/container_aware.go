package event

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/internal/errors"
)

// ContainerAwareDispatcher is an [EventDispatcher] that also calls
// subscribers registered by service id.
//
// Subscriber services are resolved on dispatch from the scope carried by the
// context, falling back to the scope the dispatcher was built in. A
// subscriber whose scope is not active, such as a request-scoped subscriber
// outside a request, is skipped.
type ContainerAwareDispatcher struct {
	*EventDispatcher

	scope  di.Scope
	logger *slog.Logger

	mu       sync.RWMutex
	services []serviceSubscriber
}

type serviceSubscriber struct {
	id  string
	seq int
}

// NewContainerAwareDispatcher creates a dispatcher that resolves subscriber services from scope.
func NewContainerAwareDispatcher(scope di.Scope) *ContainerAwareDispatcher {
	return &ContainerAwareDispatcher{
		EventDispatcher: NewEventDispatcher(),
		scope:           scope,
		logger:          slog.Default(),
	}
}

// SetLogger sets the logger used to report skipped subscribers.
func (d *ContainerAwareDispatcher) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// AddSubscriberService registers the service with the given id as a [Subscriber].
func (d *ContainerAwareDispatcher) AddSubscriberService(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if slices.ContainsFunc(d.services, func(s serviceSubscriber) bool { return s.id == id }) {
		return
	}
	d.EventDispatcher.mu.Lock()
	d.EventDispatcher.seq++
	seq := d.EventDispatcher.seq
	d.EventDispatcher.mu.Unlock()

	d.services = append(d.services, serviceSubscriber{id: id, seq: seq})
}

// SubscriberServices returns the ids registered with AddSubscriberService, in order.
func (d *ContainerAwareDispatcher) SubscriberServices() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, len(d.services))
	for i, s := range d.services {
		ids[i] = s.id
	}
	return ids
}

func (d *ContainerAwareDispatcher) Dispatch(ctx context.Context, name string, e Event) error {
	entries, err := d.serviceEntries(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "dispatch %s", name)
	}

	d.EventDispatcher.mu.RLock()
	entries = append(entries, d.EventDispatcher.listeners[name]...)
	d.EventDispatcher.mu.RUnlock()
	sortEntries(entries)

	return errors.Wrapf(call(ctx, entries, e), "dispatch %s", name)
}

func (d *ContainerAwareDispatcher) serviceEntries(ctx context.Context, name string) ([]entry, error) {
	d.mu.RLock()
	services := slices.Clone(d.services)
	d.mu.RUnlock()

	scope := d.scope
	if s := di.ScopeFromContext(ctx); s != nil {
		scope = s
	}

	var entries []entry
	for _, svc := range services {
		val, err := scope.Get(ctx, svc.id)
		if errors.Is(err, di.ErrScopeNotActive) {
			d.logger.DebugContext(ctx, "skipping subscriber outside its scope",
				"event", name,
				"service", svc.id,
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		sub, ok := val.(Subscriber)
		if !ok {
			return nil, errors.Errorf("service %s (%T) is not an event subscriber", svc.id, val)
		}
		for _, s := range sub.SubscribedEvents() {
			if s.Event == name {
				entries = append(entries, entry{listener: s.Listener, priority: s.Priority, seq: svc.seq})
			}
		}
	}
	return entries, nil
}
