// Package event dispatches named events to prioritized listeners.
package event

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/sectrean/servicekit/internal/errors"
)

// Event is passed to every listener of an event name.
type Event interface {
	StopPropagation()
	IsPropagationStopped() bool
}

// Base is embedded by events to implement [Event].
type Base struct {
	stopped bool
}

func (b *Base) StopPropagation() {
	b.stopped = true
}

func (b *Base) IsPropagationStopped() bool {
	return b.stopped
}

// Listener handles an event. Returning an error stops the dispatch.
type Listener func(ctx context.Context, e Event) error

// Subscription binds a listener to an event name.
// Listeners with higher priority are called first.
type Subscription struct {
	Event    string
	Listener Listener
	Priority int
}

// Subscriber describes the events it handles.
type Subscriber interface {
	SubscribedEvents() []Subscription
}

// Dispatcher is the contract shared by dispatcher implementations.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, e Event) error
	AddListener(name string, l Listener, priority int)
	AddSubscriber(s Subscriber)
}

type entry struct {
	listener Listener
	priority int
	seq      int
}

// EventDispatcher calls listeners registered directly on it.
type EventDispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]entry
	seq       int
}

var _ Dispatcher = (*EventDispatcher)(nil)

// NewEventDispatcher creates an empty [EventDispatcher].
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		listeners: make(map[string][]entry),
	}
}

func (d *EventDispatcher) AddListener(name string, l Listener, priority int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	d.listeners[name] = append(d.listeners[name], entry{listener: l, priority: priority, seq: d.seq})
	sortEntries(d.listeners[name])
}

func (d *EventDispatcher) AddSubscriber(s Subscriber) {
	for _, sub := range s.SubscribedEvents() {
		d.AddListener(sub.Event, sub.Listener, sub.Priority)
	}
}

// HasListeners returns true if any listener is registered for the event name.
func (d *EventDispatcher) HasListeners(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[name]) > 0
}

func (d *EventDispatcher) Dispatch(ctx context.Context, name string, e Event) error {
	d.mu.RLock()
	entries := slices.Clone(d.listeners[name])
	d.mu.RUnlock()

	return errors.Wrapf(call(ctx, entries, e), "dispatch %s", name)
}

func call(ctx context.Context, entries []entry, e Event) error {
	for _, en := range entries {
		if e.IsPropagationStopped() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := en.listener(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func sortEntries(entries []entry) {
	slices.SortStableFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(b.priority, a.priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}
