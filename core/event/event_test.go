package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/internal/testutils"
)

type testEvent struct {
	event.Base
	calls []string
}

func record(name string) event.Listener {
	return func(_ context.Context, e event.Event) error {
		te := e.(*testEvent)
		te.calls = append(te.calls, name)
		return nil
	}
}

type recordingSubscriber struct {
	name     string
	priority int
}

func (s *recordingSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: "kernel.request", Listener: record(s.name), Priority: s.priority},
	}
}

func Test_EventDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("priority then registration order", func(t *testing.T) {
		d := event.NewEventDispatcher()
		d.AddListener("kernel.request", record("low"), -10)
		d.AddListener("kernel.request", record("first"), 0)
		d.AddListener("kernel.request", record("high"), 32)
		d.AddListener("kernel.request", record("second"), 0)

		e := &testEvent{}
		require.NoError(t, d.Dispatch(ctx, "kernel.request", e))
		assert.Equal(t, []string{"high", "first", "second", "low"}, e.calls)
	})

	t.Run("stop propagation", func(t *testing.T) {
		d := event.NewEventDispatcher()
		d.AddListener("kernel.view", func(_ context.Context, e event.Event) error {
			e.StopPropagation()
			return nil
		}, 10)
		d.AddListener("kernel.view", record("never"), 0)

		e := &testEvent{}
		require.NoError(t, d.Dispatch(ctx, "kernel.view", e))
		assert.Empty(t, e.calls)
	})

	t.Run("listener error", func(t *testing.T) {
		errBoom := errors.New("boom")
		d := event.NewEventDispatcher()
		d.AddListener("config.init", func(context.Context, event.Event) error {
			return errBoom
		}, 0)

		err := d.Dispatch(ctx, "config.init", &testEvent{})
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, errBoom)
		assert.EqualError(t, err, "dispatch config.init: boom")
	})

	t.Run("subscriber", func(t *testing.T) {
		d := event.NewEventDispatcher()
		d.AddSubscriber(&recordingSubscriber{name: "sub"})

		assert.True(t, d.HasListeners("kernel.request"))
		assert.False(t, d.HasListeners("kernel.response"))
	})
}

func Test_ContainerAwareDispatcher(t *testing.T) {
	ctx := context.Background()

	b := di.NewContainerBuilder()
	b.AddScope(di.ScopeRequest, di.ScopeContainer)
	b.Register("router_listener", func() *recordingSubscriber {
		return &recordingSubscriber{name: "router", priority: 32}
	})
	b.Register("finish_response_subscriber", func() *recordingSubscriber {
		return &recordingSubscriber{name: "finish", priority: 0}
	}, di.InScope(di.ScopeRequest))
	b.Register("not_a_subscriber", func() string { return "x" })
	b.Register("dispatcher", event.NewContainerAwareDispatcher,
		di.WithArgs(di.Ref(di.ServiceContainerID)),
		di.WithMethodCall("AddSubscriberService", "finish_response_subscriber"),
		di.WithMethodCall("AddSubscriberService", "router_listener"),
	)
	c, err := b.Compile(ctx)
	require.NoError(t, err)

	d, err := di.Get[*event.ContainerAwareDispatcher](ctx, c, "dispatcher")
	require.NoError(t, err)
	assert.Equal(t, []string{"finish_response_subscriber", "router_listener"}, d.SubscriberServices())

	t.Run("request subscriber skipped outside scope", func(t *testing.T) {
		e := &testEvent{}
		require.NoError(t, d.Dispatch(ctx, "kernel.request", e))
		assert.Equal(t, []string{"router"}, e.calls)
	})

	t.Run("request subscriber called inside scope", func(t *testing.T) {
		scope, err := c.NewScope(di.ScopeRequest)
		require.NoError(t, err)
		defer scope.Close(ctx)

		d.AddListener("kernel.request", record("direct"), 100)

		e := &testEvent{}
		require.NoError(t, d.Dispatch(di.ContextWithScope(ctx, scope), "kernel.request", e))
		assert.Equal(t, []string{"direct", "router", "finish"}, e.calls)
	})

	t.Run("not a subscriber", func(t *testing.T) {
		d.AddSubscriberService("not_a_subscriber")

		err := d.Dispatch(ctx, "kernel.request", &testEvent{})
		testutils.LogError(t, err)
		assert.ErrorContains(t, err, "not_a_subscriber (string) is not an event subscriber")
	})
}
