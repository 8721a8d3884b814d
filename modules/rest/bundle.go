package rest

import (
	"context"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core"
	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/core/routing"
	"github.com/sectrean/servicekit/internal/errors"
)

// TagResource marks services served by the request handler.
const TagResource = "rest.resource"

// ParameterFormats lists the formats resource routes respond in.
const ParameterFormats = "rest.formats"

// RouteSubscriber adds a route for each resource method when routes are built.
type RouteSubscriber struct {
	handler *RequestHandler
	formats []string
}

// NewRouteSubscriber creates a [RouteSubscriber].
func NewRouteSubscriber(handler *RequestHandler, formats []string) *RouteSubscriber {
	return &RouteSubscriber{handler: handler, formats: formats}
}

// SubscribedEvents implements [event.Subscriber].
func (s *RouteSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: routing.EventRouteBuild, Listener: s.onRouteBuild},
	}
}

func (s *RouteSubscriber) onRouteBuild(_ context.Context, e event.Event) error {
	be, ok := e.(*routing.RouteBuildEvent)
	if !ok {
		return errors.Errorf("unexpected event %T", e)
	}

	for _, r := range s.handler.Resources() {
		id := r.PluginID()
		for _, method := range Methods(r) {
			be.Collection.Add(routing.Route{
				Name:    "rest." + id + "." + method,
				Path:    "/api/" + id + "/{" + IDAttribute + "}",
				Methods: []string{method},
				Formats: s.formats,
				Defaults: map[string]string{
					routing.ControllerAttribute: "rest.request_handler:Handle",
					routing.PermissionAttribute: Permission(method, id),
					PluginAttribute:             id,
				},
			})
		}
	}
	return nil
}

// Bundle registers the request handler, its resources and routes.
// It must be added after [core.Bundle].
type Bundle struct{}

var _ di.Bundle = Bundle{}

// Name returns the bundle name used in errors.
func (Bundle) Name() string { return "rest" }

// Build implements [di.Bundle].
func (Bundle) Build(b *di.ContainerBuilder) error {
	if !b.HasParameter(ParameterFormats) {
		b.SetParameter(ParameterFormats, []string{"json", "yaml"})
	}

	b.Register("rest.request_handler", NewRequestHandler)
	b.Register("rest.resource.entity_type", NewEntityTypeResource,
		di.WithArgs(di.Ref("plugin.manager.entity")),
		di.WithTag(TagResource),
	)
	b.Register("rest.route_subscriber", NewRouteSubscriber,
		di.WithArgs(di.Ref("rest.request_handler"), di.Param(ParameterFormats)),
		di.WithTag(core.TagEventSubscriber),
	)

	b.AddCompilerPass(&di.TaggedMethodCallPass{
		Tag:        TagResource,
		ConsumerID: "rest.request_handler",
		Method:     "AddResource",
	})
	return nil
}
