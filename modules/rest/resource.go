package rest

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/sectrean/servicekit/core/entity"
	"github.com/sectrean/servicekit/core/kernel"
	"github.com/sectrean/servicekit/core/routing"
	"github.com/sectrean/servicekit/internal/errors"
)

// Route defaults read by the [RequestHandler].
const (
	// PluginAttribute names the resource a route serves.
	PluginAttribute = "_plugin"

	// IDAttribute is the route parameter with the resource item id.
	IDAttribute = "id"
)

// Resource is a REST resource. It serves GET and may implement [Deleter].
type Resource interface {
	// PluginID is the resource name used in its path and permissions.
	PluginID() string

	Get(ctx context.Context, id string) (*ResourceResponse, error)
}

// Deleter is implemented by resources that serve DELETE.
type Deleter interface {
	Delete(ctx context.Context, id string) (*ResourceResponse, error)
}

// Methods returns the HTTP methods a resource serves.
func Methods(r Resource) []string {
	methods := []string{http.MethodGet}
	if _, ok := r.(Deleter); ok {
		methods = append(methods, http.MethodDelete)
	}
	return methods
}

// Permission returns the permission needed to call method on a resource,
// like "restful get entity_type".
func Permission(method, pluginID string) string {
	return "restful " + strings.ToLower(method) + " " + pluginID
}

// RequestHandler is the controller of every resource route.
type RequestHandler struct {
	mu        sync.RWMutex
	resources map[string]Resource
}

// NewRequestHandler creates a [RequestHandler] without resources.
func NewRequestHandler() *RequestHandler {
	return &RequestHandler{resources: make(map[string]Resource)}
}

// AddResource serves r under its plugin id, replacing any resource with that id.
func (h *RequestHandler) AddResource(r Resource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resources[r.PluginID()] = r
}

// Resources returns the resources ordered by plugin id.
func (h *RequestHandler) Resources() []Resource {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Resource, 0, len(h.resources))
	for _, r := range h.resources {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Resource) int {
		return strings.Compare(a.PluginID(), b.PluginID())
	})
	return out
}

// Handle calls the resource method for the request. It is a [kernel.Controller].
func (h *RequestHandler) Handle(ctx context.Context, r *http.Request) (any, error) {
	attrs := kernel.Attributes(ctx)
	pluginID := attrs[PluginAttribute]

	h.mu.RLock()
	res, ok := h.resources[pluginID]
	h.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(routing.ErrResourceNotFound, "rest resource %q", pluginID)
	}

	id := attrs[IDAttribute]
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return res.Get(ctx, id)
	case http.MethodDelete:
		if d, ok := res.(Deleter); ok {
			return d.Delete(ctx, id)
		}
	}
	return nil, errors.Wrapf(routing.ErrMethodNotAllowed, "rest resource %s: %s", pluginID, r.Method)
}

// EntityTypeResource serves the registered entity types.
type EntityTypeResource struct {
	manager *entity.Manager
}

var _ Resource = (*EntityTypeResource)(nil)

// NewEntityTypeResource creates an [EntityTypeResource].
func NewEntityTypeResource(manager *entity.Manager) *EntityTypeResource {
	return &EntityTypeResource{manager: manager}
}

func (*EntityTypeResource) PluginID() string { return "entity_type" }

// Get returns the entity type with the id.
func (r *EntityTypeResource) Get(_ context.Context, id string) (*ResourceResponse, error) {
	t, err := r.manager.Definition(id)
	if errors.Is(err, entity.ErrUnknownEntityType) {
		return nil, errors.Wrapf(routing.ErrResourceNotFound, "entity type %q", id)
	}
	if err != nil {
		return nil, err
	}

	return NewResourceResponse(map[string]any{
		"id":           t.ID,
		"label":        t.Label,
		"translatable": t.Translatable,
	}, http.StatusOK, nil), nil
}
