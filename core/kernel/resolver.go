package kernel

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/internal/errors"
)

// ErrControllerNotFound is returned when no controller can be found for a request.
var ErrControllerNotFound = errors.New("controller not found")

// ControllerResolver finds the controller named by the _controller attribute.
//
// The attribute is either the name of a registered controller or
// "service:Method", a method of a container service with the [Controller]
// signature.
type ControllerResolver struct {
	container di.Scope

	mu          sync.RWMutex
	controllers map[string]Controller
}

// NewControllerResolver creates a [ControllerResolver] resolving services from container.
func NewControllerResolver(container *di.Container) *ControllerResolver {
	return &ControllerResolver{
		container:   container,
		controllers: make(map[string]Controller),
	}
}

// Register adds a named controller.
func (r *ControllerResolver) Register(name string, c Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[name] = c
}

// Controller returns the controller for the attributes, or nil if they do not name one.
//
// Services are resolved from the scope on ctx, so request-scoped controllers work.
func (r *ControllerResolver) Controller(ctx context.Context, attrs map[string]string) (Controller, error) {
	name := attrs["_controller"]
	if name == "" {
		return nil, nil
	}

	r.mu.RLock()
	c, ok := r.controllers[name]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	id, method, ok := strings.Cut(strings.Replace(name, "::", ":", 1), ":")
	if !ok || id == "" || method == "" {
		return nil, errors.Wrapf(ErrControllerNotFound, "controller %q", name)
	}

	scope := di.ScopeFromContext(ctx)
	if scope == nil {
		scope = r.container
	}
	svc, err := scope.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "controller %q", name)
	}

	c, err = methodController(svc, method)
	return c, errors.Wrapf(err, "controller %q", name)
}

func methodController(svc any, method string) (Controller, error) {
	m, ok := methodByName(svc, method)
	if !ok {
		return nil, errors.Wrapf(ErrControllerNotFound, "%T has no method %s", svc, method)
	}

	switch fn := m.(type) {
	case func(context.Context, *http.Request) (any, error):
		return fn, nil
	default:
		return nil, errors.Errorf("%T.%s has type %T, want a controller", svc, method, m)
	}
}

func methodByName(svc any, method string) (any, bool) {
	v := reflect.ValueOf(svc)
	if !v.IsValid() {
		return nil, false
	}
	m := v.MethodByName(method)
	if !m.IsValid() {
		return nil, false
	}
	return m.Interface(), true
}
