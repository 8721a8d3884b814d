package di

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sectrean/servicekit/internal/errors"
)

// graph is the frozen definition graph shared by a container and all its scopes.
type graph struct {
	definitions map[string]*Definition
	aliases     map[string]string
	parameters  map[string]any
	scopes      map[string]string
	order       []string
}

// Container resolves services from a compiled definition graph.
//
// The root Container owns the services in [ScopeContainer]. Child scopes
// created with [Container.NewScope] are also Containers; each one owns the
// instances of its named scope and shares everything else with its parents.
//
// A Container is safe for concurrent use.
type Container struct {
	graph  *graph
	parent *Container
	scope  string
	logger *slog.Logger

	*instances

	// building and ready are set on a Container injected into a service
	// that is still being built. Get fails until ready is true.
	building string
	ready    *atomic.Bool
}

// instances holds the services owned by a scope. It is shared by the
// Containers injected into services built in the scope.
type instances struct {
	resolved   map[string]any
	locks      map[string]*sync.Mutex
	closers    []Closer
	resolvedMu sync.RWMutex
	closersMu  sync.Mutex
	closedMu   sync.RWMutex
	closed     bool
}

var _ Scope = (*Container)(nil)

func newInstances() *instances {
	return &instances{
		resolved: make(map[string]any),
		locks:    make(map[string]*sync.Mutex),
	}
}

func newContainer(g *graph, logger *slog.Logger) *Container {
	return &Container{
		graph:     g,
		scope:     ScopeContainer,
		logger:    logger,
		instances: newInstances(),
	}
}

// injectedInto returns a copy of the Container for the service being built.
// Its Get fails until ready is set.
func (c *Container) injectedInto(id string, ready *atomic.Bool) *Container {
	injected := *c
	injected.building = id
	injected.ready = ready
	return &injected
}

// buildLock returns the lock held while the service with id is built.
func (s *instances) buildLock(id string) *sync.Mutex {
	s.resolvedMu.Lock()
	defer s.resolvedMu.Unlock()

	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

func (s *instances) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

// ScopeName returns the name of the scope this Container owns.
func (c *Container) ScopeName() string {
	return c.scope
}

// Parent returns the enclosing scope, or nil for the root Container.
func (c *Container) Parent() *Container {
	return c.parent
}

// Has returns true if a definition or alias exists for id.
func (c *Container) Has(id string) bool {
	if id == ServiceContainerID {
		return true
	}
	_, ok := c.graph.definitions[resolveAlias(c.graph.aliases, id)]
	return ok
}

// ServiceIDs returns the ids of all services in registration order.
func (c *Container) ServiceIDs() []string {
	return append([]string(nil), c.graph.order...)
}

// Parameter returns the value of a container parameter.
func (c *Container) Parameter(name string) (any, error) {
	v, ok := c.graph.parameters[name]
	if !ok {
		return nil, errors.Wrapf(ErrParameterNotFound, "di.Container.Parameter %s", name)
	}
	return v, nil
}

// Get resolves the service with the given id.
//
// Dependencies are resolved first, then the service is constructed and its
// method calls are made. Services are memoized in the scope that owns them;
// prototypes are built on every call.
func (c *Container) Get(ctx context.Context, id string) (any, error) {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return nil, errors.Wrapf(ErrContainerClosed, "di.Container.Get %s", id)
	}
	if c.ready != nil && !c.ready.Load() {
		return nil, errors.Errorf(
			"di.Container.Get %s: not supported while building %s: "+
				"store the container and use it later",
			id, c.building,
		)
	}

	val, err := c.resolve(ctx, id, newResolveVisitor())
	if err != nil {
		return nil, errors.Wrapf(err, "di.Container.Get %s", id)
	}
	return val, nil
}

// Set supplies the value of a synthetic service in the scope that owns it.
func (c *Container) Set(id string, val any) error {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return errors.Wrapf(ErrContainerClosed, "di.Container.Set %s", id)
	}

	if err := c.setSynthetic(id, val); err != nil {
		return errors.Wrapf(err, "di.Container.Set %s", id)
	}
	return nil
}

func (c *Container) setSynthetic(id string, val any) error {
	d, ok := c.graph.definitions[resolveAlias(c.graph.aliases, id)]
	if !ok {
		return ErrServiceNotFound
	}
	if !d.synthetic {
		return errors.Wrap(ErrInvalidDefinition, "service is not synthetic")
	}

	owner := c.owner(d.scope)
	if owner == nil {
		return errors.Wrapf(ErrScopeNotActive, "scope %s", d.scope)
	}

	owner.resolvedMu.Lock()
	owner.resolved[resolveAlias(c.graph.aliases, id)] = val
	owner.resolvedMu.Unlock()
	return nil
}

// owner returns the Container that holds instances of the scope,
// or nil if the scope is not active.
func (c *Container) owner(scope string) *Container {
	if scope == ScopeContainer {
		root := c
		for root.parent != nil {
			root = root.parent
		}
		return root
	}
	for s := c; s != nil; s = s.parent {
		if s.scope == scope {
			return s
		}
	}
	return nil
}

func (c *Container) resolve(ctx context.Context, id string, v *resolveVisitor) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == ServiceContainerID {
		return v.Inject(c), nil
	}

	id = resolveAlias(c.graph.aliases, id)
	d, ok := c.graph.definitions[id]
	if !ok {
		return nil, ErrServiceNotFound
	}

	// Prototypes have no owner and are built in the current scope.
	var owner *Container
	if d.scope != ScopePrototype {
		owner = c.owner(d.scope)
		if owner == nil {
			return nil, errors.Wrapf(ErrScopeNotActive, "scope %s", d.scope)
		}
		if owner.instances != c.instances && owner.isClosed() {
			return nil, errors.Wrapf(ErrContainerClosed, "scope %s", d.scope)
		}

		owner.resolvedMu.RLock()
		val, exists := owner.resolved[id]
		owner.resolvedMu.RUnlock()

		if exists {
			return val, nil
		}
		if d.synthetic {
			return nil, ErrSyntheticNotSet
		}
	}

	if !v.Enter(id) {
		return nil, errors.Wrap(ErrDependencyCycle, v.Trail(id))
	}
	defer v.Leave()

	from := owner
	if from == nil {
		from = c
	}

	// Resolve everything the service needs before taking the lock.
	deps, err := from.resolveDependencies(ctx, d, v)
	if err != nil {
		return nil, err
	}

	if owner != nil {
		mu := owner.buildLock(id)
		mu.Lock()
		defer mu.Unlock()

		// Another goroutine may have built the service since the last check.
		owner.resolvedMu.RLock()
		val, exists := owner.resolved[id]
		owner.resolvedMu.RUnlock()
		if exists {
			return val, nil
		}
	}

	val, err := construct(ctx, d, deps)
	v.Built(id)
	if err != nil {
		return nil, err
	}

	if owner != nil {
		owner.resolvedMu.Lock()
		owner.resolved[id] = val
		owner.resolvedMu.Unlock()
	}
	if d.closerFactory != nil && !isNil(val) {
		if closer := d.closerFactory(val); closer != nil {
			from.closersMu.Lock()
			from.closers = append(from.closers, closer)
			from.closersMu.Unlock()
		}
	}

	return val, nil
}

// Warm instantiates the public services owned by this scope, in registration order.
func (c *Container) Warm(ctx context.Context) error {
	for _, id := range c.graph.order {
		d := c.graph.definitions[id]
		if d.scope != c.scope || !d.public || d.synthetic {
			continue
		}
		if _, err := c.Get(ctx, id); err != nil {
			return errors.Wrap(err, "di.Container.Warm")
		}
	}
	return nil
}

// NewScope enters a child scope with the given name.
//
// The scope must be registered with [ContainerBuilder.AddScope], and its parent
// scope must be active in this Container's chain. Entering a scope that is
// already active, as a sub-request does, creates fresh instances for it.
//
// Available options:
//   - [WithSynthetic] supplies a synthetic service owned by the new scope.
func (c *Container) NewScope(name string, opts ...ScopeOption) (*Container, error) {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return nil, errors.Wrapf(ErrContainerClosed, "di.Container.NewScope %s", name)
	}

	parent, ok := c.graph.scopes[name]
	if !ok {
		return nil, errors.Errorf("di.Container.NewScope %s: scope not registered", name)
	}
	if c.owner(parent) == nil {
		return nil, errors.Wrapf(ErrScopeNotActive, "di.Container.NewScope %s: parent scope %s", name, parent)
	}

	scope := &Container{
		graph:     c.graph,
		parent:    c,
		scope:     name,
		logger:    c.logger,
		instances: newInstances(),
	}

	err := applyOptions(opts, func(o ScopeOption) error {
		return o.applyScope(scope)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "di.Container.NewScope %s", name)
	}

	return scope, nil
}

// ScopeOption is used to configure a new scope when calling [Container.NewScope].
type ScopeOption interface {
	applyScope(*Container) error
}

type scopeOption func(*Container) error

func (o scopeOption) applyScope(c *Container) error {
	return o(c)
}

// WithSynthetic supplies the value of a synthetic service when a scope is entered.
//
// Example:
//
//	scope, err := c.NewScope(di.ScopeRequest, di.WithSynthetic("request", r))
func WithSynthetic(id string, val any) ScopeOption {
	return scopeOption(func(c *Container) error {
		return errors.Wrapf(c.setSynthetic(id, val), "with synthetic %s", id)
	})
}

// Close the [Container] and the services it owns.
//
// Services are closed in the reverse order they were created.
// Errors returned from closing services are joined together.
//
// Close will return an error if called more than once.
func (c *Container) Close(ctx context.Context) error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return errors.Wrap(ErrContainerClosed, "di.Container.Close: closed already")
	}
	c.closed = true

	c.closersMu.Lock()
	closers := c.closers
	c.closers = nil
	c.closersMu.Unlock()

	var errs errors.MultiError
	for i := len(closers) - 1; i >= 0; i-- {
		errs = errs.Append(closers[i].Close(ctx))
	}

	if err := errs.Join(); err != nil {
		c.logger.ErrorContext(ctx, "error closing services",
			"scope", c.scope,
			"error", err,
		)
		return errors.Wrap(err, "di.Container.Close")
	}

	return nil
}
