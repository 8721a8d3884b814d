package di

import (
	"context"

	"github.com/sectrean/servicekit/internal/errors"
)

// Proxy is injected for a [ProxyRef] argument. It resolves the target
// service when Get is called instead of when the dependent is built.
//
// Get resolves from the scope carried by the context (see [ContextWithScope]),
// so a container-scoped service can reach the request-scoped service of the
// request it is currently handling.
type Proxy struct {
	id       string
	fallback Scope
}

// ID returns the id of the proxied service.
func (p *Proxy) ID() string {
	return p.id
}

// Get resolves the proxied service from the scope on ctx, or from the scope
// the proxy was created in if ctx carries none.
func (p *Proxy) Get(ctx context.Context) (any, error) {
	val, err := p.scope(ctx).Get(ctx, p.id)
	if err != nil {
		return nil, errors.Wrap(err, "di.Proxy.Get")
	}
	return val, nil
}

func (p *Proxy) scope(ctx context.Context) Scope {
	if s := ScopeFromContext(ctx); s != nil {
		return s
	}
	return p.fallback
}

// ProxyGet resolves the proxied service and asserts its type.
func ProxyGet[T any](ctx context.Context, p *Proxy) (T, error) {
	return Get[T](ctx, p.scope(ctx), p.id)
}
