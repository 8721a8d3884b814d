// Package dicontext resolves services from the [di.Scope] carried by a [context.Context].
package dicontext

import (
	"context"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/internal/errors"
)

// WithScope returns a new [context.Context] that carries the provided [di.Scope].
func WithScope(ctx context.Context, s di.Scope) context.Context {
	return di.ContextWithScope(ctx, s)
}

// Scope returns the [di.Scope] stored on the [context.Context], if present.
func Scope(ctx context.Context) di.Scope {
	return di.ScopeFromContext(ctx)
}

// Get resolves the service with the given id from the [di.Scope] stored on
// the [context.Context].
func Get[T any](ctx context.Context, id string) (T, error) {
	s := Scope(ctx)
	if s == nil {
		var val T
		return val, errors.Errorf("get %s from context: scope not found on context", id)
	}

	val, err := di.Get[T](ctx, s, id)
	return val, errors.Wrap(err, "get from context")
}

// MustGet resolves the service with the given id from the [di.Scope] stored
// on the [context.Context]. It panics if the service cannot be resolved.
func MustGet[T any](ctx context.Context, id string) T {
	val, err := Get[T](ctx, id)
	if err != nil {
		panic(err)
	}
	return val
}
