package di

import (
	"context"
	"reflect"

	"github.com/sectrean/servicekit/internal/errors"
)

// Built-in scope names.
const (
	// ScopeContainer is the process-wide scope. Services in this scope are
	// created once and shared by every request.
	//
	// This is the default scope for definitions.
	ScopeContainer = "container"

	// ScopePrototype creates a new instance every time the service is resolved.
	ScopePrototype = "prototype"

	// ScopeRequest is the conventional name of the per-request scope.
	// It is not built in; register it with [ContainerBuilder.AddScope].
	ScopeRequest = "request"
)

// Scope allows you to resolve services.
//
// Scope is implemented by [*Container]. A service that depends on
// [ServiceContainerID] receives the [*Container] of the scope it was built in.
type Scope interface {
	// Has returns true if a definition or alias exists for id.
	Has(id string) bool

	// Get resolves the service with the given id.
	Get(ctx context.Context, id string) (any, error)
}

// Get resolves the service with the given id from the [Scope] and asserts its type.
func Get[T any](ctx context.Context, s Scope, id string) (T, error) {
	var val T

	anyVal, err := s.Get(ctx, id)
	if err != nil {
		return val, err
	}
	if anyVal == nil {
		return val, nil
	}

	val, ok := anyVal.(T)
	if !ok {
		return val, errors.Errorf("get %s: service type %T is not assignable to %s",
			id, anyVal, reflect.TypeFor[T]())
	}

	return val, nil
}

// MustGet resolves the service with the given id from the [Scope].
//
// If the service cannot be resolved, this function will panic.
func MustGet[T any](ctx context.Context, s Scope, id string) T {
	val, err := Get[T](ctx, s, id)
	if err != nil {
		panic(err)
	}
	return val
}
