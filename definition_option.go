package di

import (
	"context"
	"reflect"

	"github.com/sectrean/servicekit/internal/errors"
)

// DefinitionOption is used to configure a [Definition] when calling
// [ContainerBuilder.Register] or [NewDefinition].
type DefinitionOption interface {
	applyDefinition(*Definition) error
}

type definitionOption func(*Definition) error

func (o definitionOption) applyDefinition(d *Definition) error {
	return o(d)
}

// WithArgs appends constructor arguments.
//
// Each argument is a literal value, a [Reference], a [Collection], a
// [Parameter] or a [ProxyReference].
//
// Example:
//
//	b.Register("config.storage", config.NewCachedStorage,
//		di.WithArgs(di.Ref("config.cachedstorage.storage"), di.Ref("cache.config")),
//	)
func WithArgs(args ...any) DefinitionOption {
	return definitionOption(func(d *Definition) error {
		d.args = append(d.args, args...)
		return nil
	})
}

// WithTag attaches a tag with optional attributes.
//
// Example:
//
//	b.Register("nested_matcher", routing.NewNestedMatcher,
//		di.WithTag("chained_matcher", di.Attributes{"priority": 5}),
//	)
func WithTag(name string, attrs ...Attributes) DefinitionOption {
	return definitionOption(func(d *Definition) error {
		if name == "" {
			return errors.New("with tag: name is empty")
		}
		d.AddTag(name, attrs...)
		return nil
	})
}

// InScope sets the scope the service lives in.
func InScope(scope string) DefinitionOption {
	return definitionOption(func(d *Definition) error {
		if scope == "" {
			return errors.New("in scope: name is empty")
		}
		d.scope = scope
		return nil
	})
}

// Synthetic marks the service as supplied from outside the container.
// Synthetic services are never constructed.
func Synthetic() DefinitionOption {
	return definitionOption(func(d *Definition) error {
		d.synthetic = true
		return nil
	})
}

// Private allows the service to be removed at compile time when no other
// service references it.
func Private() DefinitionOption {
	return definitionOption(func(d *Definition) error {
		d.public = false
		return nil
	})
}

// WithFactory builds the service by calling method on the referenced service
// with the definition's arguments.
//
// Example:
//
//	b.Register("cache.config", nil,
//		di.WithFactory(di.Ref("cache.factory"), "Get"),
//		di.WithArgs("config"),
//	)
func WithFactory(service Reference, method string) DefinitionOption {
	return definitionOption(func(d *Definition) error {
		if method == "" {
			return errors.Errorf("with factory %s: method is empty", service)
		}
		d.SetFactory(service, method)
		return nil
	})
}

// WithMethodCall calls method on the service after it is constructed.
func WithMethodCall(method string, args ...any) DefinitionOption {
	return definitionOption(func(d *Definition) error {
		if method == "" {
			return errors.New("with method call: method is empty")
		}
		d.AddMethodCall(method, args...)
		return nil
	})
}

// Decorates makes the service replace the service with the given id.
// See [Definition.SetDecoratedService].
func Decorates(id string) DefinitionOption {
	return definitionOption(func(d *Definition) error {
		if id == "" {
			return errors.New("decorates: id is empty")
		}
		d.decorates = id
		return nil
	})
}

// IgnoreCloser is used when a service that implements [Closer], or another
// supported Close signature, should not be closed when its scope is closed.
func IgnoreCloser() DefinitionOption {
	return definitionOption(func(d *Definition) error {
		d.closerFactory = nil
		return nil
	})
}

// WithCloseFunc sets a function to call for the service when its scope is closed.
//
// Example:
//
//	di.WithCloseFunc(func(ctx context.Context, s *http.Server) error {
//		return s.Shutdown(ctx)
//	})
//
// The container returns an error at compile time if the constructor's return
// type is not assignable to T.
func WithCloseFunc[T any](f func(context.Context, T) error) DefinitionOption {
	return definitionOption(func(d *Definition) error {
		if f == nil {
			return errors.New("with close func: f is nil")
		}

		d.closeType = reflect.TypeFor[T]()
		d.closerFactory = func(val any) Closer {
			v, ok := val.(T)
			if !ok {
				return nil
			}
			return closeFunc(func(ctx context.Context) error {
				return f(ctx, v)
			})
		}
		return nil
	})
}
