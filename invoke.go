package di

import (
	"context"
	"reflect"

	"github.com/sectrean/servicekit/internal/errors"
)

// Invoke calls fn with arguments resolved from the provided Scope.
//
// Arguments follow the same rules as constructor arguments: a [Reference] is
// resolved from the Scope, a [Collection] becomes a slice and a [ProxyRef]
// becomes a [*Proxy]. A leading context.Context parameter receives ctx.
//
// An [error] return value is passed along as-is and other results are ignored.
//
// Example:
//
//	err := di.Invoke(ctx, c, func(r *routing.RouteBuilder) error {
//		return r.Rebuild(ctx)
//	}, di.Ref("router.builder"))
func Invoke(ctx context.Context, s Scope, fn any, args ...any) error {
	fnVal := reflect.ValueOf(fn)

	if fnVal.Kind() != reflect.Func {
		return errors.Errorf("di.Invoke %T: fn must be a function", fn)
	}

	get := func(id string) (any, error) {
		return s.Get(ctx, id)
	}
	vals, err := resolveArgs(args, get, s)
	if err != nil {
		return errors.Wrapf(err, "di.Invoke %T", fn)
	}

	// Check for a context error before we invoke the function
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "di.Invoke %T", fn)
	}

	in, err := callArgs(ctx, fnVal.Type(), vals)
	if err != nil {
		return errors.Wrapf(err, "di.Invoke %T", fn)
	}

	// Don't wrap the error, return it as-is.
	ft := fnVal.Type()
	out := fnVal.Call(in)
	for i := range ft.NumOut() {
		if ft.Out(i) == typeError {
			err, _ := out[i].Interface().(error)
			return err
		}
	}

	return nil
}
