package di

import (
	"context"
	"reflect"
	"strconv"
	"time"

	"github.com/sectrean/servicekit/internal/errors"
)

var typeDuration = reflect.TypeFor[time.Duration]()

// resolvedCollection is a [Collection] whose references have been resolved.
// It is converted to the slice type of the parameter it is passed to.
type resolvedCollection []any

type dependencies struct {
	factory any
	args    []any
	calls   [][]any
}

func (c *Container) resolveDependencies(ctx context.Context, d *Definition, v *resolveVisitor) (*dependencies, error) {
	get := func(id string) (any, error) {
		return c.resolve(ctx, id, v)
	}
	deps := &dependencies{}

	if d.factory != nil {
		f, err := get(d.factory.Service.id)
		if err != nil {
			return nil, errors.Wrapf(err, "factory %s", d.factory.Service)
		}
		deps.factory = f
	}

	args, err := resolveArgs(d.args, get, c)
	if err != nil {
		return nil, err
	}
	deps.args = args

	for _, call := range d.calls {
		args, err := resolveArgs(call.Args, get, c)
		if err != nil {
			return nil, errors.Wrapf(err, "call %s", call.Method)
		}
		deps.calls = append(deps.calls, args)
	}

	return deps, nil
}

func resolveArgs(args []any, get func(string) (any, error), s Scope) ([]any, error) {
	vals := make([]any, len(args))
	for i, arg := range args {
		val, err := resolveArg(arg, get, s)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		vals[i] = val
	}
	return vals, nil
}

func resolveArg(arg any, get func(string) (any, error), s Scope) (any, error) {
	switch a := arg.(type) {
	case Reference:
		val, err := get(a.id)
		return val, errors.Wrapf(err, "dependency %s", a)

	case ProxyReference:
		return &Proxy{id: a.id, fallback: s}, nil

	case Collection:
		vals := make(resolvedCollection, len(a))
		for i, el := range a {
			val, err := resolveArg(el, get, s)
			if err != nil {
				return nil, err
			}
			vals[i] = val
		}
		return vals, nil

	case Parameter:
		return nil, errors.Wrapf(ErrParameterNotFound, "unreplaced parameter %s", a)

	default:
		return arg, nil
	}
}

// construct builds the service and makes its method calls.
func construct(ctx context.Context, d *Definition, deps *dependencies) (any, error) {
	var fn reflect.Value
	if d.factory != nil {
		fv := reflect.ValueOf(deps.factory)
		if !fv.IsValid() {
			return nil, errors.Wrapf(ErrInvalidDefinition, "factory %s is nil", d.factory.Service)
		}
		fn = fv.MethodByName(d.factory.Method)
		if !fn.IsValid() {
			return nil, errors.Wrapf(ErrInvalidDefinition, "factory %s (%T) has no method %s",
				d.factory.Service, deps.factory, d.factory.Method)
		}
		if fn.Type().NumOut() == 0 {
			return nil, errors.Wrapf(ErrInvalidDefinition, "factory method %s returns nothing", d.factory.Method)
		}
	} else {
		fn = reflect.ValueOf(d.constructor)
	}

	out, err := call(ctx, fn, deps.args)
	if err != nil {
		return nil, err
	}
	val := out[0].Interface()

	if len(d.calls) > 0 {
		rv := reflect.ValueOf(val)
		if !rv.IsValid() {
			return nil, errors.Wrap(ErrInvalidDefinition, "method calls on nil service")
		}
		for i, mc := range d.calls {
			m := rv.MethodByName(mc.Method)
			if !m.IsValid() {
				return nil, errors.Wrapf(ErrInvalidDefinition, "%T has no method %s", val, mc.Method)
			}
			if _, err := call(ctx, m, deps.calls[i]); err != nil {
				return nil, errors.Wrapf(err, "call %s", mc.Method)
			}
		}
	}

	return val, nil
}

// call invokes fn with the arguments, injecting ctx as a leading
// context.Context parameter. It returns the error result as an error.
func call(ctx context.Context, fn reflect.Value, args []any) ([]reflect.Value, error) {
	in, err := callArgs(ctx, fn.Type(), args)
	if err != nil {
		return nil, err
	}

	out := fn.Call(in)

	ft := fn.Type()
	if n := ft.NumOut(); n > 0 && ft.Out(n-1) == typeError {
		if err, _ := out[n-1].Interface().(error); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func callArgs(ctx context.Context, ft reflect.Type, args []any) ([]reflect.Value, error) {
	if err := checkArgCount(ft, len(args)); err != nil {
		return nil, errors.Wrapf(ErrInvalidDefinition, "%s: %v", ft, err)
	}

	in := make([]reflect.Value, 0, ft.NumIn())
	offset := 0
	if ft.NumIn() > 0 && ft.In(0) == typeContext {
		in = append(in, reflect.ValueOf(ctx))
		offset = 1
	}

	fixed := ft.NumIn() - offset
	if ft.IsVariadic() {
		fixed--
	}

	for i := range fixed {
		val, err := coerce(args[i], ft.In(offset+i))
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		in = append(in, val)
	}

	if ft.IsVariadic() {
		elem := ft.In(ft.NumIn() - 1).Elem()
		rest := args[fixed:]
		if len(rest) == 1 {
			if rc, ok := rest[0].(resolvedCollection); ok {
				rest = rc
			}
		}
		for i, arg := range rest {
			val, err := coerce(arg, elem)
			if err != nil {
				return nil, errors.Wrapf(err, "argument %d", fixed+i)
			}
			in = append(in, val)
		}
	}

	return in, nil
}

// coerce converts an argument to the parameter type: by assignment,
// collection to slice, numeric conversion, or parsing a string.
func coerce(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(arg)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	if rc, ok := arg.(resolvedCollection); ok && t.Kind() == reflect.Slice {
		s := reflect.MakeSlice(t, len(rc), len(rc))
		for i, el := range rc {
			ev, err := coerce(el, t.Elem())
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "element %d", i)
			}
			s.Index(i).Set(ev)
		}
		return s, nil
	}

	if s, ok := arg.(string); ok {
		return parseString(s, t)
	}
	if isNumber(rv.Kind()) && isNumber(t.Kind()) {
		return rv.Convert(t), nil
	}
	if rv.Kind() == reflect.String && t.Kind() == reflect.String {
		return rv.Convert(t), nil
	}

	return reflect.Value{}, errors.Errorf("cannot use %T as %s", arg, t)
}

func parseString(s string, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()

	switch {
	case t == typeDuration:
		d, err := time.ParseDuration(s)
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetInt(int64(d))
	case t.Kind() == reflect.String:
		v.SetString(s)
	case t.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetBool(b)
	case isInt(t.Kind()):
		i, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetInt(i)
	case isUint(t.Kind()):
		u, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetUint(u)
	case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetFloat(f)
	default:
		return reflect.Value{}, errors.Errorf("cannot use string as %s", t)
	}

	return v, nil
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isNumber(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || k == reflect.Float32 || k == reflect.Float64
}
