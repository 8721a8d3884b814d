package di

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/sectrean/servicekit/internal/errors"
)

// Definition is the blueprint for a service: how to build it, which arguments
// to pass, which methods to call after construction, its scope and its tags.
//
// Definitions are created during registration and may be changed by compiler
// passes. They are frozen once [ContainerBuilder.Compile] returns.
type Definition struct {
	constructor any
	factory     *Factory
	args        []any
	calls       []MethodCall
	tags        []Tag
	scope       string
	decorates   string
	synthetic   bool
	public      bool

	closerFactory closerFactory
	closeType     reflect.Type

	seq int
}

// Factory builds a service by calling Method on another service.
type Factory struct {
	Service Reference
	Method  string
}

// MethodCall is a method invoked on a service right after it is constructed.
type MethodCall struct {
	Method string
	Args   []any
}

// NewDefinition creates a [Definition] for the given constructor.
//
// The constructor is a function returning the service, or the service and an
// error. It may be nil for synthetic services and services built by a [Factory].
// The constructor is not checked until the container is compiled.
//
// Available options:
//   - [WithArgs] sets the constructor arguments.
//   - [WithTag] adds a tag.
//   - [InScope] sets the scope.
//   - [Synthetic] marks the service as supplied from outside.
//   - [Private] allows the service to be removed when unused.
//   - [WithFactory] builds the service with a method of another service.
//   - [WithMethodCall] calls a method after construction.
//   - [Decorates] replaces another service, keeping it as an inner service.
//   - [IgnoreCloser] and [WithCloseFunc] control how the service is closed.
func NewDefinition(constructor any, opts ...DefinitionOption) (*Definition, error) {
	d := &Definition{
		constructor:   constructor,
		scope:         ScopeContainer,
		public:        true,
		closerFactory: getCloser,
	}

	err := applyOptions(opts, func(opt DefinitionOption) error {
		return opt.applyDefinition(d)
	})
	if err != nil {
		return nil, err
	}

	return d, nil
}

// Constructor returns the constructor function, if any.
func (d *Definition) Constructor() any {
	return d.constructor
}

// SetConstructor replaces the constructor function.
func (d *Definition) SetConstructor(constructor any) *Definition {
	d.constructor = constructor
	return d
}

// Factory returns the factory used to build the service, or nil.
func (d *Definition) Factory() *Factory {
	return d.factory
}

// SetFactory builds the service by calling method on the referenced service.
func (d *Definition) SetFactory(service Reference, method string) *Definition {
	d.factory = &Factory{Service: service, Method: method}
	return d
}

// Arguments returns the constructor (or factory method) arguments.
func (d *Definition) Arguments() []any {
	return d.args
}

// AddArgument appends an argument.
func (d *Definition) AddArgument(arg any) *Definition {
	d.args = append(d.args, arg)
	return d
}

// SetArguments replaces all arguments.
func (d *Definition) SetArguments(args ...any) *Definition {
	d.args = args
	return d
}

// ReplaceArgument replaces the argument at index i.
func (d *Definition) ReplaceArgument(i int, arg any) error {
	if i < 0 || i >= len(d.args) {
		return errors.Wrapf(ErrInvalidDefinition, "replace argument %d: definition has %d arguments", i, len(d.args))
	}
	d.args[i] = arg
	return nil
}

// MethodCalls returns the method calls made after construction, in order.
func (d *Definition) MethodCalls() []MethodCall {
	return d.calls
}

// AddMethodCall adds a method call made after construction.
func (d *Definition) AddMethodCall(method string, args ...any) *Definition {
	d.calls = append(d.calls, MethodCall{Method: method, Args: args})
	return d
}

// HasMethodCall returns true if the definition calls method after construction.
func (d *Definition) HasMethodCall(method string) bool {
	return slices.ContainsFunc(d.calls, func(c MethodCall) bool {
		return c.Method == method
	})
}

// AddTag attaches a tag. A definition may carry the same tag several times.
func (d *Definition) AddTag(name string, attrs ...Attributes) *Definition {
	merged := Attributes{}
	for _, a := range attrs {
		for k, v := range a {
			merged[k] = v
		}
	}
	d.tags = append(d.tags, Tag{Name: name, Attributes: merged})
	return d
}

// Tags returns the attributes of every tag with the given name.
func (d *Definition) Tags(name string) []Attributes {
	var attrs []Attributes
	for _, t := range d.tags {
		if t.Name == name {
			attrs = append(attrs, t.Attributes)
		}
	}
	return attrs
}

// HasTag returns true if the definition carries the tag.
func (d *Definition) HasTag(name string) bool {
	return slices.ContainsFunc(d.tags, func(t Tag) bool {
		return t.Name == name
	})
}

// ClearTag removes every tag with the given name.
func (d *Definition) ClearTag(name string) *Definition {
	d.tags = slices.DeleteFunc(d.tags, func(t Tag) bool {
		return t.Name == name
	})
	return d
}

// TagNames returns the distinct tag names in the order they were added.
func (d *Definition) TagNames() []string {
	var names []string
	for _, t := range d.tags {
		if !slices.Contains(names, t.Name) {
			names = append(names, t.Name)
		}
	}
	return names
}

// Scope returns the name of the scope the service lives in.
func (d *Definition) Scope() string {
	return d.scope
}

// SetScope sets the scope the service lives in.
func (d *Definition) SetScope(scope string) *Definition {
	d.scope = scope
	return d
}

// IsSynthetic returns true if the service is supplied from outside the container.
func (d *Definition) IsSynthetic() bool {
	return d.synthetic
}

// SetSynthetic marks the service as supplied from outside the container.
func (d *Definition) SetSynthetic(synthetic bool) *Definition {
	d.synthetic = synthetic
	return d
}

// IsPublic returns false if the service may be removed when nothing references it.
func (d *Definition) IsPublic() bool {
	return d.public
}

// SetPublic sets whether the service is kept even when nothing references it.
func (d *Definition) SetPublic(public bool) *Definition {
	d.public = public
	return d
}

// DecoratedService returns the id of the service this definition decorates, if any.
func (d *Definition) DecoratedService() string {
	return d.decorates
}

// SetDecoratedService makes this definition replace the service with the given id.
//
// At compile time the decorated definition is renamed to "<decorator id>.inner"
// and the original id is aliased to the decorator.
func (d *Definition) SetDecoratedService(id string) *Definition {
	d.decorates = id
	return d
}

// serviceType returns the type built by the constructor, or nil if unknown.
func (d *Definition) serviceType() reflect.Type {
	if d.constructor == nil {
		return nil
	}
	t := reflect.TypeOf(d.constructor)
	if t.Kind() != reflect.Func || t.NumOut() == 0 {
		return nil
	}
	return t.Out(0)
}

// references returns every id the definition needs before it can be built.
func (d *Definition) references() (refs []string, proxies []string) {
	add := func(arg any) {
		r, p := argumentRefs(arg)
		refs = append(refs, r...)
		proxies = append(proxies, p...)
	}

	if d.factory != nil {
		refs = append(refs, d.factory.Service.id)
	}
	for _, arg := range d.args {
		add(arg)
	}
	for _, call := range d.calls {
		for _, arg := range call.Args {
			add(arg)
		}
	}
	return refs, proxies
}

func (d *Definition) String() string {
	switch {
	case d.synthetic:
		return "synthetic"
	case d.factory != nil:
		return fmt.Sprintf("%s.%s", d.factory.Service, d.factory.Method)
	case d.constructor != nil:
		return reflect.TypeOf(d.constructor).String()
	default:
		return "<nil>"
	}
}
