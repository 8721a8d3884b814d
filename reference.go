package di

import "fmt"

// ServiceContainerID is the identifier that always resolves to the current scope's [*Container].
const ServiceContainerID = "service_container"

// Reference points at another service definition by identifier.
//
// The referenced service is resolved lazily when the referencing service is
// built, so it may be registered after the definition that refers to it.
type Reference struct {
	id string
}

// Ref returns a [Reference] to the service with the given id.
func Ref(id string) Reference {
	return Reference{id: id}
}

// ID returns the identifier of the referenced service.
func (r Reference) ID() string {
	return r.id
}

func (r Reference) String() string {
	return "@" + r.id
}

// Collection is an argument made of several values.
// Each element may be a literal or a [Reference].
//
// A Collection resolves to a slice whose element type matches the
// constructor or method parameter it is passed to.
type Collection []any

// Refs returns a [Collection] of references to the given ids.
func Refs(ids ...string) Collection {
	c := make(Collection, len(ids))
	for i, id := range ids {
		c[i] = Ref(id)
	}
	return c
}

// Parameter is an argument replaced by a container parameter value at compile time.
type Parameter struct {
	name string
}

// Param returns a [Parameter] argument for the parameter with the given name.
func Param(name string) Parameter {
	return Parameter{name: name}
}

// Name returns the parameter name.
func (p Parameter) Name() string {
	return p.name
}

func (p Parameter) String() string {
	return fmt.Sprintf("%%%s%%", p.name)
}

// ProxyReference is a [Reference] that is injected as a [*Proxy] instead of the service itself.
//
// It is the only way to hand a service from a narrower scope to a service
// from a wider one: the proxy resolves the target from the scope carried by the
// context at call time.
type ProxyReference struct {
	id string
}

// ProxyRef returns a [ProxyReference] to the service with the given id.
func ProxyRef(id string) ProxyReference {
	return ProxyReference{id: id}
}

// ID returns the identifier of the proxied service.
func (r ProxyReference) ID() string {
	return r.id
}

func (r ProxyReference) String() string {
	return "@?" + r.id
}

// argumentRefs returns the ids referenced directly by an argument value.
// Proxy references are reported separately because they do not create a
// construction-time dependency.
func argumentRefs(arg any) (refs []string, proxies []string) {
	switch a := arg.(type) {
	case Reference:
		refs = append(refs, a.id)
	case ProxyReference:
		proxies = append(proxies, a.id)
	case Collection:
		for _, el := range a {
			r, p := argumentRefs(el)
			refs = append(refs, r...)
			proxies = append(proxies, p...)
		}
	}
	return refs, proxies
}
