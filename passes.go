package di

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/sectrean/servicekit/internal/errors"
)

// decoratorPass renames each decorated definition to "<decorator>.inner" and
// aliases the decorated id to the decorator. The tags of the decorated
// definition move to the decorator.
type decoratorPass struct{}

func (decoratorPass) Name() string { return "decorators" }

func (decoratorPass) Process(b *ContainerBuilder) error {
	var errs errors.MultiError

	for _, id := range b.ServiceIDs() {
		d := b.definitions[id]
		if d.decorates == "" {
			continue
		}

		target := b.resolveAlias(d.decorates)
		inner, ok := b.definitions[target]
		if !ok {
			errs = errs.Append(errors.Wrapf(ErrServiceNotFound, "service %s: decorates %s", id, d.decorates))
			continue
		}

		innerID := id + ".inner"
		inner.public = false
		d.tags = append(inner.tags, d.tags...)
		inner.tags = nil
		delete(b.definitions, target)
		b.definitions[innerID] = inner

		rename := func(arg any) any {
			return renameRef(arg, d.decorates, innerID)
		}
		for i, arg := range d.args {
			d.args[i] = rename(arg)
		}
		for i := range d.calls {
			for j, arg := range d.calls[i].Args {
				d.calls[i].Args[j] = rename(arg)
			}
		}

		d.decorates = ""
		b.aliases[target] = id
	}

	return errs.Join()
}

func renameRef(arg any, from, to string) any {
	switch a := arg.(type) {
	case Reference:
		if a.id == from {
			return Ref(to)
		}
	case Collection:
		c := make(Collection, len(a))
		for i, el := range a {
			c[i] = renameRef(el, from, to)
		}
		return c
	}
	return arg
}

// parameterPass replaces [Parameter] arguments with parameter values.
type parameterPass struct{}

func (parameterPass) Name() string { return "parameters" }

func (parameterPass) Process(b *ContainerBuilder) error {
	var errs errors.MultiError

	for _, id := range b.ServiceIDs() {
		d := b.definitions[id]
		for i, arg := range d.args {
			v, err := b.resolveParams(arg)
			if err != nil {
				errs = errs.Append(errors.Wrapf(err, "service %s argument %d", id, i))
				continue
			}
			d.args[i] = v
		}
		for _, call := range d.calls {
			for i, arg := range call.Args {
				v, err := b.resolveParams(arg)
				if err != nil {
					errs = errs.Append(errors.Wrapf(err, "service %s call %s argument %d", id, call.Method, i))
					continue
				}
				call.Args[i] = v
			}
		}
	}

	return errs.Join()
}

func (b *ContainerBuilder) resolveParams(arg any) (any, error) {
	switch a := arg.(type) {
	case Parameter:
		return b.Parameter(a.name)
	case Collection:
		c := make(Collection, len(a))
		for i, el := range a {
			v, err := b.resolveParams(el)
			if err != nil {
				return nil, err
			}
			c[i] = v
		}
		return c, nil
	default:
		return arg, nil
	}
}

// definitionCheckPass checks that every definition can be built.
type definitionCheckPass struct{}

func (definitionCheckPass) Name() string { return "check_definitions" }

func (definitionCheckPass) Process(b *ContainerBuilder) error {
	var errs errors.MultiError
	for _, id := range b.ServiceIDs() {
		if err := b.checkDefinition(b.definitions[id]); err != nil {
			errs = errs.Append(errors.Wrapf(err, "service %s", id))
		}
	}
	return errs.Join()
}

func (b *ContainerBuilder) checkDefinition(d *Definition) error {
	switch d.scope {
	case ScopeContainer, ScopePrototype:
	default:
		if _, ok := b.scopes[d.scope]; !ok {
			return errors.Wrapf(ErrInvalidDefinition, "scope %q is not registered", d.scope)
		}
	}

	if d.synthetic {
		if d.scope == ScopePrototype {
			return errors.Wrap(ErrInvalidDefinition, "synthetic service cannot be a prototype")
		}
		return nil
	}

	if d.factory != nil {
		return nil
	}
	if d.constructor == nil {
		return errors.Wrap(ErrInvalidDefinition, "no constructor or factory")
	}

	t := reflect.TypeOf(d.constructor)
	if t.Kind() != reflect.Func {
		return errors.Wrapf(ErrInvalidDefinition, "constructor %s is not a function", t)
	}
	if t.NumOut() == 0 || t.NumOut() > 2 || (t.NumOut() == 2 && t.Out(1) != typeError) {
		return errors.Wrapf(ErrInvalidDefinition, "constructor %s must return a service and an optional error", t)
	}
	if err := checkArgCount(t, len(d.args)); err != nil {
		return errors.Wrapf(ErrInvalidDefinition, "constructor %s: %v", t, err)
	}

	if d.closeType != nil && !t.Out(0).AssignableTo(d.closeType) && t.Out(0).Kind() != reflect.Interface {
		return errors.Wrapf(ErrInvalidDefinition, "close func: %s is not assignable to %s", t.Out(0), d.closeType)
	}
	return nil
}

func checkArgCount(fn reflect.Type, n int) error {
	params := fn.NumIn()
	if params > 0 && fn.In(0) == typeContext {
		params--
	}

	if fn.IsVariadic() {
		if n < params-1 {
			return errors.Errorf("expected at least %d arguments, got %d", params-1, n)
		}
		return nil
	}
	if n != params {
		return errors.Errorf("expected %d arguments, got %d", params, n)
	}
	return nil
}

// referenceCheckPass checks that every reference and alias points at a definition.
type referenceCheckPass struct{}

func (referenceCheckPass) Name() string { return "check_references" }

func (referenceCheckPass) Process(b *ContainerBuilder) error {
	var errs errors.MultiError

	for _, alias := range slices.Sorted(maps.Keys(b.aliases)) {
		id := b.resolveAlias(alias)
		if _, loop := b.aliases[id]; loop {
			errs = errs.Append(errors.Wrapf(ErrInvalidDefinition, "alias %s: alias loop", alias))
			continue
		}
		if _, ok := b.definitions[id]; !ok {
			errs = errs.Append(errors.Wrapf(ErrServiceNotFound, "alias %s: service %s", alias, id))
		}
	}

	for _, id := range b.ServiceIDs() {
		refs, proxies := b.definitions[id].references()
		for _, ref := range append(refs, proxies...) {
			if !b.exists(ref) {
				errs = errs.Append(errors.Wrapf(ErrServiceNotFound, "service %s: reference %s", id, ref))
			}
		}
	}

	return errs.Join()
}

func (b *ContainerBuilder) exists(id string) bool {
	return id == ServiceContainerID || b.HasDefinition(id)
}

// cycleCheckPass fails if a reference chain revisits a service under construction.
// Proxy references are not followed.
type cycleCheckPass struct{}

func (cycleCheckPass) Name() string { return "check_cycles" }

func (cycleCheckPass) Process(b *ContainerBuilder) error {
	done := make(map[string]bool)
	v := newResolveVisitor()

	var visit func(id string) error
	visit = func(id string) error {
		id = b.resolveAlias(id)
		if done[id] {
			return nil
		}
		d, ok := b.definitions[id]
		if !ok {
			return nil
		}
		if !v.Enter(id) {
			return errors.Wrap(ErrDependencyCycle, v.Trail(id))
		}
		defer v.Leave()

		refs, _ := d.references()
		for _, ref := range refs {
			if err := visit(ref); err != nil {
				return err
			}
		}
		done[id] = true
		return nil
	}

	for _, id := range b.ServiceIDs() {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// scopeCheckPass fails if a service references a service that lives in a
// narrower scope. A prototype lives in the narrowest scope of its dependencies.
type scopeCheckPass struct{}

func (scopeCheckPass) Name() string { return "check_scopes" }

func (scopeCheckPass) Process(b *ContainerBuilder) error {
	var errs errors.MultiError
	memo := make(map[string]string)

	for _, id := range b.ServiceIDs() {
		d := b.definitions[id]
		if d.scope == ScopePrototype {
			continue
		}

		refs, _ := d.references()
		for _, ref := range refs {
			target := b.effectiveScope(ref, memo)
			if !b.scopeWithin(d.scope, target) {
				errs = errs.Append(errors.Wrapf(ErrScopeWidening,
					"service %s (scope %s) references %s (scope %s); use di.ProxyRef",
					id, d.scope, ref, target))
			}
		}
	}

	return errs.Join()
}

func (b *ContainerBuilder) effectiveScope(id string, memo map[string]string) string {
	id = b.resolveAlias(id)
	if s, ok := memo[id]; ok {
		return s
	}

	d, ok := b.definitions[id]
	if !ok || id == ServiceContainerID {
		return ScopeContainer
	}
	if d.scope != ScopePrototype {
		return d.scope
	}

	narrowest := ScopeContainer
	memo[id] = narrowest
	refs, _ := d.references()
	for _, ref := range refs {
		s := b.effectiveScope(ref, memo)
		if b.scopeDepth(s) > b.scopeDepth(narrowest) {
			narrowest = s
		}
	}
	memo[id] = narrowest
	return narrowest
}

// scopeWithin returns true if instances of scope inner are available to
// services of scope outer.
func (b *ContainerBuilder) scopeWithin(outer, inner string) bool {
	for s := outer; s != ""; s = b.scopes[s] {
		if s == inner {
			return true
		}
		if s == ScopeContainer {
			break
		}
	}
	return inner == ScopeContainer
}

func (b *ContainerBuilder) scopeDepth(scope string) int {
	depth := 0
	for s := scope; s != ScopeContainer && s != ""; s = b.scopes[s] {
		depth++
	}
	return depth
}

// removeUnusedPass removes private definitions that nothing references,
// repeating until no more can be removed.
type removeUnusedPass struct{}

func (removeUnusedPass) Name() string { return "remove_unused" }

func (removeUnusedPass) Process(b *ContainerBuilder) error {
	for {
		used := make(map[string]bool)
		for _, target := range b.aliases {
			used[b.resolveAlias(target)] = true
		}
		for _, d := range b.definitions {
			refs, proxies := d.references()
			for _, ref := range append(refs, proxies...) {
				used[b.resolveAlias(ref)] = true
			}
		}

		var removed []string
		for _, id := range b.ServiceIDs() {
			if d := b.definitions[id]; !d.public && !used[id] {
				delete(b.definitions, id)
				removed = append(removed, id)
			}
		}
		if len(removed) == 0 {
			return nil
		}

		b.logger.Debug("removed unused service definitions",
			"ids", strings.Join(removed, ","),
		)
	}
}
