package di

import (
	"strings"
	"sync/atomic"
)

// resolveVisitor tracks the chain of services under construction.
type resolveVisitor struct {
	visiting map[string]struct{}
	trail    []string
	injected map[string][]*atomic.Bool
}

func newResolveVisitor() *resolveVisitor {
	return &resolveVisitor{
		visiting: make(map[string]struct{}),
		injected: make(map[string][]*atomic.Bool),
	}
}

// Inject returns c for injection into the service being built.
// Outside of a build c is returned as is.
func (v *resolveVisitor) Inject(c *Container) *Container {
	if len(v.trail) == 0 {
		return c
	}
	id := v.trail[len(v.trail)-1]
	ready := &atomic.Bool{}
	v.injected[id] = append(v.injected[id], ready)
	return c.injectedInto(id, ready)
}

// Built marks the Containers injected into id as ready.
func (v *resolveVisitor) Built(id string) {
	for _, ready := range v.injected[id] {
		ready.Store(true)
	}
	delete(v.injected, id)
}

// Enter returns false if the service is already under construction.
func (v *resolveVisitor) Enter(id string) bool {
	if _, ok := v.visiting[id]; ok {
		return false
	}
	v.visiting[id] = struct{}{}
	v.trail = append(v.trail, id)
	return true
}

func (v *resolveVisitor) Leave() {
	last := v.trail[len(v.trail)-1]
	delete(v.visiting, last)
	v.trail = v.trail[:len(v.trail)-1]
}

// Trail returns the dependency chain ending at id, e.g. "a -> b -> a".
func (v *resolveVisitor) Trail(id string) string {
	return strings.Join(append(v.trail[:len(v.trail):len(v.trail)], id), " -> ")
}
