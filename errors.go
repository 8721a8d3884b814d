package di

import (
	"github.com/sectrean/servicekit/internal/errors"
)

var (
	// ErrServiceNotFound is returned when no definition or alias exists for an identifier.
	ErrServiceNotFound = errors.New("service not found")

	// ErrDependencyCycle is returned when a reference chain revisits a service
	// that is still under construction.
	ErrDependencyCycle = errors.New("dependency cycle detected")

	// ErrSyntheticNotSet is returned when a synthetic service is resolved
	// before its value has been supplied with [Container.Set] or [WithSynthetic].
	ErrSyntheticNotSet = errors.New("synthetic service not set")

	// ErrScopeNotActive is returned when a scoped service is resolved, or a
	// scope is entered, while the required scope is not active.
	ErrScopeNotActive = errors.New("scope not active")

	// ErrScopeWidening is returned at compile time when a service references a
	// service from a narrower scope without a [ProxyRef].
	ErrScopeWidening = errors.New("scope widening injection")

	// ErrContainerClosed is returned when a closed container or scope is used.
	ErrContainerClosed = errors.New("container closed")

	// ErrFrozen is returned when a compiled [ContainerBuilder] is modified or compiled again.
	ErrFrozen = errors.New("container builder is frozen")

	// ErrParameterNotFound is returned when a parameter is not set.
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrInvalidDefinition is returned when a definition cannot be used to build a service.
	ErrInvalidDefinition = errors.New("invalid definition")
)
