// Package entity holds the entity type registry, per-type translation
// controllers and the entity query factory.
package entity

import (
	"context"
	"slices"
	"sync"

	"github.com/sectrean/servicekit/internal/errors"
)

// ErrUnknownEntityType is returned for an entity type that is not registered.
var ErrUnknownEntityType = errors.New("unknown entity type")

// Entity is a content or configuration object.
type Entity interface {
	ID() string
	EntityType() string
	Bundle() string
	Label() string
	Language() string

	// Field returns a field value, or nil.
	Field(name string) any
}

// EntityType describes a kind of entity.
type EntityType struct {
	ID           string
	Label        string
	Translatable bool
}

// Manager is the registry of entity types.
type Manager struct {
	mu    sync.RWMutex
	types map[string]EntityType
	order []string
}

// NewManager creates an empty [Manager].
func NewManager() *Manager {
	return &Manager{types: make(map[string]EntityType)}
}

// AddEntityType registers or replaces an entity type.
func (m *Manager) AddEntityType(t EntityType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.types[t.ID]; !ok {
		m.order = append(m.order, t.ID)
	}
	m.types[t.ID] = t
}

// Definition returns the entity type with the given id.
func (m *Manager) Definition(id string) (EntityType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.types[id]
	if !ok {
		return t, errors.Wrapf(ErrUnknownEntityType, "entity type %q", id)
	}
	return t, nil
}

// Definitions returns the entity types in registration order.
func (m *Manager) Definitions() []EntityType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]EntityType, len(m.order))
	for i, id := range m.order {
		types[i] = m.types[id]
	}
	return types
}

// HasDefinition returns true if the entity type is registered.
func (m *Manager) HasDefinition(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.types[id]
	return ok
}

// Account is the user a request acts for.
type Account struct {
	UID         string
	Permissions []string
}

// HasPermission returns true if the account has the permission.
// UID "1" has every permission.
func (a Account) HasPermission(p string) bool {
	return a.UID == "1" || slices.Contains(a.Permissions, p)
}

// Anonymous is the account used when none is on the context.
var Anonymous = Account{UID: "0"}

type accountKey struct{}

// WithAccount returns a context carrying the account.
func WithAccount(ctx context.Context, a Account) context.Context {
	return context.WithValue(ctx, accountKey{}, a)
}

// AccountFromContext returns the account on the context, or [Anonymous].
func AccountFromContext(ctx context.Context) Account {
	if a, ok := ctx.Value(accountKey{}).(Account); ok {
		return a
	}
	return Anonymous
}
