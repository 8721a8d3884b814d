// Package typeddata wraps plain values with a named data type that knows how to validate them.
package typeddata

import (
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/sectrean/servicekit/internal/errors"
)

var (
	// ErrUnknownType is returned when creating data of an unregistered type.
	ErrUnknownType = errors.New("unknown data type")

	// ErrInvalidValue is returned when a value does not fit its data type.
	ErrInvalidValue = errors.New("invalid value")
)

// DataType describes a kind of data.
type DataType struct {
	ID       string
	Label    string
	Validate func(v any) error
}

// TypedData is a value with its data type.
type TypedData struct {
	Type  DataType
	Value any
}

// Validate checks the value against its data type.
func (d TypedData) Validate() error {
	if d.Type.Validate == nil || d.Value == nil {
		return nil
	}
	return errors.Wrapf(d.Type.Validate(d.Value), "%s", d.Type.ID)
}

// Manager holds the registered data types. The primitive types
// string, integer, float, boolean, date and uri are always registered.
type Manager struct {
	mu    sync.RWMutex
	types map[string]DataType
}

// NewManager creates a [Manager] with the primitive types.
func NewManager() *Manager {
	m := &Manager{types: make(map[string]DataType)}
	for _, t := range primitives {
		m.Register(t)
	}
	return m
}

// Register adds or replaces a data type.
func (m *Manager) Register(t DataType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[t.ID] = t
}

// Definition returns the data type with the given id.
func (m *Manager) Definition(id string) (DataType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[id]
	return t, ok
}

// Definitions returns the ids of all data types, sorted.
func (m *Manager) Definitions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.types))
	for id := range m.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Create wraps value with the data type and validates it.
func (m *Manager) Create(typeID string, value any) (TypedData, error) {
	t, ok := m.Definition(typeID)
	if !ok {
		return TypedData{}, errors.Wrapf(ErrUnknownType, "create %q", typeID)
	}
	d := TypedData{Type: t, Value: value}
	return d, d.Validate()
}

func kind[T any](v any) error {
	if _, ok := v.(T); !ok {
		return errors.Wrapf(ErrInvalidValue, "unexpected %T", v)
	}
	return nil
}

var primitives = []DataType{
	{ID: "string", Label: "String", Validate: kind[string]},
	{ID: "integer", Label: "Integer", Validate: func(v any) error {
		switch v.(type) {
		case int, int8, int16, int32, int64:
			return nil
		}
		return errors.Wrapf(ErrInvalidValue, "unexpected %T", v)
	}},
	{ID: "float", Label: "Float", Validate: func(v any) error {
		switch v.(type) {
		case float32, float64:
			return nil
		}
		return errors.Wrapf(ErrInvalidValue, "unexpected %T", v)
	}},
	{ID: "boolean", Label: "Boolean", Validate: kind[bool]},
	{ID: "date", Label: "Date", Validate: kind[time.Time]},
	{ID: "uri", Label: "URI", Validate: func(v any) error {
		s, ok := v.(string)
		if !ok {
			return errors.Wrapf(ErrInvalidValue, "unexpected %T", v)
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" {
			return errors.Wrapf(ErrInvalidValue, "not an absolute uri: %q", s)
		}
		return nil
	}},
}
