package config

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/internal/errors"
)

// EventInit is dispatched when a configuration object is loaded by the [Factory].
const EventInit = "config.init"

// Event is dispatched with [EventInit].
type Event struct {
	event.Base
	Config *Config
}

// Config is a named configuration object. Keys may be nested with dots,
// e.g. "page.front".
//
// Overrides are layered on top of the stored data for reads; they are never saved.
type Config struct {
	name    string
	storage Storage

	mu        sync.RWMutex
	data      Data
	overrides Data
	isNew     bool
}

// Name returns the configuration object name.
func (c *Config) Name() string {
	return c.name
}

// IsNew returns true if the object has not been saved yet.
func (c *Config) IsNew() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isNew
}

// Get returns the value at key, with overrides applied.
func (c *Config) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := lookup(c.overrides, key); ok {
		return v, true
	}
	return lookup(c.data, key)
}

// String returns the value at key as a string, or def.
func (c *Config) String(key, def string) string {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Set sets the stored value at key.
func (c *Config) Set(key string, value any) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	assign(c.data, key, value)
	return c
}

// SetOverrides replaces the overrides. Keys may be nested with dots.
func (c *Config) SetOverrides(overrides Data) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overrides = Data{}
	for k, v := range overrides {
		assign(c.overrides, k, v)
	}
	return c
}

// Raw returns a copy of the stored data without overrides.
func (c *Config) Raw() Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.data)
}

// Save writes the stored data.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.storage.Write(c.name, c.data); err != nil {
		return errors.Wrapf(err, "save config %s", c.name)
	}
	c.isNew = false
	return nil
}

func lookup(d Data, key string) (any, bool) {
	var cur any = d
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(Data)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func assign(d Data, key string, value any) {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := d[part].(Data)
		if !ok {
			next = Data{}
			d[part] = next
		}
		d = next
	}
	d[parts[len(parts)-1]] = value
}

// Factory loads configuration objects from storage and lets subscribers of
// [EventInit] adjust them. Loaded objects are kept for reuse.
type Factory struct {
	storage    Storage
	dispatcher event.Dispatcher

	mu      sync.Mutex
	configs map[string]*Config
}

// NewFactory creates a [Factory].
func NewFactory(storage Storage, dispatcher event.Dispatcher) *Factory {
	return &Factory{
		storage:    storage,
		dispatcher: dispatcher,
		configs:    make(map[string]*Config),
	}
}

// Get returns the configuration object with the given name.
// A missing object is returned empty and marked new.
func (f *Factory) Get(ctx context.Context, name string) (*Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.configs[name]; ok {
		return c, nil
	}

	c := &Config{name: name, storage: f.storage, data: Data{}}
	data, err := f.storage.Read(name)
	switch {
	case errors.Is(err, ErrNotFound):
		c.isNew = true
	case err != nil:
		return nil, errors.Wrapf(err, "config factory get %s", name)
	default:
		c.data = data
	}

	if err := f.dispatcher.Dispatch(ctx, EventInit, &Event{Config: c}); err != nil {
		return nil, errors.Wrapf(err, "config factory get %s", name)
	}

	f.configs[name] = c
	return c, nil
}

// Reset drops loaded objects so the next Get reads storage again.
func (f *Factory) Reset(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(names) == 0 {
		f.configs = make(map[string]*Config)
		return
	}
	for _, n := range names {
		delete(f.configs, n)
	}
}

// Loaded returns the names of the loaded objects.
func (f *Factory) Loaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.configs))
	for n := range maps.Keys(f.configs) {
		names = append(names, n)
	}
	return names
}
