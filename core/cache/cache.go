// Package cache provides named cache bins.
package cache

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Permanent is the TTL for items that never expire.
const Permanent time.Duration = 0

// Backend stores cached values for one bin.
type Backend interface {
	// Get returns the cached value and true, or false on a miss.
	Get(key string) (any, bool)

	// Set stores a value. A ttl of [Permanent] keeps it until deleted.
	Set(key string, value any, ttl time.Duration)

	Delete(key string)
	DeleteAll()
}

type item struct {
	value   any
	expires time.Time
}

// MemoryBackend is a [Backend] kept in process memory.
type MemoryBackend struct {
	bin   string
	items *xsync.MapOf[string, item]
	now   func() time.Time
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty [MemoryBackend].
func NewMemoryBackend(bin string) *MemoryBackend {
	return &MemoryBackend{
		bin:   bin,
		items: xsync.NewMapOf[string, item](),
		now:   time.Now,
	}
}

// Bin returns the bin name.
func (b *MemoryBackend) Bin() string {
	return b.bin
}

func (b *MemoryBackend) Get(key string) (any, bool) {
	it, ok := b.items.Load(key)
	if !ok {
		return nil, false
	}
	if !it.expires.IsZero() && !b.now().Before(it.expires) {
		b.items.Delete(key)
		return nil, false
	}
	return it.value, true
}

func (b *MemoryBackend) Set(key string, value any, ttl time.Duration) {
	it := item{value: value}
	if ttl > 0 {
		it.expires = b.now().Add(ttl)
	}
	b.items.Store(key, it)
}

func (b *MemoryBackend) Delete(key string) {
	b.items.Delete(key)
}

func (b *MemoryBackend) DeleteAll() {
	b.items.Clear()
}

// Factory hands out one [Backend] per bin name.
type Factory struct {
	bins *xsync.MapOf[string, Backend]
	new  func(bin string) Backend
}

// NewFactory creates a [Factory] that builds [MemoryBackend] bins.
func NewFactory() *Factory {
	return &Factory{
		bins: xsync.NewMapOf[string, Backend](),
		new: func(bin string) Backend {
			return NewMemoryBackend(bin)
		},
	}
}

// Get returns the backend for the bin, creating it on first use.
func (f *Factory) Get(bin string) Backend {
	b, _ := f.bins.LoadOrCompute(bin, func() Backend {
		return f.new(bin)
	})
	return b
}

// Bins returns the names of the bins created so far.
func (f *Factory) Bins() []string {
	var bins []string
	f.bins.Range(func(bin string, _ Backend) bool {
		bins = append(bins, bin)
		return true
	})
	return bins
}
