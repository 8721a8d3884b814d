package path

import (
	"context"

	"github.com/sectrean/servicekit/core/cache"
)

// CachedAliasManager keeps lookups of another [AliasLookup] in a cache bin.
type CachedAliasManager struct {
	inner AliasLookup
	cache cache.Backend
}

var _ AliasLookup = (*CachedAliasManager)(nil)

// NewCachedAliasManager creates a [CachedAliasManager].
func NewCachedAliasManager(inner AliasLookup, cache cache.Backend) *CachedAliasManager {
	return &CachedAliasManager{inner: inner, cache: cache}
}

func (m *CachedAliasManager) GetPathAlias(ctx context.Context, path, langcode string) (string, error) {
	return m.cached(ctx, "alias:"+langcode+":"+path, func() (string, error) {
		return m.inner.GetPathAlias(ctx, path, langcode)
	})
}

func (m *CachedAliasManager) GetSystemPath(ctx context.Context, alias, langcode string) (string, error) {
	return m.cached(ctx, "source:"+langcode+":"+alias, func() (string, error) {
		return m.inner.GetSystemPath(ctx, alias, langcode)
	})
}

func (m *CachedAliasManager) cached(_ context.Context, key string, load func() (string, error)) (string, error) {
	if v, ok := m.cache.Get(key); ok {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}

	s, err := load()
	if err != nil {
		return "", err
	}
	m.cache.Set(key, s, cache.Permanent)
	return s, nil
}

// CacheClear empties the bin and clears the inner manager.
func (m *CachedAliasManager) CacheClear(ctx context.Context, source string) error {
	m.cache.DeleteAll()
	return m.inner.CacheClear(ctx, source)
}
