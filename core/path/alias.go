// Package path maps system paths to URL aliases and back.
package path

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"sync"

	"github.com/sectrean/servicekit/core/keyvalue"
	"github.com/sectrean/servicekit/internal/errors"
)

// LangcodeNotSpecified matches aliases that apply to every language.
const LangcodeNotSpecified = "und"

const (
	stateCollection = "state"
	whitelistKey    = "system.path_alias_whitelist"
)

// AliasLookup converts between system paths and aliases.
type AliasLookup interface {
	// GetPathAlias returns the alias for a system path, or the path itself.
	GetPathAlias(ctx context.Context, path, langcode string) (string, error)

	// GetSystemPath returns the system path for an alias, or the alias itself.
	GetSystemPath(ctx context.Context, alias, langcode string) (string, error)

	CacheClear(ctx context.Context, source string) error
}

// AliasManager looks aliases up in the url_alias table.
//
// The whitelist of first path segments that have aliases is kept in the
// "state" key/value collection so paths that can never be aliased skip the query.
type AliasManager struct {
	db    *sql.DB
	state keyvalue.Store

	mu        sync.RWMutex
	whitelist []string
	loaded    bool
}

var _ AliasLookup = (*AliasManager)(nil)

// NewAliasManager creates an [AliasManager].
func NewAliasManager(db *sql.DB, kv keyvalue.StoreFactory) *AliasManager {
	return &AliasManager{
		db:    db,
		state: kv.Get(stateCollection),
	}
}

func (m *AliasManager) GetPathAlias(ctx context.Context, path, langcode string) (string, error) {
	path = strings.Trim(path, "/")
	ok, err := m.whitelisted(ctx, path)
	if err != nil || !ok {
		return "/" + path, err
	}

	alias, err := m.lookup(ctx, "alias", "source", path, langcode)
	if err != nil {
		return "", err
	}
	if alias == "" {
		return "/" + path, nil
	}
	return "/" + alias, nil
}

func (m *AliasManager) GetSystemPath(ctx context.Context, alias, langcode string) (string, error) {
	alias = strings.Trim(alias, "/")
	source, err := m.lookup(ctx, "source", "alias", alias, langcode)
	if err != nil {
		return "", err
	}
	if source == "" {
		return "/" + alias, nil
	}
	return "/" + source, nil
}

// lookup prefers an alias in langcode over a language-neutral one, then the newest.
func (m *AliasManager) lookup(ctx context.Context, want, by, value, langcode string) (string, error) {
	if langcode == "" {
		langcode = LangcodeNotSpecified
	}

	var result string
	err := m.db.QueryRowContext(ctx,
		"SELECT "+want+" FROM url_alias WHERE "+by+" = ? AND langcode IN (?, ?)"+
			" ORDER BY CASE WHEN langcode = ? THEN 0 ELSE 1 END, pid DESC LIMIT 1",
		value, langcode, LangcodeNotSpecified, langcode,
	).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return result, errors.Wrapf(err, "alias lookup %s", value)
}

func (m *AliasManager) whitelisted(ctx context.Context, path string) (bool, error) {
	m.mu.RLock()
	loaded, list := m.loaded, m.whitelist
	m.mu.RUnlock()

	if !loaded {
		if _, err := m.state.Get(ctx, whitelistKey, &list); err != nil {
			return false, err
		}
		if list == nil {
			var err error
			if list, err = m.rebuildWhitelist(ctx); err != nil {
				return false, err
			}
		}
		m.mu.Lock()
		m.whitelist, m.loaded = list, true
		m.mu.Unlock()
	}

	first, _, _ := strings.Cut(path, "/")
	return slices.Contains(list, first), nil
}

func (m *AliasManager) rebuildWhitelist(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT DISTINCT source FROM url_alias")
	if err != nil {
		return nil, errors.Wrap(err, "rebuild alias whitelist")
	}
	defer rows.Close()

	list := []string{}
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, err
		}
		first, _, _ := strings.Cut(source, "/")
		if !slices.Contains(list, first) {
			list = append(list, first)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Sort(list)
	return list, m.state.Set(ctx, whitelistKey, list)
}

// CacheClear rebuilds the whitelist after aliases for source changed.
func (m *AliasManager) CacheClear(ctx context.Context, source string) error {
	list, err := m.rebuildWhitelist(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.whitelist, m.loaded = list, true
	m.mu.Unlock()
	return nil
}
