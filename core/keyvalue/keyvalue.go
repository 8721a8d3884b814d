// Package keyvalue provides collection-scoped key/value stores.
package keyvalue

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/internal/errors"
)

// DefaultService is the service that builds stores when no parameter
// selects another one for a collection.
const DefaultService = "keyvalue.database"

// Store holds values for one collection.
type Store interface {
	Collection() string

	// Get decodes the value into v and returns false if the key is not set.
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	SetIfNotExists(ctx context.Context, key string, value any) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context) ([]string, error)
	DeleteAll(ctx context.Context) error
}

// StoreFactory builds the [Store] for a collection.
type StoreFactory interface {
	Get(collection string) Store
}

// Container is the part of the service container the [Factory] needs.
type Container interface {
	di.Scope
	Parameter(name string) (any, error)
}

// Factory picks the store service for a collection from the container.
//
// The parameter "keyvalue_service_<collection>" names the [StoreFactory]
// service to use; [DefaultService] is used when it is not set.
type Factory struct {
	container Container
}

// NewFactory creates a [Factory].
func NewFactory(container *di.Container) *Factory {
	return &Factory{container: container}
}

// Get returns the store for the collection.
func (f *Factory) Get(ctx context.Context, collection string) (Store, error) {
	service := DefaultService
	if v, err := f.container.Parameter("keyvalue_service_" + collection); err == nil {
		if s, ok := v.(string); ok && s != "" {
			service = s
		}
	}

	sf, err := di.Get[StoreFactory](ctx, f.container, service)
	if err != nil {
		return nil, errors.Wrapf(err, "keyvalue store %s", collection)
	}
	return sf.Get(collection), nil
}

// DatabaseFactory builds database-backed stores.
type DatabaseFactory struct {
	db *sql.DB
}

var _ StoreFactory = (*DatabaseFactory)(nil)

// NewDatabaseFactory creates a [DatabaseFactory].
func NewDatabaseFactory(db *sql.DB) *DatabaseFactory {
	return &DatabaseFactory{db: db}
}

func (f *DatabaseFactory) Get(collection string) Store {
	return &DatabaseStore{collection: collection, db: f.db}
}

// DatabaseStore keeps JSON-encoded values in the key_value table.
type DatabaseStore struct {
	collection string
	db         *sql.DB
}

var _ Store = (*DatabaseStore)(nil)

func (s *DatabaseStore) Collection() string {
	return s.collection
}

func (s *DatabaseStore) Get(ctx context.Context, key string, v any) (bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM key_value WHERE collection = ? AND name = ?",
		s.collection, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "keyvalue get %s/%s", s.collection, key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Wrapf(err, "keyvalue decode %s/%s", s.collection, key)
	}
	return true, nil
}

func (s *DatabaseStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "keyvalue encode %s/%s", s.collection, key)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO key_value (collection, name, value) VALUES (?, ?, ?)
		ON CONFLICT (collection, name) DO UPDATE SET value = excluded.value`,
		s.collection, key, raw,
	)
	return errors.Wrapf(err, "keyvalue set %s/%s", s.collection, key)
}

func (s *DatabaseStore) SetIfNotExists(ctx context.Context, key string, value any) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, errors.Wrapf(err, "keyvalue encode %s/%s", s.collection, key)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO key_value (collection, name, value) VALUES (?, ?, ?)",
		s.collection, key, raw,
	)
	if err != nil {
		return false, errors.Wrapf(err, "keyvalue set %s/%s", s.collection, key)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM key_value WHERE collection = ? AND name = ?",
			s.collection, key,
		)
		if err != nil {
			return errors.Wrapf(err, "keyvalue delete %s/%s", s.collection, key)
		}
	}
	return nil
}

func (s *DatabaseStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM key_value WHERE collection = ? ORDER BY name",
		s.collection,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "keyvalue keys %s", s.collection)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *DatabaseStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM key_value WHERE collection = ?", s.collection)
	return errors.Wrapf(err, "keyvalue delete all %s", s.collection)
}
