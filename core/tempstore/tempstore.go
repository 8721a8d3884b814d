// Package tempstore keeps temporary, non-cache data owned by a user.
package tempstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sectrean/servicekit/core/lock"
	"github.com/sectrean/servicekit/internal/errors"
)

// DefaultExpire is how long an entry is kept after its last write.
const DefaultExpire = 7 * 24 * time.Hour

// ErrLocked is returned when another request holds the entry's lock.
var ErrLocked = errors.New("tempstore entry locked")

// Factory creates a [TempStore] per collection and owner.
type Factory struct {
	db     *sql.DB
	lock   lock.Backend
	expire time.Duration
}

// NewFactory creates a [Factory].
func NewFactory(db *sql.DB, lock lock.Backend) *Factory {
	return &Factory{db: db, lock: lock, expire: DefaultExpire}
}

// Get returns the store for a collection owned by owner.
func (f *Factory) Get(collection, owner string) *TempStore {
	return &TempStore{
		collection: "user.tempstore." + collection,
		owner:      owner,
		db:         f.db,
		lock:       f.lock,
		expire:     f.expire,
		now:        time.Now,
	}
}

// Metadata describes who last wrote an entry.
type Metadata struct {
	Owner   string    `json:"owner"`
	Updated time.Time `json:"updated"`
}

type record struct {
	Metadata
	Data json.RawMessage `json:"data"`
}

// TempStore holds entries of one collection. Any owner may read an entry,
// and the owner is recorded on each write.
type TempStore struct {
	collection string
	owner      string
	db         *sql.DB
	lock       lock.Backend
	expire     time.Duration
	now        func() time.Time
}

// Get decodes the entry into v and returns false if it does not exist or has expired.
func (s *TempStore) Get(ctx context.Context, key string, v any) (bool, error) {
	rec, ok, err := s.load(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return true, errors.Wrapf(json.Unmarshal(rec.Data, v), "tempstore decode %s", key)
}

// GetMetadata returns the owner and update time of the entry.
func (s *TempStore) GetMetadata(ctx context.Context, key string) (Metadata, bool, error) {
	rec, ok, err := s.load(ctx, key)
	return rec.Metadata, ok, err
}

// SetIfNotExists stores the entry only if no live entry exists.
func (s *TempStore) SetIfNotExists(ctx context.Context, key string, value any) (bool, error) {
	_, exists, err := s.load(ctx, key)
	if err != nil || exists {
		return false, err
	}
	return true, s.Set(ctx, key, value)
}

// Set stores the entry while holding its lock.
func (s *TempStore) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "tempstore encode %s", key)
	}
	raw, err := json.Marshal(record{
		Metadata: Metadata{Owner: s.owner, Updated: s.now().UTC()},
		Data:     data,
	})
	if err != nil {
		return errors.Wrapf(err, "tempstore encode %s", key)
	}

	return s.locked(ctx, key, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO key_value_expire (collection, name, value, expire) VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, name) DO UPDATE SET value = excluded.value, expire = excluded.expire`,
			s.collection, key, raw, s.now().Add(s.expire).Unix(),
		)
		return errors.Wrapf(err, "tempstore set %s", key)
	})
}

// Delete removes the entry while holding its lock.
func (s *TempStore) Delete(ctx context.Context, key string) error {
	return s.locked(ctx, key, func() error {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM key_value_expire WHERE collection = ? AND name = ?",
			s.collection, key,
		)
		return errors.Wrapf(err, "tempstore delete %s", key)
	})
}

func (s *TempStore) locked(ctx context.Context, key string, f func() error) error {
	name := s.collection + ":" + key
	ok, err := s.lock.Acquire(ctx, name, 0)
	if err != nil {
		return err
	}
	if !ok {
		s.lock.Wait(ctx, name, 2*time.Second)
		if ok, err = s.lock.Acquire(ctx, name, 0); err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(ErrLocked, "tempstore %s", name)
		}
	}
	defer s.lock.Release(ctx, name)

	return f()
}

func (s *TempStore) load(ctx context.Context, key string) (record, bool, error) {
	var rec record
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM key_value_expire WHERE collection = ? AND name = ? AND expire > ?",
		s.collection, key, s.now().Unix(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, errors.Wrapf(err, "tempstore get %s", key)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, false, errors.Wrapf(err, "tempstore decode %s", key)
	}
	return rec, true, nil
}
