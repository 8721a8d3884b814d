// Package lock provides named locks shared between processes through the database.
package lock

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sectrean/servicekit/internal/errors"
)

// DefaultTimeout is the lifetime of a lock acquired with a zero timeout.
const DefaultTimeout = 30 * time.Second

// Backend acquires and releases named locks.
type Backend interface {
	Acquire(ctx context.Context, name string, timeout time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
	Wait(ctx context.Context, name string, maxWait time.Duration) bool
	LockMayBeAvailable(ctx context.Context, name string) bool
	ReleaseAll(ctx context.Context) error
}

// DatabaseBackend stores locks in the semaphore table. Each backend has its
// own lock id, so locks held by another backend are never released by this one.
type DatabaseBackend struct {
	db     *sql.DB
	lockID string
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]struct{}
}

var _ Backend = (*DatabaseBackend)(nil)

// NewDatabaseBackend creates a [DatabaseBackend] with a new lock id.
func NewDatabaseBackend(db *sql.DB) *DatabaseBackend {
	return &DatabaseBackend{
		db:     db,
		lockID: uuid.NewString(),
		now:    time.Now,
		locks:  make(map[string]struct{}),
	}
}

// LockID returns the id this backend stores with its locks.
func (b *DatabaseBackend) LockID() string {
	return b.lockID
}

func (b *DatabaseBackend) expire(timeout time.Duration) float64 {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return float64(b.now().Add(timeout).UnixNano()) / 1e9
}

// Acquire takes the lock, or extends it if this backend already holds it.
func (b *DatabaseBackend) Acquire(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expire := b.expire(timeout)
	if _, held := b.locks[name]; held {
		res, err := b.db.ExecContext(ctx,
			"UPDATE semaphore SET expire = ? WHERE name = ? AND value = ?",
			expire, name, b.lockID,
		)
		if err != nil {
			return false, errors.Wrapf(err, "lock acquire %s", name)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return true, nil
		}
		delete(b.locks, name)
	}

	for range 2 {
		res, err := b.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO semaphore (name, value, expire) VALUES (?, ?, ?)",
			name, b.lockID, expire,
		)
		if err != nil {
			return false, errors.Wrapf(err, "lock acquire %s", name)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			b.locks[name] = struct{}{}
			return true, nil
		}

		// Another backend holds it. Retry once if that lock has expired.
		if !b.releaseExpired(ctx, name) {
			return false, nil
		}
	}
	return false, nil
}

func (b *DatabaseBackend) releaseExpired(ctx context.Context, name string) bool {
	res, err := b.db.ExecContext(ctx,
		"DELETE FROM semaphore WHERE name = ? AND expire <= ?",
		name, float64(b.now().UnixNano())/1e9,
	)
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	return n == 1
}

// LockMayBeAvailable returns true if no live lock with the name exists.
func (b *DatabaseBackend) LockMayBeAvailable(ctx context.Context, name string) bool {
	var expire float64
	err := b.db.QueryRowContext(ctx, "SELECT expire FROM semaphore WHERE name = ?", name).Scan(&expire)
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	if err != nil {
		return false
	}
	return expire <= float64(b.now().UnixNano())/1e9
}

// Wait polls until the lock may be available or maxWait passes.
// It returns true if the caller should still wait, false if the lock may be available.
func (b *DatabaseBackend) Wait(ctx context.Context, name string, maxWait time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	delay := 25 * time.Millisecond

	for {
		if b.LockMayBeAvailable(ctx, name) {
			return false
		}
		if time.Now().Add(delay).After(deadline) {
			return true
		}

		select {
		case <-ctx.Done():
			return true
		case <-time.After(delay):
		}
		delay = min(delay*2, 500*time.Millisecond)
	}
}

func (b *DatabaseBackend) Release(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.locks, name)
	_, err := b.db.ExecContext(ctx, "DELETE FROM semaphore WHERE name = ? AND value = ?", name, b.lockID)
	return errors.Wrapf(err, "lock release %s", name)
}

// ReleaseAll releases every lock held by this backend.
func (b *DatabaseBackend) ReleaseAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.locks) == 0 {
		return nil
	}
	b.locks = make(map[string]struct{})
	_, err := b.db.ExecContext(ctx, "DELETE FROM semaphore WHERE value = ?", b.lockID)
	return errors.Wrap(err, "lock release all")
}

// Close releases every lock held by this backend.
func (b *DatabaseBackend) Close(ctx context.Context) error {
	return b.ReleaseAll(ctx)
}
