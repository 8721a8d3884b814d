// Package flood limits how often an event may happen per identifier.
package flood

import (
	"context"
	"database/sql"
	"time"

	"github.com/sectrean/servicekit/internal/errors"
)

// DatabaseBackend records events in the flood table.
type DatabaseBackend struct {
	db  *sql.DB
	now func() time.Time
}

// NewDatabaseBackend creates a [DatabaseBackend].
func NewDatabaseBackend(db *sql.DB) *DatabaseBackend {
	return &DatabaseBackend{db: db, now: time.Now}
}

// Register records an event for identifier. The record expires after window.
func (b *DatabaseBackend) Register(ctx context.Context, name string, window time.Duration, identifier string) error {
	now := b.now()
	_, err := b.db.ExecContext(ctx,
		"INSERT INTO flood (event, identifier, timestamp, expiration) VALUES (?, ?, ?, ?)",
		name, identifier, now.Unix(), now.Add(window).Unix(),
	)
	return errors.Wrapf(err, "flood register %s", name)
}

// IsAllowed returns true if identifier registered the event fewer than
// threshold times within window.
func (b *DatabaseBackend) IsAllowed(ctx context.Context, name string, threshold int, window time.Duration, identifier string) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM flood WHERE event = ? AND identifier = ? AND timestamp > ?",
		name, identifier, b.now().Add(-window).Unix(),
	).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "flood is allowed %s", name)
	}
	return n < threshold, nil
}

// Clear removes the events recorded for identifier.
func (b *DatabaseBackend) Clear(ctx context.Context, name, identifier string) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM flood WHERE event = ? AND identifier = ?", name, identifier)
	return errors.Wrapf(err, "flood clear %s", name)
}

// GarbageCollection removes expired events.
func (b *DatabaseBackend) GarbageCollection(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM flood WHERE expiration < ?", b.now().Unix())
	return errors.Wrap(err, "flood garbage collection")
}
