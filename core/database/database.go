// Package database opens the SQLite connections used by core services.
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/sectrean/servicekit/internal/errors"
)

// Connection roles.
const (
	RoleDefault = "default"

	// RoleSlave is a read replica. It falls back to the default
	// connection when no replica is configured.
	RoleSlave = "slave"
)

// ErrUnknownRole is returned for a connection role that is not configured.
var ErrUnknownRole = errors.New("unknown database role")

//go:embed schema.sql
var schema string

// Factory opens one connection pool per role and keeps it for reuse.
type Factory struct {
	dsns map[string]string

	mu    sync.Mutex
	conns map[string]*sql.DB
}

// NewFactory creates a [Factory]. An empty slaveDSN makes the slave role
// share the default connection.
func NewFactory(defaultDSN, slaveDSN string) *Factory {
	dsns := map[string]string{RoleDefault: defaultDSN}
	if strings.TrimSpace(slaveDSN) != "" {
		dsns[RoleSlave] = slaveDSN
	}
	return &Factory{
		dsns:  dsns,
		conns: make(map[string]*sql.DB),
	}
}

// GetConnection returns the connection for the role, opening it on first use.
func (f *Factory) GetConnection(ctx context.Context, role string) (*sql.DB, error) {
	if role == RoleSlave {
		if _, ok := f.dsns[RoleSlave]; !ok {
			role = RoleDefault
		}
	}
	dsn, ok := f.dsns[role]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRole, "get connection %q", role)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if db, ok := f.conns[role]; ok {
		return db, nil
	}

	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "get connection %q", role)
	}
	f.conns[role] = db
	return db, nil
}

// Close closes every connection the factory opened.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs errors.MultiError
	for role, db := range f.conns {
		errs = errs.Append(errors.Wrapf(db.Close(), "close %s", role))
	}
	f.conns = make(map[string]*sql.DB)
	return errs.Join()
}

// Open opens a SQLite database at path and installs the core schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if err := install(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "install schema")
	}
	return db, nil
}

func install(ctx context.Context, db *sql.DB) error {
	for i, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return nil
}
