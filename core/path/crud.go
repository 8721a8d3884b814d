package path

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sectrean/servicekit/internal/errors"
)

// ErrAliasNotFound is returned when no alias matches.
var ErrAliasNotFound = errors.New("path alias not found")

// Alias is a row of the url_alias table.
type Alias struct {
	PID      int64
	Source   string
	Alias    string
	Langcode string
}

// Path creates, loads and deletes aliases.
type Path struct {
	db      *sql.DB
	aliases AliasLookup
}

// NewPath creates a [Path].
func NewPath(db *sql.DB, aliases AliasLookup) *Path {
	return &Path{db: db, aliases: aliases}
}

// Save inserts the alias, or updates it when PID is set.
func (p *Path) Save(ctx context.Context, a Alias) (Alias, error) {
	a.Source = strings.Trim(a.Source, "/")
	a.Alias = strings.Trim(a.Alias, "/")
	if a.Source == "" || a.Alias == "" {
		return a, errors.New("path save: source and alias are required")
	}
	if a.Langcode == "" {
		a.Langcode = LangcodeNotSpecified
	}

	if a.PID == 0 {
		res, err := p.db.ExecContext(ctx,
			"INSERT INTO url_alias (source, alias, langcode) VALUES (?, ?, ?)",
			a.Source, a.Alias, a.Langcode,
		)
		if err != nil {
			return a, errors.Wrap(err, "path save")
		}
		if a.PID, err = res.LastInsertId(); err != nil {
			return a, errors.Wrap(err, "path save")
		}
	} else {
		res, err := p.db.ExecContext(ctx,
			"UPDATE url_alias SET source = ?, alias = ?, langcode = ? WHERE pid = ?",
			a.Source, a.Alias, a.Langcode, a.PID,
		)
		if err != nil {
			return a, errors.Wrap(err, "path save")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return a, errors.Wrapf(ErrAliasNotFound, "path save %d", a.PID)
		}
	}

	return a, p.aliases.CacheClear(ctx, a.Source)
}

// Load returns the alias with the given pid.
func (p *Path) Load(ctx context.Context, pid int64) (Alias, error) {
	a := Alias{PID: pid}
	err := p.db.QueryRowContext(ctx,
		"SELECT source, alias, langcode FROM url_alias WHERE pid = ?", pid,
	).Scan(&a.Source, &a.Alias, &a.Langcode)
	if errors.Is(err, sql.ErrNoRows) {
		return a, errors.Wrapf(ErrAliasNotFound, "path load %d", pid)
	}
	return a, errors.Wrapf(err, "path load %d", pid)
}

// Delete removes the alias with the given pid.
func (p *Path) Delete(ctx context.Context, pid int64) error {
	a, err := p.Load(ctx, pid)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, "DELETE FROM url_alias WHERE pid = ?", pid); err != nil {
		return errors.Wrapf(err, "path delete %d", pid)
	}
	return p.aliases.CacheClear(ctx, a.Source)
}
