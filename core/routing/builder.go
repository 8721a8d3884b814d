package routing

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/core/lock"
	"github.com/sectrean/servicekit/internal/errors"
)

// Route build events.
const (
	// EventRouteBuild is dispatched with a [RouteBuildEvent] to collect routes.
	EventRouteBuild = "routing.route_build"

	// EventRouteAlter is dispatched after collection so routes can be changed.
	EventRouteAlter = "routing.route_alter"

	// EventRouteFinished is dispatched after the routes are dumped.
	EventRouteFinished = "routing.route_finished"
)

// RebuildLock is the lock held while routes are rebuilt.
const RebuildLock = "router_rebuild"

// RouteBuildEvent carries the collection being built.
type RouteBuildEvent struct {
	event.Base
	Collection *RouteCollection
}

// MatcherDumper writes routes to the router table.
type MatcherDumper struct {
	db     *sql.DB
	routes *RouteCollection
}

// NewMatcherDumper creates a [MatcherDumper] writing to db.
func NewMatcherDumper(db *sql.DB) *MatcherDumper {
	return &MatcherDumper{db: db, routes: NewRouteCollection()}
}

// AddRoutes queues routes for the next [MatcherDumper.Dump].
func (d *MatcherDumper) AddRoutes(c *RouteCollection) {
	for _, r := range c.All() {
		d.routes.Add(r)
	}
}

// Routes returns the queued routes.
func (d *MatcherDumper) Routes() *RouteCollection {
	return d.routes
}

// Dump replaces the router table with the queued routes, bumps the table
// version and clears the queue.
func (d *MatcherDumper) Dump(ctx context.Context) (err error) {
	for _, r := range d.routes.All() {
		if _, err := compile(r.Path); err != nil {
			return errors.Wrapf(err, "dump route %s", r.Name)
		}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "dump routes")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM router`); err != nil {
		return errors.Wrap(err, "dump routes")
	}
	for _, r := range d.routes.All() {
		blob, err := json.Marshal(r)
		if err != nil {
			return errors.Wrapf(err, "dump route %s", r.Name)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO router (name, path, fit, route) VALUES (?, ?, ?, ?)`,
			r.Name, r.Path, r.Fit(), blob,
		)
		if err != nil {
			return errors.Wrapf(err, "dump route %s", r.Name)
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO router_version (id, version) VALUES (0, 1)
		ON CONFLICT (id) DO UPDATE SET version = version + 1`)
	if err != nil {
		return errors.Wrap(err, "dump routes")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "dump routes")
	}

	d.routes = NewRouteCollection()
	return nil
}

// RouteBuilder collects routes from event listeners and dumps them.
type RouteBuilder struct {
	dumper     *MatcherDumper
	lock       lock.Backend
	dispatcher event.Dispatcher

	// MaxWait bounds how long Rebuild waits for another rebuild to finish.
	MaxWait time.Duration
}

// NewRouteBuilder creates a [RouteBuilder].
func NewRouteBuilder(dumper *MatcherDumper, lock lock.Backend, dispatcher event.Dispatcher) *RouteBuilder {
	return &RouteBuilder{
		dumper:     dumper,
		lock:       lock,
		dispatcher: dispatcher,
		MaxWait:    30 * time.Second,
	}
}

// Rebuild collects and dumps every route.
//
// If another rebuild holds the lock, Rebuild waits for it and returns false.
func (b *RouteBuilder) Rebuild(ctx context.Context) (bool, error) {
	acquired, err := b.lock.Acquire(ctx, RebuildLock, 0)
	if err != nil {
		return false, errors.Wrap(err, "rebuild routes")
	}
	if !acquired {
		b.lock.Wait(ctx, RebuildLock, b.MaxWait)
		return false, nil
	}
	defer func() {
		_ = b.lock.Release(context.WithoutCancel(ctx), RebuildLock)
	}()

	e := &RouteBuildEvent{Collection: NewRouteCollection()}
	if err := b.dispatcher.Dispatch(ctx, EventRouteBuild, e); err != nil {
		return false, errors.Wrap(err, "rebuild routes")
	}
	e.Base = event.Base{}
	if err := b.dispatcher.Dispatch(ctx, EventRouteAlter, e); err != nil {
		return false, errors.Wrap(err, "rebuild routes")
	}

	b.dumper.AddRoutes(e.Collection)
	if err := b.dumper.Dump(ctx); err != nil {
		return false, errors.Wrap(err, "rebuild routes")
	}

	if err := b.dispatcher.Dispatch(ctx, EventRouteFinished, &RouteBuildEvent{Collection: e.Collection}); err != nil {
		return true, errors.Wrap(err, "rebuild routes")
	}
	return true, nil
}
