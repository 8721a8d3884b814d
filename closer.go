package di

import (
	"context"
)

// Closer is used to close a service when its scope is closed.
//
// If a resolved service implements Closer, or one of the other compatible
// signatures, it is closed when the [Container] that owns it is closed.
// Synthetic services are owned by the caller and never closed.
//
// Any of these Close method signatures are supported:
//
//	Close(context.Context) error
//	Close(context.Context)
//	Close() error
//	Close()
//
// See related options:
//   - [IgnoreCloser]
//   - [WithCloseFunc]
type Closer interface {
	Close(ctx context.Context) error
}

type closerFactory func(val any) Closer

// getCloser returns the Closer for a service implementing one of the
// supported Close signatures, or nil.
func getCloser(val any) Closer {
	switch c := val.(type) {
	case Closer:
		return c
	case interface{ Close(context.Context) }:
		return closeFunc(func(ctx context.Context) error {
			c.Close(ctx)
			return nil
		})
	case interface{ Close() error }:
		return closeFunc(func(context.Context) error {
			return c.Close()
		})
	case interface{ Close() }:
		return closeFunc(func(context.Context) error {
			c.Close()
			return nil
		})
	default:
		return nil
	}
}

// closeFunc adapts a function to the [Closer] interface.
type closeFunc func(context.Context) error

func (f closeFunc) Close(ctx context.Context) error {
	return f(ctx)
}
