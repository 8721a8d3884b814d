package dihttp

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/internal/errors"
)

// ScopeMiddlewareOption is an option used to configure the scope middleware when calling
// [NewRequestScopeMiddleware].
type ScopeMiddlewareOption interface {
	applyScopeMiddleware(*middlewareConfig) error
}

type scopeMiddlewareOption func(*middlewareConfig) error

func (o scopeMiddlewareOption) applyScopeMiddleware(c *middlewareConfig) error {
	return o(c)
}

// WithScopeName sets the scope entered for each request.
func WithScopeName(name string) ScopeMiddlewareOption {
	return scopeMiddlewareOption(func(c *middlewareConfig) error {
		if name == "" {
			return errors.New("WithScopeName: name is empty")
		}
		c.scope = name
		return nil
	})
}

// WithRequestID sets the id of the synthetic service that receives the [*http.Request].
func WithRequestID(id string) ScopeMiddlewareOption {
	return scopeMiddlewareOption(func(c *middlewareConfig) error {
		if id == "" {
			return errors.New("WithRequestID: id is empty")
		}
		c.requestID = id
		return nil
	})
}

// WithScopeOptions sets the options to use when calling [di.Container.NewScope] for each request.
func WithScopeOptions(opts ...di.ScopeOption) ScopeMiddlewareOption {
	return scopeMiddlewareOption(func(c *middlewareConfig) error {
		c.opts = append(c.opts, opts...)
		return nil
	})
}

// WithNewScopeErrorHandler sets the error handler for when there is an error entering a new scope.
func WithNewScopeErrorHandler(h NewScopeErrorHandler) ScopeMiddlewareOption {
	return scopeMiddlewareOption(func(c *middlewareConfig) error {
		if h == nil {
			return errors.New("WithNewScopeErrorHandler: h is nil")
		}
		c.newScopeHandler = h
		return nil
	})
}

// WithScopeCloseErrorHandler sets the error handler for when there is an error closing the scope.
func WithScopeCloseErrorHandler(h ScopeCloseErrorHandler) ScopeMiddlewareOption {
	return scopeMiddlewareOption(func(c *middlewareConfig) error {
		if h == nil {
			return errors.New("WithScopeCloseErrorHandler: h is nil")
		}
		c.closeHandler = h
		return nil
	})
}

// WithLogger sets the logger used by the default error handlers.
func WithLogger(logger *slog.Logger) ScopeMiddlewareOption {
	return scopeMiddlewareOption(func(c *middlewareConfig) error {
		if logger == nil {
			return errors.New("WithLogger: logger is nil")
		}
		c.logger = logger
		return nil
	})
}

// WithTracerProvider sets the tracer provider used for the request scope span.
func WithTracerProvider(tp trace.TracerProvider) ScopeMiddlewareOption {
	return scopeMiddlewareOption(func(c *middlewareConfig) error {
		if tp == nil {
			return errors.New("WithTracerProvider: tp is nil")
		}
		c.tracer = tp.Tracer(instrumentationName)
		return nil
	})
}
