package dihttp

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/dicontext"
	"github.com/sectrean/servicekit/internal/errors"
)

const instrumentationName = "github.com/sectrean/servicekit/dihttp"

// DefaultRequestID is the id of the synthetic service that receives the current [*http.Request].
const DefaultRequestID = "request"

// NewRequestScopeMiddleware creates middleware that enters a new request scope for each request.
// The scope is closed after the request has been processed.
//
// The current [*http.Request] is supplied as the synthetic "request" service of the scope.
// It can be used as a dependency of request-scoped services.
//
// The scope is stored on the request context and can be accessed using
// [dicontext.Scope], [dicontext.Get], or [dicontext.MustGet].
//
// Available options:
//   - [WithScopeName] sets the scope to enter. The default is [di.ScopeRequest].
//   - [WithRequestID] sets the id of the synthetic request service.
//   - [WithScopeOptions] sets [di.ScopeOption]s to use when entering each scope.
//   - [WithNewScopeErrorHandler] sets the handler for errors entering the scope.
//   - [WithScopeCloseErrorHandler] sets the handler for errors closing the scope.
//   - [WithLogger] sets the logger used by the default error handlers.
//   - [WithTracerProvider] sets the tracer provider used for the scope span.
func NewRequestScopeMiddleware(c *di.Container, opts ...ScopeMiddlewareOption) (func(http.Handler) http.Handler, error) {
	if c == nil {
		return nil, errors.New("dihttp.NewRequestScopeMiddleware: parent is nil")
	}

	cfg := &middlewareConfig{
		scope:     di.ScopeRequest,
		requestID: DefaultRequestID,
		logger:    slog.Default(),
		tracer:    otel.GetTracerProvider().Tracer(instrumentationName),
	}

	var errs errors.MultiError
	for _, opt := range opts {
		errs = errs.Append(opt.applyScopeMiddleware(cfg))
	}
	if err := errs.Wrap("dihttp.NewRequestScopeMiddleware"); err != nil {
		return nil, err
	}

	if cfg.newScopeHandler == nil {
		cfg.newScopeHandler = defaultNewScopeErrorHandler(cfg.logger)
	}
	if cfg.closeHandler == nil {
		cfg.closeHandler = defaultScopeCloseErrorHandler(cfg.logger)
	}

	return func(next http.Handler) http.Handler {
		return &scopeMiddleware{
			c:    c,
			cfg:  cfg,
			next: next,
		}
	}, nil
}

// NewScopeErrorHandler is a function that writes an error response to the client.
// This is called by the scope middleware when there is an error entering the scope.
//
// The default handler logs the error and writes a 500 Internal Server Error response.
type NewScopeErrorHandler = func(w http.ResponseWriter, r *http.Request, err error)

func defaultNewScopeErrorHandler(logger *slog.Logger) NewScopeErrorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		logger.ErrorContext(r.Context(), "error creating new HTTP request scope", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// ScopeCloseErrorHandler is a function that handles errors when closing the scope
// after the request has completed.
//
// The default handler logs the error.
type ScopeCloseErrorHandler = func(r *http.Request, err error)

func defaultScopeCloseErrorHandler(logger *slog.Logger) ScopeCloseErrorHandler {
	return func(r *http.Request, err error) {
		logger.ErrorContext(r.Context(), "error closing HTTP request scope", "error", err)
	}
}

type middlewareConfig struct {
	scope           string
	requestID       string
	opts            []di.ScopeOption
	newScopeHandler NewScopeErrorHandler
	closeHandler    ScopeCloseErrorHandler
	logger          *slog.Logger
	tracer          trace.Tracer
}

type scopeMiddleware struct {
	c    *di.Container
	cfg  *middlewareConfig
	next http.Handler
}

func (m *scopeMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := m.cfg.tracer.Start(r.Context(), "dihttp.RequestScope",
		trace.WithAttributes(
			attribute.String("di.scope", m.cfg.scope),
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		),
	)
	defer span.End()

	// A handler further up may already have entered a scope, as sub-requests do.
	parent := m.c
	if s, ok := dicontext.Scope(ctx).(*di.Container); ok {
		parent = s
	}

	scope, err := parent.NewScope(m.cfg.scope, m.cfg.opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "new scope")
		m.cfg.newScopeHandler(w, r.WithContext(ctx), err)
		return
	}

	ctx = dicontext.WithScope(ctx, scope)
	r = r.WithContext(ctx)
	defer m.close(r, scope)

	// Supply the request that carries the scope.
	if scope.Has(m.cfg.requestID) {
		if err := scope.Set(m.cfg.requestID, r); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "set request")
			m.cfg.newScopeHandler(w, r, err)
			return
		}
	}

	m.next.ServeHTTP(w, r)
}

func (m *scopeMiddleware) close(r *http.Request, scope *di.Container) {
	if err := scope.Close(r.Context()); err != nil {
		m.cfg.closeHandler(r, err)
	}
}
