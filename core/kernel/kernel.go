package kernel

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/internal/errors"
)

const instrumentationName = "github.com/sectrean/servicekit/core/kernel"

// RequestServiceID is the synthetic service holding the current request.
const RequestServiceID = "request"

// HTTPKernel handles requests by dispatching the kernel events.
type HTTPKernel struct {
	dispatcher event.Dispatcher
	container  *di.Container
	resolver   *ControllerResolver
	logger     *slog.Logger
	tracer     trace.Tracer
}

var _ http.Handler = (*HTTPKernel)(nil)

// NewHTTPKernel creates an [HTTPKernel].
func NewHTTPKernel(dispatcher event.Dispatcher, container *di.Container, resolver *ControllerResolver) *HTTPKernel {
	return &HTTPKernel{
		dispatcher: dispatcher,
		container:  container,
		resolver:   resolver,
		logger:     slog.Default(),
		tracer:     otel.GetTracerProvider().Tracer(instrumentationName),
	}
}

// SetLogger sets the logger for errors that cannot be returned.
func (k *HTTPKernel) SetLogger(logger *slog.Logger) {
	k.logger = logger
}

// Handle turns a request into a response.
//
// A main request reuses the request scope on ctx if there is one. Otherwise,
// and for every sub-request, a new request scope is entered with r as the
// synthetic request service and closed when Handle returns.
//
// Errors are passed to the kernel.exception listeners. The error is returned
// only if no listener produced a response.
func (k *HTTPKernel) Handle(ctx context.Context, r *http.Request, typ RequestType) (resp *Response, err error) {
	ctx, span := k.tracer.Start(ctx, "kernel.Handle",
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("kernel.request_type", typ.String()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, scope, err := k.enterScope(ctx, r, typ)
	if err != nil {
		return nil, errors.Wrap(err, "kernel.Handle")
	}
	if scope != nil {
		defer func() {
			if err := scope.Close(context.WithoutCancel(ctx)); err != nil {
				k.logger.ErrorContext(ctx, "error closing request scope",
					"error", err,
					"path", r.URL.Path,
				)
			}
		}()
	}

	e := &Event{
		Kernel:      k,
		Request:     r,
		RequestType: typ,
		Attributes:  make(map[string]string),
	}

	resp, err = k.handle(ctx, e)
	if err != nil {
		return k.handleError(ctx, e, err)
	}
	return resp, nil
}

// HandleSubRequest handles r as a sub-request of the request on ctx.
func (k *HTTPKernel) HandleSubRequest(ctx context.Context, r *http.Request) (*Response, error) {
	return k.Handle(ctx, r, SubRequest)
}

func (k *HTTPKernel) enterScope(ctx context.Context, r *http.Request, typ RequestType) (context.Context, *di.Container, error) {
	parent, _ := di.ScopeFromContext(ctx).(*di.Container)
	if typ == MainRequest && parent != nil && parent.ScopeName() == di.ScopeRequest {
		return ctx, nil, nil
	}
	if parent == nil {
		parent = k.container
	}

	scope, err := parent.NewScope(di.ScopeRequest, di.WithSynthetic(RequestServiceID, r))
	if err != nil {
		return ctx, nil, err
	}
	return di.ContextWithScope(ctx, scope), scope, nil
}

func (k *HTTPKernel) handle(ctx context.Context, e *Event) (*Response, error) {
	if err := k.dispatch(ctx, EventRequest, e); err != nil {
		return nil, err
	}
	if e.Response != nil {
		return k.filterResponse(ctx, e)
	}

	c, err := k.resolver.Controller(ctx, e.Attributes)
	if err != nil {
		return nil, err
	}
	e.Controller = c

	if err := k.dispatch(ctx, EventController, e); err != nil {
		return nil, err
	}
	if e.Controller == nil {
		return nil, errors.Wrapf(ErrControllerNotFound, "path %s", e.Request.URL.Path)
	}

	result, err := e.Controller(WithAttributes(ctx, e.Attributes), e.Request)
	if err != nil {
		return nil, err
	}

	if resp, ok := result.(*Response); ok {
		e.Response = resp
		return k.filterResponse(ctx, e)
	}

	e.Result = result
	if err := k.dispatch(ctx, EventView, e); err != nil {
		return nil, err
	}
	if e.Response == nil {
		return nil, errors.Errorf("controller returned %T and no view listener made a response", result)
	}
	return k.filterResponse(ctx, e)
}

func (k *HTTPKernel) handleError(ctx context.Context, e *Event, err error) (*Response, error) {
	e.Err = err
	e.Response = nil

	if derr := k.dispatch(ctx, EventException, e); derr != nil {
		return nil, errors.Join(err, derr)
	}
	if e.Response == nil {
		return nil, err
	}

	resp, ferr := k.filterResponse(ctx, e)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return resp, nil
}

func (k *HTTPKernel) filterResponse(ctx context.Context, e *Event) (*Response, error) {
	if err := k.dispatch(ctx, EventResponse, e); err != nil {
		return nil, err
	}
	return e.Response, nil
}

// dispatch resets propagation so each kernel event reaches its listeners.
func (k *HTTPKernel) dispatch(ctx context.Context, name string, e *Event) error {
	e.Base = event.Base{}
	return k.dispatcher.Dispatch(ctx, name, e)
}

// Terminate dispatches kernel.terminate after the response was sent.
func (k *HTTPKernel) Terminate(ctx context.Context, r *http.Request, resp *Response) error {
	e := &Event{Kernel: k, Request: r, RequestType: MainRequest, Response: resp}
	return errors.Wrap(k.dispatch(ctx, EventTerminate, e), "kernel.Terminate")
}

// ServeHTTP handles r as a main request, writes the response and terminates.
func (k *HTTPKernel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := k.Handle(ctx, r, MainRequest)
	if err != nil {
		k.logger.ErrorContext(ctx, "unhandled error handling request",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := resp.WriteTo(w); err != nil {
		k.logger.DebugContext(ctx, "error writing response", "error", err)
	}

	if err := k.Terminate(ctx, r, resp); err != nil {
		k.logger.ErrorContext(ctx, "error terminating request", "error", err)
	}
}
