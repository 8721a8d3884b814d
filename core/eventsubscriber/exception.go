package eventsubscriber

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core/config"
	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/core/kernel"
	"github.com/sectrean/servicekit/core/negotiation"
	"github.com/sectrean/servicekit/core/routing"
	"github.com/sectrean/servicekit/core/serializer"
	"github.com/sectrean/servicekit/core/template"
	"github.com/sectrean/servicekit/internal/errors"
)

// StatusCoder is implemented by errors that choose their HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// StatusCode returns the HTTP status for an error.
func StatusCode(err error) int {
	var sc StatusCoder
	switch {
	case errors.As(err, &sc):
		return sc.StatusCode()
	case errors.Is(err, routing.ErrResourceNotFound), errors.Is(err, kernel.ErrControllerNotFound):
		return http.StatusNotFound
	case errors.Is(err, routing.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, routing.ErrNotAcceptable):
		return http.StatusNotAcceptable
	case errors.Is(err, routing.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrMaintenanceMode):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ExceptionController renders error responses.
type ExceptionController struct {
	negotiation *negotiation.ContentNegotiation
	serializer  *serializer.Serializer
	logger      *slog.Logger
}

// NewExceptionController creates an [ExceptionController].
func NewExceptionController(negotiation *negotiation.ContentNegotiation, serializer *serializer.Serializer) *ExceptionController {
	return &ExceptionController{
		negotiation: negotiation,
		serializer:  serializer,
		logger:      slog.Default(),
	}
}

// SetLogger sets the logger for server errors.
func (c *ExceptionController) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// Listener returns the kernel.exception listener. HTML error pages are
// rendered with the "twig" service of container.
func (c *ExceptionController) Listener(container *di.Container) *ExceptionListener {
	return &ExceptionListener{controller: c, container: container}
}

// Render builds the error response for err in the format the request negotiates.
func (c *ExceptionController) Render(ctx context.Context, scope di.Scope, r *http.Request, err error) (*kernel.Response, error) {
	status := StatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		if status == http.StatusInternalServerError {
			c.logger.ErrorContext(ctx, "error handling request",
				"error", err,
				"method", r.Method,
				"path", r.URL.Path,
			)
		}
		message = "The website encountered an unexpected error. Please try again later."
	}

	format := c.negotiation.ContentType(r)
	if format == "ajax" {
		format = "json"
	}
	if format != negotiation.DefaultFormat && c.serializer.SupportsEncoding(format) {
		body, serr := c.serializer.Serialize(map[string]any{
			"status":  status,
			"message": message,
		}, format)
		if serr != nil {
			return nil, serr
		}
		return kernel.NewResponse(status, c.serializer.ContentType(format), body), nil
	}

	twig, gerr := di.Get[*template.Environment](ctx, scope, "twig")
	if gerr != nil {
		return nil, gerr
	}
	body, rerr := twig.RenderString("error", map[string]any{
		"Status":  status,
		"Title":   http.StatusText(status),
		"Message": message,
	})
	if rerr != nil {
		return nil, rerr
	}
	return kernel.NewResponse(status, "text/html; charset=utf-8", []byte(body)), nil
}

// ExceptionListener turns kernel errors into error responses.
type ExceptionListener struct {
	controller *ExceptionController
	container  *di.Container
}

// SubscribedEvents implements [event.Subscriber].
func (s *ExceptionListener) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventException, Listener: kernelListener(s.onException), Priority: -128},
	}
}

func (s *ExceptionListener) onException(ctx context.Context, e *kernel.Event) error {
	var scope di.Scope = s.container
	if sc := di.ScopeFromContext(ctx); sc != nil {
		scope = sc
	}

	resp, err := s.controller.Render(ctx, scope, e.Request, e.Err)
	if err != nil {
		return errors.Wrap(err, "render error response")
	}
	e.SetResponse(resp)
	return nil
}

// ConfigGlobalOverrideSubscriber layers overrides from settings onto
// configuration objects as they are loaded. Overrides are keyed by
// configuration object name.
type ConfigGlobalOverrideSubscriber struct {
	overrides map[string]any
}

// NewConfigGlobalOverrideSubscriber creates a [ConfigGlobalOverrideSubscriber].
func NewConfigGlobalOverrideSubscriber(overrides map[string]any) *ConfigGlobalOverrideSubscriber {
	return &ConfigGlobalOverrideSubscriber{overrides: overrides}
}

// SubscribedEvents implements [event.Subscriber].
func (s *ConfigGlobalOverrideSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: config.EventInit, Listener: s.onInit, Priority: 30},
	}
}

func (s *ConfigGlobalOverrideSubscriber) onInit(_ context.Context, e event.Event) error {
	ce, ok := e.(*config.Event)
	if !ok {
		return errors.Errorf("unexpected event %T", e)
	}
	if o, ok := s.overrides[ce.Config.Name()].(map[string]any); ok {
		ce.Config.SetOverrides(o)
	}
	return nil
}
