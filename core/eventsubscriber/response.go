package eventsubscriber

import (
	"context"
	"maps"
	"net/http"
	"strings"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/core/flood"
	"github.com/sectrean/servicekit/core/kernel"
	"github.com/sectrean/servicekit/core/language"
	"github.com/sectrean/servicekit/core/negotiation"
	"github.com/sectrean/servicekit/core/path"
	"github.com/sectrean/servicekit/core/routing"
	"github.com/sectrean/servicekit/core/serializer"
	"github.com/sectrean/servicekit/core/template"
	"github.com/sectrean/servicekit/internal/errors"
)

// ViewSubscriber renders controller results in the negotiated format.
//
// Strings are rendered as HTML pages. Other values, and the data of a
// [kernel.PayloadResponse], are serialized.
type ViewSubscriber struct {
	negotiation *negotiation.ContentNegotiation
	serializer  *serializer.Serializer
	twig        *template.Environment
	language    *di.Proxy
}

// NewViewSubscriber creates a [ViewSubscriber]. The language manager is
// resolved through a proxy from the scope of the request being rendered.
func NewViewSubscriber(
	negotiation *negotiation.ContentNegotiation,
	serializer *serializer.Serializer,
	twig *template.Environment,
	language *di.Proxy,
) *ViewSubscriber {
	return &ViewSubscriber{
		negotiation: negotiation,
		serializer:  serializer,
		twig:        twig,
		language:    language,
	}
}

// SubscribedEvents implements [event.Subscriber].
func (s *ViewSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventView, Listener: kernelListener(s.onView)},
	}
}

func (s *ViewSubscriber) onView(ctx context.Context, e *kernel.Event) error {
	data, status, header := e.Result, http.StatusOK, http.Header(nil)
	if p, ok := e.Result.(kernel.PayloadResponse); ok {
		data, status, header = p.ResponseData(), p.StatusCode(), p.Header()
	}

	format := s.negotiation.ContentType(e.Request)
	if format == "ajax" {
		format = "json"
	}

	var resp *kernel.Response
	switch {
	case format == negotiation.DefaultFormat:
		content, ok := data.(string)
		if !ok {
			return errors.Wrapf(routing.ErrNotAcceptable, "%T cannot be rendered as html", data)
		}
		body, err := s.twig.RenderString("html", template.Page{
			Langcode: s.langcode(ctx),
			Title:    e.Attribute("_title"),
			Content:  content,
		})
		if err != nil {
			return err
		}
		resp = kernel.NewResponse(status, "text/html; charset=utf-8", []byte(body))

	case s.serializer.SupportsEncoding(format):
		body, err := s.serializer.Serialize(data, format)
		if err != nil {
			return err
		}
		resp = kernel.NewResponse(status, s.serializer.ContentType(format), body)

	default:
		return errors.Wrapf(routing.ErrNotAcceptable, "format %q", format)
	}

	maps.Copy(resp.Header, header)
	e.Response = resp
	return nil
}

func (s *ViewSubscriber) langcode(ctx context.Context) string {
	if s.language == nil {
		return path.LangcodeNotSpecified
	}
	lm, err := di.ProxyGet[*language.Manager](ctx, s.language)
	if err != nil || lm == nil {
		return path.LangcodeNotSpecified
	}
	return lm.Langcode()
}

// FinishResponseSubscriber sets the headers every response carries.
// It lives in the request scope.
type FinishResponseSubscriber struct {
	language *language.Manager
}

// NewFinishResponseSubscriber creates a [FinishResponseSubscriber].
func NewFinishResponseSubscriber(language *language.Manager) *FinishResponseSubscriber {
	return &FinishResponseSubscriber{language: language}
}

// SubscribedEvents implements [event.Subscriber].
func (s *FinishResponseSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventResponse, Listener: kernelListener(s.onResponse)},
	}
}

func (s *FinishResponseSubscriber) onResponse(_ context.Context, e *kernel.Event) error {
	if e.Response.Header == nil {
		e.Response.Header = make(http.Header)
	}
	h := e.Response.Header

	h.Set("Content-Language", s.language.Langcode())
	h.Set("X-Content-Type-Options", "nosniff")
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", "no-cache, must-revalidate")
	}
	return nil
}

// LegacyControllerSubscriber runs the legacy callback of routes matched by
// the [routing.LegacyURLMatcher].
type LegacyControllerSubscriber struct {
	legacy *routing.LegacyURLMatcher
}

// NewLegacyControllerSubscriber creates a [LegacyControllerSubscriber].
func NewLegacyControllerSubscriber(legacy *routing.LegacyURLMatcher) *LegacyControllerSubscriber {
	return &LegacyControllerSubscriber{legacy: legacy}
}

// SubscribedEvents implements [event.Subscriber].
func (s *LegacyControllerSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventController, Listener: kernelListener(s.onController), Priority: 30},
	}
}

func (s *LegacyControllerSubscriber) onController(_ context.Context, e *kernel.Event) error {
	legacyPath := e.Attribute(routing.LegacyAttribute)
	if e.Controller != nil || legacyPath == "" {
		return nil
	}

	cb, ok := s.legacy.Callback(legacyPath)
	if !ok {
		return errors.Wrapf(kernel.ErrControllerNotFound, "legacy path %s", legacyPath)
	}

	var args []string
	if a := e.Attribute("args"); a != "" {
		args = strings.Split(a, "/")
	}
	e.Controller = func(ctx context.Context, _ *http.Request) (any, error) {
		return cb(ctx, args...)
	}
	return nil
}

// CloseTask runs after the response has been sent.
type CloseTask func(ctx context.Context) error

// RequestCloseSubscriber runs housekeeping after each response.
type RequestCloseSubscriber struct {
	flood *flood.DatabaseBackend
	tasks []CloseTask
}

// NewRequestCloseSubscriber creates a [RequestCloseSubscriber] that also
// collects flood garbage.
func NewRequestCloseSubscriber(flood *flood.DatabaseBackend) *RequestCloseSubscriber {
	return &RequestCloseSubscriber{flood: flood}
}

// AddTask adds a task to run on kernel.terminate.
func (s *RequestCloseSubscriber) AddTask(t CloseTask) {
	s.tasks = append(s.tasks, t)
}

// SubscribedEvents implements [event.Subscriber].
func (s *RequestCloseSubscriber) SubscribedEvents() []event.Subscription {
	return []event.Subscription{
		{Event: kernel.EventTerminate, Listener: kernelListener(s.onTerminate), Priority: -100},
	}
}

func (s *RequestCloseSubscriber) onTerminate(ctx context.Context, _ *kernel.Event) error {
	var errs errors.MultiError
	if s.flood != nil {
		errs = errs.Append(s.flood.GarbageCollection(ctx))
	}
	for _, t := range s.tasks {
		errs = errs.Append(t(ctx))
	}
	return errs.Wrap("request close")
}
