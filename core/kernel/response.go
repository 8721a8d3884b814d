package kernel

import (
	"context"
	"maps"
	"net/http"
)

// Response is a complete HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse creates a response with the body and content type.
func NewResponse(status int, contentType string, body []byte) *Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &Response{Status: status, Header: h, Body: body}
}

// WriteTo writes the response to w.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	maps.Copy(w.Header(), r.Header)

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	_, err := w.Write(r.Body)
	return err
}

// PayloadResponse is a controller result that carries data to be serialized
// in the negotiated format.
type PayloadResponse interface {
	ResponseData() any
	StatusCode() int
	Header() http.Header
}

// Controller handles a routed request. It returns a [*Response], a
// [PayloadResponse], or a value for the view listeners to render.
type Controller func(ctx context.Context, r *http.Request) (any, error)

type attributesKey struct{}

// WithAttributes returns a context carrying the request attributes.
func WithAttributes(ctx context.Context, attrs map[string]string) context.Context {
	return context.WithValue(ctx, attributesKey{}, attrs)
}

// Attributes returns the request attributes on the context.
// Controllers receive the attributes of their request.
func Attributes(ctx context.Context) map[string]string {
	attrs, _ := ctx.Value(attributesKey{}).(map[string]string)
	return attrs
}
