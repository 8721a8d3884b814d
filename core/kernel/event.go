// Package kernel turns requests into responses by dispatching kernel events
// around a resolved controller.
package kernel

import (
	"net/http"

	"github.com/sectrean/servicekit/core/event"
)

// Kernel event names, in the order they are dispatched.
const (
	EventRequest    = "kernel.request"
	EventController = "kernel.controller"
	EventView       = "kernel.view"
	EventResponse   = "kernel.response"
	EventException  = "kernel.exception"
	EventTerminate  = "kernel.terminate"
)

// RequestType tells listeners whether a request came from the client.
type RequestType int

const (
	// MainRequest is a request received from the client.
	MainRequest RequestType = iota

	// SubRequest is a request made while handling another request.
	SubRequest
)

func (t RequestType) String() string {
	if t == SubRequest {
		return "sub"
	}
	return "main"
}

// Event is passed to the listeners of every kernel event.
//
// Request listeners may replace Request or set Response to skip the
// controller. View listeners turn Result into a Response. Exception
// listeners may set Response for Err.
type Event struct {
	event.Base

	Kernel      *HTTPKernel
	Request     *http.Request
	RequestType RequestType

	// Attributes are the request attributes. Route matching fills them.
	Attributes map[string]string

	Controller Controller
	Result     any
	Response   *Response
	Err        error
}

// IsMainRequest returns true for requests received from the client.
func (e *Event) IsMainRequest() bool {
	return e.RequestType == MainRequest
}

// SetResponse sets the response and stops propagation.
func (e *Event) SetResponse(resp *Response) {
	e.Response = resp
	e.StopPropagation()
}

// Attribute returns a request attribute, or "".
func (e *Event) Attribute(key string) string {
	return e.Attributes[key]
}

// SetAttributes merges attrs into the request attributes.
func (e *Event) SetAttributes(attrs map[string]string) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string, len(attrs))
	}
	for k, v := range attrs {
		e.Attributes[k] = v
	}
}
