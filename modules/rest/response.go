// Package rest exposes resources over HTTP in the negotiated serialization format.
package rest

import (
	"net/http"

	"github.com/sectrean/servicekit/core/kernel"
)

// ResourceResponse carries data to be serialized before the response is sent.
// The view listeners pick the format from the request.
type ResourceResponse struct {
	data   any
	status int
	header http.Header
}

var _ kernel.PayloadResponse = (*ResourceResponse)(nil)

// NewResourceResponse creates a [ResourceResponse]. A zero status is 200 OK.
func NewResourceResponse(data any, status int, header http.Header) *ResourceResponse {
	if status == 0 {
		status = http.StatusOK
	}
	if header == nil {
		header = make(http.Header)
	}
	return &ResourceResponse{data: data, status: status, header: header}
}

// ResponseData returns the data to serialize.
func (r *ResourceResponse) ResponseData() any { return r.data }

func (r *ResourceResponse) StatusCode() int { return r.status }

func (r *ResourceResponse) Header() http.Header { return r.header }
