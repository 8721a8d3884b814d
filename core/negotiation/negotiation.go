// Package negotiation picks the response format for a request.
package negotiation

import (
	"mime"
	"net/http"
	"strings"
)

// FormatParam is the query parameter that forces a format.
const FormatParam = "_format"

// DefaultFormat is used when nothing in the request selects a format.
const DefaultFormat = "html"

var mediaTypes = map[string]string{
	"text/html":             "html",
	"application/xhtml+xml": "html",
	"application/json":      "json",
	"application/yaml":      "yaml",
	"application/x-yaml":    "yaml",
	"text/yaml":             "yaml",
}

// ContentNegotiation inspects the request for the format to respond in.
type ContentNegotiation struct{}

// NewContentNegotiation creates a [ContentNegotiation].
func NewContentNegotiation() *ContentNegotiation {
	return &ContentNegotiation{}
}

// ContentType returns the format for the request: the _format query
// parameter, "ajax" for XMLHttpRequests, then the first known Accept entry.
func (*ContentNegotiation) ContentType(r *http.Request) string {
	if f := r.URL.Query().Get(FormatParam); f != "" {
		return f
	}
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return "ajax"
	}
	for _, mt := range AcceptedMediaTypes(r) {
		if f, ok := mediaTypes[mt]; ok {
			return f
		}
	}
	return DefaultFormat
}

// FormatForMediaType returns the format name of a media type.
func FormatForMediaType(mt string) (string, bool) {
	f, ok := mediaTypes[mt]
	return f, ok
}

// AcceptedMediaTypes returns the media types of the Accept header in order,
// without parameters.
func AcceptedMediaTypes(r *http.Request) []string {
	var types []string
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mt, _, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		types = append(types, mt)
	}
	return types
}
