// Package language negotiates the language of the current request.
package language

import (
	"net/http"
	"slices"

	"golang.org/x/text/language"
)

// QueryParameter is the query parameter that selects a language explicitly.
const QueryParameter = "lang"

// Manager holds the language negotiated for one request.
type Manager struct {
	defaultLangcode string
	supported       []string
	langcode        string
}

// NewManager negotiates the language of r.
//
// The "lang" query parameter wins when it names a supported language.
// Otherwise the Accept-Language header is matched against the supported
// languages. The default language is always supported.
func NewManager(r *http.Request, defaultLangcode string, supported []string) *Manager {
	m := &Manager{
		defaultLangcode: defaultLangcode,
		supported:       supportedWithDefault(defaultLangcode, supported),
	}
	m.langcode = m.negotiate(r)
	return m
}

func supportedWithDefault(def string, supported []string) []string {
	out := []string{def}
	for _, s := range supported {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) negotiate(r *http.Request) string {
	if r == nil {
		return m.defaultLangcode
	}

	if lang := r.URL.Query().Get(QueryParameter); slices.Contains(m.supported, lang) {
		return lang
	}

	accept := r.Header.Get("Accept-Language")
	if accept == "" {
		return m.defaultLangcode
	}
	desired, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(desired) == 0 {
		return m.defaultLangcode
	}

	tags := make([]language.Tag, len(m.supported))
	for i, s := range m.supported {
		tags[i] = language.Make(s)
	}
	_, index, confidence := language.NewMatcher(tags).Match(desired...)
	if confidence == language.No {
		return m.defaultLangcode
	}
	return m.supported[index]
}

// Langcode returns the negotiated language code.
func (m *Manager) Langcode() string {
	return m.langcode
}

// Tag returns the negotiated language as a tag.
func (m *Manager) Tag() language.Tag {
	return language.Make(m.langcode)
}

// DefaultLangcode returns the site default language code.
func (m *Manager) DefaultLangcode() string {
	return m.defaultLangcode
}

// Supported returns the supported language codes, default first.
func (m *Manager) Supported() []string {
	return slices.Clone(m.supported)
}

// IsMultilingual returns true if more than one language is supported.
func (m *Manager) IsMultilingual() bool {
	return len(m.supported) > 1
}
