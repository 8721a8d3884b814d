// Package template renders named HTML templates.
package template

import (
	"bytes"
	"html/template"
	"io"
	"sync"

	"github.com/sectrean/servicekit/internal/errors"
)

// ErrTemplateNotFound is returned when rendering an unknown template.
var ErrTemplateNotFound = errors.New("template not found")

// Environment holds the templates available to renderers.
type Environment struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	funcs     template.FuncMap
}

// Get returns a new [Environment] with the core templates.
func Get() (*Environment, error) {
	env := &Environment{
		templates: make(map[string]*template.Template),
		funcs: template.FuncMap{
			"safe": func(s string) template.HTML { return template.HTML(s) },
		},
	}

	for name, src := range coreTemplates {
		if err := env.Add(name, src); err != nil {
			return nil, err
		}
	}
	return env, nil
}

// Add parses a template under name, replacing any template with that name.
func (e *Environment) Add(name, src string) error {
	t, err := template.New(name).Funcs(e.funcs).Parse(src)
	if err != nil {
		return errors.Wrapf(err, "parse template %s", name)
	}

	e.mu.Lock()
	e.templates[name] = t
	e.mu.Unlock()
	return nil
}

// Has returns true if a template with the name exists.
func (e *Environment) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[name]
	return ok
}

// Render executes the named template into w.
func (e *Environment) Render(w io.Writer, name string, data any) error {
	e.mu.RLock()
	t, ok := e.templates[name]
	e.mu.RUnlock()

	if !ok {
		return errors.Wrapf(ErrTemplateNotFound, "render %s", name)
	}
	return errors.Wrapf(t.Execute(w, data), "render %s", name)
}

// RenderString executes the named template and returns the output.
func (e *Environment) RenderString(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := e.Render(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var coreTemplates = map[string]string{
	"html": `<!DOCTYPE html>
<html lang="{{.Langcode}}">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>{{safe .Content}}</body>
</html>
`,
	"error": `<h1>{{.Status}} {{.Title}}</h1>
<p>{{.Message}}</p>
`,
}

// Page is the data for the "html" template.
type Page struct {
	Langcode string
	Title    string
	Content  string
}
