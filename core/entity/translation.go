package entity

import (
	"context"
	"html"
	"sync"
)

// Form is a form structure. Element properties are keyed with a leading "#".
type Form map[string]any

// Element returns the named child element, or nil.
func (f Form) Element(name string) Form {
	switch e := f[name].(type) {
	case Form:
		return e
	case map[string]any:
		return e
	default:
		return nil
	}
}

// TranslationController customizes how translations of one entity type are
// checked, presented and titled.
type TranslationController interface {
	// CheckAccess returns true if the account on ctx may perform op on the entity.
	CheckAccess(ctx context.Context, e Entity, op string) bool

	// AlterForm adds the translation elements to the entity form.
	AlterForm(ctx context.Context, form Form, e Entity)

	// FormTitle returns the HTML title of the entity translation form.
	FormTitle(ctx context.Context, e Entity) string
}

// DefaultTranslationController is used for entity types without their own controller.
type DefaultTranslationController struct{}

var _ TranslationController = (*DefaultTranslationController)(nil)

// NewDefaultTranslationController creates a [DefaultTranslationController].
func NewDefaultTranslationController() *DefaultTranslationController {
	return &DefaultTranslationController{}
}

// CheckAccess allows every operation to accounts that may translate content.
func (*DefaultTranslationController) CheckAccess(ctx context.Context, _ Entity, _ string) bool {
	return AccountFromContext(ctx).HasPermission("translate any entity")
}

// AlterForm adds a "translation" fieldset with the source language.
func (*DefaultTranslationController) AlterForm(_ context.Context, form Form, e Entity) {
	form["translation"] = Form{
		"#type":  "details",
		"#title": "Translation",
		"#tree":  true,
		"source": Form{
			"#type":          "item",
			"#title":         "Source language",
			"#markup":        html.EscapeString(e.Language()),
			"#default_value": e.Language(),
		},
	}
}

// FormTitle returns the escaped entity label.
func (*DefaultTranslationController) FormTitle(_ context.Context, e Entity) string {
	return html.EscapeString(e.Label())
}

// TranslationControllers selects the [TranslationController] for an entity type.
type TranslationControllers struct {
	fallback TranslationController

	mu          sync.RWMutex
	controllers map[string]TranslationController
}

// NewTranslationControllers creates a registry falling back to fallback.
func NewTranslationControllers(fallback TranslationController) *TranslationControllers {
	return &TranslationControllers{
		fallback:    fallback,
		controllers: make(map[string]TranslationController),
	}
}

// Register sets the controller for an entity type.
func (r *TranslationControllers) Register(entityType string, c TranslationController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[entityType] = c
}

// Get returns the controller for the entity type, or the fallback.
func (r *TranslationControllers) Get(entityType string) TranslationController {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.controllers[entityType]; ok {
		return c
	}
	return r.fallback
}
