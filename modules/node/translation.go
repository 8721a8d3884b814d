package node

import (
	"context"
	"html"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/sectrean/servicekit/core/entity"
)

const formTitle = "<em>Edit %s</em> %s"

var titles = func() *catalog.Builder {
	c := catalog.NewBuilder(catalog.Fallback(language.English))
	_ = c.SetString(language.English, formTitle, formTitle)
	_ = c.SetString(language.German, formTitle, "<em>%s bearbeiten</em> %s")
	_ = c.SetString(language.French, formTitle, "<em>Modifier %s</em> %s")
	return c
}()

// TranslationController is the [entity.TranslationController] of nodes.
type TranslationController struct {
	*entity.DefaultTranslationController
	types *Types
}

var _ entity.TranslationController = (*TranslationController)(nil)

// NewTranslationController creates a [TranslationController].
func NewTranslationController(types *Types) *TranslationController {
	return &TranslationController{
		DefaultTranslationController: entity.NewDefaultTranslationController(),
		types:                        types,
	}
}

// CheckAccess applies the node access rules.
func (c *TranslationController) CheckAccess(ctx context.Context, e entity.Entity, op string) bool {
	n, ok := e.(*Node)
	if !ok {
		return false
	}
	return Access(ctx, op, n)
}

// AlterForm moves the translation fieldset to the additional settings tabs.
// Properties already set on the fieldset are kept.
func (c *TranslationController) AlterForm(ctx context.Context, form entity.Form, e entity.Entity) {
	c.DefaultTranslationController.AlterForm(ctx, form, e)

	t := form.Element("translation")
	if t == nil {
		return
	}
	defaults := entity.Form{
		"#group":  "additional_settings",
		"#weight": 100,
		"#attributes": entity.Form{
			"class": []string{"node-translation-options"},
		},
	}
	for k, v := range defaults {
		if _, ok := t[k]; !ok {
			t[k] = v
		}
	}
}

// FormTitle returns the title of the node translation form in the
// language of the node.
func (c *TranslationController) FormTitle(_ context.Context, e entity.Entity) string {
	typeName := e.Bundle()
	if c.types != nil {
		typeName = c.types.Label(typeName)
	}

	tag, err := language.Parse(e.Language())
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag, message.Catalog(titles))
	return p.Sprintf(formTitle, html.EscapeString(typeName), html.EscapeString(e.Label()))
}
