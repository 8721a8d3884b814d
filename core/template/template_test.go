package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit/core/template"
)

func Test_Environment(t *testing.T) {
	env, err := template.Get()
	require.NoError(t, err)

	t.Run("core page", func(t *testing.T) {
		out, err := env.RenderString("html", template.Page{
			Langcode: "en",
			Title:    "A & B",
			Content:  "<p>Body</p>",
		})
		require.NoError(t, err)

		assert.Contains(t, out, `<html lang="en">`)
		assert.Contains(t, out, "<title>A &amp; B</title>")
		assert.Contains(t, out, "<body><p>Body</p></body>")
	})

	t.Run("add", func(t *testing.T) {
		require.NoError(t, env.Add("node", `<article>{{.}}</article>`))
		assert.True(t, env.Has("node"))

		out, err := env.RenderString("node", "<b>")
		require.NoError(t, err)
		assert.Equal(t, "<article>&lt;b&gt;</article>", out)
	})

	t.Run("parse error", func(t *testing.T) {
		assert.Error(t, env.Add("broken", "{{.Title"))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := env.RenderString("missing", nil)
		assert.ErrorIs(t, err, template.ErrTemplateNotFound)
	})
}
