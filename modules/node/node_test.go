package node_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core"
	"github.com/sectrean/servicekit/core/entity"
	"github.com/sectrean/servicekit/internal/testutils"
	"github.com/sectrean/servicekit/modules/node"
)

func Test_Access(t *testing.T) {
	published := &node.Node{NID: "1", Type: "article", UID: "5", Published: true}
	draft := &node.Node{NID: "2", Type: "article", UID: "5"}

	author := entity.Account{UID: "5", Permissions: []string{
		node.PermissionAccessContent,
		node.PermissionViewOwnUnpublished,
		"edit own article content",
	}}
	editor := entity.Account{UID: "6", Permissions: []string{
		node.PermissionAccessContent,
		node.TypePermission(node.OpUpdate, "article"),
		node.TypePermission(node.OpCreate, "article"),
	}}
	reader := entity.Account{UID: "7", Permissions: []string{node.PermissionAccessContent}}
	bypass := entity.Account{UID: "8", Permissions: []string{node.PermissionBypass}}

	tests := []struct {
		name    string
		account entity.Account
		op      string
		node    *node.Node
		want    bool
	}{
		{"anonymous view", entity.Anonymous, node.OpView, published, false},
		{"reader view published", reader, node.OpView, published, true},
		{"reader view draft", reader, node.OpView, draft, false},
		{"author view own draft", author, node.OpView, draft, true},
		{"author edit own", author, node.OpUpdate, draft, true},
		{"author delete own", author, node.OpDelete, draft, false},
		{"editor edit any", editor, node.OpUpdate, draft, true},
		{"editor create", editor, node.OpCreate, &node.Node{Type: "article"}, true},
		{"editor create page", editor, node.OpCreate, &node.Node{Type: "page"}, false},
		{"reader edit", reader, node.OpUpdate, published, false},
		{"bypass delete", bypass, node.OpDelete, draft, true},
		{"unknown op", reader, "publish", published, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := entity.WithAccount(context.Background(), tt.account)
			assert.Equal(t, tt.want, node.Access(ctx, tt.op, tt.node))
		})
	}
}

func Test_TranslationController(t *testing.T) {
	ctx := context.Background()

	types := node.NewTypes()
	types.Add("article", "Article")
	c := node.NewTranslationController(types)

	n := &node.Node{NID: "1", Type: "article", Title: "Tom & Jerry", Langcode: "en", Published: true}

	t.Run("check access", func(t *testing.T) {
		assert.False(t, c.CheckAccess(ctx, n, node.OpUpdate))

		ctx := entity.WithAccount(ctx, entity.Account{UID: "2", Permissions: []string{
			node.PermissionAccessContent,
			node.TypePermission(node.OpUpdate, "article"),
		}})
		assert.True(t, c.CheckAccess(ctx, n, node.OpUpdate))
	})

	t.Run("alter form", func(t *testing.T) {
		form := entity.Form{}
		c.AlterForm(ctx, form, n)

		tr := form.Element("translation")
		require.NotNil(t, tr)
		assert.Equal(t, "details", tr["#type"])
		assert.Equal(t, "additional_settings", tr["#group"])
		assert.Equal(t, 100, tr["#weight"])
		assert.Equal(t, []string{"node-translation-options"}, tr.Element("#attributes")["class"])
		assert.Equal(t, "en", tr.Element("source")["#default_value"])
	})

	t.Run("form title", func(t *testing.T) {
		assert.Equal(t, "<em>Edit Article</em> Tom &amp; Jerry", c.FormTitle(ctx, n))

		de := *n
		de.Langcode = "de"
		assert.Equal(t, "<em>Article bearbeiten</em> Tom &amp; Jerry", c.FormTitle(ctx, &de))
	})

	t.Run("unknown type", func(t *testing.T) {
		p := &node.Node{Type: "<b>poll</b>", Title: "Vote", Langcode: "und"}
		assert.Equal(t, "<em>Edit &lt;b&gt;poll&lt;/b&gt;</em> Vote", c.FormTitle(ctx, p))
	})
}

func Test_Bundle(t *testing.T) {
	ctx := context.Background()

	b := di.NewContainerBuilder(
		di.WithParameters(map[string]any{
			"database.dsn.default": filepath.Join(t.TempDir(), "test.db"),
		}),
		di.WithBundles(core.Bundle{}, node.Bundle{}),
	)
	c, err := b.Compile(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	controllers, err := di.Get[*entity.TranslationControllers](ctx, c, "entity.translation_controllers")
	require.NoError(t, err)
	assert.IsType(t, &node.TranslationController{}, controllers.Get(node.EntityType))
	assert.IsType(t, &entity.DefaultTranslationController{}, controllers.Get("user"))

	manager, err := di.Get[*entity.Manager](ctx, c, "plugin.manager.entity")
	require.NoError(t, err)
	def, err := manager.Definition(node.EntityType)
	require.NoError(t, err)
	assert.True(t, def.Translatable)

	t.Run("requires core", func(t *testing.T) {
		err := di.NewContainerBuilder().AddBundles(node.Bundle{})
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, di.ErrServiceNotFound)
	})
}
