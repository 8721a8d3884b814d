package entity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core/entity"
	"github.com/sectrean/servicekit/internal/testutils"
)

type article struct {
	id, label, lang string
	fields          map[string]any
}

func (a article) ID() string            { return a.id }
func (article) EntityType() string      { return "article" }
func (article) Bundle() string          { return "article" }
func (a article) Label() string         { return a.label }
func (a article) Language() string      { return a.lang }
func (a article) Field(name string) any { return a.fields[name] }

func Test_Manager(t *testing.T) {
	m := entity.NewManager()
	m.AddEntityType(entity.EntityType{ID: "node", Label: "Content", Translatable: true})
	m.AddEntityType(entity.EntityType{ID: "user", Label: "User"})
	m.AddEntityType(entity.EntityType{ID: "node", Label: "Node", Translatable: true})

	def, err := m.Definition("node")
	require.NoError(t, err)
	assert.Equal(t, "Node", def.Label)

	defs := m.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "node", defs[0].ID)
	assert.Equal(t, "user", defs[1].ID)

	_, err = m.Definition("comment")
	testutils.LogError(t, err)
	assert.ErrorIs(t, err, entity.ErrUnknownEntityType)
	assert.False(t, m.HasDefinition("comment"))
}

func Test_DefaultTranslationController(t *testing.T) {
	ctx := context.Background()
	c := entity.NewDefaultTranslationController()
	a := article{id: "1", label: "Tom & Jerry", lang: "en"}

	t.Run("access", func(t *testing.T) {
		assert.False(t, c.CheckAccess(ctx, a, "update"))

		editor := entity.WithAccount(ctx, entity.Account{UID: "5", Permissions: []string{"translate any entity"}})
		assert.True(t, c.CheckAccess(editor, a, "update"))

		admin := entity.WithAccount(ctx, entity.Account{UID: "1"})
		assert.True(t, c.CheckAccess(admin, a, "delete"))
	})

	t.Run("form", func(t *testing.T) {
		form := entity.Form{}
		c.AlterForm(ctx, form, a)

		el := form.Element("translation")
		require.NotNil(t, el)
		assert.Equal(t, "details", el["#type"])
		assert.Equal(t, "en", el.Element("source")["#default_value"])
	})

	t.Run("title", func(t *testing.T) {
		assert.Equal(t, "Tom &amp; Jerry", c.FormTitle(ctx, a))
	})
}

type stubController struct {
	entity.DefaultTranslationController
}

func Test_TranslationControllers(t *testing.T) {
	fallback := entity.NewDefaultTranslationController()
	r := entity.NewTranslationControllers(fallback)

	node := &stubController{}
	r.Register("node", node)

	assert.Same(t, node, r.Get("node"))
	assert.Same(t, fallback, r.Get("user"))
}

func Test_Query(t *testing.T) {
	ctx := context.Background()

	b := di.NewContainerBuilder()
	b.Register("plugin.manager.entity", entity.NewManager,
		di.WithMethodCall("AddEntityType", entity.EntityType{ID: "article", Label: "Article"}),
	)
	b.Register("entity.query", entity.NewQueryFactory, di.WithArgs(di.Ref(di.ServiceContainerID)))
	c, err := b.Compile(ctx)
	require.NoError(t, err)

	qf, err := di.Get[*entity.QueryFactory](ctx, c, "entity.query")
	require.NoError(t, err)

	entities := []entity.Entity{
		article{id: "1", fields: map[string]any{"status": 1, "title": "Banana"}},
		article{id: "2", fields: map[string]any{"status": 0, "title": "Apple"}},
		article{id: "3", fields: map[string]any{"status": 1, "title": "Cherry"}},
		article{id: "4", fields: map[string]any{"status": 1, "title": "Apricot"}},
	}

	t.Run("and", func(t *testing.T) {
		q, err := qf.Get(ctx, "article", "and")
		require.NoError(t, err)

		ids := q.Condition("status", 1, "").Condition("title", "A", "contains").Sort("title").Execute(entities)
		assert.Equal(t, []string{"4"}, ids)
	})

	t.Run("or", func(t *testing.T) {
		q, err := qf.Get(ctx, "article", "or")
		require.NoError(t, err)

		ids := q.Condition("status", 0, "=").Condition("title", "Cherry", "").Sort("title").Execute(entities)
		assert.Equal(t, []string{"2", "3"}, ids)
	})

	t.Run("in and range", func(t *testing.T) {
		q, err := qf.Get(ctx, "article", "")
		require.NoError(t, err)

		ids := q.Condition("title", []any{"Apple", "Banana", "Cherry"}, "IN").
			Sort("title").
			Range(1, 1).
			Execute(entities)
		assert.Equal(t, []string{"1"}, ids)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := qf.Get(ctx, "comment", "")
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, entity.ErrUnknownEntityType)
	})
}
