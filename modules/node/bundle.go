package node

import (
	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core"
	"github.com/sectrean/servicekit/core/entity"
	"github.com/sectrean/servicekit/internal/errors"
)

// Bundle registers the node entity type and its services.
// It must be added after [core.Bundle].
type Bundle struct{}

var _ di.Bundle = Bundle{}

// Name returns the bundle name used in errors.
func (Bundle) Name() string { return "node" }

// Build implements [di.Bundle].
func (Bundle) Build(b *di.ContainerBuilder) error {
	manager, err := b.Definition("plugin.manager.entity")
	if err != nil {
		return errors.Wrap(err, "node bundle")
	}
	manager.AddMethodCall("AddEntityType", entity.EntityType{
		ID:           EntityType,
		Label:        "Content",
		Translatable: true,
	})

	b.Register("node.types", NewTypes,
		di.WithMethodCall("Add", "article", "Article"),
		di.WithMethodCall("Add", "page", "Basic page"),
	)
	b.Register("node.translation_controller", NewTranslationController,
		di.WithArgs(di.Ref("node.types")),
		di.WithTag(core.TagTranslationController, di.Attributes{"entity_type": EntityType}),
	)
	return nil
}
