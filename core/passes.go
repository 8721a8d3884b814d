package core

import (
	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/internal/errors"
)

// RegisterMatchersPass adds the chained_matcher services to the "matcher"
// chain with the priority of their tag.
func RegisterMatchersPass() di.CompilerPass {
	return &di.TaggedMethodCallPass{
		Tag:        TagChainedMatcher,
		ConsumerID: "matcher",
		Method:     "Add",
		Args: func(svc di.TaggedService) []any {
			return []any{di.Ref(svc.ID), svc.Attributes.Priority()}
		},
	}
}

// RegisterNestedMatchersPass sets the nested_matcher services on the
// "nested_matcher" service with the method named by their tag.
func RegisterNestedMatchersPass() di.CompilerPass {
	return &di.TaggedMethodCallPass{
		Tag:             TagNestedMatcher,
		ConsumerID:      "nested_matcher",
		Method:          "AddPartialMatcher",
		MethodAttribute: "method",
	}
}

// RegisterKernelListenersPass registers the event_subscriber services on
// "dispatcher" by id, so they are resolved when an event is dispatched.
//
// It runs after unused services are removed.
func RegisterKernelListenersPass() di.CompilerPass {
	return &di.TaggedMethodCallPass{
		Tag:        TagEventSubscriber,
		ConsumerID: "dispatcher",
		Method:     "AddSubscriberService",
		Args: func(svc di.TaggedService) []any {
			return []any{svc.ID}
		},
	}
}

// RegisterSerializationClassesPass sets the normalizer and encoder services
// as the arguments of "serializer".
func RegisterSerializationClassesPass() di.CompilerPass {
	normalizers := &di.TaggedArgumentPass{Tag: TagNormalizer, ConsumerID: "serializer", Index: 0}
	encoders := &di.TaggedArgumentPass{Tag: TagEncoder, ConsumerID: "serializer", Index: 1}

	return di.PassFunc(func(b *di.ContainerBuilder) error {
		if err := normalizers.Process(b); err != nil {
			return err
		}
		return encoders.Process(b)
	})
}

// RegisterTranslationControllersPass registers the
// entity.translation_controller services for the entity type named by the
// entity_type attribute of their tag.
type RegisterTranslationControllersPass struct{}

var _ di.CompilerPass = RegisterTranslationControllersPass{}

// Name returns a name for tracing and errors.
func (RegisterTranslationControllersPass) Name() string { return "register_translation_controllers" }

// Process implements [di.CompilerPass].
func (RegisterTranslationControllersPass) Process(b *di.ContainerBuilder) error {
	if !b.HasDefinition("entity.translation_controllers") {
		return nil
	}
	registry, err := b.Definition("entity.translation_controllers")
	if err != nil {
		return err
	}

	var errs errors.MultiError
	for _, svc := range di.SortByPriority(b.FindTaggedServiceIDs(TagTranslationController)) {
		entityType := svc.Attributes.String("entity_type", "")
		if entityType == "" {
			errs = errs.Append(errors.Wrapf(di.ErrInvalidDefinition,
				"service %s: tag %s has no entity_type", svc.ID, TagTranslationController))
			continue
		}
		registry.AddMethodCall("Register", entityType, di.Ref(svc.ID))
	}
	return errs.Join()
}
