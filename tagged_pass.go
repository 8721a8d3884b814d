package di

import (
	"fmt"

	"github.com/sectrean/servicekit/internal/errors"
)

// TaggedMethodCallPass adds a method call on a consumer service for every
// service carrying a tag, ordered by priority.
//
// Example:
//
//	b.AddCompilerPass(&di.TaggedMethodCallPass{
//		Tag:             "nested_matcher",
//		ConsumerID:      "nested_matcher",
//		Method:          "AddPartialMatcher",
//		MethodAttribute: "method",
//	})
type TaggedMethodCallPass struct {
	// Tag is the tag to collect.
	Tag string

	// ConsumerID is the service the method calls are added to.
	// The pass does nothing if the consumer is not registered.
	ConsumerID string

	// Method is the method called on the consumer.
	Method string

	// MethodAttribute, if set, names a tag attribute that overrides Method.
	MethodAttribute string

	// Args builds the call arguments for a tagged service.
	// The default passes a reference to the tagged service.
	Args func(svc TaggedService) []any
}

var _ CompilerPass = (*TaggedMethodCallPass)(nil)

// Name returns a name for tracing and errors.
func (p *TaggedMethodCallPass) Name() string {
	return fmt.Sprintf("tagged_method_call(%s -> %s)", p.Tag, p.ConsumerID)
}

// Process implements [CompilerPass].
func (p *TaggedMethodCallPass) Process(b *ContainerBuilder) error {
	if !b.HasDefinition(p.ConsumerID) {
		return nil
	}
	consumer, err := b.Definition(p.ConsumerID)
	if err != nil {
		return err
	}

	for _, svc := range SortByPriority(b.FindTaggedServiceIDs(p.Tag)) {
		method := p.Method
		if p.MethodAttribute != "" {
			method = svc.Attributes.String(p.MethodAttribute, method)
		}
		if method == "" {
			return errors.Errorf("service %s: no method for tag %s", svc.ID, p.Tag)
		}

		args := []any{Ref(svc.ID)}
		if p.Args != nil {
			args = p.Args(svc)
		}
		consumer.AddMethodCall(method, args...)
	}

	return nil
}

// TaggedArgumentPass sets an argument of a consumer service to the
// [Collection] of services carrying a tag, ordered by priority.
//
// With no tagged services the argument is an empty collection.
type TaggedArgumentPass struct {
	Tag        string
	ConsumerID string
	Index      int
}

var _ CompilerPass = (*TaggedArgumentPass)(nil)

// Name returns a name for tracing and errors.
func (p *TaggedArgumentPass) Name() string {
	return fmt.Sprintf("tagged_argument(%s -> %s[%d])", p.Tag, p.ConsumerID, p.Index)
}

// Process implements [CompilerPass].
func (p *TaggedArgumentPass) Process(b *ContainerBuilder) error {
	if !b.HasDefinition(p.ConsumerID) {
		return nil
	}
	consumer, err := b.Definition(p.ConsumerID)
	if err != nil {
		return err
	}

	svcs := SortByPriority(b.FindTaggedServiceIDs(p.Tag))
	refs := make(Collection, len(svcs))
	for i, svc := range svcs {
		refs[i] = Ref(svc.ID)
	}

	if p.Index == len(consumer.Arguments()) {
		consumer.AddArgument(refs)
		return nil
	}
	return consumer.ReplaceArgument(p.Index, refs)
}
