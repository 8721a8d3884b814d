package di

import (
	"cmp"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/trace"

	"github.com/sectrean/servicekit/internal/errors"
)

// BuilderOption is used to configure a new [ContainerBuilder] when calling [NewContainerBuilder].
type BuilderOption interface {
	order() optionOrder
	applyBuilder(*ContainerBuilder) error
}

type optionOrder int8

const (
	orderConfig optionOrder = iota
	orderBundle
)

func (b *ContainerBuilder) applyOptions(opts []BuilderOption) error {
	// Bundles register services and may log, so configuration options go first.
	// Use stable sort because the registration order of bundles matters.
	opts = slices.Clone(opts)
	slices.SortStableFunc(opts, func(a, b BuilderOption) int {
		return cmp.Compare(a.order(), b.order())
	})

	return applyOptions(opts, func(o BuilderOption) error {
		return o.applyBuilder(b)
	})
}

type builderOption struct {
	fn  func(*ContainerBuilder) error
	ord optionOrder
}

func newBuilderOption(order optionOrder, fn func(*ContainerBuilder) error) BuilderOption {
	return builderOption{fn: fn, ord: order}
}

func (o builderOption) order() optionOrder {
	return o.ord
}

func (o builderOption) applyBuilder(b *ContainerBuilder) error {
	return o.fn(b)
}

// WithLogger sets the logger used by the builder and the compiled container.
//
// The default is [slog.Default].
func WithLogger(logger *slog.Logger) BuilderOption {
	return newBuilderOption(orderConfig, func(b *ContainerBuilder) error {
		if logger == nil {
			return errors.New("with logger: logger is nil")
		}
		b.logger = logger
		return nil
	})
}

// WithTracerProvider sets the tracer provider used to trace compilation.
//
// The default is the global provider from go.opentelemetry.io/otel.
func WithTracerProvider(tp trace.TracerProvider) BuilderOption {
	return newBuilderOption(orderConfig, func(b *ContainerBuilder) error {
		if tp == nil {
			return errors.New("with tracer provider: provider is nil")
		}
		b.tracer = tp.Tracer(instrumentationName)
		return nil
	})
}

// WithParameters sets container parameters.
//
// Parameters replace ambient lookups such as configuration directories:
// definitions receive them through [Param] arguments.
func WithParameters(params map[string]any) BuilderOption {
	return newBuilderOption(orderConfig, func(b *ContainerBuilder) error {
		for name, v := range params {
			b.SetParameter(name, v)
		}
		return nil
	})
}

// WithBundles registers the services of each bundle, in order.
func WithBundles(bundles ...Bundle) BuilderOption {
	return newBuilderOption(orderBundle, func(b *ContainerBuilder) error {
		return b.AddBundles(bundles...)
	})
}
