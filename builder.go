package di

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sectrean/servicekit/internal/errors"
)

const instrumentationName = "github.com/sectrean/servicekit"

// ContainerBuilder collects service definitions, parameters, scopes and
// compiler passes, then compiles them into an immutable [Container].
//
// A ContainerBuilder is not safe for concurrent use. Registration and
// compilation happen once at startup.
type ContainerBuilder struct {
	definitions map[string]*Definition
	aliases     map[string]string
	parameters  map[string]any
	scopes      map[string]string
	passes      [stageCount][]CompilerPass
	overridden  []string
	errs        errors.MultiError
	seq         int
	logger      *slog.Logger
	tracer      trace.Tracer
	frozen      bool
}

// NewContainerBuilder creates a new [ContainerBuilder] with the provided options.
//
// Available options:
//   - [WithLogger] sets the logger used for registration warnings.
//   - [WithTracerProvider] sets the tracer provider used to trace compilation.
//   - [WithParameters] sets container parameters.
//   - [WithBundles] registers the services of one or more bundles.
//
// Errors from options are reported by [ContainerBuilder.Compile].
func NewContainerBuilder(opts ...BuilderOption) *ContainerBuilder {
	b := &ContainerBuilder{
		definitions: make(map[string]*Definition),
		aliases:     make(map[string]string),
		parameters:  make(map[string]any),
		scopes:      make(map[string]string),
		logger:      slog.Default(),
		tracer:      otel.GetTracerProvider().Tracer(instrumentationName),
	}

	b.errs = b.errs.Append(b.applyOptions(opts))
	return b
}

// Register creates a [Definition] for the constructor and stores it under id.
//
// Registering an id that already exists replaces the previous definition:
// the last registration wins. The replacement is logged as a warning and
// reported by [ContainerBuilder.OverriddenIDs].
//
// Nothing about the constructor or its arguments is checked until
// [ContainerBuilder.Compile], so definitions may reference services that are
// registered later.
func (b *ContainerBuilder) Register(id string, constructor any, opts ...DefinitionOption) *Definition {
	d, err := NewDefinition(constructor, opts...)
	if err != nil {
		b.errs = b.errs.Append(errors.Wrapf(err, "register %s", id))

		// The returned definition is detached so chained calls stay safe.
		d = &Definition{constructor: constructor, scope: ScopeContainer, public: true}
		return d
	}

	b.SetDefinition(id, d)
	return d
}

// SetDefinition stores a definition under id, replacing any existing definition or alias.
func (b *ContainerBuilder) SetDefinition(id string, d *Definition) {
	if b.frozen {
		b.frozenError("set definition %s", id)
		return
	}
	if id == "" {
		b.errs = b.errs.Append(errors.Wrap(ErrInvalidDefinition, "set definition: id is empty"))
		return
	}
	if d == nil {
		b.errs = b.errs.Append(errors.Wrapf(ErrInvalidDefinition, "set definition %s: definition is nil", id))
		return
	}

	if prev, exists := b.definitions[id]; exists && prev != d {
		b.overridden = append(b.overridden, id)
		b.logger.Warn("service definition overridden",
			"id", id,
			"previous", prev.String(),
			"definition", d.String(),
		)
	}

	delete(b.aliases, id)
	b.seq++
	d.seq = b.seq
	b.definitions[id] = d
}

// Definition returns the definition registered under id, following aliases.
func (b *ContainerBuilder) Definition(id string) (*Definition, error) {
	d, ok := b.definitions[b.resolveAlias(id)]
	if !ok {
		return nil, errors.Wrapf(ErrServiceNotFound, "definition %s", id)
	}
	return d, nil
}

// HasDefinition returns true if a definition or alias exists for id.
func (b *ContainerBuilder) HasDefinition(id string) bool {
	_, ok := b.definitions[b.resolveAlias(id)]
	return ok
}

// RemoveDefinition removes the definition registered under id.
func (b *ContainerBuilder) RemoveDefinition(id string) {
	if b.frozen {
		b.frozenError("remove definition %s", id)
		return
	}
	delete(b.definitions, id)
}

// ServiceIDs returns the ids of all definitions in registration order.
func (b *ContainerBuilder) ServiceIDs() []string {
	return sortedIDs(b.definitions)
}

// OverriddenIDs returns the ids that were registered more than once, in the
// order the replacements happened.
func (b *ContainerBuilder) OverriddenIDs() []string {
	return slices.Clone(b.overridden)
}

// FindTaggedServiceIDs returns every service carrying the tag, in registration order.
func (b *ContainerBuilder) FindTaggedServiceIDs(tag string) []TaggedService {
	var svcs []TaggedService
	for _, id := range b.ServiceIDs() {
		d := b.definitions[id]
		for _, attrs := range d.Tags(tag) {
			svcs = append(svcs, TaggedService{ID: id, Attributes: attrs, seq: d.seq})
		}
	}
	return svcs
}

// SetAlias makes alias resolve to the service with the given id.
func (b *ContainerBuilder) SetAlias(alias, id string) {
	switch {
	case b.frozen:
		b.frozenError("set alias %s", alias)
	case alias == "" || id == "":
		b.errs = b.errs.Append(errors.Wrapf(ErrInvalidDefinition, "set alias %q: alias and id are required", alias))
	case alias == id:
		b.errs = b.errs.Append(errors.Wrapf(ErrInvalidDefinition, "set alias %s: aliased to itself", alias))
	default:
		delete(b.definitions, alias)
		b.aliases[alias] = id
	}
}

// Alias returns the id an alias points to.
func (b *ContainerBuilder) Alias(alias string) (string, bool) {
	id, ok := b.aliases[alias]
	return id, ok
}

func (b *ContainerBuilder) resolveAlias(id string) string {
	return resolveAlias(b.aliases, id)
}

// SetParameter sets a container parameter.
func (b *ContainerBuilder) SetParameter(name string, value any) {
	if b.frozen {
		b.frozenError("set parameter %s", name)
		return
	}
	b.parameters[name] = value
}

// Parameter returns the value of a container parameter.
func (b *ContainerBuilder) Parameter(name string) (any, error) {
	v, ok := b.parameters[name]
	if !ok {
		return nil, errors.Wrapf(ErrParameterNotFound, "parameter %s", name)
	}
	return v, nil
}

// HasParameter returns true if the parameter is set.
func (b *ContainerBuilder) HasParameter(name string) bool {
	_, ok := b.parameters[name]
	return ok
}

// AddScope registers a named scope whose instances live inside parent.
//
// The parent must be [ScopeContainer] or a scope added earlier.
func (b *ContainerBuilder) AddScope(name, parent string) {
	switch {
	case b.frozen:
		b.frozenError("add scope %s", name)
	case name == "" || name == ScopeContainer || name == ScopePrototype:
		b.errs = b.errs.Append(errors.Errorf("add scope %q: reserved or empty scope name", name))
	case parent != ScopeContainer && b.scopes[parent] == "":
		b.errs = b.errs.Append(errors.Errorf("add scope %s: parent scope %q not registered", name, parent))
	default:
		b.scopes[name] = parent
	}
}

// AddCompilerPass adds a pass to run during [ContainerBuilder.Compile].
//
// The pass runs in [StageBeforeOptimization] unless another stage is given.
// Passes within a stage run in the order they were added.
func (b *ContainerBuilder) AddCompilerPass(p CompilerPass, stage ...PassStage) {
	s := StageBeforeOptimization
	if len(stage) > 0 {
		s = stage[0]
	}

	switch {
	case b.frozen:
		b.frozenError("add compiler pass")
	case p == nil:
		b.errs = b.errs.Append(errors.New("add compiler pass: pass is nil"))
	case s < 0 || s >= stageCount:
		b.errs = b.errs.Append(errors.Errorf("add compiler pass %s: unknown stage %d", passName(p), s))
	default:
		b.passes[s] = append(b.passes[s], p)
	}
}

// AddBundles calls Build on each bundle in order.
func (b *ContainerBuilder) AddBundles(bundles ...Bundle) error {
	var errs errors.MultiError
	for _, bundle := range bundles {
		if bundle == nil {
			errs = errs.Append(errors.New("add bundle: bundle is nil"))
			continue
		}
		errs = errs.Append(errors.Wrapf(bundle.Build(b), "bundle %s", bundleName(bundle)))
	}
	return errs.Join()
}

// frozenError records and logs a change made to a compiled builder.
func (b *ContainerBuilder) frozenError(format string, args ...any) {
	err := errors.Wrapf(ErrFrozen, format, args...)
	b.logger.Warn("container builder change ignored", "error", err)
	b.errs = b.errs.Append(err)
}

// Err returns the registration errors collected so far, including changes
// ignored because the builder is frozen.
func (b *ContainerBuilder) Err() error {
	return b.errs.Join()
}

// Compile runs every compiler pass once, in stage order, and returns the
// resulting [Container].
//
// Compile fails with every registration error collected so far, or with the
// errors of the first stage whose passes fail. After Compile returns, the
// builder is frozen and cannot be compiled again.
func (b *ContainerBuilder) Compile(ctx context.Context) (*Container, error) {
	ctx, span := b.tracer.Start(ctx, "di.ContainerBuilder.Compile")
	defer span.End()

	if b.frozen {
		return nil, errors.Wrap(ErrFrozen, "di.ContainerBuilder.Compile")
	}
	if err := b.errs.Join(); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "di.ContainerBuilder.Compile")
	}

	for stage := PassStage(0); stage < stageCount; stage++ {
		for _, p := range b.stagePasses(stage) {
			if err := b.runPass(ctx, stage, p); err != nil {
				span.RecordError(err)
				return nil, errors.Wrap(err, "di.ContainerBuilder.Compile")
			}
		}

		// Options and pass helpers may have recorded errors while the stage ran.
		if err := b.errs.Join(); err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, "di.ContainerBuilder.Compile")
		}
	}

	b.frozen = true
	b.logger.Debug("service container compiled",
		"services", len(b.definitions),
		"aliases", len(b.aliases),
	)

	return newContainer(b.snapshot(), b.logger), nil
}

func (b *ContainerBuilder) runPass(ctx context.Context, stage PassStage, p CompilerPass) error {
	_, span := b.tracer.Start(ctx, "di.CompilerPass",
		trace.WithAttributes(passAttributes(stage, p)...),
	)
	defer span.End()

	err := p.Process(b)
	if err != nil {
		span.RecordError(err)
		return errors.Wrapf(err, "compiler pass %s", passName(p))
	}
	return nil
}

// snapshot copies the definition graph so the container never observes later
// changes made through retained *Definition values.
func (b *ContainerBuilder) snapshot() *graph {
	g := &graph{
		definitions: make(map[string]*Definition, len(b.definitions)),
		aliases:     maps.Clone(b.aliases),
		parameters:  maps.Clone(b.parameters),
		scopes:      maps.Clone(b.scopes),
	}
	for id, d := range b.definitions {
		g.definitions[id] = d.clone()
	}
	g.order = sortedIDs(g.definitions)
	return g
}

func (d *Definition) clone() *Definition {
	c := *d
	c.args = slices.Clone(d.args)
	c.tags = slices.Clone(d.tags)
	c.calls = make([]MethodCall, len(d.calls))
	for i, call := range d.calls {
		c.calls[i] = MethodCall{Method: call.Method, Args: slices.Clone(call.Args)}
	}
	if d.factory != nil {
		f := *d.factory
		c.factory = &f
	}
	return &c
}

func sortedIDs(defs map[string]*Definition) []string {
	ids := slices.Collect(maps.Keys(defs))
	slices.SortFunc(ids, func(a, b string) int {
		return defs[a].seq - defs[b].seq
	})
	return ids
}

func resolveAlias(aliases map[string]string, id string) string {
	// Alias loops are reported by the reference check.
	for range len(aliases) + 1 {
		target, ok := aliases[id]
		if !ok {
			return id
		}
		id = target
	}
	return id
}
