package di

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// PassStage controls when a [CompilerPass] runs during [ContainerBuilder.Compile].
type PassStage int

// Compiler pass stages, in the order they run.
const (
	// StageBeforeOptimization is the default stage. Tag collection passes run here.
	StageBeforeOptimization PassStage = iota

	// StageOptimization runs after decorators are applied and before
	// parameters are replaced and the definition graph is checked.
	StageOptimization

	// StageBeforeRemoving runs on the checked graph, before unused private
	// definitions are removed.
	StageBeforeRemoving

	// StageRemoving removes unused private definitions.
	StageRemoving

	// StageAfterRemoving runs on the final set of definitions. Passes that
	// should only see live services, such as subscriber registration, run here.
	StageAfterRemoving

	stageCount
)

func (s PassStage) String() string {
	switch s {
	case StageBeforeOptimization:
		return "before_optimization"
	case StageOptimization:
		return "optimization"
	case StageBeforeRemoving:
		return "before_removing"
	case StageRemoving:
		return "removing"
	case StageAfterRemoving:
		return "after_removing"
	default:
		return fmt.Sprintf("PassStage(%d)", int(s))
	}
}

// CompilerPass transforms service definitions during [ContainerBuilder.Compile].
//
// Passes run exactly once per compile, in stage order, then in the order
// they were added. A pass operates on definitions, never on live services.
type CompilerPass interface {
	Process(b *ContainerBuilder) error
}

// PassFunc adapts a function to the [CompilerPass] interface.
type PassFunc func(b *ContainerBuilder) error

// Process calls f(b).
func (f PassFunc) Process(b *ContainerBuilder) error {
	return f(b)
}

// stagePasses returns the passes to run for the stage, including the built-in ones.
func (b *ContainerBuilder) stagePasses(stage PassStage) []CompilerPass {
	added := b.passes[stage]

	switch stage {
	case StageOptimization:
		passes := []CompilerPass{decoratorPass{}}
		passes = append(passes, added...)
		return append(passes,
			parameterPass{},
			definitionCheckPass{},
			referenceCheckPass{},
			cycleCheckPass{},
			scopeCheckPass{},
		)

	case StageRemoving:
		return append(append([]CompilerPass(nil), added...), removeUnusedPass{})

	case StageAfterRemoving:
		// Passes in this stage may add references to removed services.
		return append(append([]CompilerPass(nil), added...), referenceCheckPass{})

	default:
		return added
	}
}

func passName(p CompilerPass) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}

func passAttributes(stage PassStage, p CompilerPass) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("di.pass.name", passName(p)),
		attribute.String("di.pass.stage", stage.String()),
	}
}
