// Package core registers the core services of the kernel.
//
// Example:
//
//	b := di.NewContainerBuilder(
//		di.WithParameters(s.Parameters()),
//		di.WithBundles(core.Bundle{Logger: logger}),
//	)
//	c, err := b.Compile(ctx)
package core

import (
	"log/slog"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core/cache"
	"github.com/sectrean/servicekit/core/config"
	"github.com/sectrean/servicekit/core/database"
	"github.com/sectrean/servicekit/core/entity"
	"github.com/sectrean/servicekit/core/event"
	"github.com/sectrean/servicekit/core/eventsubscriber"
	"github.com/sectrean/servicekit/core/flood"
	"github.com/sectrean/servicekit/core/kernel"
	"github.com/sectrean/servicekit/core/keyvalue"
	"github.com/sectrean/servicekit/core/language"
	"github.com/sectrean/servicekit/core/lock"
	"github.com/sectrean/servicekit/core/negotiation"
	"github.com/sectrean/servicekit/core/password"
	"github.com/sectrean/servicekit/core/path"
	"github.com/sectrean/servicekit/core/routing"
	"github.com/sectrean/servicekit/core/serializer"
	"github.com/sectrean/servicekit/core/settings"
	"github.com/sectrean/servicekit/core/template"
	"github.com/sectrean/servicekit/core/tempstore"
	"github.com/sectrean/servicekit/core/transliteration"
	"github.com/sectrean/servicekit/core/typeddata"
)

// Tags collected by the core compiler passes.
const (
	TagEventSubscriber       = "event_subscriber"
	TagChainedMatcher        = "chained_matcher"
	TagNestedMatcher         = "nested_matcher"
	TagNormalizer            = "normalizer"
	TagEncoder               = "encoder"
	TagTranslationController = "entity.translation_controller"
)

// ParameterConfigOverrides holds configuration overrides keyed by
// configuration object name.
const ParameterConfigOverrides = "config.overrides"

const defaultTranslationControl = "entity.translation_controller.default"

// Bundle registers the core services.
type Bundle struct {
	// Logger is given to the services that log. The default is slog.Default().
	Logger *slog.Logger
}

var _ di.Bundle = Bundle{}

// Name returns the bundle name used in errors.
func (Bundle) Name() string { return "core" }

// Build implements [di.Bundle].
func (cb Bundle) Build(b *di.ContainerBuilder) error {
	if err := setDefaultParameters(b); err != nil {
		return err
	}

	logger := cb.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b.Register("logger", func() *slog.Logger { return logger })

	// Configuration storage.
	b.Register("config.cachedstorage.storage", config.NewFileStorage,
		di.WithArgs(di.Param("config.directory.active")),
	)
	b.Register("cache.factory", cache.NewFactory)
	b.Register("cache.config", nil,
		di.WithFactory(di.Ref("cache.factory"), "Get"),
		di.WithArgs("config"),
	)
	b.Register("config.storage", config.NewCachedStorage,
		di.WithArgs(di.Ref("config.cachedstorage.storage"), di.Ref("cache.config")),
	)

	// Configuration factory. The plain dispatcher is replaced by the
	// container-aware one below.
	b.Register("config.subscriber.globalconf", eventsubscriber.NewConfigGlobalOverrideSubscriber,
		di.WithArgs(di.Param(ParameterConfigOverrides)),
	)
	b.Register("dispatcher", event.NewEventDispatcher,
		di.WithMethodCall("AddSubscriber", di.Ref("config.subscriber.globalconf")),
	)
	b.Register("config.factory", config.NewFactory,
		di.WithArgs(di.Ref("config.storage"), di.Ref("dispatcher")),
	)
	b.Register("config.storage.staging", config.NewFileStorage,
		di.WithArgs(di.Param("config.directory.staging")),
	)

	// Database connections are owned and closed by the factory.
	b.Register("database.factory", database.NewFactory,
		di.WithArgs(di.Param("database.dsn.default"), di.Param("database.dsn.slave")),
	)
	b.Register("database", nil,
		di.WithFactory(di.Ref("database.factory"), "GetConnection"),
		di.WithArgs(database.RoleDefault),
		di.IgnoreCloser(),
	)

	b.Register("keyvalue", keyvalue.NewFactory, di.WithArgs(di.Ref(di.ServiceContainerID)))
	b.Register("keyvalue.database", keyvalue.NewDatabaseFactory, di.WithArgs(di.Ref("database")))

	b.Register("path.alias_manager", path.NewAliasManager,
		di.WithArgs(di.Ref("database"), di.Ref("keyvalue.database")),
	)

	b.Register("plugin.manager.entity", entity.NewManager)

	// The request scope lets services depend on the request and be rebuilt
	// for each sub-request.
	b.AddScope(di.ScopeRequest, di.ScopeContainer)
	b.Register(kernel.RequestServiceID, nil, di.Synthetic(), di.InScope(di.ScopeRequest))

	b.Register("dispatcher", event.NewContainerAwareDispatcher,
		di.WithArgs(di.Ref(di.ServiceContainerID)),
		di.WithMethodCall("SetLogger", di.Ref("logger")),
	)
	b.SetAlias("event_dispatcher", "dispatcher")
	b.Register("resolver", kernel.NewControllerResolver, di.WithArgs(di.Ref(di.ServiceContainerID)))
	b.Register("http_kernel", kernel.NewHTTPKernel,
		di.WithArgs(di.Ref("dispatcher"), di.Ref(di.ServiceContainerID), di.Ref("resolver")),
		di.WithMethodCall("SetLogger", di.Ref("logger")),
	)
	b.Register("language_manager", language.NewManager,
		di.WithArgs(
			di.Ref(kernel.RequestServiceID),
			di.Param("language.default"),
			di.Param("language.supported"),
		),
		di.InScope(di.ScopeRequest),
	)
	b.Register("database.slave", nil,
		di.WithFactory(di.Ref("database.factory"), "GetConnection"),
		di.WithArgs(database.RoleSlave),
		di.IgnoreCloser(),
	)
	b.Register("typed_data", typeddata.NewManager)
	b.Register("lock", lock.NewDatabaseBackend, di.WithArgs(di.Ref("database")))
	b.Register("user.tempstore", tempstore.NewFactory,
		di.WithArgs(di.Ref("database"), di.Ref("lock")),
	)
	b.Register("twig", template.Get)

	b.Register("entity.query", entity.NewQueryFactory, di.WithArgs(di.Ref(di.ServiceContainerID)))
	b.Register(defaultTranslationControl, entity.NewDefaultTranslationController)
	b.Register("entity.translation_controllers", entity.NewTranslationControllers,
		di.WithArgs(di.Ref(defaultTranslationControl)),
	)

	// Routing.
	b.Register("router.dumper", routing.NewMatcherDumper, di.WithArgs(di.Ref("database")))
	b.Register("router.builder", routing.NewRouteBuilder,
		di.WithArgs(di.Ref("router.dumper"), di.Ref("lock"), di.Ref("dispatcher")),
	)

	b.Register("matcher", routing.NewChainMatcher)
	b.Register("legacy_url_matcher", routing.NewLegacyURLMatcher,
		di.WithTag(TagChainedMatcher),
	)
	b.Register("nested_matcher", routing.NewNestedMatcher,
		di.WithTag(TagChainedMatcher, di.Attributes{di.PriorityAttribute: 5}),
	)

	b.Register("cache.path", nil,
		di.WithFactory(di.Ref("cache.factory"), "Get"),
		di.WithArgs("path"),
	)
	b.Register("path.alias_manager.cached", path.NewCachedAliasManager,
		di.WithArgs(di.Ref("path.alias_manager"), di.Ref("cache.path")),
	)
	b.Register("path.crud", path.NewPath,
		di.WithArgs(di.Ref("database"), di.Ref("path.alias_manager")),
	)

	// The argument is the log2 number of hashing iterations.
	b.Register("password", password.NewHashedPassword, di.WithArgs(di.Param("password.log2_count")))

	// Nested matchers are set on the nested matcher with the method named
	// by their tag.
	b.Register("path_matcher", routing.NewPathMatcher,
		di.WithArgs(di.Ref("database")),
		di.WithTag(TagNestedMatcher, di.Attributes{"method": "SetInitialMatcher"}),
	)
	b.Register("http_method_matcher", routing.NewHTTPMethodMatcher,
		di.WithTag(TagNestedMatcher, di.Attributes{"method": "AddPartialMatcher"}),
	)
	b.Register("mime_type_matcher", routing.NewMimeTypeMatcher,
		di.WithTag(TagNestedMatcher, di.Attributes{"method": "AddPartialMatcher"}),
	)
	b.Register("first_entry_final_matcher", routing.NewFirstEntryFinalMatcher,
		di.WithTag(TagNestedMatcher, di.Attributes{"method": "SetFinalMatcher"}),
	)

	registerSubscribers(b)

	b.Register("transliteration", transliteration.NewTransliteration)

	// Normalizers and encoders are set by the serialization pass.
	b.Register("serializer", serializer.NewSerializer, di.WithArgs(di.Collection{}, di.Collection{}))
	b.Register("serializer.normalizer.default", serializer.NewDefaultNormalizer, di.WithTag(TagNormalizer))
	b.Register("serializer.encoder.json", serializer.NewJSONEncoder, di.WithTag(TagEncoder))
	b.Register("serializer.encoder.yaml", serializer.NewYAMLEncoder, di.WithTag(TagEncoder))

	b.Register("flood", flood.NewDatabaseBackend, di.WithArgs(di.Ref("database")))

	b.AddCompilerPass(RegisterMatchersPass())
	b.AddCompilerPass(RegisterNestedMatchersPass())
	b.AddCompilerPass(RegisterKernelListenersPass(), di.StageAfterRemoving)
	b.AddCompilerPass(RegisterSerializationClassesPass())
	b.AddCompilerPass(RegisterTranslationControllersPass{})
	return nil
}

func registerSubscribers(b *di.ContainerBuilder) {
	subscriber := di.WithTag(TagEventSubscriber)

	b.Register("router_processor_subscriber", eventsubscriber.NewRouteProcessorSubscriber, subscriber)
	b.Register("router_listener", eventsubscriber.NewRouterListener,
		di.WithArgs(di.Ref("matcher")),
		subscriber,
	)
	b.Register("content_negotiation", negotiation.NewContentNegotiation)
	b.Register("view_subscriber", eventsubscriber.NewViewSubscriber,
		di.WithArgs(
			di.Ref("content_negotiation"),
			di.Ref("serializer"),
			di.Ref("twig"),
			di.ProxyRef("language_manager"),
		),
		subscriber,
	)
	b.Register("access_subscriber", eventsubscriber.NewAccessSubscriber, subscriber)
	b.Register("maintenance_mode_subscriber", eventsubscriber.NewMaintenanceModeSubscriber,
		di.WithArgs(di.Param("maintenance_mode")),
		subscriber,
	)
	b.Register("path_subscriber", eventsubscriber.NewPathSubscriber,
		di.WithArgs(di.Ref("path.alias_manager.cached")),
		subscriber,
	)
	b.Register("legacy_request_subscriber", eventsubscriber.NewLegacyRequestSubscriber, subscriber)
	b.Register("legacy_controller_subscriber", eventsubscriber.NewLegacyControllerSubscriber,
		di.WithArgs(di.Ref("legacy_url_matcher")),
		subscriber,
	)
	b.Register("finish_response_subscriber", eventsubscriber.NewFinishResponseSubscriber,
		di.WithArgs(di.Ref("language_manager")),
		di.InScope(di.ScopeRequest),
		subscriber,
	)
	b.Register("request_close_subscriber", eventsubscriber.NewRequestCloseSubscriber,
		di.WithArgs(di.Ref("flood")),
		subscriber,
	)
	b.Register("config_global_override_subscriber", eventsubscriber.NewConfigGlobalOverrideSubscriber,
		di.WithArgs(di.Param(ParameterConfigOverrides)),
		subscriber,
	)
	b.Register("exception_controller", eventsubscriber.NewExceptionController,
		di.WithArgs(di.Ref("content_negotiation"), di.Ref("serializer")),
		di.WithMethodCall("SetLogger", di.Ref("logger")),
	)
	b.Register("exception_listener", nil,
		di.WithFactory(di.Ref("exception_controller"), "Listener"),
		di.WithArgs(di.Ref(di.ServiceContainerID)),
		subscriber,
	)
}

// setDefaultParameters sets the settings defaults for parameters the host did not set.
func setDefaultParameters(b *di.ContainerBuilder) error {
	defaults, err := settings.Parse(map[string]string{})
	if err != nil {
		return err
	}

	params := defaults.Parameters()
	params[ParameterConfigOverrides] = map[string]any{}
	for name, value := range params {
		if !b.HasParameter(name) {
			b.SetParameter(name, value)
		}
	}
	return nil
}
