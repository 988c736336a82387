package uow

import (
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-unitofwork/core"
	"github.com/goliatone/go-unitofwork/retry"
	"github.com/uptrace/bun"
)

type managerBuilder struct {
	runtimeConfig     core.Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	errorFactory      core.ErrorFactory
	errorMapper       core.ErrorMapper
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	persistenceClient any
	classifier        retry.Classifier
	backoff           retry.Backoff
	cache             repositorycache.CacheService
	models            []modelRegistration
}

type Option func(*managerBuilder)

func WithLogger(logger core.Logger) Option {
	return func(b *managerBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *managerBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *managerBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory core.ErrorFactory) Option {
	return func(b *managerBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper core.ErrorMapper) Option {
	return func(b *managerBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *managerBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *managerBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *managerBuilder) {
		b.persistenceClient = client
	}
}

func WithDB(db *bun.DB) Option {
	return func(b *managerBuilder) {
		b.persistenceClient = db
	}
}

func WithRetryClassifier(classifier retry.Classifier) Option {
	return func(b *managerBuilder) {
		b.classifier = classifier
	}
}

func WithRetryBackoff(backoff retry.Backoff) Option {
	return func(b *managerBuilder) {
		b.backoff = backoff
	}
}

func WithCacheService(cache repositorycache.CacheService) Option {
	return func(b *managerBuilder) {
		b.cache = cache
	}
}

func defaultManagerBuilder(runtime core.Config) managerBuilder {
	loggerProvider, logger := glog.Resolve("unitofwork", nil, nil)
	return managerBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: core.NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     core.PersistenceErrorMapper,
		configProvider:  core.NewCfgxConfigProvider(nil),
		optionsResolver: core.GoOptionsResolver{},
	}
}
