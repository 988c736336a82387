package uow

import (
	"context"
	"fmt"
	"reflect"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-unitofwork/core"
	"github.com/goliatone/go-unitofwork/retry"
	"github.com/uptrace/bun"
)

// Manager holds the resolved configuration, the database handle, and the
// model bindings shared by every unit-of-work scope. Build one per process
// with New and open a scope per logical request with Scope.
type Manager struct {
	config            core.Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	errorFactory      core.ErrorFactory
	errorMapper       core.ErrorMapper
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	persistenceClient any
	db                *bun.DB
	classifier        retry.Classifier
	policy            *retry.Policy
	evaluator         Evaluator
	cache             repositorycache.CacheService
	bindings          map[reflect.Type]*binding
}

// ManagerDependencies exposes the resolved collaborators for composition and
// tests.
type ManagerDependencies struct {
	Logger            core.Logger
	LoggerProvider    core.LoggerProvider
	MetricsRecorder   core.MetricsRecorder
	ErrorFactory      core.ErrorFactory
	ErrorMapper       core.ErrorMapper
	ConfigProvider    core.ConfigProvider
	OptionsResolver   core.OptionsResolver
	PersistenceClient any
	DB                *bun.DB
	Classifier        retry.Classifier
	RetryPolicy       *retry.Policy
	Cache             repositorycache.CacheService
}

func New(cfg core.Config, opts ...Option) (*Manager, error) {
	builder := defaultManagerBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("unitofwork", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("unitofwork"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = core.NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = core.PersistenceErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	db, err := resolveBunDB(builder.persistenceClient)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	classifier := builder.classifier
	if classifier == nil {
		classifier = retry.ForDialect(db.Dialect().Name())
	}
	backoff := builder.backoff
	if backoff == nil {
		backoff = retry.ExponentialBackoff{
			Base: finalConfig.Retry.BaseDelay(),
			Max:  finalConfig.Retry.MaxDelay(),
		}
	}
	policy := retry.NewPolicy(classifier)
	policy.MaxRetries = finalConfig.Retry.MaxRetries
	policy.Backoff = backoff
	policy.Logger = logger

	bindings := make(map[reflect.Type]*binding, len(builder.models))
	for _, registration := range builder.models {
		bound, buildErr := registration.build(db)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		if _, exists := bindings[bound.modelType]; exists {
			return nil, mapBuildError(
				builder.errorMapper,
				fmt.Errorf("uow: model %s is already registered", bound.modelType),
			)
		}
		bindings[bound.modelType] = bound
	}

	return &Manager{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		persistenceClient: builder.persistenceClient,
		db:                db,
		classifier:        classifier,
		policy:            policy,
		evaluator:         Evaluator{AllowUnorderedPaging: finalConfig.Evaluator.AllowUnorderedPaging},
		cache:             builder.cache,
		bindings:          bindings,
	}, nil
}

func Setup(cfg core.Config, opts ...Option) (*Manager, error) {
	return New(cfg, opts...)
}

// Scope opens a unit of work bound to one dedicated database session. The
// caller owns the scope and must Close it.
func (m *Manager) Scope(ctx context.Context) (*UnitOfWork, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("uow: manager is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	conn, err := m.db.Conn(ctx)
	if err != nil {
		m.observeOperation(ctx, start, "open_scope", err, nil)
		return nil, m.mapError(err)
	}
	m.logDebug(ctx, "scope opened", nil)
	return &UnitOfWork{
		manager: m,
		conn:    conn,
		tracker: newChangeTracker(),
	}, nil
}

func (m *Manager) Config() core.Config {
	if m == nil {
		return core.Config{}
	}
	return m.config
}

// DB returns the resolved root handle. Scopes hold their own dedicated
// connections; this handle is for composition, not for unit-of-work reads.
func (m *Manager) DB() *bun.DB {
	if m == nil {
		return nil
	}
	return m.db
}

func (m *Manager) Dependencies() ManagerDependencies {
	if m == nil {
		return ManagerDependencies{}
	}
	return ManagerDependencies{
		Logger:            m.logger,
		LoggerProvider:    m.loggerProvider,
		MetricsRecorder:   m.metricsRecorder,
		ErrorFactory:      m.errorFactory,
		ErrorMapper:       m.errorMapper,
		ConfigProvider:    m.configProvider,
		OptionsResolver:   m.optionsResolver,
		PersistenceClient: m.persistenceClient,
		DB:                m.db,
		Classifier:        m.classifier,
		RetryPolicy:       m.policy,
		Cache:             m.cache,
	}
}

// MapError classifies a raw store failure into the persistence error
// envelope. Repository and save paths surface raw errors unchanged; callers
// that need categories apply this at their boundary.
func (m *Manager) MapError(err error) error {
	return m.mapError(err)
}

func (m *Manager) mapError(err error) error {
	if err == nil {
		return nil
	}
	if m == nil || m.errorMapper == nil {
		return err
	}
	mapped := m.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func mapBuildError(mapper core.ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("uow: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("uow: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("uow: unsupported persistence client type %T", candidate)
	}
}
