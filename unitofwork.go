// Package unitofwork re-exports the library surface: core vocabulary, the
// unit-of-work machine, and the dispatch pipeline stage.
package unitofwork

import (
	"github.com/goliatone/go-command"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-unitofwork/core"
	"github.com/goliatone/go-unitofwork/pipeline"
	"github.com/goliatone/go-unitofwork/uow"
)

type Config = core.Config

type RetryConfig = core.RetryConfig

type EvaluatorConfig = core.EvaluatorConfig

type Specification = core.Specification

type Filter = core.Filter
type Clause = core.Clause
type Include = core.Include
type EntityState = core.EntityState
type EntityDebugInfo = core.EntityDebugInfo
type FieldDelta = core.FieldDelta
type OperationKind = core.OperationKind

type Logger = core.Logger
type LoggerProvider = core.LoggerProvider
type MetricsRecorder = core.MetricsRecorder
type TransactionManager = core.TransactionManager
type ChangeSaver = core.ChangeSaver
type CommandMessage = core.CommandMessage
type CommandDispatcher = core.CommandDispatcher
type ConfigProvider = core.ConfigProvider
type ErrorFactory = core.ErrorFactory
type ErrorMapper = core.ErrorMapper

type Option = uow.Option
type ModelOption = uow.ModelOption
type ModelHandlers[T any] = repository.ModelHandlers[T]
type Manager = uow.Manager
type ManagerDependencies = uow.ManagerDependencies
type UnitOfWork = uow.UnitOfWork
type Repository[T any] = uow.Repository[T]
type CachedRepository[T any] = uow.CachedRepository[T]
type Evaluator = uow.Evaluator
type ConflictError = uow.ConflictError

type Classified = pipeline.Classified
type TransactionStage[T any] = pipeline.TransactionStage[T]
type StageOption[T any] = pipeline.StageOption[T]
type RegistryAdapter = pipeline.RegistryAdapter

const (
	EntityStateUnchanged = core.EntityStateUnchanged
	EntityStateAdded     = core.EntityStateAdded
	EntityStateModified  = core.EntityStateModified
	EntityStateDeleted   = core.EntityStateDeleted
	EntityStateDetached  = core.EntityStateDetached

	OperationKindMutating = core.OperationKindMutating
	OperationKindReadOnly = core.OperationKindReadOnly
)

var (
	ErrClosed          = uow.ErrClosed
	ErrUnorderedPaging = uow.ErrUnorderedPaging
)

var (
	WithLogger            = uow.WithLogger
	WithLoggerProvider    = uow.WithLoggerProvider
	WithMetricsRecorder   = uow.WithMetricsRecorder
	WithErrorFactory      = uow.WithErrorFactory
	WithErrorMapper       = uow.WithErrorMapper
	WithConfigProvider    = uow.WithConfigProvider
	WithOptionsResolver   = uow.WithOptionsResolver
	WithPersistenceClient = uow.WithPersistenceClient
	WithDB                = uow.WithDB
	WithRetryClassifier   = uow.WithRetryClassifier
	WithRetryBackoff      = uow.WithRetryBackoff
	WithCacheService      = uow.WithCacheService
	WithModelVersion      = uow.WithModelVersion

	NewSpecification        = core.NewSpecification
	NewRegistryAdapter      = pipeline.NewRegistryAdapter
	ValidateMessageContract = pipeline.ValidateMessageContract
	Mutates                 = pipeline.Mutates
	EntityCacheKey          = uow.EntityCacheKey
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func New(cfg Config, opts ...Option) (*Manager, error) {
	return uow.New(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Manager, error) {
	return New(cfg, opts...)
}

func WithModel[T any](name string, handlers ModelHandlers[T], opts ...ModelOption) Option {
	return uow.WithModel[T](name, handlers, opts...)
}

func RepositoryFor[T any](scope *UnitOfWork) (*Repository[T], error) {
	return uow.RepositoryFor[T](scope)
}

func CachedRepositoryFor[T any](scope *UnitOfWork) (*CachedRepository[T], error) {
	return uow.CachedRepositoryFor[T](scope)
}

func NewTransactionStage[T any](
	transactions TransactionManager,
	next command.Commander[T],
	opts ...StageOption[T],
) (*TransactionStage[T], error) {
	return pipeline.NewTransactionStage[T](transactions, next, opts...)
}
