package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TransactionManager is the transaction surface the dispatch pipeline drives.
// Begin is idempotent while a transaction is open; commit and rollback are
// warning no-ops when none is.
type TransactionManager interface {
	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}

// ChangeSaver is implemented by unit-of-work scopes that flush staged entity
// changes. SaveChanges returns the number of records the flush affected.
type ChangeSaver interface {
	SaveChanges(ctx context.Context) (int, error)
}

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}
