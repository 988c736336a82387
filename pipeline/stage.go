package pipeline

import (
	"context"
	"fmt"

	"github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-unitofwork/core"
)

// Classified marks a message with the store capability it needs. Messages
// without the marker are treated as read only and never open a transaction.
type Classified interface {
	OperationKind() core.OperationKind
}

// Mutates reports whether msg carries the mutating marker.
func Mutates(msg any) bool {
	classified, ok := msg.(Classified)
	return ok && classified.OperationKind() == core.OperationKindMutating
}

// TransactionStage decorates a command handler with transaction boundaries.
// Read-only and unmarked messages pass straight through. Mutating messages
// run inside a transaction: begin, execute, commit on success, rollback on
// failure. The handler owns its own flush and is expected to call
// SaveChanges before returning; the stage only finalizes.
//
// Handler errors are re-raised unchanged. A rollback or commit-cleanup
// failure is logged, never allowed to mask the error that caused it.
type TransactionStage[T any] struct {
	next         command.Commander[T]
	transactions core.TransactionManager
	logger       core.Logger
}

// StageOption configures a TransactionStage.
type StageOption[T any] func(*TransactionStage[T])

// WithStageLogger sets the logger used for rollback failures.
func WithStageLogger[T any](logger core.Logger) StageOption[T] {
	return func(s *TransactionStage[T]) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewTransactionStage wraps next in transaction handling driven by
// transactions, usually a *uow.UnitOfWork.
func NewTransactionStage[T any](
	transactions core.TransactionManager,
	next command.Commander[T],
	opts ...StageOption[T],
) (*TransactionStage[T], error) {
	if transactions == nil {
		return nil, fmt.Errorf("pipeline: transaction manager is required")
	}
	if next == nil {
		return nil, fmt.Errorf("pipeline: next handler is required")
	}
	stage := &TransactionStage[T]{
		next:         next,
		transactions: transactions,
		logger:       glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(stage)
		}
	}
	return stage, nil
}

func (s *TransactionStage[T]) Execute(ctx context.Context, msg T) error {
	if s == nil || s.next == nil {
		return fmt.Errorf("pipeline: transaction stage is not configured")
	}
	if !Mutates(msg) {
		return s.next.Execute(ctx, msg)
	}

	if err := s.transactions.BeginTransaction(ctx); err != nil {
		return err
	}
	if err := s.next.Execute(ctx, msg); err != nil {
		if rollbackErr := s.transactions.RollbackTransaction(ctx); rollbackErr != nil {
			s.logger.Error("rollback after handler failure did not complete",
				"error", rollbackErr.Error(),
				"handler_error", err.Error(),
			)
		}
		return err
	}
	if err := s.transactions.CommitTransaction(ctx); err != nil {
		// The transaction handle is released on commit failure, so this
		// rollback is a warning no-op unless commit aborted early.
		if rollbackErr := s.transactions.RollbackTransaction(ctx); rollbackErr != nil {
			s.logger.Error("rollback after commit failure did not complete",
				"error", rollbackErr.Error(),
				"commit_error", err.Error(),
			)
		}
		return err
	}
	return nil
}
