package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-unitofwork/core"
)

type stubTransactionManager struct {
	begins    int
	commits   int
	rollbacks int

	beginErr    error
	commitErr   error
	rollbackErr error
}

func (s *stubTransactionManager) BeginTransaction(context.Context) error {
	s.begins++
	return s.beginErr
}

func (s *stubTransactionManager) CommitTransaction(context.Context) error {
	s.commits++
	return s.commitErr
}

func (s *stubTransactionManager) RollbackTransaction(context.Context) error {
	s.rollbacks++
	return s.rollbackErr
}

type writeMessage struct{}

func (writeMessage) Type() string { return "orders.command.write" }

func (writeMessage) OperationKind() core.OperationKind { return core.OperationKindMutating }

type readMessage struct{}

func (readMessage) Type() string { return "orders.query.read" }

func (readMessage) OperationKind() core.OperationKind { return core.OperationKindReadOnly }

type unmarkedMessage struct{}

func (unmarkedMessage) Type() string { return "orders.command.unmarked" }

func TestTransactionStage_MutatingMessageCommits(t *testing.T) {
	transactions := &stubTransactionManager{}
	executed := 0

	stage, err := NewTransactionStage(transactions, command.CommandFunc[writeMessage](func(context.Context, writeMessage) error {
		executed++
		if transactions.begins != 1 || transactions.commits != 0 {
			t.Fatalf("expected handler to run inside the transaction, begins=%d commits=%d",
				transactions.begins, transactions.commits)
		}
		return nil
	}))
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}

	if err := stage.Execute(context.Background(), writeMessage{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected handler execution count=1, got %d", executed)
	}
	if transactions.begins != 1 || transactions.commits != 1 || transactions.rollbacks != 0 {
		t.Fatalf("expected begin+commit, got begins=%d commits=%d rollbacks=%d",
			transactions.begins, transactions.commits, transactions.rollbacks)
	}
}

func TestTransactionStage_ReadOnlyPassesThrough(t *testing.T) {
	transactions := &stubTransactionManager{}
	executed := 0

	stage, err := NewTransactionStage(transactions, command.CommandFunc[readMessage](func(context.Context, readMessage) error {
		executed++
		return nil
	}))
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}
	if err := stage.Execute(context.Background(), readMessage{}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	unmarked, err := NewTransactionStage(transactions, command.CommandFunc[unmarkedMessage](func(context.Context, unmarkedMessage) error {
		executed++
		return nil
	}))
	if err != nil {
		t.Fatalf("new unmarked stage: %v", err)
	}
	if err := unmarked.Execute(context.Background(), unmarkedMessage{}); err != nil {
		t.Fatalf("execute unmarked: %v", err)
	}

	if executed != 2 {
		t.Fatalf("expected both handlers to run, got %d", executed)
	}
	if transactions.begins != 0 || transactions.commits != 0 || transactions.rollbacks != 0 {
		t.Fatalf("expected no transaction activity, got begins=%d commits=%d rollbacks=%d",
			transactions.begins, transactions.commits, transactions.rollbacks)
	}
}

func TestTransactionStage_HandlerFailureRollsBack(t *testing.T) {
	transactions := &stubTransactionManager{}
	handlerErr := errors.New("handler failed")

	stage, err := NewTransactionStage(transactions, command.CommandFunc[writeMessage](func(context.Context, writeMessage) error {
		return handlerErr
	}))
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}

	if err := stage.Execute(context.Background(), writeMessage{}); !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error re-raised, got %v", err)
	}
	if transactions.rollbacks != 1 || transactions.commits != 0 {
		t.Fatalf("expected rollback without commit, got rollbacks=%d commits=%d",
			transactions.rollbacks, transactions.commits)
	}
}

func TestTransactionStage_RollbackFailureNeverMasksHandlerError(t *testing.T) {
	handlerErr := errors.New("handler failed")
	transactions := &stubTransactionManager{rollbackErr: errors.New("rollback failed")}

	stage, err := NewTransactionStage(transactions, command.CommandFunc[writeMessage](func(context.Context, writeMessage) error {
		return handlerErr
	}))
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}

	if err := stage.Execute(context.Background(), writeMessage{}); !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error despite rollback failure, got %v", err)
	}
}

func TestTransactionStage_CommitFailureRollsBackAndSurfaces(t *testing.T) {
	commitErr := errors.New("commit failed")
	transactions := &stubTransactionManager{commitErr: commitErr}

	stage, err := NewTransactionStage(transactions, command.CommandFunc[writeMessage](func(context.Context, writeMessage) error {
		return nil
	}))
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}

	if err := stage.Execute(context.Background(), writeMessage{}); !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if transactions.rollbacks != 1 {
		t.Fatalf("expected cleanup rollback after commit failure, got %d", transactions.rollbacks)
	}
}

func TestTransactionStage_BeginFailureSkipsHandler(t *testing.T) {
	beginErr := errors.New("begin failed")
	transactions := &stubTransactionManager{beginErr: beginErr}
	executed := 0

	stage, err := NewTransactionStage(transactions, command.CommandFunc[writeMessage](func(context.Context, writeMessage) error {
		executed++
		return nil
	}))
	if err != nil {
		t.Fatalf("new stage: %v", err)
	}

	if err := stage.Execute(context.Background(), writeMessage{}); !errors.Is(err, beginErr) {
		t.Fatalf("expected begin error, got %v", err)
	}
	if executed != 0 {
		t.Fatalf("expected handler skipped, got %d executions", executed)
	}
	if transactions.rollbacks != 0 || transactions.commits != 0 {
		t.Fatalf("expected no finalization, got commits=%d rollbacks=%d",
			transactions.commits, transactions.rollbacks)
	}
}

func TestNewTransactionStage_Validates(t *testing.T) {
	handler := command.CommandFunc[writeMessage](func(context.Context, writeMessage) error { return nil })

	if _, err := NewTransactionStage[writeMessage](nil, handler); err == nil {
		t.Fatalf("expected missing transaction manager to fail")
	}
	if _, err := NewTransactionStage[writeMessage](&stubTransactionManager{}, nil); err == nil {
		t.Fatalf("expected missing handler to fail")
	}
}

func TestMutates(t *testing.T) {
	if !Mutates(writeMessage{}) {
		t.Fatalf("expected mutating marker to be detected")
	}
	if Mutates(readMessage{}) {
		t.Fatalf("expected read-only marker to pass through")
	}
	if Mutates(unmarkedMessage{}) {
		t.Fatalf("expected unmarked message to be read only")
	}
	if Mutates(42) {
		t.Fatalf("expected non-message value to be read only")
	}
}
