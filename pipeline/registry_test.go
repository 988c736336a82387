package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-unitofwork/core"
)

type validMessage struct{}

func (validMessage) Type() string { return "pipeline.command.valid" }

type blankTypeMessage struct{}

func (blankTypeMessage) Type() string { return "" }

type rejectedMessage struct{}

func (rejectedMessage) Type() string { return "pipeline.command.rejected" }

func (rejectedMessage) Validate() error { return errors.New("invalid payload") }

type wiredMessage struct {
	ID string
}

func (wiredMessage) Type() string { return "pipeline.command.wired" }

type queuedMessage struct{}

func (queuedMessage) Type() string { return "pipeline.command.queued" }

type countMessage struct{}

func (countMessage) Type() string { return "pipeline.query.count" }

type stagedWriteMessage struct{}

func (stagedWriteMessage) Type() string { return "pipeline.command.staged_write" }

func (stagedWriteMessage) OperationKind() core.OperationKind { return core.OperationKindMutating }

type stagedReadMessage struct{}

func (stagedReadMessage) Type() string { return "pipeline.query.staged_read" }

func (stagedReadMessage) OperationKind() core.OperationKind { return core.OperationKindReadOnly }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(validMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(blankTypeMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(rejectedMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	resolverCalled := 0

	cmd := command.CommandFunc[wiredMessage](func(context.Context, wiredMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		resolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if resolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), wiredMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestQueueResolverMirrorsCommands(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queuedMessage](func(context.Context, queuedMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("pipeline.command.queued"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

func TestQuerySubscriptionRoundTrip(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())

	qry := command.QueryFunc[countMessage, int](func(context.Context, countMessage) (int, error) {
		return 7, nil
	})
	if _, err := RegisterAndSubscribeQuery(adapter, qry); err != nil {
		t.Fatalf("register and subscribe query: %v", err)
	}

	result, err := Query[countMessage, int](context.Background(), countMessage{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result != 7 {
		t.Fatalf("expected query result 7, got %d", result)
	}
}

func TestRegisterAndSubscribeTransactional_WrapsDispatch(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	transactions := &stubTransactionManager{}
	executed := 0

	cmd := command.CommandFunc[stagedWriteMessage](func(context.Context, stagedWriteMessage) error {
		executed++
		return nil
	})
	if _, err := RegisterAndSubscribeTransactional(adapter, transactions, cmd); err != nil {
		t.Fatalf("register transactional: %v", err)
	}

	if err := Dispatch(context.Background(), stagedWriteMessage{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected handler execution count=1, got %d", executed)
	}
	if transactions.begins != 1 || transactions.commits != 1 || transactions.rollbacks != 0 {
		t.Fatalf("expected dispatched message wrapped in a transaction, got begins=%d commits=%d rollbacks=%d",
			transactions.begins, transactions.commits, transactions.rollbacks)
	}
}

func TestSubscribeTransactionalCommand_ReadOnlyNeverBegins(t *testing.T) {
	transactions := &stubTransactionManager{}
	executed := 0

	cmd := command.CommandFunc[stagedReadMessage](func(context.Context, stagedReadMessage) error {
		executed++
		return nil
	})
	if _, err := SubscribeTransactionalCommand(transactions, cmd); err != nil {
		t.Fatalf("subscribe transactional: %v", err)
	}

	if err := Dispatch(context.Background(), stagedReadMessage{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected handler execution count=1, got %d", executed)
	}
	if transactions.begins != 0 {
		t.Fatalf("expected read-only dispatch to skip transactions, got %d begins", transactions.begins)
	}
}
