package uow

import "github.com/goliatone/go-unitofwork/core"

var (
	_ core.TransactionManager = (*UnitOfWork)(nil)
	_ core.ChangeSaver        = (*UnitOfWork)(nil)
)
