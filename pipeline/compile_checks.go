package pipeline

import "github.com/goliatone/go-command"

var _ command.Commander[struct{}] = (*TransactionStage[struct{}])(nil)
