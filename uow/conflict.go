package uow

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-unitofwork/core"
)

// ConflictError reports that a staged update or delete matched no rows: the
// record was changed or removed by another writer after it was loaded.
type ConflictError struct {
	EntityType string
	EntityKey  string
	Operation  string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf(
		"uow: concurrency conflict on %s %q during %s",
		strings.TrimSpace(e.EntityType),
		strings.TrimSpace(e.EntityKey),
		strings.TrimSpace(e.Operation),
	)
}

func (e ConflictError) ToPersistenceError() *goerrors.Error {
	metadata := map[string]any{
		"entity_type": strings.TrimSpace(e.EntityType),
		"entity_key":  strings.TrimSpace(e.EntityKey),
	}
	if operation := strings.TrimSpace(e.Operation); operation != "" {
		metadata["operation"] = operation
	}
	return goerrors.New(e.Error(), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(core.PersistenceErrorConflict).
		WithMetadata(metadata)
}
