package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	PersistenceErrorBadInput  = "PERSISTENCE_BAD_INPUT"
	PersistenceErrorNotFound  = "PERSISTENCE_NOT_FOUND"
	PersistenceErrorConflict  = "PERSISTENCE_CONFLICT"
	PersistenceErrorTransient = "PERSISTENCE_TRANSIENT"
	PersistenceErrorCancelled = "PERSISTENCE_CANCELLED"
	PersistenceErrorInternal  = "PERSISTENCE_INTERNAL_ERROR"
)

// PersistenceErrorMapper normalizes an error into the persistence taxonomy.
// Rich errors pass through with their envelope backfilled; everything else is
// classified by fault signature. Mapping never drops the original message.
func PersistenceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensurePersistenceErrorEnvelope(richErr)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newPersistenceError(err.Error(), goerrors.CategoryOperation, PersistenceErrorCancelled)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "concurren"), strings.Contains(msg, "conflict"),
		strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return newPersistenceError(err.Error(), goerrors.CategoryConflict, PersistenceErrorConflict)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "too many clients"):
		return newPersistenceError(err.Error(), goerrors.CategoryOperation, PersistenceErrorTransient)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no rows"):
		return newPersistenceError(err.Error(), goerrors.CategoryNotFound, PersistenceErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must not"):
		return newPersistenceError(err.Error(), goerrors.CategoryBadInput, PersistenceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensurePersistenceErrorEnvelope(mapped)
}

func newPersistenceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensurePersistenceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensurePersistenceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = persistenceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultPersistenceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected persistence error occurred"
	}
	return err
}

func defaultPersistenceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return PersistenceErrorBadInput
	case goerrors.CategoryNotFound:
		return PersistenceErrorNotFound
	case goerrors.CategoryConflict:
		return PersistenceErrorConflict
	case goerrors.CategoryRateLimit:
		return PersistenceErrorTransient
	default:
		return PersistenceErrorInternal
	}
}

func persistenceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
