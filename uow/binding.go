package uow

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// binding carries the type-erased identity and persistence hooks for one
// registered model. RepositoryFor recovers the typed surface from it.
type binding struct {
	name          string
	modelType     reflect.Type
	identifier    string
	versionColumn string
	versionField  string

	keyOf     func(entity any) string
	idOf      func(entity any) uuid.UUID
	setID     func(entity any, id uuid.UUID)
	newRecord func() any
	assign    func(dst, src any) error
	insertTx  func(ctx context.Context, tx bun.Tx, entity any) error
}

type modelSettings struct {
	versionColumn string
}

// ModelOption tunes one model registration.
type ModelOption func(*modelSettings)

// WithModelVersion enables optimistic locking on the named integer column.
// Updates predicate on the version captured when the record was loaded and
// bump it by one, so a lost race surfaces as a ConflictError instead of
// silently overwriting the other writer.
func WithModelVersion(column string) ModelOption {
	return func(s *modelSettings) {
		s.versionColumn = strings.TrimSpace(column)
	}
}

type modelRegistration struct {
	name  string
	build func(db *bun.DB) (*binding, error)
}

// WithModel registers an entity type with the manager. The record type T must
// be a pointer to a struct carrying bun schema tags; handlers supply the
// identity plumbing in the go-repository-bun shape.
func WithModel[T any](name string, handlers repository.ModelHandlers[T], opts ...ModelOption) Option {
	return func(b *managerBuilder) {
		b.models = append(b.models, modelRegistration{
			name: strings.TrimSpace(name),
			build: func(db *bun.DB) (*binding, error) {
				return buildBinding(db, name, handlers, opts...)
			},
		})
	}
}

func buildBinding[T any](db *bun.DB, name string, handlers repository.ModelHandlers[T], opts ...ModelOption) (*binding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("uow: model name is required")
	}
	if handlers.NewRecord == nil || handlers.GetID == nil || handlers.SetID == nil ||
		handlers.GetIdentifier == nil || handlers.GetIdentifierValue == nil {
		return nil, fmt.Errorf("uow: model %q handlers are incomplete", name)
	}

	modelType := reflect.TypeFor[T]()
	if modelType.Kind() != reflect.Pointer || modelType.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("uow: model %q must be a pointer to a struct, got %s", name, modelType)
	}

	settings := modelSettings{}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	versionField := ""
	if settings.versionColumn != "" {
		field, ok := structFieldForColumn(modelType.Elem(), settings.versionColumn)
		if !ok {
			return nil, fmt.Errorf("uow: model %q has no field mapped to version column %q", name, settings.versionColumn)
		}
		versionField = field
	}

	repo := repository.NewRepository[T](db, handlers)
	if validator, ok := any(repo).(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("uow: invalid %q repository wiring: %w", name, err)
		}
	}

	return &binding{
		name:          name,
		modelType:     modelType,
		identifier:    handlers.GetIdentifier(),
		versionColumn: settings.versionColumn,
		versionField:  versionField,
		keyOf: func(entity any) string {
			typed, ok := entity.(T)
			if !ok {
				return ""
			}
			return strings.TrimSpace(handlers.GetIdentifierValue(typed))
		},
		idOf: func(entity any) uuid.UUID {
			typed, ok := entity.(T)
			if !ok {
				return uuid.Nil
			}
			return handlers.GetID(typed)
		},
		setID: func(entity any, id uuid.UUID) {
			if typed, ok := entity.(T); ok {
				handlers.SetID(typed, id)
			}
		},
		newRecord: func() any {
			return handlers.NewRecord()
		},
		assign: func(dst, src any) error {
			dstValue := reflect.ValueOf(dst)
			srcValue := reflect.ValueOf(src)
			if dstValue.Type() != modelType || srcValue.Type() != modelType {
				return fmt.Errorf("uow: %s binding cannot copy %T from %T", name, dst, src)
			}
			if dstValue.IsNil() || srcValue.IsNil() {
				return fmt.Errorf("uow: %s binding cannot copy nil records", name)
			}
			dstValue.Elem().Set(srcValue.Elem())
			return nil
		},
		insertTx: func(ctx context.Context, tx bun.Tx, entity any) error {
			typed, ok := entity.(T)
			if !ok {
				return fmt.Errorf("uow: %s binding cannot persist %T", name, entity)
			}
			_, err := repo.CreateTx(ctx, tx, typed)
			return err
		},
	}, nil
}

// versionOf reads the record's optimistic-lock counter. Reports false when
// versioning is not configured or the field is not an integer.
func (b *binding) versionOf(entity any) (int64, bool) {
	field, ok := b.versionFieldValue(entity)
	if !ok {
		return 0, false
	}
	return field.Int(), true
}

func (b *binding) setVersion(entity any, version int64) {
	field, ok := b.versionFieldValue(entity)
	if !ok || !field.CanSet() {
		return
	}
	field.SetInt(version)
}

func (b *binding) versionFieldValue(entity any) (reflect.Value, bool) {
	if b.versionField == "" {
		return reflect.Value{}, false
	}
	value := reflect.ValueOf(entity)
	if value.Type() != b.modelType || value.IsNil() {
		return reflect.Value{}, false
	}
	field := value.Elem().FieldByName(b.versionField)
	if !field.IsValid() {
		return reflect.Value{}, false
	}
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return field, true
	}
	return reflect.Value{}, false
}

// versionFromValue coerces a snapshot value back into the lock counter.
func versionFromValue(value any) (int64, bool) {
	reflected := reflect.ValueOf(value)
	switch reflected.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflected.Int(), true
	}
	return 0, false
}

// structFieldForColumn finds the exported struct field mapped to a column,
// first by the explicit name in its bun tag, then by underscore-insensitive
// comparison against the field name for tags that rely on bun's derivation.
func structFieldForColumn(structType reflect.Type, column string) (string, bool) {
	column = strings.TrimSpace(column)
	if column == "" {
		return "", false
	}
	folded := foldColumn(column)
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		tagged := ""
		if tag, ok := field.Tag.Lookup("bun"); ok {
			tagged, _, _ = strings.Cut(tag, ",")
		}
		if tagged == column {
			return field.Name, true
		}
		if tagged == "" && foldColumn(field.Name) == folded {
			return field.Name, true
		}
	}
	return "", false
}

func foldColumn(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}
