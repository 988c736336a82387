package uow

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-unitofwork/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repository is the typed query and staging surface for one registered model
// inside a unit-of-work scope. Reads execute immediately through the scope's
// session, and through its transaction while one is open. Create, Update, and
// Delete only stage changes; nothing is persisted until the scope's
// SaveChanges runs.
//
// Store failures surface unmodified. Retry is centralized in SaveChanges, so
// read paths never retry on their own.
type Repository[T any] struct {
	scope   *UnitOfWork
	binding *binding
}

// RepositoryFor returns the scope's repository for model type T. T must have
// been registered on the manager with WithModel.
func RepositoryFor[T any](u *UnitOfWork) (*Repository[T], error) {
	if u == nil || u.closed {
		return nil, ErrClosed
	}
	modelType := reflect.TypeFor[T]()
	b, ok := u.manager.bindings[modelType]
	if !ok {
		wrapped := u.manager.errorFactory(
			fmt.Sprintf("uow: no model registered for %s", modelType),
			goerrors.CategoryBadInput,
		).WithTextCode(core.PersistenceErrorBadInput)
		return nil, wrapped.WithMetadata(map[string]any{"model": modelType.String()})
	}
	return &Repository[T]{scope: u, binding: b}, nil
}

// GetByID looks a record up by primary key. An absent row yields the zero
// value and no error.
func (r *Repository[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	if err := r.ready(ctx); err != nil {
		return zero, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return zero, fmt.Errorf("uow: %s id is required", r.binding.name)
	}
	records, err := r.selectRecords(ctx,
		repository.SelectBy(r.binding.identifier, "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return zero, err
	}
	if len(records) == 0 {
		return zero, nil
	}
	return records[0], nil
}

// Find returns the first record matching every filter, or the zero value when
// none does.
func (r *Repository[T]) Find(ctx context.Context, filters ...core.Filter) (T, error) {
	var zero T
	if err := r.ready(ctx); err != nil {
		return zero, err
	}
	criteria, err := r.filterCriteria(filters)
	if err != nil {
		return zero, err
	}
	records, err := r.selectRecords(ctx, append(criteria, repository.SelectPaginate(1, 0))...)
	if err != nil {
		return zero, err
	}
	if len(records) == 0 {
		return zero, nil
	}
	return records[0], nil
}

// FindAll returns every record matching every filter.
func (r *Repository[T]) FindAll(ctx context.Context, filters ...core.Filter) ([]T, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	criteria, err := r.filterCriteria(filters)
	if err != nil {
		return nil, err
	}
	return r.selectRecords(ctx, criteria...)
}

// GetAll returns every record of the model.
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	return r.selectRecords(ctx)
}

// Exists reports whether any record matches every filter.
func (r *Repository[T]) Exists(ctx context.Context, filters ...core.Filter) (bool, error) {
	if err := r.ready(ctx); err != nil {
		return false, err
	}
	criteria, err := r.filterCriteria(filters)
	if err != nil {
		return false, err
	}
	count, err := r.countRecords(ctx, criteria)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FirstOrDefault evaluates the specification and returns the first row of the
// result, or the zero value when the result is empty.
func (r *Repository[T]) FirstOrDefault(ctx context.Context, spec core.Specification) (T, error) {
	var zero T
	if err := r.ready(ctx); err != nil {
		return zero, err
	}
	criteria, err := r.scope.manager.evaluator.Criteria(spec)
	if err != nil {
		return zero, err
	}
	records, err := r.selectRecords(ctx, append(criteria, repository.SelectPaginate(1, 0))...)
	if err != nil {
		return zero, err
	}
	if len(records) == 0 {
		return zero, nil
	}
	return records[0], nil
}

// GetList evaluates the specification and returns the matching rows.
func (r *Repository[T]) GetList(ctx context.Context, spec core.Specification) ([]T, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	criteria, err := r.scope.manager.evaluator.Criteria(spec)
	if err != nil {
		return nil, err
	}
	return r.selectRecords(ctx, criteria...)
}

// Count returns the number of rows matching the specification's filters.
// Ordering, paging, and includes are ignored.
func (r *Repository[T]) Count(ctx context.Context, spec core.Specification) (int, error) {
	if err := r.ready(ctx); err != nil {
		return 0, err
	}
	criteria, err := r.scope.manager.evaluator.FilterCriteria(spec)
	if err != nil {
		return 0, err
	}
	return r.countRecords(ctx, criteria)
}

// Create stages a record for insert. A record with no identity gets a fresh
// UUID through the model handlers. Nothing is written until SaveChanges.
func (r *Repository[T]) Create(ctx context.Context, entity T) (T, error) {
	var zero T
	if err := r.ready(ctx); err != nil {
		return zero, err
	}
	record := any(entity)
	if r.binding.keyOf(record) == "" && r.binding.idOf(record) == uuid.Nil {
		r.binding.setID(record, uuid.New())
	}
	key := r.binding.keyOf(record)
	if key == "" {
		return zero, fmt.Errorf("uow: %s record has no identity", r.binding.name)
	}
	state := r.scope.tracker.stageCreate(r.binding.name, key, record)
	r.scope.manager.logDebug(ctx, "create staged", map[string]any{
		"entity_type": r.binding.name,
		"entity_key":  key,
		"state":       string(state),
	})
	return entity, nil
}

// Update stages a record for update. Nothing is written until SaveChanges.
func (r *Repository[T]) Update(ctx context.Context, entity T) (T, error) {
	var zero T
	if err := r.ready(ctx); err != nil {
		return zero, err
	}
	record := any(entity)
	key := r.binding.keyOf(record)
	if key == "" {
		return zero, fmt.Errorf("uow: %s record has no identity", r.binding.name)
	}
	state := r.scope.tracker.stageUpdate(r.binding.name, key, record)
	r.scope.manager.logDebug(ctx, "update staged", map[string]any{
		"entity_type": r.binding.name,
		"entity_key":  key,
		"state":       string(state),
	})
	return entity, nil
}

// Delete stages a record for delete and reports whether a change is now
// staged. Deleting a record staged for insert cancels the insert instead.
func (r *Repository[T]) Delete(ctx context.Context, entity T) (bool, error) {
	if err := r.ready(ctx); err != nil {
		return false, err
	}
	record := any(entity)
	key := r.binding.keyOf(record)
	if key == "" {
		return false, fmt.Errorf("uow: %s record has no identity", r.binding.name)
	}
	staged := r.scope.tracker.stageDelete(r.binding.name, key, record)
	r.scope.manager.logDebug(ctx, "delete staged", map[string]any{
		"entity_type": r.binding.name,
		"entity_key":  key,
	})
	return staged, nil
}

func (r *Repository[T]) ready(ctx context.Context) error {
	if r == nil || r.scope == nil || r.scope.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (r *Repository[T]) filterCriteria(filters []core.Filter) ([]repository.SelectCriteria, error) {
	spec := core.NewSpecification()
	for _, filter := range filters {
		spec = spec.Where(filter.Field, filter.Operator, filter.Value)
	}
	return r.scope.manager.evaluator.FilterCriteria(spec)
}

func (r *Repository[T]) selectRecords(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, error) {
	var records []T
	q := r.scope.executor().NewSelect().Model(&records)
	q = applyCriteria(q, criteria)
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	r.trackLoaded(records)
	return records, nil
}

func (r *Repository[T]) countRecords(ctx context.Context, criteria []repository.SelectCriteria) (int, error) {
	var model T
	q := r.scope.executor().NewSelect().Model(model)
	q = applyCriteria(q, criteria)
	return q.Count(ctx)
}

// trackLoaded registers materialized records as unchanged so later staging
// and refreshes can diff against their loaded values.
func (r *Repository[T]) trackLoaded(records []T) {
	for _, record := range records {
		key := r.binding.keyOf(record)
		if key == "" {
			continue
		}
		r.scope.tracker.trackRead(r.binding.name, key, record)
	}
}

func applyCriteria(q *bun.SelectQuery, criteria []repository.SelectCriteria) *bun.SelectQuery {
	for _, criterion := range criteria {
		if criterion == nil {
			continue
		}
		q = criterion(q)
	}
	return q
}
