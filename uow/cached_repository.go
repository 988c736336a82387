package uow

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-unitofwork/core"
)

const entityCacheKeyPrefix = "go-unitofwork::entity::v1"

// EntityCacheKey returns the deterministic cache key contract for by-id
// entity reads: go-unitofwork::entity::v1::<model>::<id> with each segment
// URL-path escaped.
func EntityCacheKey(model, id string) (string, error) {
	model = strings.TrimSpace(model)
	id = strings.TrimSpace(id)
	if model == "" {
		return "", fmt.Errorf("uow: cache key model is required")
	}
	if id == "" {
		return "", fmt.Errorf("uow: cache key id is required")
	}
	segments := []string{model, id}
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(append([]string{entityCacheKeyPrefix}, segments...), "::"), nil
}

// CachedRepository decorates a scope repository with read-through caching of
// by-id lookups. Every other operation passes through. Reads inside an open
// transaction bypass the cache so a transaction never observes rows staler
// than its own writes; saved changes invalidate the touched keys once they
// are visible to other sessions.
type CachedRepository[T any] struct {
	base  *Repository[T]
	cache repositorycache.CacheService
}

// CachedRepositoryFor returns the scope's cached repository for model type T.
// The manager must have been built with WithCacheService.
func CachedRepositoryFor[T any](u *UnitOfWork) (*CachedRepository[T], error) {
	base, err := RepositoryFor[T](u)
	if err != nil {
		return nil, err
	}
	if u.manager.cache == nil {
		return nil, fmt.Errorf("uow: manager has no cache service")
	}
	return &CachedRepository[T]{base: base, cache: u.manager.cache}, nil
}

// GetByID looks a record up by primary key through the cache. Cached hits
// return a copy, so callers can mutate the result without poisoning the
// cache. An absent row yields the zero value and no error.
func (r *CachedRepository[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	if r == nil || r.base == nil || r.cache == nil {
		return zero, fmt.Errorf("uow: cached repository is not configured")
	}
	if err := r.base.ready(ctx); err != nil {
		return zero, err
	}
	if r.base.scope.TransactionOpen() {
		return r.base.GetByID(ctx, id)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return zero, fmt.Errorf("uow: %s id is required", r.base.binding.name)
	}
	cacheKey, err := EntityCacheKey(r.base.binding.name, id)
	if err != nil {
		return zero, err
	}

	record, err := repositorycache.GetOrFetch(ctx, r.cache, cacheKey, func(ctx context.Context) (T, error) {
		return r.base.GetByID(ctx, id)
	})
	if err != nil {
		return zero, err
	}
	cloned := cloneRecord(record)
	if key := r.base.binding.keyOf(any(cloned)); key != "" {
		r.base.scope.tracker.trackRead(r.base.binding.name, key, any(cloned))
	}
	return cloned, nil
}

func (r *CachedRepository[T]) Find(ctx context.Context, filters ...core.Filter) (T, error) {
	return r.base.Find(ctx, filters...)
}

func (r *CachedRepository[T]) FindAll(ctx context.Context, filters ...core.Filter) ([]T, error) {
	return r.base.FindAll(ctx, filters...)
}

func (r *CachedRepository[T]) GetAll(ctx context.Context) ([]T, error) {
	return r.base.GetAll(ctx)
}

func (r *CachedRepository[T]) Exists(ctx context.Context, filters ...core.Filter) (bool, error) {
	return r.base.Exists(ctx, filters...)
}

func (r *CachedRepository[T]) FirstOrDefault(ctx context.Context, spec core.Specification) (T, error) {
	return r.base.FirstOrDefault(ctx, spec)
}

func (r *CachedRepository[T]) GetList(ctx context.Context, spec core.Specification) ([]T, error) {
	return r.base.GetList(ctx, spec)
}

func (r *CachedRepository[T]) Count(ctx context.Context, spec core.Specification) (int, error) {
	return r.base.Count(ctx, spec)
}

func (r *CachedRepository[T]) Create(ctx context.Context, entity T) (T, error) {
	return r.base.Create(ctx, entity)
}

func (r *CachedRepository[T]) Update(ctx context.Context, entity T) (T, error) {
	return r.base.Update(ctx, entity)
}

func (r *CachedRepository[T]) Delete(ctx context.Context, entity T) (bool, error) {
	return r.base.Delete(ctx, entity)
}

// invalidateCachedRecord drops the by-id cache entry for a flushed record.
// Invalidation failures are logged, not raised: the save already committed
// and the cache entry expires on its own TTL.
func (m *Manager) invalidateCachedRecord(ctx context.Context, model, id string) {
	if m == nil || m.cache == nil {
		return
	}
	cacheKey, err := EntityCacheKey(model, id)
	if err != nil {
		return
	}
	if err := m.cache.Delete(ctx, cacheKey); err != nil {
		m.logWarn(ctx, "cache invalidation failed", map[string]any{
			"cache_key": cacheKey,
			"error":     err.Error(),
		})
	}
}

func cloneRecord[T any](record T) T {
	value := reflect.ValueOf(record)
	if value.Kind() != reflect.Pointer || value.IsNil() {
		return record
	}
	cloned := reflect.New(value.Elem().Type())
	cloned.Elem().Set(value.Elem())
	return cloned.Interface().(T)
}
