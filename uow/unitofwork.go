package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-unitofwork/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrClosed rejects operations on a unit of work whose scope already ended.
var ErrClosed = errors.New("uow: unit of work is closed")

type cacheInvalidation struct {
	model string
	key   string
}

// UnitOfWork owns one database session and the staged changes of one logical
// request scope. At most one transaction is open at a time; repositories
// obtained through RepositoryFor route every query through the session, and
// through the transaction while one is open.
//
// A UnitOfWork is not safe for concurrent use. Close releases the session and
// rolls back any transaction still open.
type UnitOfWork struct {
	manager *Manager
	conn    bun.Conn
	tracker *changeTracker

	tx     *bun.Tx
	txID   uuid.UUID
	closed bool

	pendingInvalidations []cacheInvalidation
}

// TransactionOpen reports whether a transaction is currently open.
func (u *UnitOfWork) TransactionOpen() bool {
	return u != nil && u.tx != nil
}

// TransactionID returns the identifier of the open transaction, or uuid.Nil
// when none is open.
func (u *UnitOfWork) TransactionID() uuid.UUID {
	if u == nil {
		return uuid.Nil
	}
	return u.txID
}

// BeginTransaction opens a transaction on the scope's session. Calling it
// while a transaction is already open reuses the open one, so pipeline stages
// and handlers may both request a transaction without coordination.
func (u *UnitOfWork) BeginTransaction(ctx context.Context) error {
	if u == nil || u.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.tx != nil {
		u.manager.logDebug(ctx, "transaction already open, reusing", map[string]any{
			"transaction_id": u.txID.String(),
		})
		return nil
	}

	start := time.Now()
	tx, err := u.conn.BeginTx(ctx, nil)
	if err != nil {
		u.manager.observeOperation(ctx, start, "begin_transaction", err, nil)
		return err
	}
	u.tx = &tx
	u.txID = uuid.New()
	u.manager.observeOperation(ctx, start, "begin_transaction", nil, map[string]any{
		"transaction_id": u.txID.String(),
	})
	return nil
}

// CommitTransaction commits the open transaction. With no open transaction it
// warns and returns nil. The transaction handle is released on every exit
// path, success or failure.
func (u *UnitOfWork) CommitTransaction(ctx context.Context) error {
	if u == nil || u.closed {
		return ErrClosed
	}
	if u.tx == nil {
		u.manager.logWarn(ctx, "commit requested with no open transaction", nil)
		return nil
	}

	start := time.Now()
	tx := *u.tx
	txID := u.txID
	u.releaseTransaction()

	err := tx.Commit()
	u.manager.observeOperation(ctx, start, "commit_transaction", err, map[string]any{
		"transaction_id": txID.String(),
	})
	if err != nil {
		return err
	}
	u.flushInvalidations(ctx)
	return nil
}

// RollbackTransaction rolls back the open transaction. With no open
// transaction it warns and returns nil. The transaction handle is released on
// every exit path.
func (u *UnitOfWork) RollbackTransaction(ctx context.Context) error {
	if u == nil || u.closed {
		return ErrClosed
	}
	if u.tx == nil {
		u.manager.logWarn(ctx, "rollback requested with no open transaction", nil)
		return nil
	}

	start := time.Now()
	tx := *u.tx
	txID := u.txID
	u.releaseTransaction()
	u.pendingInvalidations = nil

	err := tx.Rollback()
	u.manager.observeOperation(ctx, start, "rollback_transaction", err, map[string]any{
		"transaction_id": txID.String(),
	})
	return err
}

// SaveChanges flushes every staged change in staging order and returns the
// number of affected records. The whole batch runs through the retry policy
// as a unit; outside an explicit transaction each attempt executes in its own
// short transaction so a partially applied batch never becomes visible.
//
// A staged update or delete that matches no rows aborts the batch with a
// ConflictError carrying the entity type and key.
func (u *UnitOfWork) SaveChanges(ctx context.Context) (int, error) {
	if u == nil || u.closed {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	staged := u.tracker.staged()
	if len(staged) == 0 {
		u.manager.logDebug(ctx, "save requested with no staged changes", nil)
		return 0, nil
	}

	start := time.Now()
	fields := map[string]any{"staged": len(staged)}
	if u.tx != nil {
		fields["transaction_id"] = u.txID.String()
	}

	var affected int
	err := u.manager.policy.Run(ctx, "save_changes", func(ctx context.Context) error {
		count, flushErr := u.flushOnce(ctx, staged)
		if flushErr != nil {
			return flushErr
		}
		affected = count
		return nil
	})
	if err == nil {
		fields["affected"] = affected
	}
	u.manager.observeOperation(ctx, start, "save_changes", err, fields)
	if err != nil {
		return 0, err
	}

	invalidations := invalidationsFor(staged)
	u.tracker.acceptChanges()
	if u.tx != nil {
		u.pendingInvalidations = append(u.pendingInvalidations, invalidations...)
	} else {
		u.invalidate(ctx, invalidations)
	}
	return affected, nil
}

// RefreshEntity reloads a tracked record from the store, replacing its field
// values and snapshot. Detached records are skipped. A record whose row no
// longer exists is detached rather than treated as a failure.
func (u *UnitOfWork) RefreshEntity(ctx context.Context, entity any) error {
	if u == nil || u.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := u.bindingForEntity(entity)
	if err != nil {
		return err
	}
	key := b.keyOf(entity)
	if key == "" {
		return fmt.Errorf("uow: %s record has no identity to refresh", b.name)
	}
	if u.tracker.state(b.name, key) == core.EntityStateDetached {
		u.manager.logDebug(ctx, "refresh skipped for detached record", map[string]any{
			"entity_type": b.name,
			"entity_key":  key,
		})
		return nil
	}

	fresh := b.newRecord()
	found, err := u.selectByKey(ctx, b, key, fresh)
	if err != nil {
		return err
	}
	if !found {
		u.tracker.detach(b.name, key)
		u.manager.logWarn(ctx, "record vanished during refresh, detaching", map[string]any{
			"entity_type": b.name,
			"entity_key":  key,
		})
		return nil
	}
	if err := b.assign(entity, fresh); err != nil {
		return err
	}
	u.tracker.resnapshot(b.name, key, entity)
	return nil
}

// DetachEntity stops tracking a record. Staged changes for it are discarded.
// Returns whether the record was tracked.
func (u *UnitOfWork) DetachEntity(entity any) bool {
	if u == nil || u.closed {
		return false
	}
	b, err := u.bindingForEntity(entity)
	if err != nil {
		return false
	}
	key := b.keyOf(entity)
	if key == "" {
		return false
	}
	return u.tracker.detach(b.name, key)
}

// GetEntityDebugInfo reports a record's tracked state and per-field deltas
// against the snapshot taken at load time. Diagnostic only.
func (u *UnitOfWork) GetEntityDebugInfo(entity any) (core.EntityDebugInfo, error) {
	if u == nil {
		return core.EntityDebugInfo{}, ErrClosed
	}
	b, err := u.bindingForEntity(entity)
	if err != nil {
		return core.EntityDebugInfo{}, err
	}
	return u.tracker.debugInfo(b.name, b.keyOf(entity), entity), nil
}

// Close ends the scope: any open transaction is rolled back and the session
// returns to the pool. Close is idempotent.
func (u *UnitOfWork) Close() error {
	if u == nil || u.closed {
		return nil
	}
	u.closed = true
	u.pendingInvalidations = nil

	if u.tx != nil {
		tx := *u.tx
		txID := u.txID
		u.releaseTransaction()
		u.manager.logWarn(context.Background(), "open transaction rolled back during close", map[string]any{
			"transaction_id": txID.String(),
		})
		if err := tx.Rollback(); err != nil {
			u.manager.logError(context.Background(), "rollback during close failed", map[string]any{
				"transaction_id": txID.String(),
				"error":          err.Error(),
			})
		}
	}

	if err := u.conn.Close(); err != nil {
		u.manager.logError(context.Background(), "session close failed", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	return nil
}

// executor returns the open transaction when one exists, else the session.
func (u *UnitOfWork) executor() bun.IDB {
	if u.tx != nil {
		return *u.tx
	}
	return u.conn
}

func (u *UnitOfWork) releaseTransaction() {
	u.tx = nil
	u.txID = uuid.Nil
}

func (u *UnitOfWork) flushOnce(ctx context.Context, staged []*trackedEntity) (int, error) {
	if u.tx != nil {
		return u.flushEntries(ctx, *u.tx, staged)
	}
	var affected int
	err := u.conn.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		count, err := u.flushEntries(ctx, tx, staged)
		if err != nil {
			return err
		}
		affected = count
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (u *UnitOfWork) flushEntries(ctx context.Context, tx bun.Tx, staged []*trackedEntity) (int, error) {
	affected := 0
	for _, entry := range staged {
		b, err := u.bindingForEntity(entry.entity)
		if err != nil {
			return 0, err
		}
		switch entry.state {
		case core.EntityStateAdded:
			if err := b.insertTx(ctx, tx, entry.entity); err != nil {
				u.manager.logError(ctx, "insert failed", map[string]any{
					"entity_type": b.name,
					"entity_key":  entry.entityKey,
					"error":       err.Error(),
				})
				return 0, err
			}
			affected++
		case core.EntityStateModified:
			count, err := u.updateEntry(ctx, tx, b, entry)
			if err != nil {
				return 0, err
			}
			affected += count
		case core.EntityStateDeleted:
			count, err := u.deleteEntry(ctx, tx, b, entry)
			if err != nil {
				return 0, err
			}
			affected += count
		}
	}
	return affected, nil
}

func (u *UnitOfWork) updateEntry(ctx context.Context, tx bun.Tx, b *binding, entry *trackedEntity) (int, error) {
	query := tx.NewUpdate().Model(entry.entity).WherePK()

	// The bumped version is written through a column override instead of
	// mutating the record, so a failed or retried batch re-resolves the
	// original version from the snapshot rather than the bumped value.
	next := int64(0)
	versioned := false
	if b.versionColumn != "" {
		if original, ok := expectedVersion(b, entry); ok {
			next = original + 1
			versioned = true
			query = query.
				Value(b.versionColumn, "?", next).
				Where("? = ?", bun.Ident(b.versionColumn), original)
		}
	}

	res, err := query.Exec(ctx)
	if err != nil {
		u.manager.logError(ctx, "update failed", map[string]any{
			"entity_type": b.name,
			"entity_key":  entry.entityKey,
			"error":       err.Error(),
		})
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, u.conflict(ctx, b, entry, "update")
	}
	if versioned {
		b.setVersion(entry.entity, next)
	}
	return int(rows), nil
}

func (u *UnitOfWork) deleteEntry(ctx context.Context, tx bun.Tx, b *binding, entry *trackedEntity) (int, error) {
	query := tx.NewDelete().Model(entry.entity).WherePK()
	if b.versionColumn != "" {
		if original, ok := expectedVersion(b, entry); ok {
			query = query.Where("? = ?", bun.Ident(b.versionColumn), original)
		}
	}

	res, err := query.Exec(ctx)
	if err != nil {
		u.manager.logError(ctx, "delete failed", map[string]any{
			"entity_type": b.name,
			"entity_key":  entry.entityKey,
			"error":       err.Error(),
		})
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, u.conflict(ctx, b, entry, "delete")
	}
	return int(rows), nil
}

func (u *UnitOfWork) conflict(ctx context.Context, b *binding, entry *trackedEntity, operation string) error {
	u.manager.logError(ctx, "concurrency conflict", map[string]any{
		"entity_type": b.name,
		"entity_key":  entry.entityKey,
		"operation":   operation,
	})
	return ConflictError{
		EntityType: b.name,
		EntityKey:  entry.entityKey,
		Operation:  operation,
	}
}

// expectedVersion resolves the lock counter the row must still hold: the
// value snapshotted when the record was loaded or first staged, falling back
// to the record's current value when the snapshot carries no usable counter.
func expectedVersion(b *binding, entry *trackedEntity) (int64, bool) {
	if b.versionField == "" {
		return 0, false
	}
	if entry.snapshot != nil {
		if raw, ok := entry.snapshot[b.versionField]; ok {
			if version, ok := versionFromValue(raw); ok {
				return version, true
			}
		}
	}
	return b.versionOf(entry.entity)
}

func (u *UnitOfWork) selectByKey(ctx context.Context, b *binding, key string, dest any) (bool, error) {
	err := u.executor().NewSelect().
		Model(dest).
		Where("? = ?", bun.Ident(b.identifier), key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (u *UnitOfWork) bindingForEntity(entity any) (*binding, error) {
	if entity == nil {
		return nil, fmt.Errorf("uow: record is required")
	}
	b, ok := u.manager.bindings[reflect.TypeOf(entity)]
	if !ok {
		wrapped := u.manager.errorFactory(
			fmt.Sprintf("uow: no model registered for %T", entity),
			goerrors.CategoryBadInput,
		).WithTextCode(core.PersistenceErrorBadInput)
		return nil, wrapped.WithMetadata(map[string]any{"model": fmt.Sprintf("%T", entity)})
	}
	return b, nil
}

func invalidationsFor(staged []*trackedEntity) []cacheInvalidation {
	out := make([]cacheInvalidation, 0, len(staged))
	for _, entry := range staged {
		out = append(out, cacheInvalidation{model: entry.entityType, key: entry.entityKey})
	}
	return out
}

func (u *UnitOfWork) invalidate(ctx context.Context, invalidations []cacheInvalidation) {
	for _, invalidation := range invalidations {
		u.manager.invalidateCachedRecord(ctx, invalidation.model, invalidation.key)
	}
}

func (u *UnitOfWork) flushInvalidations(ctx context.Context) {
	pending := u.pendingInvalidations
	u.pendingInvalidations = nil
	u.invalidate(ctx, pending)
}
