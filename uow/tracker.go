package uow

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-unitofwork/core"
)

// trackedEntity pairs a live record with its staged state and the field
// snapshot captured when the record was last loaded or flushed.
type trackedEntity struct {
	key        string
	entityType string
	entityKey  string
	entity     any
	state      core.EntityState
	snapshot   map[string]any
}

// changeTracker records the staged state of every entity touched inside one
// unit-of-work scope. Entries flush in first-staged order. The tracker is not
// safe for concurrent use; the owning scope serializes access.
type changeTracker struct {
	entries map[string]*trackedEntity
	order   []string
}

func newChangeTracker() *changeTracker {
	return &changeTracker{entries: make(map[string]*trackedEntity)}
}

// trackRead registers a freshly materialized record as unchanged with a field
// snapshot. Records already tracked keep their staged state; a re-read never
// clobbers pending work.
func (t *changeTracker) trackRead(entityType, entityKey string, entity any) {
	key := trackerKey(entityType, entityKey)
	if key == "" {
		return
	}
	if _, ok := t.entries[key]; ok {
		return
	}
	t.insert(&trackedEntity{
		key:        key,
		entityType: entityType,
		entityKey:  entityKey,
		entity:     entity,
		state:      core.EntityStateUnchanged,
		snapshot:   snapshotFields(entity),
	})
}

// stageCreate marks a record for insert. Creating over a staged delete
// downgrades to an update so the row is rewritten instead of duplicated.
func (t *changeTracker) stageCreate(entityType, entityKey string, entity any) core.EntityState {
	key := trackerKey(entityType, entityKey)
	if key == "" {
		return core.EntityStateDetached
	}
	entry, ok := t.entries[key]
	if !ok {
		t.insert(&trackedEntity{
			key:        key,
			entityType: entityType,
			entityKey:  entityKey,
			entity:     entity,
			state:      core.EntityStateAdded,
		})
		return core.EntityStateAdded
	}

	entry.entity = entity
	switch entry.state {
	case core.EntityStateAdded:
		return core.EntityStateAdded
	default:
		entry.state = core.EntityStateModified
		return core.EntityStateModified
	}
}

// stageUpdate marks a record for update. A record staged as added stays
// added; the pending insert already carries the new values. Records staged
// without a prior read are snapshotted at staging time so their original
// values survive retries of the flush.
func (t *changeTracker) stageUpdate(entityType, entityKey string, entity any) core.EntityState {
	key := trackerKey(entityType, entityKey)
	if key == "" {
		return core.EntityStateDetached
	}
	entry, ok := t.entries[key]
	if !ok {
		t.insert(&trackedEntity{
			key:        key,
			entityType: entityType,
			entityKey:  entityKey,
			entity:     entity,
			state:      core.EntityStateModified,
			snapshot:   snapshotFields(entity),
		})
		return core.EntityStateModified
	}

	entry.entity = entity
	if entry.state == core.EntityStateAdded {
		return core.EntityStateAdded
	}
	entry.state = core.EntityStateModified
	return core.EntityStateModified
}

// stageDelete marks a record for delete. Deleting a staged add cancels the
// insert and stops tracking the record. Returns false when the record has no
// usable identity.
func (t *changeTracker) stageDelete(entityType, entityKey string, entity any) bool {
	key := trackerKey(entityType, entityKey)
	if key == "" {
		return false
	}
	entry, ok := t.entries[key]
	if !ok {
		t.insert(&trackedEntity{
			key:        key,
			entityType: entityType,
			entityKey:  entityKey,
			entity:     entity,
			state:      core.EntityStateDeleted,
			snapshot:   snapshotFields(entity),
		})
		return true
	}

	if entry.state == core.EntityStateAdded {
		t.remove(key)
		return true
	}
	entry.entity = entity
	entry.state = core.EntityStateDeleted
	return true
}

// detach stops tracking a record. Returns whether it was tracked.
func (t *changeTracker) detach(entityType, entityKey string) bool {
	key := trackerKey(entityType, entityKey)
	if _, ok := t.entries[key]; !ok {
		return false
	}
	t.remove(key)
	return true
}

// state reports the tracked state of a record. Untracked records are
// detached.
func (t *changeTracker) state(entityType, entityKey string) core.EntityState {
	entry, ok := t.entries[trackerKey(entityType, entityKey)]
	if !ok {
		return core.EntityStateDetached
	}
	return entry.state
}

// resnapshot refreshes a tracked record's snapshot from its current field
// values and resets it to unchanged. Used after a reload.
func (t *changeTracker) resnapshot(entityType, entityKey string, entity any) {
	entry, ok := t.entries[trackerKey(entityType, entityKey)]
	if !ok {
		return
	}
	entry.entity = entity
	entry.state = core.EntityStateUnchanged
	entry.snapshot = snapshotFields(entity)
}

// staged returns the entries with pending writes, in staging order.
func (t *changeTracker) staged() []*trackedEntity {
	var out []*trackedEntity
	for _, key := range t.order {
		entry, ok := t.entries[key]
		if !ok {
			continue
		}
		switch entry.state {
		case core.EntityStateAdded, core.EntityStateModified, core.EntityStateDeleted:
			out = append(out, entry)
		}
	}
	return out
}

// acceptChanges settles the tracker after a successful flush: added and
// modified entries become unchanged with fresh snapshots, deleted entries
// stop being tracked.
func (t *changeTracker) acceptChanges() {
	for _, key := range append([]string(nil), t.order...) {
		entry, ok := t.entries[key]
		if !ok {
			continue
		}
		switch entry.state {
		case core.EntityStateAdded, core.EntityStateModified:
			entry.state = core.EntityStateUnchanged
			entry.snapshot = snapshotFields(entry.entity)
		case core.EntityStateDeleted:
			t.remove(key)
		}
	}
}

// debugInfo captures a record's tracked state and, for loaded records, the
// per-field deltas between the snapshot and the current values.
func (t *changeTracker) debugInfo(entityType, entityKey string, entity any) core.EntityDebugInfo {
	info := core.EntityDebugInfo{
		EntityType: entityType,
		EntityKey:  entityKey,
		State:      core.EntityStateDetached,
		CapturedAt: time.Now().UTC(),
	}
	entry, ok := t.entries[trackerKey(entityType, entityKey)]
	if !ok {
		return info
	}
	info.State = entry.state
	switch entry.state {
	case core.EntityStateUnchanged, core.EntityStateModified, core.EntityStateDeleted:
		info.Deltas = fieldDeltas(entry.snapshot, entity)
	}
	return info
}

// snapshotFor returns the field snapshot captured when the record was loaded
// or first staged, or nil when the record is untracked.
func (t *changeTracker) snapshotFor(entityType, entityKey string) map[string]any {
	entry, ok := t.entries[trackerKey(entityType, entityKey)]
	if !ok {
		return nil
	}
	return entry.snapshot
}

func (t *changeTracker) insert(entry *trackedEntity) {
	t.entries[entry.key] = entry
	t.order = append(t.order, entry.key)
}

func (t *changeTracker) remove(key string) {
	delete(t.entries, key)
	for i, existing := range t.order {
		if existing == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func trackerKey(entityType, entityKey string) string {
	entityType = strings.TrimSpace(entityType)
	entityKey = strings.TrimSpace(entityKey)
	if entityType == "" || entityKey == "" {
		return ""
	}
	return entityType + ":" + entityKey
}

// snapshotFields captures the exported fields of a struct record into a flat
// map keyed by field name. Embedded markers such as bun.BaseModel are
// skipped. Non-struct records yield no snapshot.
func snapshotFields(entity any) map[string]any {
	value := reflect.ValueOf(entity)
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil
	}

	valueType := value.Type()
	snapshot := make(map[string]any, valueType.NumField())
	for i := 0; i < valueType.NumField(); i++ {
		field := valueType.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		snapshot[field.Name] = value.Field(i).Interface()
	}
	return snapshot
}

// fieldDeltas compares a snapshot against the record's current values and
// reports every changed field, sorted by name.
func fieldDeltas(snapshot map[string]any, entity any) []core.FieldDelta {
	if len(snapshot) == 0 {
		return nil
	}
	current := snapshotFields(entity)
	if current == nil {
		return nil
	}

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	var deltas []core.FieldDelta
	for _, name := range names {
		original := snapshot[name]
		if !reflect.DeepEqual(original, current[name]) {
			deltas = append(deltas, core.FieldDelta{
				Field:    name,
				Original: original,
				Current:  current[name],
			})
		}
	}
	return deltas
}
