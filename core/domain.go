package core

import (
	"fmt"
	"strings"
	"time"
)

type EntityState string

const (
	EntityStateUnchanged EntityState = "unchanged"
	EntityStateAdded     EntityState = "added"
	EntityStateModified  EntityState = "modified"
	EntityStateDeleted   EntityState = "deleted"
	EntityStateDetached  EntityState = "detached"
)

// Tracked reports whether entities in this state stay registered with a
// unit-of-work scope. Detached entities are forgotten.
func (s EntityState) Tracked() bool {
	switch s {
	case EntityStateUnchanged, EntityStateAdded, EntityStateModified, EntityStateDeleted:
		return true
	}
	return false
}

type OperationKind string

const (
	OperationKindMutating OperationKind = "mutating"
	OperationKindReadOnly OperationKind = "read_only"
)

// FieldDelta captures one staged field change: the value loaded from the
// store and the value currently held on the tracked entity.
type FieldDelta struct {
	Field    string
	Original any
	Current  any
}

// EntityDebugInfo is a diagnostic snapshot of one tracked entity. It has no
// behavioral effect on the owning scope.
type EntityDebugInfo struct {
	EntityType string
	EntityKey  string
	State      EntityState
	Deltas     []FieldDelta
	CapturedAt time.Time
}

func (i EntityDebugInfo) String() string {
	entityType := strings.TrimSpace(i.EntityType)
	if entityType == "" {
		entityType = "unknown"
	}
	state := string(i.State)
	if strings.TrimSpace(state) == "" {
		state = "untracked"
	}

	var b strings.Builder
	b.WriteString(entityType)
	if key := strings.TrimSpace(i.EntityKey); key != "" {
		b.WriteString("[")
		b.WriteString(key)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(state)
	for _, delta := range i.Deltas {
		b.WriteString(fmt.Sprintf("\n  %s: %v -> %v", delta.Field, delta.Original, delta.Current))
	}
	return b.String()
}
