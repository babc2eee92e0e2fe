// Package event defines the change-event envelope emitted by the write-side
// world aggregate and consumed by the projection layer.
package event

import (
	"strings"
	"time"
)

// Type identifies the type of a world change event.
type Type string

// World lifecycle events.
const (
	// TypeWorldSnapshotted records a full world snapshot emitted when the
	// aggregate is first materialized or rebuilt.
	TypeWorldSnapshotted Type = "world.snapshotted"
)

// Entity change events.
const (
	// TypeEntityAdded records an entity joining the world.
	TypeEntityAdded Type = "world.entity_added"
	// TypeEntityRemoved records an entity leaving the world.
	TypeEntityRemoved Type = "world.entity_removed"
	// TypeEntityUpdated records a non-positional entity state change.
	TypeEntityUpdated Type = "world.entity_updated"
	// TypeEntityMoved records an entity position change.
	TypeEntityMoved Type = "world.entity_moved"
)

// Event represents an immutable entry in the world change journal.
type Event struct {
	// WorldID is the world this event belongs to.
	WorldID string
	// Seq is the event sequence number within the world (starts at 1).
	// Assigned by the write-side aggregate on append.
	Seq uint64
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// EntityID is the ID of the entity affected (empty for snapshots).
	EntityID string
	// EntityType is the declared type of the affected entity, when known.
	EntityType string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}
