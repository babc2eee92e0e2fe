// Package storage defines persistence contracts for the world query
// read model.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/worldstate/internal/worldquery/domain/event"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/world"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrSeqConflict indicates an appended event reuses a sequence number
// already present in a world's journal.
var ErrSeqConflict = errors.New("event sequence conflict")

// WorldSliceStore persists denormalized world slices keyed by world
// state ID.
type WorldSliceStore interface {
	PutSlice(ctx context.Context, slice *world.Slice) error
	GetSlice(ctx context.Context, worldStateID string) (*world.Slice, error)
	ListSlices(ctx context.Context) ([]*world.Slice, error)
	DeleteSlice(ctx context.Context, worldStateID string) error
}

// EventStore persists the ordered per-world event journal the
// projection replays from.
type EventStore interface {
	AppendEvent(ctx context.Context, evt event.Event) error
	// ListEvents returns up to limit events for one world with
	// Seq > afterSeq, in ascending Seq order.
	ListEvents(ctx context.Context, worldStateID string, afterSeq uint64, limit int) ([]event.Event, error)
	// ListWorlds returns the distinct world state IDs present in the
	// journal, ordered ascending.
	ListWorlds(ctx context.Context) ([]string, error)
}

// Watermark records how far a world's projection has advanced through
// its journal.
type Watermark struct {
	WorldStateID string
	LastSeq      uint64
	UpdatedAt    time.Time
}

// WatermarkStore persists projection progress per world.
type WatermarkStore interface {
	PutWatermark(ctx context.Context, mark Watermark) error
	GetWatermark(ctx context.Context, worldStateID string) (Watermark, error)
	ListWatermarks(ctx context.Context) ([]Watermark, error)
}

// Store is the combined persistence surface the projector and query
// handlers share.
type Store interface {
	WorldSliceStore
	EventStore
	WatermarkStore
}
