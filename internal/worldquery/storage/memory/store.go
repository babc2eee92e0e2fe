// Package memory provides an in-memory storage implementation used by
// tests and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/louisbranch/worldstate/internal/worldquery/domain/event"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/world"
	"github.com/louisbranch/worldstate/internal/worldquery/storage"
)

// Store keeps slices, events, and watermarks in process memory. Slices
// are deep-copied on both write and read so callers never share mutable
// state with the store.
type Store struct {
	mu         sync.RWMutex
	slices     map[string]*world.Slice
	events     map[string][]event.Event
	watermarks map[string]storage.Watermark
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		slices:     make(map[string]*world.Slice),
		events:     make(map[string][]event.Event),
		watermarks: make(map[string]storage.Watermark),
	}
}

// PutSlice stores a deep copy of the slice.
func (s *Store) PutSlice(ctx context.Context, slice *world.Slice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if slice == nil || slice.WorldStateID == "" {
		return fmt.Errorf("put slice: world state id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slices[slice.WorldStateID] = slice.Clone()
	return nil
}

// GetSlice returns a deep copy of the stored slice.
func (s *Store) GetSlice(ctx context.Context, worldStateID string) (*world.Slice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	slice, ok := s.slices[worldStateID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return slice.Clone(), nil
}

// ListSlices returns deep copies of all stored slices ordered by world
// state ID.
func (s *Store) ListSlices(ctx context.Context) ([]*world.Slice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.slices))
	for id := range s.slices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	slices := make([]*world.Slice, 0, len(ids))
	for _, id := range ids {
		slices = append(slices, s.slices[id].Clone())
	}
	return slices, nil
}

// DeleteSlice removes a stored slice. Deleting an absent slice is not
// an error.
func (s *Store) DeleteSlice(ctx context.Context, worldStateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slices, worldStateID)
	return nil
}

// AppendEvent appends one event to a world's journal. Sequence numbers
// must be strictly increasing per world.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if evt.WorldID == "" || !evt.Type.IsValid() || evt.Seq == 0 {
		return fmt.Errorf("append event: world id, type, and seq are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	journal := s.events[evt.WorldID]
	if len(journal) > 0 && journal[len(journal)-1].Seq >= evt.Seq {
		return storage.ErrSeqConflict
	}
	s.events[evt.WorldID] = append(journal, evt)
	return nil
}

// ListEvents returns up to limit events with Seq > afterSeq in ascending
// order.
func (s *Store) ListEvents(ctx context.Context, worldStateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var page []event.Event
	for _, evt := range s.events[worldStateID] {
		if evt.Seq <= afterSeq {
			continue
		}
		page = append(page, evt)
		if limit > 0 && len(page) >= limit {
			break
		}
	}
	return page, nil
}

// ListWorlds returns the distinct world state IDs present in the
// journal, ordered ascending.
func (s *Store) ListWorlds(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// PutWatermark stores a projection watermark.
func (s *Store) PutWatermark(ctx context.Context, mark storage.Watermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mark.WorldStateID == "" {
		return fmt.Errorf("put watermark: world state id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[mark.WorldStateID] = mark
	return nil
}

// GetWatermark returns a projection watermark.
func (s *Store) GetWatermark(ctx context.Context, worldStateID string) (storage.Watermark, error) {
	if err := ctx.Err(); err != nil {
		return storage.Watermark{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	mark, ok := s.watermarks[worldStateID]
	if !ok {
		return storage.Watermark{}, storage.ErrNotFound
	}
	return mark, nil
}

// ListWatermarks returns all watermarks ordered by world state ID.
func (s *Store) ListWatermarks(ctx context.Context) ([]storage.Watermark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.watermarks))
	for id := range s.watermarks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	marks := make([]storage.Watermark, 0, len(ids))
	for _, id := range ids {
		marks = append(marks, s.watermarks[id])
	}
	return marks, nil
}

var _ storage.Store = (*Store)(nil)
