package world

import (
	"fmt"
	"time"

	"github.com/louisbranch/worldstate/internal/worldquery/domain/entity"
)

// ChangeKind identifies an incremental change applied to a slice.
type ChangeKind string

const (
	// ChangeEntityAdded inserts a new entity into the slice.
	ChangeEntityAdded ChangeKind = "entity_added"
	// ChangeEntityRemoved deletes an entity from the slice.
	ChangeEntityRemoved ChangeKind = "entity_removed"
	// ChangeEntityUpdated replaces an entity's state wholesale.
	ChangeEntityUpdated ChangeKind = "entity_updated"
	// ChangeEntityMoved replaces an entity's state after a position change.
	ChangeEntityMoved ChangeKind = "entity_moved"
)

// Change is one incremental mutation decoded from a write-side change event.
type Change struct {
	Kind       ChangeKind
	EntityID   string
	EntityType string
	// Entity carries the full replacement state for added/updated/moved
	// changes. Removed changes carry no state.
	Entity *entity.Summary
}

// Apply mutates the slice for one change event, recomputing the affected
// derived views. An event referencing an entity the slice does not hold is
// a no-op, not an error. Every applied event bumps LastEventTimestamp and
// increments ProjectionVersion by exactly 1, including no-ops.
func (s *Slice) Apply(change Change, now time.Time) error {
	switch change.Kind {
	case ChangeEntityAdded:
		if err := s.applyAdded(change); err != nil {
			return err
		}
	case ChangeEntityRemoved:
		s.applyRemoved(change)
	case ChangeEntityUpdated, ChangeEntityMoved:
		if err := s.applyReplaced(change); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown change kind %q", change.Kind)
	}

	s.recomputeBounds()
	s.SearchableContent = buildSearchableContent(s)
	s.LastEventTimestamp = now.UTC()
	s.ProjectionVersion++
	return nil
}

func (s *Slice) applyAdded(change Change) error {
	if change.Entity == nil {
		return fmt.Errorf("entity_added change carries no entity state")
	}
	summary := *change.Entity
	if summary.ID == "" {
		summary.ID = change.EntityID
	}
	if summary.ID == "" {
		return fmt.Errorf("entity_added change carries no entity id")
	}

	// A duplicate add degrades to a replace so counts stay consistent.
	if _, exists := s.AllEntities[summary.ID]; exists {
		return s.replaceEntity(summary)
	}

	if s.AllEntities == nil {
		s.AllEntities = make(map[string]entity.Summary)
	}
	if s.EntitiesByType == nil {
		s.EntitiesByType = make(map[string][]entity.Summary)
	}
	if s.EntityTypeCounts == nil {
		s.EntityTypeCounts = make(map[string]int)
	}

	s.AllEntities[summary.ID] = summary
	s.EntitiesByType[summary.EntityType] = append(s.EntitiesByType[summary.EntityType], summary)
	s.EntityTypeCounts[summary.EntityType]++
	if !s.hasActiveID(summary.ID) {
		s.ActiveEntityIDs = append(s.ActiveEntityIDs, summary.ID)
	}
	s.TotalEntities++
	s.addToGrid(summary)
	return nil
}

func (s *Slice) applyRemoved(change Change) {
	existing, ok := s.AllEntities[change.EntityID]
	if !ok {
		return
	}

	delete(s.AllEntities, change.EntityID)
	s.removeFromTypeList(existing)
	if count := s.EntityTypeCounts[existing.EntityType] - 1; count > 0 {
		s.EntityTypeCounts[existing.EntityType] = count
	} else {
		delete(s.EntityTypeCounts, existing.EntityType)
	}
	for i, id := range s.ActiveEntityIDs {
		if id == change.EntityID {
			s.ActiveEntityIDs = append(s.ActiveEntityIDs[:i], s.ActiveEntityIDs[i+1:]...)
			break
		}
	}
	s.TotalEntities--
	s.removeFromGrid(existing)
}

func (s *Slice) applyReplaced(change Change) error {
	if change.Entity == nil {
		return fmt.Errorf("%s change carries no entity state", change.Kind)
	}
	summary := *change.Entity
	if summary.ID == "" {
		summary.ID = change.EntityID
	}
	if _, ok := s.AllEntities[summary.ID]; !ok {
		// Unknown entity id: no-op per the projection contract.
		return nil
	}
	return s.replaceEntity(summary)
}

// replaceEntity swaps an existing entity's record in both AllEntities and
// its type list, moving it between type lists when the type changed.
func (s *Slice) replaceEntity(summary entity.Summary) error {
	existing := s.AllEntities[summary.ID]
	s.AllEntities[summary.ID] = summary
	s.removeFromGrid(existing)
	s.addToGrid(summary)

	if existing.EntityType == summary.EntityType {
		records := s.EntitiesByType[summary.EntityType]
		for i, record := range records {
			if record.ID == summary.ID {
				records[i] = summary
				break
			}
		}
		return nil
	}

	s.removeFromTypeList(existing)
	if count := s.EntityTypeCounts[existing.EntityType] - 1; count > 0 {
		s.EntityTypeCounts[existing.EntityType] = count
	} else {
		delete(s.EntityTypeCounts, existing.EntityType)
	}
	s.EntitiesByType[summary.EntityType] = append(s.EntitiesByType[summary.EntityType], summary)
	s.EntityTypeCounts[summary.EntityType]++
	return nil
}

func (s *Slice) removeFromTypeList(summary entity.Summary) {
	records := s.EntitiesByType[summary.EntityType]
	for i, record := range records {
		if record.ID == summary.ID {
			records = append(records[:i], records[i+1:]...)
			break
		}
	}
	if len(records) == 0 {
		delete(s.EntitiesByType, summary.EntityType)
		return
	}
	s.EntitiesByType[summary.EntityType] = records
}

func (s *Slice) hasActiveID(id string) bool {
	for _, active := range s.ActiveEntityIDs {
		if active == id {
			return true
		}
	}
	return false
}
