// Package world implements the per-world denormalized read model ("world
// slice") and its query and projection operations.
package world

import (
	"time"

	"github.com/louisbranch/worldstate/internal/worldquery/domain/entity"
)

// DefaultGridCellSize is the coarse spatial bucket size used when the
// snapshot does not hint one.
const DefaultGridCellSize = 50.0

// MaxSearchableContentLength caps the searchable text blob built from world
// name, description, and entity names.
const MaxSearchableContentLength = 1000

// MaxEnvironmentEntries caps the environment summary carried by a slice.
const MaxEnvironmentEntries = 8

// SpatialBounds is the cached bounding box over all entities currently
// present in a slice. A nil *SpatialBounds means the slice holds no
// entities.
type SpatialBounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
	MinZ float64 `json:"min_z"`
	MaxZ float64 `json:"max_z"`
}

// Slice is the denormalized, heavily indexed per-world read model. It is the
// unit of projection and query: the projector mutates it one event at a
// time, and query handlers treat a fetched slice as an immutable value.
//
// The three entity views (AllEntities, EntitiesByType, ActiveEntityIDs) must
// stay mutually consistent after every mutation; AllEntities is the
// canonical source of truth within the slice.
type Slice struct {
	WorldStateID     string `json:"world_state_id"`
	WorldName        string `json:"world_name"`
	WorldDescription string `json:"world_description"`
	Status           string `json:"status"`
	// WorldTime is the in-world clock copied from the aggregate.
	WorldTime float64 `json:"world_time"`

	// WorldVersion is copied from the write-side aggregate at snapshot time
	// and is not advanced by incremental updates.
	WorldVersion int64 `json:"world_version"`
	// ProjectionVersion starts at 1 on snapshot creation and increments by
	// exactly 1 on every applied event. Purely local bookkeeping.
	ProjectionVersion int64 `json:"projection_version"`

	Bounds *SpatialBounds `json:"spatial_bounds,omitempty"`

	TotalEntities    int            `json:"total_entities"`
	EntityTypeCounts map[string]int `json:"entity_type_counts"`

	AllEntities     map[string]entity.Summary   `json:"all_entities"`
	EntitiesByType  map[string][]entity.Summary `json:"entities_by_type"`
	ActiveEntityIDs []string                    `json:"active_entity_ids"`

	EnvironmentSummary map[string]any `json:"environment_summary,omitempty"`
	WorldMetadata      map[string]any `json:"world_metadata,omitempty"`
	SearchableContent  string         `json:"searchable_content"`

	// GridCellSize keys the coarse spatial bucket index. The grid is an
	// optional secondary index; range queries do not depend on it.
	GridCellSize float64             `json:"grid_cell_size"`
	SpatialGrid  map[string][]string `json:"spatial_grid,omitempty"`

	LastEventTimestamp time.Time `json:"last_event_timestamp"`
}

// Clone returns a deep copy of the slice. Stores hand clones to readers so a
// query never observes a partially applied projection.
func (s *Slice) Clone() *Slice {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Bounds != nil {
		bounds := *s.Bounds
		clone.Bounds = &bounds
	}
	clone.EntityTypeCounts = make(map[string]int, len(s.EntityTypeCounts))
	for key, count := range s.EntityTypeCounts {
		clone.EntityTypeCounts[key] = count
	}
	clone.AllEntities = make(map[string]entity.Summary, len(s.AllEntities))
	for id, summary := range s.AllEntities {
		clone.AllEntities[id] = summary
	}
	clone.EntitiesByType = make(map[string][]entity.Summary, len(s.EntitiesByType))
	for entityType, records := range s.EntitiesByType {
		clone.EntitiesByType[entityType] = append([]entity.Summary(nil), records...)
	}
	clone.ActiveEntityIDs = append([]string(nil), s.ActiveEntityIDs...)
	clone.EnvironmentSummary = cloneAnyMap(s.EnvironmentSummary)
	clone.WorldMetadata = cloneAnyMap(s.WorldMetadata)
	clone.SpatialGrid = make(map[string][]string, len(s.SpatialGrid))
	for cell, ids := range s.SpatialGrid {
		clone.SpatialGrid[cell] = append([]string(nil), ids...)
	}
	return &clone
}

func cloneAnyMap(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	clone := make(map[string]any, len(values))
	for key, value := range values {
		clone[key] = value
	}
	return clone
}

// WorldSummary is the structured snapshot returned by summary queries.
type WorldSummary struct {
	WorldStateID      string         `json:"world_state_id"`
	WorldName         string         `json:"world_name"`
	Status            string         `json:"status"`
	WorldTime         float64        `json:"world_time"`
	TotalEntities     int            `json:"total_entities"`
	EntityTypeCounts  map[string]int `json:"entity_type_counts"`
	SpatialBounds     *SpatialBounds `json:"spatial_bounds,omitempty"`
	Environment       map[string]any `json:"environment_summary,omitempty"`
	WorldVersion      int64          `json:"world_version"`
	ProjectionVersion int64          `json:"projection_version"`
}

// Summary returns the structured world summary: identity, status, counts,
// spatial bounds (omitted when unset), environment, and both version
// counters.
func (s *Slice) Summary() WorldSummary {
	counts := make(map[string]int, len(s.EntityTypeCounts))
	for entityType, count := range s.EntityTypeCounts {
		counts[entityType] = count
	}
	summary := WorldSummary{
		WorldStateID:      s.WorldStateID,
		WorldName:         s.WorldName,
		Status:            s.Status,
		WorldTime:         s.WorldTime,
		TotalEntities:     s.TotalEntities,
		EntityTypeCounts:  counts,
		Environment:       cloneAnyMap(s.EnvironmentSummary),
		WorldVersion:      s.WorldVersion,
		ProjectionVersion: s.ProjectionVersion,
	}
	if s.Bounds != nil {
		bounds := *s.Bounds
		summary.SpatialBounds = &bounds
	}
	return summary
}
