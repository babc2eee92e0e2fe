package world

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/worldstate/internal/worldquery/domain/entity"
)

// Snapshot is the full world state the write-side aggregate exposes when a
// world is first materialized or a slice must be rebuilt from scratch.
type Snapshot struct {
	WorldStateID     string
	WorldName        string
	WorldDescription string
	Status           string
	WorldTime        float64
	WorldVersion     int64
	Entities         map[string]entity.Summary
	Environment      map[string]any
	Metadata         map[string]any
	// GridCellSize hints the coarse spatial bucket size; zero selects
	// DefaultGridCellSize.
	GridCellSize float64
}

// NewFromSnapshot builds a slice from a full snapshot, computing every
// derived field from scratch. ProjectionVersion starts at 1.
func NewFromSnapshot(snap Snapshot, now time.Time) (*Slice, error) {
	if strings.TrimSpace(snap.WorldStateID) == "" {
		return nil, fmt.Errorf("world state id is required")
	}

	cellSize := snap.GridCellSize
	if cellSize <= 0 {
		cellSize = DefaultGridCellSize
	}

	slice := &Slice{
		WorldStateID:       snap.WorldStateID,
		WorldName:          snap.WorldName,
		WorldDescription:   snap.WorldDescription,
		Status:             snap.Status,
		WorldTime:          snap.WorldTime,
		WorldVersion:       snap.WorldVersion,
		ProjectionVersion:  1,
		EntityTypeCounts:   make(map[string]int),
		AllEntities:        make(map[string]entity.Summary, len(snap.Entities)),
		EntitiesByType:     make(map[string][]entity.Summary),
		ActiveEntityIDs:    make([]string, 0, len(snap.Entities)),
		EnvironmentSummary: truncateEnvironment(snap.Environment),
		WorldMetadata:      cloneAnyMap(snap.Metadata),
		GridCellSize:       cellSize,
		SpatialGrid:        make(map[string][]string),
		LastEventTimestamp: now.UTC(),
	}

	ids := make([]string, 0, len(snap.Entities))
	for id := range snap.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		summary := snap.Entities[id]
		summary.ID = id
		slice.AllEntities[id] = summary
		slice.EntitiesByType[summary.EntityType] = append(slice.EntitiesByType[summary.EntityType], summary)
		slice.EntityTypeCounts[summary.EntityType]++
		slice.ActiveEntityIDs = append(slice.ActiveEntityIDs, id)
		slice.addToGrid(summary)
	}
	slice.TotalEntities = len(slice.AllEntities)
	slice.recomputeBounds()
	slice.SearchableContent = buildSearchableContent(slice)

	return slice, nil
}

// recomputeBounds recalculates the cached bounding box over all entities
// currently present, clearing it when the slice is empty.
func (s *Slice) recomputeBounds() {
	if len(s.AllEntities) == 0 {
		s.Bounds = nil
		return
	}
	bounds := SpatialBounds{
		MinX: math.Inf(1), MaxX: math.Inf(-1),
		MinY: math.Inf(1), MaxY: math.Inf(-1),
		MinZ: math.Inf(1), MaxZ: math.Inf(-1),
	}
	for _, summary := range s.AllEntities {
		bounds.MinX = math.Min(bounds.MinX, summary.X)
		bounds.MaxX = math.Max(bounds.MaxX, summary.X)
		bounds.MinY = math.Min(bounds.MinY, summary.Y)
		bounds.MaxY = math.Max(bounds.MaxY, summary.Y)
		bounds.MinZ = math.Min(bounds.MinZ, summary.Z)
		bounds.MaxZ = math.Max(bounds.MaxZ, summary.Z)
	}
	s.Bounds = &bounds
}

// cellKey buckets a position into the coarse grid.
func (s *Slice) cellKey(x, y float64) string {
	size := s.GridCellSize
	if size <= 0 {
		size = DefaultGridCellSize
	}
	return fmt.Sprintf("%d:%d", int(math.Floor(x/size)), int(math.Floor(y/size)))
}

func (s *Slice) addToGrid(summary entity.Summary) {
	if s.SpatialGrid == nil {
		s.SpatialGrid = make(map[string][]string)
	}
	key := s.cellKey(summary.X, summary.Y)
	for _, id := range s.SpatialGrid[key] {
		if id == summary.ID {
			return
		}
	}
	s.SpatialGrid[key] = append(s.SpatialGrid[key], summary.ID)
}

func (s *Slice) removeFromGrid(summary entity.Summary) {
	key := s.cellKey(summary.X, summary.Y)
	ids := s.SpatialGrid[key]
	for i, id := range ids {
		if id == summary.ID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.SpatialGrid, key)
		return
	}
	s.SpatialGrid[key] = ids
}

// truncateEnvironment keeps the environment summary small. Keys are ordered
// ascending so truncation is deterministic.
func truncateEnvironment(environment map[string]any) map[string]any {
	if len(environment) == 0 {
		return nil
	}
	keys := make([]string, 0, len(environment))
	for key := range environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) > MaxEnvironmentEntries {
		keys = keys[:MaxEnvironmentEntries]
	}
	truncated := make(map[string]any, len(keys))
	for _, key := range keys {
		truncated[key] = environment[key]
	}
	return truncated
}

// buildSearchableContent concatenates world name, description, and entity
// names into a bounded blob used for substring search. Entity names are
// appended in ascending id order so the blob is deterministic.
func buildSearchableContent(s *Slice) string {
	var builder strings.Builder
	builder.WriteString(s.WorldName)
	if s.WorldDescription != "" {
		builder.WriteString(" ")
		builder.WriteString(s.WorldDescription)
	}
	ids := make([]string, 0, len(s.AllEntities))
	for id := range s.AllEntities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if builder.Len() >= MaxSearchableContentLength {
			break
		}
		name := s.AllEntities[id].Name
		if name == "" {
			continue
		}
		builder.WriteString(" ")
		builder.WriteString(name)
	}
	content := builder.String()
	if len(content) > MaxSearchableContentLength {
		content = content[:MaxSearchableContentLength]
	}
	return content
}
