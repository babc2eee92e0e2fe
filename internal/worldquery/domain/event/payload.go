package event

// EntityState captures the flattened entity state carried by entity events
// and snapshot payloads.
type EntityState struct {
	ID                string         `json:"id"`
	EntityType        string         `json:"entity_type"`
	Name              string         `json:"name"`
	X                 float64        `json:"x"`
	Y                 float64        `json:"y"`
	Z                 float64        `json:"z"`
	PropertiesSummary map[string]any `json:"properties_summary,omitempty"`
}

// EntityAddedPayload captures the payload for world.entity_added events.
type EntityAddedPayload struct {
	AffectedEntityID   string       `json:"affected_entity_id"`
	AffectedEntityType string       `json:"affected_entity_type"`
	NewState           *EntityState `json:"new_state"`
}

// EntityRemovedPayload captures the payload for world.entity_removed events.
type EntityRemovedPayload struct {
	AffectedEntityID   string `json:"affected_entity_id"`
	AffectedEntityType string `json:"affected_entity_type,omitempty"`
}

// EntityUpdatedPayload captures the payload for world.entity_updated events.
type EntityUpdatedPayload struct {
	AffectedEntityID   string       `json:"affected_entity_id"`
	AffectedEntityType string       `json:"affected_entity_type,omitempty"`
	NewState           *EntityState `json:"new_state"`
}

// EntityMovedPayload captures the payload for world.entity_moved events.
type EntityMovedPayload struct {
	AffectedEntityID   string       `json:"affected_entity_id"`
	AffectedEntityType string       `json:"affected_entity_type,omitempty"`
	NewState           *EntityState `json:"new_state"`
}

// WorldSnapshotPayload captures the payload for world.snapshotted events.
// It mirrors the full snapshot the write-side aggregate exposes for
// (re)initialization of the read model.
type WorldSnapshotPayload struct {
	WorldStateID     string                 `json:"world_state_id"`
	WorldName        string                 `json:"world_name"`
	WorldDescription string                 `json:"world_description"`
	Status           string                 `json:"status"`
	WorldTime        float64                `json:"world_time"`
	WorldVersion     int64                  `json:"world_version"`
	Entities         map[string]EntityState `json:"entities"`
	Environment      map[string]any         `json:"environment,omitempty"`
	Metadata         map[string]any         `json:"metadata,omitempty"`
	// GridCellSize hints the coarse spatial bucket size; zero selects the
	// default.
	GridCellSize float64 `json:"grid_cell_size,omitempty"`
}
