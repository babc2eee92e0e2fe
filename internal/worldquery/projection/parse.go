package projection

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/worldstate/internal/platform/errors"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/entity"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/event"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/world"
)

func parseSnapshotPayload(evt event.Event) (world.Snapshot, error) {
	var payload event.WorldSnapshotPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return world.Snapshot{}, apperrors.Wrap(apperrors.CodeProjectionEventInvalid,
			fmt.Sprintf("decode %s payload", evt.Type), err)
	}
	worldStateID := strings.TrimSpace(payload.WorldStateID)
	if worldStateID == "" {
		worldStateID = evt.WorldID
	}

	entities := make(map[string]entity.Summary, len(payload.Entities))
	for id, state := range payload.Entities {
		entities[id] = summaryFromState(id, state, evt)
	}
	return world.Snapshot{
		WorldStateID:     worldStateID,
		WorldName:        payload.WorldName,
		WorldDescription: payload.WorldDescription,
		Status:           payload.Status,
		WorldTime:        payload.WorldTime,
		WorldVersion:     payload.WorldVersion,
		Entities:         entities,
		Environment:      payload.Environment,
		Metadata:         payload.Metadata,
		GridCellSize:     payload.GridCellSize,
	}, nil
}

func parseEntityPayload(evt event.Event, kind world.ChangeKind) (world.Change, error) {
	affectedID, affectedType, newState, err := decodeEntityPayload(evt, kind)
	if err != nil {
		return world.Change{}, err
	}

	entityID := strings.TrimSpace(affectedID)
	if entityID == "" {
		entityID = strings.TrimSpace(evt.EntityID)
	}
	if entityID == "" {
		return world.Change{}, apperrors.New(apperrors.CodeProjectionEventInvalid,
			fmt.Sprintf("%s requires an affected entity id", evt.Type))
	}
	entityType := strings.TrimSpace(affectedType)
	if entityType == "" {
		entityType = strings.TrimSpace(evt.EntityType)
	}

	change := world.Change{Kind: kind, EntityID: entityID, EntityType: entityType}
	if kind == world.ChangeEntityRemoved {
		return change, nil
	}

	if newState == nil {
		return world.Change{}, apperrors.New(apperrors.CodeProjectionEventInvalid,
			fmt.Sprintf("%s requires new entity state", evt.Type))
	}
	summary := summaryFromState(entityID, *newState, evt)
	if summary.EntityType == "" {
		summary.EntityType = entityType
	}
	change.Entity = &summary
	if change.EntityType == "" {
		change.EntityType = summary.EntityType
	}
	return change, nil
}

// decodeEntityPayload unpacks the payload struct matching the change
// kind. Removed events carry no state.
func decodeEntityPayload(evt event.Event, kind world.ChangeKind) (affectedID, affectedType string, newState *event.EntityState, err error) {
	if len(evt.PayloadJSON) == 0 {
		return "", "", nil, nil
	}

	switch kind {
	case world.ChangeEntityAdded:
		var payload event.EntityAddedPayload
		err = json.Unmarshal(evt.PayloadJSON, &payload)
		affectedID, affectedType, newState = payload.AffectedEntityID, payload.AffectedEntityType, payload.NewState
	case world.ChangeEntityRemoved:
		var payload event.EntityRemovedPayload
		err = json.Unmarshal(evt.PayloadJSON, &payload)
		affectedID, affectedType = payload.AffectedEntityID, payload.AffectedEntityType
	case world.ChangeEntityUpdated:
		var payload event.EntityUpdatedPayload
		err = json.Unmarshal(evt.PayloadJSON, &payload)
		affectedID, affectedType, newState = payload.AffectedEntityID, payload.AffectedEntityType, payload.NewState
	case world.ChangeEntityMoved:
		var payload event.EntityMovedPayload
		err = json.Unmarshal(evt.PayloadJSON, &payload)
		affectedID, affectedType, newState = payload.AffectedEntityID, payload.AffectedEntityType, payload.NewState
	default:
		return "", "", nil, apperrors.New(apperrors.CodeProjectionEventInvalid,
			fmt.Sprintf("unhandled change kind %q", kind))
	}
	if err != nil {
		return "", "", nil, apperrors.Wrap(apperrors.CodeProjectionEventInvalid,
			fmt.Sprintf("decode %s payload", evt.Type), err)
	}
	return affectedID, affectedType, newState, nil
}

func summaryFromState(id string, state event.EntityState, evt event.Event) entity.Summary {
	if strings.TrimSpace(state.ID) != "" {
		id = state.ID
	}
	return entity.Summary{
		ID:                id,
		EntityType:        state.EntityType,
		Name:              state.Name,
		X:                 state.X,
		Y:                 state.Y,
		Z:                 state.Z,
		PropertiesSummary: entity.SummarizeProperties(state.PropertiesSummary),
		LastUpdated:       ensureTimestamp(evt.Timestamp),
	}
}

// ensureTimestamp normalizes timestamps so projections always persist UTC,
// defaulting to now for events that do not set time.
func ensureTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}
