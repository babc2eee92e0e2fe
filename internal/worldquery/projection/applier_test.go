package projection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/worldstate/internal/platform/errors"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/event"
	"github.com/louisbranch/worldstate/internal/worldquery/storage/memory"
)

var applyNow = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return applyNow }

func mustPayload(t *testing.T, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func snapshotEvent(t *testing.T, worldID string, seq uint64) event.Event {
	t.Helper()
	return event.Event{
		WorldID:   worldID,
		Seq:       seq,
		Timestamp: applyNow,
		Type:      event.TypeWorldSnapshotted,
		PayloadJSON: mustPayload(t, event.WorldSnapshotPayload{
			WorldStateID:     worldID,
			WorldName:        "Whispering Forest",
			WorldDescription: "An old forest",
			Status:           "active",
			WorldVersion:     2,
			Entities: map[string]event.EntityState{
				"e1": {ID: "e1", EntityType: "npc", Name: "Aldric", X: 0, Y: 0},
				"e2": {ID: "e2", EntityType: "npc", Name: "Bryn", X: 5, Y: 5},
			},
		}),
	}
}

func addedEvent(t *testing.T, worldID, entityID string, seq uint64, x, y float64) event.Event {
	t.Helper()
	return event.Event{
		WorldID:   worldID,
		Seq:       seq,
		Timestamp: applyNow,
		Type:      event.TypeEntityAdded,
		EntityID:  entityID,
		PayloadJSON: mustPayload(t, event.EntityAddedPayload{
			AffectedEntityID:   entityID,
			AffectedEntityType: "prop",
			NewState: &event.EntityState{
				ID: entityID, EntityType: "prop", Name: "Thing", X: x, Y: y,
			},
		}),
	}
}

func assertProjectionCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("err = %v, want *apperrors.Error", err)
	}
	if appErr.Code != code {
		t.Fatalf("code = %s, want %s", appErr.Code, code)
	}
}

func TestApplySnapshotCreatesSlice(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	applier := Applier{Slices: store, Clock: testClock}

	if err := applier.Apply(context.Background(), snapshotEvent(t, "w1", 1)); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}

	slice, err := store.GetSlice(context.Background(), "w1")
	if err != nil {
		t.Fatalf("get slice: %v", err)
	}
	if slice.TotalEntities != 2 || slice.WorldVersion != 2 || slice.ProjectionVersion != 1 {
		t.Fatalf("slice = total %d versions %d/%d", slice.TotalEntities, slice.WorldVersion, slice.ProjectionVersion)
	}
}

func TestApplySnapshotReplacesExistingSlice(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	applier := Applier{Slices: store, Clock: testClock}

	if err := applier.Apply(context.Background(), snapshotEvent(t, "w1", 1)); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}
	if err := applier.Apply(context.Background(), addedEvent(t, "w1", "e3", 2, 3, 3)); err != nil {
		t.Fatalf("apply added: %v", err)
	}
	// A rebuild snapshot resets the slice wholesale.
	if err := applier.Apply(context.Background(), snapshotEvent(t, "w1", 3)); err != nil {
		t.Fatalf("apply second snapshot: %v", err)
	}

	slice, err := store.GetSlice(context.Background(), "w1")
	if err != nil {
		t.Fatalf("get slice: %v", err)
	}
	if slice.TotalEntities != 2 || slice.ProjectionVersion != 1 {
		t.Fatalf("slice = total %d projection %d, want 2/1", slice.TotalEntities, slice.ProjectionVersion)
	}
}

func TestApplyEntityAddedMutatesSlice(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	applier := Applier{Slices: store, Clock: testClock}

	if err := applier.Apply(context.Background(), snapshotEvent(t, "w1", 1)); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}
	if err := applier.Apply(context.Background(), addedEvent(t, "w1", "e3", 2, 3, 3)); err != nil {
		t.Fatalf("apply added: %v", err)
	}

	slice, err := store.GetSlice(context.Background(), "w1")
	if err != nil {
		t.Fatalf("get slice: %v", err)
	}
	if slice.TotalEntities != 3 || slice.ProjectionVersion != 2 {
		t.Fatalf("slice = total %d projection %d, want 3/2", slice.TotalEntities, slice.ProjectionVersion)
	}
	if slice.EntityTypeCounts["prop"] != 1 {
		t.Fatalf("counts = %v", slice.EntityTypeCounts)
	}
}

func TestApplyEntityRemoved(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	applier := Applier{Slices: store, Clock: testClock}

	if err := applier.Apply(context.Background(), snapshotEvent(t, "w1", 1)); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}
	removed := event.Event{
		WorldID:   "w1",
		Seq:       2,
		Timestamp: applyNow,
		Type:      event.TypeEntityRemoved,
		EntityID:  "e2",
		PayloadJSON: mustPayload(t, event.EntityRemovedPayload{
			AffectedEntityID: "e2",
		}),
	}
	if err := applier.Apply(context.Background(), removed); err != nil {
		t.Fatalf("apply removed: %v", err)
	}

	slice, err := store.GetSlice(context.Background(), "w1")
	if err != nil {
		t.Fatalf("get slice: %v", err)
	}
	if slice.TotalEntities != 1 {
		t.Fatalf("total = %d, want 1", slice.TotalEntities)
	}
	if _, ok := slice.AllEntities["e2"]; ok {
		t.Fatal("e2 still present after removal")
	}
}

func TestApplyEntityMoved(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	applier := Applier{Slices: store, Clock: testClock}

	if err := applier.Apply(context.Background(), snapshotEvent(t, "w1", 1)); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}
	moved := event.Event{
		WorldID:   "w1",
		Seq:       2,
		Timestamp: applyNow,
		Type:      event.TypeEntityMoved,
		EntityID:  "e2",
		PayloadJSON: mustPayload(t, event.EntityMovedPayload{
			AffectedEntityID:   "e2",
			AffectedEntityType: "npc",
			NewState: &event.EntityState{
				ID: "e2", EntityType: "npc", Name: "Bryn", X: -40, Y: 12,
			},
		}),
	}
	if err := applier.Apply(context.Background(), moved); err != nil {
		t.Fatalf("apply moved: %v", err)
	}

	slice, err := store.GetSlice(context.Background(), "w1")
	if err != nil {
		t.Fatalf("get slice: %v", err)
	}
	got := slice.AllEntities["e2"]
	if got.X != -40 || got.Y != 12 {
		t.Fatalf("e2 position = (%v, %v), want (-40, 12)", got.X, got.Y)
	}
	if slice.Bounds == nil || slice.Bounds.MinX != -40 {
		t.Fatalf("bounds = %+v, want MinX -40", slice.Bounds)
	}
}

func TestApplyEntityUpdated(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	applier := Applier{Slices: store, Clock: testClock}

	if err := applier.Apply(context.Background(), snapshotEvent(t, "w1", 1)); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}
	updated := event.Event{
		WorldID:   "w1",
		Seq:       2,
		Timestamp: applyNow,
		Type:      event.TypeEntityUpdated,
		EntityID:  "e1",
		PayloadJSON: mustPayload(t, event.EntityUpdatedPayload{
			AffectedEntityID:   "e1",
			AffectedEntityType: "npc",
			NewState: &event.EntityState{
				ID: "e1", EntityType: "npc", Name: "Aldric the Elder", X: 0, Y: 0,
			},
		}),
	}
	if err := applier.Apply(context.Background(), updated); err != nil {
		t.Fatalf("apply updated: %v", err)
	}

	slice, err := store.GetSlice(context.Background(), "w1")
	if err != nil {
		t.Fatalf("get slice: %v", err)
	}
	if got := slice.AllEntities["e1"].Name; got != "Aldric the Elder" {
		t.Fatalf("e1 name = %q, want %q", got, "Aldric the Elder")
	}
}

func TestApplyEntityEventWithoutSliceFails(t *testing.T) {
	t.Parallel()

	applier := Applier{Slices: memory.NewStore(), Clock: testClock}

	err := applier.Apply(context.Background(), addedEvent(t, "ghost", "e1", 1, 0, 0))
	assertProjectionCode(t, err, apperrors.CodeProjectionApply)
}

func TestApplyMalformedPayloadFails(t *testing.T) {
	t.Parallel()

	applier := Applier{Slices: memory.NewStore(), Clock: testClock}

	evt := event.Event{
		WorldID:     "w1",
		Seq:         1,
		Type:        event.TypeWorldSnapshotted,
		PayloadJSON: []byte("{not json"),
	}
	err := applier.Apply(context.Background(), evt)
	assertProjectionCode(t, err, apperrors.CodeProjectionEventInvalid)
}

func TestApplyAddedWithoutStateFails(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	applier := Applier{Slices: store, Clock: testClock}
	if err := applier.Apply(context.Background(), snapshotEvent(t, "w1", 1)); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}

	evt := event.Event{
		WorldID:     "w1",
		Seq:         2,
		Type:        event.TypeEntityAdded,
		EntityID:    "e9",
		PayloadJSON: mustPayload(t, event.EntityAddedPayload{AffectedEntityID: "e9"}),
	}
	err := applier.Apply(context.Background(), evt)
	assertProjectionCode(t, err, apperrors.CodeProjectionEventInvalid)
}

func TestApplyUnknownTypeFails(t *testing.T) {
	t.Parallel()

	applier := Applier{Slices: memory.NewStore(), Clock: testClock}

	err := applier.Apply(context.Background(), event.Event{
		WorldID: "w1",
		Seq:     1,
		Type:    event.Type("world.exploded"),
	})
	assertProjectionCode(t, err, apperrors.CodeProjectionEventInvalid)
}

func TestApplyMissingEntityIDFails(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	applier := Applier{Slices: store, Clock: testClock}
	if err := applier.Apply(context.Background(), snapshotEvent(t, "w1", 1)); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}

	err := applier.Apply(context.Background(), event.Event{
		WorldID: "w1",
		Seq:     2,
		Type:    event.TypeEntityRemoved,
	})
	assertProjectionCode(t, err, apperrors.CodeProjectionEventInvalid)
}
