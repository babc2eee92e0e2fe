package world

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/worldstate/internal/worldquery/domain/entity"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSnapshot() Snapshot {
	return Snapshot{
		WorldStateID:     "w1",
		WorldName:        "Whispering Forest",
		WorldDescription: "An old forest",
		Status:           "active",
		WorldTime:        10.5,
		WorldVersion:     7,
		Entities: map[string]entity.Summary{
			"e1": {ID: "e1", EntityType: "npc", Name: "Aldric", X: 0, Y: 0, Z: 0},
			"e2": {ID: "e2", EntityType: "npc", Name: "Bryn", X: 5, Y: 5, Z: 0},
			"e3": {ID: "e3", EntityType: "prop", Name: "Obelisk", X: 100, Y: 100, Z: 0},
		},
		Environment: map[string]any{"weather": "rain"},
		Metadata:    map[string]any{"biome": "forest"},
	}
}

func mustSlice(t *testing.T, snap Snapshot) *Slice {
	t.Helper()
	slice, err := NewFromSnapshot(snap, testNow)
	if err != nil {
		t.Fatalf("NewFromSnapshot: %v", err)
	}
	return slice
}

// assertInvariants checks the cross-view consistency contract after a
// mutation: counts, id sets, type lists, and bounds must all agree with
// AllEntities.
func assertInvariants(t *testing.T, s *Slice) {
	t.Helper()
	if s.TotalEntities != len(s.AllEntities) {
		t.Fatalf("TotalEntities = %d, want %d", s.TotalEntities, len(s.AllEntities))
	}
	countSum := 0
	for entityType, count := range s.EntityTypeCounts {
		if count <= 0 {
			t.Fatalf("EntityTypeCounts[%q] = %d, want > 0", entityType, count)
		}
		countSum += count
	}
	if countSum != s.TotalEntities {
		t.Fatalf("sum of type counts = %d, want %d", countSum, s.TotalEntities)
	}
	if len(s.ActiveEntityIDs) != len(s.AllEntities) {
		t.Fatalf("ActiveEntityIDs size = %d, want %d", len(s.ActiveEntityIDs), len(s.AllEntities))
	}
	for _, id := range s.ActiveEntityIDs {
		if _, ok := s.AllEntities[id]; !ok {
			t.Fatalf("active id %q missing from AllEntities", id)
		}
	}
	grouped := 0
	for entityType, records := range s.EntitiesByType {
		for _, record := range records {
			grouped++
			canonical, ok := s.AllEntities[record.ID]
			if !ok {
				t.Fatalf("type list %q holds unknown entity %q", entityType, record.ID)
			}
			if canonical.EntityType != entityType {
				t.Fatalf("entity %q grouped under %q but has type %q", record.ID, entityType, canonical.EntityType)
			}
			if !reflect.DeepEqual(canonical, record) {
				t.Fatalf("type list holds stale copy of %q: %+v != %+v", record.ID, record, canonical)
			}
		}
	}
	if grouped != s.TotalEntities {
		t.Fatalf("grouped entity count = %d, want %d", grouped, s.TotalEntities)
	}
	if len(s.AllEntities) == 0 {
		if s.Bounds != nil {
			t.Fatalf("empty slice has bounds %+v, want nil", s.Bounds)
		}
		return
	}
	if s.Bounds == nil {
		t.Fatal("non-empty slice has nil bounds")
	}
	for _, summary := range s.AllEntities {
		if summary.X < s.Bounds.MinX || summary.X > s.Bounds.MaxX ||
			summary.Y < s.Bounds.MinY || summary.Y > s.Bounds.MaxY ||
			summary.Z < s.Bounds.MinZ || summary.Z > s.Bounds.MaxZ {
			t.Fatalf("entity %q at (%v,%v,%v) outside bounds %+v", summary.ID, summary.X, summary.Y, summary.Z, s.Bounds)
		}
	}
}

func TestNewFromSnapshot(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	if slice.ProjectionVersion != 1 {
		t.Fatalf("ProjectionVersion = %d, want 1", slice.ProjectionVersion)
	}
	if slice.WorldVersion != 7 {
		t.Fatalf("WorldVersion = %d, want 7", slice.WorldVersion)
	}
	if slice.TotalEntities != 3 {
		t.Fatalf("TotalEntities = %d, want 3", slice.TotalEntities)
	}
	if slice.EntityTypeCounts["npc"] != 2 || slice.EntityTypeCounts["prop"] != 1 {
		t.Fatalf("EntityTypeCounts = %v", slice.EntityTypeCounts)
	}
	if slice.Bounds == nil || slice.Bounds.MaxX != 100 || slice.Bounds.MinX != 0 {
		t.Fatalf("Bounds = %+v", slice.Bounds)
	}
	if slice.GridCellSize != DefaultGridCellSize {
		t.Fatalf("GridCellSize = %v, want default %v", slice.GridCellSize, DefaultGridCellSize)
	}
	assertInvariants(t, slice)
}

func TestNewFromSnapshotEmptyWorld(t *testing.T) {
	slice := mustSlice(t, Snapshot{WorldStateID: "w-empty", WorldName: "Void"})

	if slice.TotalEntities != 0 {
		t.Fatalf("TotalEntities = %d, want 0", slice.TotalEntities)
	}
	if slice.Bounds != nil {
		t.Fatalf("Bounds = %+v, want nil", slice.Bounds)
	}
	assertInvariants(t, slice)
}

func TestNewFromSnapshotRequiresWorldID(t *testing.T) {
	if _, err := NewFromSnapshot(Snapshot{}, testNow); err == nil {
		t.Fatal("expected error for missing world state id")
	}
}

func TestNewFromSnapshotSearchableContent(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	for _, want := range []string{"Whispering Forest", "An old forest", "Aldric", "Bryn", "Obelisk"} {
		if !strings.Contains(slice.SearchableContent, want) {
			t.Fatalf("searchable content %q missing %q", slice.SearchableContent, want)
		}
	}
}

func TestSearchableContentIsCapped(t *testing.T) {
	snap := newTestSnapshot()
	long := make([]byte, 2*MaxSearchableContentLength)
	for i := range long {
		long[i] = 'x'
	}
	snap.WorldDescription = string(long)

	slice := mustSlice(t, snap)
	if len(slice.SearchableContent) > MaxSearchableContentLength {
		t.Fatalf("searchable content length = %d, want <= %d", len(slice.SearchableContent), MaxSearchableContentLength)
	}
}

func TestApplyEntityAdded(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	err := slice.Apply(Change{
		Kind:     ChangeEntityAdded,
		EntityID: "e4",
		Entity:   &entity.Summary{ID: "e4", EntityType: "prop", Name: "Lantern", X: 3, Y: 3, Z: 0},
	}, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if slice.TotalEntities != 4 {
		t.Fatalf("TotalEntities = %d, want 4", slice.TotalEntities)
	}
	if slice.EntityTypeCounts["prop"] != 2 {
		t.Fatalf("prop count = %d, want 2", slice.EntityTypeCounts["prop"])
	}
	if slice.ProjectionVersion != 2 {
		t.Fatalf("ProjectionVersion = %d, want 2", slice.ProjectionVersion)
	}
	// (3,3) sits inside the existing bounds, so max edges stay put.
	if slice.Bounds.MaxX != 100 || slice.Bounds.MaxY != 100 {
		t.Fatalf("Bounds = %+v, want max 100/100", slice.Bounds)
	}
	assertInvariants(t, slice)
}

func TestApplyEntityRemovedShrinksBounds(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	// e3 at (100,100) defines the max corner; removing it shrinks bounds to e2.
	if err := slice.Apply(Change{Kind: ChangeEntityRemoved, EntityID: "e3"}, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if slice.TotalEntities != 2 {
		t.Fatalf("TotalEntities = %d, want 2", slice.TotalEntities)
	}
	if slice.Bounds.MaxX != 5 || slice.Bounds.MaxY != 5 {
		t.Fatalf("Bounds = %+v, want max 5/5", slice.Bounds)
	}
	if _, ok := slice.EntityTypeCounts["prop"]; ok {
		t.Fatalf("prop count survived removal: %v", slice.EntityTypeCounts)
	}
	assertInvariants(t, slice)
}

func TestApplyEntityRemovedLastEntityClearsBounds(t *testing.T) {
	slice := mustSlice(t, Snapshot{
		WorldStateID: "w1",
		WorldName:    "Solo",
		Entities: map[string]entity.Summary{
			"e1": {ID: "e1", EntityType: "npc", Name: "Last", X: 1, Y: 2, Z: 3},
		},
	})

	if err := slice.Apply(Change{Kind: ChangeEntityRemoved, EntityID: "e1"}, testNow); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if slice.Bounds != nil {
		t.Fatalf("Bounds = %+v, want nil after last removal", slice.Bounds)
	}
	assertInvariants(t, slice)
}

func TestApplyEntityUpdatedPatchesTypeList(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	err := slice.Apply(Change{
		Kind:     ChangeEntityUpdated,
		EntityID: "e2",
		Entity:   &entity.Summary{ID: "e2", EntityType: "npc", Name: "Bryn the Bold", X: 5, Y: 5, Z: 0},
	}, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	for _, record := range slice.EntitiesByType["npc"] {
		if record.ID == "e2" && record.Name != "Bryn the Bold" {
			t.Fatalf("type list holds stale name %q", record.Name)
		}
	}
	assertInvariants(t, slice)
}

func TestApplyEntityMovedRecomputesBounds(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	err := slice.Apply(Change{
		Kind:     ChangeEntityMoved,
		EntityID: "e3",
		Entity:   &entity.Summary{ID: "e3", EntityType: "prop", Name: "Obelisk", X: -50, Y: 2, Z: 0},
	}, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if slice.Bounds.MinX != -50 || slice.Bounds.MaxX != 5 {
		t.Fatalf("Bounds = %+v, want min -50 max 5", slice.Bounds)
	}
	assertInvariants(t, slice)
}

func TestApplyEntityTypeChangeMovesBetweenLists(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	err := slice.Apply(Change{
		Kind:     ChangeEntityUpdated,
		EntityID: "e3",
		Entity:   &entity.Summary{ID: "e3", EntityType: "monument", Name: "Obelisk", X: 100, Y: 100, Z: 0},
	}, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, ok := slice.EntityTypeCounts["prop"]; ok {
		t.Fatalf("prop count survived type change: %v", slice.EntityTypeCounts)
	}
	if slice.EntityTypeCounts["monument"] != 1 {
		t.Fatalf("monument count = %d, want 1", slice.EntityTypeCounts["monument"])
	}
	assertInvariants(t, slice)
}

func TestApplyUnknownEntityIsNoOp(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	for _, kind := range []ChangeKind{ChangeEntityRemoved, ChangeEntityUpdated, ChangeEntityMoved} {
		before := slice.TotalEntities
		change := Change{Kind: kind, EntityID: "ghost"}
		if kind != ChangeEntityRemoved {
			change.Entity = &entity.Summary{ID: "ghost", EntityType: "npc"}
		}
		if err := slice.Apply(change, testNow); err != nil {
			t.Fatalf("Apply(%s) for unknown id: %v", kind, err)
		}
		if slice.TotalEntities != before {
			t.Fatalf("Apply(%s) changed TotalEntities", kind)
		}
		assertInvariants(t, slice)
	}
}

func TestApplyAlwaysBumpsProjectionVersion(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	changes := []Change{
		{Kind: ChangeEntityAdded, EntityID: "e4", Entity: &entity.Summary{ID: "e4", EntityType: "prop", X: 3, Y: 3}},
		{Kind: ChangeEntityRemoved, EntityID: "ghost"},
		{Kind: ChangeEntityMoved, EntityID: "e1", Entity: &entity.Summary{ID: "e1", EntityType: "npc", Name: "Aldric", X: 9, Y: 9}},
		{Kind: ChangeEntityRemoved, EntityID: "e4"},
	}
	for i, change := range changes {
		if err := slice.Apply(change, testNow.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Apply[%d]: %v", i, err)
		}
		want := int64(2 + i)
		if slice.ProjectionVersion != want {
			t.Fatalf("ProjectionVersion after event %d = %d, want %d", i, slice.ProjectionVersion, want)
		}
		assertInvariants(t, slice)
	}
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())
	if err := slice.Apply(Change{Kind: "entity_teleported"}, testNow); err == nil {
		t.Fatal("expected error for unknown change kind")
	}
}

func TestApplyAddedWithoutStateFails(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())
	if err := slice.Apply(Change{Kind: ChangeEntityAdded, EntityID: "e9"}, testNow); err == nil {
		t.Fatal("expected error for add without entity state")
	}
}

func TestEntitiesInAreaOrdering(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	hits := slice.EntitiesInArea(0, 0, 10, nil)
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].ID != "e1" || hits[1].ID != "e2" {
		t.Fatalf("hit order = [%s %s], want [e1 e2]", hits[0].ID, hits[1].ID)
	}
	if hits[0].Distance != 0 {
		t.Fatalf("e1 distance = %v, want 0", hits[0].Distance)
	}
	want := math.Sqrt(50)
	if math.Abs(hits[1].Distance-want) > 1e-9 {
		t.Fatalf("e2 distance = %v, want %v", hits[1].Distance, want)
	}
}

func TestEntitiesInAreaTieBreaksByID(t *testing.T) {
	slice := mustSlice(t, Snapshot{
		WorldStateID: "w1",
		WorldName:    "Ring",
		Entities: map[string]entity.Summary{
			"b": {ID: "b", EntityType: "npc", Name: "B", X: 3, Y: 0},
			"a": {ID: "a", EntityType: "npc", Name: "A", X: 0, Y: 3},
			"c": {ID: "c", EntityType: "npc", Name: "C", X: -3, Y: 0},
		},
	})

	hits := slice.EntitiesInArea(0, 0, 5, nil)
	if len(hits) != 3 {
		t.Fatalf("hits = %d, want 3", len(hits))
	}
	for i, want := range []string{"a", "b", "c"} {
		if hits[i].ID != want {
			t.Fatalf("hits[%d] = %s, want %s", i, hits[i].ID, want)
		}
	}
}

func TestEntitiesInAreaTypeFilter(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	hits := slice.EntitiesInArea(0, 0, 200, []string{"prop"})
	if len(hits) != 1 || hits[0].ID != "e3" {
		t.Fatalf("hits = %+v, want only e3", hits)
	}
}

func TestEntitiesInAreaAllWithinRadius(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	radius := 10.0
	for _, hit := range slice.EntitiesInArea(1, 1, radius, nil) {
		if hit.Distance > radius+1e-9 {
			t.Fatalf("hit %s distance %v exceeds radius %v", hit.ID, hit.Distance, radius)
		}
	}
}

func TestEntitiesInBounds(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	matches := slice.EntitiesInBounds(0, 10, 0, 10, nil)
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	for _, match := range matches {
		if match.X < 0 || match.X > 10 || match.Y < 0 || match.Y > 10 {
			t.Fatalf("entity %s at (%v,%v) outside bounds", match.ID, match.X, match.Y)
		}
	}
}

func TestEntitiesInBoundsInclusiveEdges(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	matches := slice.EntitiesInBounds(5, 100, 5, 100, nil)
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2 (edges are inclusive)", len(matches))
	}
}

func TestEntitiesOfType(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	npcs := slice.EntitiesOfType("npc", 0)
	if len(npcs) != 2 {
		t.Fatalf("npcs = %d, want 2", len(npcs))
	}
	limited := slice.EntitiesOfType("npc", 1)
	if len(limited) != 1 {
		t.Fatalf("limited npcs = %d, want 1", len(limited))
	}
	if none := slice.EntitiesOfType("dragon", 0); len(none) != 0 {
		t.Fatalf("dragon entities = %d, want 0", len(none))
	}
}

func TestEntityByID(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	summary, ok := slice.EntityByID("e1")
	if !ok || summary.Name != "Aldric" {
		t.Fatalf("EntityByID(e1) = %+v, %v", summary, ok)
	}
	if _, ok := slice.EntityByID("ghost"); ok {
		t.Fatal("expected missing entity")
	}
}

func TestIntersectsCircle(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	if !slice.IntersectsCircle(0, 0, 1) {
		t.Fatal("expected circle at origin to intersect bounds")
	}
	if slice.IntersectsCircle(1000, 1000, 10) {
		t.Fatal("expected distant circle to miss bounds")
	}

	empty := mustSlice(t, Snapshot{WorldStateID: "w-empty"})
	if empty.IntersectsCircle(0, 0, 1000) {
		t.Fatal("empty slice intersects nothing")
	}
}

func TestIntersectsRect(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	if !slice.IntersectsRect(-10, 1, -10, 1) {
		t.Fatal("expected overlapping rect to intersect")
	}
	if slice.IntersectsRect(500, 600, 500, 600) {
		t.Fatal("expected distant rect to miss bounds")
	}
}

func TestSummary(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())

	summary := slice.Summary()
	if summary.WorldStateID != "w1" || summary.TotalEntities != 3 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.WorldVersion != 7 || summary.ProjectionVersion != 1 {
		t.Fatalf("summary versions = %d/%d, want 7/1", summary.WorldVersion, summary.ProjectionVersion)
	}
	if summary.SpatialBounds == nil {
		t.Fatal("expected bounds in summary")
	}

	empty := mustSlice(t, Snapshot{WorldStateID: "w-empty"})
	if empty.Summary().SpatialBounds != nil {
		t.Fatal("expected nil bounds in empty summary")
	}
}

func TestCloneIsDeep(t *testing.T) {
	slice := mustSlice(t, newTestSnapshot())
	clone := slice.Clone()

	err := clone.Apply(Change{Kind: ChangeEntityRemoved, EntityID: "e1"}, testNow)
	if err != nil {
		t.Fatalf("Apply on clone: %v", err)
	}

	if slice.TotalEntities != 3 {
		t.Fatalf("original TotalEntities = %d, want 3 after mutating clone", slice.TotalEntities)
	}
	if _, ok := slice.AllEntities["e1"]; !ok {
		t.Fatal("original lost e1 after mutating clone")
	}
	assertInvariants(t, slice)
	assertInvariants(t, clone)
}
