package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	apperrors "github.com/louisbranch/worldstate/internal/platform/errors"
	"github.com/louisbranch/worldstate/internal/platform/timeouts"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/world"
	"github.com/louisbranch/worldstate/internal/worldquery/storage"
)

// Handler executes one kind of query descriptor against the slice
// store.
type Handler interface {
	Execute(ctx context.Context, descriptor Query) (Result, error)
}

// caseFolder normalizes strings for case-insensitive search matching.
var caseFolder = cases.Fold()

// fetchSlice loads one world slice, translating a missing record into
// found=false and any other store failure into an execution error.
func fetchSlice(ctx context.Context, slices storage.WorldSliceStore, worldStateID string) (*world.Slice, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.SliceFetch)
	defer cancel()

	slice, err := slices.GetSlice(ctx, worldStateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, apperrors.Wrap(apperrors.CodeQueryExecution, "fetch world slice", err)
	}
	return slice, true, nil
}

func wrongDescriptor(handler string, descriptor Query) error {
	return apperrors.New(apperrors.CodeQueryExecution,
		fmt.Sprintf("%s handler cannot execute %s descriptor", handler, descriptor.Kind()))
}

// paginate returns the page [offset, offset+limit) of items plus the
// unsliced total. A zero limit means no cap.
func paginate[T any](items []T, limit, offset int) ([]T, int) {
	total := len(items)
	if offset >= total {
		return nil, total
	}
	page := items[offset:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return page, total
}

// WorldSliceHandler answers GetWorldSliceQuery descriptors.
type WorldSliceHandler struct {
	Slices storage.WorldSliceStore
}

// Execute implements Handler.
func (h *WorldSliceHandler) Execute(ctx context.Context, descriptor Query) (Result, error) {
	q, ok := descriptor.(*GetWorldSliceQuery)
	if !ok {
		return nil, wrongDescriptor("world slice", descriptor)
	}
	started := time.Now()

	slice, found, err := fetchSlice(ctx, h.Slices, q.WorldStateID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &WorldSliceResult{WorldID: q.WorldStateID}, nil
	}

	result := &WorldSliceResult{
		WorldID: q.WorldStateID,
		Found:   true,
		QueryMetadata: &Metadata{
			QueryKind:         q.Kind(),
			IsCircular:        q.IsCircular(),
			IsBounded:         q.IsBounded(),
			TypeFiltered:      len(q.EntityTypes) > 0,
			Paginated:         q.Limit > 0 || q.Offset > 0,
			WorldVersion:      slice.WorldVersion,
			ProjectionVersion: slice.ProjectionVersion,
		},
	}
	if q.IncludeSummary {
		summary := slice.Summary()
		result.WorldSummary = &summary
	}
	if q.IncludeEnvironment {
		result.Environment = slice.EnvironmentSummary
	}
	if q.IncludeMetadata {
		result.WorldMetadata = slice.WorldMetadata
	}
	if q.IncludeBounds {
		result.SpatialBounds = slice.Bounds
	}

	// A query extent disjoint from the cached bounds cannot match any
	// entity, so skip the scan entirely.
	if !h.extentIntersects(q, slice) {
		result.QueryTimeMS = float64(time.Since(started)) / float64(time.Millisecond)
		return result, nil
	}

	var hits []SliceEntity
	if q.IsCircular() {
		for _, hit := range slice.EntitiesInArea(*q.CenterX, *q.CenterY, *q.Radius, q.EntityTypes) {
			distance := hit.Distance
			hits = append(hits, SliceEntity{Summary: hit.Summary, Distance: &distance})
		}
	} else {
		minX, maxX := boundOr(q.MinX, slice.Bounds.MinX), boundOr(q.MaxX, slice.Bounds.MaxX)
		minY, maxY := boundOr(q.MinY, slice.Bounds.MinY), boundOr(q.MaxY, slice.Bounds.MaxY)
		for _, summary := range slice.EntitiesInBounds(minX, maxX, minY, maxY, q.EntityTypes) {
			hits = append(hits, SliceEntity{Summary: summary})
		}
	}

	page, total := paginate(hits, q.Limit, q.Offset)
	result.Entities = page
	result.EntityCount = len(page)
	result.TotalEntities = total
	result.QueryTimeMS = float64(time.Since(started)) / float64(time.Millisecond)
	return result, nil
}

func (h *WorldSliceHandler) extentIntersects(q *GetWorldSliceQuery, slice *world.Slice) bool {
	if q.IsCircular() {
		return slice.IntersectsCircle(*q.CenterX, *q.CenterY, *q.Radius)
	}
	if slice.Bounds == nil {
		return false
	}
	minX, maxX := boundOr(q.MinX, slice.Bounds.MinX), boundOr(q.MaxX, slice.Bounds.MaxX)
	minY, maxY := boundOr(q.MinY, slice.Bounds.MinY), boundOr(q.MaxY, slice.Bounds.MaxY)
	return slice.IntersectsRect(minX, maxX, minY, maxY)
}

// boundOr substitutes the slice's own bound for an unset axis so
// partially-specified rectangles behave as half-open extents.
func boundOr(value *float64, fallback float64) float64 {
	if value != nil {
		return *value
	}
	return fallback
}

// WorldSummaryHandler answers GetWorldSummaryQuery descriptors.
type WorldSummaryHandler struct {
	Slices storage.WorldSliceStore
}

// Execute implements Handler.
func (h *WorldSummaryHandler) Execute(ctx context.Context, descriptor Query) (Result, error) {
	q, ok := descriptor.(*GetWorldSummaryQuery)
	if !ok {
		return nil, wrongDescriptor("world summary", descriptor)
	}

	slice, found, err := fetchSlice(ctx, h.Slices, q.WorldStateID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &WorldSummaryResult{WorldID: q.WorldStateID}, nil
	}

	summary := slice.Summary()
	return &WorldSummaryResult{
		WorldID:      q.WorldStateID,
		Found:        true,
		WorldSummary: &summary,
		QueryMetadata: &Metadata{
			QueryKind:         q.Kind(),
			WorldVersion:      slice.WorldVersion,
			ProjectionVersion: slice.ProjectionVersion,
		},
	}, nil
}

// EntitiesInAreaHandler answers GetEntitiesInAreaQuery descriptors.
type EntitiesInAreaHandler struct {
	Slices storage.WorldSliceStore
}

// Execute implements Handler.
func (h *EntitiesInAreaHandler) Execute(ctx context.Context, descriptor Query) (Result, error) {
	q, ok := descriptor.(*GetEntitiesInAreaQuery)
	if !ok {
		return nil, wrongDescriptor("entities in area", descriptor)
	}

	slice, found, err := fetchSlice(ctx, h.Slices, q.WorldStateID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &EntitiesInAreaResult{WorldID: q.WorldStateID}, nil
	}

	hits := slice.EntitiesInArea(q.CenterX, q.CenterY, q.Radius, q.EntityTypes)
	page, total := paginate(hits, q.Limit, q.Offset)
	return &EntitiesInAreaResult{
		WorldID:       q.WorldStateID,
		Found:         true,
		Entities:      page,
		EntityCount:   len(page),
		TotalEntities: total,
		QueryMetadata: &Metadata{
			QueryKind:         q.Kind(),
			IsCircular:        true,
			TypeFiltered:      len(q.EntityTypes) > 0,
			Paginated:         q.Limit > 0 || q.Offset > 0,
			WorldVersion:      slice.WorldVersion,
			ProjectionVersion: slice.ProjectionVersion,
		},
	}, nil
}

// EntitiesByTypeHandler answers GetEntitiesByTypeQuery descriptors.
type EntitiesByTypeHandler struct {
	Slices storage.WorldSliceStore
}

// Execute implements Handler.
func (h *EntitiesByTypeHandler) Execute(ctx context.Context, descriptor Query) (Result, error) {
	q, ok := descriptor.(*GetEntitiesByTypeQuery)
	if !ok {
		return nil, wrongDescriptor("entities by type", descriptor)
	}

	slice, found, err := fetchSlice(ctx, h.Slices, q.WorldStateID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &EntitiesByTypeResult{WorldID: q.WorldStateID, EntityType: q.EntityType}, nil
	}

	matches := slice.EntitiesOfType(q.EntityType, 0)
	page, total := paginate(matches, q.Limit, q.Offset)
	return &EntitiesByTypeResult{
		WorldID:       q.WorldStateID,
		Found:         true,
		EntityType:    q.EntityType,
		Entities:      page,
		EntityCount:   len(page),
		TotalEntities: total,
		QueryMetadata: &Metadata{
			QueryKind:         q.Kind(),
			TypeFiltered:      true,
			Paginated:         q.Limit > 0 || q.Offset > 0,
			WorldVersion:      slice.WorldVersion,
			ProjectionVersion: slice.ProjectionVersion,
		},
	}, nil
}

// SearchWorldsHandler answers SearchWorldsQuery descriptors.
type SearchWorldsHandler struct {
	Slices storage.WorldSliceStore
}

// Execute implements Handler.
func (h *SearchWorldsHandler) Execute(ctx context.Context, descriptor Query) (Result, error) {
	q, ok := descriptor.(*SearchWorldsQuery)
	if !ok {
		return nil, wrongDescriptor("search worlds", descriptor)
	}

	slices, err := h.Slices.ListSlices(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeQueryExecution, "list world slices", err)
	}

	term := caseFolder.String(strings.TrimSpace(q.SearchTerm))
	var hits []WorldSearchHit
	for _, slice := range slices {
		if q.Status != "" && slice.Status != q.Status {
			continue
		}
		if !strings.Contains(caseFolder.String(slice.SearchableContent), term) {
			continue
		}
		hit := WorldSearchHit{
			WorldStateID: slice.WorldStateID,
			WorldName:    slice.WorldName,
			Status:       slice.Status,
		}
		if q.IncludeCounts {
			hit.TotalEntities = slice.TotalEntities
			counts := make(map[string]int, len(slice.EntityTypeCounts))
			for entityType, count := range slice.EntityTypeCounts {
				counts[entityType] = count
			}
			hit.EntityTypeCounts = counts
		}
		hits = append(hits, hit)
	}

	page, total := paginate(hits, q.Limit, q.Offset)
	return &SearchWorldsResult{
		Worlds:      page,
		WorldCount:  len(page),
		TotalWorlds: total,
		QueryMetadata: &Metadata{
			QueryKind: q.Kind(),
			Paginated: q.Limit > 0 || q.Offset > 0,
		},
	}, nil
}
