// Package query implements the read-side query descriptors, handlers,
// and dispatch registry for world slices.
package query

import (
	"strings"

	apperrors "github.com/louisbranch/worldstate/internal/platform/errors"
)

// Kind identifies a query descriptor type.
type Kind string

// Recognized query kinds.
const (
	KindGetWorldSlice     Kind = "get_world_slice"
	KindGetWorldSummary   Kind = "get_world_summary"
	KindGetEntitiesInArea Kind = "get_entities_in_area"
	KindGetEntitiesByType Kind = "get_entities_by_type"
	KindSearchWorlds      Kind = "search_worlds"
)

// Query is a validated, immutable query descriptor. Descriptors are
// constructed through their New* constructors, which validate eagerly
// so an invalid descriptor never reaches a handler.
type Query interface {
	Kind() Kind
}

// Float64 returns a pointer to v, for optional descriptor parameters.
func Float64(v float64) *float64 {
	return &v
}

// GetWorldSliceQuery requests a filtered view of one world slice. The
// spatial extent is either circular (center plus radius) or rectangular
// (axis bounds), never both.
type GetWorldSliceQuery struct {
	WorldStateID string

	CenterX *float64
	CenterY *float64
	Radius  *float64

	MinX *float64
	MaxX *float64
	MinY *float64
	MaxY *float64

	EntityTypes []string
	Limit       int
	Offset      int

	IncludeSummary     bool
	IncludeEnvironment bool
	IncludeMetadata    bool
	IncludeBounds      bool
}

// Kind implements Query.
func (q *GetWorldSliceQuery) Kind() Kind { return KindGetWorldSlice }

// IsCircular reports whether the descriptor carries a circular extent.
func (q *GetWorldSliceQuery) IsCircular() bool {
	return q.CenterX != nil || q.CenterY != nil || q.Radius != nil
}

// IsBounded reports whether the descriptor carries a rectangular
// extent.
func (q *GetWorldSliceQuery) IsBounded() bool {
	return q.MinX != nil || q.MaxX != nil || q.MinY != nil || q.MaxY != nil
}

// NewGetWorldSliceQuery validates and returns a world slice query.
func NewGetWorldSliceQuery(q GetWorldSliceQuery) (*GetWorldSliceQuery, error) {
	if strings.TrimSpace(q.WorldStateID) == "" {
		return nil, apperrors.New(apperrors.CodeQueryWorldIDEmpty, "world state id is required")
	}
	circular := q.IsCircular()
	bounded := q.IsBounded()
	if circular && bounded {
		return nil, apperrors.New(apperrors.CodeQueryShapeConflict, "circular and rectangular parameters are mutually exclusive")
	}
	if !circular && !bounded {
		return nil, apperrors.New(apperrors.CodeQueryShapeMissing, "either circular or rectangular parameters are required")
	}
	if circular {
		if q.CenterX == nil || q.CenterY == nil || q.Radius == nil {
			return nil, apperrors.New(apperrors.CodeQueryRadiusInvalid, "center_x, center_y, and radius are all required for circular queries")
		}
		if *q.Radius <= 0 {
			return nil, apperrors.New(apperrors.CodeQueryRadiusInvalid, "radius must be positive")
		}
	}
	if bounded {
		if q.MinX != nil && q.MaxX != nil && *q.MinX >= *q.MaxX {
			return nil, apperrors.New(apperrors.CodeQueryBoundsInvalid, "min_x must be less than max_x")
		}
		if q.MinY != nil && q.MaxY != nil && *q.MinY >= *q.MaxY {
			return nil, apperrors.New(apperrors.CodeQueryBoundsInvalid, "min_y must be less than max_y")
		}
	}
	if err := validateEntityTypes(q.EntityTypes); err != nil {
		return nil, err
	}
	if err := validatePage(q.Limit, q.Offset); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetWorldSummaryQuery requests the summary view of one world slice.
type GetWorldSummaryQuery struct {
	WorldStateID string
}

// Kind implements Query.
func (q *GetWorldSummaryQuery) Kind() Kind { return KindGetWorldSummary }

// NewGetWorldSummaryQuery validates and returns a world summary query.
func NewGetWorldSummaryQuery(worldStateID string) (*GetWorldSummaryQuery, error) {
	if strings.TrimSpace(worldStateID) == "" {
		return nil, apperrors.New(apperrors.CodeQueryWorldIDEmpty, "world state id is required")
	}
	return &GetWorldSummaryQuery{WorldStateID: worldStateID}, nil
}

// GetEntitiesInAreaQuery requests entities within a circular area of
// one world, ordered by distance from the center.
type GetEntitiesInAreaQuery struct {
	WorldStateID string
	CenterX      float64
	CenterY      float64
	Radius       float64
	EntityTypes  []string
	Limit        int
	Offset       int
}

// Kind implements Query.
func (q *GetEntitiesInAreaQuery) Kind() Kind { return KindGetEntitiesInArea }

// NewGetEntitiesInAreaQuery validates and returns an area query.
func NewGetEntitiesInAreaQuery(q GetEntitiesInAreaQuery) (*GetEntitiesInAreaQuery, error) {
	if strings.TrimSpace(q.WorldStateID) == "" {
		return nil, apperrors.New(apperrors.CodeQueryWorldIDEmpty, "world state id is required")
	}
	if q.Radius <= 0 {
		return nil, apperrors.New(apperrors.CodeQueryRadiusInvalid, "radius must be positive")
	}
	if err := validateEntityTypes(q.EntityTypes); err != nil {
		return nil, err
	}
	if err := validatePage(q.Limit, q.Offset); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetEntitiesByTypeQuery requests entities of one declared type from
// one world.
type GetEntitiesByTypeQuery struct {
	WorldStateID string
	EntityType   string
	Limit        int
	Offset       int
}

// Kind implements Query.
func (q *GetEntitiesByTypeQuery) Kind() Kind { return KindGetEntitiesByType }

// NewGetEntitiesByTypeQuery validates and returns a type query.
func NewGetEntitiesByTypeQuery(q GetEntitiesByTypeQuery) (*GetEntitiesByTypeQuery, error) {
	if strings.TrimSpace(q.WorldStateID) == "" {
		return nil, apperrors.New(apperrors.CodeQueryWorldIDEmpty, "world state id is required")
	}
	if strings.TrimSpace(q.EntityType) == "" {
		return nil, apperrors.New(apperrors.CodeQueryEntityTypeEmpty, "entity type is required")
	}
	if err := validatePage(q.Limit, q.Offset); err != nil {
		return nil, err
	}
	return &q, nil
}

// SearchWorldsQuery requests worlds whose searchable content matches a
// term, optionally narrowed to one status.
type SearchWorldsQuery struct {
	SearchTerm    string
	Status        string
	IncludeCounts bool
	Limit         int
	Offset        int
}

// Kind implements Query.
func (q *SearchWorldsQuery) Kind() Kind { return KindSearchWorlds }

// NewSearchWorldsQuery validates and returns a world search query.
func NewSearchWorldsQuery(q SearchWorldsQuery) (*SearchWorldsQuery, error) {
	if strings.TrimSpace(q.SearchTerm) == "" {
		return nil, apperrors.New(apperrors.CodeQuerySearchTermEmpty, "search term is required")
	}
	if err := validatePage(q.Limit, q.Offset); err != nil {
		return nil, err
	}
	return &q, nil
}

func validateEntityTypes(entityTypes []string) error {
	if entityTypes == nil {
		return nil
	}
	if len(entityTypes) == 0 {
		return apperrors.New(apperrors.CodeQueryEntityTypesEmpty, "entity type filter must name at least one type")
	}
	for _, entityType := range entityTypes {
		if strings.TrimSpace(entityType) == "" {
			return apperrors.New(apperrors.CodeQueryEntityTypeEmpty, "entity type filter entries must be non-empty")
		}
	}
	return nil
}

func validatePage(limit, offset int) error {
	if limit < 0 {
		return apperrors.New(apperrors.CodeQueryLimitInvalid, "limit must be positive when set")
	}
	if offset < 0 {
		return apperrors.New(apperrors.CodeQueryOffsetInvalid, "offset must not be negative")
	}
	return nil
}
