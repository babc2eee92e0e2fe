package query

import (
	"github.com/louisbranch/worldstate/internal/worldquery/domain/entity"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/world"
)

// Result is a structured query outcome. Every per-world result carries
// the queried world id and a found flag; an unprojected world is a
// normal found=false result, never an error.
type Result interface {
	queryResult()
}

// Metadata describes how a query was interpreted and which projection
// state answered it.
type Metadata struct {
	QueryKind         Kind  `json:"query_kind"`
	IsCircular        bool  `json:"is_circular"`
	IsBounded         bool  `json:"is_bounded"`
	TypeFiltered      bool  `json:"type_filtered"`
	Paginated         bool  `json:"paginated"`
	WorldVersion      int64 `json:"world_version"`
	ProjectionVersion int64 `json:"projection_version"`
}

// SliceEntity is one entity record in a WorldSliceResult. Distance is
// set only when the query extent is circular; rectangular results carry
// no distance.
type SliceEntity struct {
	entity.Summary
	Distance *float64 `json:"distance,omitempty"`
}

// WorldSliceResult is the outcome of a GetWorldSliceQuery.
type WorldSliceResult struct {
	WorldID string `json:"world_id"`
	Found   bool   `json:"found"`

	Entities []SliceEntity `json:"entities,omitempty"`
	// EntityCount is the size of the returned page.
	EntityCount int `json:"entity_count"`
	// TotalEntities is the unsliced match count before offset/limit.
	TotalEntities int     `json:"total_entities"`
	QueryTimeMS   float64 `json:"query_time_ms"`

	WorldSummary  *world.WorldSummary  `json:"world_summary,omitempty"`
	Environment   map[string]any       `json:"environment,omitempty"`
	WorldMetadata map[string]any       `json:"metadata,omitempty"`
	SpatialBounds *world.SpatialBounds `json:"spatial_bounds,omitempty"`

	QueryMetadata *Metadata `json:"query_metadata,omitempty"`
}

func (*WorldSliceResult) queryResult() {}

// WorldSummaryResult is the outcome of a GetWorldSummaryQuery.
type WorldSummaryResult struct {
	WorldID string `json:"world_id"`
	Found   bool   `json:"found"`

	WorldSummary  *world.WorldSummary `json:"world_summary,omitempty"`
	QueryMetadata *Metadata           `json:"query_metadata,omitempty"`
}

func (*WorldSummaryResult) queryResult() {}

// EntitiesInAreaResult is the outcome of a GetEntitiesInAreaQuery.
// Entities are ordered ascending by distance, ties broken by id.
type EntitiesInAreaResult struct {
	WorldID string `json:"world_id"`
	Found   bool   `json:"found"`

	Entities      []world.EntityHit `json:"entities,omitempty"`
	EntityCount   int               `json:"entity_count"`
	TotalEntities int               `json:"total_entities"`

	QueryMetadata *Metadata `json:"query_metadata,omitempty"`
}

func (*EntitiesInAreaResult) queryResult() {}

// EntitiesByTypeResult is the outcome of a GetEntitiesByTypeQuery.
type EntitiesByTypeResult struct {
	WorldID    string `json:"world_id"`
	Found      bool   `json:"found"`
	EntityType string `json:"entity_type"`

	Entities      []entity.Summary `json:"entities,omitempty"`
	EntityCount   int              `json:"entity_count"`
	TotalEntities int              `json:"total_entities"`

	QueryMetadata *Metadata `json:"query_metadata,omitempty"`
}

func (*EntitiesByTypeResult) queryResult() {}

// WorldSearchHit is one matching world in a SearchWorldsResult. Entity
// counts are filled only when the query asks for them.
type WorldSearchHit struct {
	WorldStateID     string         `json:"world_state_id"`
	WorldName        string         `json:"world_name"`
	Status           string         `json:"status"`
	TotalEntities    int            `json:"total_entities,omitempty"`
	EntityTypeCounts map[string]int `json:"entity_type_counts,omitempty"`
}

// SearchWorldsResult is the outcome of a SearchWorldsQuery.
type SearchWorldsResult struct {
	Worlds []WorldSearchHit `json:"worlds,omitempty"`
	// WorldCount is the size of the returned page.
	WorldCount int `json:"world_count"`
	// TotalWorlds is the unsliced match count before offset/limit.
	TotalWorlds int `json:"total_worlds"`

	QueryMetadata *Metadata `json:"query_metadata,omitempty"`
}

func (*SearchWorldsResult) queryResult() {}
