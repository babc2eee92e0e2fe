package world

import (
	"math"
	"sort"

	"github.com/louisbranch/worldstate/internal/worldquery/domain/entity"
)

// EntityHit is one entity record returned by a circular range query, with
// the computed distance from the query center attached.
type EntityHit struct {
	entity.Summary
	Distance float64 `json:"distance"`
}

// EntitiesInArea returns all entities within radius of (centerX, centerY),
// ordered ascending by distance with ties broken by ascending entity id.
// Distance is measured on the x/y plane. Candidates are pre-filtered with a
// squared-distance comparison so only actual hits pay for a square root.
// An empty entityTypes slice means no type filter.
func (s *Slice) EntitiesInArea(centerX, centerY, radius float64, entityTypes []string) []EntityHit {
	if radius <= 0 {
		return nil
	}
	typeFilter := typeSet(entityTypes)
	radiusSquared := radius * radius

	hits := make([]EntityHit, 0)
	for _, summary := range s.AllEntities {
		if typeFilter != nil {
			if _, ok := typeFilter[summary.EntityType]; !ok {
				continue
			}
		}
		dx := summary.X - centerX
		dy := summary.Y - centerY
		distanceSquared := dx*dx + dy*dy
		if distanceSquared > radiusSquared {
			continue
		}
		hits = append(hits, EntityHit{
			Summary:  summary,
			Distance: math.Sqrt(distanceSquared),
		})
	}

	// Ties on distance break by entity id so ordering never depends on map
	// iteration order.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

// EntitiesInBounds returns all entities inside the inclusive x/y rectangle.
// The z axis is not filtered. Result order is unspecified.
func (s *Slice) EntitiesInBounds(minX, maxX, minY, maxY float64, entityTypes []string) []entity.Summary {
	typeFilter := typeSet(entityTypes)

	matches := make([]entity.Summary, 0)
	for _, summary := range s.AllEntities {
		if typeFilter != nil {
			if _, ok := typeFilter[summary.EntityType]; !ok {
				continue
			}
		}
		if summary.X < minX || summary.X > maxX {
			continue
		}
		if summary.Y < minY || summary.Y > maxY {
			continue
		}
		matches = append(matches, summary)
	}
	return matches
}

// EntitiesOfType returns entities drawn from the pre-grouped type view.
// A limit of zero or less returns all records of the type.
func (s *Slice) EntitiesOfType(entityType string, limit int) []entity.Summary {
	records := s.EntitiesByType[entityType]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return append([]entity.Summary(nil), records...)
}

// EntityByID returns a single entity record by id.
func (s *Slice) EntityByID(id string) (entity.Summary, bool) {
	summary, ok := s.AllEntities[id]
	return summary, ok
}

// IntersectsCircle reports whether the circle could overlap the cached
// spatial bounds. An empty slice intersects nothing.
func (s *Slice) IntersectsCircle(centerX, centerY, radius float64) bool {
	if s.Bounds == nil {
		return false
	}
	nearestX := math.Max(s.Bounds.MinX, math.Min(centerX, s.Bounds.MaxX))
	nearestY := math.Max(s.Bounds.MinY, math.Min(centerY, s.Bounds.MaxY))
	dx := centerX - nearestX
	dy := centerY - nearestY
	return dx*dx+dy*dy <= radius*radius
}

// IntersectsRect reports whether the inclusive rectangle could overlap the
// cached spatial bounds.
func (s *Slice) IntersectsRect(minX, maxX, minY, maxY float64) bool {
	if s.Bounds == nil {
		return false
	}
	if maxX < s.Bounds.MinX || minX > s.Bounds.MaxX {
		return false
	}
	if maxY < s.Bounds.MinY || minY > s.Bounds.MaxY {
		return false
	}
	return true
}

func typeSet(entityTypes []string) map[string]struct{} {
	if len(entityTypes) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(entityTypes))
	for _, entityType := range entityTypes {
		set[entityType] = struct{}{}
	}
	return set
}
