// Package entity defines the denormalized entity projection used by world
// slices.
package entity

import (
	"sort"
	"time"
)

// MaxSummaryProperties caps how many properties a summary carries so the
// denormalized payload stays small.
const MaxSummaryProperties = 5

// Property is one key/value pair in a summary's capped property list.
type Property struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Summary is a lightweight, flattened projection of one positioned world
// entity. Summaries are immutable values: every mutation replaces the
// record wholesale, never patches it in place.
type Summary struct {
	ID                string     `json:"id"`
	EntityType        string     `json:"entity_type"`
	Name              string     `json:"name"`
	X                 float64    `json:"x"`
	Y                 float64    `json:"y"`
	Z                 float64    `json:"z"`
	PropertiesSummary []Property `json:"properties_summary,omitempty"`
	LastUpdated       time.Time  `json:"last_updated"`
}

// SummarizeProperties converts a free-form property map into the capped,
// deterministically ordered list a summary carries. Keys are ordered
// ascending so truncation keeps the same entries regardless of map
// iteration order.
func SummarizeProperties(properties map[string]any) []Property {
	if len(properties) == 0 {
		return nil
	}
	keys := make([]string, 0, len(properties))
	for key := range properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) > MaxSummaryProperties {
		keys = keys[:MaxSummaryProperties]
	}
	summary := make([]Property, 0, len(keys))
	for _, key := range keys {
		summary = append(summary, Property{Key: key, Value: properties[key]})
	}
	return summary
}
