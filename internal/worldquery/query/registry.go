package query

import (
	"context"
	"fmt"

	apperrors "github.com/louisbranch/worldstate/internal/platform/errors"
	"github.com/louisbranch/worldstate/internal/worldquery/storage"
)

// Registry maps descriptor kinds to their handlers and dispatches
// execution by the descriptor's runtime kind.
type Registry struct {
	handlers map[Kind]Handler
}

// NewRegistry returns a registry with all five query handlers wired to
// the given slice store.
func NewRegistry(slices storage.WorldSliceStore) *Registry {
	return &Registry{
		handlers: map[Kind]Handler{
			KindGetWorldSlice:     &WorldSliceHandler{Slices: slices},
			KindGetWorldSummary:   &WorldSummaryHandler{Slices: slices},
			KindGetEntitiesInArea: &EntitiesInAreaHandler{Slices: slices},
			KindGetEntitiesByType: &EntitiesByTypeHandler{Slices: slices},
			KindSearchWorlds:      &SearchWorldsHandler{Slices: slices},
		},
	}
}

// Register sets or replaces the handler for one descriptor kind.
func (r *Registry) Register(kind Kind, handler Handler) {
	if r.handlers == nil {
		r.handlers = make(map[Kind]Handler)
	}
	r.handlers[kind] = handler
}

// Execute dispatches a descriptor to its registered handler.
func (r *Registry) Execute(ctx context.Context, descriptor Query) (Result, error) {
	if descriptor == nil {
		return nil, apperrors.New(apperrors.CodeQueryHandlerMissing, "query descriptor is required")
	}
	handler, ok := r.handlers[descriptor.Kind()]
	if !ok {
		return nil, apperrors.New(apperrors.CodeQueryHandlerMissing,
			fmt.Sprintf("no handler registered for %s", descriptor.Kind()))
	}
	return handler.Execute(ctx, descriptor)
}
