// Package projection applies world change events to the denormalized
// world slice read model.
package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/worldstate/internal/platform/errors"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/event"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/world"
	"github.com/louisbranch/worldstate/internal/worldquery/storage"
)

// Applier applies event journal entries to the world slice store.
type Applier struct {
	// Slices writes world slice read models.
	Slices storage.WorldSliceStore
	// Clock supplies the projection timestamp; nil means time.Now.
	Clock func() time.Time
}

func (a Applier) now() time.Time {
	if a.Clock != nil {
		return a.Clock().UTC()
	}
	return time.Now().UTC()
}

// Apply routes one world change event into the read model. Snapshot
// events replace the whole slice; entity events mutate it
// incrementally. Application failures carry a projection error code so
// callers can tell "event could not be applied" apart from transport
// faults.
func (a Applier) Apply(ctx context.Context, evt event.Event) error {
	if a.Slices == nil {
		return apperrors.New(apperrors.CodeProjectionApply, "slice store is not configured")
	}
	if evt.WorldID == "" {
		return apperrors.New(apperrors.CodeProjectionEventInvalid, "world id is required")
	}
	if !evt.Type.IsValid() {
		return apperrors.New(apperrors.CodeProjectionEventInvalid, "event type is required")
	}

	switch evt.Type {
	case event.TypeWorldSnapshotted:
		return a.applyWorldSnapshotted(ctx, evt)
	case event.TypeEntityAdded:
		return a.applyEntityChange(ctx, evt, world.ChangeEntityAdded)
	case event.TypeEntityRemoved:
		return a.applyEntityChange(ctx, evt, world.ChangeEntityRemoved)
	case event.TypeEntityUpdated:
		return a.applyEntityChange(ctx, evt, world.ChangeEntityUpdated)
	case event.TypeEntityMoved:
		return a.applyEntityChange(ctx, evt, world.ChangeEntityMoved)
	default:
		return apperrors.New(apperrors.CodeProjectionEventInvalid,
			fmt.Sprintf("unhandled projection event type: %s", evt.Type))
	}
}

func (a Applier) applyWorldSnapshotted(ctx context.Context, evt event.Event) error {
	snapshot, err := parseSnapshotPayload(evt)
	if err != nil {
		return err
	}
	slice, err := world.NewFromSnapshot(snapshot, a.now())
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProjectionApply, "build world slice", err)
	}
	if err := a.Slices.PutSlice(ctx, slice); err != nil {
		return apperrors.Wrap(apperrors.CodeProjectionApply, "store world slice", err)
	}
	return nil
}

func (a Applier) applyEntityChange(ctx context.Context, evt event.Event, kind world.ChangeKind) error {
	change, err := parseEntityPayload(evt, kind)
	if err != nil {
		return err
	}

	slice, err := a.Slices.GetSlice(ctx, evt.WorldID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeProjectionApply,
				fmt.Sprintf("world %s has no projected slice for %s", evt.WorldID, evt.Type))
		}
		return apperrors.Wrap(apperrors.CodeProjectionApply, "fetch world slice", err)
	}

	if err := slice.Apply(change, a.now()); err != nil {
		return apperrors.Wrap(apperrors.CodeProjectionApply,
			fmt.Sprintf("apply %s to world %s", evt.Type, evt.WorldID), err)
	}
	if err := a.Slices.PutSlice(ctx, slice); err != nil {
		return apperrors.Wrap(apperrors.CodeProjectionApply, "store world slice", err)
	}
	return nil
}
