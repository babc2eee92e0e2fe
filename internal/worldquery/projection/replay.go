package projection

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/worldstate/internal/worldquery/domain/event"
	"github.com/louisbranch/worldstate/internal/worldquery/storage"
)

const replayPageSize = 200

// ReplayOptions configures event replay behavior.
type ReplayOptions struct {
	// AfterSeq skips events at or below this sequence number.
	AfterSeq uint64
	// UntilSeq stops replay after this sequence number when non-zero.
	UntilSeq uint64
	// Filter skips events it rejects without stopping replay.
	Filter func(event.Event) bool
}

// ReplayWorld replays a world's journal in order and applies each event
// to the read model. It returns the last sequence number seen, which
// callers persist as the projection watermark.
func ReplayWorld(ctx context.Context, eventStore storage.EventStore, applier Applier, worldStateID string) (uint64, error) {
	return ReplayWorldWith(ctx, eventStore, applier, worldStateID, ReplayOptions{})
}

// ReplayWorldWith replays events with additional filtering and bounds.
func ReplayWorldWith(ctx context.Context, eventStore storage.EventStore, applier Applier, worldStateID string, options ReplayOptions) (uint64, error) {
	if eventStore == nil {
		return 0, fmt.Errorf("event store is not configured")
	}
	if strings.TrimSpace(worldStateID) == "" {
		return 0, fmt.Errorf("world state id is required")
	}

	lastSeq := options.AfterSeq
	for {
		events, err := eventStore.ListEvents(ctx, worldStateID, lastSeq, replayPageSize)
		if err != nil {
			return lastSeq, err
		}
		if len(events) == 0 {
			return lastSeq, nil
		}
		for _, evt := range events {
			if options.UntilSeq > 0 && evt.Seq > options.UntilSeq {
				return lastSeq, nil
			}
			if options.Filter != nil && !options.Filter(evt) {
				lastSeq = evt.Seq
				continue
			}
			// Advance only after a clean apply so a failed event is
			// retried on the next replay.
			if err := applier.Apply(ctx, evt); err != nil {
				return lastSeq, err
			}
			lastSeq = evt.Seq
		}
	}
}
