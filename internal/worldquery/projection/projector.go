package projection

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/louisbranch/worldstate/internal/platform/errors"
	"github.com/louisbranch/worldstate/internal/platform/timeouts"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/event"
	"github.com/louisbranch/worldstate/internal/worldquery/storage"
)

// catchUpConcurrency caps how many worlds CatchUpAll replays at once.
const catchUpConcurrency = 8

// ProjectorConfig wires the projector to its stores.
type ProjectorConfig struct {
	Slices     storage.WorldSliceStore
	Events     storage.EventStore
	Watermarks storage.WatermarkStore
	// Clock supplies projection timestamps; nil means time.Now.
	Clock func() time.Time
}

// Projector applies world change events to the read model with
// single-writer ordering per world. Events for the same world are
// applied strictly in journal order; different worlds proceed
// independently.
type Projector struct {
	applier Applier
	events  storage.EventStore
	marks   storage.WatermarkStore
	clock   func() time.Time

	mu     sync.Mutex
	worlds map[string]*worldState
	closed bool
}

// worldState serializes projection writes for one world and caches its
// watermark so duplicate events can be skipped without a store read.
type worldState struct {
	mu      sync.Mutex
	lastSeq uint64
	loaded  bool
}

var (
	projectorMu sync.Mutex
	projector   *Projector
)

// InitializeProjector creates the process-wide projector singleton.
// Calling it again while a projector is running returns the existing
// instance.
func InitializeProjector(cfg ProjectorConfig) (*Projector, error) {
	projectorMu.Lock()
	defer projectorMu.Unlock()
	if projector != nil {
		return projector, nil
	}
	if cfg.Slices == nil {
		return nil, apperrors.New(apperrors.CodeProjectionApply, "slice store is required")
	}
	projector = &Projector{
		applier: Applier{Slices: cfg.Slices, Clock: cfg.Clock},
		events:  cfg.Events,
		marks:   cfg.Watermarks,
		clock:   cfg.Clock,
		worlds:  make(map[string]*worldState),
	}
	return projector, nil
}

// GetProjector returns the running projector singleton.
func GetProjector() (*Projector, error) {
	projectorMu.Lock()
	defer projectorMu.Unlock()
	if projector == nil {
		return nil, apperrors.New(apperrors.CodeProjectionNotRunning, "projector is not initialized")
	}
	return projector, nil
}

// ShutdownProjector stops the singleton and clears the reference so a
// fresh InitializeProjector can recreate it. Shutting down an already
// stopped projector is a no-op.
func ShutdownProjector() error {
	projectorMu.Lock()
	defer projectorMu.Unlock()
	if projector == nil {
		return nil
	}
	projector.close()
	projector = nil
	return nil
}

func (p *Projector) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	// Wait for in-flight applies so no write lands after shutdown
	// returns.
	for _, world := range p.worlds {
		world.mu.Lock()
		world.mu.Unlock()
	}
	p.worlds = nil
}

func (p *Projector) worldFor(worldStateID string) (*worldState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, apperrors.New(apperrors.CodeProjectionNotRunning, "projector is shut down")
	}
	world, ok := p.worlds[worldStateID]
	if !ok {
		world = &worldState{}
		p.worlds[worldStateID] = world
	}
	return world, nil
}

func (p *Projector) nowUTC() time.Time {
	if p.clock != nil {
		return p.clock().UTC()
	}
	return time.Now().UTC()
}

// loadWatermark fills the cached sequence from the watermark store on
// first use. Caller holds the world lock.
func (p *Projector) loadWatermark(ctx context.Context, world *worldState, worldStateID string) error {
	if world.loaded || p.marks == nil {
		world.loaded = true
		return nil
	}
	mark, err := p.marks.GetWatermark(ctx, worldStateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			world.loaded = true
			return nil
		}
		return apperrors.Wrap(apperrors.CodeProjectionApply, "load projection watermark", err)
	}
	world.lastSeq = mark.LastSeq
	world.loaded = true
	return nil
}

// saveWatermark persists projection progress. Caller holds the world
// lock.
func (p *Projector) saveWatermark(ctx context.Context, world *worldState, worldStateID string, seq uint64) error {
	world.lastSeq = seq
	if p.marks == nil {
		return nil
	}
	err := p.marks.PutWatermark(ctx, storage.Watermark{
		WorldStateID: worldStateID,
		LastSeq:      seq,
		UpdatedAt:    p.nowUTC(),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProjectionApply, "save projection watermark", err)
	}
	return nil
}

// ProcessEvent applies one event to its world's slice. Events at or
// below the world's watermark are duplicates from replay and are
// skipped.
func (p *Projector) ProcessEvent(ctx context.Context, evt event.Event) error {
	if evt.WorldID == "" {
		return apperrors.New(apperrors.CodeProjectionEventInvalid, "world id is required")
	}
	world, err := p.worldFor(evt.WorldID)
	if err != nil {
		return err
	}
	world.mu.Lock()
	defer world.mu.Unlock()

	if err := p.loadWatermark(ctx, world, evt.WorldID); err != nil {
		return err
	}
	if evt.Seq > 0 && evt.Seq <= world.lastSeq {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.ProjectionApply)
	defer cancel()
	if err := p.applier.Apply(ctx, evt); err != nil {
		return err
	}
	if evt.Seq > 0 {
		return p.saveWatermark(ctx, world, evt.WorldID, evt.Seq)
	}
	return nil
}

// CatchUpWorld replays a world's journal past its watermark and
// advances the watermark to the last applied event.
func (p *Projector) CatchUpWorld(ctx context.Context, worldStateID string) error {
	if p.events == nil {
		return apperrors.New(apperrors.CodeProjectionApply, "event store is not configured")
	}
	world, err := p.worldFor(worldStateID)
	if err != nil {
		return err
	}
	world.mu.Lock()
	defer world.mu.Unlock()

	if err := p.loadWatermark(ctx, world, worldStateID); err != nil {
		return err
	}
	lastSeq, replayErr := ReplayWorldWith(ctx, p.events, p.applier, worldStateID, ReplayOptions{
		AfterSeq: world.lastSeq,
	})
	if lastSeq > world.lastSeq {
		if err := p.saveWatermark(ctx, world, worldStateID, lastSeq); err != nil {
			return err
		}
	}
	if replayErr != nil {
		return apperrors.Wrap(apperrors.CodeProjectionApply, "replay world journal", replayErr)
	}
	return nil
}

// CatchUpAll replays every world present in the journal or the
// watermark store, independent worlds in parallel. The journal is the
// discovery source for worlds that have never been projected; the
// watermark set covers worlds whose journal may have been pruned.
func (p *Projector) CatchUpAll(ctx context.Context) error {
	if p.marks == nil {
		return apperrors.New(apperrors.CodeProjectionApply, "watermark store is not configured")
	}
	marks, err := p.marks.ListWatermarks(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProjectionApply, "list projection watermarks", err)
	}

	worldIDs := make(map[string]struct{}, len(marks))
	for _, mark := range marks {
		worldIDs[mark.WorldStateID] = struct{}{}
	}
	if p.events != nil {
		journalWorlds, err := p.events.ListWorlds(ctx)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeProjectionApply, "list journal worlds", err)
		}
		for _, id := range journalWorlds {
			worldIDs[id] = struct{}{}
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(catchUpConcurrency)
	for id := range worldIDs {
		group.Go(func() error {
			return p.CatchUpWorld(groupCtx, id)
		})
	}
	return group.Wait()
}
