// Package maintenance implements operational utilities for the world
// query read model: journal replay, dry-run scans, and watermark
// reports.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/event"
	"github.com/louisbranch/worldstate/internal/worldquery/projection"
	"github.com/louisbranch/worldstate/internal/worldquery/storage"
	"github.com/louisbranch/worldstate/internal/worldquery/storage/sqlite"
)

const scanPageSize = 200

// Config holds maintenance command configuration.
type Config struct {
	WorldID    string
	WorldIDs   string
	DBPath     string        `env:"WORLDSTATE_WORLDQUERY_DB"`
	Timeout    time.Duration `env:"WORLDSTATE_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	AfterSeq   uint64
	UntilSeq   uint64
	DryRun     bool
	Watermarks bool
	JSONOutput bool
}

// ParseConfig parses environment defaults and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "worldquery.db"
	}

	fs.StringVar(&cfg.WorldID, "world-id", "", "world state ID to replay")
	fs.StringVar(&cfg.WorldIDs, "world-ids", "", "comma-separated world state IDs to replay")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the world query sqlite database")
	fs.Uint64Var(&cfg.AfterSeq, "after-seq", 0, "start replay after this event sequence")
	fs.Uint64Var(&cfg.UntilSeq, "until-seq", 0, "replay up to this event sequence (0 = latest)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "scan journal events without applying projections")
	fs.BoolVar(&cfg.Watermarks, "watermarks", false, "report projection watermarks instead of replaying")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// worldIDs merges the single and comma-separated ID flags.
func (c Config) worldIDs() []string {
	var ids []string
	if strings.TrimSpace(c.WorldID) != "" {
		ids = append(ids, strings.TrimSpace(c.WorldID))
	}
	for _, id := range strings.Split(c.WorldIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "close store: %v\n", err)
		}
	}()

	if cfg.Watermarks {
		return reportWatermarks(ctx, store, cfg.JSONOutput, out)
	}

	ids := cfg.worldIDs()
	if len(ids) == 0 {
		return errors.New("-world-id or -world-ids is required")
	}

	for _, id := range ids {
		if cfg.DryRun {
			report, err := scanWorld(ctx, store, id, cfg.AfterSeq, cfg.UntilSeq)
			if err != nil {
				return fmt.Errorf("scan world %s: %w", id, err)
			}
			if err := writeReport(out, report, cfg.JSONOutput); err != nil {
				return err
			}
			continue
		}
		report, err := replayWorld(ctx, store, id, cfg.AfterSeq, cfg.UntilSeq)
		if err != nil {
			return fmt.Errorf("replay world %s: %w", id, err)
		}
		if err := writeReport(out, report, cfg.JSONOutput); err != nil {
			return err
		}
	}
	return nil
}

// WorldReport summarizes one world's journal scan or replay.
type WorldReport struct {
	WorldStateID string         `json:"world_state_id"`
	Applied      bool           `json:"applied"`
	EventCount   int            `json:"event_count"`
	EventTypes   map[string]int `json:"event_types,omitempty"`
	LastSeq      uint64         `json:"last_seq"`
}

// replayWorld reapplies a world's journal and records the resulting
// watermark.
func replayWorld(ctx context.Context, store *sqlite.Store, worldStateID string, afterSeq, untilSeq uint64) (WorldReport, error) {
	report := WorldReport{WorldStateID: worldStateID, Applied: true, EventTypes: make(map[string]int)}

	applier := projection.Applier{Slices: store}
	lastSeq, err := projection.ReplayWorldWith(ctx, store, applier, worldStateID, projection.ReplayOptions{
		AfterSeq: afterSeq,
		UntilSeq: untilSeq,
		Filter: func(evt event.Event) bool {
			report.EventCount++
			report.EventTypes[string(evt.Type)]++
			return true
		},
	})
	report.LastSeq = lastSeq
	if err != nil {
		return report, err
	}
	if lastSeq > afterSeq {
		err = store.PutWatermark(ctx, storage.Watermark{
			WorldStateID: worldStateID,
			LastSeq:      lastSeq,
			UpdatedAt:    time.Now().UTC(),
		})
	}
	return report, err
}

// scanWorld walks a world's journal without applying anything.
func scanWorld(ctx context.Context, store *sqlite.Store, worldStateID string, afterSeq, untilSeq uint64) (WorldReport, error) {
	report := WorldReport{WorldStateID: worldStateID, EventTypes: make(map[string]int)}

	cursor := afterSeq
	for {
		events, err := store.ListEvents(ctx, worldStateID, cursor, scanPageSize)
		if err != nil {
			return report, err
		}
		if len(events) == 0 {
			report.LastSeq = cursor
			return report, nil
		}
		for _, evt := range events {
			if untilSeq > 0 && evt.Seq > untilSeq {
				report.LastSeq = cursor
				return report, nil
			}
			cursor = evt.Seq
			report.EventCount++
			report.EventTypes[string(evt.Type)]++
		}
	}
}

func reportWatermarks(ctx context.Context, store *sqlite.Store, jsonOutput bool, out io.Writer) error {
	marks, err := store.ListWatermarks(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(marks)
	}
	for _, mark := range marks {
		fmt.Fprintf(out, "%s\tseq=%d\tupdated=%s\n",
			mark.WorldStateID, mark.LastSeq, mark.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "%d watermarks\n", len(marks))
	return nil
}

func writeReport(out io.Writer, report WorldReport, jsonOutput bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	mode := "scanned"
	if report.Applied {
		mode = "replayed"
	}
	fmt.Fprintf(out, "%s %s: %d events through seq %d\n",
		mode, report.WorldStateID, report.EventCount, report.LastSeq)
	for eventType, count := range report.EventTypes {
		fmt.Fprintf(out, "  %s: %d\n", eventType, count)
	}
	return nil
}
