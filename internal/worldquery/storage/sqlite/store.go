// Package sqlite provides a SQLite-backed world query storage
// implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/worldstate/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/event"
	"github.com/louisbranch/worldstate/internal/worldquery/domain/world"
	"github.com/louisbranch/worldstate/internal/worldquery/storage"
	"github.com/louisbranch/worldstate/internal/worldquery/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists world slices, events, and watermarks in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite world query store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutSlice inserts or replaces one world slice record.
func (s *Store) PutSlice(ctx context.Context, slice *world.Slice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if slice == nil || strings.TrimSpace(slice.WorldStateID) == "" {
		return fmt.Errorf("world state id is required")
	}

	payload, err := json.Marshal(slice)
	if err != nil {
		return fmt.Errorf("marshal world slice: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO world_slices (
		   world_state_id,
		   world_name,
		   status,
		   world_version,
		   projection_version,
		   total_entities,
		   last_event_at,
		   payload
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (world_state_id) DO UPDATE SET
		   world_name = excluded.world_name,
		   status = excluded.status,
		   world_version = excluded.world_version,
		   projection_version = excluded.projection_version,
		   total_entities = excluded.total_entities,
		   last_event_at = excluded.last_event_at,
		   payload = excluded.payload`,
		slice.WorldStateID,
		slice.WorldName,
		slice.Status,
		slice.WorldVersion,
		slice.ProjectionVersion,
		slice.TotalEntities,
		toMillis(slice.LastEventTimestamp),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("put world slice: %w", err)
	}
	return nil
}

// GetSlice returns one world slice by world state ID.
func (s *Store) GetSlice(ctx context.Context, worldStateID string) (*world.Slice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	worldStateID = strings.TrimSpace(worldStateID)
	if worldStateID == "" {
		return nil, fmt.Errorf("world state id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT payload FROM world_slices WHERE world_state_id = ?`,
		worldStateID,
	)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get world slice: %w", err)
	}
	return decodeSlice(payload)
}

// ListSlices returns all world slices ordered by world state ID.
func (s *Store) ListSlices(ctx context.Context) ([]*world.Slice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT payload FROM world_slices ORDER BY world_state_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list world slices: %w", err)
	}
	defer rows.Close()

	var slices []*world.Slice
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan world slice: %w", err)
		}
		slice, err := decodeSlice(payload)
		if err != nil {
			return nil, err
		}
		slices = append(slices, slice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list world slices: %w", err)
	}
	return slices, nil
}

// DeleteSlice removes one world slice. Deleting an absent slice is not
// an error.
func (s *Store) DeleteSlice(ctx context.Context, worldStateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	worldStateID = strings.TrimSpace(worldStateID)
	if worldStateID == "" {
		return fmt.Errorf("world state id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM world_slices WHERE world_state_id = ?`,
		worldStateID,
	)
	if err != nil {
		return fmt.Errorf("delete world slice: %w", err)
	}
	return nil
}

// AppendEvent inserts one journal event. Sequence numbers are unique per
// world.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(evt.WorldID) == "" || !evt.Type.IsValid() || evt.Seq == 0 {
		return fmt.Errorf("world id, type, and seq are required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO world_events (
		   world_state_id,
		   seq,
		   occurred_at,
		   event_type,
		   entity_id,
		   entity_type,
		   payload
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.WorldID,
		evt.Seq,
		toMillis(evt.Timestamp),
		string(evt.Type),
		evt.EntityID,
		evt.EntityType,
		string(evt.PayloadJSON),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrSeqConflict
		}
		return fmt.Errorf("append world event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events with Seq > afterSeq in ascending
// sequence order.
func (s *Store) ListEvents(ctx context.Context, worldStateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	worldStateID = strings.TrimSpace(worldStateID)
	if worldStateID == "" {
		return nil, fmt.Errorf("world state id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT world_state_id, seq, occurred_at, event_type, entity_id, entity_type, payload
		   FROM world_events
		  WHERE world_state_id = ? AND seq > ?
		  ORDER BY seq ASC
		  LIMIT ?`,
		worldStateID,
		afterSeq,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list world events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var evt event.Event
		var eventType string
		var occurredAt int64
		var payload string
		if err := rows.Scan(
			&evt.WorldID,
			&evt.Seq,
			&occurredAt,
			&eventType,
			&evt.EntityID,
			&evt.EntityType,
			&payload,
		); err != nil {
			return nil, fmt.Errorf("scan world event: %w", err)
		}
		evt.Type = event.Type(eventType)
		evt.Timestamp = fromMillis(occurredAt)
		if payload != "" {
			evt.PayloadJSON = []byte(payload)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list world events: %w", err)
	}
	return events, nil
}

// ListWorlds returns the distinct world state IDs present in the
// journal, ordered ascending.
func (s *Store) ListWorlds(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT DISTINCT world_state_id FROM world_events ORDER BY world_state_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list journal worlds: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan journal world: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list journal worlds: %w", err)
	}
	return ids, nil
}

// PutWatermark inserts or replaces one projection watermark.
func (s *Store) PutWatermark(ctx context.Context, mark storage.Watermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(mark.WorldStateID) == "" {
		return fmt.Errorf("world state id is required")
	}
	updatedAt := mark.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO projection_watermarks (world_state_id, last_seq, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (world_state_id) DO UPDATE SET
		   last_seq = excluded.last_seq,
		   updated_at = excluded.updated_at`,
		mark.WorldStateID,
		mark.LastSeq,
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put projection watermark: %w", err)
	}
	return nil
}

// GetWatermark returns one projection watermark.
func (s *Store) GetWatermark(ctx context.Context, worldStateID string) (storage.Watermark, error) {
	if err := ctx.Err(); err != nil {
		return storage.Watermark{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Watermark{}, fmt.Errorf("storage is not configured")
	}
	worldStateID = strings.TrimSpace(worldStateID)
	if worldStateID == "" {
		return storage.Watermark{}, fmt.Errorf("world state id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT world_state_id, last_seq, updated_at
		   FROM projection_watermarks
		  WHERE world_state_id = ?`,
		worldStateID,
	)

	var mark storage.Watermark
	var updatedAt int64
	if err := row.Scan(&mark.WorldStateID, &mark.LastSeq, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Watermark{}, storage.ErrNotFound
		}
		return storage.Watermark{}, fmt.Errorf("get projection watermark: %w", err)
	}
	mark.UpdatedAt = fromMillis(updatedAt)
	return mark, nil
}

// ListWatermarks returns all projection watermarks ordered by world
// state ID.
func (s *Store) ListWatermarks(ctx context.Context) ([]storage.Watermark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT world_state_id, last_seq, updated_at
		   FROM projection_watermarks
		  ORDER BY world_state_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list projection watermarks: %w", err)
	}
	defer rows.Close()

	var marks []storage.Watermark
	for rows.Next() {
		var mark storage.Watermark
		var updatedAt int64
		if err := rows.Scan(&mark.WorldStateID, &mark.LastSeq, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan projection watermark: %w", err)
		}
		mark.UpdatedAt = fromMillis(updatedAt)
		marks = append(marks, mark)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projection watermarks: %w", err)
	}
	return marks, nil
}

func decodeSlice(payload string) (*world.Slice, error) {
	var slice world.Slice
	if err := json.Unmarshal([]byte(payload), &slice); err != nil {
		return nil, fmt.Errorf("unmarshal world slice: %w", err)
	}
	return &slice, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
