// Package catalog provides SQLite-backed persistence for the object catalog,
// the mission context, and the append-only conjunction event log.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalsfoundry/conjunction-engine/model"
	_ "modernc.org/sqlite"
)

var (
	// ErrObjectNotFound reports a catalog lookup for an unknown NORAD id.
	ErrObjectNotFound = errors.New("object not found")
	// ErrNoBatch reports that no screening pass has been recorded yet.
	ErrNoBatch = errors.New("no screening batch recorded")
)

const defaultBatchRetention = 10

// Store wraps a SQLite database for all persistence operations. Screening
// passes append to the event log under a batch id; reads of the "current"
// conjunction picture resolve against the most recent completed batch.
type Store struct {
	db        *sql.DB
	retention int
}

// Open opens or creates the SQLite database at dbPath. retention caps how
// many screening batches are kept; older batches and their events are pruned
// on save. Pass ":memory:" for an ephemeral store.
func Open(dbPath string, retention int) (*Store, error) {
	if retention <= 0 {
		retention = defaultBatchRetention
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db, retention: retention}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS objects (
			norad_id      INTEGER PRIMARY KEY,
			name          TEXT NOT NULL,
			line1         TEXT NOT NULL,
			line2         TEXT NOT NULL,
			country       TEXT NOT NULL DEFAULT '',
			priority      TEXT NOT NULL DEFAULT 'SECONDARY',
			mission_class TEXT NOT NULL DEFAULT 'NORMAL',
			updated_at    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mission_context (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			active       INTEGER NOT NULL DEFAULT 0,
			name         TEXT NOT NULL DEFAULT '',
			activated_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS screening_batches (
			id              TEXT PRIMARY KEY,
			run_at          INTEGER NOT NULL,
			window_seconds  REAL NOT NULL,
			candidate_pairs INTEGER NOT NULL,
			saved_events    INTEGER NOT NULL,
			status          TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conjunction_events (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id          TEXT NOT NULL REFERENCES screening_batches(id) ON DELETE CASCADE,
			object1_id        INTEGER NOT NULL,
			object2_id        INTEGER NOT NULL,
			tca               INTEGER NOT NULL,
			miss_km           REAL NOT NULL,
			rel_velocity_km_s REAL NOT NULL,
			risk_score        REAL NOT NULL,
			event_type        TEXT NOT NULL,
			created_at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_batch ON conjunction_events(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_score ON conjunction_events(risk_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_country ON objects(country)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertObjects inserts or replaces catalog entries keyed by NORAD id,
// returning the number of rows written.
func (s *Store) UpsertObjects(ctx context.Context, objects []model.SpaceObject) (int, error) {
	if len(objects) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO objects
			(norad_id, name, line1, line2, country, priority, mission_class, updated_at)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, obj := range objects {
		updatedAt := obj.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			obj.NoradID, obj.Name, obj.Line1, obj.Line2, obj.Country,
			string(obj.Priority), string(obj.Mission), updatedAt.UnixNano(),
		); err != nil {
			return 0, fmt.Errorf("upsert object %d: %w", obj.NoradID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return len(objects), nil
}

// Object returns the catalog entry for one NORAD id.
func (s *Store) Object(ctx context.Context, noradID int) (model.SpaceObject, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+objectCols+` FROM objects WHERE norad_id = ?`, noradID)
	obj, err := scanObject(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SpaceObject{}, fmt.Errorf("%w: %d", ErrObjectNotFound, noradID)
	}
	if err != nil {
		return model.SpaceObject{}, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

// ObjectQuery filters catalog listings. Zero values disable a filter.
type ObjectQuery struct {
	Search   string // case-insensitive substring on name
	Country  string
	Priority string
	Limit    int // default 100
}

// Objects lists catalog entries ordered by NORAD id.
func (s *Store) Objects(ctx context.Context, q ObjectQuery) ([]model.SpaceObject, error) {
	query := `SELECT ` + objectCols + ` FROM objects`
	var where []string
	var args []any
	if q.Search != "" {
		// SQLite LIKE is case-insensitive for ASCII.
		where = append(where, `name LIKE ?`)
		args = append(args, "%"+q.Search+"%")
	}
	if q.Country != "" {
		where = append(where, `country = ?`)
		args = append(args, q.Country)
	}
	if q.Priority != "" {
		where = append(where, `priority = ?`)
		args = append(args, q.Priority)
	}
	for i, cond := range where {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY norad_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	var objects []model.SpaceObject
	for rows.Next() {
		obj, err := scanObject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// AllObjects returns the entire catalog ordered by NORAD id. Screening
// passes read the full snapshot; the paged Objects query is for the API.
func (s *Store) AllObjects(ctx context.Context) ([]model.SpaceObject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+objectCols+` FROM objects ORDER BY norad_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query all objects: %w", err)
	}
	defer rows.Close()

	var objects []model.SpaceObject
	for rows.Next() {
		obj, err := scanObject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// CountObjects returns the catalog size.
func (s *Store) CountObjects(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}
	return n, nil
}

// MissionContext returns the persisted mission context. When none has ever
// been set the zero value (inactive) is returned.
func (s *Store) MissionContext(ctx context.Context) (model.MissionContext, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT active, name, activated_at FROM mission_context WHERE id = 1`)
	var active int
	var name string
	var activatedAtNano int64
	err := row.Scan(&active, &name, &activatedAtNano)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MissionContext{}, nil
	}
	if err != nil {
		return model.MissionContext{}, fmt.Errorf("get mission context: %w", err)
	}
	mc := model.MissionContext{Active: active != 0, Name: name}
	if activatedAtNano != 0 {
		mc.ActivatedAt = time.Unix(0, activatedAtNano).UTC()
	}
	return mc, nil
}

// SetMissionContext persists the mission context singleton.
func (s *Store) SetMissionContext(ctx context.Context, mc model.MissionContext) error {
	active := 0
	if mc.Active {
		active = 1
	}
	var activatedAtNano int64
	if !mc.ActivatedAt.IsZero() {
		activatedAtNano = mc.ActivatedAt.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO mission_context (id, active, name, activated_at)
		VALUES (1,?,?,?)`,
		active, mc.Name, activatedAtNano)
	if err != nil {
		return fmt.Errorf("set mission context: %w", err)
	}
	return nil
}

// SaveBatch records one screening pass and its events atomically, then prunes
// batches beyond the retention limit. Cascading deletes remove pruned events.
func (s *Store) SaveBatch(ctx context.Context, batch model.ScreeningBatch, events []model.ConjunctionEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO screening_batches
			(id, run_at, window_seconds, candidate_pairs, saved_events, status)
		VALUES (?,?,?,?,?,?)`,
		batch.ID, batch.RunAt.UnixNano(), batch.WindowSeconds,
		batch.CandidatePairs, batch.SavedEvents, batch.Status,
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	now := time.Now().UnixNano()
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conjunction_events
				(batch_id, object1_id, object2_id, tca, miss_km,
				 rel_velocity_km_s, risk_score, event_type, created_at)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			batch.ID, ev.Object1ID, ev.Object2ID, ev.TCA.UnixNano(), ev.MissKm,
			ev.RelVelocityKmS, ev.RiskScore, string(ev.EventType), now,
		); err != nil {
			return fmt.Errorf("insert event (%d,%d): %w", ev.Object1ID, ev.Object2ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM screening_batches WHERE id NOT IN (
			SELECT id FROM screening_batches ORDER BY run_at DESC, rowid DESC LIMIT ?
		)`, s.retention); err != nil {
		return fmt.Errorf("prune batches: %w", err)
	}

	return tx.Commit()
}

// LatestBatch returns the most recently recorded screening batch.
func (s *Store) LatestBatch(ctx context.Context) (model.ScreeningBatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_at, window_seconds, candidate_pairs, saved_events, status
		FROM screening_batches ORDER BY run_at DESC, rowid DESC LIMIT 1`)
	var b model.ScreeningBatch
	var runAtNano int64
	err := row.Scan(&b.ID, &runAtNano, &b.WindowSeconds, &b.CandidatePairs, &b.SavedEvents, &b.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScreeningBatch{}, ErrNoBatch
	}
	if err != nil {
		return model.ScreeningBatch{}, fmt.Errorf("get latest batch: %w", err)
	}
	b.RunAt = time.Unix(0, runAtNano).UTC()
	return b, nil
}

// EventQuery filters the current conjunction view. Zero values disable a
// filter. Country and Priority match when either object matches.
type EventQuery struct {
	Limit     int // default 100
	EventType string
	Country   string
	Priority  string
}

// EventRecord is a conjunction event joined with catalog metadata for both
// objects.
type EventRecord struct {
	model.ConjunctionEvent
	BatchID         string
	Object1Name     string
	Object2Name     string
	Object1Country  string
	Object2Country  string
	Object1Priority model.Priority
	Object2Priority model.Priority
}

// Events returns the current conjunction view: events from the most recent
// completed batch, highest risk first, earliest approach breaking ties.
func (s *Store) Events(ctx context.Context, q EventQuery) ([]EventRecord, error) {
	query := `
		SELECT e.batch_id, e.object1_id, e.object2_id, e.tca, e.miss_km,
		       e.rel_velocity_km_s, e.risk_score, e.event_type,
		       COALESCE(o1.name, ''), COALESCE(o2.name, ''),
		       COALESCE(o1.country, ''), COALESCE(o2.country, ''),
		       COALESCE(o1.priority, ''), COALESCE(o2.priority, '')
		FROM conjunction_events e
		LEFT JOIN objects o1 ON o1.norad_id = e.object1_id
		LEFT JOIN objects o2 ON o2.norad_id = e.object2_id
		WHERE e.batch_id = (
			SELECT id FROM screening_batches WHERE status = ?
			ORDER BY run_at DESC, rowid DESC LIMIT 1
		)`
	args := []any{model.BatchCompleted}
	if q.EventType != "" {
		query += ` AND e.event_type = ?`
		args = append(args, q.EventType)
	}
	if q.Country != "" {
		query += ` AND (o1.country = ? OR o2.country = ?)`
		args = append(args, q.Country, q.Country)
	}
	if q.Priority != "" {
		query += ` AND (o1.priority = ? OR o2.priority = ?)`
		args = append(args, q.Priority, q.Priority)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY e.risk_score DESC, e.tca ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var r EventRecord
		var tcaNano int64
		var eventType, p1, p2 string
		if err := rows.Scan(
			&r.BatchID, &r.Object1ID, &r.Object2ID, &tcaNano, &r.MissKm,
			&r.RelVelocityKmS, &r.RiskScore, &eventType,
			&r.Object1Name, &r.Object2Name,
			&r.Object1Country, &r.Object2Country, &p1, &p2,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.TCA = time.Unix(0, tcaNano).UTC()
		r.EventType = model.EventType(eventType)
		r.Object1Priority = model.Priority(p1)
		r.Object2Priority = model.Priority(p2)
		records = append(records, r)
	}
	return records, rows.Err()
}

const objectCols = `norad_id, name, line1, line2, country, priority, mission_class, updated_at`

func scanObject(scan func(...any) error) (model.SpaceObject, error) {
	var obj model.SpaceObject
	var priority, mission string
	var updatedAtNano int64
	err := scan(
		&obj.NoradID, &obj.Name, &obj.Line1, &obj.Line2, &obj.Country,
		&priority, &mission, &updatedAtNano,
	)
	if err != nil {
		return model.SpaceObject{}, err
	}
	obj.Priority = model.Priority(priority)
	obj.Mission = model.MissionClass(mission)
	obj.UpdatedAt = time.Unix(0, updatedAtNano).UTC()
	return obj, nil
}
