// Package store persists the driver's round-trippable state snapshot
// (spec.md §6 Checkpoint record: `{seed, row_count, tardis_iter,
// stream_cursors, schedule_state, finished}`) plus the assignments
// snapshot needed to rehydrate it, to a local SQLite database. Grounded on
// the teacher's internal/infra/sqlite package (phase3.go/phase4.go): a
// migration-statement slice run once at Open, and upsert-by-primary-key
// writes via `ON CONFLICT ... DO UPDATE`. Uses modernc.org/sqlite (pure Go,
// no cgo) rather than database/sql's default driver registry assumptions,
// the same driver the teacher's go.mod already pulls in.
//
// Explicitly out of scope (spec.md §1): a durable format for the model,
// mixtures, or row file itself. Only the checkpoint record and the
// assignments snapshot — both already pure, small, in-memory structures —
// are written here.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/assignments"
)

// Migrations returns the schema migration statements, run once per Open.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id          TEXT PRIMARY KEY,
			seed            INTEGER NOT NULL,
			row_count       INTEGER NOT NULL,
			tardis_iter     INTEGER NOT NULL,
			unassigned_pos  INTEGER NOT NULL,
			assigned_pos    INTEGER NOT NULL,
			schedule_state  TEXT NOT NULL,
			finished        INTEGER NOT NULL DEFAULT 0,
			updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS assignment_snapshots (
			run_id  TEXT PRIMARY KEY,
			payload TEXT NOT NULL
		)`,
	}
}

// DB wraps a *sql.DB opened against the modernc.org/sqlite driver.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and runs
// every pending migration.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, domain.ErrIO)
	}
	db := &DB{db: sqlDB}
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("store: migrate: %w", domain.ErrIO)
		}
	}
	return db, nil
}

// Close closes the underlying database handle.
func (db *DB) Close() error { return db.db.Close() }

// Checkpoint is the round-trippable state snapshot spec.md §6 names.
type Checkpoint struct {
	Seed           int64
	RowCount       uint64
	TardisIter     uint64
	UnassignedPos  int
	AssignedPos    int
	ScheduleState  []byte // caller-opaque; schedule.BatchedAnnealing.Dump(), json-encoded by the caller
	Finished       bool
}

// SaveCheckpoint upserts cp under runID, overwriting any prior checkpoint
// for the same run.
func (db *DB) SaveCheckpoint(runID string, cp Checkpoint) error {
	_, err := db.db.Exec(`
		INSERT INTO checkpoints (run_id, seed, row_count, tardis_iter, unassigned_pos, assigned_pos, schedule_state, finished, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(run_id) DO UPDATE SET
			seed           = excluded.seed,
			row_count      = excluded.row_count,
			tardis_iter    = excluded.tardis_iter,
			unassigned_pos = excluded.unassigned_pos,
			assigned_pos   = excluded.assigned_pos,
			schedule_state = excluded.schedule_state,
			finished       = excluded.finished,
			updated_at     = datetime('now')
	`, runID, cp.Seed, cp.RowCount, cp.TardisIter, cp.UnassignedPos, cp.AssignedPos, string(cp.ScheduleState), boolToInt(cp.Finished))
	if err != nil {
		return fmt.Errorf("store: save checkpoint %s: %w", runID, domain.ErrIO)
	}
	return nil
}

// LoadCheckpoint reads back the checkpoint saved under runID. ok is false
// if no checkpoint has been saved for that run.
func (db *DB) LoadCheckpoint(runID string) (cp Checkpoint, ok bool, err error) {
	var finishedInt int
	var scheduleState string
	row := db.db.QueryRow(`
		SELECT seed, row_count, tardis_iter, unassigned_pos, assigned_pos, schedule_state, finished
		FROM checkpoints WHERE run_id = ?
	`, runID)
	err = row.Scan(&cp.Seed, &cp.RowCount, &cp.TardisIter, &cp.UnassignedPos, &cp.AssignedPos, &scheduleState, &finishedInt)
	if err == sql.ErrNoRows {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("store: load checkpoint %s: %w", runID, domain.ErrIO)
	}
	cp.ScheduleState = []byte(scheduleState)
	cp.Finished = finishedInt != 0
	return cp, true, nil
}

// assignmentsBlob is the JSON shape stored in assignment_snapshots.payload.
type assignmentsBlob struct {
	Records        []assignments.Record          `json:"records"`
	SortedToGlobal [][]domain.GlobalGroupID       `json:"sorted_to_global"`
}

// SaveAssignments upserts the assignments snapshot under runID.
func (db *DB) SaveAssignments(runID string, records []assignments.Record, sortedToGlobal [][]domain.GlobalGroupID) error {
	blob := assignmentsBlob{Records: records, SortedToGlobal: sortedToGlobal}
	encoded, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("store: encode assignments %s: %w", runID, domain.ErrIO)
	}
	_, err = db.db.Exec(`
		INSERT INTO assignment_snapshots (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET payload = excluded.payload
	`, runID, string(encoded))
	if err != nil {
		return fmt.Errorf("store: save assignments %s: %w", runID, domain.ErrIO)
	}
	return nil
}

// LoadAssignments reads back the assignments snapshot saved under runID.
func (db *DB) LoadAssignments(runID string) (records []assignments.Record, sortedToGlobal [][]domain.GlobalGroupID, ok bool, err error) {
	var encoded string
	row := db.db.QueryRow(`SELECT payload FROM assignment_snapshots WHERE run_id = ?`, runID)
	if scanErr := row.Scan(&encoded); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("store: load assignments %s: %w", runID, domain.ErrIO)
	}
	var blob assignmentsBlob
	if jsonErr := json.Unmarshal([]byte(encoded), &blob); jsonErr != nil {
		return nil, nil, false, fmt.Errorf("store: decode assignments %s: %w", runID, domain.ErrParse)
	}
	return blob.Records, blob.SortedToGlobal, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
