package store

import (
	"path/filepath"
	"testing"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/assignments"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "checkpoint.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveLoadCheckpoint(t *testing.T) {
	db := newTestDB(t)

	cp := Checkpoint{
		Seed:          42,
		RowCount:      1000,
		TardisIter:    7,
		UnassignedPos: 12,
		AssignedPos:   3,
		ScheduleState: []byte(`{"AnnealingState":1.5,"StaleCount":3,"FreshCount":0}`),
		Finished:      false,
	}
	if err := db.SaveCheckpoint("run-1", cp); err != nil {
		t.Fatalf("SaveCheckpoint() error: %v", err)
	}

	got, ok, err := db.LoadCheckpoint("run-1")
	if err != nil {
		t.Fatalf("LoadCheckpoint() error: %v", err)
	}
	if !ok {
		t.Fatal("LoadCheckpoint() ok = false, want true")
	}
	if got != cp {
		t.Errorf("LoadCheckpoint() = %+v, want %+v", got, cp)
	}
}

func TestSaveCheckpointOverwrites(t *testing.T) {
	db := newTestDB(t)

	db.SaveCheckpoint("run-1", Checkpoint{Seed: 1, RowCount: 10})
	db.SaveCheckpoint("run-1", Checkpoint{Seed: 1, RowCount: 20, Finished: true})

	got, ok, err := db.LoadCheckpoint("run-1")
	if err != nil || !ok {
		t.Fatalf("LoadCheckpoint() = %+v, %v, %v", got, ok, err)
	}
	if got.RowCount != 20 || !got.Finished {
		t.Errorf("LoadCheckpoint() = %+v, want row_count=20 finished=true", got)
	}
}

func TestLoadCheckpointNotFound(t *testing.T) {
	db := newTestDB(t)

	_, ok, err := db.LoadCheckpoint("missing")
	if err != nil {
		t.Fatalf("LoadCheckpoint() error: %v", err)
	}
	if ok {
		t.Error("LoadCheckpoint() ok = true, want false")
	}
}

func TestSaveLoadAssignments(t *testing.T) {
	db := newTestDB(t)

	records := []assignments.Record{
		{RowID: 0, GroupIDs: []domain.GlobalGroupID{0, 1}},
		{RowID: 1, GroupIDs: []domain.GlobalGroupID{1, 0}},
	}
	sortedToGlobal := [][]domain.GlobalGroupID{{5, 6}, {9, 10}}

	if err := db.SaveAssignments("run-1", records, sortedToGlobal); err != nil {
		t.Fatalf("SaveAssignments() error: %v", err)
	}

	gotRecords, gotSorted, ok, err := db.LoadAssignments("run-1")
	if err != nil {
		t.Fatalf("LoadAssignments() error: %v", err)
	}
	if !ok {
		t.Fatal("LoadAssignments() ok = false, want true")
	}
	if len(gotRecords) != len(records) || gotRecords[0].RowID != 0 || gotRecords[1].GroupIDs[0] != 1 {
		t.Errorf("LoadAssignments() records = %+v", gotRecords)
	}
	if len(gotSorted) != 2 || gotSorted[0][1] != 6 {
		t.Errorf("LoadAssignments() sortedToGlobal = %+v", gotSorted)
	}
}

func TestOpenRunsMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.db")

	db1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	db1.SaveCheckpoint("run-1", Checkpoint{Seed: 1})
	db1.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer db2.Close()

	_, ok, err := db2.LoadCheckpoint("run-1")
	if err != nil || !ok {
		t.Fatalf("LoadCheckpoint() after reopen = %v, %v", ok, err)
	}
}
