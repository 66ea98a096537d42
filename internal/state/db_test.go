// internal/state/db_test.go
package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestOpen_CreatesDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "history.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	for _, name := range []string{"build_history", "schema_version"} {
		var tableName string
		err := db.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", name,
		).Scan(&tableName)
		if err != nil {
			t.Errorf("table %s not created: %v", name, err)
		}
	}

	for _, name := range []string{"idx_build_history_state", "idx_build_history_started"} {
		var indexName string
		err := db.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", name,
		).Scan(&indexName)
		if err != nil {
			t.Errorf("index %s not created: %v", name, err)
		}
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.RecordBuild(BuildRecord{TriggerType: "manual", State: StateSuccess,
		StartedAt: time.Now(), FinishedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	var versions int
	db.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&versions)
	if versions != 1 {
		t.Errorf("expected one schema_version row, got %d", versions)
	}
	records, err := db.GetHistory("", 0)
	if err != nil || len(records) != 1 {
		t.Errorf("expected record to survive reopen, got %d (%v)", len(records), err)
	}
}

func TestRecordBuild(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	now := time.Now()
	rec := BuildRecord{
		TriggerType:   "webhook",
		TriggerDetail: "deploy\nfrom ci",
		State:         StateSuccess,
		StartedAt:     now.Add(-2 * time.Second),
		FinishedAt:    now,
		DurationMs:    2000,
		PagesRendered: 12,
		FilesCopied:   30,
	}

	id, err := db.RecordBuild(rec)
	if err != nil {
		t.Fatalf("RecordBuild() error = %v", err)
	}
	if id == 0 {
		t.Error("RecordBuild() returned id = 0, want > 0")
	}

	last, err := db.LastBuild()
	if err != nil {
		t.Fatalf("LastBuild() error = %v", err)
	}
	if last.ID != id || last.PagesRendered != 12 || last.FilesCopied != 30 {
		t.Errorf("unexpected record: %+v", last)
	}
	if last.TriggerDetail != "deploy from ci" {
		t.Errorf("expected sanitized detail, got %q", last.TriggerDetail)
	}
	if last.StartedAt.UnixMilli() != rec.StartedAt.UnixMilli() {
		t.Errorf("started_at = %v, want %v", last.StartedAt, rec.StartedAt)
	}
}

func TestRecordBuild_ScrubsError(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	_, err := db.RecordBuild(BuildRecord{
		TriggerType: "scheduled", State: StateFailure,
		StartedAt: time.Now(), FinishedAt: time.Now(),
		Error: "fetching https://cms.test/data?token=hunter2: 500 " + strings.Repeat("x", 5000),
	})
	if err != nil {
		t.Fatalf("RecordBuild() error = %v", err)
	}

	last, _ := db.LastBuild()
	if strings.Contains(last.Error, "hunter2") {
		t.Errorf("error not scrubbed: %q", last.Error)
	}
	if len(last.Error) > maxErrorLength {
		t.Errorf("error not truncated: %d bytes", len(last.Error))
	}
}

func TestRecordBuild_TruncatesOnRuneBoundary(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// "a" shifts every "é" so the byte limit falls inside one
	_, err := db.RecordBuild(BuildRecord{
		TriggerType: "manual", State: StateFailure,
		StartedAt: time.Now(), FinishedAt: time.Now(),
		Error: "a" + strings.Repeat("é", maxErrorLength),
	})
	if err != nil {
		t.Fatalf("RecordBuild() error = %v", err)
	}

	last, _ := db.LastBuild()
	if !utf8.ValidString(last.Error) {
		t.Error("stored error is not valid UTF-8")
	}
	if len(last.Error) != maxErrorLength-1 {
		t.Errorf("stored error is %d bytes, want %d", len(last.Error), maxErrorLength-1)
	}
}

func TestRecordBuild_InvalidState(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if _, err := db.RecordBuild(BuildRecord{TriggerType: "manual", State: "timeout"}); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestGetHistory_FilterByState(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	insertTestRecords(t, db, time.Now())

	records, err := db.GetHistory(StateFailure, 100)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(records))
	}
	for _, r := range records {
		if r.State != StateFailure {
			t.Errorf("expected state=failure, got %q", r.State)
		}
	}
}

func TestGetHistory_OrderAndLimit(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	insertTestRecords(t, db, time.Now())

	records, err := db.GetHistory("", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("GetHistory() returned %d records, want 2", len(records))
	}
	if !records[0].StartedAt.After(records[1].StartedAt) {
		t.Error("expected newest record first")
	}
	if records[0].Error != "layout not found" {
		t.Errorf("unexpected newest record: %+v", records[0])
	}
}

func TestGetHistory_Empty(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	records, err := db.GetHistory("", 100)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("GetHistory() returned %d records, want 0", len(records))
	}
}

func TestLastBuild_NoRecords(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	last, err := db.LastBuild()
	if err != nil {
		t.Fatalf("LastBuild() error = %v", err)
	}
	if last != nil {
		t.Errorf("LastBuild() = %+v, want nil", last)
	}
}

func TestCleanup(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	now := time.Now()
	db.RecordBuild(BuildRecord{
		TriggerType: "scheduled", TriggerDetail: "old", State: StateSuccess,
		StartedAt: now.Add(-100 * 24 * time.Hour), FinishedAt: now.Add(-100 * 24 * time.Hour),
	})
	db.RecordBuild(BuildRecord{
		TriggerType: "scheduled", TriggerDetail: "recent", State: StateSuccess,
		StartedAt: now.Add(-24 * time.Hour), FinishedAt: now.Add(-24 * time.Hour),
	})

	deleted, err := db.Cleanup(90)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup() deleted %d records, want 1", deleted)
	}

	records, _ := db.GetHistory("", 100)
	if len(records) != 1 || records[0].TriggerDetail != "recent" {
		t.Errorf("expected only the recent record to remain, got %+v", records)
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}

func insertTestRecords(t *testing.T, db *DB, now time.Time) {
	t.Helper()
	records := []BuildRecord{
		{
			TriggerType: "scheduled", State: StateSuccess,
			StartedAt: now.Add(-60 * time.Second), FinishedAt: now.Add(-50 * time.Second),
			DurationMs: 10000, PagesRendered: 4,
		},
		{
			TriggerType: "watch", State: StateFailure,
			StartedAt: now.Add(-40 * time.Second), FinishedAt: now.Add(-30 * time.Second),
			DurationMs: 10000, Error: "template: index:1: unexpected EOF",
		},
		{
			TriggerType: "webhook", State: StateCancelled,
			StartedAt: now.Add(-20 * time.Second), FinishedAt: now.Add(-15 * time.Second),
			DurationMs: 5000,
		},
		{
			TriggerType: "manual", State: StateFailure,
			StartedAt: now.Add(-10 * time.Second), FinishedAt: now,
			DurationMs: 10000, Error: "layout not found",
		},
	}
	for _, r := range records {
		if _, err := db.RecordBuild(r); err != nil {
			t.Fatalf("RecordBuild() error = %v", err)
		}
	}
}
