package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndRecent(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := db.Record(Run{
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Status:     StatusPublished,
			EventCount: 10 + i,
			PrevSteps:  1,
			NextSteps:  2,
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	runs, err := db.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len = %d, want 3", len(runs))
	}
	// Newest first.
	if runs[0].EventCount != 12 || runs[2].EventCount != 10 {
		t.Errorf("order wrong: %+v", runs)
	}
	if runs[0].Status != StatusPublished || runs[0].PrevSteps != 1 || runs[0].NextSteps != 2 {
		t.Errorf("fields lost: %+v", runs[0])
	}
}

func TestRecent_Limit(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := db.Record(Run{StartedAt: base.Add(time.Duration(i) * time.Minute), FinishedAt: base, Status: StatusError}); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := db.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("len = %d, want 2", len(runs))
	}
}

func TestRecord_RollbackFlagRoundTrips(t *testing.T) {
	db := openTestDB(t)
	err := db.Record(Run{
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Status:     StatusValidationFailed,
		Reason:     "window count mismatch",
		RolledBack: true,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	runs, err := db.Recent(1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("recent: %v, %d runs", err, len(runs))
	}
	if !runs[0].RolledBack || runs[0].Reason != "window count mismatch" {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestRecent_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	runs, err := db.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("len = %d, want 0", len(runs))
	}
}
