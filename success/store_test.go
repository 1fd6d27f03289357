package success

import (
	"path/filepath"
	"testing"
	"time"

	"pixconv/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "success.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := openTestStore(t)
	res := models.NewResult([]byte("12345"), models.ImageMetadata{Format: "webp"}, 10)
	res.Filename = "a.webp"
	res.Mode = models.ModeLocal
	job := models.ConversionJob{ID: "batch_1_0", FileName: "a.png", Result: res}

	if err := s.RecordJob("batch_1", job); err != nil {
		t.Fatalf("RecordJob: %v", err)
	}
	rec, err := s.GetSuccess("batch_1_0")
	if err != nil || rec == nil {
		t.Fatalf("GetSuccess = %v, %v", rec, err)
	}
	if rec.BatchID != "batch_1" || rec.OutputName != "a.webp" || rec.CompressionRatio != 50 || rec.Mode != models.ModeLocal {
		t.Errorf("unexpected record %+v", rec)
	}

	missing, err := s.GetSuccess("nope")
	if err != nil || missing != nil {
		t.Errorf("missing record = %v, %v", missing, err)
	}
	if err := s.RecordJob("batch_1", models.ConversionJob{ID: "x"}); err == nil {
		t.Error("expected error for job without result")
	}
}

func TestListAndCleanup(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	for _, r := range []SuccessRecord{
		{JobID: "a_0", BatchID: "a", Timestamp: now},
		{JobID: "a_1", BatchID: "a", Timestamp: now.Add(-40 * 24 * time.Hour)},
		{JobID: "b_0", BatchID: "b", Timestamp: now},
	} {
		if err := s.put(r); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	all, err := s.ListSuccessRecords("")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all = %d, %v", len(all), err)
	}
	onlyA, _ := s.ListSuccessRecords("a")
	if len(onlyA) != 2 {
		t.Errorf("batch filter returned %d records", len(onlyA))
	}

	n, err := s.CleanupOldRecords(30 * 24 * time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("cleanup = %d, %v", n, err)
	}
	if rec, _ := s.GetSuccess("a_1"); rec != nil {
		t.Error("old record survived cleanup")
	}
	if err := s.CheckHealth(); err != nil {
		t.Errorf("CheckHealth: %v", err)
	}
}
