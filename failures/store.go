package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pixconv/models"
	"pixconv/store"
)

const keyPrefix = "job/"

// FailureRecord represents a conversion job that ended in error
type FailureRecord struct {
	JobID     string      `json:"job_id"`
	BatchID   string      `json:"batch_id"`
	FileName  string      `json:"file_name"`
	Format    string      `json:"format"`
	Error     string      `json:"error"`
	Mode      models.Mode `json:"mode,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Store keeps failure records in a pebble DB
type Store struct {
	db *store.DB
}

// Open opens the failure store at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the failure store
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordJob stores a failed job. Cancelled jobs are recorded too so the
// history shows why a batch stopped.
func (s *Store) RecordJob(batchID string, job models.ConversionJob) error {
	record := FailureRecord{
		JobID:     job.ID,
		BatchID:   batchID,
		FileName:  job.FileName,
		Format:    job.Settings.TargetFormat(),
		Error:     job.Error,
		Timestamp: time.Now(),
	}
	if record.Error == "" {
		record.Error = models.JobErrorMessage(nil)
	}
	if job.Result != nil {
		record.Mode = job.Result.Mode
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}
	return s.db.Put(keyPrefix+record.JobID, data)
}

// GetFailure retrieves a failure record by job id. A missing record is
// returned as nil without error.
func (s *Store) GetFailure(jobID string) (*FailureRecord, error) {
	data, err := s.db.Get(keyPrefix + jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var record FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}
	return &record, nil
}

// DeleteFailure removes a failure record
func (s *Store) DeleteFailure(jobID string) error {
	return s.db.Delete(keyPrefix + jobID)
}

// ListFailures returns all failure records, optionally restricted to one
// batch.
func (s *Store) ListFailures(batchID string) ([]FailureRecord, error) {
	var records []FailureRecord
	err := s.db.Each(keyPrefix, func(_ string, value []byte) bool {
		var record FailureRecord
		if json.Unmarshal(value, &record) != nil {
			return true
		}
		if batchID == "" || record.BatchID == batchID {
			records = append(records, record)
		}
		return true
	})
	return records, err
}

// CleanupOldFailures removes failure records older than maxAge
func (s *Store) CleanupOldFailures(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	var stale []string
	err := s.db.Each(keyPrefix, func(key string, value []byte) bool {
		var record FailureRecord
		if json.Unmarshal(value, &record) != nil || record.Timestamp.Before(cutoff) {
			stale = append(stale, key)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	for _, key := range stale {
		if err := s.db.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to delete failure %s: %w", key, err)
		}
	}
	return len(stale), nil
}

// CheckHealth performs a basic health check on the failure store
func (s *Store) CheckHealth() error {
	return s.db.CheckHealth()
}
