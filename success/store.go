package success

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pixconv/models"
	"pixconv/store"
)

const keyPrefix = "job/"

// SuccessRecord represents a finished conversion job
type SuccessRecord struct {
	JobID            string      `json:"job_id"`
	BatchID          string      `json:"batch_id"`
	FileName         string      `json:"file_name"`
	OutputName       string      `json:"output_name"`
	Mode             models.Mode `json:"mode"`
	OriginalSize     int64       `json:"original_size"`
	CompressedSize   int64       `json:"compressed_size"`
	CompressionRatio float64     `json:"compression_ratio"`
	ProcessingMillis int64       `json:"processing_ms"`
	Timestamp        time.Time   `json:"timestamp"`
}

// Store keeps success records in a pebble DB
type Store struct {
	db *store.DB
}

// Open opens the success store at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open success store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the success store
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordJob stores the outcome of a completed job
func (s *Store) RecordJob(batchID string, job models.ConversionJob) error {
	if job.Result == nil {
		return fmt.Errorf("job %s has no result", job.ID)
	}
	return s.put(SuccessRecord{
		JobID:            job.ID,
		BatchID:          batchID,
		FileName:         job.FileName,
		OutputName:       job.Result.Filename,
		Mode:             job.Result.Mode,
		OriginalSize:     job.Result.OriginalSize,
		CompressedSize:   job.Result.CompressedSize,
		CompressionRatio: job.Result.CompressionRatio,
		ProcessingMillis: job.Result.ProcessingMillis(),
		Timestamp:        time.Now(),
	})
}

func (s *Store) put(record SuccessRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal success record: %w", err)
	}
	return s.db.Put(keyPrefix+record.JobID, data)
}

// GetSuccess retrieves a success record by job id. A missing record is
// returned as nil without error.
func (s *Store) GetSuccess(jobID string) (*SuccessRecord, error) {
	data, err := s.db.Get(keyPrefix + jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var record SuccessRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal success record: %w", err)
	}
	return &record, nil
}

// DeleteSuccess removes a success record
func (s *Store) DeleteSuccess(jobID string) error {
	return s.db.Delete(keyPrefix + jobID)
}

// ListSuccessRecords returns all success records, optionally restricted to
// one batch.
func (s *Store) ListSuccessRecords(batchID string) ([]SuccessRecord, error) {
	var records []SuccessRecord
	err := s.db.Each(keyPrefix, func(_ string, value []byte) bool {
		var record SuccessRecord
		if json.Unmarshal(value, &record) != nil {
			return true // skip invalid records
		}
		if batchID == "" || record.BatchID == batchID {
			records = append(records, record)
		}
		return true
	})
	return records, err
}

// CleanupOldRecords removes records older than maxAge and returns how many
// were deleted.
func (s *Store) CleanupOldRecords(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	var stale []string
	err := s.db.Each(keyPrefix, func(key string, value []byte) bool {
		var record SuccessRecord
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
			return 0, fmt.Errorf("failed to delete record %s: %w", key, err)
		}
	}
	return len(stale), nil
}

// CheckHealth performs a basic health check on the success store
func (s *Store) CheckHealth() error {
	return s.db.CheckHealth()
}
