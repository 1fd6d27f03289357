package models

import (
	"sync"
	"time"
)

// Status is the lifecycle state shared by jobs and batches.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Mode is where a conversion runs.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeEdge  Mode = "edge"
)

// ProcessingMode is the per-job mode decision together with its reason.
type ProcessingMode struct {
	Mode   Mode   `json:"mode"`
	Reason string `json:"reason"`
}

// CodecCapabilities is the immutable capability record of a codec backend.
type CodecCapabilities struct {
	Decode      []string `json:"decode"`
	Encode      []string `json:"encode"`
	SIMD        bool     `json:"simd"`
	Threads     bool     `json:"threads"`
	MaxFileSize int64    `json:"maxFileSize"`
}

func (c CodecCapabilities) CanDecode(format string) bool { return containsFormat(c.Decode, format) }

func (c CodecCapabilities) CanEncode(format string) bool { return containsFormat(c.Encode, format) }

func containsFormat(list []string, format string) bool {
	format = NormalizeFormat(format)
	for _, f := range list {
		if NormalizeFormat(f) == format {
			return true
		}
	}
	return false
}

// ConversionJob is one file's unit of work inside a batch. It is mutated only
// by the scheduler, under the owning batch's lock.
type ConversionJob struct {
	ID            string             `json:"id"`
	File          *File              `json:"-"`
	FileName      string             `json:"fileName"`
	Settings      ConversionSettings `json:"settings"`
	Status        Status             `json:"status"`
	Progress      float64            `json:"progress"`
	Result        *ConversionResult  `json:"result,omitempty"`
	Error         string             `json:"error,omitempty"`
	EstimatedSize int64              `json:"estimatedSize,omitempty"`
	ActualSize    int64              `json:"actualSize,omitempty"`
}

// BatchConversion is the live aggregate for a set of jobs sharing one
// settings object. Fields change only inside Update; readers use Snapshot.
type BatchConversion struct {
	mu             sync.RWMutex
	ID             string
	Jobs           []*ConversionJob
	Status         Status
	Progress       float64
	TotalFiles     int
	CompletedFiles int
	CreatedAt      time.Time
}

// BatchSnapshot is a point-in-time copy of a batch that is safe to share.
type BatchSnapshot struct {
	ID             string          `json:"id"`
	Jobs           []ConversionJob `json:"jobs"`
	Status         Status          `json:"status"`
	Progress       float64         `json:"progress"`
	TotalFiles     int             `json:"totalFiles"`
	CompletedFiles int             `json:"completedFiles"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Update runs fn with the batch locked for writing.
func (b *BatchConversion) Update(fn func(b *BatchConversion)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

// Snapshot copies the batch and its jobs under the read lock.
func (b *BatchConversion) Snapshot() BatchSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	jobs := make([]ConversionJob, len(b.Jobs))
	for i, j := range b.Jobs {
		jobs[i] = *j
	}
	return BatchSnapshot{
		ID:             b.ID,
		Jobs:           jobs,
		Status:         b.Status,
		Progress:       b.Progress,
		TotalFiles:     b.TotalFiles,
		CompletedFiles: b.CompletedFiles,
		CreatedAt:      b.CreatedAt,
	}
}

// RecomputeProgress sets Progress from the completed/total counters.
// Callers must hold the write lock (i.e. be inside Update).
func (b *BatchConversion) RecomputeProgress() {
	if b.TotalFiles == 0 {
		b.Progress = 0
		return
	}
	b.Progress = float64(b.CompletedFiles) / float64(b.TotalFiles) * 100
}
