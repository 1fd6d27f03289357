package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pixconv/logger"
	"pixconv/metrics"
	"pixconv/models"
)

const (
	DefaultMaxConcurrentJobs = 3
	MinConcurrentJobs        = 1
	MaxConcurrentJobs        = 10
)

var ErrBatchNotFound = errors.New("batch not found")

// Converter runs one conversion. The orchestrator satisfies it.
type Converter interface {
	ConvertImage(ctx context.Context, file *models.File, settings models.ConversionSettings) (*models.ConversionResult, error)
}

// Hooks are called after state changes, outside any batch lock.
type Hooks struct {
	// OnJobDone is called once per job that reaches a terminal state,
	// including cancelled jobs.
	OnJobDone func(batchID string, job models.ConversionJob)
	// OnBatchDone is called when every job of a batch completed.
	OnBatchDone func(batch models.BatchSnapshot)
}

type queued struct {
	batch *models.BatchConversion
	job   *models.ConversionJob
}

// Scheduler fans batches out to a Converter in chunks of bounded size. The
// queue is shared by all batches; chunk N settles before chunk N+1 starts.
type Scheduler struct {
	ctx   context.Context
	conv  Converter
	hooks Hooks

	mu       sync.Mutex
	queue    []queued
	batches  map[string]*models.BatchConversion
	order    []string
	maxJobs  int
	paused   bool
	draining bool
	idle     chan struct{}
}

// NewScheduler returns a scheduler whose conversions run under ctx.
func NewScheduler(ctx context.Context, conv Converter, hooks Hooks) *Scheduler {
	idle := make(chan struct{})
	close(idle)
	return &Scheduler{
		ctx:     ctx,
		conv:    conv,
		hooks:   hooks,
		batches: make(map[string]*models.BatchConversion),
		maxJobs: DefaultMaxConcurrentJobs,
		idle:    idle,
	}
}

// CreateBatch registers one pending job per file, enqueues them and starts
// draining in the background. The returned batch is live. A batch without
// files is completed on creation and fires no hooks.
func (s *Scheduler) CreateBatch(files []*models.File, settings models.ConversionSettings) *models.BatchConversion {
	id := "batch_" + uuid.NewString()
	b := &models.BatchConversion{
		ID:         id,
		Status:     models.StatusPending,
		TotalFiles: len(files),
		CreatedAt:  time.Now(),
	}
	if len(files) == 0 {
		b.Status = models.StatusCompleted
		b.Progress = 100
	}
	for i, f := range files {
		b.Jobs = append(b.Jobs, &models.ConversionJob{
			ID:            fmt.Sprintf("%s_%d", id, i),
			File:          f,
			FileName:      f.Name,
			Settings:      settings,
			Status:        models.StatusPending,
			EstimatedSize: EstimateSize(f.Size, settings),
		})
	}

	s.mu.Lock()
	s.batches[id] = b
	s.order = append(s.order, id)
	for _, j := range b.Jobs {
		s.queue = append(s.queue, queued{batch: b, job: j})
	}
	s.mu.Unlock()

	logger.Infof("[batch] %s created with %d files", id, len(files))
	s.trigger()
	return b
}

// GetBatch returns the live batch with id.
func (s *Scheduler) GetBatch(id string) (*models.BatchConversion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	return b, ok
}

// Batches returns snapshots of all batches in creation order.
func (s *Scheduler) Batches() []models.BatchSnapshot {
	s.mu.Lock()
	list := make([]*models.BatchConversion, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.batches[id])
	}
	s.mu.Unlock()

	out := make([]models.BatchSnapshot, len(list))
	for i, b := range list {
		out[i] = b.Snapshot()
	}
	return out
}

// Job returns a copy of the job with jobID. Job ids embed their batch id.
func (s *Scheduler) Job(jobID string) (models.ConversionJob, bool) {
	i := strings.LastIndex(jobID, "_")
	if i <= 0 {
		return models.ConversionJob{}, false
	}
	b, ok := s.GetBatch(jobID[:i])
	if !ok {
		return models.ConversionJob{}, false
	}
	for _, j := range b.Snapshot().Jobs {
		if j.ID == jobID {
			return j, true
		}
	}
	return models.ConversionJob{}, false
}

// CancelBatch marks every unfinished job of the batch as cancelled and the
// batch as failed. Conversions already running are not interrupted; their
// results are discarded.
func (s *Scheduler) CancelBatch(id string) error {
	b, ok := s.GetBatch(id)
	if !ok {
		return ErrBatchNotFound
	}
	var cancelled []models.ConversionJob
	b.Update(func(b *models.BatchConversion) {
		for _, j := range b.Jobs {
			if j.Status.Terminal() {
				continue
			}
			j.Status = models.StatusError
			j.Error = models.CancelledMessage
			cancelled = append(cancelled, *j)
		}
		b.Status = models.StatusError
	})
	logger.Infof("[batch] %s cancelled, %d jobs stopped", id, len(cancelled))
	for _, j := range cancelled {
		metrics.ObserveBatchJob("cancelled")
		s.jobDone(id, j)
	}
	return nil
}

// PauseProcessing stops new chunks from starting. Running jobs finish.
func (s *Scheduler) PauseProcessing() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	logger.Infof("[batch] processing paused")
}

// ResumeProcessing restarts draining if jobs are queued.
func (s *Scheduler) ResumeProcessing() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	logger.Infof("[batch] processing resumed")
	s.trigger()
}

// Paused reports whether processing is paused.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetMaxConcurrentJobs sets the chunk size, clamped to [1,10]. It applies
// from the next chunk on.
func (s *Scheduler) SetMaxConcurrentJobs(n int) {
	n = max(MinConcurrentJobs, min(MaxConcurrentJobs, n))
	s.mu.Lock()
	s.maxJobs = n
	s.mu.Unlock()
}

// MaxConcurrentJobs returns the current chunk size.
func (s *Scheduler) MaxConcurrentJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxJobs
}

// QueueLength returns the number of jobs waiting to start.
func (s *Scheduler) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Wait blocks until the scheduler is idle: nothing is running and the queue
// is empty or paused.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.draining {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining || s.paused || len(s.queue) == 0 {
		return
	}
	s.draining = true
	s.idle = make(chan struct{})
	go s.drain()
}

func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if s.paused || len(s.queue) == 0 {
			s.draining = false
			close(s.idle)
			s.mu.Unlock()
			return
		}
		n := min(s.maxJobs, len(s.queue))
		chunk := make([]queued, n)
		copy(chunk, s.queue)
		s.queue = s.queue[n:]
		s.mu.Unlock()

		var g errgroup.Group
		for _, q := range chunk {
			g.Go(func() error {
				s.runJob(q.batch, q.job)
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (s *Scheduler) runJob(b *models.BatchConversion, job *models.ConversionJob) {
	var (
		file     *models.File
		settings models.ConversionSettings
		skip     bool
	)
	b.Update(func(b *models.BatchConversion) {
		if job.Status.Terminal() {
			skip = true
			return
		}
		job.Status = models.StatusProcessing
		if b.Status == models.StatusPending {
			b.Status = models.StatusProcessing
		}
		file, settings = job.File, job.Settings
	})
	if skip {
		logger.Debugf("[batch] %s skipped, cancelled before start", job.ID)
		return
	}

	res, err := s.conv.ConvertImage(s.ctx, file, settings)

	var (
		done      models.ConversionJob
		completed bool
		discarded bool
	)
	b.Update(func(b *models.BatchConversion) {
		if job.Status.Terminal() {
			discarded = true
			return
		}
		if err != nil {
			job.Status = models.StatusError
			job.Error = models.JobErrorMessage(err)
			b.Status = models.StatusError
		} else {
			job.Status = models.StatusCompleted
			job.Progress = 100
			job.Result = res
			job.ActualSize = res.CompressedSize
			b.CompletedFiles++
			b.RecomputeProgress()
			if b.CompletedFiles == b.TotalFiles && b.Status != models.StatusError {
				b.Status = models.StatusCompleted
				completed = true
			}
		}
		done = *job
	})
	if discarded {
		logger.Debugf("[batch] %s finished after cancellation, result discarded", job.ID)
		return
	}

	metrics.ObserveBatchJob(string(done.Status))
	if err != nil {
		logger.Warnf("[batch] %s failed: %v", job.ID, err)
	} else {
		logger.Debugf("[batch] %s completed (%d bytes)", job.ID, done.ActualSize)
	}
	s.jobDone(b.ID, done)

	if completed {
		logger.Infof("[batch] %s completed", b.ID)
		if s.hooks.OnBatchDone != nil {
			s.hooks.OnBatchDone(b.Snapshot())
		}
	}
}

func (s *Scheduler) jobDone(batchID string, job models.ConversionJob) {
	if s.hooks.OnJobDone != nil {
		s.hooks.OnJobDone(batchID, job)
	}
}
