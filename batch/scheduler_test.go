package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pixconv/models"
)

type fakeConverter struct {
	fail    map[string]bool
	delay   time.Duration
	started chan string
	release chan struct{}

	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeConverter) ConvertImage(ctx context.Context, file *models.File, settings models.ConversionSettings) (*models.ConversionResult, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if f.started != nil {
		f.started <- file.Name
	}
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail[file.Name] {
		return nil, errors.New("decode failed for " + file.Name)
	}
	return models.NewResult([]byte("out"), models.ImageMetadata{Format: settings.TargetFormat()}, file.Size), nil
}

func files(names ...string) []*models.File {
	out := make([]*models.File, len(names))
	for i, n := range names {
		out[i] = models.NewBytesFile(n, "image/png", make([]byte, 100))
	}
	return out
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// One failing job marks the whole batch as failed even though the other
// jobs complete.
func TestFirstErrorFailsBatch(t *testing.T) {
	conv := &fakeConverter{fail: map[string]bool{"c.png": true}}
	s := NewScheduler(context.Background(), conv, Hooks{})

	b := s.CreateBatch(files("a.png", "b.png", "c.png", "d.png"), models.ConversionSettings{Format: "webp"})
	waitIdle(t, s)

	snap := b.Snapshot()
	if snap.CompletedFiles != 3 || snap.TotalFiles != 4 || snap.Progress != 75 {
		t.Errorf("counts = %d/%d progress %v", snap.CompletedFiles, snap.TotalFiles, snap.Progress)
	}
	if snap.Status != models.StatusError {
		t.Errorf("batch status = %s, want error", snap.Status)
	}
	failed := snap.Jobs[2]
	if failed.Status != models.StatusError || !strings.Contains(failed.Error, "decode failed") {
		t.Errorf("failed job = %+v", failed)
	}
	for _, i := range []int{0, 1, 3} {
		if j := snap.Jobs[i]; j.Status != models.StatusCompleted || j.Progress != 100 || j.ActualSize != 3 {
			t.Errorf("job %d = %+v", i, j)
		}
	}
}

func TestCompletedBatchFiresHook(t *testing.T) {
	var mu sync.Mutex
	var jobsDone []string
	var batchDone []models.BatchSnapshot
	s := NewScheduler(context.Background(), &fakeConverter{}, Hooks{
		OnJobDone: func(_ string, j models.ConversionJob) {
			mu.Lock()
			jobsDone = append(jobsDone, j.ID)
			mu.Unlock()
		},
		OnBatchDone: func(b models.BatchSnapshot) {
			mu.Lock()
			batchDone = append(batchDone, b)
			mu.Unlock()
		},
	})

	b := s.CreateBatch(files("a.png", "b.png"), models.ConversionSettings{Format: "jpg"})
	if !strings.HasPrefix(b.ID, "batch_") || b.Jobs[1].ID != b.ID+"_1" {
		t.Errorf("ids = %s / %s", b.ID, b.Jobs[1].ID)
	}
	if b.Jobs[0].EstimatedSize <= 0 {
		t.Error("estimated size not filled")
	}
	waitIdle(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(jobsDone) != 2 || len(batchDone) != 1 {
		t.Fatalf("hooks: jobs=%v batches=%d", jobsDone, len(batchDone))
	}
	if batchDone[0].Status != models.StatusCompleted || batchDone[0].Progress != 100 {
		t.Errorf("batch = %+v", batchDone[0])
	}
	if job, ok := s.Job(b.ID + "_0"); !ok || job.Result == nil {
		t.Errorf("Job lookup = %+v, %v", job, ok)
	}
	if _, ok := s.Job("batch_missing_0"); ok {
		t.Error("unknown job found")
	}
}

func TestConcurrencyCeiling(t *testing.T) {
	conv := &fakeConverter{delay: 20 * time.Millisecond}
	s := NewScheduler(context.Background(), conv, Hooks{})
	s.SetMaxConcurrentJobs(2)

	b := s.CreateBatch(files("1.png", "2.png", "3.png", "4.png", "5.png"), models.ConversionSettings{Format: "webp"})
	waitIdle(t, s)

	if got := conv.maxActive.Load(); got > 2 || got < 1 {
		t.Errorf("max concurrent conversions = %d, want <= 2", got)
	}
	if conv.calls.Load() != 5 || b.Snapshot().Status != models.StatusCompleted {
		t.Errorf("calls = %d status = %s", conv.calls.Load(), b.Snapshot().Status)
	}
}

// heldConverter blocks the named files until release is closed and returns
// every other file at once.
type heldConverter struct {
	held    map[string]bool
	release chan struct{}
	started chan string
}

func (h *heldConverter) ConvertImage(ctx context.Context, file *models.File, settings models.ConversionSettings) (*models.ConversionResult, error) {
	h.started <- file.Name
	if h.held[file.Name] {
		<-h.release
	}
	return models.NewResult([]byte("out"), models.ImageMetadata{Format: settings.TargetFormat()}, file.Size), nil
}

// The next chunk starts only once every job of the current chunk settled,
// even when a slot frees up early.
func TestNextChunkWaitsForSlowestJob(t *testing.T) {
	conv := &heldConverter{
		held:    map[string]bool{"1.png": true},
		release: make(chan struct{}),
		started: make(chan string, 3),
	}
	finished := make(chan string, 3)
	s := NewScheduler(context.Background(), conv, Hooks{
		OnJobDone: func(_ string, job models.ConversionJob) { finished <- job.FileName },
	})
	s.SetMaxConcurrentJobs(2)
	s.CreateBatch(files("1.png", "2.png", "3.png"), models.ConversionSettings{Format: "webp"})

	select {
	case name := <-finished:
		if name != "2.png" {
			t.Fatalf("first finished job = %s, want 2.png", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("2.png never finished")
	}

	first := map[string]bool{}
	for len(first) < 2 {
		first[<-conv.started] = true
	}
	if !first["1.png"] || !first["2.png"] {
		t.Fatalf("first chunk started %v", first)
	}
	select {
	case name := <-conv.started:
		t.Fatalf("%s started while 1.png was still running", name)
	case <-time.After(100 * time.Millisecond):
	}

	close(conv.release)
	select {
	case name := <-conv.started:
		if name != "3.png" {
			t.Errorf("second chunk started %s", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("3.png never started after the first chunk settled")
	}
	waitIdle(t, s)
}

func TestEmptyBatchCompletesImmediately(t *testing.T) {
	var hooks atomic.Int32
	s := NewScheduler(context.Background(), &fakeConverter{}, Hooks{
		OnBatchDone: func(models.BatchSnapshot) { hooks.Add(1) },
	})
	b := s.CreateBatch(nil, models.ConversionSettings{Format: "webp"})
	waitIdle(t, s)

	snap := b.Snapshot()
	if snap.Status != models.StatusCompleted || snap.TotalFiles != 0 || snap.Progress != 100 {
		t.Errorf("empty batch = %+v", snap)
	}
	if got, ok := s.GetBatch(b.ID); !ok || got != b {
		t.Error("empty batch should still be registered")
	}
	if hooks.Load() != 0 {
		t.Error("empty batch must not be packaged")
	}
}

func TestSetMaxConcurrentJobsClamps(t *testing.T) {
	s := NewScheduler(context.Background(), &fakeConverter{}, Hooks{})
	if s.MaxConcurrentJobs() != 3 {
		t.Errorf("default = %d", s.MaxConcurrentJobs())
	}
	for in, want := range map[int]int{0: 1, -4: 1, 5: 5, 11: 10, 100: 10} {
		s.SetMaxConcurrentJobs(in)
		if got := s.MaxConcurrentJobs(); got != want {
			t.Errorf("SetMaxConcurrentJobs(%d) -> %d, want %d", in, got, want)
		}
	}
}

func TestCancelDiscardsLateResult(t *testing.T) {
	conv := &fakeConverter{started: make(chan string, 4), release: make(chan struct{})}
	var done atomic.Int32
	s := NewScheduler(context.Background(), conv, Hooks{
		OnJobDone: func(string, models.ConversionJob) { done.Add(1) },
	})
	s.SetMaxConcurrentJobs(1)

	b := s.CreateBatch(files("a.png", "b.png"), models.ConversionSettings{Format: "webp"})
	<-conv.started
	if err := s.CancelBatch(b.ID); err != nil {
		t.Fatalf("CancelBatch: %v", err)
	}
	close(conv.release)
	waitIdle(t, s)

	snap := b.Snapshot()
	if snap.Status != models.StatusError || snap.CompletedFiles != 0 {
		t.Errorf("batch = %s completed %d", snap.Status, snap.CompletedFiles)
	}
	for _, j := range snap.Jobs {
		if j.Status != models.StatusError || j.Error != models.CancelledMessage || j.Result != nil {
			t.Errorf("job %s = %+v", j.ID, j)
		}
	}
	if conv.calls.Load() != 1 {
		t.Errorf("cancelled pending job still ran: %d calls", conv.calls.Load())
	}
	if done.Load() != 2 {
		t.Errorf("OnJobDone called %d times, want 2", done.Load())
	}
	if err := s.CancelBatch("batch_nope"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestPauseAndResume(t *testing.T) {
	conv := &fakeConverter{}
	s := NewScheduler(context.Background(), conv, Hooks{})
	s.PauseProcessing()

	b := s.CreateBatch(files("a.png", "b.png", "c.png"), models.ConversionSettings{Format: "webp"})
	waitIdle(t, s)
	if conv.calls.Load() != 0 || s.QueueLength() != 3 || !s.Paused() {
		t.Fatalf("paused scheduler ran jobs: calls=%d queue=%d", conv.calls.Load(), s.QueueLength())
	}
	if b.Snapshot().Status != models.StatusPending {
		t.Errorf("status = %s", b.Snapshot().Status)
	}

	s.ResumeProcessing()
	waitIdle(t, s)
	if b.Snapshot().Status != models.StatusCompleted || s.QueueLength() != 0 {
		t.Errorf("after resume: status %s queue %d", b.Snapshot().Status, s.QueueLength())
	}
	if len(s.Batches()) != 1 {
		t.Errorf("Batches = %d", len(s.Batches()))
	}
}

func TestEstimateSize(t *testing.T) {
	if got := EstimateSize(1000, models.ConversionSettings{Format: "png"}); got != 1000 {
		t.Errorf("png estimate = %d", got)
	}
	if got := EstimateSize(1000, models.ConversionSettings{Format: "webp"}); got != 450 {
		t.Errorf("webp estimate = %d", got)
	}
	low := EstimateSize(1000, models.ConversionSettings{Format: "jpg", Quality: models.IntPtr(30)})
	high := EstimateSize(1000, models.ConversionSettings{Format: "jpg", Quality: models.IntPtr(100)})
	if low >= high {
		t.Errorf("quality should scale estimate: %d vs %d", low, high)
	}
	if EstimateSize(0, models.ConversionSettings{Format: "jpg"}) != 0 {
		t.Error("empty file should estimate 0")
	}
}
