package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"

	"pixconv/batch"
	"pixconv/logger"
	"pixconv/models"
)

// CreateBatchHandler accepts multipart "files" (or "files[]") plus a
// "settings" JSON field and starts a batch.
func (s *Server) CreateBatchHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}
	if s.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}
	var settings models.ConversionSettings
	if raw := r.FormValue("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
			return
		}
	}

	headers := slices.Concat(r.MultipartForm.File["files"], r.MultipartForm.File["files[]"])
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required")
		return
	}
	files := make([]*models.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		files = append(files, f)
	}

	b := s.Scheduler.CreateBatch(files, settings)
	logger.Infof("[routes] batch %s accepted (%d files)", b.ID, len(files))
	writeJSON(w, http.StatusAccepted, b.Snapshot())
}

func readPart(fh *multipart.FileHeader) (*models.File, error) {
	part, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer part.Close()
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return models.NewBytesFile(fh.Filename, fh.Header.Get("Content-Type"), data), nil
}

// BatchStatusHandler returns one batch by id, or every batch without an id.
func (s *Server) BatchStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	if s.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		batches := s.Scheduler.Batches()
		writeJSON(w, http.StatusOK, map[string]any{"batches": batches, "count": len(batches)})
		return
	}
	b, ok := s.Scheduler.GetBatch(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Batch %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, b.Snapshot())
}

// JobResultHandler downloads the output of a completed job.
func (s *Server) JobResultHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	if s.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	id := r.URL.Query().Get("job")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job parameter required")
		return
	}
	job, ok := s.Scheduler.Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Job %s not found", id))
		return
	}
	if job.Status != models.StatusCompleted || job.Result == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("Job %s is %s", id, job.Status))
		return
	}
	w.Header().Set("Content-Type", job.Result.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": job.Result.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(job.Result.Blob)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(job.Result.Blob)
}

// CancelBatchHandler cancels a batch by id
func (s *Server) CancelBatchHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodDelete, http.MethodPost) {
		return
	}
	if s.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing id parameter")
		return
	}
	if err := s.Scheduler.CancelBatch(id); err != nil {
		if errors.Is(err, batch.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Batch %s not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type queueState struct {
	Paused            bool `json:"paused"`
	Queued            int  `json:"queued"`
	MaxConcurrentJobs int  `json:"maxConcurrentJobs"`
}

func (s *Server) queueState() queueState {
	return queueState{
		Paused:            s.Scheduler.Paused(),
		Queued:            s.Scheduler.QueueLength(),
		MaxConcurrentJobs: s.Scheduler.MaxConcurrentJobs(),
	}
}

func (s *Server) PauseHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}
	if s.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	s.Scheduler.PauseProcessing()
	writeJSON(w, http.StatusOK, s.queueState())
}

func (s *Server) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}
	if s.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	s.Scheduler.ResumeProcessing()
	writeJSON(w, http.StatusOK, s.queueState())
}

// ConcurrencyHandler reports the queue state on GET. POST changes the chunk
// size from a JSON body {"maxConcurrentJobs": n}, clamped to [1,10].
func (s *Server) ConcurrencyHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if s.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, s.queueState())
		return
	}
	var body struct {
		MaxConcurrentJobs int `json:"maxConcurrentJobs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.Scheduler.SetMaxConcurrentJobs(body.MaxConcurrentJobs)
	writeJSON(w, http.StatusOK, s.queueState())
}
