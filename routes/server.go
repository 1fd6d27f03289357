package routes

import (
	"context"
	"encoding/json"
	"net/http"

	"pixconv/batch"
	"pixconv/codec"
	"pixconv/credentials"
	"pixconv/failures"
	"pixconv/logger"
	"pixconv/metrics"
	"pixconv/models"
	"pixconv/success"
)

const defaultMaxUpload = 100 << 20

// Converter runs a single conversion for the edge endpoint.
type Converter interface {
	ConvertImage(ctx context.Context, file *models.File, settings models.ConversionSettings) (*models.ConversionResult, error)
}

// Server holds the collaborators behind the HTTP API. Nil collaborators make
// their endpoints answer 503.
type Server struct {
	Converter      Converter
	Scheduler      *batch.Scheduler
	Registry       *codec.Registry
	Success        *success.Store
	Failures       *failures.Store
	Credentials    *credentials.Store
	JWTSecret      string
	MaxUploadBytes int64
	// ServeDir, when set, is exposed under /files/ for packaged archives.
	ServeDir string
}

// Handler registers every route on a new mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/convert", s.ConvertHandler)
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/version", VersionHandler)
	mux.HandleFunc("/codecs", s.CodecsHandler)

	mux.HandleFunc("/batches", s.requireAuth(s.CreateBatchHandler))
	mux.HandleFunc("/batches/status", s.BatchStatusHandler)
	mux.HandleFunc("/batches/result", s.JobResultHandler)
	mux.HandleFunc("/batches/cancel", s.requireAuth(s.CancelBatchHandler))
	mux.HandleFunc("/queue/pause", s.requireAuth(s.PauseHandler))
	mux.HandleFunc("/queue/resume", s.requireAuth(s.ResumeHandler))
	mux.HandleFunc("/queue/concurrency", s.requireAuth(s.ConcurrencyHandler))

	mux.HandleFunc("/failures", s.FailureQueryHandler)
	mux.HandleFunc("/failures/list", s.FailureListHandler)
	mux.HandleFunc("/success", s.SuccessQueryHandler)
	mux.HandleFunc("/success/list", s.SuccessListHandler)
	mux.HandleFunc("/credentials", s.requireAuth(s.RegisterCredentialsHandler))

	mux.Handle("/metrics", metrics.Handler())
	if s.ServeDir != "" {
		mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(s.ServeDir))))
	}
	return mux
}

func (s *Server) maxUpload() int64 {
	if s.MaxUploadBytes > 0 {
		return s.MaxUploadBytes
	}
	return defaultMaxUpload
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("[routes] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodAllowed(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	logger.Warnf("[routes] invalid method %s for %s", r.Method, r.URL.Path)
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" not configured")
}
