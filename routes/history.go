package routes

import (
	"encoding/json"
	"net/http"

	"pixconv/logger"
)

// FailureQueryHandler returns the failure record of one job
func (s *Server) FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	if s.Failures == nil {
		unavailable(w, "failure store")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter required")
		return
	}
	record, err := s.Failures.GetFailure(id)
	if err != nil {
		logger.Errorf("[routes] failed to query failure for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "no failure recorded"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// FailureListHandler lists failures, optionally for one batch
func (s *Server) FailureListHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	if s.Failures == nil {
		unavailable(w, "failure store")
		return
	}
	list, err := s.Failures.ListFailures(r.URL.Query().Get("batch"))
	if err != nil {
		logger.Errorf("[routes] failed to list failures: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": list, "count": len(list)})
}

// SuccessQueryHandler returns the success record of one job
func (s *Server) SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	if s.Success == nil {
		unavailable(w, "success store")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter required")
		return
	}
	record, err := s.Success.GetSuccess(id)
	if err != nil {
		logger.Errorf("[routes] failed to query success for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "no success record for "+id)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// SuccessListHandler lists success records, optionally for one batch
func (s *Server) SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	if s.Success == nil {
		unavailable(w, "success store")
		return
	}
	list, err := s.Success.ListSuccessRecords(r.URL.Query().Get("batch"))
	if err != nil {
		logger.Errorf("[routes] failed to list success records: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": list, "count": len(list)})
}

// RegisterCredentialsHandler stores a JSON object of backend credentials and
// returns the storage key to reference them by.
func (s *Server) RegisterCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}
	if s.Credentials == nil {
		unavailable(w, "credential store")
		return
	}
	creds := make(map[string]string)
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&creds); err != nil || len(creds) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	key, err := s.Credentials.Register(creds)
	if err != nil {
		logger.Errorf("[routes] failed to store credentials: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to store credentials")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"storage_key": key})
}
