package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"pixconv/edge"
	"pixconv/logger"
	"pixconv/metrics"
	"pixconv/models"
)

// ConvertHandler is the edge endpoint. GET answers availability probes;
// POST converts the multipart "file" according to the "settings" field.
func (s *Server) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case http.MethodPost:
		s.requireAuth(s.convert)(w, r)
	default:
		methodAllowed(w, r)
	}
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	defer func() { metrics.ObserveEdgeRequest(status) }()
	fail := func(code int, msg string) {
		status = code
		writeError(w, code, msg)
	}

	if s.Converter == nil {
		fail(http.StatusServiceUnavailable, "converter not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload())
	file, settings, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		fail(http.StatusBadRequest, err.Error())
		return
	}
	if claims := claimsFrom(r.Context()); claims != nil && claims.MaxBytes > 0 && file.Size > claims.MaxBytes {
		fail(http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes allowed by token", claims.MaxBytes))
		return
	}

	logger.Debugf("[routes] edge convert %s (%d bytes) to %s", file.Name, file.Size, settings.TargetFormat())
	res, err := s.Converter.ConvertImage(r.Context(), file, settings)
	if err != nil {
		code := conversionStatus(err)
		logger.Warnf("[routes] edge convert %s failed: %v", file.Name, err)
		fail(code, models.JobErrorMessage(err))
		return
	}

	h := w.Header()
	h.Set("Content-Type", res.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	h.Set("Content-Length", strconv.Itoa(len(res.Blob)))
	h.Set(edge.HeaderOriginalSize, strconv.FormatInt(res.OriginalSize, 10))
	h.Set(edge.HeaderCompressedSize, strconv.FormatInt(res.CompressedSize, 10))
	h.Set(edge.HeaderCompressionRatio, strconv.FormatFloat(res.CompressionRatio, 'f', 1, 64))
	h.Set(edge.HeaderProcessingTime, strconv.FormatInt(res.ProcessingMillis(), 10))
	if res.Metadata.Width > 0 {
		h.Set(edge.HeaderImageWidth, strconv.Itoa(res.Metadata.Width))
		h.Set(edge.HeaderImageHeight, strconv.Itoa(res.Metadata.Height))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Blob); err != nil {
		logger.Debugf("[routes] write response for %s: %v", file.Name, err)
	}
}

// readUpload parses the multipart "file" part and the optional "settings"
// JSON field.
func readUpload(r *http.Request) (*models.File, models.ConversionSettings, error) {
	var settings models.ConversionSettings
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, settings, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	if raw := r.FormValue("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			return nil, settings, fmt.Errorf("invalid settings: %w", err)
		}
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		return nil, settings, fmt.Errorf("failed to get file from form: %w", err)
	}
	defer part.Close()
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, settings, err
	}
	return models.NewBytesFile(header.Filename, header.Header.Get("Content-Type"), data), settings, nil
}

func conversionStatus(err error) int {
	var (
		invalid *models.FileValidationError
		proc    *models.ProcessingError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &proc):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
