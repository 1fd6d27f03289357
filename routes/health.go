package routes

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"pixconv/logger"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	StartTime string            `json:"start_time"`
	Checks    map[string]string `json:"checks,omitempty"`
}

var startTime = time.Now()

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler reports process health and the state of the history stores.
// Any failing store turns the answer into a 503.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}

	checks := map[string]string{}
	status, code := "healthy", http.StatusOK
	check := func(name string, fn func() error) {
		if err := fn(); err != nil {
			logger.Warnf("[routes] health check %s failed: %v", name, err)
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			return
		}
		checks[name] = "ok"
	}
	if s.Success != nil {
		check("success_store", s.Success.CheckHealth)
	}
	if s.Failures != nil {
		check("failure_store", s.Failures.CheckHealth)
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   buildVersion(),
		GoVersion: runtime.Version(),
		Uptime:    formatUptime(time.Since(startTime)),
		StartTime: startTime.Format("2006-01-02 15:04:05 MST"),
		Checks:    checks,
	})
}
