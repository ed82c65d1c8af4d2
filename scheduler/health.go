package scheduler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Version   string          `json:"version,omitempty"`
	Scheduler SchedulerHealth `json:"scheduler"`
	System    SystemHealth    `json:"system"`
}

// SchedulerHealth represents scheduler-specific health information
type SchedulerHealth struct {
	IsRunning              bool       `json:"is_running"`
	HasForecast            bool       `json:"has_forecast"`
	LastRun                *time.Time `json:"last_run,omitempty"`
	LastError              string     `json:"last_error,omitempty"`
	WeatherSource          string     `json:"weather_source"`
	Storage                string     `json:"storage"`
	ForecastUpdateInterval string     `json:"forecast_update_interval"`
}

// SystemHealth represents system-level health information
type SystemHealth struct {
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines,omitempty"`
}

func (hs *WebServer) buildHealth() HealthResponse {
	status := hs.scheduler.GetStatus()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		Scheduler: SchedulerHealth{
			IsRunning:              status.IsRunning,
			HasForecast:            status.HasForecast,
			LastRun:                status.LastRun,
			LastError:              status.LastError,
			WeatherSource:          status.WeatherSource,
			Storage:                status.Storage,
			ForecastUpdateInterval: hs.scheduler.GetConfig().ForecastUpdateInterval.String(),
		},
		System: SystemHealth{
			Uptime:     formatUptime(time.Since(hs.startTime)),
			Goroutines: runtime.NumGoroutine(),
		},
	}

	if !status.IsRunning {
		health.Status = "unhealthy"
	}
	return health
}

// healthHandler handles the /api/health endpoint
func (hs *WebServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := hs.buildHealth()

	w.Header().Set("Content-Type", "application/json")
	if health.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// readinessHandler handles the /api/ready endpoint. The service is ready once
// a forecast is available.
func (hs *WebServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := hs.scheduler.GetStatus()
	ready := status.IsRunning && status.HasForecast

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := map[string]any{
		"ready":     ready,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// formatUptime formats a duration as a string with seconds rounded to integer
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
