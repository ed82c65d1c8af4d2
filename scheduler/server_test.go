package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestWebServer(t *testing.T) (*ForecastScheduler, *WebServer) {
	t.Helper()
	config := testConfig(t)
	config.WebPort = 8080
	s, err := NewForecastSchedulerWithWebServer(config, nil)
	if err != nil {
		t.Fatalf("NewForecastSchedulerWithWebServer failed: %v", err)
	}
	s.source = &staticSource{series: solsticeSeries()}
	s.nowFunc = fixedNow(time.Date(2024, 6, 21, 0, 30, 0, 0, time.UTC))
	if s.webServer == nil {
		t.Fatal("Expected web server to be created")
	}
	return s, s.webServer
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewWebServerDisabled(t *testing.T) {
	s := newTestScheduler(t, testConfig(t))
	if hs := NewWebServer(s, 0); hs != nil {
		t.Error("Expected nil web server for port 0")
	}

	var hs *WebServer
	if err := hs.Start(); err != nil {
		t.Errorf("Start on disabled server should be a no-op, got %v", err)
	}
	if err := hs.Stop(context.Background()); err != nil {
		t.Errorf("Stop on disabled server should be a no-op, got %v", err)
	}
	hs.BroadcastForecast(nil)
}

func TestHealthAndReadiness(t *testing.T) {
	s, hs := newTestWebServer(t)
	h := hs.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 while stopped, got %d", rec.Code)
	}

	s.mu.Lock()
	s.isRunning = true
	s.mu.Unlock()

	rec = doRequest(t, h, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 while running, got %d", rec.Code)
	}
	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != "healthy" || health.Version != Version {
		t.Errorf("Unexpected health response: %+v", health)
	}
	if health.Scheduler.WeatherSource != "static" || health.Scheduler.Storage != "csv" {
		t.Errorf("Unexpected scheduler health: %+v", health.Scheduler)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before the first forecast, got %d", rec.Code)
	}

	if _, err := s.RunForecast(context.Background()); err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 after the first forecast, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/health", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestForecastEndpoint(t *testing.T) {
	s, hs := newTestWebServer(t)
	h := hs.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/forecast", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without forecast, got %d", rec.Code)
	}

	f, err := s.RunForecast(context.Background())
	if err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/forecast", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		ID       string  `json:"id"`
		TotalKWh float64 `json:"total_kwh"`
		Points   []any   `json:"points"`
		Daily    []any   `json:"daily"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode forecast: %v", err)
	}
	if body.ID != f.ID {
		t.Errorf("Expected forecast %s, got %s", f.ID, body.ID)
	}
	if len(body.Points) != len(f.Points) || len(body.Daily) != len(f.Daily) {
		t.Errorf("Expected %d points and %d days, got %d and %d",
			len(f.Points), len(f.Daily), len(body.Points), len(body.Daily))
	}

	rec = doRequest(t, h, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"has_forecast":true`) {
		t.Errorf("Unexpected status response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestFeedbackEndpoint(t *testing.T) {
	s, hs := newTestWebServer(t)
	h := hs.Handler()

	if _, err := s.RunForecast(context.Background()); err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}

	badRequests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{"actual_kwh":`},
		{"missing actual", `{"date":"2024-06-21"}`},
		{"negative actual", `{"date":"2024-06-21","actual_kwh":-3}`},
		{"bad date", `{"date":"21.06.2024","actual_kwh":30}`},
	}
	for _, tt := range badRequests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/feedback", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	rec := doRequest(t, h, http.MethodPost, "/api/feedback", `{"date":"2024-06-21","actual_kwh":42.5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"2024-06-21"`) {
		t.Errorf("Expected entry date in response: %s", rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/feedback", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var summary struct {
		Count int     `json:"count"`
		Bias  float64 `json:"bias"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode feedback summary: %v", err)
	}
	if summary.Count != 1 {
		t.Errorf("Expected 1 entry, got %d", summary.Count)
	}
	if summary.Bias <= 0 || summary.Bias == 1.0 {
		t.Errorf("Expected bias derived from the entry, got %f", summary.Bias)
	}

	rec = doRequest(t, h, http.MethodDelete, "/api/feedback", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestChartEndpoint(t *testing.T) {
	s, hs := newTestWebServer(t)
	h := hs.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/chart.png", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without forecast, got %d", rec.Code)
	}

	if _, err := s.RunForecast(context.Background()); err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/chart.png", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("Expected PNG signature")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, hs := newTestWebServer(t)
	h := hs.Handler()

	if _, err := s.RunForecast(context.Background()); err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}
	doRequest(t, h, http.MethodGet, "/api/forecast", "")

	rec := doRequest(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"pvyield_forecast_runs_total",
		"pvyield_bias_factor",
		"pvyield_forecast_energy_kwh",
		"pvyield_http_requests_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metric %s in output", name)
		}
	}
}

func TestWebSocketForecastUpdates(t *testing.T) {
	s, hs := newTestWebServer(t)

	if _, err := s.RunForecast(context.Background()); err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}

	// drop the update queued before any client connected
	for len(hs.broadcast) > 0 {
		<-hs.broadcast
	}

	srv := httptest.NewServer(hs.Handler())
	defer srv.Close()
	go hs.handleBroadcasts()
	defer close(hs.done)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	readMessage := func() ForecastMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
		var msg ForecastMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		return msg
	}

	// current forecast on connect
	msg := readMessage()
	if msg.Type != "forecast_update" || msg.Forecast == nil {
		t.Fatalf("Unexpected initial message: %+v", msg)
	}
	firstID := msg.Forecast.ID

	// new forecast is pushed
	f, err := s.RunForecast(context.Background())
	if err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}
	msg = readMessage()
	if msg.Forecast == nil || msg.Forecast.ID != f.ID || msg.Forecast.ID == firstID {
		t.Errorf("Expected pushed forecast %s, got %+v", f.ID, msg.Forecast)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{2*time.Hour + 1*time.Minute + 500*time.Millisecond, "2h1m1s"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%s) = %s, want %s", tt.d, got, tt.want)
		}
	}
}
