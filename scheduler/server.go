package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/devskill-org/pvyield/chart"
	"github.com/devskill-org/pvyield/forecast"
	"github.com/devskill-org/pvyield/utils"
)

// WebServer provides the HTTP API: health, forecast, feedback, chart,
// websocket updates and metrics.
type WebServer struct {
	scheduler *ForecastScheduler
	server    *http.Server
	port      int
	startTime time.Time
	upgrader  websocket.Upgrader
	clients   sync.Map // *websocket.Conn -> *sync.Mutex guarding writes
	broadcast chan []byte
	done      chan struct{}
	logger    *zap.Logger
}

// ForecastMessage is pushed to websocket clients when a forecast is updated.
type ForecastMessage struct {
	Type     string             `json:"type"`
	Forecast *forecast.Forecast `json:"forecast"`
}

// feedbackRequest is the body of POST /api/feedback.
type feedbackRequest struct {
	Date      string   `json:"date"`
	ActualKWh *float64 `json:"actual_kwh"`
}

// NewWebServer creates a new web server. It returns nil when port is not positive.
func NewWebServer(scheduler *ForecastScheduler, port int) *WebServer {
	if port <= 0 {
		return nil // Web server disabled
	}

	mux := http.NewServeMux()
	logger := scheduler.logger.Named("web")
	hs := &WebServer{
		scheduler: scheduler,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		logger:    logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      withAccessLog(logger, mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	hs.registerRoutes(mux)
	return hs
}

func (hs *WebServer) registerRoutes(mux *http.ServeMux) {
	metrics := hs.scheduler.Metrics()
	route := func(path string, h http.HandlerFunc) {
		mux.Handle(path, metrics.WrapHandler(path, gziphandler.GzipHandler(h)))
	}

	route("/api/health", hs.healthHandler)
	route("/api/ready", hs.readinessHandler)
	route("/api/status", hs.statusHandler)
	route("/api/forecast", hs.forecastHandler)
	route("/api/feedback", hs.feedbackHandler)
	mux.Handle("/api/chart.png", metrics.WrapHandler("/api/chart.png", http.HandlerFunc(hs.chartHandler)))

	// the upgrade needs the raw connection, so no wrapping here
	mux.HandleFunc("/api/ws", hs.wsHandler)

	mux.Handle("/metrics", metrics.Handler())
}

// withAccessLog logs every request at debug level and turns handler panics
// into 500 responses.
func withAccessLog(logger *zap.Logger, h http.Handler) http.Handler {
	accessLog, err := zap.NewStdLogAt(logger.Named("access"), zap.DebugLevel)
	if err != nil {
		accessLog = zap.NewStdLog(logger.Named("access"))
	}
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(logger)))
	return recovery(handlers.CombinedLoggingHandler(accessLog.Writer(), h))
}

// Handler returns the HTTP handler of the server.
func (hs *WebServer) Handler() http.Handler {
	return hs.server.Handler
}

// Start starts the web server
func (hs *WebServer) Start() error {
	if hs == nil {
		return nil // Web server disabled
	}

	ln, err := net.Listen("tcp", hs.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", hs.server.Addr, err)
	}

	go hs.handleBroadcasts()

	go func() {
		if err := hs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Error("Web server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the web server
func (hs *WebServer) Stop(ctx context.Context) error {
	if hs == nil {
		return nil // Web server disabled
	}

	select {
	case <-hs.done:
	default:
		close(hs.done)
	}

	hs.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})

	return hs.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusHandler handles the /api/status endpoint
func (hs *WebServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scheduler_status": hs.scheduler.GetStatus(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

// forecastHandler handles the /api/forecast endpoint
func (hs *WebServer) forecastHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f := hs.scheduler.LatestForecast()
	if f == nil {
		writeError(w, http.StatusServiceUnavailable, "no forecast available yet")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// feedbackHandler lists the feedback log (GET) or records an actual yield (POST).
func (hs *WebServer) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, bias, err := hs.scheduler.FeedbackSummary(r.Context())
		if err != nil {
			hs.logger.Error("Failed to read feedback log", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to read feedback log")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"entries": entries,
			"count":   len(entries),
			"bias":    bias,
		})

	case http.MethodPost:
		var req feedbackRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.ActualKWh == nil {
			writeError(w, http.StatusBadRequest, "actual_kwh is required")
			return
		}
		if !validYield(*req.ActualKWh) {
			writeError(w, http.StatusBadRequest, ErrInvalidYield.Error())
			return
		}

		date, err := utils.ParseDate(req.Date, hs.scheduler.location())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		entry, err := hs.scheduler.LogActualYield(r.Context(), date, *req.ActualKWh)
		if err != nil {
			hs.logger.Error("Failed to record feedback", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to record feedback")
			return
		}
		writeJSON(w, http.StatusCreated, entry)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// chartHandler renders the latest forecast as PNG.
func (hs *WebServer) chartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f := hs.scheduler.LatestForecast()
	if f == nil {
		writeError(w, http.StatusServiceUnavailable, "no forecast available yet")
		return
	}

	opts := chart.DefaultOptions()
	opts.Location = hs.scheduler.location()
	opts.Title = fmt.Sprintf("PV forecast %.1f kWh (bias %.2f)", f.TotalKWh, f.Bias)

	var buf bytes.Buffer
	if err := chart.Render(&buf, f.Points, opts); err != nil {
		hs.logger.Error("Failed to render chart", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render chart")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(buf.Bytes()) //nolint:errcheck
}

// wsHandler handles WebSocket connections
func (hs *WebServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := hs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hs.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	hs.clients.Store(conn, &sync.Mutex{})
	hs.logger.Debug("WebSocket client connected", zap.Int("clients", hs.clientCount()))

	// Send the current forecast immediately
	if f := hs.scheduler.LatestForecast(); f != nil {
		if message, err := json.Marshal(ForecastMessage{Type: "forecast_update", Forecast: f}); err == nil {
			hs.writeToClient(conn, message)
		}
	}

	defer func() {
		hs.clients.Delete(conn)
		conn.Close()
		hs.logger.Debug("WebSocket client disconnected", zap.Int("clients", hs.clientCount()))
	}()

	// Read messages from client (ping/pong, close)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hs.logger.Warn("WebSocket error", zap.Error(err))
			}
			break
		}
	}
}

func (hs *WebServer) clientCount() int {
	count := 0
	hs.clients.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// writeToClient sends message to conn, dropping the client on failure.
func (hs *WebServer) writeToClient(conn *websocket.Conn, message []byte) {
	value, ok := hs.clients.Load(conn)
	if !ok {
		return
	}
	mu := value.(*sync.Mutex)

	mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck
	err := conn.WriteMessage(websocket.TextMessage, message)
	mu.Unlock()

	if err != nil {
		hs.logger.Warn("WebSocket write error", zap.Error(err))
		conn.Close()
		hs.clients.Delete(conn)
	}
}

// handleBroadcasts sends messages to all connected clients
func (hs *WebServer) handleBroadcasts() {
	for {
		select {
		case message := <-hs.broadcast:
			hs.clients.Range(func(key, value any) bool {
				if conn, ok := key.(*websocket.Conn); ok {
					hs.writeToClient(conn, message)
				}
				return true
			})
		case <-hs.done:
			return
		}
	}
}

// BroadcastForecast queues a forecast_update message for all clients. The
// message is dropped when the queue is full.
func (hs *WebServer) BroadcastForecast(f *forecast.Forecast) {
	if hs == nil || f == nil {
		return
	}

	message, err := json.Marshal(ForecastMessage{Type: "forecast_update", Forecast: f})
	if err != nil {
		hs.logger.Error("Failed to marshal forecast update", zap.Error(err))
		return
	}

	select {
	case hs.broadcast <- message:
	default:
		hs.logger.Warn("Broadcast queue full, dropping forecast update")
	}
}
