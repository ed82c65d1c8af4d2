package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/devskill-org/pvyield/feedback"
	"github.com/devskill-org/pvyield/forecast"
	"github.com/devskill-org/pvyield/openmeteo"
	"github.com/devskill-org/pvyield/utils"
	"github.com/devskill-org/pvyield/weather"
	"github.com/devskill-org/pvyield/yield"
)

// ErrInvalidYield is returned when an actual yield is negative or not a number.
var ErrInvalidYield = errors.New("actual yield must be a non-negative number")

// PeriodicTask represents a task that runs periodically with an optional initial delay
type PeriodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func()
}

// run executes the periodic task in a loop, respecting the initial delay and context cancellation
func (pt *PeriodicTask) run(ctx context.Context, stopChan <-chan struct{}, logger *zap.Logger) {
	logger = logger.With(zap.String("task", pt.name))

	if pt.initialDelay > 0 {
		logger.Debug("Waiting for initial delay", zap.Duration("delay", pt.initialDelay))
		select {
		case <-time.After(pt.initialDelay):
			pt.runFunc()
		case <-ctx.Done():
			logger.Info("Stopped during initial delay due to context cancellation")
			return
		case <-stopChan:
			logger.Info("Stopped during initial delay due to stop signal")
			return
		}
	} else {
		pt.runFunc()
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	logger.Info("Task started", zap.Duration("interval", pt.interval))

	for {
		select {
		case <-ticker.C:
			pt.runFunc()
		case <-ctx.Done():
			logger.Info("Stopped due to context cancellation")
			return
		case <-stopChan:
			logger.Info("Stopped due to stop signal")
			return
		}
	}
}

// PlantReader reads the current PV power from the plant.
type PlantReader interface {
	ReadPVPower() (float64, error)
	Close() error
}

// ForecastScheduler keeps the PV yield forecast up to date, records the
// actual yield and serves both over HTTP.
type ForecastScheduler struct {
	// Configuration
	config *Config

	// State
	latest      *forecast.Forecast
	predictions map[string]yield.DailyTotal // full-day raw predictions by date
	lastRun     time.Time
	lastErr     error
	isRunning   bool
	stopChan    chan struct{}
	mu          sync.RWMutex

	// Weather
	source       weather.Source
	openMeteo    *openmeteo.Client
	weatherCache WeatherForecastCache
	fetchGroup   singleflight.Group

	// Feedback and persistence
	store           feedback.Store
	predictionStore feedback.PredictionStore
	db              *sql.DB

	// PV metering
	pvSamples *PVSamples
	cron      *cron.Cron

	metrics   *Metrics
	webServer *WebServer
	publisher ForecastPublisher
	logger    *zap.Logger

	// Test hooks for dependency injection
	plantDialFunc func() (PlantReader, error)
	nowFunc       func() time.Time
}

// NewForecastScheduler creates a new scheduler instance. Feedback goes to the
// CSV file until ConnectDB switches it to Postgres.
func NewForecastScheduler(config *Config, logger *zap.Logger) (*ForecastScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	source, omClient, err := newWeatherSource(config, logger)
	if err != nil {
		return nil, err
	}

	s := &ForecastScheduler{
		config:      config,
		predictions: make(map[string]yield.DailyTotal),
		stopChan:    make(chan struct{}),
		source:      source,
		openMeteo:   omClient,
		weatherCache: WeatherForecastCache{
			cacheDuration: config.WeatherCacheDuration,
		},
		store:     feedback.NewCSVStore(config.FeedbackFile),
		pvSamples: &PVSamples{},
		metrics:   NewMetrics(),
		logger:    logger,
		nowFunc:   time.Now,
	}
	s.plantDialFunc = s.dialPlant
	if config.PredictionsFile != "" {
		s.predictionStore = feedback.NewCSVPredictionStore(config.PredictionsFile)
	}

	return s, nil
}

// NewForecastSchedulerWithWebServer creates a scheduler that also serves the
// HTTP API on config.WebPort.
func NewForecastSchedulerWithWebServer(config *Config, logger *zap.Logger) (*ForecastScheduler, error) {
	s, err := NewForecastScheduler(config, logger)
	if err != nil {
		return nil, err
	}
	s.webServer = NewWebServer(s, config.WebPort)
	return s, nil
}

// ConnectDB opens the Postgres database when configured, creates the tables
// and stores feedback and predictions there from now on.
func (s *ForecastScheduler) ConnectDB(ctx context.Context) error {
	config := s.GetConfig()
	if config.PostgresConnString == "" {
		return nil
	}

	db, err := feedback.OpenPostgres(ctx, config.PostgresConnString)
	if err != nil {
		return err
	}

	store := feedback.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return err
	}
	if err := ensureForecastSchema(ctx, db); err != nil {
		db.Close()
		return err
	}

	s.mu.Lock()
	s.db = db
	s.store = store
	s.predictionStore = store
	s.mu.Unlock()

	s.logger.Info("Connected to database, feedback and predictions are stored in Postgres")
	return nil
}

// Close releases the database connection.
func (s *ForecastScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SetConfig updates the configuration
func (s *ForecastScheduler) SetConfig(config *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
}

// GetConfig returns the current configuration
func (s *ForecastScheduler) GetConfig() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Metrics returns the Prometheus collectors of the scheduler.
func (s *ForecastScheduler) Metrics() *Metrics {
	return s.metrics
}

// FeedbackStore returns the store actual yields are recorded in.
func (s *ForecastScheduler) FeedbackStore() feedback.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// PredictionStore returns the store full-day predictions are kept in, or nil.
func (s *ForecastScheduler) PredictionStore() feedback.PredictionStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.predictionStore
}

// LatestForecast returns the most recent forecast, or nil before the first run.
func (s *ForecastScheduler) LatestForecast() *forecast.Forecast {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *ForecastScheduler) now() time.Time {
	return s.nowFunc()
}

func (s *ForecastScheduler) location() *time.Location {
	loc, err := s.GetConfig().TimeLocation()
	if err != nil {
		return time.Local
	}
	return loc
}

func (s *ForecastScheduler) site() forecast.Site {
	config := s.GetConfig()
	return forecast.Site{
		Location:         weather.Location{Latitude: config.Latitude, Longitude: config.Longitude},
		Surface:          config.Surface(),
		Params:           config.YieldParams(),
		SnowZeroesOutput: config.SnowZeroesOutput,
	}
}

func (s *ForecastScheduler) getInitialDelay(now time.Time, delayInterval time.Duration) time.Duration {
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	delay := now.Sub(top)
	for delay > 0 {
		delay = delay - delayInterval
	}
	return -delay
}

// Start begins the scheduler's periodic tasks and blocks until they stop.
func (s *ForecastScheduler) Start(ctx context.Context, serverOnly bool) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	config := s.GetConfig()

	if config.DryRun {
		s.logger.Info("DRY-RUN MODE ENABLED: feedback and database writes are logged only")
	}

	if s.db == nil && config.PostgresConnString != "" {
		if err := s.ConnectDB(ctx); err != nil {
			s.logger.Error("Failed to connect to database, using CSV feedback", zap.Error(err))
		}
	}
	s.restoreForecast(ctx)

	if config.MQTTBroker != "" && s.publisher == nil {
		publisher, err := newMQTTPublisher(config, s.logger.Named("mqtt"))
		if err != nil {
			s.logger.Error("Failed to connect to MQTT broker, forecasts are not published", zap.Error(err))
		} else {
			s.mu.Lock()
			s.publisher = publisher
			s.mu.Unlock()
			s.logger.Info("Publishing forecasts over MQTT", zap.String("topic", config.MQTTTopic))
		}
	}

	if s.webServer != nil {
		if err := s.webServer.Start(); err != nil {
			s.logger.Error("Failed to start web server", zap.Error(err))
		} else {
			s.logger.Info("Web server started", zap.Int("port", s.webServer.port))
		}
		if serverOnly {
			return nil
		}
	}

	now := s.now()
	tasks := []PeriodicTask{
		{
			name:         "ForecastUpdate",
			initialDelay: 0, // Run immediately
			interval:     config.ForecastUpdateInterval,
			runFunc: func() {
				if _, err := s.RunForecast(ctx); err != nil {
					s.logger.Error("Forecast update failed", zap.Error(err))
				}
			},
		},
	}

	if config.PlantModbusAddress != "" {
		tasks = append(tasks, PeriodicTask{
			name:         "PVPoll",
			initialDelay: s.getInitialDelay(now, config.PVPollInterval),
			interval:     config.PVPollInterval,
			runFunc: func() {
				s.runPVPoll() //nolint:errcheck
			},
		})

		if err := s.startYieldCapture(ctx); err != nil {
			s.logger.Error("Failed to schedule yield capture", zap.Error(err))
		}
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			task.run(ctx, s.stopChan, s.logger)
		}()
	}

	wg.Wait()

	s.logger.Info("All periodic tasks stopped")
	s.stop()
	return nil
}

// Stop gracefully stops the scheduler
func (s *ForecastScheduler) Stop() {
	s.stop()
}

func (s *ForecastScheduler) stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}

	s.isRunning = false

	select {
	case <-s.stopChan:
		// Already closed
	default:
		close(s.stopChan)
	}

	capture := s.cron
	s.cron = nil
	publisher := s.publisher
	s.publisher = nil
	s.mu.Unlock()

	if publisher != nil {
		publisher.Close()
	}

	// running jobs take the lock, so wait for them outside of it
	if capture != nil {
		<-capture.Stop().Done()
	}

	if s.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.webServer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping web server", zap.Error(err))
		}
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *ForecastScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// SchedulerStatus represents the current status of the scheduler
type SchedulerStatus struct {
	IsRunning     bool       `json:"is_running"`
	HasForecast   bool       `json:"has_forecast"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	WeatherSource string     `json:"weather_source"`
	Storage       string     `json:"storage"`
	PVPowerKW     *float64   `json:"pv_power_kw,omitempty"`
}

// GetStatus returns the current status of the scheduler
func (s *ForecastScheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		IsRunning:     s.isRunning,
		HasForecast:   s.latest != nil,
		WeatherSource: s.source.Name(),
		Storage:       "csv",
	}
	if !s.lastRun.IsZero() {
		lastRun := s.lastRun
		status.LastRun = &lastRun
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	if s.db != nil {
		status.Storage = "postgres"
	}
	if !s.pvSamples.IsEmpty() {
		p := s.pvSamples.GetLatestPower()
		status.PVPowerKW = &p
	}
	return status
}

// validYield reports whether kWh can be recorded as an actual yield.
func validYield(kWh float64) bool {
	return kWh >= 0 && !math.IsNaN(kWh) && !math.IsInf(kWh, 0)
}

// dayKey identifies a calendar day in the prediction map.
func dayKey(t time.Time) string {
	return t.Format(utils.DateLayout)
}
