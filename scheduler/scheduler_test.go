package scheduler

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/devskill-org/pvyield/feedback"
	"github.com/devskill-org/pvyield/forecast"
	"github.com/devskill-org/pvyield/solar"
	"github.com/devskill-org/pvyield/weather"
)

// testConfig returns a valid configuration using the simulated source and
// feedback and prediction files in a temporary directory.
func testConfig(t *testing.T) *Config {
	t.Helper()
	config := DefaultConfig()
	config.Timezone = "UTC"
	config.WeatherSource = SourceSimulated
	dir := t.TempDir()
	config.FeedbackFile = filepath.Join(dir, "feedback.csv")
	config.PredictionsFile = filepath.Join(dir, "predictions.csv")
	config.WebPort = 0
	config.ForecastUpdateInterval = time.Hour
	return config
}

func newTestScheduler(t *testing.T, config *Config) *ForecastScheduler {
	t.Helper()
	s, err := NewForecastScheduler(config, zap.NewNop())
	if err != nil {
		t.Fatalf("NewForecastScheduler failed: %v", err)
	}
	return s
}

// staticSource serves a fixed series.
type staticSource struct {
	series weather.Series
	err    error
	calls  int
	mu     sync.Mutex
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Fetch(ctx context.Context, _ weather.Location) (weather.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.series, s.err
}

// solsticeSeries returns 48 hourly clear-sky samples from 2024-06-21 00:00 UTC.
func solsticeSeries() weather.Series {
	start := time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)
	series := make(weather.Series, 48)
	for i := range series {
		ts := start.Add(time.Duration(i) * time.Hour)
		pos := solar.SunPosition(ts, 50.6, 6.3)
		series[i] = weather.Sample{Time: ts, GHI: solar.ClearSkyGHI(pos.Zenith), TempAir: 22}
	}
	return series
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewForecastScheduler(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		logger  *zap.Logger
		wantErr bool
	}{
		{name: "simulated source", source: SourceSimulated, logger: zap.NewNop()},
		{name: "open-meteo source", source: SourceOpenMeteo, logger: zap.NewNop()},
		{name: "met-no source", source: SourceMETNorway, logger: zap.NewNop()},
		{name: "nil logger", source: SourceSimulated, logger: nil},
		{name: "unknown source", source: "sky-oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig(t)
			config.WeatherSource = tt.source

			scheduler, err := NewForecastScheduler(config, tt.logger)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error for unknown weather source")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewForecastScheduler failed: %v", err)
			}

			if scheduler.logger == nil {
				t.Error("Expected default logger when nil provided")
			}
			if scheduler.IsRunning() {
				t.Error("New scheduler should not be running")
			}
			if scheduler.LatestForecast() != nil {
				t.Error("New scheduler should not have a forecast")
			}
			if got := scheduler.GetStatus().WeatherSource; got != tt.source {
				t.Errorf("Expected weather source %s, got %s", tt.source, got)
			}
		})
	}
}

func TestSchedulerRunningState(t *testing.T) {
	scheduler := newTestScheduler(t, testConfig(t))

	if scheduler.IsRunning() {
		t.Error("New scheduler should not be running")
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- scheduler.Start(ctx, false)
	}()

	time.Sleep(100 * time.Millisecond)

	if !scheduler.IsRunning() {
		t.Error("Scheduler should be running after Start()")
	}
	if scheduler.LatestForecast() == nil {
		t.Error("Expected forecast after the first run")
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Scheduler did not stop within timeout")
	}

	if scheduler.IsRunning() {
		t.Error("Scheduler should not be running after context cancellation")
	}
}

func TestSchedulerDoubleStart(t *testing.T) {
	scheduler := newTestScheduler(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- scheduler.Start(ctx, false)
	}()

	time.Sleep(100 * time.Millisecond)

	if err := scheduler.Start(ctx, false); err == nil {
		t.Error("Expected error when starting scheduler twice")
	}

	cancel()
	<-done
}

func TestSchedulerStop(t *testing.T) {
	scheduler := newTestScheduler(t, testConfig(t))

	done := make(chan error, 1)
	go func() {
		done <- scheduler.Start(context.Background(), false)
	}()

	time.Sleep(100 * time.Millisecond)

	if !scheduler.IsRunning() {
		t.Error("Scheduler should be running")
	}

	scheduler.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Scheduler did not stop within timeout")
	}

	if scheduler.IsRunning() {
		t.Error("Scheduler should not be running after Stop()")
	}
}

func TestGetInitialDelay(t *testing.T) {
	scheduler := newTestScheduler(t, testConfig(t))

	tests := []struct {
		name          string
		interval      time.Duration
		now           time.Time
		expectedDelay time.Duration
	}{
		{
			name:          "at start of hour with 15min interval",
			interval:      15 * time.Minute,
			now:           time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			expectedDelay: 0,
		},
		{
			name:          "5 minutes into hour with 15min interval",
			interval:      15 * time.Minute,
			now:           time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC),
			expectedDelay: 10 * time.Minute,
		},
		{
			name:          "17 minutes into hour with 15min interval",
			interval:      15 * time.Minute,
			now:           time.Date(2024, 1, 15, 10, 17, 0, 0, time.UTC),
			expectedDelay: 13 * time.Minute,
		},
		{
			name:          "3 seconds past with 10s poll interval",
			interval:      10 * time.Second,
			now:           time.Date(2024, 1, 15, 10, 20, 3, 0, time.UTC),
			expectedDelay: 7 * time.Second,
		},
		{
			name:          "40 minutes into hour with 1 hour interval",
			interval:      time.Hour,
			now:           time.Date(2024, 1, 15, 10, 40, 0, 0, time.UTC),
			expectedDelay: 20 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay := scheduler.getInitialDelay(tt.now, tt.interval)
			if delay != tt.expectedDelay {
				t.Errorf("Expected delay %v, got %v", tt.expectedDelay, delay)
			}
		})
	}
}

func TestRunForecast_UsesCache(t *testing.T) {
	scheduler := newTestScheduler(t, testConfig(t))
	src := &staticSource{series: solsticeSeries()}
	scheduler.source = src
	ctx := context.Background()

	f, err := scheduler.RunForecast(ctx)
	if err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}
	if f.Source != "static" {
		t.Errorf("Expected source static, got %s", f.Source)
	}
	if len(f.Points) != 48 || len(f.Daily) != 2 {
		t.Errorf("Expected 48 points over 2 days, got %d points over %d days", len(f.Points), len(f.Daily))
	}
	if f.Bias != 1.0 {
		t.Errorf("Expected bias 1.0 without feedback, got %f", f.Bias)
	}

	if _, err := scheduler.RunForecast(ctx); err != nil {
		t.Fatalf("Second RunForecast failed: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("Expected 1 upstream fetch, got %d", src.calls)
	}

	status := scheduler.GetStatus()
	if !status.HasForecast || status.LastRun == nil || status.LastError != "" {
		t.Errorf("Unexpected status after successful run: %+v", status)
	}
}

func TestRunForecast_SourceError(t *testing.T) {
	scheduler := newTestScheduler(t, testConfig(t))
	scheduler.source = &staticSource{err: errors.New("upstream down")}

	if _, err := scheduler.RunForecast(context.Background()); err == nil {
		t.Fatal("Expected error from failing source")
	}

	status := scheduler.GetStatus()
	if status.HasForecast {
		t.Error("Expected no forecast after failed run")
	}
	if status.LastError == "" {
		t.Error("Expected last error to be recorded")
	}
}

func TestRunForecast_AppliesBias(t *testing.T) {
	config := testConfig(t)
	ctx := context.Background()

	store := feedback.NewCSVStore(config.FeedbackFile)
	entries := []feedback.Entry{
		{Date: feedback.NewDate(time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)), ActualKWh: 30, PredictedKWh: 20},
		{Date: feedback.NewDate(time.Date(2024, 6, 2, 0, 0, 0, 0, time.Local)), ActualKWh: 10, PredictedKWh: 0},
	}
	for _, e := range entries {
		if err := store.Add(ctx, e); err != nil {
			t.Fatalf("Failed to seed feedback: %v", err)
		}
	}

	scheduler := newTestScheduler(t, config)
	scheduler.source = &staticSource{series: solsticeSeries()}

	f, err := scheduler.RunForecast(ctx)
	if err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}
	if math.Abs(f.Bias-1.5) > 1e-9 {
		t.Errorf("Expected bias 1.5, got %f", f.Bias)
	}
	if math.Abs(f.TotalKWh-1.5*f.RawTotalKWh) > 1e-9 {
		t.Errorf("Expected corrected total %.3f, got %.3f", 1.5*f.RawTotalKWh, f.TotalKWh)
	}

	config.ApplyBias = false
	scheduler.weatherCache.Invalidate()
	f, err = scheduler.RunForecast(ctx)
	if err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}
	if f.Bias != 1.0 {
		t.Errorf("Expected bias 1.0 with apply_bias disabled, got %f", f.Bias)
	}
}

func TestLogActualYield(t *testing.T) {
	config := testConfig(t)
	scheduler := newTestScheduler(t, config)
	scheduler.source = &staticSource{series: solsticeSeries()}
	scheduler.nowFunc = fixedNow(time.Date(2024, 6, 21, 0, 30, 0, 0, time.UTC))
	ctx := context.Background()

	f, err := scheduler.RunForecast(ctx)
	if err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}

	entry, err := scheduler.LogActualYield(ctx, time.Date(2024, 6, 21, 21, 0, 0, 0, time.UTC), 50)
	if err != nil {
		t.Fatalf("LogActualYield failed: %v", err)
	}
	if entry.Date.String() != "2024-06-21" {
		t.Errorf("Expected date 2024-06-21, got %s", entry.Date)
	}
	if math.Abs(entry.PredictedKWh-f.Daily[0].RawEnergyKWh) > 1e-9 {
		t.Errorf("Expected predicted %.3f, got %.3f", f.Daily[0].RawEnergyKWh, entry.PredictedKWh)
	}

	entries, bias, err := scheduler.FeedbackSummary(ctx)
	if err != nil {
		t.Fatalf("FeedbackSummary failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if math.Abs(bias-50/entry.PredictedKWh) > 1e-9 {
		t.Errorf("Expected bias %.3f, got %.3f", 50/entry.PredictedKWh, bias)
	}

	// logging the same day again replaces the entry
	if _, err := scheduler.LogActualYield(ctx, time.Date(2024, 6, 21, 23, 0, 0, 0, time.UTC), 55); err != nil {
		t.Fatalf("LogActualYield failed: %v", err)
	}
	entries, _, _ = scheduler.FeedbackSummary(ctx)
	if len(entries) != 1 || entries[0].ActualKWh != 55 {
		t.Errorf("Expected single entry with 55 kWh, got %+v", entries)
	}
}

func TestLogActualYield_FullDayPredictionsOnly(t *testing.T) {
	config := testConfig(t)
	ctx := context.Background()
	day := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)

	// a run shortly after midnight forecasts 2024-06-21 in full
	early := newTestScheduler(t, config)
	early.source = &staticSource{series: solsticeSeries()}
	early.nowFunc = fixedNow(time.Date(2024, 6, 21, 0, 30, 0, 0, time.UTC))
	full, err := early.RunForecast(ctx)
	if err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}
	predicted := full.Daily[0].RawEnergyKWh

	// a restarted process whose first forecast starts mid-afternoon
	later := newTestScheduler(t, config)
	later.source = &staticSource{series: solsticeSeries()[15:]}
	later.nowFunc = fixedNow(time.Date(2024, 6, 21, 15, 0, 0, 0, time.UTC))
	partial, err := later.RunForecast(ctx)
	if err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}
	if d, ok := partial.DayTotal(day); !ok || d.RawEnergyKWh >= predicted {
		t.Fatalf("Expected a partial day below %.3f kWh, got %+v", predicted, d)
	}

	entry, err := later.LogActualYield(ctx, day, predicted)
	if err != nil {
		t.Fatalf("LogActualYield failed: %v", err)
	}
	if math.Abs(entry.PredictedKWh-predicted) > 1e-9 {
		t.Errorf("Expected stored full-day prediction %.3f, got %.3f", predicted, entry.PredictedKWh)
	}
	if _, bias, _ := later.FeedbackSummary(ctx); math.Abs(bias-1.0) > 1e-9 {
		t.Errorf("Expected bias 1.0 for an exact forecast, got %f", bias)
	}

	// the partial day alone is never used as the prediction
	if err := os.Remove(config.PredictionsFile); err != nil {
		t.Fatalf("Failed to remove predictions: %v", err)
	}
	fresh := newTestScheduler(t, config)
	fresh.source = &staticSource{series: solsticeSeries()[15:]}
	fresh.nowFunc = fixedNow(time.Date(2024, 6, 21, 15, 0, 0, 0, time.UTC))
	if _, err := fresh.RunForecast(ctx); err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}
	entry, err = fresh.LogActualYield(ctx, day, predicted)
	if err != nil {
		t.Fatalf("LogActualYield failed: %v", err)
	}
	if entry.PredictedKWh != 0 {
		t.Errorf("Expected no prediction for a partially forecast day, got %.3f", entry.PredictedKWh)
	}

	// the next day was forecast in full by the afternoon run
	entry, err = fresh.LogActualYield(ctx, day.AddDate(0, 0, 1), 50)
	if err != nil {
		t.Fatalf("LogActualYield failed: %v", err)
	}
	if entry.PredictedKWh <= 0 {
		t.Error("Expected a prediction for the fully forecast next day")
	}
}

func TestLogActualYield_Invalid(t *testing.T) {
	scheduler := newTestScheduler(t, testConfig(t))
	ctx := context.Background()

	for _, v := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := scheduler.LogActualYield(ctx, time.Now(), v); !errors.Is(err, ErrInvalidYield) {
			t.Errorf("Expected ErrInvalidYield for %v, got %v", v, err)
		}
	}
}

func TestLogActualYield_WithoutForecast(t *testing.T) {
	scheduler := newTestScheduler(t, testConfig(t))

	entry, err := scheduler.LogActualYield(context.Background(), time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 12.5)
	if err != nil {
		t.Fatalf("LogActualYield failed: %v", err)
	}
	if entry.PredictedKWh != 0 {
		t.Errorf("Expected no prediction, got %f", entry.PredictedKWh)
	}
}

func TestLogActualYield_DryRun(t *testing.T) {
	config := testConfig(t)
	config.DryRun = true
	scheduler := newTestScheduler(t, config)

	if _, err := scheduler.LogActualYield(context.Background(), time.Now(), 20); err != nil {
		t.Fatalf("LogActualYield failed: %v", err)
	}
	if _, err := os.Stat(config.FeedbackFile); !os.IsNotExist(err) {
		t.Error("Expected no feedback file in dry-run mode")
	}

	scheduler.source = &staticSource{series: solsticeSeries()}
	scheduler.nowFunc = fixedNow(time.Date(2024, 6, 21, 0, 30, 0, 0, time.UTC))
	if _, err := scheduler.RunForecast(context.Background()); err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}
	if _, err := os.Stat(config.PredictionsFile); !os.IsNotExist(err) {
		t.Error("Expected no predictions file in dry-run mode")
	}
}

// fakePlant reports a constant PV power.
type fakePlant struct {
	power  float64
	err    error
	closed bool
}

func (p *fakePlant) ReadPVPower() (float64, error) { return p.power, p.err }
func (p *fakePlant) Close() error                  { p.closed = true; return nil }

func TestCaptureYield(t *testing.T) {
	config := testConfig(t)
	config.PlantModbusAddress = "192.0.2.10:502"
	config.PVPollInterval = time.Hour

	scheduler := newTestScheduler(t, config)
	plant := &fakePlant{power: 2.0}
	scheduler.plantDialFunc = func() (PlantReader, error) { return plant, nil }

	// sunrise at the default site is about 03:28 UTC
	for _, hour := range []int{3, 4, 5} {
		scheduler.nowFunc = fixedNow(time.Date(2024, 6, 21, hour, 0, 0, 0, time.UTC))
		if err := scheduler.runPVPoll(); err != nil {
			t.Fatalf("runPVPoll failed: %v", err)
		}
	}
	scheduler.nowFunc = fixedNow(time.Date(2024, 6, 21, 23, 55, 0, 0, time.UTC))
	if !plant.closed {
		t.Error("Expected plant client to be closed after poll")
	}
	if p := scheduler.GetStatus().PVPowerKW; p == nil || *p != 2.0 {
		t.Errorf("Expected PV power 2.0 in status, got %v", p)
	}

	ctx := context.Background()
	if err := scheduler.captureYield(ctx); err != nil {
		t.Fatalf("captureYield failed: %v", err)
	}

	entries, _, err := scheduler.FeedbackSummary(ctx)
	if err != nil {
		t.Fatalf("FeedbackSummary failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if math.Abs(entries[0].ActualKWh-6.0) > 1e-9 {
		t.Errorf("Expected 6 kWh, got %f", entries[0].ActualKWh)
	}
	if !scheduler.pvSamples.IsEmpty() {
		t.Error("Expected samples to be cleared after capture")
	}

	// nothing left to capture
	if err := scheduler.captureYield(ctx); err != nil {
		t.Fatalf("captureYield failed: %v", err)
	}
}

func TestCaptureYield_SkipsPartialDay(t *testing.T) {
	config := testConfig(t)
	config.PlantModbusAddress = "192.0.2.10:502"
	config.PVPollInterval = time.Hour

	scheduler := newTestScheduler(t, config)
	scheduler.plantDialFunc = func() (PlantReader, error) { return &fakePlant{power: 5.0}, nil }

	// metering starts in the afternoon, e.g. after a restart
	for _, hour := range []int{14, 15, 16} {
		scheduler.nowFunc = fixedNow(time.Date(2024, 6, 21, hour, 0, 0, 0, time.UTC))
		if err := scheduler.runPVPoll(); err != nil {
			t.Fatalf("runPVPoll failed: %v", err)
		}
	}
	scheduler.nowFunc = fixedNow(time.Date(2024, 6, 21, 23, 55, 0, 0, time.UTC))

	ctx := context.Background()
	if err := scheduler.captureYield(ctx); err != nil {
		t.Fatalf("captureYield failed: %v", err)
	}

	entries, _, err := scheduler.FeedbackSummary(ctx)
	if err != nil {
		t.Fatalf("FeedbackSummary failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entry for a partially metered day, got %+v", entries)
	}
	if !scheduler.pvSamples.IsEmpty() {
		t.Error("Expected samples of the skipped day to be cleared")
	}
}

func TestMeteringStart(t *testing.T) {
	scheduler := newTestScheduler(t, testConfig(t))

	start := scheduler.meteringStart(time.Date(2024, 6, 21, 23, 55, 0, 0, time.UTC))
	if start.Before(time.Date(2024, 6, 21, 3, 0, 0, 0, time.UTC)) || start.After(time.Date(2024, 6, 21, 4, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected metering start shortly after sunrise, got %v", start)
	}

	// no sunrise during the polar day
	config := testConfig(t)
	config.Latitude = 78.2
	config.Longitude = 15.6
	polar := newTestScheduler(t, config)
	start = polar.meteringStart(time.Date(2024, 6, 21, 23, 55, 0, 0, time.UTC))
	if !start.Equal(time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected midnight during the polar day, got %v", start)
	}
}

func TestRunPVPoll_Errors(t *testing.T) {
	config := testConfig(t)
	scheduler := newTestScheduler(t, config)

	// disabled without an address
	if err := scheduler.runPVPoll(); err != nil {
		t.Errorf("Expected no error without plant address, got %v", err)
	}

	config.PlantModbusAddress = "192.0.2.10:502"
	scheduler.plantDialFunc = func() (PlantReader, error) { return nil, errors.New("connection refused") }
	if err := scheduler.runPVPoll(); err == nil {
		t.Error("Expected dial error")
	}

	scheduler.plantDialFunc = func() (PlantReader, error) { return &fakePlant{err: errors.New("timeout")}, nil }
	if err := scheduler.runPVPoll(); err == nil {
		t.Error("Expected read error")
	}
	if !scheduler.pvSamples.IsEmpty() {
		t.Error("Expected no samples after failed polls")
	}
}

// fakePublisher records published forecasts.
type fakePublisher struct {
	mu        sync.Mutex
	published []string
	closed    bool
}

func (p *fakePublisher) PublishForecast(f *forecast.Forecast) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, f.ID)
	return nil
}

func (p *fakePublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func TestRunForecast_Publishes(t *testing.T) {
	scheduler := newTestScheduler(t, testConfig(t))
	scheduler.source = &staticSource{series: solsticeSeries()}
	publisher := &fakePublisher{}
	scheduler.publisher = publisher

	f, err := scheduler.RunForecast(context.Background())
	if err != nil {
		t.Fatalf("RunForecast failed: %v", err)
	}
	if len(publisher.published) != 1 || publisher.published[0] != f.ID {
		t.Errorf("Expected forecast %s to be published, got %v", f.ID, publisher.published)
	}

	summary := NewForecastSummary(f)
	if len(summary.Daily) != 2 {
		t.Fatalf("Expected 2 days in summary, got %d", len(summary.Daily))
	}
	if math.Abs(summary.Daily["2024-06-21"]-f.Daily[0].EnergyKWh) > 1e-9 {
		t.Errorf("Expected %.3f kWh for 2024-06-21, got %.3f", f.Daily[0].EnergyKWh, summary.Daily["2024-06-21"])
	}
	if summary.TotalKWh != f.TotalKWh || summary.Bias != f.Bias {
		t.Errorf("Summary does not match forecast: %+v", summary)
	}
}

func TestNewMQTTPublisher_Unreachable(t *testing.T) {
	config := testConfig(t)
	config.MQTTBroker = "tcp://127.0.0.1:1"
	config.APITimeout = 2 * time.Second

	if _, err := newMQTTPublisher(config, zap.NewNop()); err == nil {
		t.Error("Expected error connecting to unreachable broker")
	}
}
