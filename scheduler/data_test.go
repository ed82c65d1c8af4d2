package scheduler

import (
	"math"
	"testing"
	"time"

	"github.com/devskill-org/pvyield/weather"
)

func TestPVSamples_IntegrateDay(t *testing.T) {
	samples := &PVSamples{}
	pollInterval := 10 * time.Minute

	// 23:30 to 00:20 across midnight, one reading every 10 minutes
	baseTime := time.Date(2024, 6, 21, 23, 30, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		samples.AddSample(3.0, baseTime.Add(time.Duration(i)*pollInterval))
	}

	day := samples.IntegrateDay(time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC), pollInterval)

	// 23:30, 23:40, 23:50
	if day.SampleCount != 3 {
		t.Errorf("Expected 3 samples integrated, got %d", day.SampleCount)
	}
	expected := 3 * 3.0 * pollInterval.Hours()
	if math.Abs(day.EnergyKWh-expected) > 1e-9 {
		t.Errorf("Expected %.3f kWh, got %.3f kWh", expected, day.EnergyKWh)
	}
	if !day.Date.Equal(time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected date 2024-06-21, got %v", day.Date)
	}
	if !day.First.Equal(baseTime) {
		t.Errorf("Expected first sample at %v, got %v", baseTime, day.First)
	}

	if samples.IsEmpty() {
		t.Error("Samples should not be cleared after integration")
	}
}

func TestPVSamples_ClearBefore(t *testing.T) {
	samples := &PVSamples{}
	baseTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		samples.AddSample(1.0, baseTime.Add(time.Duration(i)*10*time.Second))
	}

	// removes 0s to 50s, keeps 60s to 110s
	samples.ClearBefore(baseTime.Add(50 * time.Second))

	samples.mu.Lock()
	sampleCount := len(samples.samples)
	firstSampleTime := samples.samples[0].ts
	samples.mu.Unlock()

	if sampleCount != 6 {
		t.Errorf("Expected 6 samples remaining, got %d", sampleCount)
	}
	if !firstSampleTime.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("Expected first sample at %v, got %v", baseTime.Add(time.Minute), firstSampleTime)
	}

	samples.ClearBefore(baseTime.Add(time.Hour))
	if !samples.IsEmpty() {
		t.Error("Expected samples to be empty")
	}
}

func TestPVSamples_GetLatestPower(t *testing.T) {
	samples := &PVSamples{}
	if p := samples.GetLatestPower(); p != 0 {
		t.Errorf("Expected 0 for empty samples, got %f", p)
	}

	now := time.Now()
	samples.AddSample(1.5, now)
	samples.AddSample(4.2, now.Add(time.Second))

	if p := samples.GetLatestPower(); p != 4.2 {
		t.Errorf("Expected 4.2, got %f", p)
	}
}

func TestWeatherForecastCache(t *testing.T) {
	cache := WeatherForecastCache{cacheDuration: time.Hour}

	if _, _, ok := cache.Get(); ok {
		t.Fatal("Expected empty cache miss")
	}

	series := weather.Series{{Time: time.Now(), GHI: 100, TempAir: 10}}
	cache.Set(series, "simulated")

	got, source, ok := cache.Get()
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if source != "simulated" || len(got) != 1 {
		t.Errorf("Unexpected cache content: %s, %d samples", source, len(got))
	}

	cache.Invalidate()
	if _, _, ok := cache.Get(); ok {
		t.Error("Expected miss after invalidate")
	}

	expired := WeatherForecastCache{cacheDuration: time.Millisecond}
	expired.Set(series, "simulated")
	expired.mu.Lock()
	expired.fetchedAt = time.Now().Add(-time.Second)
	expired.mu.Unlock()
	if _, _, ok := expired.Get(); ok {
		t.Error("Expected miss for expired entry")
	}
}
