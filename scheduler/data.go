package scheduler

import (
	"sync"
	"time"

	"github.com/devskill-org/pvyield/utils"
	"github.com/devskill-org/pvyield/weather"
)

// WeatherForecastCache caches the weather series with expiration.
type WeatherForecastCache struct {
	mu            sync.RWMutex
	series        weather.Series
	source        string
	fetchedAt     time.Time
	cacheDuration time.Duration
}

// Get retrieves the cached series and its source name if still valid.
func (w *WeatherForecastCache) Get() (weather.Series, string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.series == nil {
		return nil, "", false
	}

	if time.Since(w.fetchedAt) > w.cacheDuration {
		return nil, "", false
	}

	return w.series, w.source, true
}

// Set updates the cached series with a new value.
func (w *WeatherForecastCache) Set(series weather.Series, source string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.series = series
	w.source = source
	w.fetchedAt = time.Now()
}

// Invalidate drops the cached series.
func (w *WeatherForecastCache) Invalidate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.series = nil
}

// PVSample is a single PV power reading.
type PVSample struct {
	PowerKW float64
	ts      time.Time
}

// PVSamples is a thread-safe collection of PV power readings.
type PVSamples struct {
	mu      sync.Mutex
	samples []PVSample
}

// AddSample adds a PV power reading.
func (d *PVSamples) AddSample(powerKW float64, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples = append(d.samples, PVSample{PowerKW: powerKW, ts: ts})
}

// DailyEnergy is the metered PV energy of one calendar day.
type DailyEnergy struct {
	Date        time.Time
	EnergyKWh   float64
	SampleCount int
	First       time.Time // earliest reading of the day
}

// IntegrateDay sums the readings taken on the calendar day of day, each
// weighted by the poll interval.
func (d *PVSamples) IntegrateDay(day time.Time, pollInterval time.Duration) DailyEnergy {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := DailyEnergy{Date: utils.StartOfDay(day)}
	hours := pollInterval.Hours()

	for _, sample := range d.samples {
		if !utils.SameDay(sample.ts.In(day.Location()), day) {
			continue
		}
		if result.SampleCount == 0 || sample.ts.Before(result.First) {
			result.First = sample.ts
		}
		result.SampleCount++
		result.EnergyKWh += sample.PowerKW * hours
	}

	return result
}

// ClearBefore removes all readings with timestamp <= cutoff.
func (d *PVSamples) ClearBefore(cutoff time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	filtered := make([]PVSample, 0, len(d.samples))
	for _, sample := range d.samples {
		if sample.ts.After(cutoff) {
			filtered = append(filtered, sample)
		}
	}
	d.samples = filtered
}

// IsEmpty returns true if there are no readings collected.
func (d *PVSamples) IsEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples) == 0
}

// GetLatestPower returns the most recent PV power reading, or 0 if none exist.
func (d *PVSamples) GetLatestPower() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.samples) == 0 {
		return 0
	}
	return d.samples[len(d.samples)-1].PowerKW
}
