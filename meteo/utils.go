package meteo

import (
	"time"
)

// GetWeatherAtTime returns the weather data closest to the specified time
func (f *METJSONForecast) GetWeatherAtTime(targetTime time.Time) *ForecastTimeStep {
	if f == nil || f.Properties == nil || len(f.Properties.Timeseries) == 0 {
		return nil
	}

	var closest *ForecastTimeStep
	minDiff := time.Duration(1<<63 - 1)

	for i := range f.Properties.Timeseries {
		step := &f.Properties.Timeseries[i]
		diff := step.Time.Sub(targetTime)
		if diff < 0 {
			diff = -diff
		}
		if diff < minDiff {
			minDiff = diff
			closest = step
		}
	}

	return closest
}

// GetForecastForPeriod returns all weather data within [start, end]
func (f *METJSONForecast) GetForecastForPeriod(start, end time.Time) []ForecastTimeStep {
	if f == nil || f.Properties == nil {
		return nil
	}

	var periodForecast []ForecastTimeStep
	for _, step := range f.Properties.Timeseries {
		if !step.Time.Before(start) && !step.Time.After(end) {
			periodForecast = append(periodForecast, step)
		}
	}

	return periodForecast
}

func (ts *ForecastTimeStep) instant() *ForecastTimeInstant {
	if ts == nil || ts.Data == nil || ts.Data.Instant == nil {
		return nil
	}
	return ts.Data.Instant.Details
}

// GetTemperature returns the air temperature if available
func (ts *ForecastTimeStep) GetTemperature() *float64 {
	if d := ts.instant(); d != nil {
		return d.AirTemperature
	}
	return nil
}

// GetCloudCoverage returns the cloud area fraction (percent) if available
func (ts *ForecastTimeStep) GetCloudCoverage() *float64 {
	if d := ts.instant(); d != nil {
		return d.CloudAreaFraction
	}
	return nil
}

// GetSymbolCode returns the weather symbol code for the shortest period available
func (ts *ForecastTimeStep) GetSymbolCode() *WeatherSymbol {
	if ts == nil || ts.Data == nil {
		return nil
	}

	for _, period := range []*ForecastPeriodData{ts.Data.Next1Hours, ts.Data.Next6Hours, ts.Data.Next12Hours} {
		if period != nil && period.Summary != nil {
			return &period.Summary.SymbolCode
		}
	}

	return nil
}
