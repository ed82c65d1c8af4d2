// Package forecast runs a weather series through the solar geometry and the
// yield model, producing the power series and daily energy for one site.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/devskill-org/pvyield/solar"
	"github.com/devskill-org/pvyield/weather"
	"github.com/devskill-org/pvyield/yield"
)

// ErrInvalidBias is returned for a negative or non-finite bias factor.
var ErrInvalidBias = errors.New("forecast: bias factor must be finite and non-negative")

// Site describes where the array is and how it is built.
type Site struct {
	Location weather.Location
	Surface  solar.Surface
	Params   yield.Params

	// SnowZeroesOutput forces the plane-of-array irradiance to zero for
	// samples flagged with snowfall.
	SnowZeroesOutput bool
}

// Forecast is one evaluated yield forecast.
type Forecast struct {
	ID            string             `json:"id"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Source        string             `json:"source"`
	Location      weather.Location   `json:"location"`
	Bias          float64            `json:"bias"`
	Points        []yield.Point      `json:"points"`
	Daily         []yield.DailyTotal `json:"daily"`
	TotalKWh      float64            `json:"total_kwh"`
	RawTotalKWh   float64            `json:"raw_total_kwh"`
	MaxModuleTemp float64            `json:"max_module_temp"`
	Sunrise       time.Time          `json:"sunrise"`
	Sunset        time.Time          `json:"sunset"`
}

// Build evaluates series for site. Samples without DNI and DHI are decomposed
// with the Erbs model. Daily totals are cut at midnight in loc. Points keep
// the sample timestamps.
func Build(series weather.Series, site Site, bias float64, loc *time.Location) (*Forecast, error) {
	if len(series) == 0 {
		return nil, weather.ErrNoData
	}
	if err := site.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid array parameters: %w", err)
	}
	if bias < 0 || math.IsNaN(bias) || math.IsInf(bias, 0) {
		return nil, ErrInvalidBias
	}
	if loc == nil {
		loc = time.Local
	}

	lat, lon := site.Location.Latitude, site.Location.Longitude
	comps := make([]solar.Components, len(series))
	positions := make([]solar.Position, len(series))
	for i, s := range series {
		// averaged irradiance goes with the sun at the middle of its interval
		at := s.Midpoint()
		positions[i] = solar.SunPosition(at, lat, lon)
		if s.HasComponents() {
			comps[i] = solar.Components{GHI: s.GHI, DNI: *s.DNI, DHI: *s.DHI}
		} else {
			comps[i] = solar.Erbs(s.GHI, positions[i].Zenith, at)
		}
	}

	poa := site.Surface.TransposeSeries(comps, positions)

	inputs := make([]yield.Input, len(series))
	for i, s := range series {
		irradiance := poa[i].Global
		if site.SnowZeroesOutput && s.Snow {
			irradiance = 0
		}
		inputs[i] = yield.Input{Time: s.Time, POA: irradiance, TempAir: s.TempAir}
	}

	points := site.Params.Estimate(inputs, bias)
	daily := yield.DailyTotals(points, loc)

	f := &Forecast{
		ID:            uuid.New().String(),
		GeneratedAt:   time.Now(),
		Location:      site.Location,
		Bias:          bias,
		Points:        points,
		Daily:         daily,
		TotalKWh:      lo.SumBy(daily, func(d yield.DailyTotal) float64 { return d.EnergyKWh }),
		RawTotalKWh:   lo.SumBy(daily, func(d yield.DailyTotal) float64 { return d.RawEnergyKWh }),
		MaxModuleTemp: yield.MaxModuleTemperature(points),
	}
	f.Sunrise, f.Sunset = solar.SunTimes(series[0].Time.In(loc), lat, lon)

	return f, nil
}

// DayTotal returns the forecast energy for the calendar day of date.
func (f *Forecast) DayTotal(date time.Time) (yield.DailyTotal, bool) {
	if f == nil {
		return yield.DailyTotal{}, false
	}
	return yield.TotalFor(f.Daily, date)
}

// FullDays returns the daily totals of the days the series spans from
// midnight to the last hour, in loc.
func (f *Forecast) FullDays(loc *time.Location) []yield.DailyTotal {
	if f == nil || len(f.Points) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	first, last := f.Points[0].Time, f.Points[len(f.Points)-1].Time

	return lo.Filter(f.Daily, func(d yield.DailyTotal, _ int) bool {
		start := d.Date.In(loc)
		lastHour := start.AddDate(0, 0, 1).Add(-time.Hour)
		return !first.After(start) && !last.Before(lastHour)
	})
}

// Covers reports whether t lies within the forecast series.
func (f *Forecast) Covers(t time.Time) bool {
	if f == nil || len(f.Points) == 0 {
		return false
	}
	return !t.Before(f.Points[0].Time) && !t.After(f.Points[len(f.Points)-1].Time)
}
