package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/devskill-org/pvyield/meteo"
	"github.com/devskill-org/pvyield/solar"
)

// METSource derives irradiance from the MET Norway cloud-cover forecast.
// The forecast is resampled hourly using the nearest forecast step, since
// MET switches to six-hour steps after about two and a half days.
type METSource struct {
	Client *meteo.Client
	Hours  int
	Now    func() time.Time
}

// NewMETSource creates a source covering the next hours.
func NewMETSource(client *meteo.Client, hours int) *METSource {
	return &METSource{Client: client, Hours: hours, Now: time.Now}
}

// Name implements Source.
func (s *METSource) Name() string { return "met-no" }

// Fetch implements Source.
func (s *METSource) Fetch(ctx context.Context, loc Location) (Series, error) {
	start, end := horizon(s.Now(), s.Hours)

	forecast, err := s.Client.GetCompact(ctx, meteo.QueryParams{
		Location: meteo.Location{Latitude: loc.Latitude, Longitude: loc.Longitude},
	})
	if err != nil {
		return nil, fmt.Errorf("met.no forecast: %w", err)
	}

	// steps up to 6h before the window can still be the nearest for its first hour
	if len(forecast.GetForecastForPeriod(start.Add(-6*time.Hour), end)) == 0 {
		return nil, ErrNoData
	}

	var series Series
	for ts := start; ts.Before(end); ts = ts.Add(time.Hour) {
		step := forecast.GetWeatherAtTime(ts)
		if step == nil || step.Time.Sub(ts).Abs() > 6*time.Hour {
			continue
		}
		temp := step.GetTemperature()
		if temp == nil {
			continue
		}

		cloud := 0.0
		if c := step.GetCloudCoverage(); c != nil {
			cloud = *c
		}

		pos := solar.SunPosition(ts, loc.Latitude, loc.Longitude)
		sample := Sample{
			Time:       ts,
			GHI:        solar.CloudAdjustedGHI(solar.ClearSkyGHI(pos.Zenith), cloud),
			TempAir:    *temp,
			CloudCover: optional(cloud),
		}
		if symbol := step.GetSymbolCode(); symbol != nil {
			sample.Snow = symbol.HasSnow()
		}
		series = append(series, sample)
	}

	return Normalize(series)
}
