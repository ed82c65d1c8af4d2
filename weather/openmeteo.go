package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/devskill-org/pvyield/openmeteo"
)

// OpenMeteoSource reads hourly irradiance and temperature from Open-Meteo.
type OpenMeteoSource struct {
	Client *openmeteo.Client
	Hours  int
	Now    func() time.Time
}

// NewOpenMeteoSource creates a source covering the next hours.
func NewOpenMeteoSource(client *openmeteo.Client, hours int) *OpenMeteoSource {
	return &OpenMeteoSource{Client: client, Hours: hours, Now: time.Now}
}

// Name implements Source.
func (s *OpenMeteoSource) Name() string { return "open-meteo" }

// Fetch implements Source.
func (s *OpenMeteoSource) Fetch(ctx context.Context, loc Location) (Series, error) {
	start, end := horizon(s.Now(), s.Hours)

	forecast, err := s.Client.GetHourly(ctx, openmeteo.Query{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		// one extra hour so the current hour is covered after truncation
		ForecastHours: s.Hours + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("open-meteo forecast: %w", err)
	}

	hours, err := forecast.Hours()
	if err != nil {
		return nil, fmt.Errorf("open-meteo forecast: %w", err)
	}

	series := make(Series, 0, len(hours))
	for _, h := range hours {
		series = append(series, Sample{
			Time:       h.Time,
			GHI:        h.GHI,
			TempAir:    h.TempAir,
			DNI:        optional(h.DNI),
			DHI:        optional(h.DHI),
			CloudCover: optional(h.CloudCover),
			Snow:       h.Snow(),
			Period:     time.Hour,
		})
	}

	return Normalize(series.Window(start, end))
}
