package scheduler

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/devskill-org/pvyield/meteo"
	"github.com/devskill-org/pvyield/openmeteo"
	"github.com/devskill-org/pvyield/weather"
)

// newWeatherSource builds the source selected by weather_source. The
// Open-Meteo client is returned as well so its breaker state can be exported.
func newWeatherSource(config *Config, logger *zap.Logger) (weather.Source, *openmeteo.Client, error) {
	switch config.WeatherSource {
	case SourceOpenMeteo:
		client := openmeteo.NewClient(openmeteo.Config{
			BaseURL:          config.OpenMeteoURL,
			Timeout:          config.APITimeout,
			FailureThreshold: config.BreakerFailureThreshold,
			BreakerTimeout:   config.BreakerTimeout,
		}, logger.Named("open-meteo"))
		return weather.NewOpenMeteoSource(client, config.ForecastHours), client, nil

	case SourceMETNorway:
		client := meteo.NewClientWithHTTPClient(&http.Client{Timeout: config.APITimeout}, config.UserAgent)
		if config.METNorwayURL != "" {
			client.SetBaseURL(config.METNorwayURL)
		}
		return weather.NewMETSource(client, config.ForecastHours), nil, nil

	case SourceSimulated:
		return weather.NewSimulatedSource(config.ForecastHours, config.SimulatedSeed), nil, nil

	case SourceCSV:
		loc, err := config.TimeLocation()
		if err != nil {
			return nil, nil, err
		}
		return &weather.FileSource{Path: config.WeatherFile, Location: loc}, nil, nil
	}

	return nil, nil, fmt.Errorf("unknown weather source %q", config.WeatherSource)
}
