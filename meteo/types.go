package meteo

import (
	"strings"
	"time"
)

// WeatherSymbol represents a MET weather condition identifier,
// e.g. "clearsky_day" or "heavysnowshowers_night".
type WeatherSymbol string

// A few symbols the PV forecast cares about. The API defines many more;
// unknown codes are carried through as plain strings.
const (
	ClearSkyDay     WeatherSymbol = "clearsky_day"
	ClearSkyNight   WeatherSymbol = "clearsky_night"
	FairDay         WeatherSymbol = "fair_day"
	PartlyCloudyDay WeatherSymbol = "partlycloudy_day"
	Cloudy          WeatherSymbol = "cloudy"
	Fog             WeatherSymbol = "fog"
	LightRain       WeatherSymbol = "lightrain"
	Rain            WeatherSymbol = "rain"
	Snow            WeatherSymbol = "snow"
	HeavySnow       WeatherSymbol = "heavysnow"
	SnowShowersDay  WeatherSymbol = "snowshowers_day"
	RainAndThunder  WeatherSymbol = "rainandthunder"
)

// HasSnow checks if the weather symbol indicates snowfall. Sleet counts as
// snow here since it also settles on panels.
func (ws WeatherSymbol) HasSnow() bool {
	s := string(ws)
	return strings.Contains(s, "snow") || strings.Contains(s, "sleet")
}

// PointGeometry represents a GeoJSON point geometry
type PointGeometry struct {
	Type        string    `json:"type"`        // "Point"
	Coordinates []float64 `json:"coordinates"` // [longitude, latitude, altitude]
}

// ForecastMeta contains metadata for the forecast
type ForecastMeta struct {
	UpdatedAt time.Time         `json:"updated_at"`
	Units     map[string]string `json:"units,omitempty"`
}

// ForecastTimeInstant contains weather parameters valid for a specific point in time
type ForecastTimeInstant struct {
	AirPressureAtSeaLevel *float64 `json:"air_pressure_at_sea_level,omitempty"`
	AirTemperature        *float64 `json:"air_temperature,omitempty"`
	CloudAreaFraction     *float64 `json:"cloud_area_fraction,omitempty"`
	CloudAreaFractionLow  *float64 `json:"cloud_area_fraction_low,omitempty"`
	FogAreaFraction       *float64 `json:"fog_area_fraction,omitempty"`
	RelativeHumidity      *float64 `json:"relative_humidity,omitempty"`
	WindSpeed             *float64 `json:"wind_speed,omitempty"`
}

// ForecastTimePeriod contains weather parameters valid for a time period
type ForecastTimePeriod struct {
	AirTemperatureMax           *float64 `json:"air_temperature_max,omitempty"`
	AirTemperatureMin           *float64 `json:"air_temperature_min,omitempty"`
	PrecipitationAmount         *float64 `json:"precipitation_amount,omitempty"`
	UltravioletIndexClearSkyMax *float64 `json:"ultraviolet_index_clear_sky_max,omitempty"`
}

// ForecastSummary contains a summary of weather conditions
type ForecastSummary struct {
	SymbolCode WeatherSymbol `json:"symbol_code"`
}

// ForecastPeriodData contains forecast data for a specific period
type ForecastPeriodData struct {
	Summary *ForecastSummary    `json:"summary,omitempty"`
	Details *ForecastTimePeriod `json:"details,omitempty"`
}

// ForecastInstantData contains instant forecast data
type ForecastInstantData struct {
	Details *ForecastTimeInstant `json:"details,omitempty"`
}

// ForecastTimeStepData contains forecast data for a specific time step
type ForecastTimeStepData struct {
	Instant     *ForecastInstantData `json:"instant,omitempty"`
	Next1Hours  *ForecastPeriodData  `json:"next_1_hours,omitempty"`
	Next6Hours  *ForecastPeriodData  `json:"next_6_hours,omitempty"`
	Next12Hours *ForecastPeriodData  `json:"next_12_hours,omitempty"`
}

// ForecastTimeStep represents a forecast for a specific time step
type ForecastTimeStep struct {
	Time time.Time             `json:"time"`
	Data *ForecastTimeStepData `json:"data,omitempty"`
}

// Forecast contains the main forecast data
type Forecast struct {
	Meta       ForecastMeta       `json:"meta"`
	Timeseries []ForecastTimeStep `json:"timeseries"`
}

// METJSONForecast represents the root forecast response
type METJSONForecast struct {
	Type       string         `json:"type"` // "Feature"
	Geometry   *PointGeometry `json:"geometry,omitempty"`
	Properties *Forecast      `json:"properties,omitempty"`
}

// Location represents coordinates for a forecast request
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  *int    `json:"altitude,omitempty"`
}

// QueryParams represents query parameters for forecast requests
type QueryParams struct {
	Location Location `json:"location"`
}
