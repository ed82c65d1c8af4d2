package openmeteo

import (
	"fmt"
	"math"
	"time"
)

// hourLayout is the timestamp format Open-Meteo uses with timezone=UTC.
const hourLayout = "2006-01-02T15:04"

// HourlyForecast is the JSON body of a forecast response. Missing values are
// encoded by Open-Meteo as null.
type HourlyForecast struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
	Timezone  string  `json:"timezone"`
	Hourly    struct {
		Time                   []string   `json:"time"`
		ShortwaveRadiation     []*float64 `json:"shortwave_radiation"`
		DirectNormalIrradiance []*float64 `json:"direct_normal_irradiance"`
		DiffuseRadiation       []*float64 `json:"diffuse_radiation"`
		Temperature2M          []*float64 `json:"temperature_2m"`
		CloudCover             []*float64 `json:"cloud_cover"`
		WeatherCode            []*int     `json:"weather_code"`
	} `json:"hourly"`
	HourlyUnits map[string]string `json:"hourly_units"`
}

// Hour is one decoded hourly row. Irradiance is in W/m², averaged over the
// preceding hour, temperature in °C and cloud cover in percent. Absent
// optional values are NaN.
type Hour struct {
	Time        time.Time
	GHI         float64
	DNI         float64
	DHI         float64
	TempAir     float64
	CloudCover  float64
	WeatherCode int
}

// Snow reports whether the WMO weather code is a snowfall code.
func (h Hour) Snow() bool {
	return IsSnowCode(h.WeatherCode)
}

// IsSnowCode reports whether a WMO weather interpretation code denotes snow.
func IsSnowCode(code int) bool {
	return (code >= 71 && code <= 77) || code == 85 || code == 86
}

// Hours decodes the columnar hourly block into rows. Rows without GHI or
// temperature are skipped.
func (f *HourlyForecast) Hours() ([]Hour, error) {
	if f == nil {
		return nil, nil
	}

	hours := make([]Hour, 0, len(f.Hourly.Time))
	for i, ts := range f.Hourly.Time {
		t, err := time.ParseInLocation(hourLayout, ts, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid hourly time %q: %w", ts, err)
		}

		ghi := valueAt(f.Hourly.ShortwaveRadiation, i)
		temp := valueAt(f.Hourly.Temperature2M, i)
		if math.IsNaN(ghi) || math.IsNaN(temp) {
			continue
		}

		h := Hour{
			Time:       t,
			GHI:        ghi,
			DNI:        valueAt(f.Hourly.DirectNormalIrradiance, i),
			DHI:        valueAt(f.Hourly.DiffuseRadiation, i),
			TempAir:    temp,
			CloudCover: valueAt(f.Hourly.CloudCover, i),
		}
		if i < len(f.Hourly.WeatherCode) && f.Hourly.WeatherCode[i] != nil {
			h.WeatherCode = *f.Hourly.WeatherCode[i]
		}
		hours = append(hours, h)
	}
	return hours, nil
}

func valueAt(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return math.NaN()
	}
	return *values[i]
}
