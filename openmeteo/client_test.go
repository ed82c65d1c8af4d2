package openmeteo

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleBody = `{
  "latitude": 50.6,
  "longitude": 6.3,
  "elevation": 420,
  "timezone": "GMT",
  "hourly_units": {"shortwave_radiation": "W/m²"},
  "hourly": {
    "time": ["2024-06-21T10:00", "2024-06-21T11:00", "2024-06-21T12:00"],
    "shortwave_radiation": [610.0, 720.5, null],
    "direct_normal_irradiance": [500.0, null, 650.0],
    "diffuse_radiation": [180.0, 190.0, 200.0],
    "temperature_2m": [21.5, 23.0, 24.1],
    "cloud_cover": [20, 35, 40],
    "weather_code": [1, 73, 2]
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL, Timeout: 5 * time.Second, FailureThreshold: 2, BreakerTimeout: time.Minute}, zap.NewNop())
}

func TestGetHourly(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "50.6", q.Get("latitude"))
		assert.Equal(t, "6.3", q.Get("longitude"))
		assert.Equal(t, "48", q.Get("forecast_hours"))
		assert.Equal(t, "UTC", q.Get("timezone"))
		assert.True(t, strings.Contains(q.Get("hourly"), "direct_normal_irradiance"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleBody))
	})

	forecast, err := client.GetHourly(context.Background(), Query{Latitude: 50.6, Longitude: 6.3, ForecastHours: 48})
	require.NoError(t, err)

	hours, err := forecast.Hours()
	require.NoError(t, err)
	// the 12:00 row has no GHI and is dropped
	require.Len(t, hours, 2)

	assert.Equal(t, time.Date(2024, 6, 21, 10, 0, 0, 0, time.UTC), hours[0].Time)
	assert.Equal(t, 610.0, hours[0].GHI)
	assert.Equal(t, 500.0, hours[0].DNI)
	assert.Equal(t, 180.0, hours[0].DHI)
	assert.Equal(t, 21.5, hours[0].TempAir)
	assert.False(t, hours[0].Snow())

	assert.True(t, math.IsNaN(hours[1].DNI))
	assert.True(t, hours[1].Snow())
}

func TestGetHourlyAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": true, "reason": "Cannot initialize WeatherVariable from invalid String value"}`))
	})

	_, err := client.GetHourly(context.Background(), Query{Latitude: 50.6, Longitude: 6.3})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Reason, "WeatherVariable")

	// client errors do not trip the breaker
	_, _ = client.GetHourly(context.Background(), Query{Latitude: 50.6, Longitude: 6.3})
	assert.Equal(t, gobreaker.StateClosed, client.State())
}

func TestCircuitBreakerOpensWithoutRetrying(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	q := Query{Latitude: 50.6, Longitude: 6.3}
	for i := 0; i < 2; i++ {
		_, err := client.GetHourly(context.Background(), q)
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, gobreaker.StateOpen, client.State())

	_, err := client.GetHourly(context.Background(), q)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetHourlyInvalidLocation(t *testing.T) {
	client := NewClient(Config{}, nil)
	_, err := client.GetHourly(context.Background(), Query{Latitude: 120, Longitude: 0})
	assert.Error(t, err)
}

func TestIsSnowCode(t *testing.T) {
	for _, code := range []int{71, 73, 75, 77, 85, 86} {
		assert.True(t, IsSnowCode(code), "code %d", code)
	}
	for _, code := range []int{0, 3, 61, 80, 95} {
		assert.False(t, IsSnowCode(code), "code %d", code)
	}
}

func TestHoursInvalidTime(t *testing.T) {
	f := &HourlyForecast{}
	f.Hourly.Time = []string{"yesterday"}
	ghi, temp := 100.0, 10.0
	f.Hourly.ShortwaveRadiation = []*float64{&ghi}
	f.Hourly.Temperature2M = []*float64{&temp}
	_, err := f.Hours()
	assert.Error(t, err)
}
