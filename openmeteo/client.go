// Package openmeteo is a client for the Open-Meteo hourly forecast API,
// limited to the irradiance and temperature variables a PV forecast needs.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public Open-Meteo forecast API.
const DefaultBaseURL = "https://api.open-meteo.com/v1"

// HourlyVariables are requested on every call.
var HourlyVariables = []string{
	"shortwave_radiation",
	"direct_normal_irradiance",
	"diffuse_radiation",
	"temperature_2m",
	"cloud_cover",
	"weather_code",
}

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("open-meteo circuit breaker is open")

// HTTPClient is the subset of *http.Client used by Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-2xx answer from Open-Meteo.
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("open-meteo error %d: %s", e.StatusCode, e.Reason)
}

// Config holds client settings.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	FailureThreshold uint32        // consecutive failures before the breaker opens
	BreakerTimeout   time.Duration // how long the breaker stays open
}

// Client fetches hourly forecasts. Each call makes a single attempt; repeated
// failures open the circuit breaker and further calls fail fast.
type Client struct {
	client  HTTPClient
	baseURL string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a client. A nil logger disables logging.
func NewClient(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 3
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = time.Minute
	}

	threshold := config.FailureThreshold
	settings := gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors say nothing about the health of the service
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("client", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		client:  &http.Client{Timeout: config.Timeout},
		baseURL: config.BaseURL,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client HTTPClient) {
	c.client = client
}

// State reports the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Query selects the location and horizon of a forecast.
type Query struct {
	Latitude      float64
	Longitude     float64
	ForecastHours int
	PastHours     int
}

// GetHourly fetches the hourly forecast for q.
func (c *Client) GetHourly(ctx context.Context, q Query) (*HourlyForecast, error) {
	reqURL, err := c.buildURL(q)
	if err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, reqURL)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	if err != nil {
		return nil, err
	}

	var forecast HourlyForecast
	if err := json.Unmarshal(body.([]byte), &forecast); err != nil {
		return nil, fmt.Errorf("failed to parse forecast response: %w", err)
	}
	return &forecast, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("HTTP request failed", zap.String("url", reqURL), zap.Error(err))
		return nil, fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading open-meteo response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
		var payload struct {
			Reason string `json:"reason"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Reason != "" {
			apiErr.Reason = payload.Reason
		}
		return nil, apiErr
	}

	c.logger.Debug("Request successful",
		zap.String("url", reqURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_size", len(body)))
	return body, nil
}

func (c *Client) buildURL(q Query) (string, error) {
	if q.Latitude < -90 || q.Latitude > 90 {
		return "", fmt.Errorf("latitude must be between -90 and 90, got %f", q.Latitude)
	}
	if q.Longitude < -180 || q.Longitude > 180 {
		return "", fmt.Errorf("longitude must be between -180 and 180, got %f", q.Longitude)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path += "/forecast"

	query := u.Query()
	query.Set("latitude", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	query.Set("hourly", strings.Join(HourlyVariables, ","))
	query.Set("timezone", "UTC")
	if q.ForecastHours > 0 {
		query.Set("forecast_hours", strconv.Itoa(q.ForecastHours))
	}
	if q.PastHours > 0 {
		query.Set("past_hours", strconv.Itoa(q.PastHours))
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
