package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/devskill-org/pvyield/solar"
	"github.com/devskill-org/pvyield/yield"
)

// EnvPrefix prefixes environment overrides, e.g. PVYIELD_CAPACITY_KWP.
const EnvPrefix = "PVYIELD_"

// Weather source names accepted by weather_source.
const (
	SourceOpenMeteo = "open-meteo"
	SourceMETNorway = "met-no"
	SourceSimulated = "simulated"
	SourceCSV       = "csv"
)

// Config represents the configuration for the PV forecast service
type Config struct {
	// Site
	Latitude  float64 `json:"latitude"`  // Site latitude in degrees
	Longitude float64 `json:"longitude"` // Site longitude in degrees
	Timezone  string  `json:"timezone"`  // IANA zone for daily totals, "Local" for the host zone

	// Array
	Tilt             float64 `json:"tilt"`              // Panel tilt, 0 = horizontal
	Azimuth          float64 `json:"azimuth"`           // Panel azimuth clockwise from north, 180 = south
	CapacityKWp      float64 `json:"capacity_kwp"`      // Rated DC capacity
	SystemEfficiency float64 `json:"system_efficiency"` // Inverter and wiring losses, applied to capacity_kwp
	NOCT             float64 `json:"noct"`              // Nominal operating cell temperature, °C
	TempCoefficient  float64 `json:"temp_coefficient"`  // Efficiency loss per K above 25 °C
	EfficiencyMin    float64 `json:"efficiency_min"`
	EfficiencyMax    float64 `json:"efficiency_max"`
	Albedo           float64 `json:"albedo"`

	// Model
	ApplyBias        bool `json:"apply_bias"`         // Scale the forecast by the logged bias factor
	SnowZeroesOutput bool `json:"snow_zeroes_output"` // Forecast no output for hours with snowfall

	// Weather
	WeatherSource           string        `json:"weather_source"` // open-meteo, met-no, simulated or csv
	WeatherFile             string        `json:"weather_file"`   // CSV file for the csv source
	OpenMeteoURL            string        `json:"open_meteo_url"`
	METNorwayURL            string        `json:"met_norway_url"`
	UserAgent               string        `json:"user_agent"` // Required by MET Norway
	ForecastHours           int           `json:"forecast_hours"`
	SimulatedSeed           int64         `json:"simulated_seed"`
	APITimeout              time.Duration `json:"api_timeout"`
	WeatherCacheDuration    time.Duration `json:"weather_cache_duration"`
	ForecastUpdateInterval  time.Duration `json:"forecast_update_interval"`
	BreakerFailureThreshold uint32        `json:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `json:"breaker_timeout"`

	// Storage
	FeedbackFile       string `json:"feedback_file"`        // CSV feedback log, used without Postgres
	PredictionsFile    string `json:"predictions_file"`     // CSV full-day predictions, used without Postgres; empty keeps them in memory
	PostgresConnString string `json:"postgres_conn_string"` // PostgreSQL connection string

	// Plant Modbus server
	PlantModbusAddress   string        `json:"plant_modbus_address"` // format: IP:PORT, e.g. "192.168.1.100:502"
	ModbusTimeout        time.Duration `json:"modbus_timeout"`
	PVPollInterval       time.Duration `json:"pv_poll_interval"`
	YieldCaptureSchedule string        `json:"yield_capture_schedule"` // cron spec for logging the day's metered yield

	// Web server
	WebPort int `json:"web_port"` // 0 = disabled

	// MQTT
	MQTTBroker   string `json:"mqtt_broker"` // e.g. "tcp://localhost:1883", empty = disabled
	MQTTTopic    string `json:"mqtt_topic"`
	MQTTClientID string `json:"mqtt_client_id"`

	// Logging
	LogLevel  string `json:"log_level"`  // debug, info, warn, error
	LogFormat string `json:"log_format"` // text, json

	DryRun bool `json:"dry_run"` // Log writes instead of performing them
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Latitude:                50.6,
		Longitude:               6.3,
		Timezone:                "Local",
		Tilt:                    35,
		Azimuth:                 220,
		CapacityKWp:             11.7,
		SystemEfficiency:        0.85,
		NOCT:                    45,
		TempCoefficient:         0.004,
		EfficiencyMin:           0.8,
		EfficiencyMax:           1.0,
		Albedo:                  solar.DefaultAlbedo,
		ApplyBias:               true,
		SnowZeroesOutput:        true,
		WeatherSource:           SourceOpenMeteo,
		OpenMeteoURL:            "https://api.open-meteo.com/v1",
		METNorwayURL:            "https://api.met.no/weatherapi/locationforecast/2.0",
		UserAgent:               "pvyield/1.0 (admin@example.com)",
		ForecastHours:           48,
		SimulatedSeed:           1,
		APITimeout:              30 * time.Second,
		WeatherCacheDuration:    30 * time.Minute,
		ForecastUpdateInterval:  time.Hour,
		BreakerFailureThreshold: 3,
		BreakerTimeout:          5 * time.Minute,
		FeedbackFile:            "feedback.csv",
		PredictionsFile:         "predictions.csv",
		ModbusTimeout:           2 * time.Second,
		PVPollInterval:          10 * time.Second,
		YieldCaptureSchedule:    "55 23 * * *",
		WebPort:                 8080,
		MQTTTopic:               "pvyield/forecast",
		MQTTClientID:            "pvyield",
		LogLevel:                "info",
		LogFormat:               "text",
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadEnv loads .env files (default ".env", missing files are ignored) into
// the process environment and applies PVYIELD_* overrides to c. Variables
// already set in the environment win over .env values.
func (c *Config) LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	return c.Validate()
}

// ApplyEnv overrides fields from variables named EnvPrefix + the upper-cased
// JSON key, looked up with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		key := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if key == "" || key == "-" {
			continue
		}
		name := EnvPrefix + strings.ToUpper(key)
		raw, ok := lookup(name)
		if !ok {
			continue
		}
		if err := setField(v.Field(i), strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint32:
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// SaveConfig saves the configuration to a JSON file
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	return c.SaveConfigToWriter(file)
}

// SaveConfigToWriter saves the configuration to an io.Writer
func (c *Config) SaveConfigToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}

	return nil
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}

	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}

	if _, err := c.TimeLocation(); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	if c.Tilt < 0 || c.Tilt > 90 {
		return fmt.Errorf("tilt must be between 0 and 90, got: %f", c.Tilt)
	}

	if c.Azimuth < 0 || c.Azimuth >= 360 {
		return fmt.Errorf("azimuth must be in [0, 360), got: %f", c.Azimuth)
	}

	if c.Albedo < 0 || c.Albedo > 1 {
		return fmt.Errorf("albedo must be between 0 and 1, got: %f", c.Albedo)
	}

	if c.SystemEfficiency <= 0 || c.SystemEfficiency > 1 {
		return fmt.Errorf("system_efficiency must be in (0, 1], got: %f", c.SystemEfficiency)
	}

	if err := c.YieldParams().Validate(); err != nil {
		return err
	}

	switch c.WeatherSource {
	case SourceOpenMeteo, SourceSimulated:
	case SourceMETNorway:
		if c.UserAgent == "" {
			return fmt.Errorf("user_agent cannot be empty for the %s source", SourceMETNorway)
		}
	case SourceCSV:
		if c.WeatherFile == "" {
			return fmt.Errorf("weather_file cannot be empty for the %s source", SourceCSV)
		}
	default:
		return fmt.Errorf("invalid weather_source: %s, must be one of: %s, %s, %s, %s",
			c.WeatherSource, SourceOpenMeteo, SourceMETNorway, SourceSimulated, SourceCSV)
	}

	if c.ForecastHours <= 0 || c.ForecastHours > 16*24 {
		return fmt.Errorf("forecast_hours must be between 1 and 384, got: %d", c.ForecastHours)
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be greater than 0, got: %s", c.APITimeout)
	}

	if c.WeatherCacheDuration < 0 {
		return fmt.Errorf("weather_cache_duration must not be negative, got: %s", c.WeatherCacheDuration)
	}

	if c.ForecastUpdateInterval <= 0 {
		return fmt.Errorf("forecast_update_interval must be greater than 0, got: %s", c.ForecastUpdateInterval)
	}

	if c.PostgresConnString == "" && c.FeedbackFile == "" {
		return fmt.Errorf("feedback_file cannot be empty without postgres_conn_string")
	}

	if c.PlantModbusAddress != "" {
		if c.PVPollInterval <= 0 {
			return fmt.Errorf("pv_poll_interval must be greater than 0, got: %s", c.PVPollInterval)
		}
		if c.ModbusTimeout <= 0 {
			return fmt.Errorf("modbus_timeout must be greater than 0, got: %s", c.ModbusTimeout)
		}
		if _, err := cron.ParseStandard(c.YieldCaptureSchedule); err != nil {
			return fmt.Errorf("invalid yield_capture_schedule %q: %w", c.YieldCaptureSchedule, err)
		}
	}

	if c.WebPort < 0 || c.WebPort > 65535 {
		return fmt.Errorf("web_port must be between 0 and 65535, got: %d", c.WebPort)
	}

	if c.MQTTBroker != "" {
		if c.MQTTTopic == "" {
			return fmt.Errorf("mqtt_topic cannot be empty when mqtt_broker is set")
		}
		if c.MQTTClientID == "" {
			return fmt.Errorf("mqtt_client_id cannot be empty when mqtt_broker is set")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s, must be one of: debug, info, warn, error", c.LogLevel)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log_format: %s, must be one of: text, json", c.LogFormat)
	}

	return nil
}

// TimeLocation resolves Timezone. An empty value or "Local" is the host zone.
func (c *Config) TimeLocation() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// YieldParams returns the estimator parameters. The model capacity is the
// rated capacity derated by the system efficiency.
func (c *Config) YieldParams() yield.Params {
	return yield.Params{
		CapacityKWp:     c.CapacityKWp * c.SystemEfficiency,
		NOCT:            c.NOCT,
		TempCoefficient: c.TempCoefficient,
		MinEfficiency:   c.EfficiencyMin,
		MaxEfficiency:   c.EfficiencyMax,
	}
}

// Surface returns the plane-of-array orientation.
func (c *Config) Surface() solar.Surface {
	return solar.Surface{Tilt: c.Tilt, Azimuth: c.Azimuth, Albedo: c.Albedo}
}

// MarshalJSON implements custom JSON marshaling to handle durations
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		APITimeout             string `json:"api_timeout"`
		WeatherCacheDuration   string `json:"weather_cache_duration"`
		ForecastUpdateInterval string `json:"forecast_update_interval"`
		BreakerTimeout         string `json:"breaker_timeout"`
		ModbusTimeout          string `json:"modbus_timeout"`
		PVPollInterval         string `json:"pv_poll_interval"`
	}{
		Alias:                  (*Alias)(c),
		APITimeout:             c.APITimeout.String(),
		WeatherCacheDuration:   c.WeatherCacheDuration.String(),
		ForecastUpdateInterval: c.ForecastUpdateInterval.String(),
		BreakerTimeout:         c.BreakerTimeout.String(),
		ModbusTimeout:          c.ModbusTimeout.String(),
		PVPollInterval:         c.PVPollInterval.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to handle durations
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		APITimeout             string `json:"api_timeout"`
		WeatherCacheDuration   string `json:"weather_cache_duration"`
		ForecastUpdateInterval string `json:"forecast_update_interval"`
		BreakerTimeout         string `json:"breaker_timeout"`
		ModbusTimeout          string `json:"modbus_timeout"`
		PVPollInterval         string `json:"pv_poll_interval"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"api_timeout", aux.APITimeout, &c.APITimeout},
		{"weather_cache_duration", aux.WeatherCacheDuration, &c.WeatherCacheDuration},
		{"forecast_update_interval", aux.ForecastUpdateInterval, &c.ForecastUpdateInterval},
		{"breaker_timeout", aux.BreakerTimeout, &c.BreakerTimeout},
		{"modbus_timeout", aux.ModbusTimeout, &c.ModbusTimeout},
		{"pv_poll_interval", aux.PVPollInterval, &c.PVPollInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
