package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/devskill-org/pvyield/forecast"
	"github.com/devskill-org/pvyield/utils"
)

// ForecastPublisher pushes forecast summaries to an external system.
type ForecastPublisher interface {
	PublishForecast(f *forecast.Forecast) error
	Close()
}

// ForecastSummary is the compact forecast payload published over MQTT.
type ForecastSummary struct {
	ID            string             `json:"id"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Source        string             `json:"source"`
	Bias          float64            `json:"bias"`
	TotalKWh      float64            `json:"total_kwh"`
	RawTotalKWh   float64            `json:"raw_total_kwh"`
	MaxModuleTemp float64            `json:"max_module_temp"`
	Daily         map[string]float64 `json:"daily_kwh"`
}

// NewForecastSummary condenses f into its published form.
func NewForecastSummary(f *forecast.Forecast) ForecastSummary {
	summary := ForecastSummary{
		ID:            f.ID,
		GeneratedAt:   f.GeneratedAt,
		Source:        f.Source,
		Bias:          f.Bias,
		TotalKWh:      f.TotalKWh,
		RawTotalKWh:   f.RawTotalKWh,
		MaxModuleTemp: f.MaxModuleTemp,
		Daily:         make(map[string]float64, len(f.Daily)),
	}
	for _, d := range f.Daily {
		summary.Daily[d.Date.Format(utils.DateLayout)] = d.EnergyKWh
	}
	return summary
}

type mqttPublisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// newMQTTPublisher connects to the configured broker.
func newMQTTPublisher(config *Config, logger *zap.Logger) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(config.MQTTBroker).
		SetClientID(config.MQTTClientID).
		SetConnectTimeout(config.APITimeout).
		SetAutoReconnect(true)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(config.APITimeout) {
		return nil, fmt.Errorf("timeout connecting to MQTT broker %s", config.MQTTBroker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", config.MQTTBroker, err)
	}

	return &mqttPublisher{
		client:  c,
		topic:   config.MQTTTopic,
		timeout: config.APITimeout,
		logger:  logger,
	}, nil
}

// PublishForecast publishes the forecast summary as a retained message.
func (p *mqttPublisher) PublishForecast(f *forecast.Forecast) error {
	payload, err := json.Marshal(NewForecastSummary(f))
	if err != nil {
		return fmt.Errorf("failed to marshal forecast summary: %w", err)
	}

	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("timeout publishing to %s", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published forecast summary", zap.String("topic", p.topic), zap.String("id", f.ID))
	return nil
}

func (p *mqttPublisher) Close() {
	p.client.Disconnect(250)
}
