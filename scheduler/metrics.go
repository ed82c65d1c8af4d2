package scheduler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"github.com/devskill-org/pvyield/forecast"
)

// Metrics holds the Prometheus collectors of the service, registered on a
// private registry so several schedulers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	forecastRuns      *prometheus.CounterVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	forecastEnergy    *prometheus.GaugeVec
	biasFactor        prometheus.Gauge
	maxModuleTemp     prometheus.Gauge
	pvPower           prometheus.Gauge
	feedbackEntries   prometheus.Counter
	cbState           *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pvyield_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pvyield_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		forecastRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pvyield_forecast_runs_total",
			Help: "Forecast runs by result (ok, error).",
		}, []string{"result"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pvyield_weather_cache_hits_total",
			Help: "Weather series served from the cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pvyield_weather_cache_misses_total",
			Help: "Weather series fetched from the source.",
		}),
		forecastEnergy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pvyield_forecast_energy_kwh",
			Help: "Forecast energy per local calendar day.",
		}, []string{"date", "kind"}),
		biasFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pvyield_bias_factor",
			Help: "Bias factor applied to the latest forecast.",
		}),
		maxModuleTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pvyield_forecast_max_module_temperature_celsius",
			Help: "Highest module temperature of the latest forecast.",
		}),
		pvPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pvyield_pv_power_kw",
			Help: "Latest metered PV power.",
		}),
		feedbackEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pvyield_feedback_entries_total",
			Help: "Actual yield entries recorded.",
		}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pvyield_cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.forecastRuns,
		m.cacheHits,
		m.cacheMisses,
		m.forecastEnergy,
		m.biasFactor,
		m.maxModuleTemp,
		m.pvPower,
		m.feedbackEntries,
		m.cbState,
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and duration for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(duration)
		}
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// ForecastFailed counts a failed forecast run.
func (m *Metrics) ForecastFailed() {
	if m == nil {
		return
	}
	m.forecastRuns.WithLabelValues("error").Inc()
}

// ObserveForecast counts a successful run and exports its figures.
func (m *Metrics) ObserveForecast(f *forecast.Forecast) {
	if m == nil || f == nil {
		return
	}
	m.forecastRuns.WithLabelValues("ok").Inc()
	m.biasFactor.Set(f.Bias)
	m.maxModuleTemp.Set(f.MaxModuleTemp)

	m.forecastEnergy.Reset()
	for _, d := range f.Daily {
		date := d.Date.Format("2006-01-02")
		m.forecastEnergy.WithLabelValues(date, "corrected").Set(d.EnergyKWh)
		m.forecastEnergy.WithLabelValues(date, "raw").Set(d.RawEnergyKWh)
	}
}

// SetPVPower exports the latest metered PV power.
func (m *Metrics) SetPVPower(kw float64) {
	if m == nil {
		return
	}
	m.pvPower.Set(kw)
}

// FeedbackRecorded counts a recorded actual yield entry.
func (m *Metrics) FeedbackRecorded() {
	if m == nil {
		return
	}
	m.feedbackEntries.Inc()
}

// SetBreakerState exports the state of the circuit breaker guarding target.
func (m *Metrics) SetBreakerState(target string, state gobreaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.cbState.WithLabelValues(target).Set(v)
}
