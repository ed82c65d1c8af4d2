package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/devskill-org/pvyield/feedback"
	"github.com/devskill-org/pvyield/forecast"
	"github.com/devskill-org/pvyield/utils"
	"github.com/devskill-org/pvyield/weather"
	"github.com/devskill-org/pvyield/yield"
)

// predictionRetentionDays bounds how far back an actual yield can still be
// matched with its full-day prediction.
const predictionRetentionDays = 7

type weatherResult struct {
	series weather.Series
	source string
}

// getWeather returns the cached weather series or fetches a new one.
// Concurrent misses share a single upstream request.
func (s *ForecastScheduler) getWeather(ctx context.Context) (weather.Series, string, error) {
	if series, source, ok := s.weatherCache.Get(); ok {
		s.metrics.CacheHit()
		return series, source, nil
	}
	s.metrics.CacheMiss()

	v, err, _ := s.fetchGroup.Do("weather", func() (any, error) {
		config := s.GetConfig()
		loc := weather.Location{Latitude: config.Latitude, Longitude: config.Longitude}

		s.logger.Debug("Fetching weather forecast", zap.String("source", s.source.Name()))
		series, err := s.source.Fetch(ctx, loc)
		if s.openMeteo != nil {
			s.metrics.SetBreakerState("open-meteo", s.openMeteo.State())
		}
		if err != nil {
			return nil, err
		}

		s.weatherCache.Set(series, s.source.Name())
		return weatherResult{series: series, source: s.source.Name()}, nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch weather from %s: %w", s.source.Name(), err)
	}

	res := v.(weatherResult)
	return res.series, res.source, nil
}

// currentBias returns the bias factor from the feedback log, or 1 when
// disabled or when the log cannot be read.
func (s *ForecastScheduler) currentBias(ctx context.Context) float64 {
	if !s.GetConfig().ApplyBias {
		return 1.0
	}
	bias, err := feedback.Bias(ctx, s.FeedbackStore())
	if err != nil {
		s.logger.Warn("Failed to read feedback log, forecasting without bias", zap.Error(err))
		return 1.0
	}
	return bias
}

// RunForecast fetches weather, evaluates the yield model and publishes the
// result to the API, metrics and database.
func (s *ForecastScheduler) RunForecast(ctx context.Context) (*forecast.Forecast, error) {
	f, err := s.runForecast(ctx)

	s.mu.Lock()
	s.lastRun = s.now()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.metrics.ForecastFailed()
		return nil, err
	}
	return f, nil
}

func (s *ForecastScheduler) runForecast(ctx context.Context) (*forecast.Forecast, error) {
	series, source, err := s.getWeather(ctx)
	if err != nil {
		return nil, err
	}

	bias := s.currentBias(ctx)
	loc := s.location()

	f, err := forecast.Build(series, s.site(), bias, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate forecast: %w", err)
	}
	f.Source = source
	f.GeneratedAt = s.now()

	fullDays := f.FullDays(loc)

	s.mu.Lock()
	s.latest = f
	for _, d := range fullDays {
		s.predictions[dayKey(d.Date)] = d
	}
	oldest := dayKey(s.now().In(loc).AddDate(0, 0, -predictionRetentionDays))
	for key := range s.predictions {
		if key < oldest {
			delete(s.predictions, key)
		}
	}
	db, publisher := s.db, s.publisher
	s.mu.Unlock()

	if err := s.savePredictions(ctx, fullDays, f.GeneratedAt); err != nil {
		s.logger.Error("Failed to persist full-day predictions", zap.Error(err))
	}

	s.metrics.ObserveForecast(f)

	s.logger.Info("Forecast updated",
		zap.String("id", f.ID),
		zap.String("source", source),
		zap.Int("points", len(f.Points)),
		zap.Float64("bias", f.Bias),
		zap.Float64("total_kwh", f.TotalKWh),
		zap.Float64("max_module_temp", f.MaxModuleTemp))

	if db != nil {
		if err := s.saveForecast(ctx, db, f); err != nil {
			s.logger.Error("Failed to persist forecast", zap.Error(err))
		}
	}

	if s.webServer != nil {
		s.webServer.BroadcastForecast(f)
	}

	if publisher != nil {
		if err := publisher.PublishForecast(f); err != nil {
			s.logger.Error("Failed to publish forecast", zap.Error(err))
		}
	}

	return f, nil
}

// savePredictions persists the raw energy of the fully forecast days.
func (s *ForecastScheduler) savePredictions(ctx context.Context, days []yield.DailyTotal, generatedAt time.Time) error {
	store := s.PredictionStore()
	if store == nil || len(days) == 0 {
		return nil
	}

	if s.GetConfig().DryRun {
		s.logger.Debug("[DRY-RUN] would save full-day predictions", zap.Int("days", len(days)))
		return nil
	}

	loc := s.location()
	predictions := lo.Map(days, func(d yield.DailyTotal, _ int) feedback.Prediction {
		return feedback.Prediction{
			Date:        feedback.NewDate(d.Date.In(loc)),
			EnergyKWh:   d.RawEnergyKWh,
			GeneratedAt: generatedAt,
		}
	})
	return store.SavePredictions(ctx, predictions)
}

// predictionFor returns the raw predicted energy of the whole calendar day of
// date, from memory or the prediction store. Partial days never count.
func (s *ForecastScheduler) predictionFor(ctx context.Context, date time.Time) (float64, bool) {
	s.mu.RLock()
	d, ok := s.predictions[dayKey(date)]
	store := s.predictionStore
	s.mu.RUnlock()

	if ok {
		return d.RawEnergyKWh, true
	}
	if store == nil {
		return 0, false
	}

	p, ok, err := store.Prediction(ctx, feedback.NewDate(date))
	if err != nil {
		s.logger.Warn("Failed to read stored prediction", zap.String("date", dayKey(date)), zap.Error(err))
		return 0, false
	}
	return p.EnergyKWh, ok
}

// LogActualYield records the actual yield of the calendar day of date next to
// the full-day forecast for that day. Without one the prediction is 0 and the
// entry does not count towards the bias.
func (s *ForecastScheduler) LogActualYield(ctx context.Context, date time.Time, actualKWh float64) (feedback.Entry, error) {
	if !validYield(actualKWh) {
		return feedback.Entry{}, ErrInvalidYield
	}

	day := utils.StartOfDay(date.In(s.location()))
	predicted, ok := s.predictionFor(ctx, day)
	if !ok {
		s.logger.Warn("No full-day forecast for date, logging yield without prediction", zap.String("date", dayKey(day)))
	}

	entry := feedback.Entry{
		Date:         feedback.NewDate(day),
		ActualKWh:    actualKWh,
		PredictedKWh: predicted,
	}

	if s.GetConfig().DryRun {
		s.logger.Info("[DRY-RUN] would record actual yield",
			zap.Stringer("date", entry.Date),
			zap.Float64("actual_kwh", entry.ActualKWh),
			zap.Float64("predicted_kwh", entry.PredictedKWh))
		return entry, nil
	}

	if err := s.FeedbackStore().Add(ctx, entry); err != nil {
		return feedback.Entry{}, fmt.Errorf("failed to record actual yield: %w", err)
	}
	s.metrics.FeedbackRecorded()

	s.logger.Info("Actual yield recorded",
		zap.Stringer("date", entry.Date),
		zap.Float64("actual_kwh", entry.ActualKWh),
		zap.Float64("predicted_kwh", entry.PredictedKWh))

	return entry, nil
}

// FeedbackSummary lists the feedback log and the bias factor derived from it.
func (s *ForecastScheduler) FeedbackSummary(ctx context.Context) ([]feedback.Entry, float64, error) {
	entries, err := s.FeedbackStore().List(ctx)
	if err != nil {
		return nil, 1.0, err
	}
	return entries, yield.BiasFactor(feedback.Observations(entries)), nil
}
