package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/devskill-org/pvyield/sigenergy"
	"github.com/devskill-org/pvyield/solar"
	"github.com/devskill-org/pvyield/utils"
)

func (s *ForecastScheduler) dialPlant() (PlantReader, error) {
	config := s.GetConfig()
	client, err := sigenergy.NewTCPClient(config.PlantModbusAddress, config.ModbusTimeout)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// runPVPoll reads the current PV power from the plant and stores the sample.
func (s *ForecastScheduler) runPVPoll() error {
	if s.GetConfig().PlantModbusAddress == "" {
		return nil
	}

	client, err := s.plantDialFunc()
	if err != nil {
		s.logger.Error("PV poll: failed to create modbus client", zap.Error(err))
		return err
	}
	defer client.Close()

	power, err := client.ReadPVPower()
	if err != nil {
		s.logger.Error("PV poll: failed to read PV power", zap.Error(err))
		return err
	}

	s.pvSamples.AddSample(power, s.now())
	s.metrics.SetPVPower(power)
	s.logger.Debug("PV poll", zap.Float64("pv_power_kw", power))
	return nil
}

// meteringGrace is how long after sunrise metering may start for the day to
// still count as fully metered.
const meteringGrace = 15 * time.Minute

// meteringStart returns the latest time the first reading of now's day may
// have been taken: shortly after sunrise, or midnight when the sun does not
// rise and set that day.
func (s *ForecastScheduler) meteringStart(now time.Time) time.Time {
	config := s.GetConfig()
	midnight := utils.StartOfDay(now)
	sunrise, _ := solar.SunTimes(midnight.Add(12*time.Hour), config.Latitude, config.Longitude)
	if sunrise.IsZero() || !utils.SameDay(now, sunrise) {
		return midnight
	}
	return sunrise.Add(meteringGrace)
}

// captureYield logs today's metered PV energy as the actual yield. Days whose
// metering started after sunrise are skipped, as their energy would be
// compared with a full-day prediction.
func (s *ForecastScheduler) captureYield(ctx context.Context) error {
	now := s.now().In(s.location())
	day := s.pvSamples.IntegrateDay(now, s.GetConfig().PVPollInterval)

	if day.SampleCount == 0 {
		s.logger.Warn("Yield capture: no PV samples collected today")
		return nil
	}

	if start := s.meteringStart(now); day.First.After(start) {
		s.logger.Warn("Yield capture: metering started after sunrise, not recording a partial day",
			zap.Time("first_sample", day.First),
			zap.Time("required_by", start),
			zap.Float64("energy_kwh", day.EnergyKWh))
		s.pvSamples.ClearBefore(now)
		return nil
	}

	if _, err := s.LogActualYield(ctx, day.Date, day.EnergyKWh); err != nil {
		s.logger.Error("Yield capture: failed to record yield", zap.Error(err))
		return err
	}

	// Only clear samples after the yield was recorded
	s.pvSamples.ClearBefore(now)

	s.logger.Info("Yield capture: recorded metered yield",
		zap.Time("date", day.Date),
		zap.Float64("energy_kwh", day.EnergyKWh),
		zap.Int("samples", day.SampleCount))
	return nil
}

// startYieldCapture schedules captureYield on yield_capture_schedule.
func (s *ForecastScheduler) startYieldCapture(ctx context.Context) error {
	config := s.GetConfig()

	c := cron.New(
		cron.WithLocation(s.location()),
		cron.WithLogger(cron.PrintfLogger(zap.NewStdLog(s.logger.Named("cron")))),
	)
	if _, err := c.AddFunc(config.YieldCaptureSchedule, func() {
		s.captureYield(ctx) //nolint:errcheck
	}); err != nil {
		return fmt.Errorf("invalid yield capture schedule %q: %w", config.YieldCaptureSchedule, err)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.logger.Info("Yield capture scheduled", zap.String("schedule", config.YieldCaptureSchedule))
	return nil
}
